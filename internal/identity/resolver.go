package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
)

var (
	ErrDelegationForbidden = apperr.Forbidden("delegated_booking_forbidden", "principal cannot book on behalf of this organization")
	ErrTenantForbidden     = apperr.Forbidden("tenant_forbidden", "principal does not belong to this organization")
)

type ResolveInput struct {
	DoctorID            uuid.UUID
	OrganizationID      uuid.UUID
	CreatedByRoleUserID *uuid.UUID
}

type Resolution struct {
	Tenant Tenant
	// CreatedByRoleUserID is set when the booking was made through a delegated user.
	CreatedByRoleUserID *uuid.UUID
}

type Resolver struct {
	dir Directory
	log *zap.Logger
}

func NewResolver(dir Directory, log *zap.Logger) *Resolver {
	return &Resolver{dir: dir, log: log}
}

// Resolve turns the acting principal into the doctor/organization pair used by
// booking. When a delegated user is involved the client-supplied ids are ignored.
func (r *Resolver) Resolve(ctx context.Context, p Principal, in ResolveInput) (Resolution, error) {
	roleUserID := in.CreatedByRoleUserID
	if roleUserID == nil && p.Role.Delegated() {
		id := p.UserID
		roleUserID = &id
	}

	if roleUserID != nil {
		return r.resolveDelegated(ctx, p, *roleUserID)
	}

	switch p.Role {
	case RoleDoctor:
		if p.OrganizationID == nil {
			return Resolution{}, ErrOrganizationNotFound
		}
		return Resolution{Tenant: Tenant{DoctorID: p.UserID, OrganizationID: *p.OrganizationID}}, nil
	case RoleAdmin:
		if !p.InOrganization(in.OrganizationID) {
			return Resolution{}, ErrTenantForbidden
		}
	}

	return r.resolveExplicit(ctx, in)
}

func (r *Resolver) resolveDelegated(ctx context.Context, p Principal, roleUserID uuid.UUID) (Resolution, error) {
	if p.Role == RolePatient {
		return Resolution{}, ErrDelegationForbidden
	}

	roleUser, err := r.dir.GetUser(ctx, roleUserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Resolution{}, ErrRoleUserNotFound
		}
		return Resolution{}, fmt.Errorf("load role user: %w", err)
	}
	if roleUser.OrganizationID == nil {
		return Resolution{}, ErrOrganizationNotFound
	}
	if p.OrganizationID != nil && *p.OrganizationID != *roleUser.OrganizationID {
		return Resolution{}, ErrDelegationForbidden
	}

	org, err := r.dir.GetOrganization(ctx, *roleUser.OrganizationID)
	if err != nil {
		if errors.Is(err, ErrOrganizationNotFound) {
			return Resolution{}, err
		}
		return Resolution{}, fmt.Errorf("load organization: %w", err)
	}

	doctor, err := r.dir.FirstDoctorOfOrganization(ctx, org.ID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return Resolution{}, err
		}
		return Resolution{}, fmt.Errorf("load organization doctor: %w", err)
	}

	r.log.Debug("delegated booking resolved",
		zap.String("role_user_id", roleUserID.String()),
		zap.String("organization_id", org.ID.String()),
		zap.String("doctor_id", doctor.ID.String()),
	)

	id := roleUserID
	return Resolution{
		Tenant:              Tenant{DoctorID: doctor.ID, OrganizationID: org.ID},
		CreatedByRoleUserID: &id,
	}, nil
}

func (r *Resolver) resolveExplicit(ctx context.Context, in ResolveInput) (Resolution, error) {
	doctor, err := r.dir.GetUser(ctx, in.DoctorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Resolution{}, ErrDoctorNotFound
		}
		return Resolution{}, fmt.Errorf("load doctor: %w", err)
	}
	if doctor.Role != RoleDoctor || doctor.OrganizationID == nil || *doctor.OrganizationID != in.OrganizationID {
		return Resolution{}, ErrDoctorNotFound
	}

	return Resolution{Tenant: Tenant{DoctorID: doctor.ID, OrganizationID: in.OrganizationID}}, nil
}
