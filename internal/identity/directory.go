package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
)

var (
	ErrUserNotFound         = apperr.NotFound("user_not_found", "user not found")
	ErrRoleUserNotFound     = apperr.NotFound("role_user_not_found", "delegated booking user not found")
	ErrOrganizationNotFound = apperr.NotFound("organization_not_found", "organization not found")
	ErrDoctorNotFound       = apperr.NotFound("doctor_not_found", "doctor not found")
)

// Directory reads users and organizations from the data platform.
type Directory interface {
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error)
	// FirstDoctorOfOrganization returns the oldest doctor-role user of the organization.
	FirstDoctorOfOrganization(ctx context.Context, orgID uuid.UUID) (*User, error)
}
