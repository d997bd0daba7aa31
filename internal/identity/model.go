package identity

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleDoctor    Role = "doctor"
	RoleFrontDesk Role = "front_desk"
	RoleAssistant Role = "assistant"
	RoleAdmin     Role = "admin"
	RolePatient   Role = "patient"
)

// Delegated reports whether the role books on behalf of a clinic's doctor.
func (r Role) Delegated() bool {
	return r == RoleFrontDesk || r == RoleAssistant
}

// Principal is the acting user as asserted by the identity platform.
// Patients carry their patient id in UserID and no organization.
type Principal struct {
	UserID         uuid.UUID
	Role           Role
	OrganizationID *uuid.UUID
}

// InOrganization reports whether the principal is staff of orgID.
func (p Principal) InOrganization(orgID uuid.UUID) bool {
	return p.OrganizationID != nil && *p.OrganizationID == orgID && p.Role != RolePatient
}

// Tenant is the concrete doctor/organization pair every booking step works with.
type Tenant struct {
	DoctorID       uuid.UUID
	OrganizationID uuid.UUID
}

type User struct {
	ID             uuid.UUID
	OrganizationID *uuid.UUID
	Role           Role
	FullName       string
	Email          *string
	CreatedAt      time.Time
}

type Organization struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}
