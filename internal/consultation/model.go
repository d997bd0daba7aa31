package consultation

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Consultation struct {
	ID                    uuid.UUID
	AppointmentID         uuid.UUID
	PatientID             *uuid.UUID
	UnregisteredPatientID *uuid.UUID
	DoctorID              uuid.UUID
	OrganizationID        uuid.UUID
	ReportURL             *string
	CompletedAt           *time.Time
	CreatedAt             time.Time
}

// Detail is everything report delivery needs about a consultation, with the
// registered and unregistered patient shapes folded into one.
type Detail struct {
	ConsultationID   uuid.UUID
	AppointmentID    uuid.UUID
	OrganizationID   uuid.UUID
	Registered       bool
	PatientName      string
	PatientEmail     string
	DoctorName       string
	OrganizationName string
	ReportURL        string
}

// Completion is the outcome of closing a consultation.
type Completion struct {
	Consultation   *Consultation
	DeliveryID     *uuid.UUID
	DeliveryDueAt  *time.Time
	DeliveryQueued bool
}

// patientColumns is the joined row as read from the database. Either the
// registered or the unregistered side is populated.
type patientColumns struct {
	PatientID         *uuid.UUID
	PatientName       *string
	PatientEmail      *string
	UnregisteredID    *uuid.UUID
	UnregisteredName  *string
	UnregisteredEmail *string
}

// normalizePatient picks the populated side of the patient join.
func normalizePatient(c patientColumns) (registered bool, name, email string) {
	if c.PatientID != nil {
		return true, deref(c.PatientName), deref(c.PatientEmail)
	}
	return false, deref(c.UnregisteredName), deref(c.UnregisteredEmail)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
