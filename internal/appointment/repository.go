package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
	"github.com/hackgods/practice-booking-engine/internal/billing"
)

var (
	ErrPatientNotFound             = apperr.NotFound("patient_not_found", "patient not found")
	ErrUnregisteredPatientNotFound = apperr.NotFound("unregistered_patient_not_found", "unregistered patient not found")
	ErrAppointmentNotFound         = apperr.NotFound("appointment_not_found", "appointment not found")

	ErrPatientRefMissing   = apperr.Validation("patient_required", "patientId or unregisteredPatientId is required")
	ErrPatientRefAmbiguous = apperr.Validation("patient_ambiguous", "only one of patientId or unregisteredPatientId may be set")
	ErrScheduledAtRequired = apperr.Validation("scheduled_at_required", "scheduledAt is required")
	ErrInvalidDuration     = apperr.Validation("invalid_duration", "durationMinutes must be positive")
	ErrServiceRequired     = apperr.Validation("service_required", "selectedService with name and price is required")
	ErrInvalidPrice        = apperr.Validation("invalid_price", "selectedService.price cannot be negative")
	ErrInvalidTaxRate      = apperr.Validation("invalid_tax_rate", "selectedService.taxRate must be between 0 and 1")
	ErrInvalidCurrency     = apperr.Validation("invalid_currency", "selectedService.currency must be a 3-letter code")
	ErrInvalidStatus       = apperr.Validation("invalid_status", "unknown appointment status")

	ErrSlotConflict      = apperr.Conflict("schedule_conflict", "the doctor already has an appointment at that time")
	ErrScheduleBusy      = apperr.Conflict("schedule_busy", "the doctor's schedule is being updated, please retry")
	ErrInvalidTransition = apperr.Conflict("invalid_status_transition", "appointment status does not allow this change")
	ErrStaleAppointment  = apperr.Conflict("appointment_changed", "appointment was modified concurrently, reload and retry")

	ErrPatientMismatch = apperr.Forbidden("patient_mismatch", "patients can only book for themselves")
	ErrManageForbidden = apperr.Forbidden("appointment_forbidden", "principal cannot modify this appointment")
)

// Repository contains the DB reads the service needs outside a transaction.
type Repository interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetUnregisteredPatient(ctx context.Context, id uuid.UUID) (*UnregisteredPatient, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ListActiveForDoctor returns SCHEDULED, CONFIRMADA and IN_PROGRESS
	// appointments starting in [from, to).
	ListActiveForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)

	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx holds the writes that commit together.
type Tx interface {
	// InsertAppointment returns ErrSlotConflict when another active
	// appointment already holds the exact start for the doctor.
	InsertAppointment(ctx context.Context, a *Appointment) error
	InsertInvoice(ctx context.Context, inv *billing.Invoice) error

	// UpdateStatus and Reschedule only apply while the row is still in from.
	// A row that moved on returns ErrAppointmentNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, cancelReason *string) (*Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, from Status, start time.Time, durationMinutes int) (*Appointment, error)

	VoidUnpaidInvoices(ctx context.Context, appointmentID uuid.UUID) (int64, error)
}
