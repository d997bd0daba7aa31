package appointment

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusScheduled   Status = "SCHEDULED"
	StatusConfirmed   Status = "CONFIRMADA"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusCompleted   Status = "COMPLETADA"
	StatusCancelled   Status = "CANCELADA"
	StatusRescheduled Status = "REAGENDADA"
)

// DefaultDurationMinutes applies when a booking does not say how long it takes.
const DefaultDurationMinutes = 30

// Active statuses occupy the doctor's calendar.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed || s == StatusInProgress
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusRescheduled:
		return true
	}
	return false
}

// PatientRef points at exactly one of a registered or an unregistered patient.
type PatientRef struct {
	PatientID             *uuid.UUID
	UnregisteredPatientID *uuid.UUID
}

func (r PatientRef) Validate() error {
	switch {
	case r.PatientID == nil && r.UnregisteredPatientID == nil:
		return ErrPatientRefMissing
	case r.PatientID != nil && r.UnregisteredPatientID != nil:
		return ErrPatientRefAmbiguous
	}
	return nil
}

func (r PatientRef) Registered() bool {
	return r.PatientID != nil
}

// SelectedService is the priced service snapshot billed for the appointment.
type SelectedService struct {
	Name     string
	Price    decimal.Decimal
	Currency string
	TaxRate  decimal.Decimal
}

type Appointment struct {
	ID uuid.UUID
	PatientRef
	DoctorID            uuid.UUID
	OrganizationID      uuid.UUID
	ScheduledAt         time.Time
	DurationMinutes     int
	Status              Status
	Reason              *string
	Location            *string
	ReferralSource      *string
	Service             SelectedService
	CreatedByRoleUserID *uuid.UUID
	CancelReason        *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Patient struct {
	ID       uuid.UUID
	FullName string
	Email    *string
}

type UnregisteredPatient struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	FullName       string
	Email          *string
	Phone          *string
}

type BookingRequest struct {
	DoctorID            uuid.UUID
	OrganizationID      uuid.UUID
	Patient             PatientRef
	ScheduledAt         time.Time
	DurationMinutes     int
	Reason              *string
	Location            *string
	ReferralSource      *string
	Service             *SelectedService
	CreatedByRoleUserID *uuid.UUID
}

type BookingResult struct {
	Appointment    *Appointment
	InvoiceID      uuid.UUID
	BillingCreated bool
}

// normalize fills defaults and rejects malformed requests.
func (r *BookingRequest) normalize(defaultCurrency string) error {
	if err := r.Patient.Validate(); err != nil {
		return err
	}
	if r.ScheduledAt.IsZero() {
		return ErrScheduledAtRequired
	}
	if r.DurationMinutes == 0 {
		r.DurationMinutes = DefaultDurationMinutes
	}
	if r.DurationMinutes < 0 {
		return ErrInvalidDuration
	}
	if r.Service == nil {
		return ErrServiceRequired
	}

	svc := *r.Service
	svc.Name = strings.TrimSpace(svc.Name)
	if svc.Name == "" {
		return ErrServiceRequired
	}
	if svc.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if svc.TaxRate.IsNegative() || svc.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidTaxRate
	}
	svc.Currency = strings.ToUpper(strings.TrimSpace(svc.Currency))
	if svc.Currency == "" {
		svc.Currency = strings.ToUpper(defaultCurrency)
	}
	if len(svc.Currency) != 3 {
		return ErrInvalidCurrency
	}
	r.Service = &svc
	return nil
}
