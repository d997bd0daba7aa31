package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending              PaymentStatus = "pendiente"
	PaymentAwaitingVerification PaymentStatus = "pendiente_verificacion"
	PaymentPaid                 PaymentStatus = "pagada"
	PaymentRejected             PaymentStatus = "rechazada"
)

type InvoiceStatus string

const (
	InvoiceIssued InvoiceStatus = "emitida"
	InvoiceVoided InvoiceStatus = "anulada"
)

// Invoice is the billing record written together with an appointment.
// ExchangeRate is a snapshot taken at booking time and never changes.
type Invoice struct {
	ID                    uuid.UUID
	AppointmentID         uuid.UUID
	PatientID             *uuid.UUID
	UnregisteredPatientID *uuid.UUID
	DoctorID              uuid.UUID
	OrganizationID        uuid.UUID
	Concept               string
	Subtotal              decimal.Decimal
	Taxes                 decimal.Decimal
	Total                 decimal.Decimal
	Currency              string
	ExchangeRate          decimal.Decimal
	PaymentStatus         PaymentStatus
	Status                InvoiceStatus
	PaymentReference      *string
	VerifiedBy            *uuid.UUID
	VerifiedAt            *time.Time
	VerificationNote      *string
	ReissuedFromID        *uuid.UUID
	CreatedAt             time.Time
	UpdatedAt             time.Time

	// BookedBy is the delegated user that created the appointment, read from the
	// appointment row. It is not stored on the invoice.
	BookedBy *uuid.UUID

	Adjustments []Adjustment
}

type Adjustment struct {
	ID            uuid.UUID
	InvoiceID     uuid.UUID
	PreviousTotal decimal.Decimal
	NewTotal      decimal.Decimal
	Delta         decimal.Decimal
	Reason        string
	AdjustedBy    uuid.UUID
	CreatedAt     time.Time
}

// Charge is what a booking bills for.
type Charge struct {
	AppointmentID         uuid.UUID
	PatientID             *uuid.UUID
	UnregisteredPatientID *uuid.UUID
	DoctorID              uuid.UUID
	OrganizationID        uuid.UUID
	Concept               string
	Price                 decimal.Decimal
	TaxRate               decimal.Decimal
	Currency              string
	ExchangeRate          decimal.Decimal
}

// NewInvoice computes the amounts for a fresh invoice. Taxes are rounded to cents.
func NewInvoice(c Charge, now time.Time) *Invoice {
	subtotal := c.Price
	taxes := c.Price.Mul(c.TaxRate).Round(2)

	return &Invoice{
		ID:                    uuid.New(),
		AppointmentID:         c.AppointmentID,
		PatientID:             c.PatientID,
		UnregisteredPatientID: c.UnregisteredPatientID,
		DoctorID:              c.DoctorID,
		OrganizationID:        c.OrganizationID,
		Concept:               c.Concept,
		Subtotal:              subtotal,
		Taxes:                 taxes,
		Total:                 subtotal.Add(taxes),
		Currency:              c.Currency,
		ExchangeRate:          c.ExchangeRate,
		PaymentStatus:         PaymentPending,
		Status:                InvoiceIssued,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}
