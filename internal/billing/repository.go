package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
)

var (
	ErrInvoiceNotFound       = apperr.NotFound("invoice_not_found", "invoice not found")
	ErrInvalidTransition     = apperr.Conflict("invalid_payment_transition", "payment status does not allow this action")
	ErrStaleInvoice          = apperr.Conflict("invoice_changed", "invoice was modified concurrently, reload and retry")
	ErrInvoiceVoided         = apperr.Conflict("invoice_voided", "invoice is voided")
	ErrNotAdjustable         = apperr.Conflict("invoice_not_adjustable", "only pending invoices can be adjusted")
	ErrAlreadyReissued       = apperr.Conflict("invoice_already_reissued", "invoice has already been reissued")
	ErrOnlyOwnerDoctor       = apperr.Forbidden("owner_doctor_required", "only the doctor who owns the invoice can do this")
	ErrAdjustReasonRequired  = apperr.Validation("adjustment_reason_required", "adjustment reason is required")
	ErrNegativeTotal         = apperr.Validation("negative_total", "total cannot be negative")
	ErrPaymentReferenceEmpty = apperr.Validation("payment_reference_required", "payment reference is required")
)

// PaymentUpdate carries the columns written by a payment transition.
type PaymentUpdate struct {
	To               PaymentStatus
	Reference        *string
	VerifiedBy       *uuid.UUID
	VerifiedAt       *time.Time
	VerificationNote *string
}

type Repository interface {
	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	ListAdjustments(ctx context.Context, invoiceID uuid.UUID) ([]Adjustment, error)

	// UpdatePayment moves the invoice only if it is still in from. A row that
	// moved on returns ErrInvoiceNotFound.
	UpdatePayment(ctx context.Context, id uuid.UUID, from PaymentStatus, upd PaymentUpdate) (*Invoice, error)

	// CreateInvoice inserts a standalone invoice (reissue).
	CreateInvoice(ctx context.Context, inv *Invoice) error

	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of writes that must commit together.
type Tx interface {
	UpdateTotal(ctx context.Context, id uuid.UUID, from PaymentStatus, total decimal.Decimal) (*Invoice, error)
	InsertAdjustment(ctx context.Context, adj *Adjustment) error
}
