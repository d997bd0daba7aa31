package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hackgods/practice-booking-engine/internal/identity"
	"github.com/hackgods/practice-booking-engine/internal/notification"
)

// Notifier records in-app notifications. It never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, rec notification.Record)
}

type Service struct {
	repo     Repository
	notifier Notifier
	log      *zap.Logger
}

func NewService(repo Repository, notifier Notifier, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		log:      log,
	}
}

// canRead applies tenant filtering. Principals outside the tenant get
// ErrInvoiceNotFound so invoice ids cannot be probed.
func canRead(p identity.Principal, inv *Invoice) bool {
	if p.Role == identity.RolePatient {
		return inv.PatientID != nil && *inv.PatientID == p.UserID
	}
	if p.Role == identity.RoleDoctor && p.UserID == inv.DoctorID {
		return true
	}
	return p.InOrganization(inv.OrganizationID)
}

func isOwnerDoctor(p identity.Principal, inv *Invoice) bool {
	return p.Role == identity.RoleDoctor && p.UserID == inv.DoctorID
}

func (s *Service) load(ctx context.Context, p identity.Principal, id uuid.UUID) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	if !canRead(p, inv) {
		return nil, ErrInvoiceNotFound
	}
	return inv, nil
}

// Get returns the invoice with its adjustment history.
func (s *Service) Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*Invoice, error) {
	inv, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	adjustments, err := s.repo.ListAdjustments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list adjustments: %w", err)
	}
	inv.Adjustments = adjustments
	return inv, nil
}

// SubmitPayment records a payment reference and moves the invoice to
// pendiente_verificacion. Anyone who can read the invoice may submit.
func (s *Service) SubmitPayment(ctx context.Context, p identity.Principal, id uuid.UUID, reference string) (*Invoice, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrPaymentReferenceEmpty
	}

	inv, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if inv.Status == InvoiceVoided {
		return nil, ErrInvoiceVoided
	}
	if !CanTransition(inv.PaymentStatus, PaymentAwaitingVerification) {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdatePayment(ctx, id, inv.PaymentStatus, PaymentUpdate{
		To:        PaymentAwaitingVerification,
		Reference: &reference,
	})
	if err != nil {
		return nil, s.guardErr(err, "submit payment")
	}

	s.log.Info("payment submitted",
		zap.String("invoice_id", id.String()),
		zap.String("principal_id", p.UserID.String()),
	)

	s.notifier.Notify(ctx, notification.Record{
		UserID:         updated.DoctorID,
		OrganizationID: updated.OrganizationID,
		Type:           notification.TypePaymentSubmitted,
		Title:          "Pago pendiente de verificación",
		Message:        fmt.Sprintf("Se registró un pago para %s (%s %s).", updated.Concept, updated.Total.StringFixed(2), updated.Currency),
		Payload: map[string]any{
			"invoiceId":     updated.ID.String(),
			"appointmentId": updated.AppointmentID.String(),
			"reference":     reference,
		},
	})

	return updated, nil
}

// Verify approves or rejects a submitted payment. Only the owning doctor may do it.
func (s *Service) Verify(ctx context.Context, p identity.Principal, id uuid.UUID, approve bool, note string) (*Invoice, error) {
	inv, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !isOwnerDoctor(p, inv) {
		return nil, ErrOnlyOwnerDoctor
	}
	if inv.Status == InvoiceVoided {
		return nil, ErrInvoiceVoided
	}

	to := PaymentRejected
	if approve {
		to = PaymentPaid
	}
	if !CanTransition(inv.PaymentStatus, to) {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	verifier := p.UserID
	upd := PaymentUpdate{
		To:         to,
		VerifiedBy: &verifier,
		VerifiedAt: &now,
	}
	if note = strings.TrimSpace(note); note != "" {
		upd.VerificationNote = &note
	}

	updated, err := s.repo.UpdatePayment(ctx, id, inv.PaymentStatus, upd)
	if err != nil {
		return nil, s.guardErr(err, "verify payment")
	}
	updated.BookedBy = inv.BookedBy

	s.log.Info("payment verified",
		zap.String("invoice_id", id.String()),
		zap.String("status", string(to)),
	)

	if inv.BookedBy != nil {
		typ, title := notification.TypePaymentVerified, "Pago verificado"
		if !approve {
			typ, title = notification.TypePaymentRejected, "Pago rechazado"
		}
		s.notifier.Notify(ctx, notification.Record{
			UserID:         *inv.BookedBy,
			OrganizationID: inv.OrganizationID,
			Type:           typ,
			Title:          title,
			Message:        fmt.Sprintf("El pago de %s quedó %s.", inv.Concept, to),
			Payload: map[string]any{
				"invoiceId":     inv.ID.String(),
				"appointmentId": inv.AppointmentID.String(),
				"estadoPago":    string(to),
			},
		})
	}

	return updated, nil
}

// Adjust changes the total of a pending invoice and keeps the delta with its
// reason. Both writes commit together.
func (s *Service) Adjust(ctx context.Context, p identity.Principal, id uuid.UUID, newTotal decimal.Decimal, reason string) (*Invoice, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrAdjustReasonRequired
	}
	if newTotal.IsNegative() {
		return nil, ErrNegativeTotal
	}

	inv, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !isOwnerDoctor(p, inv) {
		return nil, ErrOnlyOwnerDoctor
	}
	if !inv.Adjustable() {
		return nil, ErrNotAdjustable
	}

	newTotal = newTotal.Round(2)
	adj := &Adjustment{
		ID:            uuid.New(),
		InvoiceID:     inv.ID,
		PreviousTotal: inv.Total,
		NewTotal:      newTotal,
		Delta:         newTotal.Sub(inv.Total),
		Reason:        reason,
		AdjustedBy:    p.UserID,
		CreatedAt:     time.Now().UTC(),
	}

	var updated *Invoice
	err = s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		updated, err = tx.UpdateTotal(ctx, inv.ID, inv.PaymentStatus, newTotal)
		if err != nil {
			return err
		}
		return tx.InsertAdjustment(ctx, adj)
	})
	if err != nil {
		return nil, s.guardErr(err, "adjust invoice")
	}

	s.log.Info("invoice adjusted",
		zap.String("invoice_id", id.String()),
		zap.String("delta", adj.Delta.String()),
	)

	updated.Adjustments = []Adjustment{*adj}
	return updated, nil
}

// Reissue creates a new pending invoice from a rejected one. The rejected
// invoice is kept as it is.
func (s *Service) Reissue(ctx context.Context, p identity.Principal, id uuid.UUID) (*Invoice, error) {
	orig, err := s.load(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if p.Role == identity.RolePatient {
		return nil, ErrOnlyOwnerDoctor
	}
	if orig.Status == InvoiceVoided {
		return nil, ErrInvoiceVoided
	}
	if orig.PaymentStatus != PaymentRejected {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	origID := orig.ID
	next := &Invoice{
		ID:                    uuid.New(),
		AppointmentID:         orig.AppointmentID,
		PatientID:             orig.PatientID,
		UnregisteredPatientID: orig.UnregisteredPatientID,
		DoctorID:              orig.DoctorID,
		OrganizationID:        orig.OrganizationID,
		Concept:               orig.Concept,
		Subtotal:              orig.Subtotal,
		Taxes:                 orig.Taxes,
		Total:                 orig.Total,
		Currency:              orig.Currency,
		ExchangeRate:          orig.ExchangeRate,
		PaymentStatus:         PaymentPending,
		Status:                InvoiceIssued,
		ReissuedFromID:        &origID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if err := s.repo.CreateInvoice(ctx, next); err != nil {
		if errors.Is(err, ErrAlreadyReissued) {
			return nil, err
		}
		return nil, fmt.Errorf("reissue invoice: %w", err)
	}

	s.log.Info("invoice reissued",
		zap.String("invoice_id", next.ID.String()),
		zap.String("reissued_from_id", orig.ID.String()),
	)

	return next, nil
}

// guardErr maps a lost conditional update to a conflict.
func (s *Service) guardErr(err error, op string) error {
	if errors.Is(err, ErrInvoiceNotFound) {
		return ErrStaleInvoice
	}
	return fmt.Errorf("%s: %w", op, err)
}
