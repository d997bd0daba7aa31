package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hackgods/practice-booking-engine/internal/db"
)

const reissuedFromKey = "invoices_reissued_from_key"

const invoiceColumns = `
	i.id, i.appointment_id, i.patient_id, i.unregistered_patient_id, i.doctor_id, i.organization_id,
	i.concept, i.subtotal, i.impuestos, i.total, i.currency, i.exchange_rate,
	i.estado_pago, i.estado_factura, i.payment_reference, i.verified_by, i.verified_at,
	i.verification_note, i.reissued_from_id, i.created_at, i.updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanInvoice(row pgx.Row, extra ...any) (*Invoice, error) {
	var inv Invoice
	dest := []any{
		&inv.ID,
		&inv.AppointmentID,
		&inv.PatientID,
		&inv.UnregisteredPatientID,
		&inv.DoctorID,
		&inv.OrganizationID,
		&inv.Concept,
		&inv.Subtotal,
		&inv.Taxes,
		&inv.Total,
		&inv.Currency,
		&inv.ExchangeRate,
		&inv.PaymentStatus,
		&inv.Status,
		&inv.PaymentReference,
		&inv.VerifiedBy,
		&inv.VerifiedAt,
		&inv.VerificationNote,
		&inv.ReissuedFromID,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// InsertInvoice writes inv through q, which may be a pool or an open transaction.
func InsertInvoice(ctx context.Context, q db.DBTX, inv *Invoice) error {
	_, err := q.Exec(ctx, `
		INSERT INTO invoices (
			id, appointment_id, patient_id, unregistered_patient_id, doctor_id, organization_id,
			concept, subtotal, impuestos, total, currency, exchange_rate,
			estado_pago, estado_factura, reissued_from_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
	`,
		inv.ID, inv.AppointmentID, inv.PatientID, inv.UnregisteredPatientID, inv.DoctorID, inv.OrganizationID,
		inv.Concept, inv.Subtotal, inv.Taxes, inv.Total, inv.Currency, inv.ExchangeRate,
		inv.PaymentStatus, inv.Status, inv.ReissuedFromID, inv.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err, reissuedFromKey) {
			return ErrAlreadyReissued
		}
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// VoidUnpaidForAppointment marks every unpaid invoice of the appointment as anulada.
func VoidUnpaidForAppointment(ctx context.Context, q db.DBTX, appointmentID uuid.UUID) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE invoices
		SET estado_factura = 'anulada',
		    updated_at = now()
		WHERE appointment_id = $1
		  AND estado_factura = 'emitida'
		  AND estado_pago <> 'pagada'
	`, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("void invoices: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Interface methods

func (r *PgRepository) GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	var bookedBy *uuid.UUID
	row := r.pool.QueryRow(ctx, `
		SELECT `+invoiceColumns+`, a.created_by_role_user_id
		FROM invoices i
		JOIN appointments a ON a.id = i.appointment_id
		WHERE i.id = $1
	`, id)
	inv, err := scanInvoice(row, &bookedBy)
	if err != nil {
		return nil, err
	}
	inv.BookedBy = bookedBy
	return inv, nil
}

func (r *PgRepository) ListAdjustments(ctx context.Context, invoiceID uuid.UUID) ([]Adjustment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, invoice_id, previous_total, new_total, delta, reason, adjusted_by, created_at
		FROM invoice_adjustments
		WHERE invoice_id = $1
		ORDER BY created_at ASC
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Adjustment
	for rows.Next() {
		var a Adjustment
		if err := rows.Scan(&a.ID, &a.InvoiceID, &a.PreviousTotal, &a.NewTotal, &a.Delta, &a.Reason, &a.AdjustedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) UpdatePayment(ctx context.Context, id uuid.UUID, from PaymentStatus, upd PaymentUpdate) (*Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE invoices i
		SET estado_pago = $3,
		    payment_reference = COALESCE($4, i.payment_reference),
		    verified_by = COALESCE($5, i.verified_by),
		    verified_at = COALESCE($6, i.verified_at),
		    verification_note = COALESCE($7, i.verification_note),
		    updated_at = now()
		WHERE i.id = $1
		  AND i.estado_pago = $2
		  AND i.estado_factura = 'emitida'
		RETURNING `+invoiceColumns,
		id, from, upd.To, upd.Reference, upd.VerifiedBy, upd.VerifiedAt, upd.VerificationNote)
	return scanInvoice(row)
}

func (r *PgRepository) CreateInvoice(ctx context.Context, inv *Invoice) error {
	return InsertInvoice(ctx, r.pool, inv)
}

func (r *PgRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

type pgTx struct {
	q db.DBTX
}

func (t *pgTx) UpdateTotal(ctx context.Context, id uuid.UUID, from PaymentStatus, total decimal.Decimal) (*Invoice, error) {
	row := t.q.QueryRow(ctx, `
		UPDATE invoices i
		SET total = $3,
		    updated_at = now()
		WHERE i.id = $1
		  AND i.estado_pago = $2
		  AND i.estado_factura = 'emitida'
		RETURNING `+invoiceColumns,
		id, from, total)
	return scanInvoice(row)
}

func (t *pgTx) InsertAdjustment(ctx context.Context, adj *Adjustment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO invoice_adjustments (id, invoice_id, previous_total, new_total, delta, reason, adjusted_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, adj.ID, adj.InvoiceID, adj.PreviousTotal, adj.NewTotal, adj.Delta, adj.Reason, adj.AdjustedBy, adj.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return nil
}
