package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/practice-booking-engine/internal/billing"
	"github.com/hackgods/practice-booking-engine/internal/db"
)

const activeSlotKey = "appointments_doctor_slot_active_key"

const appointmentColumns = `
	id, patient_id, unregistered_patient_id, doctor_id, organization_id,
	scheduled_at, duration_minutes, status, reason, location, referral_source,
	service_name, service_price, service_currency, service_tax_rate,
	created_by_role_user_id, cancel_reason, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.UnregisteredPatientID,
		&a.DoctorID,
		&a.OrganizationID,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&a.Status,
		&a.Reason,
		&a.Location,
		&a.ReferralSource,
		&a.Service.Name,
		&a.Service.Price,
		&a.Service.Currency,
		&a.Service.TaxRate,
		&a.CreatedByRoleUserID,
		&a.CancelReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// Interface methods

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id, full_name, email
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.FullName, &p.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) GetUnregisteredPatient(ctx context.Context, id uuid.UUID) (*UnregisteredPatient, error) {
	var p UnregisteredPatient
	err := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, full_name, email, phone
		FROM unregistered_patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.OrganizationID, &p.FullName, &p.Email, &p.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnregisteredPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveForDoctor(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		  AND status IN ('SCHEDULED', 'CONFIRMADA', 'IN_PROGRESS')
		ORDER BY scheduled_at ASC
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

type pgTx struct {
	q db.DBTX
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *Appointment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_id, unregistered_patient_id, doctor_id, organization_id,
			scheduled_at, duration_minutes, status, reason, location, referral_source,
			service_name, service_price, service_currency, service_tax_rate,
			created_by_role_user_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
	`,
		a.ID, a.PatientID, a.UnregisteredPatientID, a.DoctorID, a.OrganizationID,
		a.ScheduledAt, a.DurationMinutes, a.Status, a.Reason, a.Location, a.ReferralSource,
		a.Service.Name, a.Service.Price, a.Service.Currency, a.Service.TaxRate,
		a.CreatedByRoleUserID, a.CreatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err, activeSlotKey) {
			return ErrSlotConflict
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) InsertInvoice(ctx context.Context, inv *billing.Invoice) error {
	return billing.InsertInvoice(ctx, t.q, inv)
}

func (t *pgTx) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, cancelReason *string) (*Appointment, error) {
	row := t.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancel_reason = COALESCE($4, cancel_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns,
		id, to, from, cancelReason)

	a, err := scanAppointment(row)
	if err != nil && db.IsUniqueViolation(err, activeSlotKey) {
		return nil, ErrSlotConflict
	}
	return a, err
}

func (t *pgTx) Reschedule(ctx context.Context, id uuid.UUID, from Status, start time.Time, durationMinutes int) (*Appointment, error) {
	row := t.q.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $3,
		    duration_minutes = $4,
		    status = 'SCHEDULED',
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns,
		id, from, start, durationMinutes)

	a, err := scanAppointment(row)
	if err != nil && db.IsUniqueViolation(err, activeSlotKey) {
		return nil, ErrSlotConflict
	}
	return a, err
}

func (t *pgTx) VoidUnpaidInvoices(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	return billing.VoidUnpaidForAppointment(ctx, t.q, appointmentID)
}
