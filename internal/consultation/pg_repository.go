package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/practice-booking-engine/internal/appointment"
	"github.com/hackgods/practice-booking-engine/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) GetDetail(ctx context.Context, consultationID uuid.UUID) (*Detail, error) {
	var (
		d         Detail
		cols      patientColumns
		reportURL *string
	)

	err := r.pool.QueryRow(ctx, `
		SELECT c.id, c.appointment_id, c.organization_id, c.report_url,
		       p.id, p.full_name, p.email,
		       u.id, u.full_name, u.email,
		       d.full_name, o.name
		FROM consultations c
		LEFT JOIN patients p ON p.id = c.patient_id
		LEFT JOIN unregistered_patients u ON u.id = c.unregistered_patient_id
		JOIN users d ON d.id = c.doctor_id
		JOIN organizations o ON o.id = c.organization_id
		WHERE c.id = $1
	`, consultationID).Scan(
		&d.ConsultationID,
		&d.AppointmentID,
		&d.OrganizationID,
		&reportURL,
		&cols.PatientID,
		&cols.PatientName,
		&cols.PatientEmail,
		&cols.UnregisteredID,
		&cols.UnregisteredName,
		&cols.UnregisteredEmail,
		&d.DoctorName,
		&d.OrganizationName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	d.Registered, d.PatientName, d.PatientEmail = normalizePatient(cols)
	d.ReportURL = deref(reportURL)
	return &d, nil
}

func (r *PgRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{q: tx})
	})
}

type pgTx struct {
	q db.DBTX
}

func (t *pgTx) CompleteAppointment(ctx context.Context, appointmentID uuid.UUID, from appointment.Status) error {
	tag, err := t.q.Exec(ctx, `
		UPDATE appointments
		SET status = 'COMPLETADA',
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
	`, appointmentID, from)
	if err != nil {
		return fmt.Errorf("complete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return appointment.ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) UpsertConsultation(ctx context.Context, c *Consultation) (*Consultation, error) {
	var out Consultation
	err := t.q.QueryRow(ctx, `
		INSERT INTO consultations (
			id, appointment_id, patient_id, unregistered_patient_id, doctor_id, organization_id,
			report_url, completed_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (appointment_id) DO UPDATE
		SET report_url = COALESCE(EXCLUDED.report_url, consultations.report_url),
		    completed_at = EXCLUDED.completed_at
		RETURNING id, appointment_id, patient_id, unregistered_patient_id, doctor_id, organization_id,
		          report_url, completed_at, created_at
	`,
		c.ID, c.AppointmentID, c.PatientID, c.UnregisteredPatientID, c.DoctorID, c.OrganizationID,
		c.ReportURL, c.CompletedAt, c.CreatedAt,
	).Scan(
		&out.ID,
		&out.AppointmentID,
		&out.PatientID,
		&out.UnregisteredPatientID,
		&out.DoctorID,
		&out.OrganizationID,
		&out.ReportURL,
		&out.CompletedAt,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert consultation: %w", err)
	}
	return &out, nil
}

func (t *pgTx) EnqueueReportDelivery(ctx context.Context, consultationID uuid.UUID, scheduledAt time.Time) (uuid.UUID, error) {
	id := uuid.New()
	_, err := t.q.Exec(ctx, `
		INSERT INTO report_delivery_queue (id, consultation_id, scheduled_at, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 0, now(), now())
	`, id, consultationID, scheduledAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("enqueue report delivery: %w", err)
	}
	return id, nil
}
