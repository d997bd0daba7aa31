package consultation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
	"github.com/hackgods/practice-booking-engine/internal/appointment"
)

var (
	ErrConsultationNotFound = apperr.NotFound("consultation_not_found", "consultation not found")
	ErrNotCompletable       = apperr.Conflict("appointment_not_completable", "only confirmed or in-progress appointments can be completed")
	ErrOnlyOwnerDoctor      = apperr.Forbidden("owner_doctor_required", "only the appointment's doctor can complete it")
)

type Repository interface {
	// GetDetail is the one place the consultation join is normalized.
	GetDetail(ctx context.Context, consultationID uuid.UUID) (*Detail, error)

	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	// CompleteAppointment moves the appointment to COMPLETADA if it is still
	// in from, otherwise it returns appointment.ErrAppointmentNotFound.
	CompleteAppointment(ctx context.Context, appointmentID uuid.UUID, from appointment.Status) error
	UpsertConsultation(ctx context.Context, c *Consultation) (*Consultation, error)
	EnqueueReportDelivery(ctx context.Context, consultationID uuid.UUID, scheduledAt time.Time) (uuid.UUID, error)
}
