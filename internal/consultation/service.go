package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/practice-booking-engine/internal/appointment"
	"github.com/hackgods/practice-booking-engine/internal/identity"
)

// AppointmentReader is satisfied by *appointment.Service.
type AppointmentReader interface {
	Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*appointment.Appointment, error)
}

type Service struct {
	repo          Repository
	appointments  AppointmentReader
	deliveryDelay time.Duration
	log           *zap.Logger
}

func NewService(repo Repository, appointments AppointmentReader, deliveryDelay time.Duration, log *zap.Logger) *Service {
	return &Service{
		repo:          repo,
		appointments:  appointments,
		deliveryDelay: deliveryDelay,
		log:           log,
	}
}

// Complete closes the appointment, stores the consultation and, when a report
// is attached, queues its delivery. All three writes commit together.
func (s *Service) Complete(ctx context.Context, p identity.Principal, appointmentID uuid.UUID, reportURL string) (*Completion, error) {
	appt, err := s.appointments.Get(ctx, p, appointmentID)
	if err != nil {
		return nil, err
	}
	if p.Role != identity.RoleDoctor || p.UserID != appt.DoctorID {
		return nil, ErrOnlyOwnerDoctor
	}
	if appt.Status != appointment.StatusInProgress && appt.Status != appointment.StatusConfirmed {
		return nil, ErrNotCompletable
	}

	now := time.Now().UTC()
	c := &Consultation{
		ID:                    uuid.New(),
		AppointmentID:         appt.ID,
		PatientID:             appt.PatientID,
		UnregisteredPatientID: appt.UnregisteredPatientID,
		DoctorID:              appt.DoctorID,
		OrganizationID:        appt.OrganizationID,
		CompletedAt:           &now,
		CreatedAt:             now,
	}
	if reportURL = strings.TrimSpace(reportURL); reportURL != "" {
		c.ReportURL = &reportURL
	}

	out := &Completion{}
	err = s.repo.InTx(ctx, func(tx Tx) error {
		if err := tx.CompleteAppointment(ctx, appt.ID, appt.Status); err != nil {
			return err
		}
		saved, err := tx.UpsertConsultation(ctx, c)
		if err != nil {
			return err
		}
		out.Consultation = saved

		if saved.ReportURL == nil {
			return nil
		}
		due := now.Add(s.deliveryDelay)
		id, err := tx.EnqueueReportDelivery(ctx, saved.ID, due)
		if err != nil {
			return err
		}
		out.DeliveryID, out.DeliveryDueAt, out.DeliveryQueued = &id, &due, true
		return nil
	})
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return nil, appointment.ErrStaleAppointment
		}
		return nil, fmt.Errorf("complete consultation: %w", err)
	}

	s.log.Info("consultation completed",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("consultation_id", out.Consultation.ID.String()),
		zap.Bool("delivery_queued", out.DeliveryQueued),
	)
	return out, nil
}
