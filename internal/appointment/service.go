package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
	"github.com/hackgods/practice-booking-engine/internal/billing"
	"github.com/hackgods/practice-booking-engine/internal/config"
	"github.com/hackgods/practice-booking-engine/internal/identity"
	"github.com/hackgods/practice-booking-engine/internal/notification"
	redisclient "github.com/hackgods/practice-booking-engine/internal/redis"
)

type TenantResolver interface {
	Resolve(ctx context.Context, p identity.Principal, in identity.ResolveInput) (identity.Resolution, error)
}

type RateSource interface {
	Rate(ctx context.Context, currency string) (decimal.Decimal, error)
}

// Notifier records in-app notifications. It never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, rec notification.Record)
}

const (
	lockRetryInterval = 25 * time.Millisecond
	defaultLockWait   = 2 * time.Second
)

type Service struct {
	repo     Repository
	resolver TenantResolver
	locker   redisclient.Locker
	rates    RateSource
	notifier Notifier
	cfg      config.Config
	loc      *time.Location
	log      *zap.Logger
}

func NewService(
	repo Repository,
	resolver TenantResolver,
	locker redisclient.Locker,
	rates RateSource,
	notifier Notifier,
	cfg config.Config,
	log *zap.Logger,
) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		locker:   locker,
		rates:    rates,
		notifier: notifier,
		cfg:      cfg,
		loc:      cfg.Location(),
		log:      log,
	}
}

// Book creates an appointment and its invoice in one transaction. The
// doctor's calendar is locked from the conflict check until commit, so two
// requests for the same slot cannot both pass the check.
func (s *Service) Book(ctx context.Context, p identity.Principal, req BookingRequest) (*BookingResult, error) {
	if err := req.normalize(s.cfg.DefaultCurrency); err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, p, identity.ResolveInput{
		DoctorID:            req.DoctorID,
		OrganizationID:      req.OrganizationID,
		CreatedByRoleUserID: req.CreatedByRoleUserID,
	})
	if err != nil {
		return nil, err
	}
	tenant := res.Tenant

	if p.Role == identity.RolePatient && (req.Patient.PatientID == nil || *req.Patient.PatientID != p.UserID) {
		return nil, ErrPatientMismatch
	}

	patientName, err := s.checkPatient(ctx, req.Patient, tenant.OrganizationID)
	if err != nil {
		return nil, err
	}

	rate, err := s.rates.Rate(ctx, req.Service.Currency)
	if err != nil {
		if !apperr.Is(err, apperr.KindTransient) {
			err = apperr.Wrap(apperr.KindTransient, "exchange_rate_unavailable", "exchange rate lookup failed", err)
		}
		return nil, err
	}

	now := time.Now().UTC()
	appt := &Appointment{
		ID:                  uuid.New(),
		PatientRef:          req.Patient,
		DoctorID:            tenant.DoctorID,
		OrganizationID:      tenant.OrganizationID,
		ScheduledAt:         req.ScheduledAt.UTC(),
		DurationMinutes:     req.DurationMinutes,
		Status:              StatusScheduled,
		Reason:              trimmed(req.Reason),
		Location:            trimmed(req.Location),
		ReferralSource:      trimmed(req.ReferralSource),
		Service:             *req.Service,
		CreatedByRoleUserID: res.CreatedByRoleUserID,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	inv := billing.NewInvoice(billing.Charge{
		AppointmentID:         appt.ID,
		PatientID:             appt.PatientID,
		UnregisteredPatientID: appt.UnregisteredPatientID,
		DoctorID:              appt.DoctorID,
		OrganizationID:        appt.OrganizationID,
		Concept:               appt.Service.Name,
		Price:                 appt.Service.Price,
		TaxRate:               appt.Service.TaxRate,
		Currency:              appt.Service.Currency,
		ExchangeRate:          rate,
	}, now)

	err = s.withDoctorLock(ctx, tenant.DoctorID, func(lockCtx context.Context) error {
		if _, err := s.CheckConflict(lockCtx, tenant.DoctorID, appt.ScheduledAt, nil); err != nil {
			return err
		}
		return s.repo.InTx(lockCtx, func(tx Tx) error {
			if err := tx.InsertAppointment(lockCtx, appt); err != nil {
				return err
			}
			return tx.InsertInvoice(lockCtx, inv)
		})
	})
	if err != nil {
		return nil, s.wrapWriteErr(err, "book appointment")
	}

	s.log.Info("appointment booked",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("invoice_id", inv.ID.String()),
		zap.String("doctor_id", appt.DoctorID.String()),
		zap.Time("scheduled_at", appt.ScheduledAt),
		zap.Bool("delegated", appt.CreatedByRoleUserID != nil),
	)

	if appt.Registered() {
		s.notifier.Notify(ctx, notification.Record{
			UserID:         appt.DoctorID,
			OrganizationID: appt.OrganizationID,
			Type:           notification.TypeAppointmentCreated,
			Title:          "Nueva cita agendada",
			Message: fmt.Sprintf("%s agendó %s para el %s.",
				patientName, appt.Service.Name, appt.ScheduledAt.In(s.loc).Format("02/01/2006 15:04")),
			Payload: map[string]any{
				"appointmentId": appt.ID.String(),
				"invoiceId":     inv.ID.String(),
				"patientId":     appt.PatientID.String(),
				"scheduledAt":   appt.ScheduledAt.Format(time.RFC3339),
			},
			SendEmailRequested: s.cfg.NotifyEmailOnBooking,
		})
	}

	return &BookingResult{
		Appointment:    appt,
		InvoiceID:      inv.ID,
		BillingCreated: true,
	}, nil
}

// CheckConflict loads the doctor's active appointments for the calendar day
// of start and returns ErrSlotConflict with the clashing appointment if any.
func (s *Service) CheckConflict(ctx context.Context, doctorID uuid.UUID, start time.Time, exclude *uuid.UUID) (*Appointment, error) {
	from, to := dayBounds(start, s.loc)
	existing, err := s.repo.ListActiveForDoctor(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load doctor schedule: %w", err)
	}
	if clash, ok := FindConflict(existing, start, exclude); ok {
		s.log.Debug("schedule conflict",
			zap.String("doctor_id", doctorID.String()),
			zap.String("existing_id", clash.ID.String()),
			zap.Time("requested", start),
		)
		return clash, ErrSlotConflict
	}
	return nil, nil
}

// Get returns the appointment if the principal can see it.
func (s *Service) Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !canAccess(p, a) {
		return nil, ErrAppointmentNotFound
	}
	return a, nil
}

// Reschedule moves the appointment to a new start and puts it back in SCHEDULED.
// A zero duration keeps the current one.
func (s *Service) Reschedule(ctx context.Context, p identity.Principal, id uuid.UUID, start time.Time, durationMinutes int) (*Appointment, error) {
	if start.IsZero() {
		return nil, ErrScheduledAtRequired
	}
	if durationMinutes < 0 {
		return nil, ErrInvalidDuration
	}

	a, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !canManage(p, a) {
		return nil, ErrManageForbidden
	}
	if a.Status != StatusScheduled && a.Status != StatusConfirmed && a.Status != StatusRescheduled {
		return nil, ErrInvalidTransition
	}
	if durationMinutes == 0 {
		durationMinutes = a.DurationMinutes
	}
	start = start.UTC()

	var updated *Appointment
	err = s.withDoctorLock(ctx, a.DoctorID, func(lockCtx context.Context) error {
		if _, err := s.CheckConflict(lockCtx, a.DoctorID, start, &a.ID); err != nil {
			return err
		}
		return s.repo.InTx(lockCtx, func(tx Tx) error {
			var err error
			updated, err = tx.Reschedule(lockCtx, a.ID, a.Status, start, durationMinutes)
			return err
		})
	})
	if err != nil {
		return nil, s.wrapWriteErr(err, "reschedule appointment")
	}

	s.log.Info("appointment rescheduled",
		zap.String("appointment_id", a.ID.String()),
		zap.Time("from", a.ScheduledAt),
		zap.Time("to", start),
	)
	s.notifyDoctor(ctx, p, updated, notification.TypeAppointmentRescheduled, "Cita reagendada",
		fmt.Sprintf("La cita de %s se movió al %s.", updated.Service.Name, start.In(s.loc).Format("02/01/2006 15:04")))

	return updated, nil
}

// Cancel marks the appointment CANCELADA and voids its unpaid invoices in
// the same transaction. Patients may cancel their own appointments.
func (s *Service) Cancel(ctx context.Context, p identity.Principal, id uuid.UUID, reason string) (*Appointment, error) {
	a, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, p, a, reason)
}

func (s *Service) cancel(ctx context.Context, p identity.Principal, a *Appointment, reason string) (*Appointment, error) {
	if !CanTransition(a.Status, StatusCancelled) {
		return nil, ErrInvalidTransition
	}

	var updated *Appointment
	var voided int64
	err := s.repo.InTx(ctx, func(tx Tx) error {
		var err error
		updated, err = tx.UpdateStatus(ctx, a.ID, a.Status, StatusCancelled, trimmed(&reason))
		if err != nil {
			return err
		}
		voided, err = tx.VoidUnpaidInvoices(ctx, a.ID)
		return err
	})
	if err != nil {
		return nil, s.wrapWriteErr(err, "cancel appointment")
	}

	s.log.Info("appointment cancelled",
		zap.String("appointment_id", a.ID.String()),
		zap.Int64("invoices_voided", voided),
	)
	s.notifyDoctor(ctx, p, updated, notification.TypeAppointmentCancelled, "Cita cancelada",
		fmt.Sprintf("La cita de %s del %s fue cancelada.", updated.Service.Name, updated.ScheduledAt.In(s.loc).Format("02/01/2006 15:04")))

	return updated, nil
}

// Transition applies a status change from the transition table. Moving back
// into an active status re-checks the doctor's calendar.
func (s *Service) Transition(ctx context.Context, p identity.Principal, id uuid.UUID, to Status) (*Appointment, error) {
	if !to.Valid() {
		return nil, ErrInvalidStatus
	}

	a, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if to == StatusCancelled {
		return s.cancel(ctx, p, a, "")
	}
	if !canManage(p, a) {
		return nil, ErrManageForbidden
	}
	if !CanTransition(a.Status, to) {
		return nil, ErrInvalidTransition
	}

	update := func(ctx context.Context) (*Appointment, error) {
		var updated *Appointment
		err := s.repo.InTx(ctx, func(tx Tx) error {
			var err error
			updated, err = tx.UpdateStatus(ctx, a.ID, a.Status, to, nil)
			return err
		})
		return updated, err
	}

	var updated *Appointment
	if to.Active() && !a.Status.Active() {
		err = s.withDoctorLock(ctx, a.DoctorID, func(lockCtx context.Context) error {
			if _, err := s.CheckConflict(lockCtx, a.DoctorID, a.ScheduledAt, &a.ID); err != nil {
				return err
			}
			var err error
			updated, err = update(lockCtx)
			return err
		})
	} else {
		updated, err = update(ctx)
	}
	if err != nil {
		return nil, s.wrapWriteErr(err, "update appointment status")
	}

	s.log.Info("appointment status changed",
		zap.String("appointment_id", a.ID.String()),
		zap.String("from", string(a.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

// withDoctorLock waits up to cfg.LockWait for the doctor's calendar lock,
// polling every lockRetryInterval. Only a lock still held at the deadline is
// reported as ErrScheduleBusy.
func (s *Service) withDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	key := redisclient.DoctorScheduleKey(doctorID)
	wait := s.cfg.LockWait
	if wait <= 0 {
		wait = defaultLockWait
	}
	deadline := time.Now().Add(wait)

	for {
		err := s.locker.WithLock(ctx, key, fn)
		if !errors.Is(err, redisclient.ErrLockNotAcquired) {
			return err
		}
		if time.Now().Add(lockRetryInterval).After(deadline) {
			return ErrScheduleBusy
		}

		timer := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ErrScheduleBusy
		case <-timer.C:
		}
	}
}

func (s *Service) checkPatient(ctx context.Context, ref PatientRef, orgID uuid.UUID) (string, error) {
	if ref.PatientID != nil {
		patient, err := s.repo.GetPatient(ctx, *ref.PatientID)
		if err != nil {
			if errors.Is(err, ErrPatientNotFound) {
				return "", err
			}
			return "", fmt.Errorf("load patient: %w", err)
		}
		return patient.FullName, nil
	}

	patient, err := s.repo.GetUnregisteredPatient(ctx, *ref.UnregisteredPatientID)
	if err != nil {
		if errors.Is(err, ErrUnregisteredPatientNotFound) {
			return "", err
		}
		return "", fmt.Errorf("load unregistered patient: %w", err)
	}
	if patient.OrganizationID != orgID {
		return "", ErrUnregisteredPatientNotFound
	}
	return patient.FullName, nil
}

// wrapWriteErr keeps domain errors as they are and tags lock backend
// failures as transient.
func (s *Service) wrapWriteErr(err error, op string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if errors.Is(err, ErrAppointmentNotFound) {
			return ErrStaleAppointment
		}
		return err
	}
	if errors.Is(err, redisclient.ErrLockUnavailable) {
		return apperr.Wrap(apperr.KindTransient, "lock_unavailable", "scheduling lock is unavailable", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// notifyDoctor tells the doctor about a change someone else made.
func (s *Service) notifyDoctor(ctx context.Context, p identity.Principal, a *Appointment, typ notification.Type, title, msg string) {
	if p.UserID == a.DoctorID {
		return
	}
	s.notifier.Notify(ctx, notification.Record{
		UserID:         a.DoctorID,
		OrganizationID: a.OrganizationID,
		Type:           typ,
		Title:          title,
		Message:        msg,
		Payload: map[string]any{
			"appointmentId": a.ID.String(),
			"status":        string(a.Status),
			"scheduledAt":   a.ScheduledAt.Format(time.RFC3339),
		},
	})
}

func canAccess(p identity.Principal, a *Appointment) bool {
	if p.Role == identity.RolePatient {
		return a.PatientID != nil && *a.PatientID == p.UserID
	}
	if p.Role == identity.RoleDoctor && p.UserID == a.DoctorID {
		return true
	}
	return p.InOrganization(a.OrganizationID)
}

func canManage(p identity.Principal, a *Appointment) bool {
	return p.Role != identity.RolePatient && canAccess(p, a)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
