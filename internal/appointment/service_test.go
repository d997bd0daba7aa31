package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
	"github.com/hackgods/practice-booking-engine/internal/billing"
	"github.com/hackgods/practice-booking-engine/internal/config"
	"github.com/hackgods/practice-booking-engine/internal/identity"
	"github.com/hackgods/practice-booking-engine/internal/notification"
	redisclient "github.com/hackgods/practice-booking-engine/internal/redis"
)

type fixture struct {
	repo     *fakeRepo
	locker   *fakeLocker
	rates    *fakeRates
	notifier *recordingNotifier
	resolver *fakeResolver
	svc      *Service

	orgID     uuid.UUID
	doctorID  uuid.UUID
	patientID uuid.UUID
	guestID   uuid.UUID
	frontDesk identity.Principal
	doctor    identity.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:      newFakeRepo(),
		locker:    newFakeLocker(),
		rates:     &fakeRates{rates: map[string]decimal.Decimal{}},
		notifier:  &recordingNotifier{},
		orgID:     uuid.New(),
		doctorID:  uuid.New(),
		patientID: uuid.New(),
		guestID:   uuid.New(),
	}
	email := "ana@example.com"
	f.repo.patients[f.patientID] = &Patient{ID: f.patientID, FullName: "Ana Pérez", Email: &email}
	f.repo.unregistered[f.guestID] = &UnregisteredPatient{ID: f.guestID, OrganizationID: f.orgID, FullName: "Luis Gómez"}

	f.frontDesk = identity.Principal{UserID: uuid.New(), Role: identity.RoleFrontDesk, OrganizationID: &f.orgID}
	f.doctor = identity.Principal{UserID: f.doctorID, Role: identity.RoleDoctor, OrganizationID: &f.orgID}
	f.resolver = &fakeResolver{res: identity.Resolution{
		Tenant: identity.Tenant{DoctorID: f.doctorID, OrganizationID: f.orgID},
	}}

	f.svc = f.newService(f.notifier)
	return f
}

func (f *fixture) newService(n Notifier) *Service {
	cfg := config.Config{
		Timezone:             "UTC",
		DefaultCurrency:      "USD",
		NotifyEmailOnBooking: true,
		LockWait:             time.Second,
	}
	return NewService(f.repo, f.resolver, f.locker, f.rates, n, cfg, zap.NewNop())
}

func (f *fixture) request(start time.Time) BookingRequest {
	patientID := f.patientID
	return BookingRequest{
		DoctorID:        f.doctorID,
		OrganizationID:  f.orgID,
		Patient:         PatientRef{PatientID: &patientID},
		ScheduledAt:     start,
		DurationMinutes: 30,
		Service: &SelectedService{
			Name:     "Consulta",
			Price:    decimal.NewFromInt(50),
			Currency: "USD",
		},
	}
}

func (f *fixture) book(t *testing.T, start time.Time) *BookingResult {
	t.Helper()
	res, err := f.svc.Book(context.Background(), f.frontDesk, f.request(start))
	require.NoError(t, err)
	return res
}

func TestBook_Scenario1_CreatesAppointmentAndInvoice(t *testing.T) {
	f := newFixture(t)

	res := f.book(t, at("09:00"))

	assert.True(t, res.BillingCreated)
	assert.Equal(t, StatusScheduled, res.Appointment.Status)

	appts, invoices := f.repo.counts()
	assert.Equal(t, 1, appts)
	assert.Equal(t, 1, invoices)

	inv := f.repo.invoice(res.InvoiceID)
	assert.Equal(t, res.Appointment.ID, inv.AppointmentID)
	assert.Equal(t, "50.00", inv.Total.StringFixed(2))
	assert.Equal(t, billing.PaymentPending, inv.PaymentStatus)
	assert.Equal(t, billing.InvoiceIssued, inv.Status)
	assert.True(t, inv.ExchangeRate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, f.patientID, *inv.PatientID)
	assert.Nil(t, inv.UnregisteredPatientID)

	assert.Equal(t, "lock:doctor:"+f.doctorID.String(), f.locker.lastKey)
	assert.Empty(t, f.locker.held)
}

func TestBook_Scenario2_ConflictWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.book(t, at("09:00"))

	_, err := f.svc.Book(context.Background(), f.frontDesk, f.request(at("09:15")))
	require.ErrorIs(t, err, ErrSlotConflict)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	appts, invoices := f.repo.counts()
	assert.Equal(t, 1, appts)
	assert.Equal(t, 1, invoices)
}

func TestBook_Scenario3_OutsideExistingDuration(t *testing.T) {
	f := newFixture(t)
	f.book(t, at("09:00"))
	f.book(t, at("09:35"))

	appts, invoices := f.repo.counts()
	assert.Equal(t, 2, appts)
	assert.Equal(t, 2, invoices)
}

func TestBook_DefaultsDurationAndCurrency(t *testing.T) {
	f := newFixture(t)
	req := f.request(at("11:00"))
	req.DurationMinutes = 0
	req.Service.Currency = ""
	req.Service.TaxRate = decimal.RequireFromString("0.16")

	res, err := f.svc.Book(context.Background(), f.frontDesk, req)
	require.NoError(t, err)
	assert.Equal(t, DefaultDurationMinutes, res.Appointment.DurationMinutes)
	assert.Equal(t, "USD", res.Appointment.Service.Currency)

	inv := f.repo.invoice(res.InvoiceID)
	assert.Equal(t, "8.00", inv.Taxes.StringFixed(2))
	assert.Equal(t, "58.00", inv.Total.StringFixed(2))
}

func TestBook_ValidationWritesNothing(t *testing.T) {
	f := newFixture(t)
	other := uuid.New()

	cases := map[string]func(r *BookingRequest){
		"no patient":     func(r *BookingRequest) { r.Patient = PatientRef{} },
		"both patients":  func(r *BookingRequest) { r.Patient.UnregisteredPatientID = &other },
		"no service":     func(r *BookingRequest) { r.Service = nil },
		"blank service":  func(r *BookingRequest) { r.Service.Name = "  " },
		"negative price": func(r *BookingRequest) { r.Service.Price = decimal.NewFromInt(-1) },
		"bad currency":   func(r *BookingRequest) { r.Service.Currency = "DOLLARS" },
		"no start":       func(r *BookingRequest) { r.ScheduledAt = time.Time{} },
		"bad duration":   func(r *BookingRequest) { r.DurationMinutes = -5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := f.request(at("09:00"))
			mutate(&req)
			_, err := f.svc.Book(context.Background(), f.frontDesk, req)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}

	appts, invoices := f.repo.counts()
	assert.Zero(t, appts)
	assert.Zero(t, invoices)
}

func TestBook_MissingReferencesAreNotFound(t *testing.T) {
	f := newFixture(t)

	req := f.request(at("09:00"))
	missing := uuid.New()
	req.Patient = PatientRef{PatientID: &missing}
	_, err := f.svc.Book(context.Background(), f.frontDesk, req)
	assert.ErrorIs(t, err, ErrPatientNotFound)

	foreign := uuid.New()
	f.repo.unregistered[foreign] = &UnregisteredPatient{ID: foreign, OrganizationID: uuid.New(), FullName: "X"}
	req.Patient = PatientRef{UnregisteredPatientID: &foreign}
	_, err = f.svc.Book(context.Background(), f.frontDesk, req)
	assert.ErrorIs(t, err, ErrUnregisteredPatientNotFound)

	f.resolver.err = identity.ErrDoctorNotFound
	_, err = f.svc.Book(context.Background(), f.frontDesk, f.request(at("09:00")))
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	appts, _ := f.repo.counts()
	assert.Zero(t, appts)
}

func TestBook_RateFailureIsTransientAndWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.rates.err = errors.New("dial tcp: i/o timeout")

	_, err := f.svc.Book(context.Background(), f.frontDesk, f.request(at("09:00")))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTransient))

	appts, invoices := f.repo.counts()
	assert.Zero(t, appts)
	assert.Zero(t, invoices)
}

func TestBook_InvoiceFailureRollsBackAppointment(t *testing.T) {
	f := newFixture(t)
	f.repo.failInvoiceInsert = errors.New("connection reset")

	_, err := f.svc.Book(context.Background(), f.frontDesk, f.request(at("09:00")))
	require.Error(t, err)

	appts, invoices := f.repo.counts()
	assert.Zero(t, appts)
	assert.Zero(t, invoices)
	assert.Zero(t, f.notifier.count())
}

func TestBook_ExchangeRateIsSnapshotted(t *testing.T) {
	f := newFixture(t)
	f.rates.set("MXN", "17.05")

	req := f.request(at("09:00"))
	req.Service.Currency = "mxn"
	res, err := f.svc.Book(context.Background(), f.frontDesk, req)
	require.NoError(t, err)

	f.rates.set("MXN", "18.40")
	f.book(t, at("10:00"))

	inv := f.repo.invoice(res.InvoiceID)
	assert.Equal(t, "17.05", inv.ExchangeRate.String())
	assert.Equal(t, "MXN", inv.Currency)
}

func TestBook_LockBusyIsConflict(t *testing.T) {
	f := newFixture(t)
	f.locker.busy = true

	started := time.Now()
	_, err := f.svc.Book(context.Background(), f.frontDesk, f.request(at("09:00")))
	assert.ErrorIs(t, err, ErrScheduleBusy)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.GreaterOrEqual(t, time.Since(started), 900*time.Millisecond)
}

func TestBook_LockBusyStopsWaitingWhenContextEnds(t *testing.T) {
	f := newFixture(t)
	f.locker.busy = true

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	started := time.Now()
	_, err := f.svc.Book(ctx, f.frontDesk, f.request(at("09:00")))
	assert.ErrorIs(t, err, ErrScheduleBusy)
	assert.Less(t, time.Since(started), 500*time.Millisecond)
}

func TestBook_WaitsForLockHeldByAnotherWriter(t *testing.T) {
	f := newFixture(t)
	key := redisclient.DoctorScheduleKey(f.doctorID)
	ok, token, err := f.locker.TryLock(context.Background(), key, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(80 * time.Millisecond)
		_ = f.locker.Unlock(context.Background(), key, token)
	}()

	res, err := f.svc.Book(context.Background(), f.frontDesk, f.request(at("09:00")))
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, res.Appointment.Status)
}

func TestBook_LockBackendDownIsTransient(t *testing.T) {
	f := newFixture(t)
	f.locker.err = fmt.Errorf("acquire lock lock:doctor:x: %w: dial tcp 127.0.0.1:6379: connect: connection refused", redisclient.ErrLockUnavailable)

	_, err := f.svc.Book(context.Background(), f.frontDesk, f.request(at("09:00")))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindTransient))
	appts, _ := f.repo.counts()
	assert.Zero(t, appts)
}

func TestBook_NotifiesDoctorForRegisteredPatient(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, at("09:00"))

	require.Equal(t, 1, f.notifier.count())
	rec := f.notifier.records[0]
	assert.Equal(t, notification.TypeAppointmentCreated, rec.Type)
	assert.Equal(t, f.doctorID, rec.UserID)
	assert.Equal(t, f.orgID, rec.OrganizationID)
	assert.True(t, rec.SendEmailRequested)
	assert.Equal(t, res.Appointment.ID.String(), rec.Payload["appointmentId"])
	assert.Contains(t, rec.Message, "Ana Pérez")
}

func TestBook_UnregisteredPatientHasNoNotification(t *testing.T) {
	f := newFixture(t)
	req := f.request(at("09:00"))
	guest := f.guestID
	req.Patient = PatientRef{UnregisteredPatientID: &guest}

	res, err := f.svc.Book(context.Background(), f.frontDesk, req)
	require.NoError(t, err)
	assert.Nil(t, res.Appointment.PatientID)
	assert.Equal(t, guest, *res.Appointment.UnregisteredPatientID)
	assert.Zero(t, f.notifier.count())
}

func TestBook_NotificationFailureDoesNotAffectResult(t *testing.T) {
	f := newFixture(t)
	svc := f.newService(notification.NewEnqueuer(brokenNotificationRepo{}, zap.NewNop()))

	res, err := svc.Book(context.Background(), f.frontDesk, f.request(at("09:00")))
	require.NoError(t, err)
	assert.True(t, res.BillingCreated)

	appts, invoices := f.repo.counts()
	assert.Equal(t, 1, appts)
	assert.Equal(t, 1, invoices)
}

func TestBook_DelegatedBookingRecordsRoleUser(t *testing.T) {
	f := newFixture(t)
	roleUser := f.frontDesk.UserID
	f.resolver.res.CreatedByRoleUserID = &roleUser

	res := f.book(t, at("09:00"))
	require.NotNil(t, res.Appointment.CreatedByRoleUserID)
	assert.Equal(t, roleUser, *res.Appointment.CreatedByRoleUserID)
	assert.Equal(t, f.doctorID, res.Appointment.DoctorID)
}

func TestBook_PatientOnlyBooksForThemselves(t *testing.T) {
	f := newFixture(t)
	self := identity.Principal{UserID: f.patientID, Role: identity.RolePatient}
	_, err := f.svc.Book(context.Background(), self, f.request(at("09:00")))
	require.NoError(t, err)

	someoneElse := identity.Principal{UserID: uuid.New(), Role: identity.RolePatient}
	_, err = f.svc.Book(context.Background(), someoneElse, f.request(at("12:00")))
	assert.ErrorIs(t, err, ErrPatientMismatch)
}

func TestBook_ConcurrentRequestsForSameSlot(t *testing.T) {
	f := newFixture(t)
	f.repo.insertDelay = 5 * time.Millisecond

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Book(context.Background(), f.frontDesk, f.request(at("09:00")))
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, apperr.Is(err, apperr.KindConflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)

	appts, invoices := f.repo.counts()
	assert.Equal(t, 1, appts)
	assert.Equal(t, 1, invoices)
}

func TestBook_ConcurrentDisjointSlotsAllSucceed(t *testing.T) {
	f := newFixture(t)
	f.repo.insertDelay = 20 * time.Millisecond

	slots := []string{"09:00", "11:00", "14:00", "16:00"}
	var wg sync.WaitGroup
	errs := make([]error, len(slots))
	for i, slot := range slots {
		wg.Add(1)
		go func(i int, slot string) {
			defer wg.Done()
			_, errs[i] = f.svc.Book(context.Background(), f.frontDesk, f.request(at(slot)))
		}(i, slot)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "slot %s", slots[i])
	}
	appts, invoices := f.repo.counts()
	assert.Equal(t, len(slots), appts)
	assert.Equal(t, len(slots), invoices)
}

func TestGet_TenantFiltering(t *testing.T) {
	f := newFixture(t)
	res := f.book(t, at("09:00"))
	ctx := context.Background()

	_, err := f.svc.Get(ctx, f.doctor, res.Appointment.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, identity.Principal{UserID: f.patientID, Role: identity.RolePatient}, res.Appointment.ID)
	assert.NoError(t, err)

	otherOrg := uuid.New()
	_, err = f.svc.Get(ctx, identity.Principal{UserID: uuid.New(), Role: identity.RoleFrontDesk, OrganizationID: &otherOrg}, res.Appointment.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	_, err = f.svc.Get(ctx, identity.Principal{UserID: uuid.New(), Role: identity.RolePatient}, res.Appointment.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.book(t, at("09:00"))
	second := f.book(t, at("10:00"))

	moved, err := f.svc.Reschedule(ctx, f.frontDesk, first.Appointment.ID, at("09:10"), 0)
	require.NoError(t, err)
	assert.Equal(t, at("09:10"), moved.ScheduledAt)
	assert.Equal(t, 30, moved.DurationMinutes)
	assert.Equal(t, StatusScheduled, moved.Status)

	_, err = f.svc.Reschedule(ctx, f.frontDesk, first.Appointment.ID, at("10:20"), 45)
	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.Equal(t, at("09:10"), f.repo.appointment(first.Appointment.ID).ScheduledAt)

	_, err = f.svc.Transition(ctx, f.frontDesk, second.Appointment.ID, StatusRescheduled)
	require.NoError(t, err)
	moved, err = f.svc.Reschedule(ctx, f.frontDesk, second.Appointment.ID, at("11:00"), 45)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, moved.Status)
	assert.Equal(t, 45, moved.DurationMinutes)

	patient := identity.Principal{UserID: f.patientID, Role: identity.RolePatient}
	_, err = f.svc.Reschedule(ctx, patient, first.Appointment.ID, at("15:00"), 0)
	assert.ErrorIs(t, err, ErrManageForbidden)
}

func TestCancel_VoidsUnpaidInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.book(t, at("09:00"))

	paid := *f.repo.invoice(res.InvoiceID)
	paid.ID = uuid.New()
	paid.PaymentStatus = billing.PaymentPaid
	f.repo.putInvoice(paid)

	patient := identity.Principal{UserID: f.patientID, Role: identity.RolePatient}
	cancelled, err := f.svc.Cancel(ctx, patient, res.Appointment.ID, " ya no puedo asistir ")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "ya no puedo asistir", *cancelled.CancelReason)

	assert.Equal(t, billing.InvoiceVoided, f.repo.invoice(res.InvoiceID).Status)
	assert.Equal(t, billing.InvoiceIssued, f.repo.invoice(paid.ID).Status)

	_, err = f.svc.Cancel(ctx, f.frontDesk, res.Appointment.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The freed slot can be booked again.
	f.book(t, at("09:00"))
}

func TestTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.book(t, at("09:00"))
	id := res.Appointment.ID

	a, err := f.svc.Transition(ctx, f.doctor, id, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, a.Status)

	_, err = f.svc.Transition(ctx, f.doctor, id, StatusCompleted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Transition(ctx, f.doctor, id, Status("DONE"))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.Transition(ctx, f.doctor, id, StatusInProgress)
	require.NoError(t, err)
	a, err = f.svc.Transition(ctx, f.doctor, id, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, a.Status)

	_, err = f.svc.Transition(ctx, f.doctor, id, StatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransition_ReactivationRechecksConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.book(t, at("09:00"))

	_, err := f.svc.Transition(ctx, f.frontDesk, first.Appointment.ID, StatusRescheduled)
	require.NoError(t, err)

	// REAGENDADA does not hold the slot, so someone else takes it.
	f.book(t, at("09:10"))

	_, err = f.svc.Transition(ctx, f.frontDesk, first.Appointment.ID, StatusScheduled)
	assert.ErrorIs(t, err, ErrSlotConflict)
	assert.Equal(t, StatusRescheduled, f.repo.appointment(first.Appointment.ID).Status)
}
