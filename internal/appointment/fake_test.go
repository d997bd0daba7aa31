package appointment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/practice-booking-engine/internal/billing"
	"github.com/hackgods/practice-booking-engine/internal/identity"
	"github.com/hackgods/practice-booking-engine/internal/notification"
	redisclient "github.com/hackgods/practice-booking-engine/internal/redis"
)

type fakeRepo struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]*Patient
	unregistered map[uuid.UUID]*UnregisteredPatient
	appointments map[uuid.UUID]*Appointment
	invoices     map[uuid.UUID]*billing.Invoice

	failInvoiceInsert error
	insertDelay       time.Duration
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		patients:     make(map[uuid.UUID]*Patient),
		unregistered: make(map[uuid.UUID]*UnregisteredPatient),
		appointments: make(map[uuid.UUID]*Appointment),
		invoices:     make(map[uuid.UUID]*billing.Invoice),
	}
}

func (f *fakeRepo) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.appointments), len(f.invoices)
}

func (f *fakeRepo) appointment(id uuid.UUID) *Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.appointments[id]
	return &cp
}

func (f *fakeRepo) invoice(id uuid.UUID) *billing.Invoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.invoices[id]
	return &cp
}

func (f *fakeRepo) putAppointment(a Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appointments[a.ID] = &a
}

func (f *fakeRepo) putInvoice(inv billing.Invoice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices[inv.ID] = &inv
}

func (f *fakeRepo) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (f *fakeRepo) GetUnregisteredPatient(_ context.Context, id uuid.UUID) (*UnregisteredPatient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.unregistered[id]
	if !ok {
		return nil, ErrUnregisteredPatientNotFound
	}
	return p, nil
}

func (f *fakeRepo) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) ListActiveForDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Appointment
	for _, a := range f.appointments {
		if a.DoctorID != doctorID || !a.Status.Active() {
			continue
		}
		if a.ScheduledAt.Before(from) || !a.ScheduledAt.Before(to) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

// InTx stages every write and applies them only when fn returns nil.
func (f *fakeRepo) InTx(_ context.Context, fn func(tx Tx) error) error {
	tx := &fakeTx{
		repo:         f,
		appointments: make(map[uuid.UUID]*Appointment),
		invoices:     make(map[uuid.UUID]*billing.Invoice),
	}
	if err := fn(tx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for id, a := range tx.appointments {
		f.appointments[id] = a
	}
	for id, inv := range tx.invoices {
		f.invoices[id] = inv
	}
	return nil
}

type fakeTx struct {
	repo         *fakeRepo
	appointments map[uuid.UUID]*Appointment
	invoices     map[uuid.UUID]*billing.Invoice
}

func (t *fakeTx) current(id uuid.UUID) *Appointment {
	if a, ok := t.appointments[id]; ok {
		cp := *a
		return &cp
	}
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	a, ok := t.repo.appointments[id]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// slotTaken mirrors the partial unique index on (doctor_id, scheduled_at).
func (t *fakeTx) slotTaken(a *Appointment) bool {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, other := range t.repo.appointments {
		if other.ID != a.ID && other.DoctorID == a.DoctorID && other.Status.Active() && other.ScheduledAt.Equal(a.ScheduledAt) {
			return true
		}
	}
	return false
}

func (t *fakeTx) InsertAppointment(_ context.Context, a *Appointment) error {
	if t.repo.insertDelay > 0 {
		time.Sleep(t.repo.insertDelay)
	}
	if t.slotTaken(a) {
		return ErrSlotConflict
	}
	cp := *a
	t.appointments[a.ID] = &cp
	return nil
}

func (t *fakeTx) InsertInvoice(_ context.Context, inv *billing.Invoice) error {
	if t.repo.failInvoiceInsert != nil {
		return t.repo.failInvoiceInsert
	}
	cp := *inv
	t.invoices[inv.ID] = &cp
	return nil
}

func (t *fakeTx) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, cancelReason *string) (*Appointment, error) {
	a := t.current(id)
	if a == nil || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if cancelReason != nil {
		a.CancelReason = cancelReason
	}
	if to.Active() && t.slotTaken(a) {
		return nil, ErrSlotConflict
	}
	t.appointments[id] = a
	cp := *a
	return &cp, nil
}

func (t *fakeTx) Reschedule(_ context.Context, id uuid.UUID, from Status, start time.Time, durationMinutes int) (*Appointment, error) {
	a := t.current(id)
	if a == nil || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.ScheduledAt = start
	a.DurationMinutes = durationMinutes
	a.Status = StatusScheduled
	if t.slotTaken(a) {
		return nil, ErrSlotConflict
	}
	t.appointments[id] = a
	cp := *a
	return &cp, nil
}

func (t *fakeTx) VoidUnpaidInvoices(_ context.Context, appointmentID uuid.UUID) (int64, error) {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	var n int64
	for id, inv := range t.repo.invoices {
		if inv.AppointmentID != appointmentID || inv.Status != billing.InvoiceIssued || !inv.Unpaid() {
			continue
		}
		cp := *inv
		cp.Status = billing.InvoiceVoided
		t.invoices[id] = &cp
		n++
	}
	return n, nil
}

// fakeLocker refuses a key that is already held, like SET NX.
type fakeLocker struct {
	mu      sync.Mutex
	held    map[string]bool
	busy    bool
	err     error
	lastKey string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ok, token, err := l.TryLock(ctx, key, time.Second)
	if err != nil {
		return err
	}
	if !ok {
		return redisclient.ErrLockNotAcquired
	}
	defer func() { _ = l.Unlock(ctx, key, token) }()
	return fn(ctx)
}

func (l *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastKey = key
	if l.err != nil {
		return false, "", l.err
	}
	if l.busy || l.held[key] {
		return false, "", nil
	}
	l.held[key] = true
	return true, key, nil
}

func (l *fakeLocker) Unlock(_ context.Context, key, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type fakeResolver struct {
	res identity.Resolution
	err error
}

func (r *fakeResolver) Resolve(context.Context, identity.Principal, identity.ResolveInput) (identity.Resolution, error) {
	return r.res, r.err
}

type fakeRates struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
	err   error
}

func (r *fakeRates) set(currency, rate string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[currency] = decimal.RequireFromString(rate)
}

func (r *fakeRates) Rate(_ context.Context, currency string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return decimal.Zero, r.err
	}
	if rate, ok := r.rates[currency]; ok {
		return rate, nil
	}
	return decimal.NewFromInt(1), nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	records []notification.Record
}

func (n *recordingNotifier) Notify(_ context.Context, rec notification.Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, rec)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.records)
}

// brokenNotificationRepo fails every write, for checking booking isolation.
type brokenNotificationRepo struct {
	notification.Repository
}

func (brokenNotificationRepo) Insert(context.Context, *notification.Record) error {
	return errors.New("notifications table is locked")
}
