package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/practice-booking-engine/internal/appointment"
	"github.com/hackgods/practice-booking-engine/internal/billing"
	"github.com/hackgods/practice-booking-engine/internal/consultation"
	"github.com/hackgods/practice-booking-engine/internal/delivery"
	"github.com/hackgods/practice-booking-engine/internal/identity"
	"github.com/hackgods/practice-booking-engine/internal/notification"
)

type fakeAppointments struct {
	bookReq   appointment.BookingRequest
	principal identity.Principal
	result    *appointment.BookingResult
	appt      *appointment.Appointment
	err       error

	lastStatus appointment.Status
	lastReason string
}

func (f *fakeAppointments) Book(_ context.Context, p identity.Principal, req appointment.BookingRequest) (*appointment.BookingResult, error) {
	f.principal = p
	f.bookReq = req
	return f.result, f.err
}

func (f *fakeAppointments) Get(_ context.Context, p identity.Principal, _ uuid.UUID) (*appointment.Appointment, error) {
	f.principal = p
	return f.appt, f.err
}

func (f *fakeAppointments) Reschedule(_ context.Context, _ identity.Principal, _ uuid.UUID, start time.Time, d int) (*appointment.Appointment, error) {
	if f.err != nil {
		return nil, f.err
	}
	a := *f.appt
	a.ScheduledAt = start
	if d > 0 {
		a.DurationMinutes = d
	}
	return &a, nil
}

func (f *fakeAppointments) Cancel(_ context.Context, _ identity.Principal, _ uuid.UUID, reason string) (*appointment.Appointment, error) {
	f.lastReason = reason
	if f.err != nil {
		return nil, f.err
	}
	a := *f.appt
	a.Status = appointment.StatusCancelled
	return &a, nil
}

func (f *fakeAppointments) Transition(_ context.Context, _ identity.Principal, _ uuid.UUID, to appointment.Status) (*appointment.Appointment, error) {
	f.lastStatus = to
	if f.err != nil {
		return nil, f.err
	}
	a := *f.appt
	a.Status = to
	return &a, nil
}

type fakeConsultations struct {
	completion *consultation.Completion
	err        error
	reportURL  string
}

func (f *fakeConsultations) Complete(_ context.Context, _ identity.Principal, _ uuid.UUID, reportURL string) (*consultation.Completion, error) {
	f.reportURL = reportURL
	return f.completion, f.err
}

type fakeBilling struct {
	inv *billing.Invoice
	err error

	reference string
	approve   bool
	newTotal  decimal.Decimal
}

func (f *fakeBilling) Get(context.Context, identity.Principal, uuid.UUID) (*billing.Invoice, error) {
	return f.inv, f.err
}

func (f *fakeBilling) SubmitPayment(_ context.Context, _ identity.Principal, _ uuid.UUID, ref string) (*billing.Invoice, error) {
	f.reference = ref
	return f.inv, f.err
}

func (f *fakeBilling) Verify(_ context.Context, _ identity.Principal, _ uuid.UUID, approve bool, _ string) (*billing.Invoice, error) {
	f.approve = approve
	return f.inv, f.err
}

func (f *fakeBilling) Adjust(_ context.Context, _ identity.Principal, _ uuid.UUID, total decimal.Decimal, _ string) (*billing.Invoice, error) {
	f.newTotal = total
	return f.inv, f.err
}

func (f *fakeBilling) Reissue(context.Context, identity.Principal, uuid.UUID) (*billing.Invoice, error) {
	return f.inv, f.err
}

type fakeDrainer struct {
	sum   delivery.Summary
	err   error
	calls int
}

func (f *fakeDrainer) Drain(context.Context) (delivery.Summary, error) {
	f.calls++
	return f.sum, f.err
}

type fakeDispatcher struct {
	sum notification.Summary
	err error
}

func (f *fakeDispatcher) Dispatch(context.Context) (notification.Summary, error) {
	return f.sum, f.err
}
