package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/practice-booking-engine/internal/appointment"
	"github.com/hackgods/practice-booking-engine/internal/billing"
	"github.com/hackgods/practice-booking-engine/internal/consultation"
	"github.com/hackgods/practice-booking-engine/internal/delivery"
	"github.com/hackgods/practice-booking-engine/internal/identity"
	"github.com/hackgods/practice-booking-engine/internal/notification"
)

type AppointmentService interface {
	Book(ctx context.Context, p identity.Principal, req appointment.BookingRequest) (*appointment.BookingResult, error)
	Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, p identity.Principal, id uuid.UUID, start time.Time, durationMinutes int) (*appointment.Appointment, error)
	Cancel(ctx context.Context, p identity.Principal, id uuid.UUID, reason string) (*appointment.Appointment, error)
	Transition(ctx context.Context, p identity.Principal, id uuid.UUID, to appointment.Status) (*appointment.Appointment, error)
}

type ConsultationService interface {
	Complete(ctx context.Context, p identity.Principal, appointmentID uuid.UUID, reportURL string) (*consultation.Completion, error)
}

type BillingService interface {
	Get(ctx context.Context, p identity.Principal, id uuid.UUID) (*billing.Invoice, error)
	SubmitPayment(ctx context.Context, p identity.Principal, id uuid.UUID, reference string) (*billing.Invoice, error)
	Verify(ctx context.Context, p identity.Principal, id uuid.UUID, approve bool, note string) (*billing.Invoice, error)
	Adjust(ctx context.Context, p identity.Principal, id uuid.UUID, newTotal decimal.Decimal, reason string) (*billing.Invoice, error)
	Reissue(ctx context.Context, p identity.Principal, id uuid.UUID) (*billing.Invoice, error)
}

type ReportDrainer interface {
	Drain(ctx context.Context) (delivery.Summary, error)
}

type NotificationDispatcher interface {
	Dispatch(ctx context.Context) (notification.Summary, error)
}

// pathID parses the {id} URL param, writing a 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name+"_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func mustPrincipal(w http.ResponseWriter, r *http.Request) (identity.Principal, bool) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "authorization bearer token is required")
	}
	return p, ok
}

func bookAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mustPrincipal(w, r)
		if !ok {
			return
		}

		var req BookAppointmentRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}

		res, err := svc.Book(r.Context(), p, req.toDomain())
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := BookAppointmentResponse{
			AppointmentID:  res.Appointment.ID,
			BillingCreated: res.BillingCreated,
			Status:         string(res.Appointment.Status),
		}
		if res.BillingCreated {
			invoiceID := res.InvoiceID
			resp.InvoiceID = &invoiceID
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mustPrincipal(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "appointment")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), p, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mustPrincipal(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "appointment")
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}

		appt, err := svc.Reschedule(r.Context(), p, id, req.ScheduledAt.Time, req.DurationMinutes)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mustPrincipal(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "appointment")
		if !ok {
			return
		}

		var req CancelRequest
		if r.ContentLength != 0 {
			if err := decodeBody(r, &req); err != nil {
				handleServiceError(w, r, err)
				return
			}
		}

		appt, err := svc.Cancel(r.Context(), p, id, strings.TrimSpace(req.Reason))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func transitionAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mustPrincipal(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "appointment")
		if !ok {
			return
		}

		var req StatusRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, r, err)
			return
		}

		appt, err := svc.Transition(r.Context(), p, id, appointment.Status(strings.ToUpper(req.Status)))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc ConsultationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := mustPrincipal(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "appointment")
		if !ok {
			return
		}

		var req CompleteRequest
		if r.ContentLength != 0 {
			if err := decodeBody(r, &req); err != nil {
				handleServiceError(w, r, err)
				return
			}
		}

		done, err := svc.Complete(r.Context(), p, id, strings.TrimSpace(req.ReportURL))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newCompletionResponse(done))
	}
}
