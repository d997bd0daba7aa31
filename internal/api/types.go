package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/practice-booking-engine/internal/appointment"
	"github.com/hackgods/practice-booking-engine/internal/billing"
	"github.com/hackgods/practice-booking-engine/internal/consultation"
)

type SelectedServiceRequest struct {
	Name     string           `json:"name" validate:"required"`
	Price    *decimal.Decimal `json:"price" validate:"required"`
	Currency string           `json:"currency" validate:"omitempty,len=3"`
	TaxRate  *decimal.Decimal `json:"taxRate"`
}

type BookAppointmentRequest struct {
	PatientID             *string                 `json:"patientId" validate:"omitempty,uuid"`
	UnregisteredPatientID *string                 `json:"unregisteredPatientId" validate:"omitempty,uuid"`
	DoctorID              string                  `json:"doctorId" validate:"required,uuid"`
	OrganizationID        string                  `json:"organizationId" validate:"required,uuid"`
	ScheduledAt           *Timestamp              `json:"scheduledAt" validate:"required"`
	DurationMinutes       int                     `json:"durationMinutes" validate:"omitempty,gt=0"`
	Reason                *string                 `json:"reason"`
	Location              *string                 `json:"location"`
	ReferralSource        *string                 `json:"referralSource"`
	CreatedByRoleUserID   *string                 `json:"createdByRoleUserId" validate:"omitempty,uuid"`
	SelectedService       *SelectedServiceRequest `json:"selectedService" validate:"required"`
}

// toDomain assumes the request already passed validation.
func (req BookAppointmentRequest) toDomain() appointment.BookingRequest {
	out := appointment.BookingRequest{
		DoctorID:            uuid.MustParse(req.DoctorID),
		OrganizationID:      uuid.MustParse(req.OrganizationID),
		Patient:             appointment.PatientRef{PatientID: parseOptionalUUID(req.PatientID), UnregisteredPatientID: parseOptionalUUID(req.UnregisteredPatientID)},
		ScheduledAt:         req.ScheduledAt.Time,
		DurationMinutes:     req.DurationMinutes,
		Reason:              req.Reason,
		Location:            req.Location,
		ReferralSource:      req.ReferralSource,
		CreatedByRoleUserID: parseOptionalUUID(req.CreatedByRoleUserID),
	}
	svc := &appointment.SelectedService{
		Name:     req.SelectedService.Name,
		Price:    *req.SelectedService.Price,
		Currency: req.SelectedService.Currency,
	}
	if req.SelectedService.TaxRate != nil {
		svc.TaxRate = *req.SelectedService.TaxRate
	}
	out.Service = svc
	return out
}

func parseOptionalUUID(s *string) *uuid.UUID {
	if s == nil || *s == "" {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil
	}
	return &id
}

type BookAppointmentResponse struct {
	AppointmentID  uuid.UUID  `json:"appointmentId"`
	InvoiceID      *uuid.UUID `json:"invoiceId,omitempty"`
	BillingCreated bool       `json:"billingCreated"`
	Status         string     `json:"status"`
}

type RescheduleRequest struct {
	ScheduledAt     *Timestamp `json:"scheduledAt" validate:"required"`
	DurationMinutes int        `json:"durationMinutes" validate:"omitempty,gt=0"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type CompleteRequest struct {
	ReportURL string `json:"reportUrl" validate:"omitempty,max=2048"`
}

type SelectedServiceResponse struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	TaxRate  decimal.Decimal `json:"taxRate"`
}

type AppointmentResponse struct {
	ID                    uuid.UUID               `json:"id"`
	PatientID             *uuid.UUID              `json:"patientId"`
	UnregisteredPatientID *uuid.UUID              `json:"unregisteredPatientId"`
	DoctorID              uuid.UUID               `json:"doctorId"`
	OrganizationID        uuid.UUID               `json:"organizationId"`
	ScheduledAt           time.Time               `json:"scheduledAt"`
	DurationMinutes       int                     `json:"durationMinutes"`
	Status                string                  `json:"status"`
	Reason                *string                 `json:"reason,omitempty"`
	Location              *string                 `json:"location,omitempty"`
	ReferralSource        *string                 `json:"referralSource,omitempty"`
	SelectedService       SelectedServiceResponse `json:"selectedService"`
	CreatedByRoleUserID   *uuid.UUID              `json:"createdByRoleUserId,omitempty"`
	CancelReason          *string                 `json:"cancelReason,omitempty"`
	CreatedAt             time.Time               `json:"createdAt"`
	UpdatedAt             time.Time               `json:"updatedAt"`
}

func newAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                    a.ID,
		PatientID:             a.PatientID,
		UnregisteredPatientID: a.UnregisteredPatientID,
		DoctorID:              a.DoctorID,
		OrganizationID:        a.OrganizationID,
		ScheduledAt:           a.ScheduledAt,
		DurationMinutes:       a.DurationMinutes,
		Status:                string(a.Status),
		Reason:                a.Reason,
		Location:              a.Location,
		ReferralSource:        a.ReferralSource,
		SelectedService: SelectedServiceResponse{
			Name:     a.Service.Name,
			Price:    a.Service.Price,
			Currency: a.Service.Currency,
			TaxRate:  a.Service.TaxRate,
		},
		CreatedByRoleUserID: a.CreatedByRoleUserID,
		CancelReason:        a.CancelReason,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

type CompletionResponse struct {
	ConsultationID uuid.UUID  `json:"consultationId"`
	AppointmentID  uuid.UUID  `json:"appointmentId"`
	ReportURL      *string    `json:"reportUrl,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	DeliveryQueued bool       `json:"deliveryQueued"`
	DeliveryID     *uuid.UUID `json:"deliveryId,omitempty"`
	DeliveryDueAt  *time.Time `json:"deliveryDueAt,omitempty"`
}

func newCompletionResponse(c *consultation.Completion) CompletionResponse {
	return CompletionResponse{
		ConsultationID: c.Consultation.ID,
		AppointmentID:  c.Consultation.AppointmentID,
		ReportURL:      c.Consultation.ReportURL,
		CompletedAt:    c.Consultation.CompletedAt,
		DeliveryQueued: c.DeliveryQueued,
		DeliveryID:     c.DeliveryID,
		DeliveryDueAt:  c.DeliveryDueAt,
	}
}

type SubmitPaymentRequest struct {
	Reference string `json:"reference" validate:"required,max=200"`
}

type VerifyPaymentRequest struct {
	Approve *bool  `json:"approve" validate:"required"`
	Note    string `json:"note" validate:"max=1000"`
}

type AdjustInvoiceRequest struct {
	NewTotal *decimal.Decimal `json:"newTotal" validate:"required"`
	Reason   string           `json:"reason" validate:"required,max=1000"`
}

type AdjustmentResponse struct {
	ID            uuid.UUID       `json:"id"`
	PreviousTotal decimal.Decimal `json:"previousTotal"`
	NewTotal      decimal.Decimal `json:"newTotal"`
	Delta         decimal.Decimal `json:"delta"`
	Reason        string          `json:"reason"`
	AdjustedBy    uuid.UUID       `json:"adjustedBy"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type InvoiceResponse struct {
	ID                    uuid.UUID            `json:"id"`
	AppointmentID         uuid.UUID            `json:"appointmentId"`
	PatientID             *uuid.UUID           `json:"patientId"`
	UnregisteredPatientID *uuid.UUID           `json:"unregisteredPatientId"`
	DoctorID              uuid.UUID            `json:"doctorId"`
	OrganizationID        uuid.UUID            `json:"organizationId"`
	Concept               string               `json:"concepto"`
	Subtotal              decimal.Decimal      `json:"subtotal"`
	Taxes                 decimal.Decimal      `json:"impuestos"`
	Total                 decimal.Decimal      `json:"total"`
	Currency              string               `json:"currency"`
	ExchangeRate          decimal.Decimal      `json:"exchangeRate"`
	PaymentStatus         string               `json:"estadoPago"`
	Status                string               `json:"estadoFactura"`
	PaymentReference      *string              `json:"paymentReference,omitempty"`
	VerifiedBy            *uuid.UUID           `json:"verifiedBy,omitempty"`
	VerifiedAt            *time.Time           `json:"verifiedAt,omitempty"`
	VerificationNote      *string              `json:"verificationNote,omitempty"`
	ReissuedFromID        *uuid.UUID           `json:"reissuedFromId,omitempty"`
	Adjustments           []AdjustmentResponse `json:"adjustments"`
	CreatedAt             time.Time            `json:"createdAt"`
	UpdatedAt             time.Time            `json:"updatedAt"`
}

func newInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	adjustments := make([]AdjustmentResponse, 0, len(inv.Adjustments))
	for _, a := range inv.Adjustments {
		adjustments = append(adjustments, AdjustmentResponse{
			ID:            a.ID,
			PreviousTotal: a.PreviousTotal,
			NewTotal:      a.NewTotal,
			Delta:         a.Delta,
			Reason:        a.Reason,
			AdjustedBy:    a.AdjustedBy,
			CreatedAt:     a.CreatedAt,
		})
	}
	return InvoiceResponse{
		ID:                    inv.ID,
		AppointmentID:         inv.AppointmentID,
		PatientID:             inv.PatientID,
		UnregisteredPatientID: inv.UnregisteredPatientID,
		DoctorID:              inv.DoctorID,
		OrganizationID:        inv.OrganizationID,
		Concept:               inv.Concept,
		Subtotal:              inv.Subtotal,
		Taxes:                 inv.Taxes,
		Total:                 inv.Total,
		Currency:              inv.Currency,
		ExchangeRate:          inv.ExchangeRate,
		PaymentStatus:         string(inv.PaymentStatus),
		Status:                string(inv.Status),
		PaymentReference:      inv.PaymentReference,
		VerifiedBy:            inv.VerifiedBy,
		VerifiedAt:            inv.VerifiedAt,
		VerificationNote:      inv.VerificationNote,
		ReissuedFromID:        inv.ReissuedFromID,
		Adjustments:           adjustments,
		CreatedAt:             inv.CreatedAt,
		UpdatedAt:             inv.UpdatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
