package notification

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeAppointmentCreated     Type = "appointment_created"
	TypeAppointmentRescheduled Type = "appointment_rescheduled"
	TypeAppointmentCancelled   Type = "appointment_cancelled"
	TypePaymentSubmitted       Type = "payment_submitted"
	TypePaymentVerified        Type = "payment_verified"
	TypePaymentRejected        Type = "payment_rejected"
)

type EmailStatus string

const (
	EmailNotRequested EmailStatus = "not_requested"
	EmailPending      EmailStatus = "pending"
	EmailSending      EmailStatus = "sending"
	EmailSent         EmailStatus = "sent"
	EmailFailed       EmailStatus = "failed"
)

// Record is an in-app notification addressed to a staff user. When
// SendEmailRequested is set the row doubles as an email outbox entry.
type Record struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	OrganizationID     uuid.UUID
	Type               Type
	Title              string
	Message            string
	Payload            map[string]any
	SendEmailRequested bool
	EmailStatus        EmailStatus
	EmailAttempts      int
	EmailError         *string
	EmailClaimedAt     *time.Time
	CreatedAt          time.Time
}

// Summary reports one outbox dispatch run.
type Summary struct {
	Processed    int `json:"processed"`
	SuccessCount int `json:"successCount"`
	FailCount    int `json:"failCount"`
}
