package delivery

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Permanent failure messages, stored on the queue item as shown to staff.
const (
	MsgConsultationNotFound = "Consulta no encontrada"
	MsgNoReport             = "No hay informe disponible"
	MsgNoPatientEmail       = "El paciente no tiene email registrado"
)

// Item is one "send consultation report" job.
type Item struct {
	ID             uuid.UUID
	ConsultationID uuid.UUID
	ScheduledAt    time.Time
	Status         Status
	Attempts       int
	ErrorMessage   *string
	ClaimedAt      *time.Time
	SentAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Summary struct {
	Processed    int `json:"processed"`
	SuccessCount int `json:"successCount"`
	FailCount    int `json:"failCount"`
}
