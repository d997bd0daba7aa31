// Package mailer hands outbound email to the mail relay. Messages are
// published as jobs on a RabbitMQ queue that the relay consumes.
package mailer

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
)

type Kind string

const (
	KindConsultationReport Kind = "consultation_report"
	KindPatientInvitation  Kind = "patient_invitation"
	KindNotification       Kind = "notification"
)

type Message struct {
	To       string
	Subject  string
	HTMLBody string
	Kind     Kind
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var ErrInvalidRecipient = apperr.Validation("invalid_recipient", "recipient email is not valid")

var validate = validator.New()

func ValidEmail(email string) bool {
	return validate.Var(strings.TrimSpace(email), "required,email") == nil
}
