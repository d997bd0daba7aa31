package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
)

var (
	ErrNotificationNotFound = apperr.NotFound("notification_not_found", "notification not found")
	ErrRecipientNotFound    = apperr.NotFound("recipient_not_found", "notification recipient not found")
)

type Repository interface {
	Insert(ctx context.Context, rec *Record) error

	// ClaimPendingEmails moves up to limit rows from pending to sending.
	// Rows stuck in sending for longer than lease are claimed again.
	ClaimPendingEmails(ctx context.Context, lease time.Duration, limit int) ([]Record, error)

	// RecipientEmail returns the user's email, or "" when none is on file.
	RecipientEmail(ctx context.Context, userID uuid.UUID) (string, error)

	MarkEmailSent(ctx context.Context, id uuid.UUID, attempts int) error
	MarkEmailRetry(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error
	MarkEmailFailed(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error
}
