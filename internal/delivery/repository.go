package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
)

var ErrItemNotClaimed = apperr.Conflict("delivery_item_not_claimed", "delivery item is not claimed by this worker")

type Repository interface {
	// ClaimDue moves up to limit due pending items to processing and returns
	// them. Items left in processing for longer than lease are claimed again.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Item, error)

	// The Mark methods only touch items still in processing.
	MarkSent(ctx context.Context, id uuid.UUID, attempts int, sentAt time.Time) error
	MarkRetry(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error
}
