package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Enqueuer records notifications after a business write has committed.
// Notify has no error return: whatever happens here cannot change the
// outcome the caller already reported.
type Enqueuer struct {
	repo    Repository
	log     *zap.Logger
	timeout time.Duration
}

func NewEnqueuer(repo Repository, log *zap.Logger) *Enqueuer {
	return &Enqueuer{
		repo:    repo,
		log:     log,
		timeout: 3 * time.Second,
	}
}

func (e *Enqueuer) Notify(ctx context.Context, rec Record) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("notification enqueue panicked",
				zap.Any("panic", r),
				zap.String("type", string(rec.Type)),
			)
		}
	}()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.EmailStatus = EmailNotRequested
	if rec.SendEmailRequested {
		rec.EmailStatus = EmailPending
	}

	// The request may be finishing; the row should still be written.
	insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	if err := e.repo.Insert(insertCtx, &rec); err != nil {
		e.log.Warn("failed to record notification",
			zap.Error(err),
			zap.String("type", string(rec.Type)),
			zap.String("user_id", rec.UserID.String()),
		)
		return
	}

	e.log.Debug("notification recorded",
		zap.String("notification_id", rec.ID.String()),
		zap.String("type", string(rec.Type)),
		zap.Bool("email", rec.SendEmailRequested),
	)
}
