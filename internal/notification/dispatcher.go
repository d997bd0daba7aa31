package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
	"github.com/hackgods/practice-booking-engine/internal/mailer"
)

const noRecipientEmail = "El destinatario no tiene email registrado"

// Dispatcher drains the email outbox kept in the notifications table.
type Dispatcher struct {
	repo        Repository
	sender      mailer.Sender
	log         *zap.Logger
	batchSize   int
	maxAttempts int
	lease       time.Duration
}

func NewDispatcher(repo Repository, sender mailer.Sender, log *zap.Logger, batchSize, maxAttempts int) *Dispatcher {
	return &Dispatcher{
		repo:        repo,
		sender:      sender,
		log:         log,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		lease:       5 * time.Minute,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context) (Summary, error) {
	var sum Summary

	batch, err := d.repo.ClaimPendingEmails(ctx, d.lease, d.batchSize)
	if err != nil {
		return sum, fmt.Errorf("claim pending emails: %w", err)
	}

	var brokerErr error
	for _, rec := range batch {
		sum.Processed++
		if brokerErr != nil {
			d.release(ctx, d.log, rec, brokerErr.Error())
			sum.FailCount++
			continue
		}

		sent, err := d.dispatchOne(ctx, rec)
		if sent {
			sum.SuccessCount++
		} else {
			sum.FailCount++
		}
		if err != nil {
			brokerErr = err
		}
	}

	if sum.Processed > 0 {
		d.log.Info("notification emails dispatched",
			zap.Int("processed", sum.Processed),
			zap.Int("sent", sum.SuccessCount),
			zap.Int("failed", sum.FailCount),
		)
	}
	return sum, nil
}

// dispatchOne returns an error only when the mail broker is unavailable.
func (d *Dispatcher) dispatchOne(ctx context.Context, rec Record) (bool, error) {
	log := d.log.With(zap.String("notification_id", rec.ID.String()))

	email, err := d.repo.RecipientEmail(ctx, rec.UserID)
	if err != nil && !errors.Is(err, ErrRecipientNotFound) {
		log.Warn("failed to load notification recipient", zap.Error(err))
		d.retryOrFail(ctx, log, rec, rec.EmailAttempts+1, err.Error())
		return false, nil
	}
	if email == "" {
		if err := d.repo.MarkEmailFailed(ctx, rec.ID, rec.EmailAttempts, noRecipientEmail); err != nil {
			log.Error("failed to mark notification email failed", zap.Error(err))
		}
		return false, nil
	}

	msg, err := mailer.NotificationEmail(email, mailer.NotificationData{Title: rec.Title, Message: rec.Message})
	if err != nil {
		if err := d.repo.MarkEmailFailed(ctx, rec.ID, rec.EmailAttempts, err.Error()); err != nil {
			log.Error("failed to mark notification email failed", zap.Error(err))
		}
		return false, nil
	}

	attempts := rec.EmailAttempts + 1
	if err := d.sender.Send(ctx, msg); err != nil {
		switch {
		case apperr.Is(err, apperr.KindTransient):
			log.Warn("mail broker unavailable, releasing notification email", zap.Error(err))
			d.release(ctx, log, rec, err.Error())
			return false, err
		case apperr.Is(err, apperr.KindValidation):
			if err := d.repo.MarkEmailFailed(ctx, rec.ID, rec.EmailAttempts, err.Error()); err != nil {
				log.Error("failed to mark notification email failed", zap.Error(err))
			}
		default:
			log.Warn("notification email send failed", zap.Error(err), zap.Int("attempts", attempts))
			d.retryOrFail(ctx, log, rec, attempts, err.Error())
		}
		return false, nil
	}

	if err := d.repo.MarkEmailSent(ctx, rec.ID, attempts); err != nil {
		log.Error("failed to mark notification email sent", zap.Error(err))
		return false, nil
	}
	return true, nil
}

// release returns the record to pending with its attempts unchanged.
func (d *Dispatcher) release(ctx context.Context, log *zap.Logger, rec Record, msg string) {
	if err := d.repo.MarkEmailRetry(ctx, rec.ID, rec.EmailAttempts, msg); err != nil {
		log.Error("failed to release notification email", zap.Error(err))
	}
}

func (d *Dispatcher) retryOrFail(ctx context.Context, log *zap.Logger, rec Record, attempts int, msg string) {
	var err error
	if attempts >= d.maxAttempts {
		err = d.repo.MarkEmailFailed(ctx, rec.ID, attempts, msg)
	} else {
		err = d.repo.MarkEmailRetry(ctx, rec.ID, attempts, msg)
	}
	if err != nil {
		log.Error("failed to record notification email attempt", zap.Error(err))
	}
}
