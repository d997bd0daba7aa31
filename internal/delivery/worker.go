package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
	"github.com/hackgods/practice-booking-engine/internal/consultation"
	"github.com/hackgods/practice-booking-engine/internal/mailer"
)

type DetailLoader interface {
	GetDetail(ctx context.Context, consultationID uuid.UUID) (*consultation.Detail, error)
}

// LinkResolver turns a stored report reference into a URL the patient can open.
type LinkResolver interface {
	Link(ctx context.Context, ref string) (string, error)
}

type WorkerOptions struct {
	BatchSize   int
	MaxAttempts int
	Lease       time.Duration
	AppBaseURL  string
}

// Worker drains the report delivery queue.
type Worker struct {
	repo    Repository
	details DetailLoader
	links   LinkResolver
	sender  mailer.Sender
	log     *zap.Logger
	opts    WorkerOptions
	now     func() time.Time
}

func NewWorker(repo Repository, details DetailLoader, links LinkResolver, sender mailer.Sender, opts WorkerOptions, log *zap.Logger) *Worker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Lease <= 0 {
		opts.Lease = 10 * time.Minute
	}
	opts.AppBaseURL = strings.TrimRight(opts.AppBaseURL, "/")
	return &Worker{
		repo:    repo,
		details: details,
		links:   links,
		sender:  sender,
		log:     log,
		opts:    opts,
		now:     time.Now,
	}
}

// Drain processes one batch of due items. A failure on one item never stops
// the rest of the batch; only a failed claim is returned as an error. Once
// the mail broker is unreachable the remaining items are released untouched.
func (w *Worker) Drain(ctx context.Context) (Summary, error) {
	var sum Summary

	items, err := w.repo.ClaimDue(ctx, w.now(), w.opts.Lease, w.opts.BatchSize)
	if err != nil {
		return sum, fmt.Errorf("claim report deliveries: %w", err)
	}

	var brokerErr error
	for _, it := range items {
		sum.Processed++
		if brokerErr != nil {
			w.release(ctx, w.log, it, brokerErr.Error())
			sum.FailCount++
			continue
		}

		sent, err := w.deliver(ctx, it)
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
		w.log.Info("report delivery batch finished",
			zap.Int("processed", sum.Processed),
			zap.Int("sent", sum.SuccessCount),
			zap.Int("failed", sum.FailCount),
		)
	}
	return sum, nil
}

// deliver sends one item. The returned error is set only when the mail
// broker is unavailable; the item was released without using an attempt.
func (w *Worker) deliver(ctx context.Context, it Item) (bool, error) {
	log := w.log.With(
		zap.String("delivery_id", it.ID.String()),
		zap.String("consultation_id", it.ConsultationID.String()),
	)

	detail, err := w.details.GetDetail(ctx, it.ConsultationID)
	switch {
	case errors.Is(err, consultation.ErrConsultationNotFound):
		w.fail(ctx, log, it, it.Attempts, MsgConsultationNotFound)
		return false, nil
	case err != nil:
		log.Warn("failed to load consultation for delivery", zap.Error(err))
		w.retryOrFail(ctx, log, it, it.Attempts+1, err.Error())
		return false, nil
	}

	if detail.ReportURL == "" {
		w.fail(ctx, log, it, it.Attempts, MsgNoReport)
		return false, nil
	}
	if detail.PatientEmail == "" {
		w.fail(ctx, log, it, it.Attempts, MsgNoPatientEmail)
		return false, nil
	}

	attempts := it.Attempts + 1

	link, err := w.links.Link(ctx, detail.ReportURL)
	if err != nil {
		log.Warn("failed to resolve report link", zap.Error(err))
		if apperr.Is(err, apperr.KindValidation) {
			w.fail(ctx, log, it, it.Attempts, err.Error())
		} else {
			w.retryOrFail(ctx, log, it, attempts, err.Error())
		}
		return false, nil
	}

	msg, err := mailer.ReportEmail(detail.PatientEmail, mailer.ReportData{
		PatientName:      detail.PatientName,
		DoctorName:       detail.DoctorName,
		OrganizationName: detail.OrganizationName,
		ReportURL:        link,
	})
	if err != nil {
		w.fail(ctx, log, it, it.Attempts, err.Error())
		return false, nil
	}

	if err := w.sender.Send(ctx, msg); err != nil {
		switch {
		case apperr.Is(err, apperr.KindTransient):
			log.Warn("mail broker unavailable, releasing report delivery", zap.Error(err))
			w.release(ctx, log, it, err.Error())
			return false, err
		case apperr.Is(err, apperr.KindValidation):
			log.Warn("report email rejected", zap.Error(err))
			w.fail(ctx, log, it, it.Attempts, err.Error())
		default:
			log.Warn("report email send failed", zap.Error(err), zap.Int("attempts", attempts))
			w.retryOrFail(ctx, log, it, attempts, err.Error())
		}
		return false, nil
	}

	if err := w.repo.MarkSent(ctx, it.ID, attempts, w.now()); err != nil {
		log.Error("failed to mark report delivery sent", zap.Error(err))
		return false, nil
	}

	if !detail.Registered {
		w.invite(ctx, log, detail)
	}
	return true, nil
}

// invite is best effort; the report already went out.
func (w *Worker) invite(ctx context.Context, log *zap.Logger, detail *consultation.Detail) {
	msg, err := mailer.InvitationEmail(detail.PatientEmail, mailer.InvitationData{
		PatientName:      detail.PatientName,
		OrganizationName: detail.OrganizationName,
		SignupURL:        w.signupURL(detail.PatientEmail),
	})
	if err == nil {
		err = w.sender.Send(ctx, msg)
	}
	if err != nil {
		log.Warn("patient invitation email failed", zap.Error(err))
	}
}

func (w *Worker) signupURL(email string) string {
	return w.opts.AppBaseURL + "/registro?email=" + url.QueryEscape(email)
}

func (w *Worker) fail(ctx context.Context, log *zap.Logger, it Item, attempts int, msg string) {
	if err := w.repo.MarkFailed(ctx, it.ID, attempts, msg); err != nil {
		log.Error("failed to mark report delivery failed", zap.Error(err))
	}
}

// release puts the item back to pending with its attempts unchanged.
func (w *Worker) release(ctx context.Context, log *zap.Logger, it Item, msg string) {
	if err := w.repo.MarkRetry(ctx, it.ID, it.Attempts, msg); err != nil {
		log.Error("failed to release report delivery", zap.Error(err))
	}
}

func (w *Worker) retryOrFail(ctx context.Context, log *zap.Logger, it Item, attempts int, msg string) {
	if attempts >= w.opts.MaxAttempts {
		w.fail(ctx, log, it, attempts, msg)
		return
	}
	if err := w.repo.MarkRetry(ctx, it.ID, attempts, msg); err != nil {
		log.Error("failed to schedule report delivery retry", zap.Error(err))
	}
}
