package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
	"github.com/hackgods/practice-booking-engine/internal/consultation"
	"github.com/hackgods/practice-booking-engine/internal/mailer"
)

type fakeRepo struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*Item
	order    []uuid.UUID
	claimErr error
	markErr  map[uuid.UUID]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items:   make(map[uuid.UUID]*Item),
		markErr: make(map[uuid.UUID]error),
	}
}

func (f *fakeRepo) add(consultationID uuid.UUID, attempts int, scheduledAt time.Time) *Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	it := &Item{
		ID:             uuid.New(),
		ConsultationID: consultationID,
		ScheduledAt:    scheduledAt,
		Status:         StatusPending,
		Attempts:       attempts,
	}
	f.items[it.ID] = it
	f.order = append(f.order, it.ID)
	return it
}

func (f *fakeRepo) ClaimDue(_ context.Context, now time.Time, _ time.Duration, limit int) ([]Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	var out []Item
	for _, id := range f.order {
		if len(out) == limit {
			break
		}
		it := f.items[id]
		if it.Status != StatusPending || it.ScheduledAt.After(now) {
			continue
		}
		it.Status = StatusProcessing
		claimed := now
		it.ClaimedAt = &claimed
		out = append(out, *it)
	}
	return out, nil
}

func (f *fakeRepo) finish(id uuid.UUID, status Status, attempts int, msg *string, sentAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.markErr[id]; err != nil {
		return err
	}
	it, ok := f.items[id]
	if !ok || it.Status != StatusProcessing {
		return ErrItemNotClaimed
	}
	it.Status = status
	it.Attempts = attempts
	it.ErrorMessage = msg
	if sentAt != nil {
		it.SentAt = sentAt
	}
	it.ClaimedAt = nil
	return nil
}

func (f *fakeRepo) MarkSent(_ context.Context, id uuid.UUID, attempts int, sentAt time.Time) error {
	return f.finish(id, StatusSent, attempts, nil, &sentAt)
}

func (f *fakeRepo) MarkRetry(_ context.Context, id uuid.UUID, attempts int, msg string) error {
	return f.finish(id, StatusPending, attempts, &msg, nil)
}

func (f *fakeRepo) MarkFailed(_ context.Context, id uuid.UUID, attempts int, msg string) error {
	return f.finish(id, StatusFailed, attempts, &msg, nil)
}

func (f *fakeRepo) get(id uuid.UUID) Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.items[id]
}

type fakeDetails struct {
	details map[uuid.UUID]*consultation.Detail
	err     error
}

func (f *fakeDetails) GetDetail(_ context.Context, id uuid.UUID) (*consultation.Detail, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.details[id]
	if !ok {
		return nil, consultation.ErrConsultationNotFound
	}
	cp := *d
	return &cp, nil
}

type fakeLinks struct {
	err error
}

func (f *fakeLinks) Link(_ context.Context, ref string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://files.example.com/" + ref + "?sig=abc", nil
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []mailer.Message
	failOn map[mailer.Kind]error
}

func (s *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[msg.Kind]; err != nil {
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) kinds() []mailer.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []mailer.Kind
	for _, m := range s.sent {
		out = append(out, m.Kind)
	}
	return out
}

type countingSender struct {
	next mailer.Sender
	n    int
}

func (s *countingSender) Send(ctx context.Context, msg mailer.Message) error {
	s.n++
	return s.next.Send(ctx, msg)
}

var (
	errRelay        = errors.New("relay unavailable")
	errDB           = errors.New("connection reset")
	errBrokerClosed = apperr.Wrap(apperr.KindTransient, "mail_broker_unavailable", "mail broker is unavailable", errors.New("channel/connection is not open"))
)
