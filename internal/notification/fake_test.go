package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/practice-booking-engine/internal/apperr"
	"github.com/hackgods/practice-booking-engine/internal/mailer"
)

type fakeRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
	emails  map[uuid.UUID]string

	insertErr   error
	insertPanic bool
	lastCtxErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records: make(map[uuid.UUID]*Record),
		emails:  make(map[uuid.UUID]string),
	}
}

func (f *fakeRepo) Insert(ctx context.Context, rec *Record) error {
	if f.insertPanic {
		panic("driver exploded")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCtxErr = ctx.Err()
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *rec
	f.records[rec.ID] = &cp
	return nil
}

func (f *fakeRepo) ClaimPendingEmails(_ context.Context, _ time.Duration, limit int) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for _, r := range f.records {
		if len(out) == limit {
			break
		}
		if r.EmailStatus == EmailPending {
			r.EmailStatus = EmailSending
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) RecipientEmail(_ context.Context, userID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.emails[userID]
	if !ok {
		return "", ErrRecipientNotFound
	}
	return email, nil
}

func (f *fakeRepo) set(id uuid.UUID, status EmailStatus, attempts int, msg *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || r.EmailStatus != EmailSending {
		return ErrNotificationNotFound
	}
	r.EmailStatus = status
	r.EmailAttempts = attempts
	r.EmailError = msg
	return nil
}

func (f *fakeRepo) MarkEmailSent(_ context.Context, id uuid.UUID, attempts int) error {
	return f.set(id, EmailSent, attempts, nil)
}

func (f *fakeRepo) MarkEmailRetry(_ context.Context, id uuid.UUID, attempts int, msg string) error {
	return f.set(id, EmailPending, attempts, &msg)
}

func (f *fakeRepo) MarkEmailFailed(_ context.Context, id uuid.UUID, attempts int, msg string) error {
	return f.set(id, EmailFailed, attempts, &msg)
}

func (f *fakeRepo) get(id uuid.UUID) Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[id]
}

func (f *fakeRepo) only() Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		return *r
	}
	return Record{}
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []mailer.Message
	err   error
	calls int
}

func (s *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

var (
	errSMTP         = errors.New("relay unavailable")
	errBrokerClosed = apperr.Wrap(apperr.KindTransient, "mail_broker_unavailable", "mail broker is unavailable", errors.New("channel/connection is not open"))
)
