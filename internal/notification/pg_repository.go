package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var payload []byte

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.OrganizationID,
		&rec.Type,
		&rec.Title,
		&rec.Message,
		&payload,
		&rec.SendEmailRequested,
		&rec.EmailStatus,
		&rec.EmailAttempts,
		&rec.EmailError,
		&rec.EmailClaimedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode notification payload: %w", err)
		}
	}
	return &rec, nil
}

func (r *PgRepository) Insert(ctx context.Context, rec *Record) error {
	payload := []byte("{}")
	if len(rec.Payload) > 0 {
		var err error
		payload, err = json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("encode notification payload: %w", err)
		}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO notifications (
			id, user_id, organization_id, type, title, message, payload,
			send_email_requested, email_status, email_attempts, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, 0, $10)
	`, rec.ID, rec.UserID, rec.OrganizationID, rec.Type, rec.Title, rec.Message, string(payload),
		rec.SendEmailRequested, rec.EmailStatus, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *PgRepository) ClaimPendingEmails(ctx context.Context, lease time.Duration, limit int) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM notifications
			WHERE email_status = 'pending'
			   OR (email_status = 'sending' AND email_claimed_at < now() - make_interval(secs => $1))
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notifications n
		SET email_status = 'sending',
		    email_claimed_at = now()
		FROM due
		WHERE n.id = due.id
		RETURNING n.id, n.user_id, n.organization_id, n.type, n.title, n.message, n.payload,
		          n.send_email_requested, n.email_status, n.email_attempts, n.email_error,
		          n.email_claimed_at, n.created_at
	`, lease.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) RecipientEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	var email *string
	err := r.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRecipientNotFound
		}
		return "", err
	}
	if email == nil {
		return "", nil
	}
	return *email, nil
}

func (r *PgRepository) MarkEmailSent(ctx context.Context, id uuid.UUID, attempts int) error {
	return r.setEmailStatus(ctx, id, EmailSent, attempts, nil)
}

func (r *PgRepository) MarkEmailRetry(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error {
	return r.setEmailStatus(ctx, id, EmailPending, attempts, &errMsg)
}

func (r *PgRepository) MarkEmailFailed(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error {
	return r.setEmailStatus(ctx, id, EmailFailed, attempts, &errMsg)
}

func (r *PgRepository) setEmailStatus(ctx context.Context, id uuid.UUID, status EmailStatus, attempts int, errMsg *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications
		SET email_status = $2,
		    email_attempts = $3,
		    email_error = $4,
		    email_claimed_at = NULL
		WHERE id = $1
		  AND email_status = 'sending'
	`, id, status, attempts, errMsg)
	if err != nil {
		return fmt.Errorf("update notification email status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
