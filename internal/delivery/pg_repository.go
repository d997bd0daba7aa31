package delivery

import (
	"context"
	"fmt"
	"time"

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

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	err := row.Scan(
		&it.ID,
		&it.ConsultationID,
		&it.ScheduledAt,
		&it.Status,
		&it.Attempts,
		&it.ErrorMessage,
		&it.ClaimedAt,
		&it.SentAt,
		&it.CreatedAt,
		&it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *PgRepository) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT id
			FROM report_delivery_queue
			WHERE scheduled_at <= $1
			  AND (status = 'pending'
			       OR (status = 'processing' AND claimed_at < $1 - make_interval(secs => $2)))
			ORDER BY scheduled_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE report_delivery_queue q
		SET status = 'processing',
		    claimed_at = $1,
		    updated_at = now()
		FROM due
		WHERE q.id = due.id
		RETURNING q.id, q.consultation_id, q.scheduled_at, q.status, q.attempts,
		          q.error_message, q.claimed_at, q.sent_at, q.created_at, q.updated_at
	`, now, lease.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) MarkSent(ctx context.Context, id uuid.UUID, attempts int, sentAt time.Time) error {
	return r.finish(ctx, id, StatusSent, attempts, nil, &sentAt)
}

func (r *PgRepository) MarkRetry(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error {
	return r.finish(ctx, id, StatusPending, attempts, &errMsg, nil)
}

func (r *PgRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, errMsg string) error {
	return r.finish(ctx, id, StatusFailed, attempts, &errMsg, nil)
}

// finish never lowers attempts.
func (r *PgRepository) finish(ctx context.Context, id uuid.UUID, status Status, attempts int, errMsg *string, sentAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE report_delivery_queue
		SET status = $2,
		    attempts = GREATEST(attempts, $3),
		    error_message = $4,
		    sent_at = COALESCE($5, sent_at),
		    claimed_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'processing'
	`, id, status, attempts, errMsg, sentAt)
	if err != nil {
		return fmt.Errorf("update delivery item %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotClaimed
	}
	return nil
}
