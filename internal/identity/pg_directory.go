package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgDirectory struct {
	pool *pgxpool.Pool
}

func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.OrganizationID,
		&u.Role,
		&u.FullName,
		&u.Email,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (d *PgDirectory) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, organization_id, role, full_name, email, created_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (d *PgDirectory) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	var o Organization
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, created_at
		FROM organizations
		WHERE id = $1
	`, id).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrganizationNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (d *PgDirectory) FirstDoctorOfOrganization(ctx context.Context, orgID uuid.UUID) (*User, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT id, organization_id, role, full_name, email, created_at
		FROM users
		WHERE organization_id = $1 AND role = 'doctor'
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, orgID)
	u, err := scanUser(row)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrDoctorNotFound
	}
	return u, err
}
