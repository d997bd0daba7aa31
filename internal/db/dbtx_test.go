package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "appointments_doctor_slot_active_key"}
	wrapped := fmt.Errorf("insert appointment: %w", pgErr)

	assert.True(t, IsUniqueViolation(wrapped, ""))
	assert.True(t, IsUniqueViolation(wrapped, "appointments_doctor_slot_active_key"))
	assert.False(t, IsUniqueViolation(wrapped, "other_key"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
}
