package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muni-pipeline/internal/partition"
)

func TestIsDuplicateObject(t *testing.T) {
	assert.True(t, isDuplicateObject(&pgconn.PgError{Code: "42P07"}), "duplicate_table")
	assert.True(t, isDuplicateObject(&pgconn.PgError{Code: "23505"}), "unique_violation")
	assert.True(t, isDuplicateObject(fmt.Errorf("exec: %w", &pgconn.PgError{Code: "42P07"})))
	assert.False(t, isDuplicateObject(&pgconn.PgError{Code: "42501"}), "insufficient_privilege")
	assert.False(t, isDuplicateObject(fmt.Errorf("connection refused")))
}

// The identifier whitelist must reject a malformed name before any SQL is
// built; these calls never touch the database.
func TestInvalidPartitionNameRejected(t *testing.T) {
	s := &Store{loc: time.UTC}
	bad := partition.Key{Year: 12345, Week: 1}

	err := s.EnsurePartition(context.Background(), bad)
	assert.ErrorIs(t, err, ErrPartitionCreate)

	_, err = s.ReadPartition(context.Background(), bad)
	assert.Error(t, err)

	err = s.DropPartition(context.Background(), bad)
	assert.Error(t, err)
}

func TestPgLayoutRendersZone(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	ts := time.Date(2025, 3, 3, 0, 0, 0, 0, la)
	assert.Equal(t, "2025-03-03 00:00:00.000000-08:00", ts.Format(pgLayout))
}
