package sqlite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates a new in-memory SQLite database for testing
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	require.NoError(t, err, "failed to create test database")

	err = db.RunMigrations()
	require.NoError(t, err, "failed to run migrations")

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// TestMigrations verifies that migrations run successfully
func TestMigrations(t *testing.T) {
	db := NewTestDB(t)

	tables := []string{
		"processed_events",
		"usage_log",
		"budget_limits",
		"activity_log",
		"api_keys",
	}

	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err, "failed to query table %s", table)
		require.Equal(t, 1, count, "table %s not found", table)
	}
}

// TestMigrationsIdempotent verifies the schema can be applied on every start
func TestMigrationsIdempotent(t *testing.T) {
	db := NewTestDB(t)
	require.NoError(t, db.RunMigrations())
}

// TestProcessedEventsStateConstraint verifies skipped is never stored
func TestProcessedEventsStateConstraint(t *testing.T) {
	db := NewTestDB(t)

	_, err := db.Exec(
		`INSERT INTO processed_events (user_id, event_id, hash, state, processed_at) VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		"u1", "e1", "h1", "skipped")
	require.Error(t, err, "should fail with invalid state")
}
