package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every pooled connection to :memory: would be a separate database
	if dataSourceName == ":memory:" || strings.Contains(dataSourceName, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &DB{db}, nil
}

// RunMigrations creates the schema. It is idempotent and runs on every start.
func (db *DB) RunMigrations() error {
	migration := `
-- Processed events: one row per (user, event), the latest analyzed version
CREATE TABLE IF NOT EXISTS processed_events (
    user_id TEXT NOT NULL,
    event_id TEXT NOT NULL,
    hash TEXT NOT NULL,
    is_relevant INTEGER NOT NULL DEFAULT 0,
    state TEXT NOT NULL CHECK(state IN ('filtered_irrelevant', 'extracted', 'extraction_failed')),
    analysis TEXT,
    model TEXT NOT NULL DEFAULT '',
    processed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, event_id)
);
CREATE INDEX IF NOT EXISTS idx_processed_user_time ON processed_events(user_id, processed_at);

-- Usage ledger
CREATE TABLE IF NOT EXISTS usage_log (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    model TEXT NOT NULL,
    operation TEXT NOT NULL,
    reference_id TEXT NOT NULL DEFAULT '',
    input_tokens INTEGER NOT NULL,
    output_tokens INTEGER NOT NULL,
    cost REAL NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_user_time ON usage_log(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_time ON usage_log(created_at);

-- Budget ceilings
CREATE TABLE IF NOT EXISTS budget_limits (
    user_id TEXT PRIMARY KEY,
    daily_limit REAL NOT NULL,
    monthly_limit REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

-- Activity log
CREATE TABLE IF NOT EXISTS activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    activity_type TEXT NOT NULL,
    model TEXT NOT NULL DEFAULT '',
    operation TEXT NOT NULL DEFAULT '',
    summary TEXT NOT NULL,
    details TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_user_activity ON activity_log(user_id);
CREATE INDEX IF NOT EXISTS idx_activity_created_at ON activity_log(created_at);

-- API keys for authentication
CREATE TABLE IF NOT EXISTS api_keys (
    key_hash TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    last_used TIMESTAMP,
    description TEXT
);
CREATE INDEX IF NOT EXISTS idx_user_keys ON api_keys(user_id);
`

	_, err := db.Exec(migration)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
