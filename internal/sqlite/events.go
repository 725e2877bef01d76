package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository"
)

// ProcessedEventRepository implements event.Store for SQLite
type ProcessedEventRepository struct {
	db *DB
}

// NewProcessedEventRepository creates a new ProcessedEventRepository
func NewProcessedEventRepository(db *DB) *ProcessedEventRepository {
	return &ProcessedEventRepository{db: db}
}

// ShouldProcessEvent reports whether no record exists for the event or the
// stored fingerprint differs from hash.
func (r *ProcessedEventRepository) ShouldProcessEvent(ctx context.Context, userID, eventID, hash string) (bool, error) {
	var stored string
	err := r.db.QueryRowContext(ctx,
		`SELECT hash FROM processed_events WHERE user_id = ? AND event_id = ?`,
		userID, eventID,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up processed event: %w", err)
	}
	return stored != hash, nil
}

// MarkEventProcessed inserts or replaces the record for (user, event)
func (r *ProcessedEventRepository) MarkEventProcessed(ctx context.Context, rec *event.ProcessedEventRecord) error {
	var analysis sql.NullString
	if rec.Analysis != nil {
		data, err := json.Marshal(rec.Analysis)
		if err != nil {
			return fmt.Errorf("failed to encode analysis: %w", err)
		}
		analysis = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO processed_events (
			user_id, event_id, hash, is_relevant, state, analysis, model, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, event_id) DO UPDATE SET
			hash = excluded.hash,
			is_relevant = excluded.is_relevant,
			state = excluded.state,
			analysis = excluded.analysis,
			model = excluded.model,
			processed_at = excluded.processed_at
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.UserID,
		rec.EventID,
		rec.Hash,
		rec.IsRelevant,
		rec.State,
		analysis,
		rec.Model,
		rec.ProcessedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// GetProcessedEvent retrieves the record for (user, event)
func (r *ProcessedEventRepository) GetProcessedEvent(ctx context.Context, userID, eventID string) (*event.ProcessedEventRecord, error) {
	query := `
		SELECT user_id, event_id, hash, is_relevant, state, analysis, model, processed_at
		FROM processed_events
		WHERE user_id = ? AND event_id = ?
	`

	var rec event.ProcessedEventRecord
	var analysis sql.NullString
	err := r.db.QueryRowContext(ctx, query, userID, eventID).Scan(
		&rec.UserID,
		&rec.EventID,
		&rec.Hash,
		&rec.IsRelevant,
		&rec.State,
		&analysis,
		&rec.Model,
		&rec.ProcessedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processed event: %w", err)
	}

	if analysis.Valid {
		var a event.AnalysisResult
		if err := json.Unmarshal([]byte(analysis.String), &a); err != nil {
			return nil, fmt.Errorf("failed to decode analysis: %w", err)
		}
		rec.Analysis = &a
	}
	return &rec, nil
}

// CountByState returns the number of records per state for a user
func (r *ProcessedEventRepository) CountByState(ctx context.Context, userID string) (map[event.State]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM processed_events WHERE user_id = ? GROUP BY state`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count processed events: %w", err)
	}
	defer rows.Close()

	counts := make(map[event.State]int)
	for rows.Next() {
		var state event.State
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan state count: %w", err)
		}
		counts[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating state counts: %w", err)
	}
	return counts, nil
}
