package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository"
)

// UsageRepository implements cost.Repository for SQLite
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new UsageRepository
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// RecordUsage appends a ledger row
func (r *UsageRepository) RecordUsage(ctx context.Context, rec *cost.UsageRecord) error {
	query := `
		INSERT INTO usage_log (
			id, user_id, model, operation, reference_id,
			input_tokens, output_tokens, cost, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.Model,
		rec.Operation,
		rec.ReferenceID,
		rec.InputTokens,
		rec.OutputTokens,
		rec.Cost,
		rec.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate usage id %s", repository.ErrInvalidInput, rec.ID)
		}
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// SumUsage totals a user's ledger rows created at or after since
func (r *UsageRepository) SumUsage(ctx context.Context, userID string, since time.Time) (cost.Totals, error) {
	query := `
		SELECT
			COALESCE(SUM(cost), 0),
			COALESCE(SUM(input_tokens + output_tokens), 0),
			COUNT(*)
		FROM usage_log
		WHERE user_id = ? AND created_at >= ?
	`

	var t cost.Totals
	err := r.db.QueryRowContext(ctx, query, userID, since.UTC()).Scan(&t.Cost, &t.Tokens, &t.RequestCount)
	if err != nil {
		return cost.Totals{}, fmt.Errorf("failed to sum usage: %w", err)
	}
	return t, nil
}

// ListUsage returns a user's ledger rows created at or after since, oldest first
func (r *UsageRepository) ListUsage(ctx context.Context, userID string, since time.Time) ([]cost.UsageRecord, error) {
	query := `
		SELECT
			id, user_id, model, operation, reference_id,
			input_tokens, output_tokens, cost, created_at
		FROM usage_log
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	var records []cost.UsageRecord
	for rows.Next() {
		var rec cost.UsageRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Model,
			&rec.Operation,
			&rec.ReferenceID,
			&rec.InputTokens,
			&rec.OutputTokens,
			&rec.Cost,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage rows: %w", err)
	}
	return records, nil
}

// GetBudgetLimits retrieves a user's ceilings
func (r *UsageRepository) GetBudgetLimits(ctx context.Context, userID string) (*cost.BudgetLimits, error) {
	var limits cost.BudgetLimits
	err := r.db.QueryRowContext(ctx,
		`SELECT daily_limit, monthly_limit, updated_at FROM budget_limits WHERE user_id = ?`,
		userID,
	).Scan(&limits.DailyLimit, &limits.MonthlyLimit, &limits.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget limits: %w", err)
	}
	return &limits, nil
}

// SetBudgetLimits inserts or replaces a user's ceilings
func (r *UsageRepository) SetBudgetLimits(ctx context.Context, userID string, limits cost.BudgetLimits) error {
	query := `
		INSERT INTO budget_limits (user_id, daily_limit, monthly_limit, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			daily_limit = excluded.daily_limit,
			monthly_limit = excluded.monthly_limit,
			updated_at = excluded.updated_at
	`

	updatedAt := limits.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, query, userID, limits.DailyLimit, limits.MonthlyLimit, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to set budget limits: %w", err)
	}
	return nil
}

// ListActiveUsers returns users with ledger rows created at or after since
func (r *UsageRepository) ListActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM usage_log WHERE created_at >= ? ORDER BY user_id`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		users = append(users, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// PruneUsage deletes ledger rows created before the cutoff
func (r *UsageRepository) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM usage_log WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned usage: %w", err)
	}
	return n, nil
}
