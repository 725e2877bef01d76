package cost

import (
	"context"
	"time"
)

// Repository persists the usage ledger and per-user budget limits.
// GetBudgetLimits returns repository.ErrNotFound when the user has none.
type Repository interface {
	RecordUsage(ctx context.Context, rec *UsageRecord) error
	SumUsage(ctx context.Context, userID string, since time.Time) (Totals, error)
	ListUsage(ctx context.Context, userID string, since time.Time) ([]UsageRecord, error)
	GetBudgetLimits(ctx context.Context, userID string) (*BudgetLimits, error)
	SetBudgetLimits(ctx context.Context, userID string, limits BudgetLimits) error
	ListActiveUsers(ctx context.Context, since time.Time) ([]string, error)
	PruneUsage(ctx context.Context, before time.Time) (int64, error)
}
