package activity

import (
	"context"
	"time"
)

// Repository provides persistence operations for activity entries.
type Repository interface {
	Log(ctx context.Context, userID string, entry *ActivityEntry) error
	List(ctx context.Context, userID string, opts ListActivityOptions) ([]ActivityEntry, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}
