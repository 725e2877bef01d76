package event

import "context"

// Store persists processed-event records. It is the single source of truth
// for what has been analyzed. GetProcessedEvent returns
// repository.ErrNotFound when no record exists.
type Store interface {
	ShouldProcessEvent(ctx context.Context, userID, eventID, hash string) (bool, error)
	MarkEventProcessed(ctx context.Context, rec *ProcessedEventRecord) error
	GetProcessedEvent(ctx context.Context, userID, eventID string) (*ProcessedEventRecord, error)
}
