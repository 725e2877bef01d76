package observe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/activity"
)

// ActivityLogger persists activity entries.
type ActivityLogger interface {
	LogActivity(ctx context.Context, userID string, entry *activity.ActivityEntry) error
}

// Reporter drains a signal channel, logging every signal and persisting it
// to the activity log when one is configured.
type Reporter struct {
	signals <-chan Signal
	store   ActivityLogger
	logger  *slog.Logger
}

// NewReporter creates a reporter. store may be nil.
func NewReporter(signals <-chan Signal, store ActivityLogger, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reporter{signals: signals, store: store, logger: logger}
}

// Run consumes signals until the channel closes or ctx is done. Remaining
// buffered signals are drained before returning on a closed channel.
func (r *Reporter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-r.signals:
			if !ok {
				return nil
			}
			r.handle(ctx, s)
		}
	}
}

func (r *Reporter) handle(ctx context.Context, s Signal) {
	entry, owner, err := r.toEntry(s)
	if err != nil {
		r.logger.Warn("dropping malformed signal", "kind", s.Kind, "error", err)
		return
	}

	switch s.Kind {
	case KindRequestFailed:
		r.logger.Warn(entry.Summary, "user_id", owner, "model", entry.Model, "operation", entry.Operation, "error", s.Failed.Error)
	default:
		r.logger.Debug(entry.Summary, "user_id", owner, "model", entry.Model, "operation", entry.Operation)
	}

	if r.store == nil {
		return
	}
	if err := r.store.LogActivity(ctx, owner, entry); err != nil {
		r.logger.Error("failed to persist activity", "kind", s.Kind, "error", err)
	}
}

func (r *Reporter) toEntry(s Signal) (*activity.ActivityEntry, string, error) {
	var (
		payload any
		entry   activity.ActivityEntry
		owner  string
	)
	switch s.Kind {
	case KindRequestCompleted:
		if s.Completed == nil {
			return nil, "", fmt.Errorf("missing payload")
		}
		e := s.Completed
		payload, owner = e, e.UserID
		entry = activity.ActivityEntry{
			ActivityType: activity.TypeRequestCompleted,
			Model:        e.Model,
			Operation:    e.Operation,
			Summary:      fmt.Sprintf("%s completed in %dms", e.Operation, e.ProcessingTime.Milliseconds()),
			CreatedAt:    e.Timestamp,
		}
	case KindRequestFailed:
		if s.Failed == nil {
			return nil, "", fmt.Errorf("missing payload")
		}
		e := s.Failed
		payload, owner = e, e.UserID
		entry = activity.ActivityEntry{
			ActivityType: activity.TypeRequestFailed,
			Model:        e.Model,
			Operation:    e.Operation,
			Summary:      fmt.Sprintf("%s failed", e.Operation),
			CreatedAt:    e.Timestamp,
		}
	case KindConcurrencyChanged:
		if s.Concurrency == nil {
			return nil, "", fmt.Errorf("missing payload")
		}
		e := s.Concurrency
		payload, owner = e, activity.SystemUser
		entry = activity.ActivityEntry{
			ActivityType: activity.TypeConcurrencyChanged,
			Summary:      fmt.Sprintf("concurrency limit %d -> %d", e.PreviousLimit, e.NewLimit),
			CreatedAt:    e.Timestamp,
		}
	default:
		return nil, "", fmt.Errorf("unknown kind %q", s.Kind)
	}

	details, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	entry.Details = string(details)
	if owner == "" {
		owner = activity.SystemUser
	}
	return &entry, owner, nil
}
