package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository"
)

// Detector decides whether an event needs analysis and records outcomes.
type Detector struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewDetector creates a change detector over store.
func NewDetector(store Store, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Detector{store: store, logger: logger, now: time.Now}
}

// ShouldProcess reports whether ev has no stored record for userID or its
// current fingerprint differs from the stored one. The fingerprint is
// returned so callers persist exactly the hash that was checked.
func (d *Detector) ShouldProcess(ctx context.Context, userID string, ev Event) (bool, string, error) {
	hash := ComputeHash(ev)
	ok, err := d.store.ShouldProcessEvent(ctx, userID, ev.ID, hash)
	if err != nil {
		return false, hash, fmt.Errorf("%w: checking event %s: %w", ErrStore, ev.ID, err)
	}
	return ok, hash, nil
}

// MarkProcessed upserts the outcome for an event. Repeating the call with the
// same record leaves the store unchanged apart from ProcessedAt.
func (d *Detector) MarkProcessed(ctx context.Context, rec *ProcessedEventRecord) error {
	if err := ValidateRecord(rec); err != nil {
		return err
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = d.now().UTC()
	}
	if err := d.store.MarkEventProcessed(ctx, rec); err != nil {
		return fmt.Errorf("%w: marking event %s: %w", ErrStore, rec.EventID, err)
	}
	d.logger.Debug("event processed", "user_id", rec.UserID, "event_id", rec.EventID, "state", rec.State)
	return nil
}

// Get returns the stored record for an event.
func (d *Detector) Get(ctx context.Context, userID, eventID string) (*ProcessedEventRecord, error) {
	rec, err := d.store.GetProcessedEvent(ctx, userID, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("%w: loading event %s: %w", ErrStore, eventID, err)
	}
	return rec, nil
}
