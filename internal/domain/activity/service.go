package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Service handles activity log operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new activity service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{repo: repo, logger: logger}
}

// LogActivity logs an activity entry with the current timestamp if missing.
func (s *Service) LogActivity(ctx context.Context, userID string, entry *ActivityEntry) error {
	if entry == nil || entry.ActivityType == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(userID) == "" {
		userID = SystemUser
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.Log(ctx, userID, entry); err != nil {
		return fmt.Errorf("logging activity: %w", err)
	}
	return nil
}

// LogDetails logs an entry whose details are the JSON encoding of v.
func (s *Service) LogDetails(ctx context.Context, userID string, typ ActivityType, summary string, v any) error {
	details, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding activity details: %w", err)
	}
	return s.LogActivity(ctx, userID, &ActivityEntry{
		ActivityType: typ,
		Summary:      summary,
		Details:      string(details),
	})
}

// GetRecentActivity lists activity entries with filtering.
func (s *Service) GetRecentActivity(ctx context.Context, userID string, opts ListActivityOptions) ([]ActivityEntry, error) {
	return s.repo.List(ctx, userID, opts)
}

// PruneBefore deletes entries older than the retention window.
func (s *Service) PruneBefore(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.Prune(ctx, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("pruning activity: %w", err)
	}
	if n > 0 {
		s.logger.Info("activity pruned", "rows", n)
	}
	return n, nil
}
