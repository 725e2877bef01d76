// Package scheduler runs the periodic maintenance jobs: per-user cost
// reports and retention pruning of the usage ledger, the activity log and
// idle rate-limit buckets.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	rcron "github.com/robfig/cron/v3"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/activity"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
)

const jobTimeout = 2 * time.Minute

// CostSource is the part of the cost tracker the jobs use.
type CostSource interface {
	ActiveUsers(ctx context.Context, period cost.Period) ([]string, error)
	GetCostStats(ctx context.Context, userID string, period cost.Period) (*cost.CostStats, error)
	PruneUsage(ctx context.Context, retention time.Duration) (int64, error)
}

// ActivityLog is the part of the activity service the jobs use.
type ActivityLog interface {
	LogDetails(ctx context.Context, userID string, typ activity.ActivityType, summary string, v any) error
	PruneBefore(ctx context.Context, retention time.Duration) (int64, error)
}

// BucketPruner drops rate-limit state unused for maxIdle.
type BucketPruner interface {
	Prune(maxIdle time.Duration) int
}

// Config holds the cron expressions and retention windows.
type Config struct {
	ReportSpec        string
	PruneSpec         string
	UsageRetention    time.Duration
	ActivityRetention time.Duration
	LimiterIdleTTL    time.Duration
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron     *rcron.Cron
	costs    CostSource
	activity ActivityLog
	limiter  BucketPruner
	cfg      Config
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	runs   map[string]int
}

// New registers the report and prune jobs. An empty spec disables its job.
func New(cfg Config, costs CostSource, activityLog ActivityLog, limiter BucketPruner, logger *slog.Logger) (*Scheduler, error) {
	if costs == nil || activityLog == nil || limiter == nil {
		return nil, errors.New("scheduler: missing dependency")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     rcron.New(),
		costs:    costs,
		activity: activityLog,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		runs:     make(map[string]int),
	}

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"cost_report", cfg.ReportSpec, s.Report},
		{"prune", cfg.PruneSpec, s.Prune},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, s.wrap(job.name, job.run)); err != nil {
			cancel()
			return nil, fmt.Errorf("scheduling %s (%q): %w", job.name, job.spec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) wrap(name string, run func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
		defer cancel()

		start := time.Now()
		err := run(ctx)

		s.mu.Lock()
		s.runs[name]++
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("scheduled job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("scheduled job finished", "job", name, "duration", time.Since(start))
	}
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop cancels running jobs and waits for them until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runs returns how many times the named job has completed.
func (s *Scheduler) Runs(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[name]
}

// Report logs the last day's spend of every active user and records it in
// the activity log. One user's failure does not stop the others.
func (s *Scheduler) Report(ctx context.Context) error {
	users, err := s.costs.ActiveUsers(ctx, cost.PeriodDay)
	if err != nil {
		return fmt.Errorf("listing active users: %w", err)
	}

	var errs []error
	for _, userID := range users {
		stats, err := s.costs.GetCostStats(ctx, userID, cost.PeriodDay)
		if err != nil {
			errs = append(errs, fmt.Errorf("stats for %s: %w", userID, err))
			continue
		}

		summary := fmt.Sprintf("$%s over %s requests and %s tokens (%.0f%% of daily budget)",
			humanize.FormatFloat("#,###.####", stats.TotalCost),
			humanize.Comma(int64(stats.RequestCount)),
			humanize.Comma(int64(stats.TotalTokens)),
			stats.BudgetUtilization*100,
		)
		s.logger.Info("daily cost report",
			"user_id", userID,
			"cost", stats.TotalCost,
			"requests", stats.RequestCount,
			"tokens", stats.TotalTokens,
			"utilization", stats.BudgetUtilization,
		)
		if err := s.activity.LogDetails(ctx, userID, activity.TypeCostReport, summary, stats); err != nil {
			errs = append(errs, fmt.Errorf("recording report for %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

// Prune applies the retention windows. A zero window skips its store.
func (s *Scheduler) Prune(ctx context.Context) error {
	var errs []error

	if s.cfg.UsageRetention > 0 {
		n, err := s.costs.PruneUsage(ctx, s.cfg.UsageRetention)
		if err != nil {
			errs = append(errs, err)
		} else {
			s.logger.Info("usage ledger pruned", "rows", n)
		}
	}
	if s.cfg.ActivityRetention > 0 {
		if _, err := s.activity.PruneBefore(ctx, s.cfg.ActivityRetention); err != nil {
			errs = append(errs, err)
		}
	}
	if s.cfg.LimiterIdleTTL > 0 {
		if n := s.limiter.Prune(s.cfg.LimiterIdleTTL); n > 0 {
			s.logger.Info("idle rate-limit buckets dropped", "buckets", n)
		}
	}
	return errors.Join(errs...)
}
