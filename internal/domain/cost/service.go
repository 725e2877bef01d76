package cost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository"
	"github.com/google/uuid"
)

// Config holds tracker defaults.
type Config struct {
	// DefaultLimits apply to users without stored limits.
	DefaultLimits BudgetLimits
	// WarningThreshold is the utilization fraction that raises warnings and
	// downgrades recommendations.
	WarningThreshold float64
}

// DefaultConfig allows one dollar a day and twenty a month.
func DefaultConfig() Config {
	return Config{
		DefaultLimits:    BudgetLimits{DailyLimit: 1.0, MonthlyLimit: 20.0},
		WarningThreshold: 0.9,
	}
}

// Tracker records model spend per user and evaluates it against budgets.
// Writes for one user are serialized so concurrent callers never lose updates
// or observe a half-applied ledger.
type Tracker struct {
	repo    Repository
	catalog *llm.Catalog
	cfg     Config
	locks   *keyedMutex
	logger  *slog.Logger
	now     func() time.Time
}

// NewTracker creates a cost tracker.
func NewTracker(repo Repository, catalog *llm.Catalog, cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.WarningThreshold <= 0 || cfg.WarningThreshold > 1 {
		cfg.WarningThreshold = DefaultConfig().WarningThreshold
	}
	return &Tracker{
		repo:    repo,
		catalog: catalog,
		cfg:     cfg,
		locks:   newKeyedMutex(),
		logger:  logger,
		now:     time.Now,
	}
}

// WarningThreshold returns the configured warning fraction.
func (t *Tracker) WarningThreshold() float64 {
	return t.cfg.WarningThreshold
}

// TrackUsage prices a call, appends it to the ledger and reports the user's
// budget standing afterwards. Exceeding a budget is advisory only.
func (t *Tracker) TrackUsage(ctx context.Context, userID, model string, inputTokens, outputTokens int, operation, referenceID string) (*TrackResult, error) {
	if strings.TrimSpace(userID) == "" || model == "" || inputTokens < 0 || outputTokens < 0 {
		return nil, ErrInvalidInput
	}

	unlock := t.locks.Lock(userID)
	defer unlock()

	now := t.now().UTC()
	rec := &UsageRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		Model:        model,
		Operation:    operation,
		ReferenceID:  referenceID,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         t.catalog.Cost(model, inputTokens, outputTokens),
		CreatedAt:    now,
	}
	if err := t.repo.RecordUsage(ctx, rec); err != nil {
		return nil, fmt.Errorf("recording usage: %w", err)
	}

	standing, err := t.standing(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	alerts := standing.alerts(t.cfg.WarningThreshold)
	for _, a := range alerts {
		t.logger.Warn("budget alert",
			"user_id", userID,
			"scope", a.Scope,
			"level", a.Level,
			"spent", a.Spent,
			"limit", a.Limit,
		)
	}

	return &TrackResult{
		Cost:         rec.Cost,
		WithinBudget: standing.withinBudget(),
		Alerts:       alerts,
	}, nil
}

// GetCostStats aggregates the ledger over the rolling period ending now.
// Daily utilization is measured against the daily ceiling; weekly and monthly
// against the monthly ceiling.
func (t *Tracker) GetCostStats(ctx context.Context, userID string, period Period) (*CostStats, error) {
	window, ok := period.Duration()
	if !ok {
		return nil, ErrInvalidPeriod
	}

	records, err := t.repo.ListUsage(ctx, userID, t.now().UTC().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("listing usage: %w", err)
	}
	limits, err := t.GetBudgetLimits(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &CostStats{
		Period:       period,
		PerOperation: make(map[string]Totals),
		PerModel:     make(map[string]Totals),
	}
	var total Totals
	for _, rec := range records {
		total.add(rec)

		op := stats.PerOperation[rec.Operation]
		op.add(rec)
		stats.PerOperation[rec.Operation] = op

		m := stats.PerModel[rec.Model]
		m.add(rec)
		stats.PerModel[rec.Model] = m
	}
	stats.TotalCost = total.Cost
	stats.TotalTokens = total.Tokens
	stats.RequestCount = total.RequestCount

	ceiling := limits.MonthlyLimit
	if period == PeriodDay {
		ceiling = limits.DailyLimit
	}
	stats.BudgetUtilization = utilization(total.Cost, ceiling)
	return stats, nil
}

// GetModelRecommendation projects the premium price of an upcoming call
// against the user's remaining budget and advises the free tier when the
// projection reaches the warning threshold.
func (t *Tracker) GetModelRecommendation(ctx context.Context, userID, operation string, estimatedTokens int) (*Recommendation, error) {
	if estimatedTokens < 0 {
		return nil, ErrInvalidInput
	}
	premium := t.catalog.Premium()
	free := t.catalog.Free()
	estimate := premium.Cost(estimatedTokens, 0)

	standing, err := t.standing(ctx, userID, t.now().UTC())
	if err != nil {
		return nil, err
	}

	projected := math.Max(
		utilization(standing.daily+estimate, standing.limits.DailyLimit),
		utilization(standing.monthly+estimate, standing.limits.MonthlyLimit),
	)
	if projected >= t.cfg.WarningThreshold {
		return &Recommendation{
			Model:         free.Name,
			EstimatedCost: 0,
			Reason: fmt.Sprintf("projected budget utilization %.0f%% for %s reaches the %.0f%% warning threshold",
				projected*100, operation, t.cfg.WarningThreshold*100),
		}, nil
	}
	return &Recommendation{
		Model:         premium.Name,
		EstimatedCost: estimate,
		Reason:        fmt.Sprintf("projected budget utilization %.0f%% is within budget", projected*100),
	}, nil
}

// SetBudgetLimits stores new ceilings for a user.
func (t *Tracker) SetBudgetLimits(ctx context.Context, userID string, limits BudgetLimits) error {
	if strings.TrimSpace(userID) == "" || limits.DailyLimit < 0 || limits.MonthlyLimit < 0 {
		return ErrInvalidInput
	}

	unlock := t.locks.Lock(userID)
	defer unlock()

	limits.UpdatedAt = t.now().UTC()
	if err := t.repo.SetBudgetLimits(ctx, userID, limits); err != nil {
		return fmt.Errorf("storing budget limits: %w", err)
	}
	t.logger.Info("budget limits updated", "user_id", userID, "daily", limits.DailyLimit, "monthly", limits.MonthlyLimit)
	return nil
}

// GetBudgetLimits returns the user's ceilings or the configured defaults.
func (t *Tracker) GetBudgetLimits(ctx context.Context, userID string) (*BudgetLimits, error) {
	limits, err := t.repo.GetBudgetLimits(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			def := t.cfg.DefaultLimits
			return &def, nil
		}
		return nil, fmt.Errorf("loading budget limits: %w", err)
	}
	return limits, nil
}

// Utilization returns the larger of daily and monthly utilization.
func (t *Tracker) Utilization(ctx context.Context, userID string) (float64, error) {
	standing, err := t.standing(ctx, userID, t.now().UTC())
	if err != nil {
		return 0, err
	}
	return standing.utilization(), nil
}

// PruneUsage deletes ledger rows older than the retention window.
func (t *Tracker) PruneUsage(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := t.repo.PruneUsage(ctx, t.now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("pruning usage: %w", err)
	}
	return n, nil
}

// ActiveUsers lists users with ledger rows inside the period.
func (t *Tracker) ActiveUsers(ctx context.Context, period Period) ([]string, error) {
	window, ok := period.Duration()
	if !ok {
		return nil, ErrInvalidPeriod
	}
	users, err := t.repo.ListActiveUsers(ctx, t.now().UTC().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("listing active users: %w", err)
	}
	return users, nil
}

type standing struct {
	daily   float64
	monthly float64
	limits  BudgetLimits
}

func (t *Tracker) standing(ctx context.Context, userID string, now time.Time) (standing, error) {
	day, _ := PeriodDay.Duration()
	month, _ := PeriodMonth.Duration()

	daily, err := t.repo.SumUsage(ctx, userID, now.Add(-day))
	if err != nil {
		return standing{}, fmt.Errorf("summing daily usage: %w", err)
	}
	monthly, err := t.repo.SumUsage(ctx, userID, now.Add(-month))
	if err != nil {
		return standing{}, fmt.Errorf("summing monthly usage: %w", err)
	}
	limits, err := t.GetBudgetLimits(ctx, userID)
	if err != nil {
		return standing{}, err
	}
	return standing{daily: daily.Cost, monthly: monthly.Cost, limits: *limits}, nil
}

func (s standing) utilization() float64 {
	return math.Max(utilization(s.daily, s.limits.DailyLimit), utilization(s.monthly, s.limits.MonthlyLimit))
}

func (s standing) withinBudget() bool {
	return s.utilization() < 1
}

func (s standing) alerts(threshold float64) []Alert {
	var alerts []Alert
	check := func(scope AlertScope, spent, limit float64) {
		u := utilization(spent, limit)
		switch {
		case u >= 1:
			alerts = append(alerts, Alert{Scope: scope, Level: LevelExceeded, Spent: spent, Limit: limit, Utilization: u})
		case u >= threshold:
			alerts = append(alerts, Alert{Scope: scope, Level: LevelWarning, Spent: spent, Limit: limit, Utilization: u})
		}
	}
	check(ScopeDaily, s.daily, s.limits.DailyLimit)
	check(ScopeMonthly, s.monthly, s.limits.MonthlyLimit)
	return alerts
}

func utilization(spent, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return spent / limit
}
