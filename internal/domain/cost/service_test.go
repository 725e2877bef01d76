package cost_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// memRepo is an in-memory ledger.
type memRepo struct {
	mu      sync.Mutex
	records []cost.UsageRecord
	limits  map[string]cost.BudgetLimits
}

func newMemRepo() *memRepo {
	return &memRepo{limits: make(map[string]cost.BudgetLimits)}
}

func (r *memRepo) RecordUsage(ctx context.Context, rec *cost.UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func (r *memRepo) SumUsage(ctx context.Context, userID string, since time.Time) (cost.Totals, error) {
	recs, _ := r.ListUsage(ctx, userID, since)
	var t cost.Totals
	for _, rec := range recs {
		t.Cost += rec.Cost
		t.Tokens += rec.InputTokens + rec.OutputTokens
		t.RequestCount++
	}
	return t, nil
}

func (r *memRepo) ListUsage(ctx context.Context, userID string, since time.Time) ([]cost.UsageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []cost.UsageRecord
	for _, rec := range r.records {
		if rec.UserID == userID && !rec.CreatedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *memRepo) GetBudgetLimits(ctx context.Context, userID string) (*cost.BudgetLimits, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limits[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

func (r *memRepo) SetBudgetLimits(ctx context.Context, userID string, limits cost.BudgetLimits) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[userID] = limits
	return nil
}

func (r *memRepo) ListActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, rec := range r.records {
		if !rec.CreatedAt.Before(since) && !seen[rec.UserID] {
			seen[rec.UserID] = true
			out = append(out, rec.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memRepo) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	var n int64
	for _, rec := range r.records {
		if rec.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return n, nil
}

const unitCost = 0.001

func testCatalog(t *testing.T) *llm.Catalog {
	t.Helper()
	c, err := llm.NewCatalog("premium", "free", []llm.ModelSpec{
		{Name: "premium", Tier: llm.TierPremium, UnitCost: unitCost},
		{Name: "free", Tier: llm.TierFree},
	})
	require.NoError(t, err)
	return c
}

func newTracker(t *testing.T, repo cost.Repository) *cost.Tracker {
	t.Helper()
	return cost.NewTracker(repo, testCatalog(t), cost.Config{
		DefaultLimits:    cost.BudgetLimits{DailyLimit: 1, MonthlyLimit: 10},
		WarningThreshold: 0.9,
	}, nil)
}

func TestTrackUsage_FreeModelCostsNothing(t *testing.T) {
	tr := newTracker(t, newMemRepo())

	res, err := tr.TrackUsage(context.Background(), "u1", "free", 50000, 20000, "filter", "evt-1")
	require.NoError(t, err)
	require.Equal(t, 0.0, res.Cost)
	require.True(t, res.WithinBudget)
	require.Empty(t, res.Alerts)
}

func TestTrackUsage_PricedModelArithmetic(t *testing.T) {
	tr := newTracker(t, newMemRepo())

	res, err := tr.TrackUsage(context.Background(), "u1", "premium", 120, 80, "extract", "evt-1")
	require.NoError(t, err)
	require.Equal(t, float64(120+80)*unitCost, res.Cost)
}

func TestTrackUsage_Alerts(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t, newMemRepo())

	// 950 tokens at 0.001 is 95% of the daily ceiling
	res, err := tr.TrackUsage(ctx, "u1", "premium", 950, 0, "extract", "a")
	require.NoError(t, err)
	require.True(t, res.WithinBudget)
	require.Len(t, res.Alerts, 1)
	require.Equal(t, cost.ScopeDaily, res.Alerts[0].Scope)
	require.Equal(t, cost.LevelWarning, res.Alerts[0].Level)

	res, err = tr.TrackUsage(ctx, "u1", "premium", 100, 0, "extract", "b")
	require.NoError(t, err)
	require.False(t, res.WithinBudget)
	require.Len(t, res.Alerts, 1)
	require.Equal(t, cost.LevelExceeded, res.Alerts[0].Level)
}

func TestTrackUsage_InvalidInput(t *testing.T) {
	tr := newTracker(t, newMemRepo())
	_, err := tr.TrackUsage(context.Background(), "", "premium", 1, 1, "x", "")
	require.ErrorIs(t, err, cost.ErrInvalidInput)
	_, err = tr.TrackUsage(context.Background(), "u1", "premium", -1, 1, "x", "")
	require.ErrorIs(t, err, cost.ErrInvalidInput)
}

func TestTrackUsage_ConcurrentWritersKeepEveryRow(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	tr := newTracker(t, repo)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.TrackUsage(ctx, "u1", "premium", 1, 1, "extract", "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := tr.GetCostStats(ctx, "u1", cost.PeriodDay)
	require.NoError(t, err)
	require.Equal(t, 50, stats.RequestCount)
	require.Equal(t, 100, stats.TotalTokens)
	require.InDelta(t, 0.1, stats.TotalCost, 1e-9)
}

func TestGetCostStats_Breakdowns(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t, newMemRepo())

	_, err := tr.TrackUsage(ctx, "u1", "free", 10, 10, "filter", "e1")
	require.NoError(t, err)
	_, err = tr.TrackUsage(ctx, "u1", "premium", 100, 100, "extract", "e1")
	require.NoError(t, err)
	_, err = tr.TrackUsage(ctx, "u2", "premium", 100, 100, "extract", "e9")
	require.NoError(t, err)

	stats, err := tr.GetCostStats(ctx, "u1", cost.PeriodMonth)
	require.NoError(t, err)
	require.Equal(t, 2, stats.RequestCount)
	require.Equal(t, 220, stats.TotalTokens)
	require.Equal(t, 1, stats.PerOperation["filter"].RequestCount)
	require.Equal(t, 0.0, stats.PerModel["free"].Cost)
	require.InDelta(t, 0.2, stats.PerModel["premium"].Cost, 1e-9)
	require.InDelta(t, 0.02, stats.BudgetUtilization, 1e-9)

	_, err = tr.GetCostStats(ctx, "u1", cost.Period("year"))
	require.ErrorIs(t, err, cost.ErrInvalidPeriod)
}

func TestGetModelRecommendation(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t, newMemRepo())

	rec, err := tr.GetModelRecommendation(ctx, "u1", "extract", 100)
	require.NoError(t, err)
	require.Equal(t, "premium", rec.Model)
	require.InDelta(t, 0.1, rec.EstimatedCost, 1e-9)

	_, err = tr.TrackUsage(ctx, "u1", "premium", 850, 0, "extract", "")
	require.NoError(t, err)

	rec, err = tr.GetModelRecommendation(ctx, "u1", "extract", 100)
	require.NoError(t, err)
	require.Equal(t, "free", rec.Model)
	require.Contains(t, rec.Reason, "warning threshold")
}

func TestBudgetLimits_DefaultsAndOverride(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t, newMemRepo())

	limits, err := tr.GetBudgetLimits(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1.0, limits.DailyLimit)

	require.NoError(t, tr.SetBudgetLimits(ctx, "u1", cost.BudgetLimits{DailyLimit: 5, MonthlyLimit: 50}))
	limits, err = tr.GetBudgetLimits(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 5.0, limits.DailyLimit)
	require.Equal(t, 50.0, limits.MonthlyLimit)

	require.ErrorIs(t, tr.SetBudgetLimits(ctx, "u1", cost.BudgetLimits{DailyLimit: -1}), cost.ErrInvalidInput)
}

func TestUtilization(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t, newMemRepo())

	_, err := tr.TrackUsage(ctx, "u1", "premium", 500, 0, "extract", "")
	require.NoError(t, err)

	u, err := tr.Utilization(ctx, "u1")
	require.NoError(t, err)
	require.InDelta(t, 0.5, u, 1e-9)
}

func TestTracker_RepositoryErrors(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.CostRepository{}
	repo.On("RecordUsage", ctx, mock.Anything).Return(errors.New("locked"))
	repo.On("GetBudgetLimits", ctx, "u1").Return(nil, errors.New("locked"))

	tr := newTracker(t, repo)
	_, err := tr.TrackUsage(ctx, "u1", "premium", 1, 1, "extract", "")
	require.Error(t, err)

	_, err = tr.GetBudgetLimits(ctx, "u1")
	require.Error(t, err)
}
