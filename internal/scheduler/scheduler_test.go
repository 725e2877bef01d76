package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/activity"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeCosts struct {
	mu        sync.Mutex
	users     []string
	failUser  string
	retention time.Duration
	pruned    int
}

func (f *fakeCosts) ActiveUsers(ctx context.Context, period cost.Period) ([]string, error) {
	return f.users, nil
}

func (f *fakeCosts) GetCostStats(ctx context.Context, userID string, period cost.Period) (*cost.CostStats, error) {
	if userID == f.failUser {
		return nil, errors.New("ledger unavailable")
	}
	return &cost.CostStats{
		Period:            period,
		TotalCost:         1234.5,
		TotalTokens:       2500000,
		RequestCount:      1200,
		BudgetUtilization: 0.5,
	}, nil
}

func (f *fakeCosts) PruneUsage(ctx context.Context, retention time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retention = retention
	f.pruned++
	return 3, nil
}

type fakeLimiter struct {
	mu      sync.Mutex
	maxIdle time.Duration
}

func (f *fakeLimiter) Prune(maxIdle time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxIdle = maxIdle
	return 1
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New(Config{ReportSpec: "every tuesday"}, &fakeCosts{}, activity.NewService(&mocks.ActivityRepository{}, nil), &fakeLimiter{}, nil)
	require.Error(t, err)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{}, nil, nil, nil, nil)
	require.Error(t, err)
}

func TestReport_LogsEveryActiveUser(t *testing.T) {
	ctx := context.Background()
	repo := &mocks.ActivityRepository{}
	repo.On("Log", mock.Anything, "u1", mock.MatchedBy(func(e *activity.ActivityEntry) bool {
		return e.ActivityType == activity.TypeCostReport &&
			strings.HasPrefix(e.Summary, "$1,234.5") &&
			strings.Contains(e.Summary, "1,200 requests and 2,500,000 tokens (50% of daily budget)")
	})).Return(nil).Once()

	costs := &fakeCosts{users: []string{"u1", "broken"}, failUser: "broken"}
	s, err := New(Config{}, costs, activity.NewService(repo, nil), &fakeLimiter{}, nil)
	require.NoError(t, err)

	err = s.Report(ctx)
	require.Error(t, err, "the failing user is reported")
	require.Contains(t, err.Error(), "broken")
	repo.AssertExpectations(t)
}

func TestPrune_AppliesRetention(t *testing.T) {
	repo := &mocks.ActivityRepository{}
	repo.On("Prune", mock.Anything, mock.MatchedBy(func(before time.Time) bool {
		return time.Since(before) > 29*24*time.Hour
	})).Return(int64(2), nil).Once()

	costs := &fakeCosts{}
	limiter := &fakeLimiter{}
	s, err := New(Config{
		UsageRetention:    90 * 24 * time.Hour,
		ActivityRetention: 30 * 24 * time.Hour,
		LimiterIdleTTL:    time.Hour,
	}, costs, activity.NewService(repo, nil), limiter, nil)
	require.NoError(t, err)

	require.NoError(t, s.Prune(context.Background()))
	require.Equal(t, 90*24*time.Hour, costs.retention)
	require.Equal(t, time.Hour, limiter.maxIdle)
	repo.AssertExpectations(t)
}

func TestPrune_ZeroRetentionSkips(t *testing.T) {
	repo := &mocks.ActivityRepository{}
	costs := &fakeCosts{}
	s, err := New(Config{}, costs, activity.NewService(repo, nil), &fakeLimiter{}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Prune(context.Background()))
	require.Zero(t, costs.pruned)
	repo.AssertNotCalled(t, "Prune", mock.Anything, mock.Anything)
}

func TestScheduler_RunsJobs(t *testing.T) {
	costs := &fakeCosts{}
	s, err := New(Config{PruneSpec: "@every 1s", UsageRetention: time.Hour}, costs,
		activity.NewService(&mocks.ActivityRepository{}, nil), &fakeLimiter{}, nil)
	require.NoError(t, err)

	s.Start()
	require.Eventually(t, func() bool { return s.Runs("prune") > 0 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}
