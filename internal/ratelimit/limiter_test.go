package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func testCatalog(t *testing.T) *llm.Catalog {
	t.Helper()
	c, err := llm.NewCatalog("premium", "free", []llm.ModelSpec{
		{Name: "premium", Tier: llm.TierPremium, UnitCost: 0.001, RequestsPerMinute: 60},
		{Name: "free", Tier: llm.TierFree, RequestsPerDay: 3},
	})
	require.NoError(t, err)
	return c
}

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	l := New(testCatalog(t), cfg, nil)
	l.now = clock.Now
	l.sleep = clock.Sleep
	return l, clock
}

func drainPremium(t *testing.T, l *Limiter, userID string) {
	t.Helper()
	for i := 0; i < 60; i++ {
		require.True(t, l.CheckLimit(userID, "premium").Allowed)
	}
}

func TestCheckLimit_MinuteWindow(t *testing.T) {
	l, clock := newTestLimiter(t, Config{})

	drainPremium(t, l, "u1")

	d := l.CheckLimit("u1", "premium")
	require.False(t, d.Allowed)
	require.Equal(t, "free", d.Suggestion)
	require.Equal(t, clock.now.Add(time.Second), d.ResetTime)

	// other users have their own buckets
	require.True(t, l.CheckLimit("u2", "premium").Allowed)

	clock.now = clock.now.Add(time.Second)
	require.True(t, l.CheckLimit("u1", "premium").Allowed)
	require.False(t, l.CheckLimit("u1", "premium").Allowed)
}

func TestCheckLimit_DailyQuota(t *testing.T) {
	l, clock := newTestLimiter(t, Config{})

	for i := 0; i < 3; i++ {
		require.True(t, l.CheckLimit("u1", "free").Allowed)
	}

	d := l.CheckLimit("u1", "free")
	require.False(t, d.Allowed)
	require.Empty(t, d.Suggestion)
	require.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), d.ResetTime)

	clock.now = time.Date(2026, 5, 2, 0, 0, 1, 0, time.UTC)
	require.True(t, l.CheckLimit("u1", "free").Allowed)
}

func TestAcquire_FallsBackToFreeTier(t *testing.T) {
	l, clock := newTestLimiter(t, Config{})
	ctx := context.Background()

	drainPremium(t, l, "u1")

	model, err := l.Acquire(ctx, "u1", "premium")
	require.NoError(t, err)
	require.Equal(t, "free", model)
	require.Empty(t, clock.sleeps)
}

func TestAcquire_WaitsWhenNothingAvailable(t *testing.T) {
	l, clock := newTestLimiter(t, Config{})
	ctx := context.Background()

	drainPremium(t, l, "u1")
	for i := 0; i < 3; i++ {
		model, err := l.Acquire(ctx, "u1", "premium")
		require.NoError(t, err)
		require.Equal(t, "free", model)
	}

	model, err := l.Acquire(ctx, "u1", "premium")
	require.NoError(t, err)
	require.Equal(t, "premium", model)
	require.Equal(t, []time.Duration{time.Second}, clock.sleeps)
}

func TestAcquire_CapsWaitAndGivesUp(t *testing.T) {
	l, clock := newTestLimiter(t, Config{MaxAttempts: 2})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, l.CheckLimit("u1", "free").Allowed)
	}

	// free is exhausted until midnight, so the wait is capped at MaxWait
	_, err := l.Acquire(ctx, "u1", "free")
	require.ErrorIs(t, err, ErrRateLimitExceeded)
	require.Equal(t, []time.Duration{60 * time.Second}, clock.sleeps)
}

func TestAcquire_HonorsCancellation(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	drainPremium(t, l, "u1")
	for i := 0; i < 3; i++ {
		require.True(t, l.CheckLimit("u1", "free").Allowed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Acquire(ctx, "u1", "premium")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRecommendedModel(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})

	require.Equal(t, "premium", l.RecommendedModel(5, false))
	require.Equal(t, "premium", l.RecommendedModel(10, false))
	require.Equal(t, "free", l.RecommendedModel(11, false))
	require.Equal(t, "free", l.RecommendedModel(1, true))
}

func TestUsageAndPrune(t *testing.T) {
	l, clock := newTestLimiter(t, Config{})

	require.True(t, l.CheckLimit("u1", "premium").Allowed)
	u := l.Usage("u1", "premium")
	require.Equal(t, 1, u.RequestsToday)
	require.Equal(t, 60, u.RequestsPerMinute)
	require.Equal(t, 59.0, u.Available)

	require.True(t, l.CheckLimit("u1", "free").Allowed)
	f := l.Usage("u1", "free")
	require.Equal(t, 1, f.RequestsToday)
	require.Equal(t, 3, f.RequestsPerDay)

	clock.now = clock.now.Add(2 * time.Hour)
	require.Equal(t, 2, l.Prune(time.Hour))
	require.Equal(t, 0, l.Usage("u1", "free").RequestsToday)
}
