// Package ratelimit tracks per-user, per-model request volume against each
// model's ceilings and advises callers to proceed, fall back or wait.
//
// Each (user, model) pair owns a token bucket refilled at the model's
// requests-per-minute rate with a burst of one minute's worth, plus an
// optional quota that resets at midnight UTC. State lives in process memory
// only; a restart starts every bucket full.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
	"golang.org/x/time/rate"
)

// Config holds the limiter's waiting and recommendation policy.
type Config struct {
	// MaxWait caps a single wait for capacity.
	MaxWait time.Duration
	// MaxAttempts bounds the number of availability checks in Acquire.
	MaxAttempts int
	// BulkThreshold is the batch size above which the free tier is recommended.
	BulkThreshold int
}

// DefaultConfig waits at most a minute, checks three times and treats
// batches over ten events as bulk.
func DefaultConfig() Config {
	return Config{
		MaxWait:       60 * time.Second,
		MaxAttempts:   3,
		BulkThreshold: 10,
	}
}

// Decision is the outcome of a limit check.
type Decision struct {
	Allowed bool `json:"allowed"`
	// ResetTime estimates when capacity returns. Zero when allowed.
	ResetTime time.Time `json:"reset_time,omitempty"`
	// Suggestion names a model with a separate budget the caller may try.
	Suggestion string `json:"suggestion,omitempty"`
}

// Usage is a point-in-time view of one (user, model) bucket.
type Usage struct {
	Model             string  `json:"model"`
	RequestsPerMinute int     `json:"requests_per_minute"`
	Available         float64 `json:"available"`
	RequestsPerDay    int     `json:"requests_per_day,omitempty"`
	RequestsToday     int     `json:"requests_today"`
}

type key struct {
	userID string
	model  string
}

type bucket struct {
	minute     *rate.Limiter
	day        time.Time
	dayCount   int
	lastAccess time.Time
}

// Limiter is safe for concurrent use.
type Limiter struct {
	catalog *llm.Catalog
	cfg     Config
	logger  *slog.Logger

	mu      sync.Mutex
	buckets map[key]*bucket

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter for the models in catalog.
func New(catalog *llm.Catalog, cfg Config, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	def := DefaultConfig()
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BulkThreshold <= 0 {
		cfg.BulkThreshold = def.BulkThreshold
	}
	return &Limiter{
		catalog: catalog,
		cfg:     cfg,
		logger:  logger,
		buckets: make(map[key]*bucket),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// CheckLimit consumes one request for (userID, model) when capacity exists.
func (l *Limiter) CheckLimit(userID, model string) Decision {
	spec := l.catalog.Spec(model)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketLocked(userID, spec, now)

	if spec.RequestsPerDay > 0 && b.dayCount >= spec.RequestsPerDay {
		return Decision{
			ResetTime:  b.day.AddDate(0, 0, 1),
			Suggestion: l.suggestion(model),
		}
	}

	if !b.minute.AllowN(now, 1) {
		return Decision{
			ResetTime:  now.Add(refillDelay(b.minute, now)),
			Suggestion: l.suggestion(model),
		}
	}

	b.dayCount++
	return Decision{Allowed: true}
}

// Acquire returns a model that has capacity for one request. It tries
// preferred first and the free-tier model second, and only when both are
// exhausted waits min(reset, MaxWait) before checking again. After
// MaxAttempts rounds it gives up with ErrRateLimitExceeded.
func (l *Limiter) Acquire(ctx context.Context, userID, preferred string) (string, error) {
	free := l.catalog.Free().Name

	for attempt := 1; ; attempt++ {
		d := l.CheckLimit(userID, preferred)
		if d.Allowed {
			return preferred, nil
		}
		reset := d.ResetTime

		if preferred != free {
			fd := l.CheckLimit(userID, free)
			if fd.Allowed {
				l.logger.Debug("rate limited, using free tier", "user_id", userID, "preferred", preferred, "model", free)
				return free, nil
			}
			if fd.ResetTime.Before(reset) {
				reset = fd.ResetTime
			}
		}

		if attempt >= l.cfg.MaxAttempts {
			l.logger.Warn("rate limit exhausted", "user_id", userID, "model", preferred, "attempts", attempt)
			return "", ErrRateLimitExceeded
		}

		wait := reset.Sub(l.now())
		if wait > l.cfg.MaxWait {
			wait = l.cfg.MaxWait
		}
		if wait < 0 {
			wait = 0
		}
		l.logger.Info("waiting for rate limit", "user_id", userID, "model", preferred, "wait", wait, "attempt", attempt)
		if err := l.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}

// RecommendedModel biases bulk and historical work toward the free tier and
// small interactive batches toward the premium model.
func (l *Limiter) RecommendedModel(batchSize int, historical bool) string {
	if historical || batchSize > l.cfg.BulkThreshold {
		return l.catalog.Free().Name
	}
	return l.catalog.Premium().Name
}

// Usage reports the bucket state for (userID, model) without consuming it.
func (l *Limiter) Usage(userID, model string) Usage {
	spec := l.catalog.Spec(model)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketLocked(userID, spec, now)
	available := float64(b.minute.Burst())
	if b.minute.Limit() != rate.Inf {
		available = math.Min(b.minute.TokensAt(now), available)
	}
	return Usage{
		Model:             spec.Name,
		RequestsPerMinute: spec.RequestsPerMinute,
		Available:         math.Floor(available),
		RequestsPerDay:    spec.RequestsPerDay,
		RequestsToday:     b.dayCount,
	}
}

// Prune drops buckets idle for longer than maxIdle and returns how many were
// removed. A pruned bucket starts full on its next use.
func (l *Limiter) Prune(maxIdle time.Duration) int {
	cutoff := l.now().Add(-maxIdle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for k, b := range l.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(l.buckets, k)
			removed++
		}
	}
	return removed
}

func (l *Limiter) bucketLocked(userID string, spec llm.ModelSpec, now time.Time) *bucket {
	k := key{userID: userID, model: spec.Name}
	b, ok := l.buckets[k]
	if !ok {
		b = &bucket{minute: newMinuteLimiter(spec.RequestsPerMinute)}
		l.buckets[k] = b
	}
	day := now.UTC().Truncate(24 * time.Hour)
	if !b.day.Equal(day) {
		b.day = day
		b.dayCount = 0
	}
	b.lastAccess = now
	return b
}

func (l *Limiter) suggestion(model string) string {
	free := l.catalog.Free().Name
	if model == free {
		return ""
	}
	return free
}

func newMinuteLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
}

// refillDelay is the time until the bucket holds one whole token.
func refillDelay(lim *rate.Limiter, now time.Time) time.Duration {
	deficit := 1 - lim.TokensAt(now)
	if deficit <= 0 || lim.Limit() <= 0 {
		return 0
	}
	return time.Duration(deficit / float64(lim.Limit()) * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
