package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig controls the exponential backoff applied to provider calls.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxTries        uint
}

// DefaultRetryConfig starts at one second and doubles up to thirty.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		MaxTries:        4,
	}
}

// RetryProvider repeats transient failures of the wrapped provider.
// Non-retryable provider errors and context cancellation end the loop at once.
type RetryProvider struct {
	next   ModelProvider
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetryProvider wraps next with retries.
func NewRetryProvider(next ModelProvider, cfg RetryConfig, logger *slog.Logger) *RetryProvider {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	def := DefaultRetryConfig()
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = def.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = def.MaxInterval
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = def.MaxTries
	}
	return &RetryProvider{next: next, cfg: cfg, logger: logger}
}

func (p *RetryProvider) GenerateCompletion(ctx context.Context, model string, messages []Message, structured bool) (string, error) {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.cfg.InitialInterval,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          p.cfg.Multiplier,
		MaxInterval:         p.cfg.MaxInterval,
	}

	op := func() (string, error) {
		out, err := p.next.GenerateCompletion(ctx, model, messages, structured)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", backoff.Permanent(err)
		}
		var perr *ProviderError
		if errors.As(err, &perr) && !perr.Retryable() {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.cfg.MaxTries),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			p.logger.Warn("model call failed, retrying", "model", model, "wait", wait, "error", err)
		}),
	)
}
