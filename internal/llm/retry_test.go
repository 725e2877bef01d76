package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	errs  []error
	calls int
}

func (p *scriptedProvider) GenerateCompletion(ctx context.Context, model string, messages []Message, structured bool) (string, error) {
	idx := p.calls
	p.calls++
	if idx < len(p.errs) && p.errs[idx] != nil {
		return "", p.errs[idx]
	}
	return `{"ok":true}`, nil
}

func fastRetry(tries uint) RetryConfig {
	return RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
		MaxTries:        tries,
	}
}

func TestRetryProvider_RetriesTransientFailures(t *testing.T) {
	inner := &scriptedProvider{errs: []error{
		&ProviderError{Provider: "test", StatusCode: http.StatusTooManyRequests, Err: errors.New("slow down")},
		&ProviderError{Provider: "test", StatusCode: http.StatusBadGateway, Err: errors.New("upstream")},
	}}
	p := NewRetryProvider(inner, fastRetry(4), nil)

	out, err := p.GenerateCompletion(context.Background(), "m", []Message{User("hi")}, true)
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, out)
	require.Equal(t, 3, inner.calls)
}

func TestRetryProvider_StopsOnPermanentFailure(t *testing.T) {
	inner := &scriptedProvider{errs: []error{
		&ProviderError{Provider: "test", StatusCode: http.StatusUnauthorized, Err: errors.New("bad key")},
	}}
	p := NewRetryProvider(inner, fastRetry(4), nil)

	_, err := p.GenerateCompletion(context.Background(), "m", nil, false)
	require.Error(t, err)
	require.Equal(t, 1, inner.calls)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, http.StatusUnauthorized, perr.StatusCode)
}

func TestRetryProvider_GivesUpAfterMaxTries(t *testing.T) {
	transient := &ProviderError{Provider: "test", StatusCode: http.StatusServiceUnavailable, Err: errors.New("down")}
	inner := &scriptedProvider{errs: []error{transient, transient, transient, transient, transient}}
	p := NewRetryProvider(inner, fastRetry(3), nil)

	_, err := p.GenerateCompletion(context.Background(), "m", nil, false)
	require.Error(t, err)
	require.Equal(t, 3, inner.calls)
}

func TestRetryProvider_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &scriptedProvider{errs: []error{context.Canceled, context.Canceled}}
	p := NewRetryProvider(inner, fastRetry(5), nil)

	_, err := p.GenerateCompletion(ctx, "m", nil, false)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, inner.calls)
}

func TestProviderError_Retryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
	}
	for _, tt := range tests {
		err := &ProviderError{StatusCode: tt.status, Err: errors.New("x")}
		require.Equal(t, tt.want, err.Retryable(), "status %d", tt.status)
	}
}
