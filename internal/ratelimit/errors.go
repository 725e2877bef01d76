package ratelimit

import "errors"

// ErrRateLimitExceeded indicates that neither the preferred model nor the
// free-tier fallback had capacity after all wait attempts.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")
