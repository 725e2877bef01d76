package concurrency

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Priority orders queued operations. Higher values are admitted first. The
// zero value is PriorityNormal.
type Priority int

const (
	PriorityLow Priority = iota - 1
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// ParsePriority reads "high", "normal" or "low". Empty input means normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, nil
	case "", "normal":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	default:
		return PriorityNormal, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
}

// Operation is a unit of work admitted by a Controller.
type Operation[T any] struct {
	ID        string
	UserID    string
	Model     string
	Operation string
	Priority  Priority
	Metadata  map[string]string
	Run       func(ctx context.Context) (T, error)
}

// Result is the outcome of one operation. Err is nil on success.
type Result[T any] struct {
	ID       string
	Value    T
	Err      error
	Duration time.Duration
}

// Success reports whether the operation completed without error.
func (r Result[T]) Success() bool {
	return r.Err == nil
}

// Metered is implemented by operation values that carry token usage. The
// controller copies it into completion signals.
type Metered interface {
	Usage() (tokens int, cost float64)
}
