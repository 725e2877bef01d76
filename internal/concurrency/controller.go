// Package concurrency bounds the number of operations running at once.
// Operations beyond the limit wait in a priority queue and are admitted as
// slots free up. One operation's error or panic is captured in its own
// Result and never affects its siblings.
package concurrency

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/observe"
)

// DefaultLimit is the admission width used when none is configured.
const DefaultLimit = 5

// Stats is a snapshot of controller counters.
type Stats struct {
	Limit                 int           `json:"limit"`
	Active                int           `json:"active"`
	Queued                int           `json:"queued"`
	Completed             uint64        `json:"completed"`
	Failed                uint64        `json:"failed"`
	AverageProcessingTime time.Duration `json:"average_processing_time"`
}

// Controller admits operations up to a limit. It is safe for concurrent use
// and may be shared across batches and users.
type Controller struct {
	mu sync.Mutex
	// limit is the width in force: the newest override, else base.
	limit     int
	base      int
	overrides []override
	overrideN uint64
	active    int
	waiters   waitQueue
	seq       uint64
	completed uint64
	failed    uint64
	busy      time.Duration

	observer observe.Observer
	logger   *slog.Logger
}

// NewController creates a controller. A limit below one selects DefaultLimit.
func NewController(limit int, observer observe.Observer, logger *slog.Logger) *Controller {
	if limit < 1 {
		limit = DefaultLimit
	}
	if observer == nil {
		observer = observe.Nop{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{limit: limit, base: limit, observer: observer, logger: logger}
}

type override struct {
	id    uint64
	limit int
}

type limitChange struct {
	previous, limit, active int
}

// Limit returns the current admission limit.
func (c *Controller) Limit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limit
}

// AdjustConcurrency changes the base limit for subsequent admissions.
// Running operations are never interrupted; lowering the limit takes effect
// as they finish. While overrides are held the newest one stays in force and
// the new base applies once they are all released.
func (c *Controller) AdjustConcurrency(n int) error {
	if n < 1 {
		return ErrInvalidLimit
	}

	c.mu.Lock()
	c.base = n
	change := c.applyLocked()
	c.mu.Unlock()

	c.announce(change)
	return nil
}

// Override puts a temporary limit in force until release is called.
// Overlapping overrides stack: the newest one still held wins, and releasing
// one never disturbs the others or the base limit. release is idempotent.
func (c *Controller) Override(n int) (release func(), err error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	c.mu.Lock()
	c.overrideN++
	id := c.overrideN
	c.overrides = append(c.overrides, override{id: id, limit: n})
	change := c.applyLocked()
	c.mu.Unlock()
	c.announce(change)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.overrides = slices.DeleteFunc(c.overrides, func(o override) bool { return o.id == id })
			change := c.applyLocked()
			c.mu.Unlock()
			c.announce(change)
		})
	}, nil
}

// BaseLimit returns the limit that applies when no override is held.
func (c *Controller) BaseLimit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base
}

func (c *Controller) applyLocked() limitChange {
	change := limitChange{previous: c.limit}
	c.limit = c.base
	if n := len(c.overrides); n > 0 {
		c.limit = c.overrides[n-1].limit
	}
	c.dispatchLocked()
	change.limit = c.limit
	change.active = c.active
	return change
}

func (c *Controller) announce(change limitChange) {
	if change.previous == change.limit {
		return
	}
	c.logger.Info("concurrency limit changed", "previous", change.previous, "limit", change.limit, "active", change.active)
	c.observer.ConcurrencyChanged(observe.ConcurrencyChanged{
		NewLimit:      change.limit,
		PreviousLimit: change.previous,
		CurrentActive: change.active,
		Timestamp:     time.Now().UTC(),
	})
}

// Stats returns a snapshot of the controller counters.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Limit:     c.limit,
		Active:    c.active,
		Queued:    c.waiters.Len(),
		Completed: c.completed,
		Failed:    c.failed,
	}
	if done := c.completed + c.failed; done > 0 {
		s.AverageProcessingTime = c.busy / time.Duration(done)
	}
	return s
}

func (c *Controller) acquire(ctx context.Context, p Priority) error {
	c.mu.Lock()
	if c.active < c.limit && c.waiters.Len() == 0 {
		c.active++
		c.mu.Unlock()
		return nil
	}
	c.seq++
	w := &waiter{priority: p, seq: c.seq, ready: make(chan struct{})}
	heap.Push(&c.waiters, w)
	c.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		if w.granted {
			// admitted concurrently with cancellation; hand the slot on
			c.active--
			c.dispatchLocked()
		} else {
			heap.Remove(&c.waiters, w.index)
		}
		c.mu.Unlock()
		return ctx.Err()
	}
}

func (c *Controller) release(d time.Duration, failed bool) {
	c.mu.Lock()
	c.active--
	c.busy += d
	if failed {
		c.failed++
	} else {
		c.completed++
	}
	c.dispatchLocked()
	c.mu.Unlock()
}

func (c *Controller) dispatchLocked() {
	for c.active < c.limit && c.waiters.Len() > 0 {
		w := heap.Pop(&c.waiters).(*waiter)
		w.granted = true
		c.active++
		close(w.ready)
	}
}

// Execute runs one operation under the controller's admission limit.
func Execute[T any](ctx context.Context, c *Controller, op Operation[T]) Result[T] {
	res := Result[T]{ID: op.ID}

	if err := c.acquire(ctx, op.Priority); err != nil {
		res.Err = err
		c.mu.Lock()
		c.failed++
		c.mu.Unlock()
		c.emitFailed(op.UserID, op.Model, op.Operation, err)
		return res
	}

	start := time.Now()
	res.Value, res.Err = runGuarded(ctx, op)
	res.Duration = time.Since(start)
	c.release(res.Duration, res.Err != nil)

	if res.Err != nil {
		c.logger.Debug("operation failed", "id", op.ID, "operation", op.Operation, "metadata", op.Metadata, "error", res.Err)
		c.emitFailed(op.UserID, op.Model, op.Operation, res.Err)
		return res
	}

	done := observe.RequestCompleted{
		UserID:         op.UserID,
		Model:          op.Model,
		Operation:      op.Operation,
		Success:        true,
		ProcessingTime: res.Duration,
		Timestamp:      time.Now().UTC(),
	}
	if m, ok := any(res.Value).(Metered); ok {
		done.Tokens, done.Cost = m.Usage()
	}
	c.observer.RequestCompleted(done)
	return res
}

func runGuarded[T any](ctx context.Context, op Operation[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrOperationPanicked, r)
		}
	}()
	if op.Run == nil {
		return value, fmt.Errorf("operation %s has no work", op.ID)
	}
	return op.Run(ctx)
}

func (c *Controller) emitFailed(userID, model, operation string, err error) {
	c.observer.RequestFailed(observe.RequestFailed{
		UserID:    userID,
		Model:     model,
		Operation: operation,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
	})
}
