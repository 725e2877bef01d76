package concurrency

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pacer is consulted after every batch with the current batch size and
// delay and returns the values to use for the rest of the run.
type Pacer func(batchSize int, delay time.Duration) (int, time.Duration)

// BatchOptions controls ExecuteBatch.
type BatchOptions struct {
	// BatchSize of zero or less runs all operations as one batch.
	BatchSize           int
	DelayBetweenBatches time.Duration
	Pace                Pacer
}

// ExecuteBatch runs ops in sequential batches under c. Operations inside a
// batch run concurrently up to the controller limit. The returned slice has
// one result per operation in input order. Once ctx ends, operations in
// batches not yet started are reported with ctx's error.
func ExecuteBatch[T any](ctx context.Context, c *Controller, ops []Operation[T], opts BatchOptions) []Result[T] {
	results := make([]Result[T], len(ops))
	size := opts.BatchSize
	if size <= 0 {
		size = len(ops)
	}
	delay := opts.DelayBetweenBatches

	skipRest := func(from int, err error) {
		for i := from; i < len(ops); i++ {
			results[i] = Result[T]{ID: ops[i].ID, Err: err}
		}
	}

	for start := 0; start < len(ops); {
		end := min(start+size, len(ops))

		// Operation errors stay in their Result; the group only reports
		// that ctx ended while the batch ran.
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = Execute(ctx, c, ops[i])
				return ctx.Err()
			})
		}
		if err := g.Wait(); err != nil {
			skipRest(end, err)
			break
		}
		start = end

		if start >= len(ops) {
			break
		}
		if opts.Pace != nil {
			size, delay = opts.Pace(size, delay)
			if size < 1 {
				size = 1
			}
		}
		if err := sleep(ctx, delay); err != nil {
			skipRest(start, err)
			break
		}
	}
	return results
}

func sleep(ctx context.Context, d time.Duration) error {
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
