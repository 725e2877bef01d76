package concurrency

import "errors"

var (
	// ErrInvalidLimit indicates a concurrency limit below one.
	ErrInvalidLimit = errors.New("concurrency limit must be at least 1")
	// ErrInvalidPriority indicates an unknown priority name.
	ErrInvalidPriority = errors.New("invalid priority")
	// ErrOperationPanicked wraps a recovered panic from an operation.
	ErrOperationPanicked = errors.New("operation panicked")
)
