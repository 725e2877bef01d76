package event

import "errors"

var (
	// ErrEventNotFound indicates no processed record exists for the event.
	ErrEventNotFound = errors.New("processed event not found")
	// ErrInvalidInput indicates a record missing its identity or hash.
	ErrInvalidInput = errors.New("invalid event input")
	// ErrStore wraps persistence failures from the event store.
	ErrStore = errors.New("event store failure")
)
