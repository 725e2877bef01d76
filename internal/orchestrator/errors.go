package orchestrator

import "errors"

var (
	// ErrMissingDependency indicates a required collaborator was not supplied.
	ErrMissingDependency = errors.New("missing orchestrator dependency")
	// ErrInvalidInput indicates a run request without a user.
	ErrInvalidInput = errors.New("invalid orchestrator input")
)
