package mcp

import (
	"errors"
	"fmt"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/concurrency"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/orchestrator"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/ratelimit"
)

var (
	// ErrInvalidParams indicates tool arguments that fail to decode or validate.
	ErrInvalidParams = errors.New("invalid params")
	// ErrUnknownTool indicates a call to a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
)

// APIError represents an MCP error response.
type APIError struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      any    `json:"details,omitempty"`
	RecoveryHint string `json:"recovery_hint,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapError maps domain errors to MCP error codes. Unknown errors map to nil.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, cost.ErrBudgetExceeded):
		return &APIError{Code: "BUDGET_EXCEEDED", Message: err.Error(), RecoveryHint: "Raise the budget or retry without enforce_budget"}
	case errors.Is(err, ratelimit.ErrRateLimitExceeded):
		return &APIError{Code: "RATE_LIMITED", Message: err.Error(), RecoveryHint: "Retry later or use the free tier"}
	case errors.Is(err, event.ErrEventNotFound):
		return &APIError{Code: "EVENT_NOT_FOUND", Message: "processed event not found", RecoveryHint: "Run process_events first"}
	case errors.Is(err, ErrUnknownTool):
		return &APIError{Code: "UNKNOWN_TOOL", Message: err.Error()}
	case errors.Is(err, ErrInvalidParams),
		errors.Is(err, cost.ErrInvalidInput),
		errors.Is(err, cost.ErrInvalidPeriod),
		errors.Is(err, event.ErrInvalidInput),
		errors.Is(err, orchestrator.ErrInvalidInput),
		errors.Is(err, concurrency.ErrInvalidLimit),
		errors.Is(err, concurrency.ErrInvalidPriority):
		return &APIError{Code: "INVALID_INPUT", Message: err.Error(), RecoveryHint: "Check the tool arguments"}
	default:
		return nil
	}
}
