package cost

import "errors"

var (
	// ErrBudgetExceeded indicates spend at or above a ceiling when the caller enforces budgets.
	ErrBudgetExceeded = errors.New("budget exceeded")
	// ErrInvalidInput indicates invalid usage or limit values.
	ErrInvalidInput = errors.New("invalid cost input")
	// ErrInvalidPeriod indicates an unknown statistics period.
	ErrInvalidPeriod = errors.New("invalid period")
)
