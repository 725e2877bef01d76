// Package observe carries monitoring signals from the pipeline to whoever
// reports on them. Producers call an Observer; a ChannelObserver decouples
// them from a Reporter goroutine that logs and persists the signals.
package observe

import "time"

// RequestCompleted is emitted when an operation finishes without error.
type RequestCompleted struct {
	UserID         string        `json:"user_id"`
	Model          string        `json:"model"`
	Operation      string        `json:"operation"`
	Success        bool          `json:"success"`
	ProcessingTime time.Duration `json:"processing_time"`
	Tokens         int           `json:"tokens,omitempty"`
	Cost           float64       `json:"cost,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// RequestFailed is emitted when an operation returns an error or panics.
type RequestFailed struct {
	UserID    string    `json:"user_id"`
	Model     string    `json:"model"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// ConcurrencyChanged is emitted when the admission limit changes.
type ConcurrencyChanged struct {
	NewLimit      int       `json:"new_limit"`
	PreviousLimit int       `json:"previous_limit"`
	CurrentActive int       `json:"current_active"`
	Timestamp     time.Time `json:"timestamp"`
}

// Observer receives monitoring signals. Implementations must not block.
type Observer interface {
	RequestCompleted(RequestCompleted)
	RequestFailed(RequestFailed)
	ConcurrencyChanged(ConcurrencyChanged)
}

// Nop discards every signal.
type Nop struct{}

func (Nop) RequestCompleted(RequestCompleted)     {}
func (Nop) RequestFailed(RequestFailed)           {}
func (Nop) ConcurrencyChanged(ConcurrencyChanged) {}

// Multi fans signals out to several observers.
type Multi []Observer

func (m Multi) RequestCompleted(e RequestCompleted) {
	for _, o := range m {
		o.RequestCompleted(e)
	}
}

func (m Multi) RequestFailed(e RequestFailed) {
	for _, o := range m {
		o.RequestFailed(e)
	}
}

func (m Multi) ConcurrencyChanged(e ConcurrencyChanged) {
	for _, o := range m {
		o.ConcurrencyChanged(e)
	}
}
