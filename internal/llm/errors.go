package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrMalformedOutput indicates model output that holds no parseable JSON object.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrEmptyResponse indicates a provider response without any text content.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrMissingAPIKey indicates a provider constructed without credentials.
	ErrMissingAPIKey = errors.New("missing provider api key")
	// ErrUnknownModel indicates a model name absent from the catalog.
	ErrUnknownModel = errors.New("unknown model")
)

// ProviderError describes a failed call to a model-serving API.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: http %d: %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the call may succeed if repeated: transport
// failures, throttling and server-side errors.
func (e *ProviderError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}
