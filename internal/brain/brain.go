// Package brain holds the two model-invocation stages of event analysis: a
// cheap relevance filter that settles most events with rules, and a
// structured extraction run only for relevant events.
package brain

import (
	"errors"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
)

// ErrNotRelevant is returned when extraction is requested for an event the
// filter rejected.
var ErrNotRelevant = errors.New("event not relevant")

// Usage is the estimated token usage of one model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// EstimateEventTokens approximates the prompt tokens spent describing ev.
func EstimateEventTokens(ev event.Event) int {
	return llm.EstimateTokens(describeEvent(ev, contactIndex{}))
}
