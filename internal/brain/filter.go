package brain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
)

// FilterResult is the stage-1 relevance decision.
type FilterResult struct {
	IsRelevant      bool                  `json:"isRelevant"`
	RelevanceReason string                `json:"relevanceReason"`
	Confidence      float64               `json:"confidence"`
	SuggestedAction event.SuggestedAction `json:"suggestedAction"`
	// UsedModel is empty when the pre-filter decided.
	UsedModel string `json:"usedModel,omitempty"`
	Usage     Usage  `json:"usage"`
}

// ModelCalled reports whether the decision needed a model call.
func (r *FilterResult) ModelCalled() bool {
	return r.UsedModel != ""
}

// ModelPicker returns the model to use for a call, waiting for rate-limit
// capacity if needed. It is only invoked when a call is about to be made.
type ModelPicker func(ctx context.Context) (string, error)

// Filter is the stage-1 classifier.
type Filter struct {
	provider llm.ModelProvider
	logger   *slog.Logger
}

// NewFilter creates a filter brain.
func NewFilter(provider llm.ModelProvider, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Filter{provider: provider, logger: logger}
}

// PreFilter applies the rules that need no model call. The second return
// value is false when the rules are inconclusive.
func PreFilter(ev event.Event, contacts []event.Contact) (*FilterResult, bool) {
	return preFilter(ev, indexContacts(contacts))
}

func preFilter(ev event.Event, idx contactIndex) (*FilterResult, bool) {
	text := eventText(ev)
	hasKnown := len(idx.knownAttendees(ev.Attendees)) > 0

	reject := func(reason string) (*FilterResult, bool) {
		return &FilterResult{
			IsRelevant:      false,
			RelevanceReason: reason,
			Confidence:      0.9,
			SuggestedAction: event.ActionIgnore,
		}, true
	}

	switch {
	case spamPattern.MatchString(text):
		return reject("matches spam/promotional pattern")
	case personalPattern.MatchString(text) && !hasKnown:
		return reject("matches personal event pattern with no known contact")
	case allNoReply(ev.Attendees):
		return reject("all attendees are no-reply addresses")
	}

	business := businessPattern.MatchString(text)
	switch {
	case business && hasKnown:
		return &FilterResult{
			IsRelevant:      true,
			RelevanceReason: "business keyword with known contact attendee",
			Confidence:      0.9,
			SuggestedAction: event.ActionProcess,
		}, true
	case !business && !hasKnown:
		return reject("no business signal: no business keyword and no known contact")
	}
	return nil, false
}

// Filter decides whether ev is worth extracting. Rules settle the decision
// when they can; otherwise one model call is made with the model returned by
// pick. Unparseable model output counts as not relevant. Errors are returned
// only when no decision could be made: the picker or the provider failed.
func (f *Filter) Filter(ctx context.Context, ev event.Event, contacts []event.Contact, pick ModelPicker) (*FilterResult, error) {
	idx := indexContacts(contacts)
	if res, ok := preFilter(ev, idx); ok {
		f.logger.Debug("pre-filter decided", "event_id", ev.ID, "relevant", res.IsRelevant, "reason", res.RelevanceReason)
		return res, nil
	}

	model, err := pick(ctx)
	if err != nil {
		return nil, fmt.Errorf("selecting filter model: %w", err)
	}

	messages := filterMessages(ev, idx)
	out, err := f.provider.GenerateCompletion(ctx, model, messages, true)
	if err != nil {
		return nil, fmt.Errorf("filter call: %w", err)
	}

	res := &FilterResult{
		UsedModel: model,
		Usage: Usage{
			InputTokens:  llm.EstimateMessageTokens(messages),
			OutputTokens: llm.EstimateTokens(out),
		},
	}

	doc, err := llm.ExtractJSON(out)
	if err != nil {
		f.logger.Warn("unparseable filter response", "event_id", ev.ID, "model", model)
		res.RelevanceReason = "model response could not be parsed"
		res.SuggestedAction = event.ActionReview
		return res, nil
	}

	res.IsRelevant, _ = boolField(doc, "isRelevant")
	res.RelevanceReason = stringField(doc, "relevanceReason", "reason")
	if res.RelevanceReason == "" {
		res.RelevanceReason = "classified by model"
	}
	res.Confidence = confidenceField(doc, "confidence", 0)
	res.SuggestedAction = event.NormalizeSuggestedAction(doc.Get("suggestedAction").String())
	return res, nil
}
