package brain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
)

// ExtractResult is the stage-2 output.
type ExtractResult struct {
	Analysis event.AnalysisResult `json:"analysis"`
	Usage    Usage                `json:"usage"`
}

// Extractor is the stage-2 structured extraction brain.
type Extractor struct {
	provider llm.ModelProvider
	logger   *slog.Logger
	now      func() time.Time
}

// NewExtractor creates an extract brain.
func NewExtractor(provider llm.ModelProvider, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{provider: provider, logger: logger, now: time.Now}
}

// Extract produces the full analysis for an event the filter marked relevant.
// Provider failures are returned; malformed output never is: every field
// falls back to a default.
func (x *Extractor) Extract(ctx context.Context, ev event.Event, contacts []event.Contact, filter *FilterResult, model string) (*ExtractResult, error) {
	if filter == nil || !filter.IsRelevant {
		return nil, ErrNotRelevant
	}

	idx := indexContacts(contacts)
	messages := extractMessages(ev, idx, filter.RelevanceReason)
	out, err := x.provider.GenerateCompletion(ctx, model, messages, true)
	if err != nil {
		return nil, fmt.Errorf("extract call: %w", err)
	}

	known := idx.knownAttendees(ev.Attendees)
	analysis := event.AnalysisResult{
		IsRelevant:      true,
		RelevanceReason: filter.RelevanceReason,
		EventType:       event.TypeOther,
		Topics:          []string{},
		ActionItems:     []string{},
		Confidence:      filter.Confidence,
		SuggestedAction: event.ActionReview,
		Model:           model,
		Timestamp:       x.now().UTC(),
	}

	doc, err := llm.ExtractJSON(out)
	if err != nil {
		x.logger.Warn("unparseable extract response, using defaults", "event_id", ev.ID, "model", model)
		analysis.ClientEmails = nonNil(known)
		analysis.IsClientRelated = len(known) > 0
		return &ExtractResult{Analysis: analysis, Usage: usageOf(messages, out)}, nil
	}

	analysis.EventType = event.NormalizeEventType(doc.Get("eventType").String())
	analysis.SessionType = event.NormalizeSessionType(doc.Get("sessionType").String())
	analysis.Topics = stringSlice(doc, "topics")
	analysis.ActionItems = stringSlice(doc, "actionItems")
	analysis.Notes = stringField(doc, "notes")
	analysis.Confidence = confidenceField(doc, "confidence", filter.Confidence)
	analysis.SuggestedAction = event.NormalizeSuggestedAction(doc.Get("suggestedAction").String())

	analysis.ClientEmails = normalizeEmails(stringSlice(doc, "clientEmails"))
	if len(analysis.ClientEmails) == 0 {
		analysis.ClientEmails = nonNil(known)
	}
	if related, ok := boolField(doc, "isClientRelated"); ok {
		analysis.IsClientRelated = related
	} else {
		analysis.IsClientRelated = len(analysis.ClientEmails) > 0
	}

	return &ExtractResult{Analysis: analysis, Usage: usageOf(messages, out)}, nil
}

func usageOf(messages []llm.Message, out string) Usage {
	return Usage{
		InputTokens:  llm.EstimateMessageTokens(messages),
		OutputTokens: llm.EstimateTokens(out),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
