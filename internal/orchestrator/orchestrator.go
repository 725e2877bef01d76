// Package orchestrator runs batches of calendar events through the insight
// pipeline: change detection, relevance filtering, extraction, usage
// accounting and persistence.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/brain"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/concurrency"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/ratelimit"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/telemetry"
)

const (
	operationFilter  = "filter"
	operationExtract = "extract"
	operationAnalyze = "analyze_event"

	// extractOverheadTokens approximates the extraction prompt around the
	// event text when projecting cost.
	extractOverheadTokens = 400
)

// Deps are the collaborators of an Orchestrator. Tracer and Logger are
// optional.
type Deps struct {
	Detector   *event.Detector
	Filter     *brain.Filter
	Extractor  *brain.Extractor
	Limiter    *ratelimit.Limiter
	Costs      *cost.Tracker
	Controller *concurrency.Controller
	Catalog    *llm.Catalog
	Tracer     trace.Tracer
	Logger     *slog.Logger
}

// Orchestrator coordinates one user's batch runs.
type Orchestrator struct {
	detector   *event.Detector
	filter     *brain.Filter
	extractor  *brain.Extractor
	limiter    *ratelimit.Limiter
	costs      *cost.Tracker
	controller *concurrency.Controller
	catalog    *llm.Catalog
	tracer     trace.Tracer
	logger     *slog.Logger

	cfgMu sync.RWMutex
	cfg   Config
}

// New validates deps and builds an Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Detector == nil:
		return nil, fmt.Errorf("%w: detector", ErrMissingDependency)
	case deps.Filter == nil:
		return nil, fmt.Errorf("%w: filter", ErrMissingDependency)
	case deps.Extractor == nil:
		return nil, fmt.Errorf("%w: extractor", ErrMissingDependency)
	case deps.Limiter == nil:
		return nil, fmt.Errorf("%w: limiter", ErrMissingDependency)
	case deps.Costs == nil:
		return nil, fmt.Errorf("%w: cost tracker", ErrMissingDependency)
	case deps.Controller == nil:
		return nil, fmt.Errorf("%w: controller", ErrMissingDependency)
	case deps.Catalog == nil:
		return nil, fmt.Errorf("%w: catalog", ErrMissingDependency)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer(nil)
	}

	return &Orchestrator{
		detector:   deps.Detector,
		filter:     deps.Filter,
		extractor:  deps.Extractor,
		limiter:    deps.Limiter,
		costs:      deps.Costs,
		controller: deps.Controller,
		catalog:    deps.Catalog,
		tracer:     tracer,
		logger:     logger,
		cfg:        normalize(cfg),
	}, nil
}

func normalize(cfg Config) Config {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if cfg.MaxBatchDelay <= 0 {
		cfg.MaxBatchDelay = def.MaxBatchDelay
	}
	return cfg
}

// Reconfigure replaces the run defaults. Runs already in progress keep the
// values they started with.
func (o *Orchestrator) Reconfigure(cfg Config) {
	cfg = normalize(cfg)
	o.cfgMu.Lock()
	o.cfg = cfg
	o.cfgMu.Unlock()
	o.logger.Info("orchestrator reconfigured", "batch_size", cfg.BatchSize, "batch_delay", cfg.BatchDelay)
}

// Config returns the current run defaults.
func (o *Orchestrator) Config() Config {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg
}

// run is the state shared by the events of one Process call.
type run struct {
	id       string
	userID   string
	contacts []event.Contact
	opts     Options
	size     int

	mu sync.Mutex
	// claimed maps event IDs to the hash the run has started analyzing.
	// Duplicates are skipped even when their record was never written.
	claimed map[string]string
	alerts  map[string]cost.Alert
	order   []string
}

// claim reports whether the caller is the first in this run to analyze
// eventID at hash.
func (r *run) claim(eventID, hash string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.claimed[eventID]; ok && h == hash {
		return false
	}
	r.claimed[eventID] = hash
	return true
}

// addAlerts keeps the latest alert per scope and level.
func (r *run) addAlerts(alerts []cost.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range alerts {
		k := string(a.Scope) + "/" + string(a.Level)
		if _, ok := r.alerts[k]; !ok {
			r.order = append(r.order, k)
		}
		r.alerts[k] = a
	}
}

func (r *run) collectedAlerts() []cost.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]cost.Alert, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.alerts[k])
	}
	return out
}

// Process runs every event through the pipeline and reports one outcome per
// input event. Per-event failures are recorded, not returned; the error is
// reserved for invalid requests.
func (o *Orchestrator) Process(ctx context.Context, userID string, events []event.Event, contacts []event.Contact, opts Options) (*Output, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	cfg := o.Config()
	if opts.BatchSize <= 0 {
		opts.BatchSize = cfg.BatchSize
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = cfg.BatchDelay
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.process", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.Int("events.count", len(events)),
		attribute.Bool("prefer_free_tier", opts.PreferFreeTier),
		attribute.Bool("historical", opts.Historical),
	))
	defer span.End()

	if opts.Concurrency > 0 {
		release, err := o.controller.Override(opts.Concurrency)
		if err != nil {
			return nil, fmt.Errorf("adjusting concurrency: %w", err)
		}
		defer release()
	}

	r := &run{
		id:       uuid.NewString(),
		userID:   userID,
		contacts: contacts,
		opts:     opts,
		size:     len(events),
		claimed:  make(map[string]string),
		alerts:   make(map[string]cost.Alert),
	}

	start := time.Now()
	span.SetAttributes(attribute.String("run.id", r.id))
	o.logger.Info("processing events", "run_id", r.id, "user_id", userID, "events", len(events), "batch_size", opts.BatchSize)

	ops := make([]concurrency.Operation[*Outcome], len(events))
	for i, ev := range events {
		ops[i] = concurrency.Operation[*Outcome]{
			ID:        ev.ID,
			UserID:    userID,
			Operation: operationAnalyze,
			Priority:  opts.Priority,
			Metadata:  map[string]string{"run_id": r.id},
			Run: func(ctx context.Context) (*Outcome, error) {
				return o.processEvent(ctx, r, ev)
			},
		}
	}

	results := concurrency.ExecuteBatch(ctx, o.controller, ops, concurrency.BatchOptions{
		BatchSize:           opts.BatchSize,
		DelayBetweenBatches: opts.BatchDelay,
		Pace:                o.pacer(ctx, userID),
	})

	out := &Output{
		Results:         []event.AnalysisResult{},
		FailedEventIDs:  []string{},
		SkippedEventIDs: []string{},
		Outcomes:        make([]Outcome, 0, len(events)),
	}
	for i, res := range results {
		outcome := res.Value
		if outcome == nil {
			outcome = o.unfinished(ctx, r, events[i], res.Err)
		}

		switch outcome.State {
		case event.StateSkipped:
			out.SkippedEventIDs = append(out.SkippedEventIDs, outcome.EventID)
		case event.StateExtractionFailed:
			out.FailedEventIDs = append(out.FailedEventIDs, outcome.EventID)
			out.TotalProcessed++
		case event.StateExtracted:
			if outcome.Analysis != nil {
				out.Results = append(out.Results, *outcome.Analysis)
			}
			out.TotalProcessed++
		default:
			out.TotalProcessed++
		}
		out.TotalCost += outcome.Cost
		out.Outcomes = append(out.Outcomes, *outcome)
	}
	out.Alerts = r.collectedAlerts()

	span.SetAttributes(
		attribute.Int("events.processed", out.TotalProcessed),
		attribute.Int("events.failed", len(out.FailedEventIDs)),
		attribute.Int("events.skipped", len(out.SkippedEventIDs)),
		attribute.Float64("cost.total", out.TotalCost),
	)
	o.logger.Info("processed events",
		"run_id", r.id,
		"user_id", userID,
		"processed", out.TotalProcessed,
		"extracted", len(out.Results),
		"failed", len(out.FailedEventIDs),
		"skipped", len(out.SkippedEventIDs),
		"cost", out.TotalCost,
		"duration", time.Since(start),
	)
	return out, nil
}

// pacer halves the batch size and doubles the delay while the user is past
// the warning threshold.
func (o *Orchestrator) pacer(ctx context.Context, userID string) concurrency.Pacer {
	threshold := o.costs.WarningThreshold()
	maxDelay := o.Config().MaxBatchDelay
	return func(size int, delay time.Duration) (int, time.Duration) {
		util, err := o.costs.Utilization(ctx, userID)
		if err != nil {
			o.logger.Warn("failed to read budget utilization", "user_id", userID, "error", err)
			return size, delay
		}
		if util <= threshold {
			return size, delay
		}

		size = max(1, size/2)
		if delay <= 0 {
			delay = time.Second
		} else {
			delay *= 2
		}
		delay = min(delay, maxDelay)
		o.logger.Warn("budget utilization high, slowing down",
			"user_id", userID, "utilization", util, "batch_size", size, "delay", delay)
		return size, delay
	}
}

func (o *Orchestrator) processEvent(ctx context.Context, r *run, ev event.Event) (*Outcome, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.event", trace.WithAttributes(
		attribute.String("event.id", ev.ID),
	))
	defer span.End()

	outcome, err := o.analyze(ctx, r, ev)
	span.SetAttributes(attribute.String("event.state", string(outcome.State)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return outcome, err
}

func (o *Orchestrator) analyze(ctx context.Context, r *run, ev event.Event) (*Outcome, error) {
	hash := event.ComputeHash(ev)
	outcome := &Outcome{EventID: ev.ID, Hash: hash}
	if err := ctx.Err(); err != nil {
		return o.fail(ctx, r, ev, outcome, nil, err)
	}

	if err := o.dedup(ctx, r, ev, outcome); err != nil {
		return o.fail(ctx, r, ev, outcome, nil, err)
	}
	if outcome.State == event.StateSkipped {
		return outcome, nil
	}

	filtered, err := o.runFilter(ctx, r, ev, outcome)
	if err != nil {
		return o.fail(ctx, r, ev, outcome, nil, err)
	}
	if !filtered.IsRelevant {
		analysis := &event.AnalysisResult{
			IsRelevant:      false,
			RelevanceReason: filtered.RelevanceReason,
			EventType:       event.TypeOther,
			ClientEmails:    []string{},
			Topics:          []string{},
			ActionItems:     []string{},
			Confidence:      filtered.Confidence,
			SuggestedAction: filtered.SuggestedAction,
			Model:           filtered.UsedModel,
			Timestamp:       time.Now().UTC(),
		}
		outcome.State = event.StateFilteredIrrelevant
		outcome.Reason = filtered.RelevanceReason
		outcome.Model = filtered.UsedModel
		o.persist(ctx, &event.ProcessedEventRecord{
			UserID:   r.userID,
			EventID:  ev.ID,
			Hash:     hash,
			State:    event.StateFilteredIrrelevant,
			Analysis: analysis,
			Model:    filtered.UsedModel,
		})
		return outcome, nil
	}

	extracted, err := o.runExtract(ctx, r, ev, filtered, outcome)
	if err != nil {
		return o.fail(ctx, r, ev, outcome, filtered, err)
	}

	analysis := extracted.Analysis
	outcome.State = event.StateExtracted
	outcome.Reason = analysis.RelevanceReason
	outcome.Model = analysis.Model
	outcome.Analysis = &analysis
	o.persist(ctx, &event.ProcessedEventRecord{
		UserID:     r.userID,
		EventID:    ev.ID,
		Hash:       hash,
		IsRelevant: true,
		State:      event.StateExtracted,
		Analysis:   &analysis,
		Model:      analysis.Model,
	})
	return outcome, nil
}

func (o *Orchestrator) dedup(ctx context.Context, r *run, ev event.Event, outcome *Outcome) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.dedup")
	defer span.End()

	if !r.claim(ev.ID, outcome.Hash) {
		outcome.State = event.StateSkipped
		outcome.Reason = "already processed in this run"
		return nil
	}

	should, _, err := o.detector.ShouldProcess(ctx, r.userID, ev)
	if err != nil {
		return fmt.Errorf("checking processed state: %w", err)
	}
	if !should {
		outcome.State = event.StateSkipped
		outcome.Reason = "unchanged since last analysis"
	}
	return nil
}

func (o *Orchestrator) runFilter(ctx context.Context, r *run, ev event.Event, outcome *Outcome) (*brain.FilterResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.filter")
	defer span.End()

	pick := func(ctx context.Context) (string, error) {
		return o.selectModel(ctx, r, operationFilter, brain.EstimateEventTokens(ev))
	}
	res, err := o.filter.Filter(ctx, ev, r.contacts, pick)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("filter.relevant", res.IsRelevant),
		attribute.Bool("filter.model_called", res.ModelCalled()),
	)
	if res.ModelCalled() {
		o.track(ctx, r, ev.ID, res.UsedModel, operationFilter, res.Usage, outcome)
	}
	return res, nil
}

func (o *Orchestrator) runExtract(ctx context.Context, r *run, ev event.Event, filtered *brain.FilterResult, outcome *Outcome) (*brain.ExtractResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.extract")
	defer span.End()

	model, err := o.selectModel(ctx, r, operationExtract, brain.EstimateEventTokens(ev)+extractOverheadTokens)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("llm.model", model))

	res, err := o.extractor.Extract(ctx, ev, r.contacts, filtered, model)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	o.track(ctx, r, ev.ID, model, operationExtract, res.Usage, outcome)
	return res, nil
}

// selectModel picks the model for one call and reserves rate-limit capacity
// for it. Free-tier preference, bulk size and budget pressure all steer the
// choice toward the free model.
func (o *Orchestrator) selectModel(ctx context.Context, r *run, operation string, estimatedTokens int) (string, error) {
	free := o.catalog.Free().Name

	if r.opts.EnforceBudget {
		util, err := o.costs.Utilization(ctx, r.userID)
		if err != nil {
			return "", fmt.Errorf("reading budget utilization: %w", err)
		}
		if util >= 1 {
			model, err := o.limiter.Acquire(ctx, r.userID, free)
			if err != nil {
				if ctx.Err() != nil {
					return "", err
				}
				return "", fmt.Errorf("%w: free-tier model unavailable: %w", cost.ErrBudgetExceeded, err)
			}
			return model, nil
		}
	}

	preferred := free
	if !r.opts.PreferFreeTier {
		preferred = o.limiter.RecommendedModel(r.size, r.opts.Historical)
	}
	if preferred != free {
		rec, err := o.costs.GetModelRecommendation(ctx, r.userID, operation, estimatedTokens)
		if err != nil {
			o.logger.Warn("failed to get model recommendation", "user_id", r.userID, "error", err)
		} else {
			preferred = rec.Model
		}
	}

	model, err := o.limiter.Acquire(ctx, r.userID, preferred)
	if err != nil {
		return "", fmt.Errorf("acquiring %s capacity: %w", operation, err)
	}
	return model, nil
}

// track records usage; a ledger failure is logged and does not fail the event.
func (o *Orchestrator) track(ctx context.Context, r *run, eventID, model, operation string, usage brain.Usage, outcome *Outcome) {
	outcome.Tokens += usage.Total()

	res, err := o.costs.TrackUsage(ctx, r.userID, model, usage.InputTokens, usage.OutputTokens, operation, eventID)
	if err != nil {
		o.logger.Error("failed to track usage", "user_id", r.userID, "event_id", eventID, "model", model, "error", err)
		outcome.Cost += o.catalog.Cost(model, usage.InputTokens, usage.OutputTokens)
		return
	}
	outcome.Cost += res.Cost
	r.addAlerts(res.Alerts)
}

// fail persists a terminal failure record carrying err as the reason.
func (o *Orchestrator) fail(ctx context.Context, r *run, ev event.Event, outcome *Outcome, filtered *brain.FilterResult, err error) (*Outcome, error) {
	reason := err.Error()
	outcome.State = event.StateExtractionFailed
	outcome.Reason = reason
	outcome.Error = reason

	model := outcome.Model
	confidence := 0.0
	if filtered != nil {
		confidence = filtered.Confidence
		if model == "" {
			model = filtered.UsedModel
		}
	}

	if ctx.Err() != nil {
		o.logger.Info("event analysis cancelled", "user_id", r.userID, "event_id", ev.ID)
		return outcome, err
	}
	o.logger.Warn("event analysis failed", "user_id", r.userID, "event_id", ev.ID, "error", err)
	o.persist(ctx, &event.ProcessedEventRecord{
		UserID:  r.userID,
		EventID: ev.ID,
		Hash:    outcome.Hash,
		State:   event.StateExtractionFailed,
		Analysis: &event.AnalysisResult{
			RelevanceReason: reason,
			EventType:       event.TypeOther,
			ClientEmails:    []string{},
			Topics:          []string{},
			ActionItems:     []string{},
			Confidence:      confidence,
			SuggestedAction: event.ActionReview,
			Model:           model,
			Timestamp:       time.Now().UTC(),
		},
		Model: model,
	})
	return outcome, err
}

// unfinished builds the outcome of an event whose operation produced no
// value: it panicked or never started because the run was cancelled.
// Cancelled events are not persisted so the next run picks them up.
func (o *Orchestrator) unfinished(ctx context.Context, r *run, ev event.Event, err error) *Outcome {
	if err == nil {
		err = errors.New("operation produced no outcome")
	}
	outcome, _ := o.fail(ctx, r, ev, &Outcome{EventID: ev.ID, Hash: event.ComputeHash(ev)}, nil, err)
	return outcome
}

func (o *Orchestrator) persist(ctx context.Context, rec *event.ProcessedEventRecord) {
	if err := o.detector.MarkProcessed(ctx, rec); err != nil {
		o.logger.Error("failed to persist processed event",
			"user_id", rec.UserID, "event_id", rec.EventID, "state", rec.State, "error", err)
	}
}
