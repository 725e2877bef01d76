package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/brain"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/concurrency"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/config"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/activity"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/event"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/mcp"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/observe"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/orchestrator"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/ratelimit"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/sqlite"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/telemetry"
)

const signalBuffer = 256

// app holds the wired components for one process.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	level  *slog.LevelVar

	db       *sqlite.DB
	apiKeys  *sqlite.APIKeyRepository
	detector *event.Detector
	costs    *cost.Tracker
	activity *activity.Service
	catalog  *llm.Catalog
	limiter  *ratelimit.Limiter

	signals    *observe.ChannelObserver
	controller *concurrency.Controller
	tracer     trace.Tracer

	// set by withPipeline
	orchestrator *orchestrator.Orchestrator

	reporterDone chan struct{}

	closers []func(context.Context) error
}

// newApp opens storage and builds every component that needs no model
// provider. Close releases what it opened.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	level := new(slog.LevelVar)
	level.Set(parseLogLevel(cfg.Log.Level))
	logger, closeLog, err := newLogger(cfg.Log.Path, cfg.Transport.Mode == "stdio", level)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, level: level}
	a.closers = append(a.closers, func(context.Context) error { return closeLog() })

	if err := ensureDir(cfg.DB.Path); err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("preparing database path: %w", err)
	}
	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	if err := db.RunMigrations(); err != nil {
		a.Close(ctx)
		return nil, err
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.catalog = catalog

	provider, shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.tracer = telemetry.Tracer(provider)
	a.closers = append(a.closers, func(ctx context.Context) error { return shutdown(ctx) })

	a.apiKeys = sqlite.NewAPIKeyRepository(db)
	a.detector = event.NewDetector(sqlite.NewProcessedEventRepository(db), logger)
	a.costs = cost.NewTracker(sqlite.NewUsageRepository(db), catalog, cfg.CostConfig(), logger)
	a.activity = activity.NewService(sqlite.NewActivityRepository(db), logger)
	a.limiter = ratelimit.New(catalog, cfg.RateLimiterConfig(), logger)
	a.signals = observe.NewChannelObserver(signalBuffer)
	a.controller = concurrency.NewController(cfg.Processing.Concurrency, a.signals, logger)
	return a, nil
}

// withPipeline adds the model provider and the orchestrator.
func (a *app) withPipeline() error {
	base, err := newProvider(a.cfg.Provider)
	if err != nil {
		return err
	}
	provider := llm.NewRetryProvider(base, a.cfg.ProviderRetryConfig(), a.logger)

	orch, err := orchestrator.New(orchestrator.Deps{
		Detector:   a.detector,
		Filter:     brain.NewFilter(provider, a.logger),
		Extractor:  brain.NewExtractor(provider, a.logger),
		Limiter:    a.limiter,
		Costs:      a.costs,
		Controller: a.controller,
		Catalog:    a.catalog,
		Tracer:     a.tracer,
		Logger:     a.logger,
	}, a.cfg.OrchestratorConfig())
	if err != nil {
		return err
	}
	a.orchestrator = orch
	return nil
}

func newProvider(cfg config.ProviderConfig) (llm.ModelProvider, error) {
	var client *http.Client
	if cfg.Timeout > 0 {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	switch cfg.Name {
	case "anthropic":
		return llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			MaxTokens:  cfg.MaxTokens,
			HTTPClient: client,
		})
	case "openai", "":
		return llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			HTTPClient:  client,
		})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", config.ErrInvalid, cfg.Name)
	}
}

// startReporter drains controller signals into the log and the activity
// log until Close. It outlives ctx cancellation so queued signals are kept.
func (a *app) startReporter(ctx context.Context) {
	done := make(chan struct{})
	r := observe.NewReporter(a.signals.Signals(), a.activity, a.logger)
	go func() {
		defer close(done)
		if err := r.Run(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("activity reporter stopped", "error", err)
		}
	}()
	a.reporterDone = done
}

// mcpServices exposes the components as tool backends. The orchestrator
// must be built first.
func (a *app) mcpServices() mcp.Services {
	return mcp.Services{
		Processor:   a.orchestrator,
		Costs:       a.costs,
		Events:      a.detector,
		Concurrency: a.controller,
		RateLimits:  a.limiter,
		Activity:    a.activity,
	}
}

// applyConfig applies the hot-reloadable parts of a new config.
func (a *app) applyConfig(cfg config.Config) {
	a.level.Set(parseLogLevel(cfg.Log.Level))
	if err := a.controller.AdjustConcurrency(cfg.Processing.Concurrency); err != nil {
		a.logger.Warn("ignoring concurrency from reloaded config", "error", err)
	}
	if a.orchestrator != nil {
		a.orchestrator.Reconfigure(cfg.OrchestratorConfig())
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	if a.signals != nil {
		a.signals.Close()
	}
	if a.reporterDone != nil {
		<-a.reporterDone
		a.reporterDone = nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
