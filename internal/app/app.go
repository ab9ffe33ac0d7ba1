package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"DailyDigest/internal/budget"
	"DailyDigest/internal/config"
	"DailyDigest/internal/domain"
	"DailyDigest/internal/infrastructure/feeds"
	"DailyDigest/internal/infrastructure/llm"
	"DailyDigest/internal/infrastructure/mail"
	"DailyDigest/internal/ledger"
	"DailyDigest/internal/logging"
	"DailyDigest/internal/ports"
	"DailyDigest/internal/retry"
	"DailyDigest/internal/router"
	"DailyDigest/internal/scanner"
	"DailyDigest/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	store  *ledger.Store
	orch   *usecase.Orchestrator
	sched  *usecase.Scheduler
}

// New builds a runnable application instance from resolved config.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("open ledger at %s: %w", cfg.Ledger.Path, err)
	}

	registry := scanner.NewRegistry()
	registry.Register(feeds.NewHeadlineScanner(nil))
	source := feeds.NewStrategySource(registry, cfg.Sites, baseLogger.With("component", "source"))

	providers := map[string]ports.GenerationProvider{}
	if cfg.Providers.Anthropic.APIKey != "" {
		providers["anthropic"] = llm.NewAnthropicProvider(cfg.Providers.Anthropic)
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		providers["openai"] = llm.NewOpenAIProvider(cfg.Providers.OpenAI)
	}

	transport, err := buildTransport(cfg.Delivery)
	if err != nil {
		store.Close()
		return nil, err
	}

	tracker := budget.NewTracker(cfg.Budget.Ceiling)
	routed := router.New(buildRoutes(cfg.Routes), providers, transport, tracker,
		baseLogger.With("component", "router"))

	orch := usecase.NewOrchestrator(usecase.Deps{
		Source: source,
		Router: routed,
		Budget: tracker,
		Store:  store,
		Logger: baseLogger.With("component", "pipeline"),
	}, usecase.Options{
		Ceiling:      cfg.Budget.Ceiling,
		MaxItems:     cfg.Pipeline.MaxItems,
		SelectTop:    cfg.Pipeline.SelectTop,
		Workers:      cfg.Pipeline.Workers,
		TestMaxItems: cfg.Pipeline.TestMaxItems,
		Retry: retry.Policy{
			MaxAttempts:  cfg.Pipeline.RetryAttempts,
			InitialDelay: cfg.Pipeline.RetryDelay(),
			Multiplier:   2,
		},
		Recipients:     cfg.Delivery.Recipients,
		Subject:        cfg.Delivery.Subject,
		SelectorPrompt: cfg.Pipeline.SelectorPrompt,
		WriterPrompt:   cfg.Pipeline.WriterPrompt,
		EditorPrompt:   cfg.Pipeline.EditorPrompt,
	})

	sched := usecase.NewScheduler(cfg.Schedule.Hour, cfg.Schedule.Minute,
		cfg.Schedule.Location(), orch, baseLogger.With("component", "scheduler"))

	return &Application{
		cfg:    cfg,
		logger: baseLogger,
		store:  store,
		orch:   orch,
		sched:  sched,
	}, nil
}

// RunOnce executes one full pipeline cycle immediately.
func (a *Application) RunOnce(ctx context.Context, test bool) (domain.RunResult, error) {
	return a.orch.StartRun(ctx, test)
}

// Serve runs the daily scheduler until the context is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("scheduler running",
		"hour", a.cfg.Schedule.Hour,
		"minute", a.cfg.Schedule.Minute,
		"utcOffsetMinutes", a.cfg.Schedule.UTCOffsetMinutes)

	<-ctx.Done()
	return a.sched.Stop(context.Background())
}

// CostSummary reports committed spend grouped by stage over [from, to).
func (a *Application) CostSummary(ctx context.Context, from, to time.Time) (domain.CostSummary, error) {
	return a.store.SummarizeCosts(ctx, from, to)
}

// Close releases the ledger handle.
func (a *Application) Close() error {
	return a.store.Close()
}

func buildTransport(cfg config.DeliveryConfig) (ports.DeliveryTransport, error) {
	switch cfg.Transport {
	case "smtp", "":
		return mail.NewSMTPTransport(cfg.SMTP), nil
	case "api":
		return mail.NewAPITransport(cfg.API), nil
	default:
		return nil, fmt.Errorf("unknown delivery transport %q", cfg.Transport)
	}
}

func buildRoutes(cfg config.RoutesConfig) map[router.TaskKind][]router.Route {
	return map[router.TaskKind][]router.Route{
		router.TaskSelect:  mapRoutes(cfg.Select),
		router.TaskWrite:   mapRoutes(cfg.Write),
		router.TaskEdit:    mapRoutes(cfg.Edit),
		router.TaskDeliver: mapRoutes(cfg.Deliver),
	}
}

func mapRoutes(entries []config.RouteConfig) []router.Route {
	routes := make([]router.Route, 0, len(entries))
	for _, e := range entries {
		routes = append(routes, router.Route{
			Provider:         e.Provider,
			Model:            e.Model,
			InputPricePer1K:  e.InputPricePer1K,
			OutputPricePer1K: e.OutputPricePer1K,
			FlatPrice:        e.FlatPrice,
			MaxTokens:        e.MaxTokens,
		})
	}
	return routes
}
