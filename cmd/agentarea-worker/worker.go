package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/agentarea/agentarea/pkg/activities"
	"github.com/agentarea/agentarea/pkg/agent"
	"github.com/agentarea/agentarea/pkg/conditions"
	"github.com/agentarea/agentarea/pkg/config"
	"github.com/agentarea/agentarea/pkg/durable"
	"github.com/agentarea/agentarea/pkg/eventbus"
	"github.com/agentarea/agentarea/pkg/llm"
	"github.com/agentarea/agentarea/pkg/persistence"
	"github.com/agentarea/agentarea/pkg/scheduler"
	"github.com/agentarea/agentarea/pkg/tasks"
	"github.com/agentarea/agentarea/pkg/tools"
	"github.com/agentarea/agentarea/pkg/triggers"
	"github.com/agentarea/agentarea/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"go.opentelemetry.io/otel/trace"
)

type WorkerDeps struct {
	Persistence persistence.Persistence
	History     durable.HistoryStore
	EventBus    eventbus.EventBus
	Config      *config.Config
	LLMBaseURL  string
	LLMAPIKey   string
	// Tracer is optional.
	Tracer trace.Tracer
	Logger *slog.Logger
}

// Worker runs the durable engine with the agent and trigger workflows, the
// cron poller and the HTTP surface.
type Worker struct {
	engine *durable.Engine
	poller *scheduler.Poller
	app    *fiber.App
	tasks  *tasks.Service
	cfg    *config.Config
	logger *slog.Logger
}

func NewWorker(deps WorkerDeps) *Worker {
	cfg := deps.Config
	logger := deps.Logger

	engineOpts := []durable.Option{durable.WithMaxConcurrentActivities(cfg.Engine.MaxConcurrentActivities)}
	if deps.Tracer != nil {
		engineOpts = append(engineOpts, durable.WithTracer(deps.Tracer))
	}

	engine := durable.NewEngine(deps.History, logger, engineOpts...)

	client := llm.NewClient(llm.Config{
		BaseURL:           deps.LLMBaseURL,
		APIKey:            deps.LLMAPIKey,
		DefaultModel:      cfg.LLM.DefaultModel,
		Timeout:           cfg.LLM.Timeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
	}, cfg.Pricing(), logger)

	registry := tools.NewRegistry(logger)
	registry.MustRegister(tools.TaskComplete{}, tools.NewHTTPRequest(cfg.Tools.HTTPTimeout))

	activityOpts := []activities.Option{activities.WithDefaultModel(cfg.LLM.DefaultModel)}
	if cfg.Agent.EvaluateGoals {
		activityOpts = append(activityOpts, activities.WithJudge(activities.NewLLMJudge(client)))
	}

	agentActivities := activities.New(deps.Persistence.Agents(), deps.Persistence.Tasks(), client, registry, deps.EventBus, logger, activityOpts...)

	agentOpts := agent.DefaultOptions()
	agentOpts.EvaluateGoals = cfg.Agent.EvaluateGoals
	agent.Register(engine, agent.NewWorkflow(agentOpts), agentActivities)

	taskService := tasks.NewService(
		deps.Persistence.Agents(),
		deps.Persistence.Tasks(),
		engine,
		logger,
		tasks.WithDefaultBudget(cfg.Agent.DefaultBudgetUSD),
		tasks.WithDefaultMaxIterations(cfg.Agent.DefaultMaxIterations),
	)

	triggerService := triggers.NewService(
		deps.Persistence.Triggers(),
		deps.Persistence.TriggerExecutions(),
		conditions.NewEvaluator(client, logger),
		taskService,
		deps.EventBus,
		logger,
	)
	triggers.Register(engine, triggers.NewWorkflow(triggers.DefaultOptions()), triggerService)

	handlers := web.NewAPIHandlers(
		deps.Persistence.Triggers(),
		engine,
		deps.Persistence,
		validator.New(validator.WithRequiredStructEnabled()),
		logger,
	)

	return &Worker{
		engine: engine,
		poller: scheduler.NewPoller(deps.Persistence.Triggers(), engine, logger, scheduler.WithInterval(cfg.Scheduler.Interval)),
		app: web.NewApp(handlers, web.Config{
			WebhookRateLimit:  cfg.Webhooks.RateLimit,
			WebhookRateWindow: cfg.Webhooks.RateWindow,
			AccessLog:         true,
		}),
		tasks:  taskService,
		cfg:    cfg,
		logger: logger.With("module", "worker"),
	}
}

func (w *Worker) App() *fiber.App {
	return w.app
}

func (w *Worker) Tasks() *tasks.Service {
	return w.tasks
}

// Start resumes open workflow runs and starts the cron poller. The HTTP
// server is started separately with Serve.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.engine.Resume(ctx); err != nil {
		return err
	}

	if w.cfg.Scheduler.Enabled {
		if err := w.poller.Start(ctx); err != nil {
			return err
		}
	}

	w.logger.InfoContext(ctx, "Worker started", "scheduler", w.cfg.Scheduler.Enabled)

	return nil
}

// Serve blocks serving HTTP on addr until the app is shut down.
func (w *Worker) Serve(addr string) error {
	return w.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting work and waits for running workflows to reach a
// safe point. Interrupted runs continue on the next Start.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.poller.Stop()

	httpErr := w.app.ShutdownWithContext(ctx)
	if errors.Is(httpErr, fiber.ErrNotRunning) {
		httpErr = nil
	}

	engineErr := w.engine.Shutdown(ctx)

	w.logger.InfoContext(ctx, "Worker stopped")

	return errors.Join(httpErr, engineErr)
}
