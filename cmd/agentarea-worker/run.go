package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/agentarea/agentarea/pkg/cmd"
	"github.com/agentarea/agentarea/pkg/config"
	"github.com/agentarea/agentarea/pkg/log"
	"github.com/agentarea/agentarea/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the worker, cron poller and webhook server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to serve webhooks and workflow endpoints on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file path or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "history-url",
				Usage:   "Workflow history store (redis:// URL, empty for in-memory)",
				Sources: cli.EnvVars("HISTORY_URL"),
			},
			&cli.DurationFlag{
				Name:    "history-ttl",
				Usage:   "Expire closed workflow histories after this duration (0 keeps them)",
				Sources: cli.EnvVars("HISTORY_TTL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "llm-base-url",
				Usage:   "Base URL of the OpenAI-compatible API",
				Value:   "https://api.openai.com/v1",
				Sources: cli.EnvVars("LLM_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "llm-api-key",
				Usage:   "API key for the LLM provider",
				Sources: cli.EnvVars("LLM_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Engine tuning file (yaml, toml or json)",
				Sources: cli.EnvVars("AGENTAREA_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("agentarea-worker")

			cfg, err := config.Load(command.String("config"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Initializing agentarea worker")

			deps := WorkerDeps{
				Config:     cfg,
				LLMBaseURL: command.String("llm-base-url"),
				LLMAPIKey:  command.String("llm-api-key"),
				Logger:     logger,
			}

			if command.Bool("tracing") {
				tracer, shutdownTracer, err := otelhelper.NewTracer(ctx, "agentarea-worker")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
					}
				}()

				deps.Tracer = tracer
			}

			deps.Persistence, err = cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := deps.Persistence.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			history, closeHistory, err := cmd.NewHistoryStore(ctx, command.String("history-url"), command.Duration("history-ttl"))
			if err != nil {
				return err
			}

			defer func() {
				if err := closeHistory(); err != nil {
					logger.ErrorContext(ctx, "Failed to close history store", "error", err)
				}
			}()

			deps.History = history

			deps.EventBus, err = cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := deps.EventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			worker := NewWorker(deps)
			if err := worker.Start(ctx); err != nil {
				return err
			}

			serveErr := make(chan error, 1)

			go func() {
				serveErr <- worker.Serve(":" + strconv.Itoa(command.Int("port")))
			}()

			select {
			case <-ctx.Done():
				logger.InfoContext(ctx, "Shutting down worker")
			case err := <-serveErr:
				if err != nil {
					logger.ErrorContext(ctx, "HTTP server stopped", "error", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Engine.ShutdownTimeout)
			defer cancel()

			return worker.Shutdown(shutdownCtx)
		},
	}
}
