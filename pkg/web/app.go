package web

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodySize = 1024 * 1024

type Config struct {
	// WebhookRateLimit is the number of calls one client may make to one
	// webhook per WebhookRateWindow. Zero disables limiting.
	WebhookRateLimit  int
	WebhookRateWindow time.Duration
	AccessLog         bool
}

// NewApp builds the fiber application serving the handlers.
func NewApp(handlers *APIHandlers, cfg Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "agentarea",
		BodyLimit: maxBodySize,
	})

	app.Use(cors.New())

	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			DisableColors: true,
		}))
	}

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	webhookChain := []fiber.Handler{}
	if cfg.WebhookRateLimit > 0 {
		window := cfg.WebhookRateWindow
		if window <= 0 {
			window = time.Minute
		}

		webhookChain = append(webhookChain, limiter.New(limiter.Config{
			Max:        cfg.WebhookRateLimit,
			Expiration: window,
			KeyGenerator: func(c fiber.Ctx) string {
				return c.IP() + "|" + c.Params("webhook_id")
			},
			LimitReached: tooManyRequests,
		}))
	}

	webhookChain = append(webhookChain, handlers.Webhook)
	app.All("/webhooks/:webhook_id", webhookChain[0], webhookChain[1:]...)

	w := app.Group("/workflows")
	w.Get("/:workflow_id", handlers.GetWorkflow)
	w.Post("/:workflow_id/cancel", handlers.CancelWorkflow)

	return app
}
