package outbox

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHealthApp serves /healthz and /readyz for one worker loop.
func NewHealthApp(loop *Loop) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if !loop.Healthy() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"state":  loop.State(),
			})
		}
		return c.JSON(fiber.Map{"status": "ok", "state": loop.State()})
	})

	app.Get("/readyz", func(c *fiber.Ctx) error {
		if !loop.Ready() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "not ready",
				"state":  loop.State(),
			})
		}
		return c.JSON(fiber.Map{"status": "ready", "state": loop.State()})
	})

	return app
}

// NewMetricsApp serves the Prometheus registry on /metrics.
func NewMetricsApp(reg *prometheus.Registry) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	app.Get("/metrics", adaptor.HTTPHandler(handler))
	return app
}
