// Package server exposes poller health, Prometheus metrics and the buffered
// readings over HTTP.
package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/urbanobservatory/internal/scheduler"
	"github.com/tejusbharadwaj/urbanobservatory/internal/store"
)

// HealthReporter is implemented by *scheduler.Scheduler.
type HealthReporter interface {
	Status() scheduler.Status
}

// New builds the status server. gatherer may be nil, in which case the
// default Prometheus registry is served.
func New(st *store.MemoryStore, health HealthReporter, gatherer prometheus.Gatherer, logger *logrus.Logger) *fiber.App {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	app := fiber.New(fiber.Config{
		AppName:               "urbanobservatory",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(requestID())
	app.Use(accessLog(logger))

	app.Get("/health", func(c *fiber.Ctx) error {
		status := health.Status()
		if !status.Healthy() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unhealthy",
				"poll":   status,
			})
		}
		return c.JSON(fiber.Map{
			"status": "ok",
			"poll":   status,
		})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	registerRoutes(app, st)
	return app
}
