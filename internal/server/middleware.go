package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/urbanobservatory/internal/api"
)

const requestIDKey = "requestID"

// requestID tags every request with an id, reusing the caller's X-Request-ID
// when one is sent.
func requestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(api.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(requestIDKey, id)
		c.Set(api.RequestIDHeader, id)
		return c.Next()
	}
}

func accessLog(logger *logrus.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}
		requestID, _ := c.Locals(requestIDKey).(string)

		entry := logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"duration":   time.Since(start).String(),
		})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Debug("Handled request")

		return err
	}
}
