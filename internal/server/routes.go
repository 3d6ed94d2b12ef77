package server

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/tejusbharadwaj/urbanobservatory/internal/store"
)

var validate = validator.New()

func registerRoutes(app *fiber.App, st *store.MemoryStore) {
	v1 := app.Group("/api/v1")

	v1.Get("/entities", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"entities": st.Entities()})
	})

	v1.Get("/entities/:id/latest", func(c *fiber.Ctx) error {
		id := c.Params("id")
		reading, err := st.Latest(id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no readings for requested entity")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read buffered readings")
		}
		return c.JSON(fiber.Map{
			"entity":  id,
			"reading": reading,
		})
	})

	v1.Get("/entities/:id/readings", func(c *fiber.Ctx) error {
		var req rangeQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		readings, err := st.Range(req.EntityID, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no readings for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read buffered readings")
		}

		return c.JSON(fiber.Map{
			"entity":   req.EntityID,
			"from":     req.From,
			"to":       req.To,
			"readings": readings,
		})
	})
}

type rangeQuery struct {
	EntityID string    `validate:"required"`
	From     time.Time `validate:"required"`
	To       time.Time `validate:"required,gtefield=From"`
}

func (q *rangeQuery) bind(c *fiber.Ctx) error {
	q.EntityID = c.Params("id")

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	q.From = from
	q.To = to
	return nil
}

// parseTime accepts RFC3339 or unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
