// Package smoke runs a fixed set of checks against a live Urban Observatory
// endpoint to confirm that it answers every operation the client supports.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/urbanobservatory/internal/models"
)

// Known ids on the public service.
const (
	EntityID     = "47d42c59-0a33-4267-9a33-e64f5d11afc9"
	FeedID       = "f163a36e-e65a-4739-911d-9b909eccb83e"
	TimeseriesID = "bd0cc46d-ba2e-4924-a66e-b032d7ca33a5"
)

var (
	WindowStart = time.Date(2018, 1, 20, 0, 0, 0, 0, time.UTC)
	WindowEnd   = time.Date(2018, 1, 20, 1, 0, 0, 0, time.UTC)
)

// API is the subset of *api.Client the checks call.
type API interface {
	GetEntities(ctx context.Context, page int) (*models.EntityPage, error)
	GetEntity(ctx context.Context, entityID string) (*models.Entity, error)
	GetFeed(ctx context.Context, feedID string) (*models.Feed, error)
	GetSummary(ctx context.Context) ([]models.Entity, error)
	GetTimeseries(ctx context.Context, entityID string, start, end time.Time) (*models.TimeseriesResult, error)
}

type Check struct {
	Name string
	Run  func(ctx context.Context, client API) error
}

type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

type Report struct {
	Results []Result
}

// OK reports whether every check passed.
func (r Report) OK() bool {
	for _, res := range r.Results {
		if res.Err != nil {
			return false
		}
	}
	return true
}

// Failed returns the number of failed checks.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Run executes every check in order. A failing check does not stop the rest.
func Run(ctx context.Context, client API, logger *logrus.Logger, checks []Check) Report {
	report := Report{Results: make([]Result, 0, len(checks))}

	for _, check := range checks {
		start := time.Now()
		err := check.Run(ctx, client)
		res := Result{Name: check.Name, Err: err, Duration: time.Since(start)}
		report.Results = append(report.Results, res)

		entry := logger.WithFields(logrus.Fields{
			"check":    check.Name,
			"duration": res.Duration.String(),
		})
		if err != nil {
			entry.WithError(err).Error("FAIL")
			continue
		}
		entry.Info("PASS")
	}

	return report
}

// DefaultChecks returns the standard checks against the public service ids.
func DefaultChecks() []Check {
	return []Check{
		{Name: "get multiple entities", Run: checkEntities},
		{Name: "get single entity", Run: checkEntity},
		{Name: "get feed", Run: checkFeed},
		{Name: "get summary", Run: checkSummary},
		{Name: "get timeseries", Run: checkTimeseries},
	}
}

var errCheck = errors.New("check failed")

func failf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errCheck, fmt.Sprintf(format, args...))
}

func checkEntities(ctx context.Context, client API) error {
	// pagination and items are enforced when the page is decoded
	_, err := client.GetEntities(ctx, 0)
	return err
}

func checkEntity(ctx context.Context, client API) error {
	entity, err := client.GetEntity(ctx, EntityID)
	if err != nil {
		return err
	}
	if entity.EntityID != EntityID {
		return failf("entity id %q, want %q", entity.EntityID, EntityID)
	}
	if entity.Meta == nil {
		return failf("entity has no meta")
	}
	return nil
}

func checkFeed(ctx context.Context, client API) error {
	feed, err := client.GetFeed(ctx, FeedID)
	if err != nil {
		return err
	}
	if feed.FeedID != FeedID {
		return failf("feed id %q, want %q", feed.FeedID, FeedID)
	}
	if feed.Metric == "" {
		return failf("feed has no metric")
	}
	if feed.Meta == nil {
		return failf("feed has no meta")
	}
	return nil
}

func checkSummary(ctx context.Context, client API) error {
	summary, err := client.GetSummary(ctx)
	if err != nil {
		return err
	}
	if len(summary) == 0 {
		return failf("summary is empty")
	}
	if summary[0].EntityID == "" {
		return failf("first summary entry has no entity id")
	}
	return nil
}

func checkTimeseries(ctx context.Context, client API) error {
	res, err := client.GetTimeseries(ctx, TimeseriesID, WindowStart, WindowEnd)
	if err != nil {
		return err
	}
	if res.TimeseriesID != "" && res.TimeseriesID != TimeseriesID {
		return failf("timeseries id %q, want %q", res.TimeseriesID, TimeseriesID)
	}
	for i, r := range res.Readings {
		if r.Time.Before(WindowStart) || r.Time.After(WindowEnd) {
			return failf("reading %d at %s outside window", i, r.Time.Format(time.RFC3339))
		}
		if i > 0 && r.Time.Before(res.Readings[i-1].Time) {
			return failf("reading %d out of order", i)
		}
	}
	return nil
}
