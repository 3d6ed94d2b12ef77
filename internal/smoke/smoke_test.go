package smoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/urbanobservatory/internal/api"
)

var responses = map[string]string{
	"/api/v0.1/sensors/entity/": `{
		"pagination": {"pageRecords": 2, "pageCurrent": 0, "pageCount": 1, "pageSize": 2},
		"items": [{"entityId": "a"}, {"entityId": "b"}]
	}`,
	"/api/v0.1/sensors/entity/" + EntityID + "/": `{
		"entityId": "` + EntityID + `",
		"name": "Room 2.048",
		"meta": {"building": "Urban Sciences Building"}
	}`,
	"/api/v0.1/sensors/feed/" + FeedID + "/": `{
		"feedId": "` + FeedID + `",
		"metric": "Room Temperature",
		"meta": {"source": "BMS"}
	}`,
	"/api/v0.1/sensors/summary/": `[{"entityId": "a"}]`,
	"/api/v0.1/sensors/timeseries/" + TimeseriesID + "/historic/": `{
		"timeseries": {"timeseriesId": "` + TimeseriesID + `"},
		"historic": {"values": [
			{"time": "2018-01-20T00:00:11.000Z", "value": 4.5},
			{"time": "2018-01-20T00:30:11.000Z", "value": 5.25}
		]}
	}`,
}

func newClient(t *testing.T, overrides map[string]string) *api.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := overrides[r.URL.Path]
		if !ok {
			body, ok = responses[r.URL.Path]
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	c, err := api.NewClient(api.Config{BaseURL: srv.URL + "/api/v0.1/"}, nil)
	require.NoError(t, err)
	return c
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRunDefaultChecks(t *testing.T) {
	report := Run(context.Background(), newClient(t, nil), testLogger(), DefaultChecks())

	require.Len(t, report.Results, len(DefaultChecks()))
	for _, res := range report.Results {
		assert.NoError(t, res.Err, res.Name)
	}
	assert.True(t, report.OK())
	assert.Zero(t, report.Failed())
}

func TestRunReportsEveryFailure(t *testing.T) {
	client := newClient(t, map[string]string{
		"/api/v0.1/sensors/entity/" + EntityID + "/": `{"entityId": "someone-else", "meta": {}}`,
		"/api/v0.1/sensors/feed/" + FeedID + "/":     `{"feedId": "` + FeedID + `", "meta": {}}`,
		"/api/v0.1/sensors/summary/":                 `[]`,
	})

	report := Run(context.Background(), client, testLogger(), DefaultChecks())

	assert.False(t, report.OK())
	assert.Equal(t, 3, report.Failed())

	byName := make(map[string]error, len(report.Results))
	for _, res := range report.Results {
		byName[res.Name] = res.Err
	}
	assert.NoError(t, byName["get multiple entities"])
	assert.ErrorIs(t, byName["get single entity"], errCheck)
	assert.ErrorContains(t, byName["get feed"], "no metric")
	assert.ErrorContains(t, byName["get summary"], "empty")
	assert.NoError(t, byName["get timeseries"])
}

func TestRunPassesClientErrorsThrough(t *testing.T) {
	client := newClient(t, nil)
	checks := []Check{{
		Name: "missing entity",
		Run: func(ctx context.Context, c API) error {
			_, err := c.GetEntity(ctx, "does-not-exist")
			return err
		},
	}}

	report := Run(context.Background(), client, testLogger(), checks)
	require.Len(t, report.Results, 1)

	var remote *api.RemoteError
	require.True(t, errors.As(report.Results[0].Err, &remote))
	assert.Equal(t, http.StatusNotFound, remote.StatusCode)
}

func TestCheckTimeseriesOrder(t *testing.T) {
	client := newClient(t, map[string]string{
		"/api/v0.1/sensors/timeseries/" + TimeseriesID + "/historic/": `[
			{"time": "2018-01-20T00:30:00Z", "value": 2},
			{"time": "2018-01-20T00:10:00Z", "value": 1}
		]`,
	})

	err := checkTimeseries(context.Background(), client)
	assert.ErrorContains(t, err, "out of order")
}
