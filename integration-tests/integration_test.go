//go:build integration
// +build integration

package integration_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/urbanobservatory/internal/api"
	"github.com/tejusbharadwaj/urbanobservatory/internal/database"
	"github.com/tejusbharadwaj/urbanobservatory/internal/scheduler"
	"github.com/tejusbharadwaj/urbanobservatory/internal/server"
	"github.com/tejusbharadwaj/urbanobservatory/internal/sink"
	"github.com/tejusbharadwaj/urbanobservatory/internal/smoke"
	"github.com/tejusbharadwaj/urbanobservatory/internal/store"
)

const testEntity = "integration-entity"

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	return l
}

// Helper function to get environment variables with defaults
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func connString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnvOrDefault("DB_HOST", "db"),
		getEnvOrDefault("DB_PORT", "5432"),
		getEnvOrDefault("DB_USER", "urbanobservatory"),
		getEnvOrDefault("DB_PASSWORD", "urbanobservatory"),
		getEnvOrDefault("DB_NAME", "urbanobservatory"),
	)
}

func setupTestDB(t *testing.T) *database.PostgresRepo {
	ctx := context.Background()
	repo, err := database.NewPostgresRepo(ctx, connString(), 4)
	require.NoError(t, err)
	require.NoError(t, repo.EnsureSchema(ctx))

	db, err := sql.Open("postgres", connString())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("DELETE FROM readings WHERE entity_id = $1", testEntity)
	require.NoError(t, err)

	t.Cleanup(func() { repo.Close() })
	return repo
}

type valueRecord struct {
	Time     string  `json:"time"`
	Duration float64 `json:"duration"`
	Value    float64 `json:"value"`
}

// setupMockAPIServer answers historic queries with one reading per minute
// inside the requested window.
func setupMockAPIServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, err := time.Parse(time.RFC3339, r.URL.Query().Get("startTime"))
		require.NoError(t, err)
		end, err := time.Parse(time.RFC3339, r.URL.Query().Get("endTime"))
		require.NoError(t, err)

		var values []valueRecord
		for ts := start.Truncate(time.Minute); !ts.After(end); ts = ts.Add(time.Minute) {
			if ts.Before(start) {
				continue
			}
			values = append(values, valueRecord{
				Time:     ts.Format("2006-01-02T15:04:05.000Z"),
				Duration: -60,
				Value:    rand.Float64() * 100,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"timeseries": map[string]string{"timeseriesId": testEntity},
			"historic":   map[string]interface{}{"values": values},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPollToTimescaleDB(t *testing.T) {
	ctx := context.Background()
	repo := setupTestDB(t)
	mockAPI := setupMockAPIServer(t)

	registry := prometheus.NewRegistry()
	require.NoError(t, api.RegisterMetrics(registry))

	client, err := api.NewClient(api.Config{BaseURL: mockAPI.URL + "/api/v0.1/"}, logger)
	require.NoError(t, err)

	st := store.NewMemoryStore(100, 0)
	sched, err := scheduler.NewScheduler(ctx, scheduler.Options{
		Entities: []string{testEntity},
		Schedule: "*/5 * * * *",
		Window:   10 * time.Minute,
		Fetcher:  client,
		Sink:     sink.Func(repo.InsertReadings),
		Store:    st,
	}, logger)
	require.NoError(t, err)

	// Two polls over overlapping windows must not duplicate rows.
	require.NoError(t, sched.CollectOnce(ctx))
	require.NoError(t, sched.CollectOnce(ctx))

	db, err := sql.Open("postgres", connString())
	require.NoError(t, err)
	defer db.Close()

	var rows, distinct int
	require.NoError(t, db.QueryRow(
		"SELECT count(*), count(DISTINCT time) FROM readings WHERE entity_id = $1", testEntity,
	).Scan(&rows, &distinct))
	assert.Greater(t, rows, 0)
	assert.Equal(t, distinct, rows)

	app := server.New(st, sched, registry, logger)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/entities/"+testEntity+"/latest", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `urbanobs_client_requests_total{method="timeseries",outcome="ok"} 2`)
}

// TestLiveService runs the smoke checks against the public Urban Observatory.
func TestLiveService(t *testing.T) {
	if os.Getenv("UO_LIVE") == "" {
		t.Skip("set UO_LIVE=1 to run against the public service")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := api.NewClient(api.Config{
		BaseURL: os.Getenv("UO_API_BASE_URL"),
		Timeout: 60 * time.Second,
	}, logger)
	require.NoError(t, err)

	report := smoke.Run(ctx, client, logger, smoke.DefaultChecks())
	for _, res := range report.Results {
		assert.NoError(t, res.Err, res.Name)
	}
}
