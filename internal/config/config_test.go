package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
api:
  base_url: "https://api.example.org/api/v0.1/"
  timeout: 10s
  rate_limit: 2.5
  rate_limit_burst: 4

poll:
  entities:
    - bd0cc46d-ba2e-4924-a66e-b032d7ca33a5
    - cc567a16-c3e7-4ee5-bbd5-841644d825dd
  schedule: "*/1 * * * *"
  window: 3m
  sink: influx

database:
  host: "localhost"
  port: 5432
  name: "testdb"
  user: "testuser"
  password: "testpass"

logging:
  level: "debug"
  format: "text"
`)

	config, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, "https://api.example.org/api/v0.1/", config.API.BaseURL)
	assert.Equal(t, 10*time.Second, config.API.Timeout)
	assert.Equal(t, 2.5, config.API.RateLimit)
	assert.Equal(t, 4, config.API.RateLimitBurst)
	assert.Equal(t, []string{
		"bd0cc46d-ba2e-4924-a66e-b032d7ca33a5",
		"cc567a16-c3e7-4ee5-bbd5-841644d825dd",
	}, config.Poll.Entities)
	assert.Equal(t, "*/1 * * * *", config.Poll.Schedule)
	assert.Equal(t, 3*time.Minute, config.Poll.Window)
	assert.Equal(t, "influx", config.Poll.Sink)
	assert.Equal(t, "testdb", config.Database.Name)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
}

func TestLoadDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "", config.API.BaseURL)
	assert.Equal(t, "0.1", config.API.Version)
	assert.Equal(t, 30*time.Second, config.API.Timeout)
	assert.Equal(t, float64(0), config.API.RateLimit)
	assert.Equal(t, "*/5 * * * *", config.Poll.Schedule)
	assert.Equal(t, "stdout", config.Poll.Sink)
	assert.Equal(t, "json", config.Poll.Format)
	assert.Equal(t, 9100, config.Server.Port)
	assert.False(t, config.Server.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("APP_DATABASE_HOST", "envhost")
	t.Setenv("APP_DATABASE_PORT", "5433")
	t.Setenv("UO_API_TIMEOUT", "5s")
	t.Setenv("UO_POLL_SINK", "postgres")

	configPath := writeConfig(t, `
database:
  host: $APP_DATABASE_HOST
  port: ${APP_DATABASE_PORT}
  name: "testdb"
poll:
  sink: stdout
`)

	config, err := Load(configPath)
	require.NoError(t, err)

	// ${VAR} in the file is expanded.
	assert.Equal(t, "envhost", config.Database.Host)
	assert.Equal(t, 5433, config.Database.Port)
	// UO_* wins over the file and the defaults.
	assert.Equal(t, 5*time.Second, config.API.Timeout)
	assert.Equal(t, "postgres", config.Poll.Sink)
}

func TestLoadEntitiesFromEnv(t *testing.T) {
	t.Setenv("UO_POLL_ENTITIES", "a,b")

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, config.Poll.Entities)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown sink", "poll:\n  sink: kafka\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"bad base url", "api:\n  base_url: not a url\n"},
		{"zero timeout", "api:\n  timeout: 0s\n"},
		{"not yaml", "api: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestClientConfig(t *testing.T) {
	config, err := Load(writeConfig(t, `
api:
  version: "0.2"
  timeout: 7s
  rate_limit: 1
  user_agent: test-agent
`))
	require.NoError(t, err)

	cc := config.ClientConfig()
	assert.Equal(t, "0.2", cc.Version)
	assert.Equal(t, 7*time.Second, cc.Timeout)
	assert.Equal(t, 1.0, cc.RateLimit)
	assert.Equal(t, "test-agent", cc.UserAgent)
	assert.Nil(t, cc.HTTPClient)
}

func TestYAMLMasksSecrets(t *testing.T) {
	config, err := Load(writeConfig(t, `
database:
  password: hunter2
influx:
  password: hunter3
`))
	require.NoError(t, err)

	out, err := config.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
	assert.NotContains(t, string(out), "hunter3")

	var roundTrip Config
	require.NoError(t, yaml.Unmarshal(out, &roundTrip))
	assert.Equal(t, config.API.Timeout, roundTrip.API.Timeout)
	assert.Equal(t, "hunter2", config.Database.Password, "loaded config must not be modified")
}

func TestDSN(t *testing.T) {
	base := DatabaseConfig{Host: "db", Port: 5432, Name: "urbanobservatory", SSLMode: "disable", ConnectionTimeout: 5}

	tests := []struct {
		name     string
		user     string
		password string
		wantURL  string
		wantKV   string
	}{
		{
			name:     "user and password",
			user:     "u",
			password: "p",
			wantURL:  "postgres://u:p@db:5432/urbanobservatory?connect_timeout=5&sslmode=disable",
			wantKV:   "connect_timeout='5' dbname='urbanobservatory' host='db' password='p' port='5432' sslmode='disable' user='u'",
		},
		{
			name:    "empty password",
			user:    "uo",
			wantURL: "postgres://uo@db:5432/urbanobservatory?connect_timeout=5&sslmode=disable",
			wantKV:  "connect_timeout='5' dbname='urbanobservatory' host='db' port='5432' sslmode='disable' user='uo'",
		},
		{
			name:    "empty user and password",
			wantURL: "postgres://db:5432/urbanobservatory?connect_timeout=5&sslmode=disable",
			wantKV:  "connect_timeout='5' dbname='urbanobservatory' host='db' port='5432' sslmode='disable'",
		},
		{
			name:     "special characters",
			user:     "u",
			password: "p@ss word'",
			wantKV:   `connect_timeout='5' dbname='urbanobservatory' host='db' password='p@ss word\'' port='5432' sslmode='disable' user='u'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			d.User = tt.user
			d.Password = tt.password

			dsn := d.DSN()
			if tt.wantURL != "" {
				assert.Equal(t, tt.wantURL, dsn)
			}

			// lib/pq must see every field, with nothing swallowed by an empty value.
			kv, err := pq.ParseURL(dsn)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKV, kv)
		})
	}
}
