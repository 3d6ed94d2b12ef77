package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tejusbharadwaj/urbanobservatory/internal/api"
)

// EnvPrefix is the prefix of environment overrides, e.g. UO_API_TIMEOUT.
const EnvPrefix = "UO"

// Config holds all configuration for our application
type Config struct {
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Poll     PollConfig     `mapstructure:"poll" yaml:"poll"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Influx   InfluxConfig   `mapstructure:"influx" yaml:"influx"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
}

type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Version        string        `mapstructure:"version" yaml:"version" validate:"required"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gte=0"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst" validate:"gte=0"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
}

type PollConfig struct {
	Entities      []string      `mapstructure:"entities" yaml:"entities" validate:"dive,required"`
	Schedule      string        `mapstructure:"schedule" yaml:"schedule" validate:"required"`
	Window        time.Duration `mapstructure:"window" yaml:"window" validate:"gt=0"`
	Sink          string        `mapstructure:"sink" yaml:"sink" validate:"oneof=stdout postgres influx"`
	Format        string        `mapstructure:"format" yaml:"format" validate:"oneof=json text line"`
	DedupeSize    int           `mapstructure:"dedupe_size" yaml:"dedupe_size" validate:"gt=0"`
	HistorySize   int           `mapstructure:"history_size" yaml:"history_size" validate:"gte=0"`
	HistoryMaxAge time.Duration `mapstructure:"history_max_age" yaml:"history_max_age" validate:"gte=0"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
}

type DatabaseConfig struct {
	Host              string `mapstructure:"host" yaml:"host"`
	Port              int    `mapstructure:"port" yaml:"port"`
	Name              string `mapstructure:"name" yaml:"name"`
	User              string `mapstructure:"user" yaml:"user"`
	Password          string `mapstructure:"password" yaml:"password"`
	SSLMode           string `mapstructure:"ssl_mode" yaml:"ssl_mode"`
	MaxConnections    int    `mapstructure:"max_connections" yaml:"max_connections"`
	ConnectionTimeout int    `mapstructure:"connection_timeout" yaml:"connection_timeout"`
}

type InfluxConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	Username    string `mapstructure:"username" yaml:"username"`
	Password    string `mapstructure:"password" yaml:"password"`
	Database    string `mapstructure:"database" yaml:"database"`
	Measurement string `mapstructure:"measurement" yaml:"measurement"`
	Precision   string `mapstructure:"precision" yaml:"precision"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`
}

var validate = validator.New()

// Load reads configuration from an optional YAML file, a .env file in the
// working directory and UO_* environment variables, in increasing priority.
// ${VAR} references inside the file are expanded before parsing.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(os.ExpandEnv(string(data)))); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.version", api.DefaultAPIVersion)
	v.SetDefault("api.timeout", api.DefaultTimeout)
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("api.rate_limit_burst", 1)
	v.SetDefault("api.user_agent", api.DefaultUserAgent)

	v.SetDefault("poll.entities", []string{})
	v.SetDefault("poll.schedule", "*/5 * * * *")
	v.SetDefault("poll.window", 10*time.Minute)
	v.SetDefault("poll.sink", "stdout")
	v.SetDefault("poll.format", "json")
	v.SetDefault("poll.dedupe_size", 10000)
	v.SetDefault("poll.history_size", 288)
	v.SetDefault("poll.history_max_age", 24*time.Hour)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 9100)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "urbanobservatory")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.connection_timeout", 5)

	v.SetDefault("influx.addr", "http://localhost:8086")
	v.SetDefault("influx.username", "")
	v.SetDefault("influx.password", "")
	v.SetDefault("influx.database", "urbanobservatory")
	v.SetDefault("influx.measurement", "reading")
	v.SetDefault("influx.precision", "s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// ClientConfig converts the api section into the client's constructor config.
func (c *Config) ClientConfig() api.Config {
	return api.Config{
		BaseURL:        c.API.BaseURL,
		Version:        c.API.Version,
		Timeout:        c.API.Timeout,
		RateLimit:      c.API.RateLimit,
		RateLimitBurst: c.API.RateLimitBurst,
		UserAgent:      c.API.UserAgent,
	}
}

// DSN returns the database section as a postgres:// URL for lib/pq. Empty
// credentials are left out so the driver falls back to its own defaults.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	switch {
	case d.Password != "":
		u.User = url.UserPassword(d.User, d.Password)
	case d.User != "":
		u.User = url.User(d.User)
	}

	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	if d.ConnectionTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(d.ConnectionTimeout))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the listen address of the status server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	out := *c
	if out.Database.Password != "" {
		out.Database.Password = "********"
	}
	if out.Influx.Password != "" {
		out.Influx.Password = "********"
	}
	return yaml.Marshal(out)
}
