package sink

import (
	"context"
	"fmt"
	"time"

	influx "github.com/influxdata/influxdb/client/v2"

	"github.com/tejusbharadwaj/urbanobservatory/internal/models"
)

// InfluxConfig describes the InfluxDB v1 endpoint readings are written to.
type InfluxConfig struct {
	Addr        string
	Username    string
	Password    string
	Database    string
	Measurement string
	Precision   string
	Timeout     time.Duration
}

// Influx writes each batch of readings to InfluxDB in one request.
type Influx struct {
	client influx.Client
	cfg    InfluxConfig
}

// NewInflux connects to InfluxDB and checks that it answers a ping.
func NewInflux(cfg InfluxConfig) (*Influx, error) {
	if cfg.Measurement == "" {
		cfg.Measurement = "reading"
	}
	if cfg.Precision == "" {
		cfg.Precision = "s"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c, err := influx.NewHTTPClient(influx.HTTPConfig{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create influx client: %w", err)
	}

	if _, _, err := c.Ping(cfg.Timeout); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to reach influx at %s: %w", cfg.Addr, err)
	}

	return &Influx{client: c, cfg: cfg}, nil
}

func (s *Influx) Write(_ context.Context, entityID string, readings []models.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	bp, err := influx.NewBatchPoints(influx.BatchPointsConfig{
		Database:  s.cfg.Database,
		Precision: s.cfg.Precision,
	})
	if err != nil {
		return err
	}

	for _, r := range readings {
		p, err := Point(s.cfg.Measurement, entityID, r)
		if err != nil {
			return fmt.Errorf("failed to build point for %s: %w", entityID, err)
		}
		bp.AddPoint(p)
	}

	if err := s.client.Write(bp); err != nil {
		return fmt.Errorf("failed to write %d points for %s: %w", len(readings), entityID, err)
	}
	return nil
}

// Close releases the underlying HTTP client.
func (s *Influx) Close() error {
	return s.client.Close()
}
