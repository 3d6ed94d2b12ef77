package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/urbanobservatory/internal/api"
	"github.com/tejusbharadwaj/urbanobservatory/internal/config"
	"github.com/tejusbharadwaj/urbanobservatory/internal/database"
	"github.com/tejusbharadwaj/urbanobservatory/internal/scheduler"
	"github.com/tejusbharadwaj/urbanobservatory/internal/server"
	"github.com/tejusbharadwaj/urbanobservatory/internal/sink"
	"github.com/tejusbharadwaj/urbanobservatory/internal/store"
)

const shutdownTimeout = 10 * time.Second

func runPoll(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "poll")
	once := fs.Bool("once", false, "poll a single time and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger := env.cfg, env.logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := api.RegisterMetrics(registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	client, err := env.client()
	if err != nil {
		return err
	}

	out, closeSink, err := openSink(ctx, env)
	if err != nil {
		return err
	}
	defer closeSink()

	st := store.NewMemoryStore(cfg.Poll.HistorySize, cfg.Poll.HistoryMaxAge)

	sched, err := scheduler.NewScheduler(ctx, scheduler.Options{
		Entities:   cfg.Poll.Entities,
		Schedule:   cfg.Poll.Schedule,
		Window:     cfg.Poll.Window,
		DedupeSize: cfg.Poll.DedupeSize,
		Fetcher:    client,
		Sink:       out,
		Store:      st,
	}, logger)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"entities": len(cfg.Poll.Entities),
		"schedule": cfg.Poll.Schedule,
		"window":   cfg.Poll.Window.String(),
		"sink":     cfg.Poll.Sink,
	}).Info("Starting poller")

	// First poll runs immediately rather than waiting for the schedule.
	if err := sched.CollectOnce(ctx); err != nil {
		if *once {
			return err
		}
		logger.WithError(err).Warn("Initial poll finished with errors")
	}
	if *once {
		return nil
	}

	if err := sched.Start(); err != nil {
		return fmt.Errorf("scheduler error: %w", err)
	}
	defer sched.Stop()

	errChan := make(chan error, 1)
	if cfg.Server.Enabled {
		app := server.New(st, sched, registry, logger)
		go func() {
			logger.WithField("addr", cfg.Server.Addr()).Info("Starting status server")
			if err := app.Listen(cfg.Server.Addr()); err != nil {
				errChan <- fmt.Errorf("server error: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil {
				logger.WithError(err).Error("Error during server shutdown")
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal, stopping poller")
		return nil
	case err := <-errChan:
		return err
	}
}

// openSink builds the configured sink and returns a function releasing it.
func openSink(ctx context.Context, env *environment) (sink.Sink, func(), error) {
	cfg := env.cfg
	switch cfg.Poll.Sink {
	case "postgres":
		return openPostgres(ctx, cfg.Database)

	case "influx":
		s, err := sink.NewInflux(sink.InfluxConfig{
			Addr:        cfg.Influx.Addr,
			Username:    cfg.Influx.Username,
			Password:    cfg.Influx.Password,
			Database:    cfg.Influx.Database,
			Measurement: cfg.Influx.Measurement,
			Precision:   cfg.Influx.Precision,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil

	default:
		w, err := sink.NewWriter(env.out, cfg.Poll.Format, cfg.Influx.Measurement)
		if err != nil {
			return nil, nil, err
		}
		return w, func() {}, nil
	}
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (sink.Sink, func(), error) {
	repo, err := database.NewPostgresRepo(ctx, cfg.DSN(), cfg.MaxConnections)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		repo.Close()
		return nil, nil, err
	}
	return sink.Func(repo.InsertReadings), func() { repo.Close() }, nil
}
