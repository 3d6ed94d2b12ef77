//go:generate go run github.com/golang/mock/mockgen -destination=./mocks/scheduler.go -package=mocks . Fetcher

// Package scheduler polls the Urban Observatory on a cron schedule and hands
// readings that have not been seen before to a sink.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/tejusbharadwaj/urbanobservatory/internal/api"
	"github.com/tejusbharadwaj/urbanobservatory/internal/models"
	"github.com/tejusbharadwaj/urbanobservatory/internal/sink"
	"github.com/tejusbharadwaj/urbanobservatory/internal/store"
)

// Fetcher is the part of api.Client the scheduler needs.
type Fetcher interface {
	GetTimeseries(ctx context.Context, entityID string, start, end time.Time) (*models.TimeseriesResult, error)
}

// Options configures a Scheduler.
type Options struct {
	Entities   []string
	Schedule   string        // standard 5-field cron spec
	Window     time.Duration // lookback of every poll
	DedupeSize int           // number of (entity, time) keys remembered

	Fetcher Fetcher
	Sink    sink.Sink
	Store   *store.MemoryStore // optional
}

const (
	defaultDedupeSize = 10000
	collectTimeout    = 2 * time.Minute
	// consecutive service failures before the breaker opens
	breakerThreshold = 3
	breakerTimeout   = 2 * time.Minute
)

// Status describes the outcome of the most recent poll.
type Status struct {
	LastRun             time.Time `json:"lastRun"`
	LastSuccess         time.Time `json:"lastSuccess"`
	LastError           string    `json:"lastError,omitempty"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	Breaker             string    `json:"breaker"`
}

// Healthy reports whether at least one poll ran and the latest one succeeded.
func (s Status) Healthy() bool {
	return !s.LastRun.IsZero() && s.ConsecutiveFailures == 0
}

type Scheduler struct {
	ctx     context.Context
	opts    Options
	logger  *logrus.Logger
	cron    *cron.Cron
	breaker *gobreaker.CircuitBreaker
	seen    *lru.Cache
	now     func() time.Time

	mu     sync.RWMutex
	status Status
}

func NewScheduler(ctx context.Context, opts Options, logger *logrus.Logger) (*Scheduler, error) {
	if len(opts.Entities) == 0 {
		return nil, errors.New("no entities configured")
	}
	if opts.Window <= 0 {
		return nil, fmt.Errorf("invalid poll window: %s", opts.Window)
	}
	if opts.Fetcher == nil || opts.Sink == nil {
		return nil, errors.New("fetcher and sink are required")
	}
	if _, err := cron.ParseStandard(opts.Schedule); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", opts.Schedule, err)
	}
	if opts.DedupeSize <= 0 {
		opts.DedupeSize = defaultDedupeSize
	}

	seen, err := lru.New(opts.DedupeSize)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		ctx:    ctx,
		opts:   opts,
		logger: logger,
		seen:   seen,
		now:    time.Now,
	}
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))))
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "urbanobservatory",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerThreshold
		},
		IsSuccessful: serviceHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	s.status.Breaker = s.breaker.State().String()

	return s, nil
}

// serviceHealthy decides which errors count against the breaker: only those
// that say the service itself is unreachable or failing.
func serviceHealthy(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, api.ErrNetwork) {
		return false
	}
	var remote *api.RemoteError
	if errors.As(err, &remote) {
		return remote.StatusCode < 500 && remote.StatusCode != http.StatusTooManyRequests
	}
	return true
}

// Start the scheduler
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.opts.Schedule, s.collectData)
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop the scheduler and wait for a running poll to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// collectData runs one poll on behalf of cron.
func (s *Scheduler) collectData() {
	ctx, cancel := context.WithTimeout(s.ctx, collectTimeout)
	defer cancel()

	if err := s.CollectOnce(ctx); err != nil {
		s.logger.WithError(err).Error("Poll finished with errors")
	}
}

// CollectOnce polls every entity over the last Window and forwards unseen
// readings. Entities are polled in order; one failing entity does not stop
// the others.
func (s *Scheduler) CollectOnce(ctx context.Context) error {
	end := s.now().UTC()
	start := end.Add(-s.opts.Window)

	var errs []error
	for _, id := range s.opts.Entities {
		if err := s.collectEntity(ctx, id, start, end); err != nil {
			s.logger.WithError(err).WithField("entity", id).Error("Failed to collect readings")
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}

	err := errors.Join(errs...)
	s.record(end, err)
	return err
}

func (s *Scheduler) collectEntity(ctx context.Context, id string, start, end time.Time) error {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.opts.Fetcher.GetTimeseries(ctx, id, start, end)
	})
	if err != nil {
		return err
	}
	res := out.(*models.TimeseriesResult)

	fresh := s.unseen(id, res.Readings)
	log := s.logger.WithFields(logrus.Fields{
		"entity":   id,
		"received": len(res.Readings),
		"new":      len(fresh),
	})
	if len(fresh) == 0 {
		log.Debug("No new readings")
		return nil
	}

	if err := s.opts.Sink.Write(ctx, id, fresh); err != nil {
		return fmt.Errorf("sink: %w", err)
	}

	// Only mark readings as seen once the sink has them, so a failed write is
	// retried on the next poll.
	for _, r := range fresh {
		s.seen.Add(seenKey(id, r), struct{}{})
	}
	if s.opts.Store != nil {
		s.opts.Store.Append(id, fresh)
	}

	log.Info("Collected readings")
	return nil
}

func (s *Scheduler) unseen(id string, readings []models.Reading) []models.Reading {
	batch := make(map[string]struct{}, len(readings))
	var fresh []models.Reading
	for _, r := range readings {
		key := seenKey(id, r)
		if _, dup := batch[key]; dup || s.seen.Contains(key) {
			continue
		}
		batch[key] = struct{}{}
		fresh = append(fresh, r)
	}
	return fresh
}

func seenKey(id string, r models.Reading) string {
	return fmt.Sprintf("%s|%d", id, r.Time.UnixNano())
}

func (s *Scheduler) record(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.LastRun = at
	s.status.Breaker = s.breaker.State().String()
	if err != nil {
		s.status.LastError = err.Error()
		s.status.ConsecutiveFailures++
		return
	}
	s.status.LastSuccess = at
	s.status.LastError = ""
	s.status.ConsecutiveFailures = 0
}

// Status returns a snapshot of the latest poll outcome.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
