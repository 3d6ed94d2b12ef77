package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Requests counts calls to the remote service by method and outcome.
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "urbanobs",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Requests made to the Urban Observatory API.",
		},
		[]string{"method", "outcome"},
	)

	// Latency observes round-trip time per method, including body read.
	Latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "urbanobs",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Latency of Urban Observatory API requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

// RegisterMetrics registers the client collectors with reg. Registering the
// same collectors twice returns the AlreadyRegisteredError from prometheus.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{Requests, Latency} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func observe(method, outcome string, start time.Time) {
	Requests.WithLabelValues(method, outcome).Inc()
	Latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
