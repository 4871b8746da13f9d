// Package metrics exposes Prometheus instrumentation for fake detection.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fakedetector_checks_total",
		Help: "Total number of video checks, by result",
	}, []string{"result"})

	CheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fakedetector_check_duration_seconds",
		Help:    "Duration of each stage of a video check",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fakedetector_frames_extracted_total",
		Help: "Total number of sample frames extracted across all checks",
	})

	CleanupFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fakedetector_cleanup_failures_total",
		Help: "Sample frames that could not be deleted",
	})

	IndexBuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fakedetector_index_builds_total",
		Help: "Reference index build attempts, by status",
	}, []string{"status"})

	ReferenceEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fakedetector_reference_entries",
		Help: "Distinct fingerprints in the reference index",
	})

	ActiveChecks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fakedetector_active_checks",
		Help: "Number of video checks currently in flight",
	})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fakedetector_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"breaker"})

	RemoteRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fakedetector_remote_retries_total",
		Help: "Retried calls to a remote detector",
	})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fakedetector_websocket_clients",
		Help: "Connected WebSocket clients",
	})
)

// Check result labels
const (
	ResultFake  = "fake"
	ResultClean = "clean"
	ResultError = "error"
)
