// Package metrics holds the Prometheus instruments of the property engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	namespace = "parsonage"
	subsystem = "engine"

	sweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweeps_total",
			Help:      "Total number of sweeps by scope and outcome",
		},
		[]string{"scope", "outcome"},
	)

	sweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of sweeps in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"scope"},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_total",
			Help:      "Notifications by category and result (sent, failed, deduplicated)",
		},
		[]string{"category", "result"},
	)

	lateFeesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "late_fees_assessed_total",
			Help:      "Total number of late fees committed",
		},
	)

	recordErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "record_errors_total",
			Help:      "Per-record sweep errors by kind",
		},
		[]string{"kind"},
	)

	runRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_rejected_total",
			Help:      "Runs refused because another run held the lock",
		},
	)
)

// Notification results.
const (
	ResultSent         = "sent"
	ResultFailed       = "failed"
	ResultDeduplicated = "deduplicated"
)

// ObserveSweep records a finished sweep.
func ObserveSweep(scope, outcome string, d time.Duration) {
	sweepsTotal.WithLabelValues(scope, outcome).Inc()
	sweepDuration.WithLabelValues(scope).Observe(d.Seconds())
}

// Notification counts one notification outcome.
func Notification(category, result string) {
	notificationsTotal.WithLabelValues(category, result).Inc()
}

// LateFeeAssessed counts a committed late fee.
func LateFeeAssessed() { lateFeesTotal.Inc() }

// RecordError counts a per-record error reported by a sweep.
func RecordError(kind string) {
	recordErrorsTotal.WithLabelValues(kind).Inc()
}

// RunRejected counts a run refused by the run lock.
func RunRejected() { runRejectedTotal.Inc() }

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }
