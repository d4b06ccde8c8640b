// Package observability provides Prometheus metrics for the submission and live read paths.
//
// All methods are safe on a nil *Metrics, so components can be built without metrics in tests.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "pulse"

// Merge attempt results
const (
	MergeApplied   = "applied"
	MergeDuplicate = "duplicate"
	MergeFailed    = "failed"
)

// Live read sources
const (
	LiveFromStore   = "store"
	LiveCoalesced   = "coalesced"
	LiveFrozen      = "frozen"
	LiveNotModified = "not_modified"
)

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	// SubmissionsTotal counts submissions by outcome (accepted, rejected, failed) and reason.
	SubmissionsTotal *prometheus.CounterVec

	// MergeAttemptsTotal counts aggregate store apply attempts by result.
	MergeAttemptsTotal *prometheus.CounterVec

	// MergeDurationSeconds measures a merge including its retries.
	MergeDurationSeconds prometheus.Histogram

	// LiveReadsTotal counts live snapshot reads by source.
	LiveReadsTotal *prometheus.CounterVec

	// LiveSubscribers tracks connected dashboard sockets.
	LiveSubscribers prometheus.Gauge
}

// NewMetrics creates and registers all collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "submissions",
				Name:      "total",
				Help:      "Submissions by outcome and reason",
			},
			[]string{"outcome", "reason"},
		),
		MergeAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "merge",
				Name:      "attempts_total",
				Help:      "Aggregate store apply attempts by result",
			},
			[]string{"result"},
		),
		MergeDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "merge",
				Name:      "duration_seconds",
				Help:      "Time to merge one submission, retries included",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		LiveReadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "live",
				Name:      "reads_total",
				Help:      "Live snapshot reads by source",
			},
			[]string{"source"},
		),
		LiveSubscribers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "live",
				Name:      "subscribers",
				Help:      "Connected live dashboard sockets",
			},
		),
	}
}

// ObserveSubmission records the final outcome of one submission
func (m *Metrics) ObserveSubmission(outcome, reason string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(outcome, reason).Inc()
}

// ObserveMergeAttempt records one apply attempt
func (m *Metrics) ObserveMergeAttempt(result string) {
	if m == nil {
		return
	}
	m.MergeAttemptsTotal.WithLabelValues(result).Inc()
}

// ObserveMergeDuration records how long a merge took
func (m *Metrics) ObserveMergeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.MergeDurationSeconds.Observe(d.Seconds())
}

// ObserveLiveRead records where a live snapshot came from
func (m *Metrics) ObserveLiveRead(source string) {
	if m == nil {
		return
	}
	m.LiveReadsTotal.WithLabelValues(source).Inc()
}

// SubscriberConnected increments the subscriber gauge
func (m *Metrics) SubscriberConnected() {
	if m == nil {
		return
	}
	m.LiveSubscribers.Inc()
}

// SubscriberDisconnected decrements the subscriber gauge
func (m *Metrics) SubscriberDisconnected() {
	if m == nil {
		return
	}
	m.LiveSubscribers.Dec()
}
