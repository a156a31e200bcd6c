// Package metrics provides Prometheus metrics for promptvault
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for promptvault
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Version engine metrics
	VersionAppendsTotal     *prometheus.CounterVec
	AllocatorConflictsTotal prometheus.Counter
	AppendAttempts          prometheus.Histogram
	RevertsTotal            *prometheus.CounterVec

	// Diff metrics
	DiffsTotal     prometheus.Counter
	DiffDuration   prometheus.Histogram
	DiffEditLength prometheus.Histogram

	// Comment metrics
	CommentOperationsTotal *prometheus.CounterVec

	// Server metrics
	ServerUptimeSeconds prometheus.GaugeFunc
	ServerStartTime     time.Time
}

// NewMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on /metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.GrpcRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptvault_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "code"},
	)

	m.GrpcRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptvault_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "promptvault_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	m.VersionAppendsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptvault_version_appends_total",
			Help: "Version appends by outcome (created, unchanged, error)",
		},
		[]string{"outcome"},
	)

	m.AllocatorConflictsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "promptvault_allocator_conflicts_total",
			Help: "Append attempts that lost the head compare-and-swap and were retried",
		},
	)

	m.AppendAttempts = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promptvault_append_attempts",
			Help:    "Attempts needed per append",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	m.RevertsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptvault_reverts_total",
			Help: "Reverts by outcome (created, unchanged, error)",
		},
		[]string{"outcome"},
	)

	m.DiffsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "promptvault_diffs_total",
			Help: "Total number of version diffs computed",
		},
	)

	m.DiffDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promptvault_diff_duration_seconds",
			Help:    "Duration of diff computation in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		},
	)

	m.DiffEditLength = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promptvault_diff_edit_lines",
			Help:    "Inserted plus deleted lines per diff",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	m.CommentOperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptvault_comment_operations_total",
			Help: "Comment operations by kind and status",
		},
		[]string{"operation", "status"},
	)

	m.ServerUptimeSeconds = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "promptvault_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.ServerStartTime).Seconds() },
	)

	return m
}

// RecordGrpcRequest records a gRPC request with its status code
func (m *Metrics) RecordGrpcRequest(method string, code string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, code).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// AppendOutcome implements version.Recorder
func (m *Metrics) AppendOutcome(outcome string, attempts int) {
	m.VersionAppendsTotal.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.AppendAttempts.Observe(float64(attempts))
	}
}

// AllocatorConflict implements version.Recorder
func (m *Metrics) AllocatorConflict() {
	m.AllocatorConflictsTotal.Inc()
}

// RevertOutcome implements version.Recorder
func (m *Metrics) RevertOutcome(outcome string) {
	m.RevertsTotal.WithLabelValues(outcome).Inc()
}

// RecordDiff records one diff computation
func (m *Metrics) RecordDiff(duration time.Duration, editLines int) {
	m.DiffsTotal.Inc()
	m.DiffDuration.Observe(duration.Seconds())
	m.DiffEditLength.Observe(float64(editLines))
}

// RecordComment records a comment operation
func (m *Metrics) RecordComment(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CommentOperationsTotal.WithLabelValues(operation, status).Inc()
}
