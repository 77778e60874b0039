// Package metrics provides Prometheus instrumentation for crmsize.
//
// # Overview
//
// Every estimator invocation records how many pages and rows it read, how
// many characters it measured and the size it produced. Swallowed pagination
// faults are counted separately so an operator can tell an empty table from
// a table whose paging ran off the end.
//
// # Basic Usage
//
//	timer := metrics.NewTimer()
//	estimate, err := est.Estimate(ctx, req)
//	metrics.InvocationLatency.WithLabelValues(metrics.Status(err)).Observe(timer.Stop().Seconds())
//
// All collectors are registered on the default registry through promauto,
// so Handler exposes them without further wiring.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crmsize"

var (
	// PagesFetched counts page queries issued to the CRM.
	// Labels: table, outcome (ok/benign_fault/error)
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of page queries issued",
		},
		[]string{"table", "outcome"},
	)

	// RowsScanned counts records returned by page queries
	RowsScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_scanned_total",
			Help:      "Total number of records measured",
		},
		[]string{"table"},
	)

	// CharactersMeasured counts variable-width characters summed across rows
	CharactersMeasured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "characters_measured_total",
			Help:      "Total number of string and memo characters measured",
		},
		[]string{"table"},
	)

	// EstimatedKilobytes accumulates the per-page size estimates
	EstimatedKilobytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimated_kilobytes_total",
			Help:      "Sum of per-page size estimates in kilobytes",
		},
		[]string{"table"},
	)

	// BenignFaults counts provider faults replaced by an empty page.
	// Labels: code (signed provider error code)
	BenignFaults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "benign_faults_total",
			Help:      "Pagination faults treated as an empty page",
		},
		[]string{"code"},
	)

	// InvocationLatency tracks end-to-end estimator invocations in seconds
	InvocationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Estimator invocation latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	// HTTPRequestLatency tracks Web API requests in seconds.
	// Labels: method, operation (metadata/page/tables/token), status (HTTP code or "error")
	HTTPRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Web API request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "operation", "status"},
	)

	// ThrottledRequests counts service protection responses (429/503)
	ThrottledRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_requests_total",
			Help:      "Requests rejected by service protection limits",
		},
	)

	// TablesScanned counts completed table scans.
	// Labels: status (success/error)
	TablesScanned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tables_scanned_total",
			Help:      "Tables scanned to exhaustion or page limit",
		},
		[]string{"status"},
	)

	// ReportsWritten counts report sink writes.
	// Labels: sink, status
	ReportsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_written_total",
			Help:      "Report sink write attempts",
		},
		[]string{"sink", "status"},
	)
)

// Handler returns the HTTP handler exposing the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status maps an error to the status label value
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
