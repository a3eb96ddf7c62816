// Package metrics exposes prometheus instruments for the ingestion and
// backfill pipelines.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Module provides the registry and domain instruments.
var Module = fx.Module("observability.metrics",
	fx.Provide(NewRegistry),
	fx.Provide(New),
)

// NewRegistry builds the process registry with standard collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Metrics exposes application-level instruments. All methods are nil-safe so
// services can treat the dependency as optional.
type Metrics struct {
	rowsProcessed    prometheus.Counter
	rowsRejected     prometheus.Counter
	changesDetected  prometheus.Counter
	actionsSubmitted prometheus.Counter
	actionsFailed    prometheus.Counter
	actionAttempts   prometheus.Counter
	dispatchDuration prometheus.Histogram
	backfillMigrated prometheus.Counter
	backfillFailed   prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New configures the domain metrics instruments.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		rowsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "repboard_ingest_rows_processed_total",
			Help: "Report rows accepted by validation and processed.",
		}),
		rowsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "repboard_ingest_rows_rejected_total",
			Help: "Report rows rejected by validation.",
		}),
		changesDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "repboard_ingest_changes_detected_total",
			Help: "Metric changes detected by the diff engine.",
		}),
		actionsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "repboard_actionlog_submitted_total",
			Help: "Action logs delivered to the platform.",
		}),
		actionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "repboard_actionlog_failed_total",
			Help: "Action logs dropped after exhausting retries.",
		}),
		actionAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "repboard_actionlog_attempts_total",
			Help: "Individual submission attempts, including retries.",
		}),
		dispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "repboard_actionlog_dispatch_duration_seconds",
			Help:    "Wall time to deliver one action log, retries included.",
			Buckets: prometheus.DefBuckets,
		}),
		backfillMigrated: factory.NewCounter(prometheus.CounterOpts{
			Name: "repboard_backfill_records_migrated_total",
			Help: "Snapshots stamped with cycle metadata by the backfill engine.",
		}),
		backfillFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "repboard_backfill_records_failed_total",
			Help: "Snapshots the backfill engine failed to migrate.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "repboard_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repboard_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) AddRowsProcessed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsProcessed.Add(float64(n))
}

func (m *Metrics) AddRowsRejected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsRejected.Add(float64(n))
}

func (m *Metrics) AddChangesDetected(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.changesDetected.Add(float64(n))
}

func (m *Metrics) IncActionSubmitted() {
	if m == nil {
		return
	}
	m.actionsSubmitted.Inc()
}

func (m *Metrics) IncActionFailed() {
	if m == nil {
		return
	}
	m.actionsFailed.Inc()
}

func (m *Metrics) IncActionAttempt() {
	if m == nil {
		return
	}
	m.actionAttempts.Inc()
}

func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(d.Seconds())
}

func (m *Metrics) AddBackfillMigrated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.backfillMigrated.Add(float64(n))
}

func (m *Metrics) AddBackfillFailed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.backfillFailed.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil || route == "" {
		return
	}
	code := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, route, code).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
