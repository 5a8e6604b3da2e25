package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports the per-worker Prometheus families. One instance per
// process, registered on a private registry so two workers on one host never
// collide.
type Metrics struct {
	Lag           prometheus.Gauge
	Inflight      prometheus.Gauge
	OldestAge     prometheus.Gauge
	Stuck         prometheus.Gauge
	Processed     *prometheus.CounterVec
	Failed        *prometheus.CounterVec
	RetrySched    prometheus.Counter
	TerminalFails prometheus.Counter
	LastSuccess   prometheus.Gauge

	// Search-bulk families; unused by the chronicle worker but registered
	// uniformly so dashboards stay identical across deployments.
	BulkDuration prometheus.Histogram
	BulkItems    *prometheus.CounterVec
	BulkRequests *prometheus.CounterVec
}

// NewMetrics registers every family on reg and returns the handles.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Lag: factory.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_lag_events",
			Help: "Rows not yet terminally processed (pending + processing + unprocessed failed).",
		}),
		Inflight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_inflight_events",
			Help: "Rows currently in processing.",
		}),
		OldestAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_oldest_age_seconds",
			Help: "Age of the oldest unprocessed row in seconds.",
		}),
		Stuck: factory.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_stuck_processing_events",
			Help: "Processing rows past the max processing deadline.",
		}),
		Processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_processed_total",
			Help: "Rows acked done, by op.",
		}, []string{"op"}),
		Failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_failed_total",
			Help: "Row processing failures, by op and failure reason.",
		}, []string{"op", "reason"}),
		RetrySched: factory.NewCounter(prometheus.CounterOpts{
			Name: "outbox_retry_scheduled_total",
			Help: "Rows returned to pending with a backoff deadline.",
		}),
		TerminalFails: factory.NewCounter(prometheus.CounterOpts{
			Name: "outbox_terminal_failed_total",
			Help: "Rows moved to failed with no further retries.",
		}),
		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_last_success_timestamp_seconds",
			Help: "Unix time of the most recent successful ack.",
		}),
		BulkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "outbox_search_bulk_duration_seconds",
			Help:    "Latency of search-engine bulk requests.",
			Buckets: prometheus.DefBuckets,
		}),
		BulkItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_search_bulk_items_total",
			Help: "Bulk request items, by op and result class.",
		}, []string{"op", "result"}),
		BulkRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_search_bulk_requests_total",
			Help: "Bulk requests, by overall result (success, partial, failed).",
		}, []string{"result"}),
	}
}
