package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the quote ledger.
type Metrics struct {
	// --- Event processing ---
	EventsApplied  *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	EventsSkipped  *prometheus.CounterVec
	EventDuration  *prometheus.HistogramVec
	LastBlock      prometheus.Gauge

	// --- Deduplication & ordering ---
	DuplicatesCaught *prometheus.CounterVec
	DedupLRUSize     prometheus.Gauge
	OrderViolations  *prometheus.CounterVec

	// --- Aggregation ---
	BucketsUpdated *prometheus.CounterVec
	QuotesTracked  prometheus.Gauge
	AuditsEmitted  *prometheus.CounterVec

	// --- Ingestion ---
	MessagesParsed      *prometheus.CounterVec
	ParseErrors         *prometheus.CounterVec
	IngestToApply       *prometheus.HistogramVec
	PersistBackpressure prometheus.Counter

	// --- Channels ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec

	// --- Persistence ---
	PersistRowsWritten *prometheus.CounterVec
	PersistBatchDur    prometheus.Histogram
	PersistErrors      *prometheus.CounterVec
	PersistRetry       prometheus.Counter
	PersistLastBlock   prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000001, 0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	ingestBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	return &Metrics{
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_events_applied_total",
			Help: "Events successfully applied",
		}, []string{"event_kind"}),

		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_events_rejected_total",
			Help: "Events rejected (duplicate, order, validation)",
		}, []string{"event_kind", "reason"}),

		EventsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_events_skipped_total",
			Help: "Event side effects skipped (missing symbol, missing snapshot)",
		}, []string{"event_kind", "reason"}),

		EventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotes_event_apply_duration_seconds",
			Help:    "Time to apply a single event",
			Buckets: latencyBuckets,
		}, []string{"event_kind"}),

		LastBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quotes_last_block",
			Help: "Block number of the last applied event",
		}),

		DuplicatesCaught: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_duplicates_caught_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"event_kind", "tier"}),

		DedupLRUSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quotes_dedup_lru_size",
			Help: "Current dedup LRU occupancy",
		}),

		OrderViolations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_order_violations_total",
			Help: "Events rejected for violating block order",
		}, []string{"account_source"}),

		BucketsUpdated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_buckets_updated_total",
			Help: "Aggregation bucket updates",
		}, []string{"scope_kind"}),

		QuotesTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quotes_tracked",
			Help: "Quotes currently held in the book",
		}),

		AuditsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_audits_emitted_total",
			Help: "Audit records emitted for persistence",
		}, []string{"audit_kind"}),

		MessagesParsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_messages_parsed_total",
			Help: "NATS messages parsed into events",
		}, []string{"subject"}),

		ParseErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_parse_errors_total",
			Help: "NATS messages that failed to parse",
		}, []string{"subject"}),

		IngestToApply: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotes_ingest_to_apply_seconds",
			Help:    "NATS receive to apply complete",
			Buckets: ingestBuckets,
		}, []string{"event_kind"}),

		PersistBackpressure: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quotes_persist_backpressure_total",
			Help: "Times the processor blocked on the persist channel",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotes_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotes_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quotes_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PersistRowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_persist_rows_written_total",
			Help: "Rows written to Postgres",
		}, []string{"table"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "quotes_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "quotes_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "quotes_persist_last_block",
			Help: "Block number of the last persisted event",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quotes_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "quotes_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
