package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	CommandsTotal       *prometheus.CounterVec
	OutboxPublished     prometheus.Counter
	OutboxPublishErrors prometheus.Counter
	OutboxPending       prometheus.Gauge
	RelayBatchDuration  prometheus.Histogram
	EventsConsumed      prometheus.Counter
	EventsDeduplicated  prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		CommandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "casework_commands_total",
			Help: "Total number of engine commands processed, by command and result.",
		}, []string{"command", "result"}),
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casework_outbox_published_total",
			Help: "Total number of outbox events published to the bus.",
		}),
		OutboxPublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casework_outbox_publish_errors_total",
			Help: "Total number of failed publish attempts.",
		}),
		OutboxPending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "casework_outbox_pending",
			Help: "Unprocessed outbox rows observed by the last relay poll.",
		}),
		RelayBatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "casework_relay_batch_seconds",
			Help:    "Duration of relay claim-publish-mark batches.",
			Buckets: prometheus.DefBuckets,
		}),
		EventsConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casework_events_consumed_total",
			Help: "Total number of bus events consumed by the audit consumer.",
		}),
		EventsDeduplicated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "casework_events_deduplicated_total",
			Help: "Total number of duplicate bus events dropped by event id.",
		}),
	}
}

// IncCommand records one command outcome. Result is "ok" or the domain error
// code.
func (m *Metrics) IncCommand(command, result string) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, result).Inc()
}
