package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	PollCount            prometheus.Counter
	ListFailures         prometheus.Counter
	FetchFailures        prometheus.Counter
	TransactionsRecorded prometheus.Counter
	DuplicatesSkipped    prometheus.Counter
	Claims               prometheus.Counter
	TickDuration         prometheus.Histogram
	MonitorRunning       prometheus.Gauge
	SeenMessages         prometheus.Gauge
}

// NewMetrics creates the transaction monitor metrics on their own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PollCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "txn_monitor_poll_count",
			Help: "Total number of mailbox checks",
		}),
		ListFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "txn_monitor_list_failures",
			Help: "Total number of failed mailbox listings",
		}),
		FetchFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "txn_monitor_fetch_failures",
			Help: "Total number of failed message fetches",
		}),
		TransactionsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "txn_monitor_transactions_recorded",
			Help: "Total number of new transactions stored",
		}),
		DuplicatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "txn_monitor_duplicates_skipped",
			Help: "Total number of extracted transactions whose reference was already stored",
		}),
		Claims: factory.NewCounter(prometheus.CounterOpts{
			Name: "txn_monitor_claims",
			Help: "Total number of successful transaction claims",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "txn_monitor_tick_duration_seconds",
			Help:    "Time spent on one mailbox check",
			Buckets: prometheus.DefBuckets,
		}),
		MonitorRunning: factory.NewGauge(prometheus.GaugeOpts{
			Name: "txn_monitor_running",
			Help: "1 while monitoring is active",
		}),
		SeenMessages: factory.NewGauge(prometheus.GaugeOpts{
			Name: "txn_monitor_seen_messages",
			Help: "Number of message ids in the seen set",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
