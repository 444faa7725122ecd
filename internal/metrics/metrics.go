package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "brotherbot"

// Metrics holds the service's Prometheus collectors
type Metrics struct {
	MessagesRelayed *prometheus.CounterVec // mode: copy, forward
	RelayFailures   prometheus.Counter
	BetsTracked     prometheus.Counter
	BetsSettled     *prometheus.CounterVec // status
	PendingBets     prometheus.Gauge
	PageFetches     *prometheus.CounterVec // source: url, search; result: ok, absent
	EditFailures    prometheus.Counter
	ScanDuration    prometheus.Histogram
	ScanFailures    prometheus.Counter
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		MessagesRelayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Messages delivered to the destination chat.",
		}, []string{"mode"}),
		RelayFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_failures_total",
			Help:      "Messages that could not be delivered to the destination chat.",
		}),
		BetsTracked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bets_tracked_total",
			Help:      "Bets inserted as pending.",
		}),
		BetsSettled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bets_settled_total",
			Help:      "Bets moved to a final status.",
		}, []string{"status"}),
		PendingBets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_bets",
			Help:      "Pending bets seen by the last scan.",
		}),
		PageFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_fetches_total",
			Help:      "Result page lookups by source and outcome.",
		}, []string{"source", "result"}),
		EditFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edit_failures_total",
			Help:      "Settlement edits rejected by Telegram.",
		}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of a settlement scan pass.",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		ScanFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_failures_total",
			Help:      "Scan passes aborted by a store failure.",
		}),
	}
}

// ObserveFetch counts a page lookup
func (m *Metrics) ObserveFetch(source string, ok bool) {
	result := "absent"
	if ok {
		result = "ok"
	}
	m.PageFetches.WithLabelValues(source, result).Inc()
}
