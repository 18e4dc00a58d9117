package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Batch results.
const (
	ResultOK        = "ok"
	ResultMalformed = "malformed"
	ResultSinkError = "sink_error"
	ResultSkipped   = "skipped"
)

// Metrics holds the collectors for one sink adapter.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Batches        *prometheus.CounterVec
	Updates        prometheus.Counter
	DatasetRows    prometheus.Gauge
	UpdateDuration prometheus.Histogram
	AdapterState   prometheus.Gauge

	// Graph loop
	Accumulated    prometheus.Gauge
	QueueDepth     prometheus.Gauge
	DroppedBatches prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quotegraph_batches_total",
				Help: "Quote batches delivered to the sink adapter, by result",
			},
			[]string{"result"},
		),
		Updates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotegraph_quote_updates_total",
			Help: "Quote updates aggregated across all batches",
		}),
		DatasetRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotegraph_dataset_rows",
			Help: "Rows in the last dataset pushed to the sink",
		}),
		UpdateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "quotegraph_sink_update_duration_seconds",
			Help:    "Latency of aggregate plus sink table update",
			Buckets: prometheus.DefBuckets,
		}),
		AdapterState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotegraph_adapter_state",
			Help: "Sink adapter state (0=uninitialized 1=ready 2=degraded 3=torn down)",
		}),
		Accumulated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotegraph_accumulated_updates",
			Help: "Quote updates held by the graph and re-aggregated on every batch",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quotegraph_feed_queue_depth",
			Help: "Decoded batches waiting for the graph loop",
		}),
		DroppedBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quotegraph_dropped_batches_total",
			Help: "Batches discarded by the graph because they could not be aggregated",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Batches, m.Updates, m.DatasetRows, m.UpdateDuration, m.AdapterState,
			m.Accumulated, m.QueueDepth, m.DroppedBatches,
		)
	}
	return m
}

// ObserveBatch records one OnDataArrived call.
func (m *Metrics) ObserveBatch(result string, updates, rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(result).Inc()
	if result == ResultSkipped {
		return
	}
	m.Updates.Add(float64(updates))
	if result == ResultOK {
		m.DatasetRows.Set(float64(rows))
		m.UpdateDuration.Observe(d.Seconds())
	}
}

// SetState records the adapter state.
func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.AdapterState.Set(float64(state))
}

// ObserveGraph records the graph loop after applying a batch.
func (m *Metrics) ObserveGraph(accumulated, queueDepth int, dropped bool) {
	if m == nil {
		return
	}
	m.Accumulated.Set(float64(accumulated))
	m.QueueDepth.Set(float64(queueDepth))
	if dropped {
		m.DroppedBatches.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
