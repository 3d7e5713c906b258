package client

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "state_stream"

type metrics struct {
	events     *prometheus.CounterVec
	dropped    prometheus.Counter
	reconnects prometheus.Counter
	block      prometheus.Gauge
	latency    prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Stream events by type and result.",
		}, []string{"type", "result"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "states_dropped_total",
			Help:      "States discarded unread because the queue was full.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconnects_total",
			Help:      "Connection attempts after the first.",
		}),
		block: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "block_number",
			Help:      "Block of the latest reconstructed state.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "block_latency_seconds",
			Help:      "Block timestamp to state availability.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.dropped, m.reconnects, m.block, m.latency)
	}
	return m
}

func (m *metrics) event(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.events.WithLabelValues(kind, result).Inc()
}
