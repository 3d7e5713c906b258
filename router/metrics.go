package router

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the router's collectors, registered once per Router.
type Metrics struct {
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	candidates prometheus.Histogram
	dropped    prometheus.Counter
	splits     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "router",
			Name:      "requests_total",
			Help:      "Routing requests by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "router",
			Name:      "request_duration_seconds",
			Help:      "Time spent per routing stage.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"stage"}),
		candidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "router",
			Name:      "candidate_routes",
			Help:      "Candidate routes enumerated per request.",
			Buckets:   prometheus.LinearBuckets(0, 5, 11),
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "router",
			Name:      "dropped_candidates_total",
			Help:      "Candidates dropped for insufficient liquidity.",
		}),
		splits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "router",
			Name:      "allocation_routes",
			Help:      "Routes in the chosen allocation.",
			Buckets:   prometheus.LinearBuckets(1, 1, 4),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.candidates, m.dropped, m.splits)
	}
	return m
}
