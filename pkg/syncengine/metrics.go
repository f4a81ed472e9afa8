package syncengine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "surrealsync"

type metrics struct {
	// events counts processed change events.
	// Labels: collection, outcome
	events *prometheus.CounterVec

	// eventDuration measures change event processing time.
	// Labels: collection
	eventDuration *prometheus.HistogramVec

	// mirrors counts document store writes of the forward path.
	// Labels: entity_type, result (ok, error)
	mirrors *prometheus.CounterVec

	// conflicts counts resolved conflicts.
	// Labels: entity_type, winner
	conflicts *prometheus.CounterVec

	// syncErrors counts persisted sync errors.
	// Labels: direction, error_type
	syncErrors *prometheus.CounterVec

	// retries counts retry attempts.
	// Labels: result (resolved, failed)
	retries *prometheus.CounterVec

	// guardOverruns counts events that took longer than the guard TTL.
	guardOverruns prometheus.Counter

	subscriptions prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, guard *Guard) *metrics {
	f := promauto.With(reg)
	m := &metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "listener",
			Name:      "events_total",
			Help:      "Change events processed by outcome",
		}, []string{"collection", "outcome"}),
		eventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "listener",
			Name:      "event_duration_seconds",
			Help:      "Change event processing time in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"collection"}),
		mirrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "forward",
			Name:      "mirrors_total",
			Help:      "Document store mirror writes by result",
		}, []string{"entity_type", "result"}),
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "conflict",
			Name:      "resolutions_total",
			Help:      "Resolved conflicts by winning side",
		}, []string{"entity_type", "winner"}),
		syncErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "queue",
			Name:      "sync_errors_total",
			Help:      "Persisted sync errors by direction and type",
		}, []string{"direction", "error_type"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "queue",
			Name:      "retries_total",
			Help:      "Retry attempts by result",
		}, []string{"result"}),
		guardOverruns: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "guard",
			Name:      "overruns_total",
			Help:      "Events whose processing outlived the guard TTL",
		}),
		subscriptions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "listener",
			Name:      "subscriptions",
			Help:      "Active change subscriptions",
		}),
	}
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "guard",
		Name:      "entries",
		Help:      "Live sync guard entries",
	}, func() float64 { return float64(guard.Len()) })
	return m
}
