package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	offerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offersync",
			Name:      "offer_transitions_total",
			Help:      "Offer status transitions by kind.",
		},
		[]string{"transition"},
	)

	syncActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offersync",
			Name:      "sync_actions_total",
			Help:      "Sync queue action outcomes (queued, synced, retry, dropped).",
		},
		[]string{"result"},
	)

	syncDrains = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "offersync",
			Name:      "sync_drains_total",
			Help:      "Completed sync queue drains.",
		},
	)

	syncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "offersync",
			Name:      "sync_queue_depth",
			Help:      "Actions waiting in the sync queue.",
		},
	)

	persistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offersync",
			Name:      "persist_failures_total",
			Help:      "Durable store write failures by key.",
		},
		[]string{"key"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offersync",
			Name:      "http_requests_total",
			Help:      "Local API requests by route.",
		},
		[]string{"route"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(offerTransitions, syncActions, syncDrains, syncQueueDepth, persistFailures, httpRequests)
	})
}

// IncTransition counts an offer status transition.
func IncTransition(kind string) {
	offerTransitions.WithLabelValues(kind).Inc()
}

// IncSyncAction counts a sync queue outcome.
func IncSyncAction(result string) {
	syncActions.WithLabelValues(result).Inc()
}

func IncDrain() {
	syncDrains.Inc()
}

func SetQueueDepth(n int) {
	syncQueueDepth.Set(float64(n))
}

func IncPersistFailure(key string) {
	persistFailures.WithLabelValues(key).Inc()
}

// IncHTTP increments the counter for a route label.
func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}
