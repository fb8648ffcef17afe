package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	activeWatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kcwatch_store_active_watches",
		Help: "Number of identities with a running backend watch.",
	})
	watchStarts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kcwatch_store_watch_starts_total",
		Help: "Backend watches started, one per 0->1 reference transition.",
	})
	watchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kcwatch_store_watch_errors_total",
		Help: "Backend watches that ended with an error.",
	})
	appliedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kcwatch_store_events_total",
		Help: "Events that produced a new cache node, by event type.",
	}, []string{"type"})
)

func init() {
	metrics.Registry.MustRegister(activeWatches, watchStarts, watchErrors, appliedEvents)
}
