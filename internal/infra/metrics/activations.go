package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(activationsTotal, eventsDroppedTotal) }

var (
	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_activations_total",
			Help: "Activation tracker mutations by result.",
		},
		[]string{"result"}, // 'created', 'refreshed', 'revived', 'limit_reached', 'deactivated'
	)

	eventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_events_dropped_total",
			Help: "Events not delivered to a subscriber (queue full or handler error).",
		},
		[]string{"subscriber"},
	)
)

func IncActivation(result string) {
	activationsTotal.WithLabelValues(norm(result)).Inc()
}

func IncEventDropped(subscriber string) {
	eventsDroppedTotal.WithLabelValues(norm(subscriber)).Inc()
}
