package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(rateLimitDecisionsTotal) }

var rateLimitDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_decisions_total",
		Help: "Fixed-window rate limiter decisions by endpoint class.",
	},
	[]string{"endpoint", "allowed"}, // e.g., endpoint="validate", allowed="false"
)

func IncRateDecision(endpoint string, allowed bool) {
	rateLimitDecisionsTotal.WithLabelValues(norm(endpoint), boolLabel(allowed)).Inc()
}
