package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(validationAttemptsTotal, validationLatencyMs, lazyExpiryTotal)
}

var (
	validationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_validation_attempts_total",
			Help: "Validation engine outcomes by endpoint class and error kind ('ok' on success).",
		},
		[]string{"endpoint", "outcome"},
	)

	validationLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "license_validation_latency_ms",
			Help:    "End-to-end engine latency in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 3000},
		},
		[]string{"endpoint", "success"},
	)

	lazyExpiryTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "license_lazy_expiry_total",
			Help: "Credentials corrected to expired while being read.",
		},
	)
)

func ObserveValidation(endpoint, outcome string, success bool, took time.Duration) {
	validationAttemptsTotal.WithLabelValues(norm(endpoint), norm(outcome)).Inc()
	validationLatencyMs.WithLabelValues(norm(endpoint), boolLabel(success)).Observe(ms(took))
}

func IncLazyExpiry() { lazyExpiryTotal.Inc() }
