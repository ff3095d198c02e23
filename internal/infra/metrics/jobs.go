package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(maintenanceRunsTotal, maintenanceAffectedTotal) }

var (
	maintenanceRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_job_runs_total",
			Help: "Scheduled maintenance job runs, labeled by job and status.",
		},
		[]string{"job", "status"}, // status: 'ok', 'failed'
	)

	maintenanceAffectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maintenance_job_affected_total",
			Help: "Rows changed by scheduled maintenance jobs.",
		},
		[]string{"job"},
	)
)

func IncJobRun(job string, ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	maintenanceRunsTotal.WithLabelValues(norm(job), status).Inc()
}

func AddJobAffected(job string, n int64) {
	maintenanceAffectedTotal.WithLabelValues(norm(job)).Add(float64(n))
}

var suspiciousCallers = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "license_suspicious_callers",
	Help: "Identifiers at or above the failure threshold in the trailing abuse window.",
})

func init() { register(suspiciousCallers) }

func SetSuspiciousCallers(n int) { suspiciousCallers.Set(float64(n)) }
