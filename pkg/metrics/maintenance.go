package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MaintenanceMetrics tracks the scheduled maintenance jobs. Findings is a
// gauge so each run overwrites the previous count for its job.
type MaintenanceMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	findings *prometheus.GaugeVec
}

func NewMaintenanceMetrics(reg prometheus.Registerer) *MaintenanceMetrics {
	if reg == nil {
		return &MaintenanceMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Maintenance job executions by outcome.",
	}, []string{"job", "outcome"})
	findings := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "maintenance_job_findings",
		Help: "Rows flagged or removed by the latest run of each maintenance job.",
	}, []string{"job"})
	reg.MustRegister(duration, runs, findings)
	return &MaintenanceMetrics{duration: duration, runs: runs, findings: findings}
}

func (m *MaintenanceMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncRun counts one job execution; outcome is OutcomeSuccess or OutcomeError.
func (m *MaintenanceMetrics) IncRun(job, outcome string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), normalizeLabel(outcome)).Inc()
}

func (m *MaintenanceMetrics) SetFindings(job string, n int) {
	if m == nil || m.findings == nil {
		return
	}
	m.findings.WithLabelValues(normalizeLabel(job)).Set(float64(n))
}
