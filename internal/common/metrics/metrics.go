// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	TransitionsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_applied_total",
			Help: "Total number of status transitions applied, by stage",
		},
		[]string{"stage"},
	)

	AnomaliesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_anomalies_dropped_total",
			Help: "Total number of anomalous events dropped without state change",
		},
		[]string{"reason"},
	)

	ApplicationsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_applications_finalized_total",
			Help: "Total number of applications reaching a terminal status",
		},
		[]string{"status"},
	)
)
