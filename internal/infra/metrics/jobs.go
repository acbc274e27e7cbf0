package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(workerJobsTotal, workerQueueDepth) }

var (
	workerJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_total",
			Help: "Total number of update jobs, labeled by status.",
		},
		[]string{"status"}, // 'submitted', 'dropped', 'completed', 'panicked'
	)

	workerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Jobs waiting for a free worker.",
		},
	)
)

func IncWorkerJob(status string) {
	workerJobsTotal.WithLabelValues(norm(status)).Inc()
}

func SetWorkerQueueDepth(n int) {
	workerQueueDepth.Set(float64(n))
}
