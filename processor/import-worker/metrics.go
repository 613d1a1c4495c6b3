package importworker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// workerMetrics holds the Prometheus instruments for the import worker.
type workerMetrics struct {
	jobsStarted   prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    *prometheus.CounterVec
	jobsSkipped   prometheus.Counter
	rowsPurged    prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *workerMetrics {
	m := &workerMetrics{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plateful",
			Subsystem: "import_worker",
			Name:      "jobs_started_total",
			Help:      "Import jobs picked up from the work queue.",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plateful",
			Subsystem: "import_worker",
			Name:      "jobs_completed_total",
			Help:      "Import jobs that produced a completed recipe.",
		}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plateful",
			Subsystem: "import_worker",
			Name:      "jobs_failed_total",
			Help:      "Import jobs that ended in a failed recipe, by failure code.",
		}, []string{"code"}),
		jobsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plateful",
			Subsystem: "import_worker",
			Name:      "jobs_skipped_total",
			Help:      "Deliveries skipped because the recipe was already terminal.",
		}),
		rowsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plateful",
			Subsystem: "import_worker",
			Name:      "failed_rows_purged_total",
			Help:      "Stale failed recipe rows removed by the GC sweep.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.jobsStarted, m.jobsCompleted, m.jobsFailed, m.jobsSkipped, m.rowsPurged)
	}
	return m
}
