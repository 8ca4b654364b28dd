// Package metrics exposes prometheus instruments for background work.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics captures scheduled job health signals.
type SchedulerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobSkips    *prometheus.CounterVec
}

var (
	schedulerOnce sync.Once
	schedulerInst *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics, registering them on
// first use.
func Scheduler() *SchedulerMetrics {
	schedulerOnce.Do(func() {
		schedulerInst = &SchedulerMetrics{
			jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tagihin",
				Subsystem: "scheduler",
				Name:      "job_runs_total",
				Help:      "Completed scheduled job executions by outcome.",
			}, []string{"job", "status"}),
			jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tagihin",
				Subsystem: "scheduler",
				Name:      "job_duration_seconds",
				Help:      "Scheduled job execution duration.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			}, []string{"job"}),
			jobSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tagihin",
				Subsystem: "scheduler",
				Name:      "job_skips_total",
				Help:      "Scheduled job executions skipped because a previous run still holds the lock.",
			}, []string{"job", "reason"}),
		}
		prometheus.MustRegister(
			schedulerInst.jobRuns,
			schedulerInst.jobDuration,
			schedulerInst.jobSkips,
		)
	})
	return schedulerInst
}

func (m *SchedulerMetrics) IncJobRun(job, status string) {
	m.jobRuns.WithLabelValues(job, status).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) IncJobSkip(job, reason string) {
	m.jobSkips.WithLabelValues(job, reason).Inc()
}
