package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SweeperMetrics tracks renewal sweep throughput and failures.
type SweeperMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	processed   *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

var (
	sweeperMetricsOnce sync.Once
	sweeperMetrics     *SweeperMetrics
)

// Sweeper returns the singleton sweeper metrics registry.
func Sweeper() *SweeperMetrics {
	sweeperMetricsOnce.Do(func() {
		sweeperMetrics = newSweeperMetrics(prometheus.DefaultRegisterer)
	})
	return sweeperMetrics
}

// ResetSweeperMetricsForTest resets the sweeper metrics singleton for tests.
func ResetSweeperMetricsForTest() {
	sweeperMetricsOnce = sync.Once{}
	sweeperMetrics = nil
}

func newSweeperMetrics(registerer prometheus.Registerer) *SweeperMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_job_runs_total",
		Help: "Sweep job runs by name.",
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweeper_job_duration_seconds",
		Help:    "Sweep job latency.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"job"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_subscriptions_processed_total",
		Help: "Subscriptions handled per sweep job and outcome.",
	}, []string{"job", "outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeper_job_errors_total",
		Help: "Sweep job errors by name.",
	}, []string{"job"})

	registerer.MustRegister(jobRuns, jobDuration, processed, failures)

	return &SweeperMetrics{
		jobRuns:     jobRuns,
		jobDuration: jobDuration,
		processed:   processed,
		failures:    failures,
	}
}

// IncJobRun increments the run counter for a sweep job.
func (m *SweeperMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records sweep job latency in seconds.
func (m *SweeperMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncProcessed increments the per-subscription outcome counter.
func (m *SweeperMetrics) IncProcessed(job, outcome string) {
	if m == nil || m.processed == nil {
		return
	}
	m.processed.WithLabelValues(job, outcome).Inc()
}

// IncJobError increments the sweep job error counter.
func (m *SweeperMetrics) IncJobError(job string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(job).Inc()
}
