// Package metrics exposes Prometheus collectors for the task lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors used across the task core. All methods are
// safe on a nil receiver so callers can run without metrics wired.
type Metrics struct {
	tasksCreated   *prometheus.CounterVec
	tasksFinished  *prometheus.CounterVec
	tasksRunning   prometheus.Gauge
	snapshotWrites *prometheus.CounterVec
	retryAttempts  prometheus.Counter
}

// New creates and registers the collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threadsift_tasks_created_total",
			Help: "Tasks created, by kind.",
		}, []string{"kind"}),
		tasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threadsift_tasks_finished_total",
			Help: "Tasks reaching a terminal state, by status.",
		}, []string{"status"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "threadsift_tasks_running",
			Help: "Tasks currently executing. At most 1 by design.",
		}),
		snapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "threadsift_snapshot_writes_total",
			Help: "Persistence snapshot writes, by result.",
		}, []string{"result"}),
		retryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "threadsift_retry_attempts_total",
			Help: "Retried operation attempts across all retry executors.",
		}),
	}
	reg.MustRegister(
		m.tasksCreated,
		m.tasksFinished,
		m.tasksRunning,
		m.snapshotWrites,
		m.retryAttempts,
	)
	return m
}

// TaskCreated counts a created task.
func (m *Metrics) TaskCreated(kind string) {
	if m == nil {
		return
	}
	m.tasksCreated.WithLabelValues(kind).Inc()
}

// TaskFinished counts a terminal transition.
func (m *Metrics) TaskFinished(status string) {
	if m == nil {
		return
	}
	m.tasksFinished.WithLabelValues(status).Inc()
}

// TaskRunning adjusts the running-task gauge.
func (m *Metrics) TaskRunning(delta float64) {
	if m == nil {
		return
	}
	m.tasksRunning.Add(delta)
}

// SnapshotWrite counts a persistence write with result "ok" or "error".
func (m *Metrics) SnapshotWrite(result string) {
	if m == nil {
		return
	}
	m.snapshotWrites.WithLabelValues(result).Inc()
}

// RetryAttempt counts one retried attempt.
func (m *Metrics) RetryAttempt() {
	if m == nil {
		return
	}
	m.retryAttempts.Inc()
}
