package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task outcomes reported on counsel_worker_task_runs_total.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics holds the worker's collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs         *prometheus.CounterVec
	seconds      *prometheus.HistogramVec
	lastSuccess  *prometheus.GaugeVec
	unknownPerms prometheus.Gauge
	keysPurged   prometheus.Counter
}

var (
	sharedOnce sync.Once
	shared     *Metrics
)

// NewMetrics registers the worker collectors on reg. A nil reg returns one
// process-wide set bound to the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg != nil {
		return register(reg)
	}
	sharedOnce.Do(func() { shared = register(prometheus.DefaultRegisterer) })
	return shared
}

func register(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "counsel_worker_task_runs_total",
			Help: "Worker task executions by task type and outcome (ok, error, skipped).",
		}, []string{"task", "outcome"}),
		seconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "counsel_worker_task_duration_seconds",
			Help:    "Wall time of worker task executions.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 30, 120},
		}, []string{"task"}),
		lastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "counsel_worker_task_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per task type.",
		}, []string{"task"}),
		unknownPerms: f.NewGauge(prometheus.GaugeOpts{
			Name: "counsel_catalog_unknown_permissions",
			Help: "Stored role permission ids missing from the shipped catalog.",
		}),
		keysPurged: f.NewCounter(prometheus.CounterOpts{
			Name: "counsel_idempotency_keys_purged_total",
			Help: "Request idempotency keys removed after their retention window.",
		}),
	}
}

// Run times a single task execution.
type Run struct {
	m       *Metrics
	task    string
	started time.Time
}

// Start opens a Run for task.
func (m *Metrics) Start(task string) *Run {
	return &Run{m: m, task: task, started: time.Now()}
}

// Finish records the outcome of the run and returns err unchanged.
// asynq.SkipRetry counts as skipped rather than failed.
func (r *Run) Finish(err error) error {
	if r == nil || r.m == nil {
		return err
	}
	outcome := OutcomeOK
	switch {
	case errors.Is(err, asynq.SkipRetry):
		outcome = OutcomeSkipped
	case err != nil:
		outcome = OutcomeError
	default:
		r.m.lastSuccess.WithLabelValues(r.task).SetToCurrentTime()
	}
	r.m.runs.WithLabelValues(r.task, outcome).Inc()
	r.m.seconds.WithLabelValues(r.task).Observe(time.Since(r.started).Seconds())
	return err
}

// SetUnknownPermissions publishes the count found by the last catalog sync.
func (m *Metrics) SetUnknownPermissions(n int) {
	if m != nil {
		m.unknownPerms.Set(float64(n))
	}
}

// AddKeysPurged counts idempotency keys dropped by a cleanup run.
func (m *Metrics) AddKeysPurged(n int64) {
	if m != nil && n > 0 {
		m.keysPurged.Add(float64(n))
	}
}
