package jobmetrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRunOutcomes(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Start("catalog:sync").Finish(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Start("catalog:sync").Finish(boom), boom)
	skip := fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	assert.ErrorIs(t, m.Start("catalog:sync").Finish(skip), asynq.SkipRetry)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("catalog:sync", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("catalog:sync", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("catalog:sync", OutcomeSkipped)))
	assert.Positive(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("catalog:sync")))
	assert.Zero(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("idempotency:cleanup")))
}

func TestGaugesAndPurgeCounter(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetUnknownPermissions(4)
	m.SetUnknownPermissions(1)
	m.AddKeysPurged(3)
	m.AddKeysPurged(0)
	m.AddKeysPurged(-2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.unknownPerms))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.keysPurged))
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Start("catalog:sync").Finish(boom), boom)
	m.SetUnknownPermissions(2)
	m.AddKeysPurged(2)

	var r *Run
	assert.NoError(t, r.Finish(nil))
}

func TestDefaultMetricsAreShared(t *testing.T) {
	assert.Same(t, NewMetrics(nil), NewMetrics(nil))
}
