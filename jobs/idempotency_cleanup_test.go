package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/counsel-pm/counsel/internal/jobs"
)

type fakeKeyCleaner struct {
	retention time.Duration
	removed   int64
	err       error
}

func (f *fakeKeyCleaner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return f.removed, f.err
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	keys := &fakeKeyCleaner{removed: 12}
	job := NewIdempotencyCleanupJob(keys, 0, nil, nil)
	require.NoError(t, job.Handle(t.Context(), NewIdempotencyCleanupTask()))
	assert.Equal(t, DefaultKeyRetention, keys.retention)

	job = NewIdempotencyCleanupJob(keys, time.Hour, nil, nil)
	require.NoError(t, job.Handle(t.Context(), NewIdempotencyCleanupTask()))
	assert.Equal(t, time.Hour, keys.retention)
}

func TestIdempotencyCleanupCountsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	keys := &fakeKeyCleaner{err: errors.New("db down")}
	job := NewIdempotencyCleanupJob(keys, time.Hour, nil, jobmetrics.NewMetrics(reg))

	err := job.Handle(t.Context(), NewIdempotencyCleanupTask())
	require.Error(t, err)
	assert.Equal(t, 1.0, counterValue(t, reg, "counsel_worker_task_runs_total", "outcome", "error"))

	var empty *IdempotencyCleanupJob
	assert.Error(t, empty.Handle(t.Context(), nil))
}

func TestIdempotencyCleanupCountsPurgedKeys(t *testing.T) {
	reg := prometheus.NewRegistry()
	keys := &fakeKeyCleaner{removed: 7}
	job := NewIdempotencyCleanupJob(keys, time.Hour, nil, jobmetrics.NewMetrics(reg))

	require.NoError(t, job.Handle(t.Context(), NewIdempotencyCleanupTask()))
	require.NoError(t, job.Handle(t.Context(), NewIdempotencyCleanupTask()))
	assert.Equal(t, 14.0, counterValue(t, reg, "counsel_idempotency_keys_purged_total"))
	assert.Equal(t, 2.0, counterValue(t, reg, "counsel_worker_task_runs_total", "outcome", "ok"))
}

// counterValue returns the counter called name whose labels include the
// given name/value pairs.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels ...string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			have := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				have[lp.GetName()] = lp.GetValue()
			}
			for i := 0; i+1 < len(labels); i += 2 {
				if have[labels[i]] != labels[i+1] {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}
