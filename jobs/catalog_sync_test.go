package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/counsel-pm/counsel/internal/jobs"
	"github.com/counsel-pm/counsel/internal/rbac"
)

type fakeCatalogStore struct {
	synced  []rbac.Permission
	unknown int
	err     error
}

func (s *fakeCatalogStore) SyncCatalog(ctx context.Context, catalog *rbac.Catalog) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.synced = catalog.All()
	return len(s.synced), nil
}

func (s *fakeCatalogStore) UnknownPermissions(ctx context.Context, catalog *rbac.Catalog) (int, error) {
	return s.unknown, nil
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestCatalogSyncMirrorsCatalog(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := &fakeCatalogStore{unknown: 2}
	catalog := rbac.NewCatalog(4, "read_case", "create_case")
	job := NewCatalogSyncJob(store, catalog, nil, jobmetrics.NewMetrics(reg))

	task, err := NewCatalogSyncTask(4)
	require.NoError(t, err)
	require.NoError(t, job.Handle(t.Context(), task))

	assert.Equal(t, []rbac.Permission{"create_case", "read_case"}, store.synced)
	assert.Equal(t, float64(2), gaugeValue(t, reg, "counsel_catalog_unknown_permissions"))
}

func TestCatalogSyncSkipsNewerRequests(t *testing.T) {
	store := &fakeCatalogStore{}
	job := NewCatalogSyncJob(store, rbac.NewCatalog(2, "read_case"), nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewCatalogSyncTask(3)
	require.NoError(t, err)
	err = job.Handle(t.Context(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Nil(t, store.synced)
}

func TestCatalogSyncPropagatesStoreErrors(t *testing.T) {
	store := &fakeCatalogStore{err: errors.New("connection refused")}
	job := NewCatalogSyncJob(store, nil, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(t.Context(), asynq.NewTask(TaskCatalogSync, nil))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(t.Context(), asynq.NewTask(TaskCatalogSync, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (e *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	e.opts = append(e.opts, opts)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

func (e *recordingEnqueuer) Close() error { return nil }

func TestClientEnqueuesCatalogSync(t *testing.T) {
	enq := &recordingEnqueuer{}
	client := NewClientWith(enq)

	info, err := client.EnqueueCatalogSync(t.Context(), rbac.CatalogVersion)
	require.NoError(t, err)
	assert.Equal(t, TaskCatalogSync, info.Type)
	require.Len(t, enq.tasks, 1)

	var payload CatalogSyncPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, rbac.CatalogVersion, payload.Version)
	assert.NotEmpty(t, enq.opts[0])
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealth(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rr
	}

	rr := serve(NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3}}, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body queueHealth
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Pending)

	rr = serve(NewHandler(stubInspector{err: errors.New("redis down")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
