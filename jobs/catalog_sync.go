package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/counsel-pm/counsel/internal/rbac"
	jobmetrics "github.com/counsel-pm/counsel/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// CatalogStore persists the catalog mirror.
type CatalogStore interface {
	SyncCatalog(ctx context.Context, catalog *rbac.Catalog) (int, error)
	UnknownPermissions(ctx context.Context, catalog *rbac.Catalog) (int, error)
}

// CatalogSyncJob keeps the permissions table equal to the shipped catalog and
// reports role rows that reference identifiers outside it.
type CatalogSyncJob struct {
	Store   CatalogStore
	Catalog *rbac.Catalog
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCatalogSyncJob initialises the catalog sync handler.
func NewCatalogSyncJob(store CatalogStore, catalog *rbac.Catalog, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogSyncJob {
	if catalog == nil {
		catalog = rbac.DefaultCatalog()
	}
	return &CatalogSyncJob{Store: store, Catalog: catalog, Logger: logger, Metrics: metrics}
}

// Handle executes one sync run.
func (j *CatalogSyncJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("catalog sync: handler not configured")
	}
	var payload CatalogSyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	logger := j.logger().With(slog.Int("catalog_version", j.Catalog.Version()))

	// A worker older than the enqueuing binary would prune identifiers it does
	// not know yet.
	if payload.Version > j.Catalog.Version() {
		logger.Warn("catalog sync requested by newer build, skipping", slog.Int("requested_version", payload.Version))
		return asynq.SkipRetry
	}

	run := j.metrics().Start(TaskCatalogSync)
	defer func() {
		err = run.Finish(err)
	}()

	start := time.Now()
	mirrored, err := j.Store.SyncCatalog(ctx, j.Catalog)
	if err != nil {
		logger.Error("sync catalog failed", slog.Any("error", err))
		return err
	}
	unknown, err := j.Store.UnknownPermissions(ctx, j.Catalog)
	if err != nil {
		logger.Error("count unknown permissions failed", slog.Any("error", err))
		return err
	}
	j.metrics().SetUnknownPermissions(unknown)
	if unknown > 0 {
		logger.Warn("roles reference permissions outside the catalog", slog.Int("count", unknown))
	}
	logger.Info("catalog synced",
		slog.Int("permissions", mirrored),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *CatalogSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCatalogSync))
	}
	return slog.Default().With(slog.String("job", TaskCatalogSync))
}

func (j *CatalogSyncJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
