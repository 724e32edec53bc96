package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogSync mirrors the permission catalog into the database.
	TaskCatalogSync = "catalog:sync"
	// TaskIdempotencyCleanup prunes expired request keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// CatalogSyncPayload carries the catalog version of the enqueuing binary.
type CatalogSyncPayload struct {
	Version int `json:"version"`
}

// NewCatalogSyncTask constructs a catalog sync task.
func NewCatalogSyncTask(version int) (*asynq.Task, error) {
	data, err := json.Marshal(CatalogSyncPayload{Version: version})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogSync, data), nil
}

// NewIdempotencyCleanupTask constructs the key pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
