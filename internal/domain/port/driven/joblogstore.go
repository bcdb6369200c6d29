package driven

import (
	"context"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// JobLogStore defines the driven port for the append-only sync job audit
// trail. Create is the only insert and UpdateStatus the only mutation;
// no delete operation exists.
type JobLogStore interface {
	Create(ctx context.Context, job model.SyncJobLog) error

	// UpdateStatus applies a lifecycle patch to an existing row. Only the
	// fields JobPatch carries can ever change post-creation.
	UpdateStatus(ctx context.Context, jobID string, patch model.JobPatch) error

	// GetByID retrieves a job log. Returns nil, nil when absent.
	GetByID(ctx context.Context, jobID string) (*model.SyncJobLog, error)

	// LatestByPlatform returns the most recently started job for the
	// platform, or nil, nil when the platform has never been synced.
	LatestByPlatform(ctx context.Context, platform model.Platform) (*model.SyncJobLog, error)

	// ListRecent returns up to limit jobs ordered by started_at descending,
	// optionally filtered by platform ("" means all).
	ListRecent(ctx context.Context, platform string, limit int) ([]model.SyncJobLog, error)
}

// LegacySyncJobStore reads the pre-job-log tracking table. It is read-only
// from this engine's perspective; older code paths own the writes.
type LegacySyncJobStore interface {
	// LatestByPlatform returns nil, nil when the platform has no legacy row.
	LatestByPlatform(ctx context.Context, platform model.Platform) (*model.LegacySyncJob, error)
}
