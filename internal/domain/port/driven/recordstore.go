package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// RecordStore defines the driven port for idempotent canonical persistence.
type RecordStore interface {
	// UpsertCanonical inserts or updates one normalized record, keyed by
	// (platform, external_id) -- or (game, started_at) for sessions -- and
	// reports whether the row was new or already present. Replaying
	// identical adapter output must never create duplicate rows.
	UpsertCanonical(ctx context.Context, rec model.CanonicalRecord) (model.UpsertOutcome, error)

	// LatestOccurredAt returns the newest occurred_at across all canonical
	// tables for the platform, used as the incremental cursor watermark.
	// Returns the zero time when nothing has been synced.
	LatestOccurredAt(ctx context.Context, platform model.Platform) (time.Time, error)
}
