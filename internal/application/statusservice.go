package application

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// StatusAggregator merges the job-log audit trail with the legacy sync
// tracking table into one per-platform status report.
type StatusAggregator struct {
	jobs   driven.JobLogStore
	legacy driven.LegacySyncJobStore
}

// NewStatusAggregator creates a StatusAggregator.
func NewStatusAggregator(jobs driven.JobLogStore, legacy driven.LegacySyncJobStore) *StatusAggregator {
	return &StatusAggregator{jobs: jobs, legacy: legacy}
}

// PlatformStatuses reports the latest sync per platform, sorted by platform
// name. A platform's newest job-log row wins; platforms with only legacy
// rows pass the legacy status string through unchanged; platforms with
// neither are omitted. Store errors degrade to omission, never to a report
// failure.
func (s *StatusAggregator) PlatformStatuses(ctx context.Context) []model.PlatformStatus {
	out := make([]model.PlatformStatus, 0, len(model.AllPlatforms))

	for _, platform := range model.AllPlatforms {
		job, err := s.jobs.LatestByPlatform(ctx, platform)
		if err != nil {
			slog.Error("status lookup failed", "platform", platform, "error", err)
			continue
		}
		if job != nil {
			last := job.StartedAt
			if job.CompletedAt != nil {
				last = *job.CompletedAt
			}
			out = append(out, model.PlatformStatus{
				Platform:   platform,
				LastSyncAt: last,
				Status:     string(job.Status),
			})
			continue
		}

		legacy, err := s.legacy.LatestByPlatform(ctx, platform)
		if err != nil {
			slog.Error("legacy status lookup failed", "platform", platform, "error", err)
			continue
		}
		if legacy != nil {
			out = append(out, model.PlatformStatus{
				Platform:   platform,
				LastSyncAt: legacy.LastSyncAt,
				Status:     legacy.Status,
			})
		}
	}

	return out
}
