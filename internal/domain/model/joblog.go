package model

import "time"

// SyncJobLog is the permanent record of one sync attempt. Rows are created at
// job start and patched exactly once per lifecycle step via JobPatch; nothing
// outside the patchable fields is ever altered after creation, and rows are
// never deleted.
type SyncJobLog struct {
	ID           string
	Platform     Platform
	CredentialID string // empty for jobs that predate credential tracking
	TriggeredBy  TriggeredBy
	JobType      string
	Status       JobStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	DurationMS   int64

	ItemsTotal    int
	ItemsSuccess  int
	ItemsFailed   int
	ItemsNew      int
	ItemsExisting int

	Message      string
	ErrorStack   string
	ErrorDetails map[string]string
	Metrics      map[string]string
}

// JobPatch is the only mutation applicable to a SyncJobLog after creation.
// Nil fields are left untouched. The field set is closed: status, item
// counters, message, error data, completion fields, and metrics.
type JobPatch struct {
	Status        *JobStatus
	ItemsTotal    *int
	ItemsSuccess  *int
	ItemsFailed   *int
	ItemsNew      *int
	ItemsExisting *int
	Message       *string
	ErrorStack    *string
	ErrorDetails  map[string]string
	CompletedAt   *time.Time
	DurationMS    *int64
	Metrics       map[string]string
}

// LegacySyncJob is a row from the pre-job-log tracking table. This engine
// reads it only as a status fallback; writes belong to older code paths.
type LegacySyncJob struct {
	ID         int64
	Platform   Platform
	Status     string
	LastSyncAt time.Time
}

// PlatformStatus is one entry of the cross-generation status report.
// Freshness classification is deliberately absent; callers derive it
// from LastSyncAt.
type PlatformStatus struct {
	Platform   Platform  `json:"platform"`
	LastSyncAt time.Time `json:"last_sync_at"`
	Status     string    `json:"status"`
}
