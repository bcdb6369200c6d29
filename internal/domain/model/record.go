package model

import "time"

// RecordKind selects which canonical table a synced record lands in.
type RecordKind string

const (
	KindGame         RecordKind = "game"
	KindSession      RecordKind = "session"
	KindAchievement  RecordKind = "achievement"
	KindMediaWatch   RecordKind = "media_watch"
	KindContribution RecordKind = "contribution"
)

// Metadata keys adapters attach to canonical records.
const (
	MetaGameExternalID = "gameExternalId"
	MetaRepo           = "repo"
)

// CanonicalRecord is the normalized cross-platform shape every adapter
// produces. Games, achievements, media watches, and contributions are keyed
// by (platform, external_id); sessions are keyed by (game, started_at) and
// reference their game through MetaGameExternalID.
type CanonicalRecord struct {
	ExternalID  string
	Platform    Platform
	Kind        RecordKind
	Title       string
	OccurredAt  time.Time
	DurationMin int64   // accreted total for games, span for sessions/watches
	Progress    float64 // 0..100 where the platform reports completion
	Metadata    map[string]string
}

// UpsertOutcome classifies a canonical write for job-log counters.
type UpsertOutcome string

const (
	OutcomeNew      UpsertOutcome = "new"
	OutcomeExisting UpsertOutcome = "existing"
)

// Game is a persisted game row owned by the sync engine.
type Game struct {
	ID           int64
	Platform     Platform
	ExternalID   string
	Title        string
	PlaytimeMin  int64
	Progress     float64
	LastPlayedAt *time.Time
	Metadata     map[string]string
}

// GameSession is one play session, deduplicated on (GameID, StartedAt).
type GameSession struct {
	ID          int64
	GameID      int64
	StartedAt   time.Time
	DurationMin int64
}

// GameAchievement is one unlocked achievement.
type GameAchievement struct {
	ID         int64
	Platform   Platform
	ExternalID string
	GameID     int64
	Title      string
	UnlockedAt time.Time
}

// MediaWatch is one watched/consumed media item.
type MediaWatch struct {
	ID          int64
	Platform    Platform
	ExternalID  string
	Title       string
	WatchedAt   time.Time
	Progress    float64
	DurationMin int64
	Metadata    map[string]string
}

// Contribution is one coding-activity event (push, PR, etc.).
type Contribution struct {
	ID         int64
	Platform   Platform
	ExternalID string
	Repo       string
	Kind       string
	OccurredAt time.Time
	Count      int
}

// PlaytimeDelta converts two monotonic playtime totals into the minutes
// played between observations. Platform counters only decrease on account
// resets, in which case the delta is clamped to zero rather than propagated
// as negative playtime.
func PlaytimeDelta(previousTotal, currentTotal int64) int64 {
	if currentTotal <= previousTotal {
		return 0
	}
	return currentTotal - previousTotal
}
