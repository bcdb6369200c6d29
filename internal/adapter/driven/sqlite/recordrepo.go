package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.RecordStore = (*RecordRepo)(nil)

// RecordRepo is the SQLite implementation of the RecordStore port. All
// lookups that feed a write run on the writer connection; its single-
// connection cap serializes read-then-write sequences across workers.
type RecordRepo struct {
	db *DB
}

// NewRecordRepo creates a new RecordRepo backed by the given DB.
func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

// UpsertCanonical routes a normalized record to its table and reports
// whether the row was new or already present.
func (r *RecordRepo) UpsertCanonical(ctx context.Context, rec model.CanonicalRecord) (model.UpsertOutcome, error) {
	switch rec.Kind {
	case model.KindGame:
		return r.upsertGame(ctx, rec)
	case model.KindSession:
		return r.insertSession(ctx, rec)
	case model.KindAchievement:
		return r.upsertAchievement(ctx, rec)
	case model.KindMediaWatch:
		return r.upsertMediaWatch(ctx, rec)
	case model.KindContribution:
		return r.upsertContribution(ctx, rec)
	default:
		return "", fmt.Errorf("upsert canonical: unknown record kind %q", rec.Kind)
	}
}

// upsertGame inserts or updates a game row. On update, the playtime delta
// between the stored and incoming monotonic totals is accreted into
// playtime_days for the record's day; a counter reset clamps to zero.
func (r *RecordRepo) upsertGame(ctx context.Context, rec model.CanonicalRecord) (model.UpsertOutcome, error) {
	metadata, err := marshalMap(rec.Metadata)
	if err != nil {
		return "", err
	}

	var (
		gameID      int64
		prevMinutes int64
	)
	err = r.db.Writer.QueryRowContext(ctx,
		`SELECT id, playtime_min FROM games WHERE platform = ? AND external_id = ?`,
		string(rec.Platform), rec.ExternalID,
	).Scan(&gameID, &prevMinutes)

	now := formatTime(time.Now())

	if errors.Is(err, sql.ErrNoRows) {
		const insert = `
			INSERT INTO games (platform, external_id, title, playtime_min, progress,
				last_played_at, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err = r.db.Writer.ExecContext(ctx, insert,
			string(rec.Platform), rec.ExternalID, rec.Title, rec.DurationMin,
			rec.Progress, formatTime(rec.OccurredAt), metadata, now, now,
		)
		if err != nil {
			return "", fmt.Errorf("insert game %s/%s: %w", rec.Platform, rec.ExternalID, err)
		}
		return model.OutcomeNew, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup game %s/%s: %w", rec.Platform, rec.ExternalID, err)
	}

	const update = `
		UPDATE games
		SET title = ?, playtime_min = ?, progress = ?, last_played_at = ?,
		    metadata = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = r.db.Writer.ExecContext(ctx, update,
		rec.Title, rec.DurationMin, rec.Progress, formatTime(rec.OccurredAt),
		metadata, now, gameID,
	)
	if err != nil {
		return "", fmt.Errorf("update game %s/%s: %w", rec.Platform, rec.ExternalID, err)
	}

	if delta := model.PlaytimeDelta(prevMinutes, rec.DurationMin); delta > 0 {
		if err := r.accretePlaytime(ctx, gameID, rec.OccurredAt, delta); err != nil {
			return "", err
		}
	}

	return model.OutcomeExisting, nil
}

// accretePlaytime accumulates played minutes into the (game, day) bucket.
func (r *RecordRepo) accretePlaytime(ctx context.Context, gameID int64, at time.Time, minutes int64) error {
	const query = `
		INSERT INTO playtime_days (game_id, day, minutes)
		VALUES (?, ?, ?)
		ON CONFLICT (game_id, day) DO UPDATE SET
			minutes = playtime_days.minutes + excluded.minutes
	`
	day := at.UTC().Format("2006-01-02")
	if _, err := r.db.Writer.ExecContext(ctx, query, gameID, day, minutes); err != nil {
		return fmt.Errorf("accrete playtime for game %d on %s: %w", gameID, day, err)
	}
	return nil
}

// insertSession stores one play session, deduplicated on (game, started_at).
// At-least-once adapter delivery makes replays routine; a replayed session
// reports OutcomeExisting and writes nothing.
func (r *RecordRepo) insertSession(ctx context.Context, rec model.CanonicalRecord) (model.UpsertOutcome, error) {
	gameExternalID := rec.Metadata[model.MetaGameExternalID]
	if gameExternalID == "" {
		return "", fmt.Errorf("session %s/%s: missing %s metadata", rec.Platform, rec.ExternalID, model.MetaGameExternalID)
	}

	gameID, err := r.ensureGame(ctx, rec.Platform, gameExternalID, rec.Metadata["gameTitle"])
	if err != nil {
		return "", err
	}

	const query = `
		INSERT INTO game_sessions (game_id, started_at, duration_min)
		VALUES (?, ?, ?)
		ON CONFLICT (game_id, started_at) DO NOTHING
	`
	res, err := r.db.Writer.ExecContext(ctx, query, gameID, formatTime(rec.OccurredAt), rec.DurationMin)
	if err != nil {
		return "", fmt.Errorf("insert session for game %d: %w", gameID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return model.OutcomeExisting, nil
	}
	return model.OutcomeNew, nil
}

// ensureGame resolves a game id by external id, creating a stub row when the
// session or achievement arrived before its game record.
func (r *RecordRepo) ensureGame(ctx context.Context, platform model.Platform, externalID, title string) (int64, error) {
	var gameID int64
	err := r.db.Writer.QueryRowContext(ctx,
		`SELECT id FROM games WHERE platform = ? AND external_id = ?`,
		string(platform), externalID,
	).Scan(&gameID)
	if err == nil {
		return gameID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("lookup game %s/%s: %w", platform, externalID, err)
	}

	if title == "" {
		title = externalID
	}
	now := formatTime(time.Now())
	res, err := r.db.Writer.ExecContext(ctx,
		`INSERT INTO games (platform, external_id, title, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, '{}', ?, ?)`,
		string(platform), externalID, title, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert stub game %s/%s: %w", platform, externalID, err)
	}
	return res.LastInsertId()
}

func (r *RecordRepo) upsertAchievement(ctx context.Context, rec model.CanonicalRecord) (model.UpsertOutcome, error) {
	var gameID any
	if ext := rec.Metadata[model.MetaGameExternalID]; ext != "" {
		id, err := r.ensureGame(ctx, rec.Platform, ext, rec.Metadata["gameTitle"])
		if err != nil {
			return "", err
		}
		gameID = id
	}

	const query = `
		INSERT INTO game_achievements (platform, external_id, game_id, title, unlocked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (platform, external_id) DO UPDATE SET
			title = excluded.title
	`
	return r.execOutcome(ctx, rec, query,
		string(rec.Platform), rec.ExternalID, gameID, rec.Title, formatTime(rec.OccurredAt))
}

func (r *RecordRepo) upsertMediaWatch(ctx context.Context, rec model.CanonicalRecord) (model.UpsertOutcome, error) {
	metadata, err := marshalMap(rec.Metadata)
	if err != nil {
		return "", err
	}

	const query = `
		INSERT INTO media_watches (platform, external_id, title, watched_at, progress,
			duration_min, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, external_id) DO UPDATE SET
			title = excluded.title,
			watched_at = excluded.watched_at,
			progress = excluded.progress,
			duration_min = excluded.duration_min,
			metadata = excluded.metadata
	`
	return r.execOutcome(ctx, rec, query,
		string(rec.Platform), rec.ExternalID, rec.Title, formatTime(rec.OccurredAt),
		rec.Progress, rec.DurationMin, metadata)
}

func (r *RecordRepo) upsertContribution(ctx context.Context, rec model.CanonicalRecord) (model.UpsertOutcome, error) {
	count := int64(1)
	if rec.DurationMin > 0 {
		count = rec.DurationMin // contribution adapters reuse the numeric slot for event counts
	}

	const query = `
		INSERT INTO contributions (platform, external_id, repo, kind, occurred_at, count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, external_id) DO UPDATE SET
			count = excluded.count
	`
	return r.execOutcome(ctx, rec, query,
		string(rec.Platform), rec.ExternalID, rec.Metadata[model.MetaRepo],
		rec.Title, formatTime(rec.OccurredAt), count)
}

// execOutcome runs an upsert after checking for a prior row, translating the
// result into New or Existing for job-log counters. The writer connection's
// serialization makes the check-then-act race-free.
func (r *RecordRepo) execOutcome(ctx context.Context, rec model.CanonicalRecord, query string, args ...any) (model.UpsertOutcome, error) {
	table := tableForKind(rec.Kind)

	var exists int
	err := r.db.Writer.QueryRowContext(ctx,
		`SELECT 1 FROM `+table+` WHERE platform = ? AND external_id = ?`,
		string(rec.Platform), rec.ExternalID,
	).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lookup %s %s/%s: %w", rec.Kind, rec.Platform, rec.ExternalID, err)
	}

	if _, err := r.db.Writer.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("upsert %s %s/%s: %w", rec.Kind, rec.Platform, rec.ExternalID, err)
	}

	if exists == 1 {
		return model.OutcomeExisting, nil
	}
	return model.OutcomeNew, nil
}

func tableForKind(kind model.RecordKind) string {
	switch kind {
	case model.KindAchievement:
		return "game_achievements"
	case model.KindMediaWatch:
		return "media_watches"
	case model.KindContribution:
		return "contributions"
	default:
		return "games"
	}
}

// LatestOccurredAt returns the newest activity timestamp stored for the
// platform across all canonical tables, or the zero time when nothing has
// been synced yet.
func (r *RecordRepo) LatestOccurredAt(ctx context.Context, platform model.Platform) (time.Time, error) {
	const query = `
		SELECT MAX(t) FROM (
			SELECT MAX(last_played_at) AS t FROM games WHERE platform = ?1
			UNION ALL
			SELECT MAX(watched_at) FROM media_watches WHERE platform = ?1
			UNION ALL
			SELECT MAX(occurred_at) FROM contributions WHERE platform = ?1
			UNION ALL
			SELECT MAX(unlocked_at) FROM game_achievements WHERE platform = ?1
		)
	`

	var latest sql.NullString
	if err := r.db.Reader.QueryRowContext(ctx, query, string(platform)).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("latest occurred_at for %s: %w", platform, err)
	}
	if !latest.Valid || latest.String == "" {
		return time.Time{}, nil
	}

	t, err := parseTime(latest.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse latest occurred_at for %s: %w", platform, err)
	}
	return t, nil
}
