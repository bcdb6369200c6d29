package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

func gameRecord(externalID string, playtimeMin int64) model.CanonicalRecord {
	return model.CanonicalRecord{
		ExternalID:  externalID,
		Platform:    model.PlatformSteam,
		Kind:        model.KindGame,
		Title:       "Hades II",
		OccurredAt:  time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
		DurationMin: playtimeMin,
	}
}

func TestRecordRepo_GameIdempotentReplay(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRecordRepo(db)
	ctx := context.Background()

	rec := gameRecord("app-1145350", 500)

	outcome, err := repo.UpsertCanonical(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNew, outcome)

	// Replaying identical adapter output reports Existing and creates no row.
	outcome, err = repo.UpsertCanonical(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeExisting, outcome)

	var count int
	err = db.Reader.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM games WHERE platform = 'steam' AND external_id = 'app-1145350'`,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecordRepo_PlaytimeDeltaAccretes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRecordRepo(db)
	ctx := context.Background()

	_, err := repo.UpsertCanonical(ctx, gameRecord("app-1", 500))
	require.NoError(t, err)

	// 40 more minutes since the last observation.
	_, err = repo.UpsertCanonical(ctx, gameRecord("app-1", 540))
	require.NoError(t, err)

	var minutes int64
	err = db.Reader.QueryRowContext(ctx,
		`SELECT minutes FROM playtime_days WHERE day = '2026-03-01'`,
	).Scan(&minutes)
	require.NoError(t, err)
	assert.Equal(t, int64(40), minutes)

	// Same-day accumulation.
	_, err = repo.UpsertCanonical(ctx, gameRecord("app-1", 550))
	require.NoError(t, err)
	err = db.Reader.QueryRowContext(ctx,
		`SELECT minutes FROM playtime_days WHERE day = '2026-03-01'`,
	).Scan(&minutes)
	require.NoError(t, err)
	assert.Equal(t, int64(50), minutes)
}

func TestRecordRepo_PlaytimeCounterResetClampsToZero(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRecordRepo(db)
	ctx := context.Background()

	_, err := repo.UpsertCanonical(ctx, gameRecord("app-1", 500))
	require.NoError(t, err)

	// A reset platform counter must never produce negative playtime.
	_, err = repo.UpsertCanonical(ctx, gameRecord("app-1", 480))
	require.NoError(t, err)

	var count int
	err = db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM playtime_days`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPlaytimeDelta(t *testing.T) {
	assert.Equal(t, int64(40), model.PlaytimeDelta(500, 540))
	assert.Equal(t, int64(0), model.PlaytimeDelta(500, 480))
	assert.Equal(t, int64(0), model.PlaytimeDelta(500, 500))
}

func TestRecordRepo_SessionDedup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRecordRepo(db)
	ctx := context.Background()

	_, err := repo.UpsertCanonical(ctx, gameRecord("app-1", 100))
	require.NoError(t, err)

	session := model.CanonicalRecord{
		ExternalID:  "app-1:2026-03-01T19:00:00Z",
		Platform:    model.PlatformSteam,
		Kind:        model.KindSession,
		OccurredAt:  time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
		DurationMin: 45,
		Metadata:    map[string]string{model.MetaGameExternalID: "app-1"},
	}

	outcome, err := repo.UpsertCanonical(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNew, outcome)

	// At-least-once delivery: the replayed session persists as one row.
	outcome, err = repo.UpsertCanonical(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeExisting, outcome)

	var count int
	err = db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM game_sessions`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecordRepo_SessionBeforeGameCreatesStub(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRecordRepo(db)
	ctx := context.Background()

	session := model.CanonicalRecord{
		ExternalID: "genshin:2026-03-01",
		Platform:   model.PlatformHoYoverse,
		Kind:       model.KindSession,
		OccurredAt: time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
		Metadata: map[string]string{
			model.MetaGameExternalID: "genshin",
			"gameTitle":              "Genshin Impact",
		},
	}

	outcome, err := repo.UpsertCanonical(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNew, outcome)

	var title string
	err = db.Reader.QueryRowContext(ctx,
		`SELECT title FROM games WHERE platform = 'hoyoverse' AND external_id = 'genshin'`,
	).Scan(&title)
	require.NoError(t, err)
	assert.Equal(t, "Genshin Impact", title)
}

func TestRecordRepo_SessionMissingGameRef(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRecordRepo(db)

	session := model.CanonicalRecord{
		ExternalID: "orphan",
		Platform:   model.PlatformSteam,
		Kind:       model.KindSession,
		OccurredAt: time.Now(),
	}
	_, err := repo.UpsertCanonical(context.Background(), session)
	require.Error(t, err)
}

func TestRecordRepo_AchievementUpsert(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRecordRepo(db)
	ctx := context.Background()

	ach := model.CanonicalRecord{
		ExternalID: "app-1:ACH_WIN_100",
		Platform:   model.PlatformSteam,
		Kind:       model.KindAchievement,
		Title:      "Centurion",
		OccurredAt: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		Metadata:   map[string]string{model.MetaGameExternalID: "app-1"},
	}

	outcome, err := repo.UpsertCanonical(ctx, ach)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNew, outcome)

	outcome, err = repo.UpsertCanonical(ctx, ach)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeExisting, outcome)
}

func TestRecordRepo_MediaWatchUpdatesProgress(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRecordRepo(db)
	ctx := context.Background()

	watch := model.CanonicalRecord{
		ExternalID:  "BV1xx411",
		Platform:    model.PlatformBilibili,
		Kind:        model.KindMediaWatch,
		Title:       "Documentary EP1",
		OccurredAt:  time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC),
		Progress:    40,
		DurationMin: 60,
	}

	outcome, err := repo.UpsertCanonical(ctx, watch)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeNew, outcome)

	watch.Progress = 100
	outcome, err = repo.UpsertCanonical(ctx, watch)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeExisting, outcome)

	var progress float64
	err = db.Reader.QueryRowContext(ctx,
		`SELECT progress FROM media_watches WHERE external_id = 'BV1xx411'`,
	).Scan(&progress)
	require.NoError(t, err)
	assert.Equal(t, float64(100), progress)
}

func TestRecordRepo_LatestOccurredAt(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRecordRepo(db)
	ctx := context.Background()

	latest, err := repo.LatestOccurredAt(ctx, model.PlatformSteam)
	require.NoError(t, err)
	assert.True(t, latest.IsZero(), "nothing synced yet")

	_, err = repo.UpsertCanonical(ctx, gameRecord("app-1", 100))
	require.NoError(t, err)

	watch := model.CanonicalRecord{
		ExternalID: "BV1",
		Platform:   model.PlatformBilibili,
		Kind:       model.KindMediaWatch,
		Title:      "x",
		OccurredAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	_, err = repo.UpsertCanonical(ctx, watch)
	require.NoError(t, err)

	latest, err = repo.LatestOccurredAt(ctx, model.PlatformSteam)
	require.NoError(t, err)
	assert.True(t, latest.Equal(time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)))

	// Platforms do not bleed into each other's watermarks.
	latest, err = repo.LatestOccurredAt(ctx, model.PlatformBilibili)
	require.NoError(t, err)
	assert.True(t, latest.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)))
}
