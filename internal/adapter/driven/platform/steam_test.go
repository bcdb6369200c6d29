package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

func steamCred(apiKey string) model.Credential {
	return model.Credential{
		Platform: model.PlatformSteam,
		Type:     model.CredentialTypeAPIKey,
		Value:    apiKey,
		Metadata: map[string]string{"steamUserId": "76561198012345678"},
	}
}

func TestSteamClient_ProbeOk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "GetPlayerSummaries")
		fmt.Fprint(w, `{"response":{"players":[{"steamid":"76561198012345678","personaname":"gordon","communityvisibilitystate":3}]}}`)
	}))
	defer srv.Close()

	c := NewSteamClientWithBaseURL(srv.Client(), srv.URL, nil)
	res := c.Probe(context.Background(), steamCred("k"))

	assert.Equal(t, driven.ProbeOk, res.Status)
	assert.Equal(t, "gordon", res.Detail)
}

func TestSteamClient_ProbePrivateProfileIsAuthNotRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"players":[{"steamid":"76561198012345678","communityvisibilitystate":1}]}}`)
	}))
	defer srv.Close()

	c := NewSteamClientWithBaseURL(srv.Client(), srv.URL, nil)
	res := c.Probe(context.Background(), steamCred("k"))

	assert.Equal(t, driven.ProbeAuthRejected, res.Status)
	assert.Equal(t, "steam profile is private", res.Detail)
}

func TestSteamClient_ProbeRateLimitIsDistinctFromPrivate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewSteamClientWithBaseURL(srv.Client(), srv.URL, nil)
	res := c.Probe(context.Background(), steamCred("k"))

	assert.Equal(t, driven.ProbeRateLimited, res.Status)
}

func TestSteamClient_ProbeBadKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewSteamClientWithBaseURL(srv.Client(), srv.URL, nil)
	res := c.Probe(context.Background(), steamCred("bad"))

	assert.Equal(t, driven.ProbeAuthRejected, res.Status)
}

func TestSteamClient_FetchIncremental(t *testing.T) {
	since := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	recent := since.Add(48 * time.Hour).Unix()
	old := since.Add(-48 * time.Hour).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/IPlayerService/GetOwnedGames/v1/":
			fmt.Fprintf(w, `{"response":{"game_count":2,"games":[
				{"appid":1145350,"name":"Hades II","playtime_forever":540,"rtime_last_played":%d},
				{"appid":620,"name":"Portal 2","playtime_forever":1200,"rtime_last_played":%d}
			]}}`, recent, old)
		case r.URL.Path == "/ISteamUserStats/GetPlayerAchievements/v1/":
			fmt.Fprintf(w, `{"playerstats":{"success":true,"achievements":[
				{"apiname":"ACH_WIN","achieved":1,"unlocktime":%d,"name":"First Clear"},
				{"apiname":"ACH_LOSE","achieved":0,"unlocktime":0}
			]}}`, recent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewSteamClientWithBaseURL(srv.Client(), srv.URL, nil)
	res, err := c.FetchIncremental(context.Background(), steamCred("k"), since)
	require.NoError(t, err)
	assert.False(t, res.Partial)

	// Portal 2 predates the cursor; Hades II plus its unlocked achievement remain.
	require.Len(t, res.Records, 2)
	assert.Equal(t, model.KindGame, res.Records[0].Kind)
	assert.Equal(t, "1145350", res.Records[0].ExternalID)
	assert.Equal(t, int64(540), res.Records[0].DurationMin)
	assert.Equal(t, model.KindAchievement, res.Records[1].Kind)
	assert.Equal(t, "1145350:ACH_WIN", res.Records[1].ExternalID)
	assert.Equal(t, "First Clear", res.Records[1].Title)
	assert.True(t, res.NextCursor.After(since))
}

func TestSteamClient_FetchAuthRejectedFirstPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewSteamClientWithBaseURL(srv.Client(), srv.URL, nil)
	_, err := c.FetchIncremental(context.Background(), steamCred("bad"), time.Now().Add(-time.Hour))

	var ae *model.AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, model.ErrKindAuthRejected, ae.Kind)
}

func TestSteamClient_GamesWithoutAchievementStatsAreSkipped(t *testing.T) {
	since := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	recent := since.Add(time.Hour).Unix()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/IPlayerService/GetOwnedGames/v1/":
			fmt.Fprintf(w, `{"response":{"game_count":1,"games":[
				{"appid":431960,"name":"Wallpaper Engine","playtime_forever":10,"rtime_last_played":%d}
			]}}`, recent)
		default:
			// Steam answers 400 for titles with no achievement schema.
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	c := NewSteamClientWithBaseURL(srv.Client(), srv.URL, nil)
	res, err := c.FetchIncremental(context.Background(), steamCred("k"), since)
	require.NoError(t, err)
	assert.False(t, res.Partial)
	require.Len(t, res.Records, 1)
	assert.Equal(t, model.KindGame, res.Records[0].Kind)
}
