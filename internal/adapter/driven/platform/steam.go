package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformClient = (*SteamClient)(nil)

// SteamClient pulls owned games and achievements from the Steam Web API.
// The credential value is the Web API key; metadata carries steamUserId.
type SteamClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewSteamClient creates a SteamClient against the production Steam Web API.
func NewSteamClient(limiter *rate.Limiter) *SteamClient {
	return &SteamClient{
		baseURL: "https://api.steampowered.com",
		http:    newHTTPClient(),
		limiter: limiter,
	}
}

// NewSteamClientWithBaseURL creates a SteamClient against an arbitrary base
// URL, for httptest servers.
func NewSteamClientWithBaseURL(httpClient *http.Client, baseURL string, limiter *rate.Limiter) *SteamClient {
	return &SteamClient{baseURL: baseURL, http: httpClient, limiter: limiter}
}

// Platform implements driven.PlatformClient.
func (c *SteamClient) Platform() model.Platform { return model.PlatformSteam }

type steamSummariesResponse struct {
	Response struct {
		Players []struct {
			SteamID         string `json:"steamid"`
			PersonaName     string `json:"personaname"`
			VisibilityState int    `json:"communityvisibilitystate"`
		} `json:"players"`
	} `json:"response"`
}

// Probe issues one GetPlayerSummaries call. A private profile and a rate
// limit are distinct outcomes: the former can only be fixed by the user,
// the latter resolves by waiting.
func (c *SteamClient) Probe(ctx context.Context, cred model.Credential) driven.ProbeResult {
	steamID := cred.Meta("steamUserId")
	u := fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v2/?key=%s&steamids=%s",
		c.baseURL, url.QueryEscape(cred.Value), url.QueryEscape(steamID))

	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return driven.ProbeResult{Status: driven.ProbeUnreachable, Detail: err.Error()}
	}

	var summaries steamSummariesResponse
	if err := getJSON(ctx, c.http, c.limiter, req, &summaries); err != nil {
		switch statusOf(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return driven.ProbeResult{Status: driven.ProbeAuthRejected, Detail: "steam api key rejected"}
		case http.StatusTooManyRequests:
			return driven.ProbeResult{Status: driven.ProbeRateLimited, Detail: "steam api rate limited"}
		default:
			return driven.ProbeResult{Status: driven.ProbeUnreachable, Detail: err.Error()}
		}
	}

	if len(summaries.Response.Players) == 0 {
		return driven.ProbeResult{Status: driven.ProbeAuthRejected, Detail: "steam user not found for key"}
	}
	if summaries.Response.Players[0].VisibilityState != 3 {
		return driven.ProbeResult{Status: driven.ProbeAuthRejected, Detail: "steam profile is private"}
	}
	return driven.ProbeResult{Status: driven.ProbeOk, Detail: summaries.Response.Players[0].PersonaName}
}

type steamOwnedGamesResponse struct {
	Response struct {
		GameCount int `json:"game_count"`
		Games     []struct {
			AppID           int64  `json:"appid"`
			Name            string `json:"name"`
			PlaytimeForever int64  `json:"playtime_forever"` // minutes
			RTimeLastPlayed int64  `json:"rtime_last_played"`
		} `json:"games"`
	} `json:"response"`
}

type steamAchievementsResponse struct {
	PlayerStats struct {
		Success      bool `json:"success"`
		Achievements []struct {
			APIName    string `json:"apiname"`
			Achieved   int    `json:"achieved"`
			UnlockTime int64  `json:"unlocktime"`
			Name       string `json:"name"`
		} `json:"achievements"`
	} `json:"playerstats"`
}

// FetchIncremental retrieves games played since the cursor plus their
// achievement unlocks. A failed achievement page after retries degrades to a
// partial result instead of discarding the game records already collected.
func (c *SteamClient) FetchIncremental(ctx context.Context, cred model.Credential, since time.Time) (*driven.FetchResult, error) {
	steamID := cred.Meta("steamUserId")

	var owned steamOwnedGamesResponse
	err := withRetry(ctx, func() error {
		u := fmt.Sprintf("%s/IPlayerService/GetOwnedGames/v1/?key=%s&steamid=%s&include_appinfo=1&include_played_free_games=1",
			c.baseURL, url.QueryEscape(cred.Value), url.QueryEscape(steamID))
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := getJSON(ctx, c.http, c.limiter, req, &owned); err != nil {
			switch statusOf(err) {
			case http.StatusUnauthorized, http.StatusForbidden:
				return backoff.Permanent(adapterErr(model.PlatformSteam, model.ErrKindAuthRejected, err))
			}
			return err
		}
		return nil
	})
	if err != nil {
		var ae *model.AdapterError
		if errors.As(err, &ae) {
			return nil, ae
		}
		if statusOf(err) == http.StatusTooManyRequests {
			return partialResult(nil, since, adapterErr(model.PlatformSteam, model.ErrKindRateLimited, err)), nil
		}
		return nil, adapterErr(model.PlatformSteam, model.ErrKindUnreachable, err)
	}

	var (
		records []model.CanonicalRecord
		cursor  = since
	)
	for _, g := range owned.Response.Games {
		lastPlayed := time.Unix(g.RTimeLastPlayed, 0).UTC()
		if !lastPlayed.After(since) {
			continue
		}
		if lastPlayed.After(cursor) {
			cursor = lastPlayed
		}

		appID := strconv.FormatInt(g.AppID, 10)
		records = append(records, model.CanonicalRecord{
			ExternalID:  appID,
			Platform:    model.PlatformSteam,
			Kind:        model.KindGame,
			Title:       g.Name,
			OccurredAt:  lastPlayed,
			DurationMin: g.PlaytimeForever,
			Metadata:    map[string]string{"appId": appID},
		})

		achievements, err := c.fetchAchievements(ctx, cred.Value, steamID, appID, g.Name, since)
		if err != nil {
			// Mid-stream page failure: keep what we have.
			return partialResult(records, cursor, err), nil
		}
		records = append(records, achievements...)
	}

	return &driven.FetchResult{Records: records, NextCursor: cursor}, nil
}

// fetchAchievements lists unlocks for one game since the cursor. Games
// without achievement stats return HTTP 400 from Steam and yield nothing.
func (c *SteamClient) fetchAchievements(ctx context.Context, key, steamID, appID, gameTitle string, since time.Time) ([]model.CanonicalRecord, error) {
	var achievements steamAchievementsResponse
	err := withRetry(ctx, func() error {
		u := fmt.Sprintf("%s/ISteamUserStats/GetPlayerAchievements/v1/?key=%s&steamid=%s&appid=%s",
			c.baseURL, url.QueryEscape(key), url.QueryEscape(steamID), url.QueryEscape(appID))
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if err := getJSON(ctx, c.http, c.limiter, req, &achievements); err != nil {
			if statusOf(err) == http.StatusBadRequest {
				return backoff.Permanent(&httpStatusError{Status: http.StatusBadRequest, URL: u})
			}
			return err
		}
		return nil
	})
	if statusOf(err) == http.StatusBadRequest {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("achievements for app %s: %w", appID, err)
	}

	var records []model.CanonicalRecord
	for _, a := range achievements.PlayerStats.Achievements {
		if a.Achieved != 1 {
			continue
		}
		unlocked := time.Unix(a.UnlockTime, 0).UTC()
		if !unlocked.After(since) {
			continue
		}
		title := a.Name
		if title == "" {
			title = a.APIName
		}
		records = append(records, model.CanonicalRecord{
			ExternalID: appID + ":" + a.APIName,
			Platform:   model.PlatformSteam,
			Kind:       model.KindAchievement,
			Title:      title,
			OccurredAt: unlocked,
			Metadata: map[string]string{
				model.MetaGameExternalID: appID,
				"gameTitle":              gameTitle,
			},
		})
	}
	return records, nil
}
