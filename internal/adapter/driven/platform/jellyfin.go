package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformClient = (*JellyfinClient)(nil)

const jellyfinPageSize = 100

// JellyfinClient pulls played items from a self-hosted Jellyfin server. The
// credential value is the API token; metadata carries jellyfinUrl and
// jellyfinUserId since every server lives at its own address.
type JellyfinClient struct {
	http    *http.Client
	limiter *rate.Limiter
}

// NewJellyfinClient creates a JellyfinClient. The server address comes from
// credential metadata at call time, so there is no base URL here.
func NewJellyfinClient(limiter *rate.Limiter) *JellyfinClient {
	return &JellyfinClient{http: newHTTPClient(), limiter: limiter}
}

// NewJellyfinClientWithHTTPClient creates a JellyfinClient with an injected
// http.Client, for httptest servers.
func NewJellyfinClientWithHTTPClient(httpClient *http.Client) *JellyfinClient {
	return &JellyfinClient{http: httpClient}
}

// Platform implements driven.PlatformClient.
func (c *JellyfinClient) Platform() model.Platform { return model.PlatformJellyfin }

type jellyfinSystemInfo struct {
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
}

// Probe calls /System/Info with the API token.
func (c *JellyfinClient) Probe(ctx context.Context, cred model.Credential) driven.ProbeResult {
	base := strings.TrimSuffix(cred.Meta("jellyfinUrl"), "/")
	if base == "" {
		return driven.ProbeResult{Status: driven.ProbeAuthRejected, Detail: "jellyfinUrl metadata is required"}
	}

	req, err := http.NewRequest(http.MethodGet, base+"/System/Info", nil)
	if err != nil {
		return driven.ProbeResult{Status: driven.ProbeUnreachable, Detail: err.Error()}
	}
	req.Header.Set("X-Emby-Token", cred.Value)

	var info jellyfinSystemInfo
	if err := getJSON(ctx, c.http, c.limiter, req, &info); err != nil {
		switch statusOf(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return driven.ProbeResult{Status: driven.ProbeAuthRejected, Detail: "jellyfin token rejected"}
		case http.StatusTooManyRequests:
			return driven.ProbeResult{Status: driven.ProbeRateLimited, Detail: "jellyfin rate limited"}
		default:
			return driven.ProbeResult{Status: driven.ProbeUnreachable, Detail: err.Error()}
		}
	}
	return driven.ProbeResult{Status: driven.ProbeOk, Detail: info.ServerName + " " + info.Version}
}

type jellyfinItemsResponse struct {
	TotalRecordCount int `json:"TotalRecordCount"`
	Items            []struct {
		ID           string `json:"Id"`
		Name         string `json:"Name"`
		SeriesName   string `json:"SeriesName"`
		RunTimeTicks int64  `json:"RunTimeTicks"` // 100ns units
		UserData     struct {
			LastPlayedDate   string  `json:"LastPlayedDate"`
			PlayedPercentage float64 `json:"PlayedPercentage"`
			Played           bool    `json:"Played"`
		} `json:"UserData"`
	} `json:"Items"`
}

// FetchIncremental pages played items newest-first until crossing the cursor.
func (c *JellyfinClient) FetchIncremental(ctx context.Context, cred model.Credential, since time.Time) (*driven.FetchResult, error) {
	base := strings.TrimSuffix(cred.Meta("jellyfinUrl"), "/")
	userID := cred.Meta("jellyfinUserId")
	if base == "" || userID == "" {
		return nil, adapterErr(model.PlatformJellyfin, model.ErrKindAuthRejected,
			errors.New("jellyfinUrl and jellyfinUserId metadata are required"))
	}

	var (
		records []model.CanonicalRecord
		cursor  = since
	)

	for start := 0; ; start += jellyfinPageSize {
		var page jellyfinItemsResponse
		err := withRetry(ctx, func() error {
			u := fmt.Sprintf(
				"%s/Users/%s/Items?Recursive=true&Filters=IsPlayed&IncludeItemTypes=Movie,Episode&SortBy=DatePlayed&SortOrder=Descending&Limit=%d&StartIndex=%d",
				base, userID, jellyfinPageSize, start)
			req, err := http.NewRequest(http.MethodGet, u, nil)
			if err != nil {
				return backoff.Permanent(err)
			}
			req.Header.Set("X-Emby-Token", cred.Value)

			if err := getJSON(ctx, c.http, c.limiter, req, &page); err != nil {
				switch statusOf(err) {
				case http.StatusUnauthorized, http.StatusForbidden:
					return backoff.Permanent(adapterErr(model.PlatformJellyfin, model.ErrKindAuthRejected, err))
				}
				return err
			}
			return nil
		})
		if err != nil {
			var ae *model.AdapterError
			if errors.As(err, &ae) && len(records) == 0 && ae.Kind == model.ErrKindAuthRejected {
				return nil, ae
			}
			if len(records) == 0 && !errors.As(err, &ae) {
				return nil, adapterErr(model.PlatformJellyfin, model.ErrKindUnreachable, err)
			}
			return partialResult(records, cursor, err), nil
		}
		if len(page.Items) == 0 {
			break
		}

		reachedCursor := false
		for _, item := range page.Items {
			played, err := time.Parse(time.RFC3339, item.UserData.LastPlayedDate)
			if err != nil {
				continue
			}
			played = played.UTC()
			if !played.After(since) {
				reachedCursor = true
				break
			}
			if played.After(cursor) {
				cursor = played
			}

			title := item.Name
			if item.SeriesName != "" {
				title = item.SeriesName + " - " + item.Name
			}

			records = append(records, model.CanonicalRecord{
				ExternalID:  item.ID,
				Platform:    model.PlatformJellyfin,
				Kind:        model.KindMediaWatch,
				Title:       title,
				OccurredAt:  played,
				DurationMin: item.RunTimeTicks / 600_000_000,
				Progress:    item.UserData.PlayedPercentage,
			})
		}

		if reachedCursor || start+jellyfinPageSize >= page.TotalRecordCount {
			break
		}
	}

	return &driven.FetchResult{Records: records, NextCursor: cursor}, nil
}
