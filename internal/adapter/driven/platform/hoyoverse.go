package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformClient = (*HoYoverseClient)(nil)

// HoYoverse API return codes.
const (
	hoyoCodeInvalidCookie = 10001
	hoyoCodeTooFrequent   = 10101
	hoyoCodeVisitTooFast  = -110
)

// HoYoverseClient pulls game record cards from the HoYoLab API. The
// credential value is a cookie string; it must carry both ltoken and ltuid
// or the platform rejects it, so the adapter gates on the pair up front.
type HoYoverseClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewHoYoverseClient creates a HoYoverseClient against the production API.
func NewHoYoverseClient(limiter *rate.Limiter) *HoYoverseClient {
	return &HoYoverseClient{
		baseURL: "https://bbs-api-os.hoyolab.com",
		http:    newHTTPClient(),
		limiter: limiter,
	}
}

// NewHoYoverseClientWithBaseURL creates a HoYoverseClient for httptest servers.
func NewHoYoverseClientWithBaseURL(httpClient *http.Client, baseURL string, limiter *rate.Limiter) *HoYoverseClient {
	return &HoYoverseClient{baseURL: baseURL, http: httpClient, limiter: limiter}
}

// Platform implements driven.PlatformClient.
func (c *HoYoverseClient) Platform() model.Platform { return model.PlatformHoYoverse }

// cookiePair extracts ltoken and ltuid from the credential cookie string.
func cookiePair(cookie string) (ltoken, ltuid string) {
	for _, part := range strings.Split(cookie, ";") {
		name, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch name {
		case "ltoken", "ltoken_v2":
			ltoken = value
		case "ltuid", "ltuid_v2":
			ltuid = value
		}
	}
	return ltoken, ltuid
}

type hoyoRecordCardResponse struct {
	Retcode int    `json:"retcode"`
	Message string `json:"message"`
	Data    struct {
		List []struct {
			GameID     int64  `json:"game_id"`
			GameName   string `json:"game_name"`
			Nickname   string `json:"nickname"`
			Level      int    `json:"level"`
			RegionName string `json:"region_name"`
			Data       []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"data"`
		} `json:"list"`
	} `json:"data"`
}

func (c *HoYoverseClient) recordCard(ctx context.Context, cred model.Credential) (*hoyoRecordCardResponse, error) {
	ltoken, ltuid := cookiePair(cred.Value)
	if ltoken == "" || ltuid == "" {
		return nil, adapterErr(model.PlatformHoYoverse, model.ErrKindAuthRejected,
			errors.New("cookie must carry both ltoken and ltuid"))
	}

	var card hoyoRecordCardResponse
	err := withRetry(ctx, func() error {
		u := fmt.Sprintf("%s/game_record/card/wapi/getGameRecordCard?uid=%s", c.baseURL, ltuid)
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Cookie", cred.Value)

		if err := getJSON(ctx, c.http, c.limiter, req, &card); err != nil {
			return err
		}
		switch card.Retcode {
		case 0:
			return nil
		case hoyoCodeInvalidCookie:
			return backoff.Permanent(adapterErr(model.PlatformHoYoverse, model.ErrKindAuthRejected,
				fmt.Errorf("retcode %d: %s", card.Retcode, card.Message)))
		case hoyoCodeTooFrequent, hoyoCodeVisitTooFast:
			return backoff.Permanent(adapterErr(model.PlatformHoYoverse, model.ErrKindRateLimited,
				fmt.Errorf("retcode %d: %s", card.Retcode, card.Message)))
		default:
			return fmt.Errorf("retcode %d: %s", card.Retcode, card.Message)
		}
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

// Probe fetches the record card once. Both halves of the cookie pair are
// required before any network call is attempted.
func (c *HoYoverseClient) Probe(ctx context.Context, cred model.Credential) driven.ProbeResult {
	_, err := c.recordCard(ctx, cred)
	if err == nil {
		return driven.ProbeResult{Status: driven.ProbeOk}
	}

	var ae *model.AdapterError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case model.ErrKindAuthRejected:
			return driven.ProbeResult{Status: driven.ProbeAuthRejected, Detail: ae.Err.Error()}
		case model.ErrKindRateLimited:
			return driven.ProbeResult{Status: driven.ProbeRateLimited, Detail: "hoyolab rate limited"}
		}
	}
	return driven.ProbeResult{Status: driven.ProbeUnreachable, Detail: err.Error()}
}

// FetchIncremental snapshots the account's game record cards. The API
// reports current state rather than an event stream, so every fetch yields
// one game record per card and the upsert layer reconciles changes.
func (c *HoYoverseClient) FetchIncremental(ctx context.Context, cred model.Credential, since time.Time) (*driven.FetchResult, error) {
	card, err := c.recordCard(ctx, cred)
	if err != nil {
		var ae *model.AdapterError
		if errors.As(err, &ae) {
			if ae.Kind == model.ErrKindRateLimited {
				return partialResult(nil, since, ae), nil
			}
			return nil, ae
		}
		return nil, adapterErr(model.PlatformHoYoverse, model.ErrKindUnreachable, err)
	}

	now := time.Now().UTC()
	var records []model.CanonicalRecord
	for _, game := range card.Data.List {
		metadata := map[string]string{
			"nickname": game.Nickname,
			"level":    strconv.Itoa(game.Level),
			"region":   game.RegionName,
		}
		for _, stat := range game.Data {
			metadata[stat.Name] = stat.Value
		}

		records = append(records, model.CanonicalRecord{
			ExternalID: "hoyo-" + strconv.FormatInt(game.GameID, 10),
			Platform:   model.PlatformHoYoverse,
			Kind:       model.KindGame,
			Title:      game.GameName,
			OccurredAt: now,
			Metadata:   metadata,
		})
	}

	return &driven.FetchResult{Records: records, NextCursor: now}, nil
}
