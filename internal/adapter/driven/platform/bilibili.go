package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformClient = (*BilibiliClient)(nil)

// Bilibili API business codes.
const (
	biliCodeNotLoggedIn = -101
	biliCodeRateLimited = -412
)

// maxBiliPages bounds one incremental fetch; the cursor catches the rest on
// the next tick.
const maxBiliPages = 20

// BilibiliClient pulls watch history through the cursor-paged history API.
// The credential value is the SESSDATA cookie string.
type BilibiliClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewBilibiliClient creates a BilibiliClient against the production API.
func NewBilibiliClient(limiter *rate.Limiter) *BilibiliClient {
	return &BilibiliClient{
		baseURL: "https://api.bilibili.com",
		http:    newHTTPClient(),
		limiter: limiter,
	}
}

// NewBilibiliClientWithBaseURL creates a BilibiliClient for httptest servers.
func NewBilibiliClientWithBaseURL(httpClient *http.Client, baseURL string, limiter *rate.Limiter) *BilibiliClient {
	return &BilibiliClient{baseURL: baseURL, http: httpClient, limiter: limiter}
}

// Platform implements driven.PlatformClient.
func (c *BilibiliClient) Platform() model.Platform { return model.PlatformBilibili }

type biliHistoryResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Cursor struct {
			Max    int64 `json:"max"`
			ViewAt int64 `json:"view_at"`
		} `json:"cursor"`
		List []struct {
			Title    string `json:"title"`
			ViewAt   int64  `json:"view_at"`
			Progress int64  `json:"progress"` // seconds; -1 means finished
			Duration int64  `json:"duration"` // seconds
			History  struct {
				OID  int64  `json:"oid"`
				BVID string `json:"bvid"`
			} `json:"history"`
		} `json:"list"`
	} `json:"data"`
}

func (c *BilibiliClient) historyPage(ctx context.Context, cookie string, cursorMax, viewAt int64) (*biliHistoryResponse, error) {
	var page biliHistoryResponse
	err := withRetry(ctx, func() error {
		u := fmt.Sprintf("%s/x/web-interface/history/cursor?max=%d&view_at=%d&ps=30", c.baseURL, cursorMax, viewAt)
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Cookie", cookie)

		if err := getJSON(ctx, c.http, c.limiter, req, &page); err != nil {
			return err
		}
		switch page.Code {
		case 0:
			return nil
		case biliCodeNotLoggedIn:
			return backoff.Permanent(adapterErr(model.PlatformBilibili, model.ErrKindAuthRejected,
				fmt.Errorf("bilibili code %d: %s", page.Code, page.Message)))
		case biliCodeRateLimited:
			return backoff.Permanent(adapterErr(model.PlatformBilibili, model.ErrKindRateLimited,
				fmt.Errorf("bilibili code %d: %s", page.Code, page.Message)))
		default:
			return fmt.Errorf("bilibili code %d: %s", page.Code, page.Message)
		}
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// Probe requests the first history page without consuming it.
func (c *BilibiliClient) Probe(ctx context.Context, cred model.Credential) driven.ProbeResult {
	_, err := c.historyPage(ctx, cred.Value, 0, 0)
	if err == nil {
		return driven.ProbeResult{Status: driven.ProbeOk}
	}

	var ae *model.AdapterError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case model.ErrKindAuthRejected:
			return driven.ProbeResult{Status: driven.ProbeAuthRejected, Detail: "SESSDATA cookie rejected"}
		case model.ErrKindRateLimited:
			return driven.ProbeResult{Status: driven.ProbeRateLimited, Detail: "bilibili rate limited"}
		}
	}
	return driven.ProbeResult{Status: driven.ProbeUnreachable, Detail: err.Error()}
}

// FetchIncremental walks the history cursor backwards until it crosses
// since, a page cap, or the end of history.
func (c *BilibiliClient) FetchIncremental(ctx context.Context, cred model.Credential, since time.Time) (*driven.FetchResult, error) {
	var (
		records           []model.CanonicalRecord
		cursor            = since
		cursorMax, viewAt int64
	)

	for pageNum := 0; pageNum < maxBiliPages; pageNum++ {
		page, err := c.historyPage(ctx, cred.Value, cursorMax, viewAt)
		if err != nil {
			var ae *model.AdapterError
			if errors.As(err, &ae) && len(records) == 0 && ae.Kind != model.ErrKindRateLimited {
				return nil, ae
			}
			return partialResult(records, cursor, err), nil
		}
		if len(page.Data.List) == 0 {
			break
		}

		reachedCursor := false
		for _, item := range page.Data.List {
			watched := time.Unix(item.ViewAt, 0).UTC()
			if !watched.After(since) {
				reachedCursor = true
				break
			}
			if watched.After(cursor) {
				cursor = watched
			}

			externalID := item.History.BVID
			if externalID == "" {
				externalID = strconv.FormatInt(item.History.OID, 10)
			}

			progress := float64(0)
			if item.Progress < 0 {
				progress = 100
			} else if item.Duration > 0 {
				progress = float64(item.Progress) / float64(item.Duration) * 100
			}

			records = append(records, model.CanonicalRecord{
				ExternalID:  externalID,
				Platform:    model.PlatformBilibili,
				Kind:        model.KindMediaWatch,
				Title:       item.Title,
				OccurredAt:  watched,
				DurationMin: item.Duration / 60,
				Progress:    progress,
			})
		}

		if reachedCursor {
			break
		}
		cursorMax, viewAt = page.Data.Cursor.Max, page.Data.Cursor.ViewAt
	}

	return &driven.FetchResult{Records: records, NextCursor: cursor}, nil
}
