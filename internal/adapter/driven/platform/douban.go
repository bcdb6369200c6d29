package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformClient = (*DoubanClient)(nil)

const doubanPageSize = 50

// DoubanClient pulls movie/book marks ("interests") from the mobile API.
// The credential value is the cookie string carrying dbcl2; metadata
// carries doubanUserId.
type DoubanClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewDoubanClient creates a DoubanClient against the production API.
func NewDoubanClient(limiter *rate.Limiter) *DoubanClient {
	return &DoubanClient{
		baseURL: "https://m.douban.com",
		http:    newHTTPClient(),
		limiter: limiter,
	}
}

// NewDoubanClientWithBaseURL creates a DoubanClient for httptest servers.
func NewDoubanClientWithBaseURL(httpClient *http.Client, baseURL string, limiter *rate.Limiter) *DoubanClient {
	return &DoubanClient{baseURL: baseURL, http: httpClient, limiter: limiter}
}

// Platform implements driven.PlatformClient.
func (c *DoubanClient) Platform() model.Platform { return model.PlatformDouban }

type doubanInterestsResponse struct {
	Total     int `json:"total"`
	Interests []struct {
		ID         string `json:"id"`
		Status     string `json:"status"` // mark, doing, done
		CreateTime string `json:"create_time"`
		Subject    struct {
			Title string `json:"title"`
			Type  string `json:"type"` // movie, tv, book
		} `json:"subject"`
	} `json:"interests"`
}

func (c *DoubanClient) interestsPage(ctx context.Context, cred model.Credential, start int) (*doubanInterestsResponse, error) {
	var page doubanInterestsResponse
	err := withRetry(ctx, func() error {
		u := fmt.Sprintf("%s/rexxar/api/v2/user/%s/interests?count=%d&start=%d",
			c.baseURL, cred.Meta("doubanUserId"), doubanPageSize, start)
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Cookie", cred.Value)
		req.Header.Set("Referer", "https://m.douban.com/mine/")

		if err := getJSON(ctx, c.http, c.limiter, req, &page); err != nil {
			switch statusOf(err) {
			case http.StatusUnauthorized, http.StatusForbidden:
				return backoff.Permanent(adapterErr(model.PlatformDouban, model.ErrKindAuthRejected, err))
			case http.StatusTooManyRequests:
				return backoff.Permanent(adapterErr(model.PlatformDouban, model.ErrKindRateLimited, err))
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// Probe requests one interest without consuming history.
func (c *DoubanClient) Probe(ctx context.Context, cred model.Credential) driven.ProbeResult {
	_, err := c.interestsPage(ctx, cred, 0)
	if err == nil {
		return driven.ProbeResult{Status: driven.ProbeOk}
	}

	var ae *model.AdapterError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case model.ErrKindAuthRejected:
			return driven.ProbeResult{Status: driven.ProbeAuthRejected, Detail: "dbcl2 cookie rejected"}
		case model.ErrKindRateLimited:
			return driven.ProbeResult{Status: driven.ProbeRateLimited, Detail: "douban rate limited"}
		}
	}
	return driven.ProbeResult{Status: driven.ProbeUnreachable, Detail: err.Error()}
}

// FetchIncremental pages through interests newest-first until it crosses
// the cursor.
func (c *DoubanClient) FetchIncremental(ctx context.Context, cred model.Credential, since time.Time) (*driven.FetchResult, error) {
	var (
		records []model.CanonicalRecord
		cursor  = since
	)

	for start := 0; ; start += doubanPageSize {
		page, err := c.interestsPage(ctx, cred, start)
		if err != nil {
			var ae *model.AdapterError
			if errors.As(err, &ae) && len(records) == 0 && ae.Kind != model.ErrKindRateLimited {
				return nil, ae
			}
			return partialResult(records, cursor, err), nil
		}
		if len(page.Interests) == 0 {
			break
		}

		reachedCursor := false
		for _, interest := range page.Interests {
			marked, err := time.Parse("2006-01-02 15:04:05", interest.CreateTime)
			if err != nil {
				continue
			}
			marked = marked.UTC()
			if !marked.After(since) {
				reachedCursor = true
				break
			}
			if marked.After(cursor) {
				cursor = marked
			}

			progress := float64(0)
			if interest.Status == "done" {
				progress = 100
			}
			records = append(records, model.CanonicalRecord{
				ExternalID: interest.ID,
				Platform:   model.PlatformDouban,
				Kind:       model.KindMediaWatch,
				Title:      interest.Subject.Title,
				OccurredAt: marked,
				Progress:   progress,
				Metadata: map[string]string{
					"status":      interest.Status,
					"subjectType": interest.Subject.Type,
				},
			})
		}

		if reachedCursor || start+doubanPageSize >= page.Total {
			break
		}
	}

	return &driven.FetchResult{Records: records, NextCursor: cursor}, nil
}
