// Package dealfeed provides a client for the bargain feed scraper service.
package dealfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "http://localhost:8100"

// Client fetches freshly scraped deals from the feed service.
type Client interface {
	Scan(ctx context.Context, req ScanRequest) (*ScanResponse, error)
}

// ScanRequest is the request body for POST /api/v1/scan. KnownURLs lets the
// service skip listings the caller has already seen.
type ScanRequest struct {
	KnownURLs []string `json:"known_urls"`
}

// Deal is a single scraped listing.
type Deal struct {
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	URL         string  `json:"url"`
}

// ScanResponse is the response from POST /api/v1/scan.
type ScanResponse struct {
	Deals []Deal `json:"deals"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default service URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps scan calls at the given requests per second. The feed
// service sits in front of retail sites that throttle aggressive callers.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a deal feed client.
func NewClient(baseURL string, opts ...Option) Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// retryableStatusCode reports whether a feed reply is worth retrying. The
// scraper sits behind retail sites, so throttling and gateway failures are
// routine rather than fatal.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// retryDo posts body to url with exponential backoff on transient failures.
// The request is rebuilt each attempt so the body can be re-sent. The final
// attempt's body and status are returned even when the status is transient,
// leaving the verdict to the caller.
func (c *httpClient) retryDo(ctx context.Context, url string, body []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, readErr
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return respBody, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) Scan(ctx context.Context, req ScanRequest) (*ScanResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "dealfeed: rate limit wait")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "dealfeed: marshal request")
	}

	respBody, status, err := c.retryDo(ctx, c.baseURL+"/api/v1/scan", body)
	if err != nil {
		return nil, eris.Wrap(err, "dealfeed: send request")
	}

	if status != http.StatusOK {
		return nil, eris.Errorf("dealfeed: unexpected status %d: %s", status, string(respBody))
	}

	var result ScanResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "dealfeed: unmarshal response")
	}

	return &result, nil
}
