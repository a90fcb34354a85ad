// Package specialist provides a client for the fine-tuned pricing model
// service. The service wraps a small model trained on historical listings
// and replies with a bare price estimate.
package specialist

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "http://localhost:8200"

// Client prices items with the specialist model.
type Client interface {
	Price(ctx context.Context, description string) (float64, error)
}

// priceRequest is the request body for POST /api/v1/price.
type priceRequest struct {
	Description string `json:"description"`
}

// priceResponse is the response from POST /api/v1/price.
type priceResponse struct {
	Price float64 `json:"price"`
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

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a specialist pricing client.
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
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// retryableStatusCode reports whether a reply is worth retrying. The model
// server returns 503 while a checkpoint loads, which clears on its own.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// retryDo posts body with exponential backoff on transient failures,
// rebuilding the request each attempt. The final attempt's body and status
// are returned either way.
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

func (c *httpClient) Price(ctx context.Context, description string) (float64, error) {
	body, err := json.Marshal(priceRequest{Description: description})
	if err != nil {
		return 0, eris.Wrap(err, "specialist: marshal request")
	}

	respBody, status, err := c.retryDo(ctx, c.baseURL+"/api/v1/price", body)
	if err != nil {
		return 0, eris.Wrap(err, "specialist: price request")
	}

	if status != http.StatusOK {
		return 0, eris.Errorf("specialist: unexpected status %d: %s", status, string(respBody))
	}

	var result priceResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, eris.Wrap(err, "specialist: unmarshal response")
	}

	return result.Price, nil
}
