// Package pushover provides a client for the Pushover push notification API.
package pushover

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://api.pushover.net"

// Client sends push notifications to the configured user.
type Client interface {
	Push(ctx context.Context, msg Message) error
}

// Message is one notification.
type Message struct {
	Title string
	Body  string
	URL   string
}

// pushRequest is the request body for POST /1/messages.json.
type pushRequest struct {
	Token   string `json:"token"`
	User    string `json:"user"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// pushResponse is the Pushover API response envelope.
type pushResponse struct {
	Status  int      `json:"status"`
	Request string   `json:"request"`
	Errors  []string `json:"errors"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
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
	token   string
	user    string
	baseURL string
	http    *http.Client
}

// NewClient creates a Pushover client for one application token and user key.
func NewClient(token, user string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		user:    user,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
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

// retryableStatusCode reports whether a reply is worth retrying. API
// rejections come back as 4xx and are final; only throttling and server
// failures get another attempt.
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

func (c *httpClient) Push(ctx context.Context, msg Message) error {
	body, err := json.Marshal(pushRequest{
		Token:   c.token,
		User:    c.user,
		Title:   msg.Title,
		Message: msg.Body,
		URL:     msg.URL,
	})
	if err != nil {
		return eris.Wrap(err, "pushover: marshal request")
	}

	respBody, status, err := c.retryDo(ctx, c.baseURL+"/1/messages.json", body)
	if err != nil {
		return eris.Wrap(err, "pushover: send request")
	}

	if status != http.StatusOK {
		return eris.Errorf("pushover: unexpected status %d: %s", status, string(respBody))
	}

	var result pushResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return eris.Wrap(err, "pushover: unmarshal response")
	}
	if result.Status != 1 {
		return eris.Errorf("pushover: rejected: %s", strings.Join(result.Errors, "; "))
	}

	return nil
}
