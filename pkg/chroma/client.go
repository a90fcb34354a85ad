// Package chroma provides a client for the Chroma vector database REST API.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "http://localhost:8000"

// Client defines the Chroma operations used for the price catalog.
type Client interface {
	// GetOrCreateCollection resolves a collection by name, creating it if needed.
	GetOrCreateCollection(ctx context.Context, name string) (*Collection, error)
	// Query runs a nearest-neighbor search against a collection.
	Query(ctx context.Context, collectionID string, embedding []float64, limit int) (*QueryResult, error)
	// Upsert writes items into a collection, replacing matching IDs.
	Upsert(ctx context.Context, collectionID string, items []Item) error
	// Count returns the number of items in a collection.
	Count(ctx context.Context, collectionID string) (int, error)
}

// Collection identifies a Chroma collection.
type Collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Item is a single entry for Upsert.
type Item struct {
	ID        string
	Embedding []float64
	Document  string
	Metadata  map[string]any
}

// QueryResult holds the nearest neighbors for one query embedding.
type QueryResult struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]any
	Distances []float64
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default server URL.
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

// NewClient creates a Chroma client. An empty baseURL uses the local default.
func NewClient(baseURL string, opts ...Option) Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &httpClient{
		baseURL: baseURL,
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

func (c *httpClient) GetOrCreateCollection(ctx context.Context, name string) (*Collection, error) {
	body, err := json.Marshal(map[string]any{
		"name":          name,
		"get_or_create": true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "chroma: marshal collection request")
	}

	respBody, err := c.post(ctx, "/api/v1/collections", body)
	if err != nil {
		return nil, eris.Wrap(err, "chroma: get or create collection")
	}

	var coll Collection
	if err := json.Unmarshal(respBody, &coll); err != nil {
		return nil, eris.Wrap(err, "chroma: unmarshal collection")
	}
	if coll.ID == "" {
		return nil, eris.Errorf("chroma: collection %q resolved without an id", name)
	}
	return &coll, nil
}

// queryResponse is the wire shape: one nested slice per query embedding.
type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

func (c *httpClient) Query(ctx context.Context, collectionID string, embedding []float64, limit int) (*QueryResult, error) {
	body, err := json.Marshal(map[string]any{
		"query_embeddings": [][]float64{embedding},
		"n_results":        limit,
		"include":          []string{"documents", "metadatas", "distances"},
	})
	if err != nil {
		return nil, eris.Wrap(err, "chroma: marshal query")
	}

	path := fmt.Sprintf("/api/v1/collections/%s/query", url.PathEscape(collectionID))
	respBody, err := c.post(ctx, path, body)
	if err != nil {
		return nil, eris.Wrap(err, "chroma: query collection")
	}

	var wire queryResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, eris.Wrap(err, "chroma: unmarshal query response")
	}

	result := &QueryResult{}
	if len(wire.IDs) > 0 {
		result.IDs = wire.IDs[0]
	}
	if len(wire.Documents) > 0 {
		result.Documents = wire.Documents[0]
	}
	if len(wire.Metadatas) > 0 {
		result.Metadatas = wire.Metadatas[0]
	}
	if len(wire.Distances) > 0 {
		result.Distances = wire.Distances[0]
	}
	return result, nil
}

func (c *httpClient) Upsert(ctx context.Context, collectionID string, items []Item) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	embeddings := make([][]float64, len(items))
	documents := make([]string, len(items))
	metadatas := make([]map[string]any, len(items))
	for i, item := range items {
		ids[i] = item.ID
		embeddings[i] = item.Embedding
		documents[i] = item.Document
		metadatas[i] = item.Metadata
	}

	body, err := json.Marshal(map[string]any{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	})
	if err != nil {
		return eris.Wrap(err, "chroma: marshal upsert")
	}

	path := fmt.Sprintf("/api/v1/collections/%s/upsert", url.PathEscape(collectionID))
	if _, err := c.post(ctx, path, body); err != nil {
		return eris.Wrap(err, "chroma: upsert items")
	}
	return nil
}

func (c *httpClient) Count(ctx context.Context, collectionID string) (int, error) {
	path := fmt.Sprintf("/api/v1/collections/%s/count", url.PathEscape(collectionID))
	respBody, status, err := c.retryDo(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, eris.Wrap(err, "chroma: count request")
	}
	if status != http.StatusOK {
		return 0, eris.Errorf("chroma: count unexpected status %d: %s", status, string(respBody))
	}

	var count int
	if err := json.Unmarshal(respBody, &count); err != nil {
		return 0, eris.Wrap(err, "chroma: unmarshal count")
	}
	return count, nil
}

// retryableStatusCode reports whether a reply is worth retrying. Index
// rebuilds and compactions show up as transient 5xx statuses.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

// retryDo sends a request with exponential backoff on transient failures,
// rebuilding it each attempt. A nil body sends a bare request. The final
// attempt's body and status are returned either way.
func (c *httpClient) retryDo(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return nil, 0, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

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

// post sends a JSON body and returns the response body for 2xx statuses.
func (c *httpClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	respBody, status, err := c.retryDo(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, eris.Wrap(err, "send request")
	}
	if status < 200 || status > 299 {
		return nil, eris.Errorf("unexpected status %d: %s", status, string(respBody))
	}
	return respBody, nil
}
