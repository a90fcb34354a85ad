package pushover

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPush_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/1/messages.json", r.URL.Path)

		var req pushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "app-token", req.Token)
		assert.Equal(t, "user-key", req.User)
		assert.Equal(t, "Deal alert", req.Title)
		assert.Contains(t, req.Message, "Widget X")
		assert.Equal(t, "https://dealsite.example/widget-x", req.URL)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": 1, "request": "req-1"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("app-token", "user-key", WithBaseURL(srv.URL))
	err := client.Push(context.Background(), Message{
		Title: "Deal alert",
		Body:  "Widget X at $99.99, estimated worth $130.00",
		URL:   "https://dealsite.example/widget-x",
	})

	require.NoError(t, err)
}

func TestPush_APIRejection(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": 0, "errors": ["user identifier is invalid"]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("app-token", "bad-user", WithBaseURL(srv.URL))
	err := client.Push(context.Background(), Message{Body: "hello"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pushover: rejected")
	assert.Contains(t, err.Error(), "user identifier is invalid")
}

func TestPush_RetryOn502(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`bad gateway`)) //nolint:errcheck
			return
		}
		w.Write([]byte(`{"status": 1, "request": "req-2"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("app-token", "user-key", WithBaseURL(srv.URL))
	err := client.Push(context.Background(), Message{Body: "hello"})

	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestPush_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`oops`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("app-token", "user-key", WithBaseURL(srv.URL))
	err := client.Push(context.Background(), Message{Body: "hello"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pushover: unexpected status 500")
}
