package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"a":1}`, string(body))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := PostJSON(context.Background(), PostParams{
		URL:        srv.URL,
		Body:       []byte(`{"a":1}`),
		RetryLimit: 1,
		Service:    "test",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostJSON_ReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	err := PostJSON(context.Background(), PostParams{URL: srv.URL, Service: "slack"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack 403 Forbidden: nope")
}

func TestPostJSON_StopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := PostJSON(ctx, PostParams{URL: srv.URL, RetryLimit: 3, Service: "pd"})
	require.Error(t, err)
}

func TestFallback(t *testing.T) {
	assert.Equal(t, "x", Fallback("  ", "x"))
	assert.Equal(t, "y", Fallback("y", "x"))
}
