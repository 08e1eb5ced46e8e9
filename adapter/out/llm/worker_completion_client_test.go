package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outreach_worker/core/port/out"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"})
}

func TestComplete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"model":"gpt-4o-mini"`)
		assert.Contains(t, string(body), "classify this")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  {\"category\":\"interested\"}\n"},"finish_reason":"stop"}]}`))
	})
	require.True(t, c.Available())

	got, err := c.Complete(context.Background(), "classify this", 0.1)
	require.NoError(t, err)
	assert.Equal(t, `{"category":"interested"}`, got)
}

func TestComplete_RateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","type":"requests"}}`))
	})

	for i := 0; i < 8; i++ {
		_, err := c.Complete(context.Background(), "p", 0)
		require.ErrorIs(t, err, out.ErrRateLimited)
	}
}

func TestComplete_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"boom","type":"server"}}`))
	})

	_, err := c.Complete(context.Background(), "p", 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, out.ErrRateLimited)
	assert.NotErrorIs(t, err, out.ErrCompletionUnavailable)
}

func TestComplete_NoChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","choices":[]}`))
	})

	_, err := c.Complete(context.Background(), "p", 0)
	assert.ErrorContains(t, err, "no choices")
}

func TestComplete_NoAPIKey(t *testing.T) {
	c := NewClient(ClientConfig{})
	assert.False(t, c.Available())

	_, err := c.Complete(context.Background(), "p", 0)
	assert.ErrorIs(t, err, out.ErrCompletionUnavailable)
}
