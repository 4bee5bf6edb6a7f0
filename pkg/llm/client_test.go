package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatOK(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 20},
	})
	return string(b)
}

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	return NewClient(url, "test-key", "", "",
		WithRetryPolicy(3, time.Millisecond, 4*time.Millisecond))
}

func TestCallSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "/chat/completions", r.URL.Path)
		_, _ = w.Write([]byte(chatOK("hello")))
	}))
	defer srv.Close()

	resp, err := testClient(t, srv.URL).Call(context.Background(), &ChatRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content())
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 20, resp.Usage.CompletionTokens)
}

func TestCallMissingCredential(t *testing.T) {
	c := NewClient("http://unused", "", "", "")
	_, err := c.Call(context.Background(), &ChatRequest{})
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestCallRetriesOn429ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(chatOK("eventually")))
	}))
	defer srv.Close()

	resp, err := testClient(t, srv.URL).Call(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "eventually", resp.Content())
	assert.Equal(t, int32(3), calls.Load())
}

func TestCallRateLimitExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Call(context.Background(), &ChatRequest{})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestCallRetriesOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Call(context.Background(), &ChatRequest{})
	assert.ErrorIs(t, err, ErrUpstreamFailed)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestCallDoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).Call(context.Background(), &ChatRequest{})
	assert.ErrorIs(t, err, ErrUpstreamFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCallCancellationAbortsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "", "",
		WithRetryPolicy(10, 50*time.Millisecond, time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Call(ctx, &ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
