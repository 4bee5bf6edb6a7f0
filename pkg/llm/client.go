// Package llm provides the client for the upstream chat-completions API:
// a single call with bearer auth, exponential backoff on 429/5xx/transport
// errors, and typed failures after exhaustion.
//
// The client is stateless and applies no rate limiting of its own —
// throttling is the swarm engine's concern.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Error kinds surfaced by Call.
var (
	// ErrMissingCredential is returned when no API key is configured.
	ErrMissingCredential = errors.New("upstream API key is not configured")

	// ErrRateLimited is returned when upstream 429 responses persist past
	// the retry budget.
	ErrRateLimited = errors.New("upstream rate limit exceeded")

	// ErrUpstreamFailed is returned for non-retryable upstream errors and
	// for retryable ones that exhausted the retry budget.
	ErrUpstreamFailed = errors.New("upstream request failed")
)

// Role values for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the upstream completions request body.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ChatResponse is the upstream completions response body.
type ChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Content returns the first choice's message content, or empty.
func (r *ChatResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Client calls the upstream chat-completions endpoint. Safe for concurrent
// use; concurrent callers share no per-call state.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	referrer    string
	title       string
	maxRetries  uint64
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy overrides the retry cap and backoff bounds.
func WithRetryPolicy(maxRetries uint64, base, max time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseBackoff = base
		c.maxBackoff = max
	}
}

// NewClient creates a Client for the given endpoint. The referrer and title
// are sent as HTTP-Referer and X-Title when non-empty.
func NewClient(baseURL, apiKey, referrer, title string, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		baseURL:     baseURL,
		apiKey:      apiKey,
		referrer:    referrer,
		title:       title,
		maxRetries:  5,
		baseBackoff: time.Second,
		maxBackoff:  32 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs one chat completion. 429 and 5xx responses and transport
// errors are retried with exponential backoff (baseBackoff doubling up to
// maxBackoff, maxRetries attempts); other 4xx responses surface
// immediately. Cancelling ctx aborts pending retries.
func (c *Client) Call(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if c.apiKey == "" {
		return nil, ErrMissingCredential
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.baseBackoff
	bo.Multiplier = 2
	bo.MaxInterval = c.maxBackoff
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	rateLimited := false

	operation := func() (*ChatResponse, error) {
		resp, opErr := c.doRequest(ctx, body)
		if opErr != nil {
			var re *retryableError
			if errors.As(opErr, &re) {
				rateLimited = re.rateLimited
				return nil, opErr
			}
			return nil, backoff.Permanent(opErr)
		}
		rateLimited = false
		return resp, nil
	}

	resp, err := backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if rateLimited {
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailed, err)
	}
	return resp, nil
}

// retryableError marks a failure that should be retried with backoff.
type retryableError struct {
	err         error
	rateLimited bool
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// doRequest performs a single HTTP round trip and classifies the outcome.
func (c *Client) doRequest(ctx context.Context, body []byte) (*ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.referrer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referrer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &retryableError{err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, &retryableError{err: err}
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, &retryableError{
			err:         fmt.Errorf("upstream returned 429: %s", truncate(respBody, 200)),
			rateLimited: true,
		}
	case httpResp.StatusCode >= 500:
		return nil, &retryableError{
			err: fmt.Errorf("upstream returned %d: %s", httpResp.StatusCode, truncate(respBody, 200)),
		}
	case httpResp.StatusCode >= 400:
		return nil, fmt.Errorf("upstream returned %d: %s", httpResp.StatusCode, truncate(respBody, 200))
	}

	var resp ChatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding upstream response: %w", err)
	}
	return &resp, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
