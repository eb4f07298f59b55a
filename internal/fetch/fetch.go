// Package fetch implements the shared HTTP transport used by every source
// adapter: GET with retry and linear backoff, plus JSON and raw-body
// convenience modes.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"litscout/internal/logger"
)

const (
	// DefaultTimeout bounds a single request attempt.
	DefaultTimeout = 30 * time.Second
	// SlowTimeout is used for arXiv and PubMed EFetch, which return large
	// XML payloads.
	SlowTimeout = 60 * time.Second

	maxAttempts      = 3
	defaultUserAgent = "litscout/1.0 (+https://github.com/litscout/litscout)"
)

// StatusError reports a non-success HTTP response. The body excerpt is kept
// for diagnostics; upstreams tend to explain rate limits and bad queries in
// the response body.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Request carries optional per-call settings.
type Request struct {
	Headers map[string]string
	Timeout time.Duration // overrides the client default when > 0
}

// Client is a retrying HTTP GET client shared by the source adapters.
type Client struct {
	httpClient *http.Client
	userAgent  string
	// backoffUnit scales the retry sleep; tests shrink it.
	backoffUnit time.Duration
}

// New creates a transport client with the default tool User-Agent.
// Timeouts are applied per request via context deadlines, so the underlying
// http.Client carries none of its own.
func New() *Client {
	return &Client{
		httpClient:  &http.Client{},
		userAgent:   defaultUserAgent,
		backoffUnit: time.Second,
	}
}

// Get fetches rawURL, retrying up to 3 times on 5xx, 429 and transport
// errors with a linear backoff of backoffUnit x attempt. Other 4xx responses
// and cancellations surface immediately. Returns the body and status code.
func (c *Client) Get(ctx context.Context, rawURL string, opts *Request) ([]byte, int, error) {
	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, status, err := c.do(ctx, rawURL, opts)
		if err == nil {
			return body, status, nil
		}
		lastErr = err
		lastStatus = status

		if ctx.Err() != nil {
			// The caller is gone; a fresh attempt would fail the same way.
			return nil, status, err
		}
		if !retryable(err) {
			return nil, status, err
		}
		if attempt < maxAttempts {
			wait := time.Duration(attempt) * c.backoffUnit
			logger.Debug("Retrying request", "url", rawURL, "attempt", attempt, "wait", wait, "error", err.Error())
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, status, ctx.Err()
			}
		}
	}
	return nil, lastStatus, lastErr
}

// GetJSON fetches rawURL and decodes the response body into out. Decode
// failures are never retried.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any, opts *Request) error {
	body, _, err := c.Get(ctx, rawURL, opts)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode JSON from %s: %w", rawURL, err)
	}
	return nil
}

// GetText fetches rawURL and returns the raw body as a string. Adapters
// consuming XML decode it themselves.
func (c *Client) GetText(ctx context.Context, rawURL string, opts *Request) (string, error) {
	body, _, err := c.Get(ctx, rawURL, opts)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// do performs a single attempt with its own deadline.
func (c *Client) do(ctx context.Context, rawURL string, opts *Request) ([]byte, int, error) {
	timeout := DefaultTimeout
	if opts != nil && opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if opts != nil {
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	logger.Debug("HTTP GET", "url", rawURL, "status", resp.StatusCode, "bytes", len(body))

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, &StatusError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       excerpt(body),
		}
	}
	return body, resp.StatusCode, nil
}

// retryable reports whether another attempt could help: transient HTTP
// statuses and transport-level failures qualify, other client errors do not.
func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func excerpt(body []byte) string {
	const limit = 200
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
