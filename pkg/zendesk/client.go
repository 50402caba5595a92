// Package zendesk provides a rate-limited client for the ticketing platform
// API: ticket search, comment threads, the ticket-field schema, and the
// custom-object store used for audit records.
package zendesk

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/support-toolchain/ticketrag/pkg/config"
	"github.com/support-toolchain/ticketrag/pkg/remote"
)

const (
	maxAttempts      = 5
	baseRetryDelay   = 1 * time.Second
	requestTimeout   = 30 * time.Second
	interPagePause   = 1 * time.Second
	defaultRateLimit = 5 // requests per second per endpoint class
	searchRateLimit  = 1 // the search endpoint has the tightest platform quota
)

// Client performs authenticated requests against the ticketing API with
// per-endpoint token buckets, retry with exponential backoff, and
// Retry-After honoring on 429. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	logger     *slog.Logger

	searchLimiter  *rate.Limiter
	defaultLimiter *rate.Limiter

	retryBase time.Duration // backoff base, shrunk in tests
	pagePause time.Duration // polite pause between pagination requests
}

// NewClient creates a client bound to the given credentials.
func NewClient(cfg config.ZendeskConfig) *Client {
	creds := fmt.Sprintf("%s/token:%s", cfg.User, cfg.APIToken)
	return &Client{
		httpClient:     &http.Client{Timeout: requestTimeout},
		baseURL:        cfg.BaseURL(),
		authHeader:     "Basic " + base64.StdEncoding.EncodeToString([]byte(creds)),
		logger:         slog.Default(),
		searchLimiter:  rate.NewLimiter(searchRateLimit, 1),
		defaultLimiter: rate.NewLimiter(defaultRateLimit, defaultRateLimit),
		retryBase:      baseRetryDelay,
		pagePause:      interPagePause,
	}
}

// limiterFor picks the token bucket for a request path.
func (c *Client) limiterFor(url string) *rate.Limiter {
	if strings.Contains(url, "/search.json") {
		return c.searchLimiter
	}
	return c.defaultLimiter
}

// get issues a GET for path (relative to the API root) or a full URL
// (pagination cursors come back absolute) and decodes JSON into out.
func (c *Client) get(ctx context.Context, pathOrURL string, out any) error {
	return c.do(ctx, http.MethodGet, c.resolve(pathOrURL), nil, out)
}

// post issues a POST with a JSON body.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, c.resolve(path), payload, out)
}

// patch issues a PATCH with a JSON body.
func (c *Client) patch(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPatch, c.resolve(path), payload, out)
}

func (c *Client) resolve(pathOrURL string) string {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		return pathOrURL
	}
	return c.baseURL + pathOrURL
}

// do executes one logical request with the full retry policy:
//   - network errors and 5xx: exponential backoff (1s base, ×2), ≤5 attempts
//   - 429: sleep the server's Retry-After, fall back to backoff
//   - other 4xx: permanent, surfaced immediately with the response body
func (c *Client) do(ctx context.Context, method, url string, body []byte, out any) error {
	op := fmt.Sprintf("%s %s", method, url)
	limiter := c.limiterFor(url)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", c.authHeader)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &remote.TransientError{Op: op, Err: err}
			if !c.sleepBackoff(ctx, attempt, op, lastErr) {
				return ctx.Err()
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = &remote.TransientError{Op: op, Err: readErr}
			if !c.sleepBackoff(ctx, attempt, op, lastErr) {
				return ctx.Err()
			}
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if out != nil && len(respBody) > 0 {
				if err := json.Unmarshal(respBody, out); err != nil {
					return &remote.PermanentError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
				}
			}
			return nil

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = &remote.TransientError{Op: op, StatusCode: resp.StatusCode,
				Err: fmt.Errorf("rate limited")}
			delay := retryAfter(resp, c.backoffDelay(attempt))
			c.logger.Warn("Ticketing API rate limited, waiting",
				"op", op, "delay", delay, "attempt", attempt+1)
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}

		case resp.StatusCode >= 500:
			lastErr = &remote.TransientError{Op: op, StatusCode: resp.StatusCode,
				Err: fmt.Errorf("server error")}
			if !c.sleepBackoff(ctx, attempt, op, lastErr) {
				return ctx.Err()
			}

		default:
			// 4xx other than 429: fatal, body included for diagnosis.
			// 404 is returned as a PermanentError too; existence checks
			// detect it via remote.IsNotFound.
			return &remote.PermanentError{Op: op, StatusCode: resp.StatusCode,
				Body: truncateBody(respBody)}
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", maxAttempts, lastErr)
}

// sleepBackoff waits out the exponential backoff for attempt. Returns false
// if the context was cancelled.
func (c *Client) sleepBackoff(ctx context.Context, attempt int, op string, cause error) bool {
	delay := c.backoffDelay(attempt)
	c.logger.Warn("Ticketing API request failed, retrying",
		"op", op, "delay", delay, "attempt", attempt+1, "error", cause)
	return sleepCtx(ctx, delay)
}

// backoffDelay returns 1s, 2s, 4s, 8s, 16s for attempts 0..4.
func (c *Client) backoffDelay(attempt int) time.Duration {
	return c.retryBase * time.Duration(1<<uint(attempt))
}

// retryAfter parses the Retry-After header (seconds), falling back to def.
func retryAfter(resp *http.Response, def time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

// sleepCtx sleeps for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func truncateBody(body []byte) string {
	const maxLen = 512
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}

// OverrideForTest points the client at a test server and removes pacing.
// For testing only.
func (c *Client) OverrideForTest(baseURL string, httpClient *http.Client) {
	c.baseURL = baseURL
	if httpClient != nil {
		c.httpClient = httpClient
	}
	c.searchLimiter = rate.NewLimiter(rate.Inf, 1)
	c.defaultLimiter = rate.NewLimiter(rate.Inf, 1)
	c.retryBase = time.Millisecond
	c.pagePause = 0
}
