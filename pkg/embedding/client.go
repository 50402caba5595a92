package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/support-toolchain/ticketrag/pkg/config"
	"github.com/support-toolchain/ticketrag/pkg/remote"
)

const (
	// SafeMaxChars bounds text sent to the provider. The chunker should
	// prevent oversized text from reaching this safety net.
	SafeMaxChars = 7000

	truncationMarker = "… [truncated]"

	maxAttempts        = 5
	baseRetryDelay     = 1 * time.Second
	requestTimeout     = 60 * time.Second
	minRequestInterval = 20 * time.Millisecond
)

// Client maps strings to fixed-dimension unit vectors. Safe for concurrent
// use; requests are paced to at most one per minRequestInterval.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	cache      Cache
	limiter    *rate.Limiter
	logger     *slog.Logger

	retryBase time.Duration
}

// NewClient creates an embedding client backed by the given cache.
func NewClient(cfg config.EmbeddingConfig, cache Cache) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		cache:      cache,
		limiter:    rate.NewLimiter(rate.Every(minRequestInterval), 1),
		logger:     slog.Default(),
		retryBase:  baseRetryDelay,
	}
}

// Dimensions returns the fixed output dimension D.
func (c *Client) Dimensions() int { return c.dimensions }

// ClearCache empties the content-keyed cache.
func (c *Client) ClearCache(ctx context.Context) error { return c.cache.Clear(ctx) }

// CacheStats reports cache occupancy.
func (c *Client) CacheStats(ctx context.Context) CacheStats { return c.cache.Stats(ctx) }

// Embed returns the vector for text. The exact truncated text is the cache
// key; a hit bypasses the network entirely.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = Truncate(text)

	if vec, ok := c.cache.Get(ctx, text); ok {
		return vec, nil
	}

	vec, err := c.request(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(ctx, text, vec)
	return vec, nil
}

// BatchOptions tunes EmbedBatch pacing and progress reporting.
type BatchOptions struct {
	// BatchSize is the number of texts processed before pausing.
	BatchSize int
	// InterBatchDelay is the pause after every BatchSize texts.
	InterBatchDelay time.Duration
	// OnProgress, if set, is called after each text with (done, total).
	OnProgress func(done, total int)
}

// EmbedBatch embeds texts sequentially, preserving input order and length.
// A failure fails the whole batch; callers wanting continue-on-error must
// partition their inputs.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, opts BatchOptions) ([][]float32, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.InterBatchDelay <= 0 {
		opts.InterBatchDelay = 1 * time.Second
	}

	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed item %d of %d: %w", i+1, len(texts), err)
		}
		vectors = append(vectors, vec)

		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(texts))
		}
		if (i+1)%opts.BatchSize == 0 && i+1 < len(texts) {
			if !sleepCtx(ctx, opts.InterBatchDelay) {
				return nil, ctx.Err()
			}
		}
	}
	return vectors, nil
}

// Truncate caps text at SafeMaxChars, appending the truncation marker. The
// cut never lands inside a UTF-8 rune.
func Truncate(text string) string {
	if len(text) <= SafeMaxChars {
		return text
	}
	cut := SafeMaxChars - len(truncationMarker)
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + truncationMarker
}

type embeddingRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	EncodingFormat string `json:"encoding_format"`
	Dimensions     int    `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// request performs one embedding call with the full retry policy: 429 honors
// Retry-After, 5xx/network errors back off exponentially, 404 (model not
// found) and other 4xx are fatal immediately.
func (c *Client) request(ctx context.Context, text string) ([]float32, error) {
	const op = "embed"

	payload, err := json.Marshal(embeddingRequest{
		Model:          c.model,
		Input:          text,
		EncodingFormat: "float",
		Dimensions:     c.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/embeddings", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create embedding request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = &remote.TransientError{Op: op, Err: err}
			if !c.backoff(ctx, attempt, lastErr) {
				return nil, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = &remote.TransientError{Op: op, Err: readErr}
			if !c.backoff(ctx, attempt, lastErr) {
				return nil, ctx.Err()
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return c.decode(body)

		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = &remote.TransientError{Op: op, StatusCode: resp.StatusCode,
				Err: fmt.Errorf("rate limited")}
			delay := retryAfterHeader(resp, c.backoffDelay(attempt))
			c.logger.Warn("Embedding provider rate limited, waiting",
				"delay", delay, "attempt", attempt+1)
			if !sleepCtx(ctx, delay) {
				return nil, ctx.Err()
			}

		case resp.StatusCode >= 500:
			lastErr = &remote.TransientError{Op: op, StatusCode: resp.StatusCode,
				Err: fmt.Errorf("server error")}
			if !c.backoff(ctx, attempt, lastErr) {
				return nil, ctx.Err()
			}

		case resp.StatusCode == http.StatusNotFound:
			return nil, &remote.PermanentError{Op: op, StatusCode: resp.StatusCode,
				Err: fmt.Errorf("model %q not found", c.model)}

		default:
			return nil, &remote.PermanentError{Op: op, StatusCode: resp.StatusCode,
				Body: string(body)}
		}
	}

	return nil, fmt.Errorf("embedding failed after %d attempts: %w", maxAttempts, lastErr)
}

// decode extracts, validates, and unit-normalizes the vector.
func (c *Client) decode(body []byte) ([]float32, error) {
	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &remote.PermanentError{Op: "embed",
			Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(parsed.Data) != 1 {
		return nil, &remote.PermanentError{Op: "embed",
			Err: fmt.Errorf("expected 1 embedding, got %d", len(parsed.Data))}
	}
	vec := parsed.Data[0].Embedding
	if len(vec) != c.dimensions {
		return nil, &remote.PermanentError{Op: "embed",
			Err: fmt.Errorf("expected dimension %d, got %d", c.dimensions, len(vec))}
	}
	return normalize(vec), nil
}

// normalize scales vec to unit length. Zero vectors pass through unchanged.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func (c *Client) backoff(ctx context.Context, attempt int, cause error) bool {
	delay := c.backoffDelay(attempt)
	c.logger.Warn("Embedding request failed, retrying",
		"delay", delay, "attempt", attempt+1, "error", cause)
	return sleepCtx(ctx, delay)
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	return c.retryBase * time.Duration(1<<uint(attempt))
}

func retryAfterHeader(resp *http.Response, def time.Duration) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// OverrideForTest points the client at a test server and removes pacing.
// For testing only.
func (c *Client) OverrideForTest(baseURL string) {
	c.baseURL = baseURL
	c.limiter = rate.NewLimiter(rate.Inf, 1)
	c.retryBase = time.Millisecond
}
