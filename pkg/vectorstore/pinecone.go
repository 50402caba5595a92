package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/support-toolchain/ticketrag/pkg/config"
	"github.com/support-toolchain/ticketrag/pkg/remote"
)

const (
	defaultUpsertBatchSize = 100

	maxAttempts    = 5
	baseRetryDelay = 1 * time.Second
	requestTimeout = 30 * time.Second
)

// PineconeStore implements Store against the Pinecone REST API: the index
// data plane for vector operations and the controller for index lifecycle.
type PineconeStore struct {
	httpClient     *http.Client
	apiKey         string
	indexHost      string
	controllerHost string
	indexName      string
	dimension      int
	metric         string
	batchSize      int
	logger         *slog.Logger

	retryBase time.Duration
}

// NewPineconeStore creates a store bound to the configured index. Upserts are
// written in batches of upsertBatchSize vectors; values <= 0 fall back to the
// default of 100.
func NewPineconeStore(cfg config.VectorStoreConfig, upsertBatchSize int) *PineconeStore {
	if upsertBatchSize <= 0 {
		upsertBatchSize = defaultUpsertBatchSize
	}
	return &PineconeStore{
		httpClient:     &http.Client{Timeout: requestTimeout},
		apiKey:         cfg.APIKey,
		indexHost:      cfg.IndexHost,
		controllerHost: cfg.ControllerHost,
		indexName:      cfg.IndexName,
		dimension:      cfg.Dimension,
		metric:         cfg.Metric,
		batchSize:      upsertBatchSize,
		logger:         slog.Default(),
		retryBase:      baseRetryDelay,
	}
}

// Upsert writes vectors in configured-size batches, sequentially. Preceding
// batches stay committed when a later batch fails (at-least-once semantics;
// the deterministic IDs make replays idempotent).
func (s *PineconeStore) Upsert(ctx context.Context, vectors []Vector) error {
	for start := 0; start < len(vectors); start += s.batchSize {
		end := start + s.batchSize
		if end > len(vectors) {
			end = len(vectors)
		}
		body := map[string]any{"vectors": vectors[start:end]}
		if err := s.do(ctx, http.MethodPost, s.indexHost+"/vectors/upsert", body, nil); err != nil {
			return fmt.Errorf("upsert batch %d-%d of %d: %w", start, end, len(vectors), err)
		}
		s.logger.Debug("Upserted vector batch", "from", start, "to", end, "total", len(vectors))
	}
	return nil
}

type queryResponse struct {
	Matches []Match `json:"matches"`
}

// Query returns the topK nearest neighbors by cosine similarity.
func (s *PineconeStore) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool, filter map[string]any) ([]Match, error) {
	body := map[string]any{
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": includeMetadata,
	}
	if filter != nil {
		body["filter"] = filter
	}
	var resp queryResponse
	if err := s.do(ctx, http.MethodPost, s.indexHost+"/query", body, &resp); err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return resp.Matches, nil
}

// DeleteAll empties the index.
func (s *PineconeStore) DeleteAll(ctx context.Context) error {
	body := map[string]any{"deleteAll": true}
	if err := s.do(ctx, http.MethodPost, s.indexHost+"/vectors/delete", body, nil); err != nil {
		return fmt.Errorf("delete all vectors: %w", err)
	}
	return nil
}

type statsResponse struct {
	Dimension        int     `json:"dimension"`
	IndexFullness    float64 `json:"indexFullness"`
	TotalVectorCount int64   `json:"totalVectorCount"`
}

// Stats returns dimensionality, fullness, and vector count.
func (s *PineconeStore) Stats(ctx context.Context) (Stats, error) {
	var resp statsResponse
	if err := s.do(ctx, http.MethodPost, s.indexHost+"/describe_index_stats", map[string]any{}, &resp); err != nil {
		return Stats{}, fmt.Errorf("describe index stats: %w", err)
	}
	return Stats{
		Dimension:     resp.Dimension,
		IndexFullness: resp.IndexFullness,
		VectorCount:   resp.TotalVectorCount,
	}, nil
}

type indexDescription struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
}

// EnsureIndex creates the index if missing (fixed dimension, cosine metric)
// or verifies an existing index's dimension. A mismatch is a ConfigError:
// operators must delete and recreate the index.
func (s *PineconeStore) EnsureIndex(ctx context.Context) error {
	var desc indexDescription
	err := s.do(ctx, http.MethodGet, s.controllerHost+"/indexes/"+s.indexName, nil, &desc)
	if err == nil {
		if desc.Dimension != s.dimension {
			return &remote.ConfigError{
				Setting: "vector index dimension",
				Err: fmt.Errorf("index %q has dimension %d, deployment requires %d; delete and recreate the index",
					s.indexName, desc.Dimension, s.dimension),
			}
		}
		s.logger.Info("Vector index verified", "index", s.indexName, "dimension", desc.Dimension)
		return nil
	}
	if !remote.IsNotFound(err) {
		return fmt.Errorf("describe index %s: %w", s.indexName, err)
	}

	body := map[string]any{
		"name":      s.indexName,
		"dimension": s.dimension,
		"metric":    s.metric,
		"spec": map[string]any{
			"serverless": map[string]any{
				"cloud":  "aws",
				"region": "us-east-1",
			},
		},
	}
	if err := s.do(ctx, http.MethodPost, s.controllerHost+"/indexes", body, nil); err != nil {
		return fmt.Errorf("create index %s: %w", s.indexName, err)
	}
	s.logger.Info("Vector index created", "index", s.indexName, "dimension", s.dimension, "metric", s.metric)
	return nil
}

// do executes one request with the full retry policy: network failures and
// 5xx back off exponentially, 429 honors Retry-After, 4xx fail immediately.
// Transient errors surface only once the attempt budget is spent.
func (s *PineconeStore) do(ctx context.Context, method, url string, body, out any) error {
	op := fmt.Sprintf("%s %s", method, url)

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Api-Key", s.apiKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			lastErr = &remote.TransientError{Op: op, Err: err}
			if !s.backoff(ctx, attempt, lastErr) {
				return ctx.Err()
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = &remote.TransientError{Op: op, Err: readErr}
			if !s.backoff(ctx, attempt, lastErr) {
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
			delay := retryAfter(resp, s.backoffDelay(attempt))
			s.logger.Warn("Vector store rate limited, waiting",
				"op", op, "delay", delay, "attempt", attempt+1)
			if !sleepCtx(ctx, delay) {
				return ctx.Err()
			}

		case remote.RetryableStatus(resp.StatusCode):
			lastErr = &remote.TransientError{Op: op, StatusCode: resp.StatusCode,
				Err: fmt.Errorf("%s", string(respBody))}
			if !s.backoff(ctx, attempt, lastErr) {
				return ctx.Err()
			}

		default:
			return &remote.PermanentError{Op: op, StatusCode: resp.StatusCode,
				Body: string(respBody)}
		}
	}

	return fmt.Errorf("%s: giving up after %d attempts: %w", op, maxAttempts, lastErr)
}

func (s *PineconeStore) backoff(ctx context.Context, attempt int, cause error) bool {
	delay := s.backoffDelay(attempt)
	s.logger.Warn("Vector store request failed, retrying",
		"delay", delay, "attempt", attempt+1, "error", cause)
	return sleepCtx(ctx, delay)
}

func (s *PineconeStore) backoffDelay(attempt int) time.Duration {
	return s.retryBase * time.Duration(1<<uint(attempt))
}

func retryAfter(resp *http.Response, def time.Duration) time.Duration {
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

// OverrideForTest points both planes at a test server and shrinks the retry
// backoff. For testing only.
func (s *PineconeStore) OverrideForTest(indexHost, controllerHost string) {
	s.indexHost = indexHost
	s.controllerHost = controllerHost
	s.retryBase = time.Millisecond
}
