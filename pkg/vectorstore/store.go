// Package vectorstore writes and queries embedding vectors in an external
// vector index.
package vectorstore

import "context"

// Vector is one record: a deterministic identifier, the embedding values,
// and chunk metadata plus ingestion provenance.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Match is one query result.
type Match struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Stats describes the index.
type Stats struct {
	Dimension     int     `json:"dimension"`
	IndexFullness float64 `json:"index_fullness"`
	VectorCount   int64   `json:"vector_count"`
}

// Store is the vector index contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Upsert writes vectors in fixed-size batches, sequentially. A batch
	// failure propagates an error and leaves preceding batches committed.
	Upsert(ctx context.Context, vectors []Vector) error

	// Query returns the topK nearest neighbors by cosine similarity. filter,
	// when non-nil, constrains on metadata equality.
	Query(ctx context.Context, vector []float32, topK int, includeMetadata bool, filter map[string]any) ([]Match, error)

	// DeleteAll empties the index.
	DeleteAll(ctx context.Context) error

	// Stats returns dimensionality, fullness, and vector count.
	Stats(ctx context.Context) (Stats, error)

	// EnsureIndex creates the index if missing and verifies the dimension
	// matches the deployment's embedding dimension. A mismatch is fatal.
	EnsureIndex(ctx context.Context) error
}
