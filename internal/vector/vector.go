// Package vector mirrors block embeddings into a searchable index.
//
// The index is a best-effort mirror of the SQL store, never the system
// of record: it can always be rebuilt from memory_blocks via
// ReindexAll. Writes go through the coordinator, which compensates the
// SQL side when a mirror write fails.
package vector

import (
	"context"
	"errors"
)

// DefaultDimension is the embedding width used across the system.
const DefaultDimension = 384

// ErrEmptyEmbedding is returned when an operation requires an
// embedding and none was provided.
var ErrEmptyEmbedding = errors.New("vector: embedding is empty")

// Embedder produces fixed-dimension embeddings for text. The local
// implementation is deterministic; production deployments substitute a
// model-backed client behind this interface.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Record is one block's entry in the index.
type Record struct {
	BlockID     string
	NamespaceID string
	Type        string
	Text        string
	Embedding   []float32
}

// ScoredBlock is a search hit with its cosine similarity.
type ScoredBlock struct {
	BlockID string  `json:"block_id"`
	Score   float64 `json:"score"`
}

// Query filters a similarity search. Empty NamespaceID or Type matches
// everything.
type Query struct {
	Embedding   []float32
	NamespaceID string
	Type        string
	TopK        int
}

// Index is the searchable embedding mirror.
type Index interface {
	Upsert(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, blockID string) error
	Search(ctx context.Context, q Query) ([]*ScoredBlock, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error

	// ReindexAll clears the index and repopulates it from records.
	ReindexAll(ctx context.Context, records []*Record) error

	Close() error
}
