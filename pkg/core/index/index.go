// Package index chunks persisted documents and hands them to the
// VectorIndex capability through a bounded, retrying worker.
package index

import "context"

// Chunk is one unit of indexable text with retrieval metadata.
type Chunk struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// SearchHit is one retrieval result.
type SearchHit struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score"`
}

// VectorIndex is the external semantic store capability.
type VectorIndex interface {
	AddChunks(ctx context.Context, docID string, chunks []Chunk) ([]string, error)
	Search(ctx context.Context, query string, topK int, filters map[string]string) ([]SearchHit, error)
	Delete(ctx context.Context, docID string) error
}
