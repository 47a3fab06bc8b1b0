package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex is an in-process VectorIndex backed by token-overlap scoring.
// It stands in for the external vector store in tests and single-node
// deployments.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks map[string][]storedChunk // keyed by doc_id
	nextID int
}

type storedChunk struct {
	id       string
	text     string
	tokens   map[string]int
	metadata map[string]string
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{chunks: make(map[string][]storedChunk)}
}

func (m *MemoryIndex) AddChunks(_ context.Context, docID string, chunks []Chunk) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		m.nextID++
		id := fmt.Sprintf("%s-%d", docID, m.nextID)
		m.chunks[docID] = append(m.chunks[docID], storedChunk{
			id:       id,
			text:     c.Text,
			tokens:   tokenize(c.Text),
			metadata: c.Metadata,
		})
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *MemoryIndex) Search(_ context.Context, query string, topK int, filters map[string]string) ([]SearchHit, error) {
	qTokens := tokenize(query)
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []SearchHit
	for _, chunks := range m.chunks {
		for _, c := range chunks {
			if !matchesFilters(c.metadata, filters) {
				continue
			}
			score := overlap(qTokens, c.tokens)
			if score <= 0 {
				continue
			}
			hits = append(hits, SearchHit{ID: c.id, Text: c.text, Metadata: c.metadata, Score: score})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *MemoryIndex) Delete(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, docID)
	return nil
}

// Count reports how many chunks are stored for a document.
func (m *MemoryIndex) Count(docID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks[docID])
}

func matchesFilters(metadata, filters map[string]string) bool {
	for k, v := range filters {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

func tokenize(text string) map[string]int {
	tokens := make(map[string]int)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:()[]")
		if len(tok) < 2 {
			continue
		}
		tokens[tok]++
	}
	return tokens
}

func overlap(query, doc map[string]int) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for tok := range query {
		if doc[tok] > 0 {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}
