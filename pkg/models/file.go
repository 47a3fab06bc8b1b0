package models

import "time"

// FileState is the lifecycle state of a discovered file.
// Transitions are strictly forward except Failed -> Queued on retry.
type FileState string

const (
	StateDiscovered FileState = "discovered"
	StateQueued     FileState = "queued"
	StateParsing    FileState = "parsing"
	StateExtracting FileState = "extracting"
	StatePersisted  FileState = "persisted"
	StateEmbedded   FileState = "embedded"
	StateFailed     FileState = "failed"
	StateSkipped    FileState = "skipped"
)

// Terminal reports whether no further pipeline work is expected for the state.
// Failed is terminal only until an operator reset.
func (s FileState) Terminal() bool {
	switch s {
	case StateEmbedded, StateSkipped, StateFailed:
		return true
	}
	return false
}

// EmbeddingStatus tracks the outcome of vector indexing separately from the
// file state: a persisted document whose indexing failed stays Persisted.
type EmbeddingStatus string

const (
	EmbeddingPending EmbeddingStatus = "pending"
	EmbeddingDone    EmbeddingStatus = "done"
	EmbeddingFailed  EmbeddingStatus = "failed"
)

// FileRecord is the FileLedger's view of one file. The ledger owns the
// lifecycle; everything else references records by content hash.
type FileRecord struct {
	Path         string    `json:"path"`
	ContentHash  string    `json:"content_hash"`
	Size         int64     `json:"size"`
	ModTime      time.Time `json:"mtime"`
	DiscoveredAt time.Time `json:"discovered_at"`
	State        FileState `json:"state"`
	Error        string    `json:"error,omitempty"`
	Attempts     int       `json:"attempts"`

	InvestorCode    string          `json:"investor_code,omitempty"`
	EmbeddingStatus EmbeddingStatus `json:"embedding_status,omitempty"`
	EmbeddingError  string          `json:"embedding_error,omitempty"`
	EmbedAttempts   int             `json:"embed_attempts,omitempty"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Clone returns a copy so ledger internals never escape by reference.
func (r *FileRecord) Clone() *FileRecord {
	c := *r
	return &c
}

// DocID derives the stable document id from the content hash.
func (r *FileRecord) DocID() string {
	return DocIDFromHash(r.ContentHash)
}

// DocIDFromHash returns the first 16 hex characters of a SHA-256 content hash.
func DocIDFromHash(hash string) string {
	if len(hash) < 16 {
		return hash
	}
	return hash[:16]
}
