// Package ledger implements the FileLedger: the content-hash registry and
// the single source of truth for file lifecycle state. All state changes go
// through its CAS API, which is what serializes pipeline attempts per doc.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/models"
)

// hashKey identifies a (path, mtime, size) tuple for the hash cache: the
// content hash is computed exactly once per tuple.
type hashKey struct {
	Path  string
	MTime int64
	Size  int64
}

// allowed holds the forward transitions of the state machine. Failed->Queued
// is handled by Reset/retry, Parsing/Extracting->Queued by cancellation.
var allowed = map[models.FileState][]models.FileState{
	models.StateDiscovered: {models.StateQueued, models.StateSkipped},
	models.StateQueued:     {models.StateParsing, models.StateSkipped, models.StateFailed},
	models.StateParsing:    {models.StateExtracting, models.StateFailed, models.StateQueued},
	models.StateExtracting: {models.StatePersisted, models.StateFailed, models.StateQueued, models.StateSkipped},
	models.StatePersisted:  {models.StateEmbedded},
	models.StateFailed:     {models.StateQueued},
}

// Ledger is the in-process FileLedger with JSON snapshot persistence.
type Ledger struct {
	mu          sync.RWMutex
	records     map[string]*models.FileRecord // keyed by content hash
	hashCache   map[hashKey]string
	path        string // snapshot file; empty disables persistence
	maxAttempts int
	log         *logrus.Entry
}

// New creates a ledger, loading a snapshot from path if one exists.
// An empty path keeps the ledger memory-only (tests).
func New(path string, maxAttempts int) (*Ledger, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	l := &Ledger{
		records:     make(map[string]*models.FileRecord),
		hashCache:   make(map[hashKey]string),
		path:        path,
		maxAttempts: maxAttempts,
		log:         logrus.WithField("component", "ledger"),
	}
	if path != "" {
		if err := l.load(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Register computes the file's content hash (cached per path/mtime/size) and
// inserts a new Discovered record, or returns the existing record for that
// content. The second return is true when the record was created by this
// call; concurrent registers on identical content race to create and the
// losers observe the existing record.
func (l *Ledger) Register(ctx context.Context, path, investorCode string) (*models.FileRecord, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, fault.Wrap(fault.Transient, "ledger.register", err)
	}

	key := hashKey{Path: path, MTime: info.ModTime().UnixNano(), Size: info.Size()}
	hash, err := l.cachedHash(ctx, key)
	if err != nil {
		return nil, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[hash]; ok {
		return rec.Clone(), false, nil
	}

	now := time.Now().UTC()
	rec := &models.FileRecord{
		Path:            path,
		ContentHash:     hash,
		Size:            info.Size(),
		ModTime:         info.ModTime().UTC(),
		DiscoveredAt:    now,
		State:           models.StateDiscovered,
		InvestorCode:    investorCode,
		EmbeddingStatus: models.EmbeddingPending,
		UpdatedAt:       now,
	}
	l.records[hash] = rec
	l.persistLocked()
	return rec.Clone(), true, nil
}

// cachedHash returns the content hash for the tuple, computing and caching
// it on a miss.
func (l *Ledger) cachedHash(ctx context.Context, key hashKey) (string, error) {
	l.mu.RLock()
	hash, ok := l.hashCache[key]
	l.mu.RUnlock()
	if ok {
		return hash, nil
	}

	hash, err := HashFile(ctx, key.Path)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	l.hashCache[key] = hash
	l.mu.Unlock()
	return hash, nil
}

// HashFile streams a file through SHA-256.
func HashFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fault.Wrap(fault.Transient, "ledger.hash", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 256*1024)
	for {
		if err := ctx.Err(); err != nil {
			return "", fault.Wrap(fault.Transient, "ledger.hash", err)
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", fault.Wrap(fault.Transient, "ledger.hash", rerr)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Transition performs an atomic compare-and-swap of the record state.
// A mismatch between the expected and actual state returns a conflict.
func (l *Ledger) Transition(hash string, from, to models.FileState, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[hash]
	if !ok {
		return fault.New(fault.Fatal, "ledger.transition", "unknown record %s", models.DocIDFromHash(hash))
	}
	if rec.State != from {
		return fault.New(fault.PersistenceConflict, "ledger.transition",
			"state is %s, expected %s (doc %s)", rec.State, from, rec.DocID())
	}
	if !transitionAllowed(from, to) {
		return fault.New(fault.Fatal, "ledger.transition",
			"illegal transition %s -> %s (doc %s)", from, to, rec.DocID())
	}

	rec.State = to
	rec.Error = errMsg
	rec.UpdatedAt = time.Now().UTC()
	if to == models.StateFailed {
		rec.Attempts++
	}
	l.persistLocked()
	return nil
}

func transitionAllowed(from, to models.FileState) bool {
	for _, t := range allowed[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Requeue returns a canceled in-flight record to Queued without bumping
// attempts. Only Parsing and Extracting can be requeued this way.
func (l *Ledger) Requeue(hash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[hash]
	if !ok {
		return fault.New(fault.Fatal, "ledger.requeue", "unknown record %s", models.DocIDFromHash(hash))
	}
	if rec.State != models.StateParsing && rec.State != models.StateExtracting {
		return fault.New(fault.PersistenceConflict, "ledger.requeue",
			"cannot requeue from %s (doc %s)", rec.State, rec.DocID())
	}
	rec.State = models.StateQueued
	rec.UpdatedAt = time.Now().UTC()
	l.persistLocked()
	return nil
}

// Reset moves a Failed record back to Queued for an operator-driven retry
// and clears the attempt counter.
func (l *Ledger) Reset(hash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[hash]
	if !ok {
		return fault.New(fault.Fatal, "ledger.reset", "unknown record %s", models.DocIDFromHash(hash))
	}
	if rec.State != models.StateFailed {
		return fault.New(fault.PersistenceConflict, "ledger.reset",
			"record is %s, not failed (doc %s)", rec.State, rec.DocID())
	}
	rec.State = models.StateQueued
	rec.Error = ""
	rec.Attempts = 0
	rec.UpdatedAt = time.Now().UTC()
	l.persistLocked()
	return nil
}

// Retriable reports whether a Failed record still has attempts left.
func (l *Ledger) Retriable(hash string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[hash]
	return ok && rec.State == models.StateFailed && rec.Attempts < l.maxAttempts
}

// RetryFailed moves a Failed record with remaining attempts back to Queued,
// keeping its attempt counter.
func (l *Ledger) RetryFailed(hash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[hash]
	if !ok {
		return fault.New(fault.Fatal, "ledger.retry", "unknown record %s", models.DocIDFromHash(hash))
	}
	if rec.State != models.StateFailed {
		return fault.New(fault.PersistenceConflict, "ledger.retry", "record is %s", rec.State)
	}
	if rec.Attempts >= l.maxAttempts {
		return fault.New(fault.PersistenceConflict, "ledger.retry",
			"attempts exhausted (%d/%d) for doc %s", rec.Attempts, l.maxAttempts, rec.DocID())
	}
	rec.State = models.StateQueued
	rec.UpdatedAt = time.Now().UTC()
	l.persistLocked()
	return nil
}

// Get returns a copy of the record for a content hash.
func (l *Ledger) Get(hash string) (*models.FileRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[hash]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// SeenUnchanged reports whether a path with the given mtime and size maps to
// content already in a terminal non-Failed state. The Debouncer uses this to
// skip re-enqueueing unchanged files without re-hashing them.
func (l *Ledger) SeenUnchanged(path string, mtime time.Time, size int64) bool {
	key := hashKey{Path: path, MTime: mtime.UnixNano(), Size: size}
	l.mu.RLock()
	defer l.mu.RUnlock()
	hash, ok := l.hashCache[key]
	if !ok {
		return false
	}
	rec, ok := l.records[hash]
	if !ok {
		return false
	}
	return rec.State.Terminal() && rec.State != models.StateFailed
}

// SetEmbedding records the vector indexing outcome for a persisted record.
func (l *Ledger) SetEmbedding(hash string, status models.EmbeddingStatus, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[hash]
	if !ok {
		return fault.New(fault.Fatal, "ledger.embedding", "unknown record %s", models.DocIDFromHash(hash))
	}
	rec.EmbeddingStatus = status
	rec.EmbeddingError = errMsg
	if status == models.EmbeddingFailed {
		rec.EmbedAttempts++
	}
	rec.UpdatedAt = time.Now().UTC()
	l.persistLocked()
	return nil
}

// StatsByState counts records per state.
func (l *Ledger) StatsByState() map[models.FileState]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	stats := make(map[models.FileState]int)
	for _, rec := range l.records {
		stats[rec.State]++
	}
	return stats
}

// ByState returns copies of all records in the given state.
func (l *Ledger) ByState(state models.FileState) []*models.FileRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*models.FileRecord
	for _, rec := range l.records {
		if rec.State == state {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// EmbeddingRetryCandidates returns persisted records whose indexing failed
// with fewer than maxEmbedAttempts attempts.
func (l *Ledger) EmbeddingRetryCandidates(maxEmbedAttempts int) []*models.FileRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*models.FileRecord
	for _, rec := range l.records {
		if rec.State == models.StatePersisted &&
			rec.EmbeddingStatus == models.EmbeddingFailed &&
			rec.EmbedAttempts < maxEmbedAttempts {
			out = append(out, rec.Clone())
		}
	}
	return out
}
