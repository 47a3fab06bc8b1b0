package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"

	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/models"
)

// snapshot is the on-disk ledger state. The hash cache is persisted so a
// restart does not re-hash unchanged files.
type snapshot struct {
	Records   map[string]*models.FileRecord `json:"records"`
	HashCache []cacheEntry                  `json:"hash_cache"`
}

type cacheEntry struct {
	Path  string `json:"path"`
	MTime int64  `json:"mtime"`
	Size  int64  `json:"size"`
	Hash  string `json:"hash"`
}

// load restores state from the snapshot file. Records caught mid-pipeline by
// a crash (Parsing/Extracting) revert to Queued so the next cycle retries
// them; the persistence transaction guarantees no partial rows exist.
func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fault.Wrap(fault.Transient, "ledger.load", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fault.Wrap(fault.Fatal, "ledger.load", err)
	}

	for hash, rec := range snap.Records {
		if rec.State == models.StateParsing || rec.State == models.StateExtracting {
			rec.State = models.StateQueued
		}
		l.records[hash] = rec
	}
	for _, e := range snap.HashCache {
		l.hashCache[hashKey{Path: e.Path, MTime: e.MTime, Size: e.Size}] = e.Hash
	}
	return nil
}

// persistLocked writes the snapshot with write-tmp-sync-rename. Callers hold
// the write lock. Persistence failures are logged, not fatal: the ledger
// keeps serving from memory.
func (l *Ledger) persistLocked() {
	if l.path == "" {
		return
	}

	snap := snapshot{Records: l.records}
	for key, hash := range l.hashCache {
		snap.HashCache = append(snap.HashCache, cacheEntry{
			Path: key.Path, MTime: key.MTime, Size: key.Size, Hash: hash,
		})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		l.log.WithError(err).Error("marshal ledger snapshot")
		return
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		l.log.WithError(err).Error("create ledger dir")
		return
	}

	tmp := l.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		l.log.WithError(err).Error("create ledger tmp")
		return
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		l.log.WithError(err).Error("write ledger tmp")
		return
	}
	if err := f.Sync(); err != nil {
		f.Close()
		l.log.WithError(err).Error("sync ledger tmp")
		return
	}
	if err := f.Close(); err != nil {
		l.log.WithError(err).Error("close ledger tmp")
		return
	}
	if err := os.Rename(tmp, l.path); err != nil {
		l.log.WithError(err).Error("rename ledger snapshot")
	}
}
