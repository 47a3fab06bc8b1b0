package ledger

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/models"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New("", 3)
	require.NoError(t, err)
	return l
}

func TestRegisterComputesStableHash(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cas.csv", "fund,nav\nAlpha,100\n")

	l := newTestLedger(t)
	rec, created, err := l.Register(context.Background(), path, "INV-A")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, rec.ContentHash, 64)
	assert.Equal(t, models.StateDiscovered, rec.State)
	assert.Equal(t, rec.ContentHash[:16], rec.DocID())

	// Same content at a different path maps to the same record.
	path2 := writeFile(t, dir, "copy.csv", "fund,nav\nAlpha,100\n")
	rec2, created2, err := l.Register(context.Background(), path2, "INV-A")
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, rec.ContentHash, rec2.ContentHash)
}

func TestConcurrentRegisterSameContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "report.csv", "a,b\n1,2\n")

	l := newTestLedger(t)
	const n = 16
	var wg sync.WaitGroup
	createdCount := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := l.Register(context.Background(), path, "INV-A")
			require.NoError(t, err)
			createdCount <- created
		}()
	}
	wg.Wait()
	close(createdCount)

	winners := 0
	for c := range createdCount {
		if c {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one register creates the record")
}

func TestTransitionCAS(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x.csv", "data")

	l := newTestLedger(t)
	rec, _, err := l.Register(context.Background(), path, "INV-A")
	require.NoError(t, err)
	hash := rec.ContentHash

	require.NoError(t, l.Transition(hash, models.StateDiscovered, models.StateQueued, ""))
	require.NoError(t, l.Transition(hash, models.StateQueued, models.StateParsing, ""))

	// Stale CAS loses.
	err = l.Transition(hash, models.StateQueued, models.StateParsing, "")
	require.Error(t, err)
	assert.Equal(t, fault.PersistenceConflict, fault.KindOf(err))

	// Illegal jump is fatal.
	err = l.Transition(hash, models.StateParsing, models.StateEmbedded, "")
	require.Error(t, err)
	assert.Equal(t, fault.Fatal, fault.KindOf(err))
}

func TestFailedRetryAndReset(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x.csv", "data")

	l, err := New("", 2)
	require.NoError(t, err)
	rec, _, err := l.Register(context.Background(), path, "INV-A")
	require.NoError(t, err)
	hash := rec.ContentHash

	require.NoError(t, l.Transition(hash, models.StateDiscovered, models.StateQueued, ""))
	require.NoError(t, l.Transition(hash, models.StateQueued, models.StateParsing, ""))
	require.NoError(t, l.Transition(hash, models.StateParsing, models.StateFailed, "pdftotext crashed"))

	got, _ := l.Get(hash)
	assert.Equal(t, 1, got.Attempts)
	assert.True(t, l.Retriable(hash))

	require.NoError(t, l.RetryFailed(hash))
	require.NoError(t, l.Transition(hash, models.StateQueued, models.StateParsing, ""))
	require.NoError(t, l.Transition(hash, models.StateParsing, models.StateFailed, "pdftotext crashed again"))

	// max_attempts = 2: now terminal until operator reset.
	assert.False(t, l.Retriable(hash))
	require.Error(t, l.RetryFailed(hash))

	require.NoError(t, l.Reset(hash))
	got, _ = l.Get(hash)
	assert.Equal(t, models.StateQueued, got.State)
	assert.Equal(t, 0, got.Attempts)
}

func TestRequeueOnCancelKeepsAttempts(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x.csv", "data")

	l := newTestLedger(t)
	rec, _, err := l.Register(context.Background(), path, "INV-A")
	require.NoError(t, err)
	hash := rec.ContentHash

	require.NoError(t, l.Transition(hash, models.StateDiscovered, models.StateQueued, ""))
	require.NoError(t, l.Transition(hash, models.StateQueued, models.StateParsing, ""))
	require.NoError(t, l.Requeue(hash))

	got, _ := l.Get(hash)
	assert.Equal(t, models.StateQueued, got.State)
	assert.Equal(t, 0, got.Attempts)
}

func TestSeenUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x.csv", "data")
	info, err := os.Stat(path)
	require.NoError(t, err)

	l := newTestLedger(t)
	rec, _, err := l.Register(context.Background(), path, "INV-A")
	require.NoError(t, err)
	hash := rec.ContentHash

	assert.False(t, l.SeenUnchanged(path, info.ModTime(), info.Size()), "not terminal yet")

	require.NoError(t, l.Transition(hash, models.StateDiscovered, models.StateQueued, ""))
	require.NoError(t, l.Transition(hash, models.StateQueued, models.StateParsing, ""))
	require.NoError(t, l.Transition(hash, models.StateParsing, models.StateExtracting, ""))
	require.NoError(t, l.Transition(hash, models.StateExtracting, models.StatePersisted, ""))
	require.NoError(t, l.Transition(hash, models.StatePersisted, models.StateEmbedded, ""))

	assert.True(t, l.SeenUnchanged(path, info.ModTime(), info.Size()))
	assert.False(t, l.SeenUnchanged(path, info.ModTime().Add(time.Second), info.Size()), "changed mtime re-processes")
}

func TestStatsByState(t *testing.T) {
	dir := t.TempDir()
	l := newTestLedger(t)

	for _, name := range []string{"a.csv", "b.csv", "c.csv"} {
		path := writeFile(t, dir, name, "content-"+name)
		_, _, err := l.Register(context.Background(), path, "INV-A")
		require.NoError(t, err)
	}

	stats := l.StatsByState()
	assert.Equal(t, 3, stats[models.StateDiscovered])
}

func TestSnapshotRoundTripRevertsInFlight(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "ledger.json")
	path := writeFile(t, dir, "x.csv", "data")

	l, err := New(snapPath, 3)
	require.NoError(t, err)
	rec, _, err := l.Register(context.Background(), path, "INV-A")
	require.NoError(t, err)
	hash := rec.ContentHash

	require.NoError(t, l.Transition(hash, models.StateDiscovered, models.StateQueued, ""))
	require.NoError(t, l.Transition(hash, models.StateQueued, models.StateParsing, ""))

	// Simulated crash: reload from disk. Parsing reverts to Queued.
	l2, err := New(snapPath, 3)
	require.NoError(t, err)
	got, ok := l2.Get(hash)
	require.True(t, ok)
	assert.Equal(t, models.StateQueued, got.State)

	// Hash cache survives the restart.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, l2.SeenUnchanged(path, info.ModTime(), info.Size()))
}

func TestEmbeddingRetryCandidates(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "x.csv", "data")

	l := newTestLedger(t)
	rec, _, err := l.Register(context.Background(), path, "INV-A")
	require.NoError(t, err)
	hash := rec.ContentHash

	require.NoError(t, l.Transition(hash, models.StateDiscovered, models.StateQueued, ""))
	require.NoError(t, l.Transition(hash, models.StateQueued, models.StateParsing, ""))
	require.NoError(t, l.Transition(hash, models.StateParsing, models.StateExtracting, ""))
	require.NoError(t, l.Transition(hash, models.StateExtracting, models.StatePersisted, ""))
	require.NoError(t, l.SetEmbedding(hash, models.EmbeddingFailed, "index down"))

	cands := l.EmbeddingRetryCandidates(5)
	require.Len(t, cands, 1)
	assert.Equal(t, hash, cands[0].ContentHash)

	// Exhausted candidates drop out.
	for i := 0; i < 4; i++ {
		require.NoError(t, l.SetEmbedding(hash, models.EmbeddingFailed, "index down"))
	}
	assert.Empty(t, l.EmbeddingRetryCandidates(5))
}
