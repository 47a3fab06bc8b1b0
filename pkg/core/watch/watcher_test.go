package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundpipe/pkg/config"
)

func sweepConfig(root string) config.Config {
	cfg := config.Default()
	cfg.Roots = []config.Root{{Path: root, InvestorCode: "INV-A"}}
	cfg.RescanCron = "" // no cron in tests
	return cfg
}

func collect(t *testing.T, w *Watcher, done <-chan struct{}) []Event {
	t.Helper()
	var events []Event
	for {
		select {
		case ev := <-w.Events():
			events = append(events, ev)
		case <-done:
			// Drain whatever is still buffered.
			for {
				select {
				case ev := <-w.Events():
					events = append(events, ev)
				default:
					return events
				}
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out collecting events")
		}
	}
}

func TestSweepEmitsSupportedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "fund-x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fund-x", "cas.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fund-x", "flows.csv"), []byte("a,b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("skip me"), 0o644))

	w := New(sweepConfig(root))
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		n := w.SweepAll(ctx)
		assert.Equal(t, 2, n)
	}()

	events := collect(t, w, done)
	require.Len(t, events, 2)
	paths := []string{events[0].Path, events[1].Path}
	assert.Contains(t, paths, filepath.Join(root, "fund-x", "cas.pdf"))
	assert.Contains(t, paths, filepath.Join(root, "fund-x", "flows.csv"))
	for _, ev := range events {
		assert.Equal(t, CauseSweep, ev.Cause)
		assert.Equal(t, "INV-A", ev.InvestorCode)
	}
}

func TestSweepPrunesExcludedDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "!archive"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "!archive", "old.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "current.pdf"), []byte("%PDF"), 0o644))

	w := New(sweepConfig(root))
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.SweepAll(context.Background())
	}()

	events := collect(t, w, done)
	require.Len(t, events, 1)
	assert.Equal(t, filepath.Join(root, "current.pdf"), events[0].Path)
}

func TestSweepSizeBoundary(t *testing.T) {
	root := t.TempDir()
	cfg := sweepConfig(root)
	cfg.MaxFileSizeMB = 1

	exactly := make([]byte, cfg.MaxFileSizeBytes())
	require.NoError(t, os.WriteFile(filepath.Join(root, "exact.csv"), exactly, 0o644))
	oneOver := make([]byte, cfg.MaxFileSizeBytes()+1)
	require.NoError(t, os.WriteFile(filepath.Join(root, "over.csv"), oneOver, 0o644))

	w := New(cfg)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.SweepAll(context.Background())
	}()

	events := collect(t, w, done)
	require.Len(t, events, 1, "file exactly at the limit is accepted, one byte over is not")
	assert.Equal(t, filepath.Join(root, "exact.csv"), events[0].Path)
}

func TestEventSubscriptionSeesNewFile(t *testing.T) {
	root := t.TempDir()
	w := New(sweepConfig(root))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go w.eventLoop(ctx)
	time.Sleep(200 * time.Millisecond) // let the subscription settle

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.csv"), []byte("a,b\n1,2\n"), 0o644))

	select {
	case ev := <-w.Events():
		assert.Equal(t, filepath.Join(root, "new.csv"), ev.Path)
		assert.Equal(t, "INV-A", ev.InvestorCode)
	case <-time.After(5 * time.Second):
		t.Fatal("no event for created file")
	}
}
