// Package watch implements discovery: recursive sweeps plus filesystem
// event subscriptions over the configured investor roots, feeding a single
// stream of candidate files.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"fundpipe/pkg/config"
	"fundpipe/pkg/core/metrics"
)

// Cause records why a file surfaced.
type Cause string

const (
	CauseSweep    Cause = "sweep"
	CauseCreated  Cause = "created"
	CauseModified Cause = "modified"
)

// Event is one candidate file observation.
type Event struct {
	Path         string
	InvestorCode string
	Cause        Cause
	ObservedAt   time.Time
}

// Watcher emits candidate files from sweeps and fsnotify events.
type Watcher struct {
	cfg config.Config
	out chan Event
	log *logrus.Entry

	// resubscribe backoff bounds for the event subsystem
	backoffMin time.Duration
	backoffMax time.Duration
}

// New creates a Watcher. The outbound channel is unbuffered: a slow consumer
// pauses sweeps, which is the intended backpressure.
func New(cfg config.Config) *Watcher {
	return &Watcher{
		cfg:        cfg,
		out:        make(chan Event),
		log:        logrus.WithField("component", "watcher"),
		backoffMin: time.Second,
		backoffMax: 30 * time.Second,
	}
}

// Events is the outbound candidate stream.
func (w *Watcher) Events() <-chan Event { return w.out }

// Run starts the initial sweep, the cron rescans, and the event loop.
// It blocks until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	c := cron.New()
	if w.cfg.RescanCron != "" {
		if _, err := c.AddFunc(w.cfg.RescanCron, func() { w.SweepAll(ctx) }); err != nil {
			w.log.WithError(err).WithField("cron", w.cfg.RescanCron).Error("invalid rescan cron, periodic sweeps disabled")
		} else {
			c.Start()
			defer c.Stop()
		}
	}

	go w.SweepAll(ctx)
	w.eventLoop(ctx)
}

// SweepAll walks every configured root. Unreadable roots are logged and
// retried on the next cron tick; they never halt the component.
func (w *Watcher) SweepAll(ctx context.Context) (emitted int) {
	for _, root := range w.cfg.Roots {
		n, err := w.sweepRoot(ctx, root)
		emitted += n
		if err != nil {
			w.log.WithError(err).WithField("root", root.Path).Warn("sweep failed, will retry on next tick")
		}
	}
	return emitted
}

func (w *Watcher) sweepRoot(ctx context.Context, root config.Root) (int, error) {
	emitted := 0
	err := filepath.WalkDir(root.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Skip unreadable subtrees, keep walking the rest.
			w.log.WithError(err).WithField("path", path).Debug("walk error")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			// Operator convention: directories starting with "!" are
			// excluded archives.
			if strings.HasPrefix(d.Name(), "!") {
				return fs.SkipDir
			}
			return nil
		}
		if !w.admit(path, d) {
			return nil
		}
		select {
		case w.out <- Event{Path: path, InvestorCode: root.InvestorCode, Cause: CauseSweep, ObservedAt: time.Now().UTC()}:
			metrics.FilesDiscovered.WithLabelValues(string(CauseSweep)).Inc()
			emitted++
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
	if err == context.Canceled || err == context.DeadlineExceeded {
		return emitted, nil
	}
	return emitted, err
}

// admit applies the extension and size filters, incrementing drop counters.
func (w *Watcher) admit(path string, d fs.DirEntry) bool {
	if !w.cfg.SupportsExtension(filepath.Ext(path)) {
		metrics.UnsupportedDropped.Inc()
		return false
	}
	info, err := d.Info()
	if err != nil {
		return false
	}
	if info.Size() > w.cfg.MaxFileSizeBytes() {
		metrics.OversizeDropped.Inc()
		w.log.WithFields(logrus.Fields{"path": path, "size": info.Size()}).Debug("oversize file dropped")
		return false
	}
	return true
}

// admitPath is the event-side variant of admit, stat'ing the path itself.
func (w *Watcher) admitPath(path string) bool {
	if !w.cfg.SupportsExtension(filepath.Ext(path)) {
		metrics.UnsupportedDropped.Inc()
		return false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if info.Size() > w.cfg.MaxFileSizeBytes() {
		metrics.OversizeDropped.Inc()
		return false
	}
	return true
}

// eventLoop subscribes to filesystem notifications, resubscribing with
// exponential backoff on failure.
func (w *Watcher) eventLoop(ctx context.Context) {
	backoff := w.backoffMin
	for {
		if ctx.Err() != nil {
			return
		}
		err := w.subscribe(ctx)
		if ctx.Err() != nil {
			return
		}
		w.log.WithError(err).WithField("retry_in", backoff).Warn("event subscription lost, resubscribing")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff *= 2
		if backoff > w.backoffMax {
			backoff = w.backoffMax
		}
	}
}

// subscribe runs one fsnotify session over all roots until it fails or the
// context ends. New directories are added to the watch as they appear.
func (w *Watcher) subscribe(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	for _, root := range w.cfg.Roots {
		if err := addRecursive(fsw, root.Path); err != nil {
			w.log.WithError(err).WithField("root", root.Path).Warn("cannot watch root")
		}
	}

	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		if ev.Op&fsnotify.Create != 0 && !strings.HasPrefix(filepath.Base(ev.Name), "!") {
			if err := addRecursive(fsw, ev.Name); err != nil {
				w.log.WithError(err).WithField("dir", ev.Name).Debug("cannot watch new dir")
			}
		}
		return
	}

	if !w.admitPath(ev.Name) {
		return
	}

	code, ok := w.cfg.InvestorForPath(ev.Name)
	if !ok {
		return
	}

	cause := CauseModified
	if ev.Op&fsnotify.Create != 0 {
		cause = CauseCreated
	}

	select {
	case w.out <- Event{Path: ev.Name, InvestorCode: code, Cause: cause, ObservedAt: time.Now().UTC()}:
		metrics.FilesDiscovered.WithLabelValues(string(cause)).Inc()
	case <-ctx.Done():
	}
}

// addRecursive watches dir and every non-excluded subdirectory.
func addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), "!") && path != dir {
			return fs.SkipDir
		}
		return fsw.Add(path)
	})
}
