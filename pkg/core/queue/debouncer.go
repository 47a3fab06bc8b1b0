// Package queue implements the debouncer between discovery and the worker
// pipeline: rapid events per path coalesce into one work item, duplicates
// are skipped via the ledger, and a bounded channel applies backpressure.
package queue

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundpipe/pkg/core/metrics"
	"fundpipe/pkg/core/watch"
)

// WorkItem is one unit of pipeline work. Hash is empty until the ledger
// registers the file.
type WorkItem struct {
	Path         string
	InvestorCode string
	Cause        watch.Cause
	Attempt      int
	EnqueuedAt   time.Time
}

// DedupOracle is the ledger capability the debouncer consults before
// enqueueing: has this (path, mtime, size) already reached a terminal
// non-Failed state?
type DedupOracle interface {
	SeenUnchanged(path string, mtime time.Time, size int64) bool
}

// Debouncer coalesces discovery events per path and feeds the bounded work
// channel.
type Debouncer struct {
	window time.Duration
	oracle DedupOracle
	out    chan WorkItem
	log    *logrus.Entry

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]watch.Event

	// overflow holds items ready for dispatch when the out channel is full.
	// Beyond overflowCap, entries coalesce by path (newest wins).
	overflow    []WorkItem
	overflowCap int
	signal      chan struct{}
}

// New creates a Debouncer with the given per-path window and work channel
// capacity.
func New(window time.Duration, capacity int, oracle DedupOracle) *Debouncer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Debouncer{
		window:      window,
		oracle:      oracle,
		out:         make(chan WorkItem, capacity),
		log:         logrus.WithField("component", "debouncer"),
		timers:      make(map[string]*time.Timer),
		pending:     make(map[string]watch.Event),
		overflowCap: capacity,
		signal:      make(chan struct{}, 1),
	}
}

// Work is the outbound bounded work channel.
func (d *Debouncer) Work() <-chan WorkItem { return d.out }

// Depth reports how many items are buffered (channel plus overflow).
func (d *Debouncer) Depth() int {
	d.mu.Lock()
	n := len(d.overflow)
	d.mu.Unlock()
	return n + len(d.out)
}

// Run consumes discovery events until ctx is canceled or the input closes.
func (d *Debouncer) Run(ctx context.Context, in <-chan watch.Event) {
	go d.dispatch(ctx)
	for {
		select {
		case ev, ok := <-in:
			if !ok {
				return
			}
			d.observe(ctx, ev)
		case <-ctx.Done():
			d.stopTimers()
			return
		}
	}
}

// observe starts or resets the per-path debounce timer.
func (d *Debouncer) observe(ctx context.Context, ev watch.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[ev.Path] = ev
	if t, ok := d.timers[ev.Path]; ok {
		t.Reset(d.window)
		return
	}
	path := ev.Path
	d.timers[path] = time.AfterFunc(d.window, func() {
		d.fire(ctx, path)
	})
}

// fire runs when a path's debounce window expires: consult the ledger, then
// enqueue at most one work item.
func (d *Debouncer) fire(ctx context.Context, path string) {
	d.mu.Lock()
	ev, ok := d.pending[path]
	delete(d.pending, path)
	delete(d.timers, path)
	d.mu.Unlock()
	if !ok || ctx.Err() != nil {
		return
	}

	if info, err := os.Stat(path); err == nil {
		if d.oracle != nil && d.oracle.SeenUnchanged(path, info.ModTime(), info.Size()) {
			metrics.SkippedDuplicate.Inc()
			d.log.WithField("path", path).Debug("unchanged content already processed")
			return
		}
	} else {
		// Deleted between event and window expiry.
		d.log.WithError(err).WithField("path", path).Debug("file vanished before enqueue")
		return
	}

	d.enqueue(WorkItem{
		Path:         ev.Path,
		InvestorCode: ev.InvestorCode,
		Cause:        ev.Cause,
		EnqueuedAt:   time.Now().UTC(),
	})
}

// enqueue appends to the overflow buffer and wakes the dispatcher. Items
// beyond the secondary cap coalesce by path, newest wins.
func (d *Debouncer) enqueue(item WorkItem) {
	d.mu.Lock()
	if len(d.overflow) >= d.overflowCap {
		replaced := false
		for i := range d.overflow {
			if d.overflow[i].Path == item.Path {
				d.overflow[i] = item
				replaced = true
				break
			}
		}
		if !replaced {
			// Drop the oldest to stay within the cap.
			d.overflow = append(d.overflow[1:], item)
		}
	} else {
		d.overflow = append(d.overflow, item)
	}
	d.mu.Unlock()

	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// dispatch drains the overflow buffer into the bounded out channel. The
// blocking send is the backpressure point: when consumers stall, overflow
// grows and upstream sweeps pause on the watcher's unbuffered channel.
func (d *Debouncer) dispatch(ctx context.Context) {
	for {
		d.mu.Lock()
		var item WorkItem
		have := len(d.overflow) > 0
		if have {
			item = d.overflow[0]
			d.overflow = d.overflow[1:]
		}
		d.mu.Unlock()

		if !have {
			select {
			case <-d.signal:
				continue
			case <-ctx.Done():
				return
			}
		}

		select {
		case d.out <- item:
			metrics.QueueDepth.Set(float64(d.Depth()))
		case <-ctx.Done():
			return
		}
	}
}

func (d *Debouncer) stopTimers() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
		delete(d.pending, path)
	}
}
