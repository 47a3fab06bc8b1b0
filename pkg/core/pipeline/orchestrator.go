// Package pipeline wires discovery, parsing, extraction, persistence, and
// indexing into the per-document flow. The FileLedger's CAS transitions
// serialize attempts per content hash; the orchestrator never holds its own
// per-document locks.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"fundpipe/pkg/config"
	"fundpipe/pkg/core/classify"
	"fundpipe/pkg/core/extract"
	"fundpipe/pkg/core/index"
	"fundpipe/pkg/core/ledger"
	"fundpipe/pkg/core/metrics"
	"fundpipe/pkg/core/normalize"
	"fundpipe/pkg/core/queue"
	"fundpipe/pkg/core/store"
	"fundpipe/pkg/core/watch"
	"fundpipe/pkg/models"
)

// DocParser is the parse stage capability.
type DocParser interface {
	Parse(ctx context.Context, path string) (*models.ParsedDoc, error)
}

// DocWriter commits one document's WriteSet transactionally.
type DocWriter interface {
	Commit(ctx context.Context, ws *store.WriteSet) error
}

// ChunkIndexer receives persisted documents for vector indexing.
type ChunkIndexer interface {
	Submit(ctx context.Context, job index.Job) error
	Backlog() int
}

// Reconciler runs cross-source checks for a (fund, as-of) pair.
type Reconciler interface {
	Run(ctx context.Context, fundRef string, asOf time.Time, scope []models.ReconciliationType) (*models.ReconciliationRun, error)
}

// Deps carries the orchestrator's collaborators. Watcher and Debouncer may
// be nil when the pipeline is driven through ProcessFile only.
type Deps struct {
	Config     config.Config
	Ledger     *ledger.Ledger
	Watcher    *watch.Watcher
	Debouncer  *queue.Debouncer
	Parser     DocParser
	Classifier *classify.Classifier
	Extractor  *extract.Chain
	Resolver   *normalize.Resolver
	Writer     DocWriter
	Indexer    ChunkIndexer
	Reconciler Reconciler
}

// parsedWork moves a document from the parse pool to the extract pool.
type parsedWork struct {
	item queue.WorkItem
	rec  *models.FileRecord
	doc  *models.ParsedDoc
}

// Orchestrator owns the worker pools and the per-document stage sequence.
type Orchestrator struct {
	cfg        config.Config
	led        *ledger.Ledger
	watcher    *watch.Watcher
	deb        *queue.Debouncer
	parser     DocParser
	classifier *classify.Classifier
	extractor  *extract.Chain
	resolver   *normalize.Resolver
	writer     DocWriter
	indexer    ChunkIndexer
	recon      Reconciler
	log        *logrus.Entry

	parsed  chan parsedWork
	retries chan queue.WorkItem

	parseBusy   atomic.Int32
	extractBusy atomic.Int32

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:        deps.Config,
		led:        deps.Ledger,
		watcher:    deps.Watcher,
		deb:        deps.Debouncer,
		parser:     deps.Parser,
		classifier: deps.Classifier,
		extractor:  deps.Extractor,
		resolver:   deps.Resolver,
		writer:     deps.Writer,
		indexer:    deps.Indexer,
		recon:      deps.Reconciler,
		log:        logrus.WithField("component", "pipeline"),
		parsed:     make(chan parsedWork, maxInt(deps.Config.ExtractorWorkers, 1)),
		retries:    make(chan queue.WorkItem, 64),
	}
}

// Start launches discovery and the stage pools. It returns immediately;
// Stop drains in-flight work.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)

	if o.watcher != nil && o.deb != nil {
		o.wg.Add(2)
		go func() {
			defer o.wg.Done()
			o.watcher.Run(ctx)
		}()
		go func() {
			defer o.wg.Done()
			o.deb.Run(ctx, o.watcher.Events())
		}()
	}

	for i := 0; i < maxInt(o.cfg.ParserWorkers, 1); i++ {
		o.wg.Add(1)
		go o.parseWorker(ctx)
	}
	for i := 0; i < maxInt(o.cfg.ExtractorWorkers, 1); i++ {
		o.wg.Add(1)
		go o.extractWorker(ctx)
	}
}

// Stop cancels the pools and waits for in-flight documents.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Rescan sweeps all roots now and reports how many candidates were emitted.
func (o *Orchestrator) Rescan(ctx context.Context) int {
	if o.watcher == nil {
		return 0
	}
	return o.watcher.SweepAll(ctx)
}

// Reconcile exposes the reconciliation engine to operators.
func (o *Orchestrator) Reconcile(ctx context.Context, fundRef string, asOf time.Time, scope []models.ReconciliationType) (*models.ReconciliationRun, error) {
	return o.recon.Run(ctx, fundRef, asOf, scope)
}

// parseWorker claims queued documents and runs the parse stage.
func (o *Orchestrator) parseWorker(ctx context.Context) {
	defer o.wg.Done()

	var work <-chan queue.WorkItem
	if o.deb != nil {
		work = o.deb.Work()
	}

	for {
		var item queue.WorkItem
		select {
		case <-ctx.Done():
			return
		case item = <-o.retries:
		case item = <-work:
		}

		metrics.WorkersBusy.WithLabelValues("parser").Inc()
		o.parseBusy.Add(1)
		o.runParseStage(ctx, item)
		o.parseBusy.Add(-1)
		metrics.WorkersBusy.WithLabelValues("parser").Dec()
	}
}

// extractWorker runs classification through persistence for parsed docs.
func (o *Orchestrator) extractWorker(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case pw := <-o.parsed:
			metrics.WorkersBusy.WithLabelValues("extractor").Inc()
			o.extractBusy.Add(1)
			o.runExtractStage(ctx, pw)
			o.extractBusy.Add(-1)
			metrics.WorkersBusy.WithLabelValues("extractor").Dec()
		}
	}
}

// scheduleRetry re-queues a failed document after a backoff proportional to
// its attempt count.
func (o *Orchestrator) scheduleRetry(item queue.WorkItem, hash string, attempts int) {
	if !o.led.Retriable(hash) {
		return
	}
	delay := retryDelay(attempts)
	o.log.WithFields(logrus.Fields{
		"doc_id":   models.DocIDFromHash(hash),
		"attempt":  attempts,
		"retry_in": delay,
	}).Info("scheduling retry")

	time.AfterFunc(delay, func() {
		if err := o.led.RetryFailed(hash); err != nil {
			return
		}
		item.Attempt = attempts
		select {
		case o.retries <- item:
		default:
			// Retry channel saturated; the next sweep re-discovers the file.
			o.log.WithField("path", item.Path).Warn("retry queue full, dropping retry")
		}
	})
}

func retryDelay(attempts int) time.Duration {
	d := 2 * time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	if d > time.Minute {
		d = time.Minute
	}
	return d
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
