package index

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/core/ledger"
	"fundpipe/pkg/core/metrics"
	"fundpipe/pkg/models"
)

const (
	defaultWorkers   = 4
	defaultTimeout   = 30 * time.Second
	maxEmbedAttempts = 5
	sweepInterval    = time.Minute
	retryBackoffBase = 30 * time.Second
)

// Job is one document's worth of chunks waiting for the vector index.
type Job struct {
	Hash   string
	DocID  string
	Chunks []Chunk
}

// Worker uploads chunks through a bounded pool. Indexing failures never fail
// the document: the record stays Persisted with EmbeddingFailed and a
// background sweep resubmits it until attempts run out.
type Worker struct {
	idx     VectorIndex
	led     *ledger.Ledger
	workers int
	timeout time.Duration
	log     *logrus.Entry

	jobs chan Job

	mu       sync.Mutex
	retained map[string]Job // failed jobs kept for the retry sweep, by hash

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorker builds an indexer pool. workers <= 0 and timeout <= 0 fall back
// to the defaults.
func NewWorker(idx VectorIndex, led *ledger.Ledger, workers int, timeout time.Duration) *Worker {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Worker{
		idx:      idx,
		led:      led,
		workers:  workers,
		timeout:  timeout,
		log:      logrus.WithField("component", "indexer"),
		jobs:     make(chan Job, workers*4),
		retained: make(map[string]Job),
	}
}

// Start launches the worker pool and the retry sweep.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
	w.wg.Add(1)
	go w.sweep(ctx)
}

// Stop cancels workers and waits for in-flight uploads to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Submit hands a persisted document's chunks to the pool. Blocks when the
// pool is saturated so persistence backpressures instead of dropping jobs.
func (w *Worker) Submit(ctx context.Context, job Job) error {
	select {
	case w.jobs <- job:
		return nil
	case <-ctx.Done():
		return fault.Wrap(fault.Transient, "index.submit", ctx.Err())
	}
}

// Backlog counts failed jobs waiting on the retry sweep.
func (w *Worker) Backlog() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.retained)
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			metrics.WorkersBusy.WithLabelValues("indexer").Inc()
			w.process(ctx, job)
			metrics.WorkersBusy.WithLabelValues("indexer").Dec()
		}
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	log := w.log.WithField("doc_id", job.DocID)

	if len(job.Chunks) == 0 {
		log.Warn("no indexable chunks, marking embedded anyway")
		w.succeed(job, 0)
		return
	}

	uploadCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	// Uploads replace any chunks from a prior run of the same document.
	if err := w.idx.Delete(uploadCtx, job.DocID); err != nil {
		log.WithError(err).Debug("pre-upload delete failed")
	}

	ids, err := w.idx.AddChunks(uploadCtx, job.DocID, job.Chunks)
	if err != nil {
		w.fail(job, err)
		return
	}
	w.succeed(job, len(ids))
	log.WithField("chunks", len(ids)).Info("document indexed")
}

func (w *Worker) succeed(job Job, chunks int) {
	metrics.ChunksIndexed.Add(float64(chunks))
	if err := w.led.SetEmbedding(job.Hash, models.EmbeddingDone, ""); err != nil {
		w.log.WithError(err).WithField("doc_id", job.DocID).Warn("embedding status update failed")
	}
	if err := w.led.Transition(job.Hash, models.StatePersisted, models.StateEmbedded, ""); err != nil {
		w.log.WithError(err).WithField("doc_id", job.DocID).Warn("embedded transition failed")
	}
	w.mu.Lock()
	delete(w.retained, job.Hash)
	w.mu.Unlock()
}

func (w *Worker) fail(job Job, err error) {
	w.log.WithError(err).WithField("doc_id", job.DocID).Warn("vector index upload failed")
	if lerr := w.led.SetEmbedding(job.Hash, models.EmbeddingFailed, err.Error()); lerr != nil {
		w.log.WithError(lerr).WithField("doc_id", job.DocID).Warn("embedding status update failed")
	}
	w.mu.Lock()
	w.retained[job.Hash] = job
	w.mu.Unlock()
}

// sweep periodically resubmits failed jobs whose backoff has elapsed. The
// delay doubles with each failed attempt, starting at retryBackoffBase.
func (w *Worker) sweep(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepOnce(ctx, time.Now().UTC())
		}
	}
}

func (w *Worker) sweepOnce(ctx context.Context, now time.Time) {
	for _, rec := range w.led.EmbeddingRetryCandidates(maxEmbedAttempts) {
		if now.Sub(rec.UpdatedAt) < retryDelay(rec.EmbedAttempts) {
			continue
		}
		w.mu.Lock()
		job, ok := w.retained[rec.ContentHash]
		w.mu.Unlock()
		if !ok {
			// Payload lost (restart); the rescan path re-feeds these.
			continue
		}
		metrics.IndexRetries.Inc()
		w.log.WithFields(logrus.Fields{
			"doc_id":  job.DocID,
			"attempt": rec.EmbedAttempts + 1,
		}).Info("retrying vector index upload")
		if err := w.Submit(ctx, job); err != nil {
			return
		}
	}
}

func retryDelay(attempts int) time.Duration {
	d := retryBackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}
