// Package metrics holds the pipeline's prometheus instruments. The registry
// is one of the two pieces of documented process-wide state (the other is
// the FileLedger).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundpipe_files_discovered_total",
		Help: "Candidate files emitted by discovery, by cause.",
	}, []string{"cause"})

	UnsupportedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundpipe_unsupported_dropped_total",
		Help: "Files dropped for an unsupported extension.",
	})

	OversizeDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundpipe_oversize_dropped_total",
		Help: "Files dropped for exceeding max_file_size_mb.",
	})

	SkippedDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundpipe_skipped_duplicate_total",
		Help: "Work items skipped because content was already processed.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fundpipe_work_queue_depth",
		Help: "Items currently buffered in the work queue.",
	})

	ParseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundpipe_parse_failures_total",
		Help: "Parser failures by error kind.",
	}, []string{"kind"})

	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundpipe_llm_calls_total",
		Help: "LLM calls by operation and outcome.",
	}, []string{"op", "outcome"})

	DocsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundpipe_docs_persisted_total",
		Help: "Documents committed, by doc type.",
	}, []string{"doc_type"})

	ChunksIndexed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundpipe_chunks_indexed_total",
		Help: "Chunks written to the vector index.",
	})

	IndexRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fundpipe_index_retries_total",
		Help: "Vector index retry attempts from the background sweep.",
	})

	Findings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fundpipe_reconciliation_findings_total",
		Help: "Reconciliation findings by type and severity.",
	}, []string{"type", "severity"})

	WorkersBusy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fundpipe_workers_busy",
		Help: "Workers currently processing, by pool.",
	}, []string{"pool"})
)
