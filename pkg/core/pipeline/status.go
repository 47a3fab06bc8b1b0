package pipeline

import (
	"context"
	"path/filepath"

	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/core/metrics"
	"fundpipe/pkg/core/store"
	"fundpipe/pkg/models"
)

// Status is the operator's snapshot of pipeline health.
type Status struct {
	Files        map[models.FileState]int `json:"files"`
	QueueDepth   int                      `json:"queue_depth"`
	BusyWorkers  map[string]int           `json:"busy_workers"`
	IndexBacklog int                      `json:"index_backlog"`
}

// GetStatus reports ledger state counts, the work queue depth, per-pool
// utilization, and the vector index retry backlog.
func (o *Orchestrator) GetStatus() Status {
	st := Status{
		Files: o.led.StatsByState(),
		BusyWorkers: map[string]int{
			"parser":    int(o.parseBusy.Load()),
			"extractor": int(o.extractBusy.Load()),
		},
	}
	if o.deb != nil {
		st.QueueDepth = o.deb.Depth()
	}
	if o.indexer != nil {
		st.IndexBacklog = o.indexer.Backlog()
	}
	return st
}

// ProcessFile runs one file through the pipeline synchronously. force
// replays an already-persisted document in place; without force, persisted
// content short-circuits to already_processed.
func (o *Orchestrator) ProcessFile(ctx context.Context, path, investorCode string, force bool) models.ProcessResult {
	rec, created, err := o.led.Register(ctx, path, investorCode)
	if err != nil {
		return models.ProcessResult{Status: models.StatusFailed, Error: err.Error()}
	}
	docID := rec.DocID()
	hash := rec.ContentHash

	if !created {
		switch rec.State {
		case models.StatePersisted, models.StateEmbedded, models.StateSkipped:
			if !force {
				metrics.SkippedDuplicate.Inc()
				return models.ProcessResult{DocID: docID, Status: models.StatusAlreadyProcessed}
			}
			return o.replay(ctx, rec)
		case models.StateFailed:
			if err := o.led.Reset(hash); err != nil {
				return models.ProcessResult{DocID: docID, Status: models.StatusFailed, Error: err.Error()}
			}
		case models.StateQueued, models.StateParsing, models.StateExtracting:
			return models.ProcessResult{DocID: docID, Status: models.StatusFailed, Error: "document is in flight"}
		case models.StateDiscovered:
			if err := o.led.Transition(hash, models.StateDiscovered, models.StateQueued, ""); err != nil {
				return models.ProcessResult{DocID: docID, Status: models.StatusFailed, Error: err.Error()}
			}
		}
	} else {
		if err := o.led.Transition(hash, models.StateDiscovered, models.StateQueued, ""); err != nil {
			return models.ProcessResult{DocID: docID, Status: models.StatusFailed, Error: err.Error()}
		}
	}

	if err := o.led.Transition(hash, models.StateQueued, models.StateParsing, ""); err != nil {
		return models.ProcessResult{DocID: docID, Status: models.StatusFailed, Error: err.Error()}
	}

	cur, _ := o.led.Get(hash)
	if cur == nil {
		return models.ProcessResult{DocID: docID, Status: models.StatusFailed, Error: "ledger record vanished"}
	}
	return o.runSync(ctx, cur)
}

// runSync drives the parse and extract stages inline, returning the
// per-document outcome. The record must be in Parsing.
func (o *Orchestrator) runSync(ctx context.Context, rec *models.FileRecord) models.ProcessResult {
	hash := rec.ContentHash
	docID := rec.DocID()

	doc, err := o.parser.Parse(ctx, rec.Path)
	if err != nil {
		metrics.ParseFailures.WithLabelValues(string(fault.KindOf(err))).Inc()
		o.transitionOrLog(hash, models.StateParsing, models.StateFailed, err.Error())
		return models.ProcessResult{DocID: docID, Status: models.StatusFailed, Error: err.Error()}
	}
	o.transitionOrLog(hash, models.StateParsing, models.StateExtracting, "")

	docType, classConf, result, audits := o.classifyAndExtract(ctx, filepath.Base(rec.Path), doc)

	ws, err := o.buildWriteSet(ctx, rec, docType, classConf, result, audits, false)
	if err != nil {
		o.transitionOrLog(hash, models.StateExtracting, models.StateFailed, err.Error())
		return models.ProcessResult{DocID: docID, Status: models.StatusFailed, Error: err.Error()}
	}

	if err := o.commit(ctx, ws); err != nil {
		if fault.KindOf(err) == fault.PersistenceConflict {
			metrics.SkippedDuplicate.Inc()
			o.transitionOrLog(hash, models.StateExtracting, models.StateSkipped, "")
			return models.ProcessResult{DocID: docID, Status: models.StatusAlreadyProcessed}
		}
		o.transitionOrLog(hash, models.StateExtracting, models.StateFailed, err.Error())
		return models.ProcessResult{DocID: docID, Status: models.StatusFailed, Error: err.Error()}
	}
	o.transitionOrLog(hash, models.StateExtracting, models.StatePersisted, "")

	o.submitIndex(ctx, hash, ws, doc)
	return o.finishResult(ctx, ws, result.Overall, result.Incomplete || !result.Consistent)
}

// replay re-runs an already-persisted document without touching its ledger
// lifecycle: the document row updates in place, fact rows are superseded,
// and audits append.
func (o *Orchestrator) replay(ctx context.Context, rec *models.FileRecord) models.ProcessResult {
	docID := rec.DocID()

	doc, err := o.parser.Parse(ctx, rec.Path)
	if err != nil {
		return models.ProcessResult{DocID: docID, Status: models.StatusFailed, Error: err.Error()}
	}

	docType, classConf, result, audits := o.classifyAndExtract(ctx, filepath.Base(rec.Path), doc)

	ws, err := o.buildWriteSet(ctx, rec, docType, classConf, result, audits, true)
	if err != nil {
		return models.ProcessResult{DocID: docID, Status: models.StatusFailed, Error: err.Error()}
	}
	if err := o.commit(ctx, ws); err != nil {
		return models.ProcessResult{DocID: docID, Status: models.StatusFailed, Error: err.Error()}
	}

	o.submitIndex(ctx, rec.ContentHash, ws, doc)
	return o.finishResult(ctx, ws, result.Overall, result.Incomplete || !result.Consistent)
}

// finishResult runs the advisory reconciliation inline so the caller sees
// the findings count, then shapes the ProcessResult.
func (o *Orchestrator) finishResult(ctx context.Context, ws *store.WriteSet, confidence float64, partial bool) models.ProcessResult {
	res := models.ProcessResult{
		DocID:      ws.Document.DocID,
		Status:     models.StatusProcessed,
		Confidence: confidence,
	}
	if partial {
		res.Status = models.StatusPartial
	}

	if o.recon != nil && ws.Document.FundRef != "" && ws.Document.AsOfDate != nil {
		run, err := o.recon.Run(ctx, ws.Document.FundRef, *ws.Document.AsOfDate, nil)
		if err != nil {
			o.log.WithError(err).WithField("fund", ws.Document.FundRef).Warn("post-persist reconciliation failed")
		} else if run != nil {
			res.FindingsCount = len(run.Findings)
		}
	}
	return res
}

func (o *Orchestrator) transitionOrLog(hash string, from, to models.FileState, errMsg string) {
	if err := o.led.Transition(hash, from, to, errMsg); err != nil {
		o.log.WithError(err).WithField("doc_id", models.DocIDFromHash(hash)).Warn("ledger transition failed")
	}
}
