package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fundpipe/pkg/core/extract"
	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/core/index"
	"fundpipe/pkg/core/metrics"
	"fundpipe/pkg/core/normalize"
	"fundpipe/pkg/core/queue"
	"fundpipe/pkg/core/store"
	"fundpipe/pkg/models"
)

// reconcileTimeout bounds the advisory reconciliation run triggered after a
// commit. Findings are best-effort here; the scheduled sweep is the backstop.
const reconcileTimeout = 2 * time.Minute

// commitAttempts bounds the in-process retry of transient commit errors
// (serialization failures, deadlocks) before the document goes to Failed.
const commitAttempts = 3

func (o *Orchestrator) commit(ctx context.Context, ws *store.WriteSet) error {
	return fault.Retry(ctx, commitAttempts, func() error {
		return o.writer.Commit(ctx, ws)
	})
}

// runParseStage claims a queued document and runs the parser, handing the
// parsed doc to the extract pool.
func (o *Orchestrator) runParseStage(ctx context.Context, item queue.WorkItem) {
	rec, ok := o.claim(ctx, item)
	if !ok {
		return
	}
	hash := rec.ContentHash

	doc, err := o.parser.Parse(ctx, item.Path)
	if ctx.Err() != nil {
		if rqErr := o.led.Requeue(hash); rqErr != nil {
			o.log.WithError(rqErr).WithField("doc_id", rec.DocID()).Warn("requeue after cancel failed")
		}
		return
	}
	if err != nil {
		metrics.ParseFailures.WithLabelValues(string(fault.KindOf(err))).Inc()
		o.failStage(item, hash, models.StateParsing, err)
		return
	}

	if err := o.led.Transition(hash, models.StateParsing, models.StateExtracting, ""); err != nil {
		o.log.WithError(err).WithField("doc_id", rec.DocID()).Warn("lost parse claim")
		return
	}

	select {
	case o.parsed <- parsedWork{item: item, rec: rec, doc: doc}:
	case <-ctx.Done():
		if rqErr := o.led.Requeue(hash); rqErr != nil {
			o.log.WithError(rqErr).WithField("doc_id", rec.DocID()).Warn("requeue after cancel failed")
		}
	}
}

// claim registers the file and walks its record to Parsing. A false return
// means the document needs no work here: already processed, owned by another
// worker, or out of retry budget.
func (o *Orchestrator) claim(ctx context.Context, item queue.WorkItem) (*models.FileRecord, bool) {
	rec, created, err := o.led.Register(ctx, item.Path, item.InvestorCode)
	if err != nil {
		o.log.WithError(err).WithField("path", item.Path).Warn("register failed, sweep will retry")
		return nil, false
	}
	hash := rec.ContentHash

	if !created {
		switch rec.State {
		case models.StateEmbedded, models.StateSkipped, models.StatePersisted:
			metrics.SkippedDuplicate.Inc()
			return nil, false
		case models.StateFailed:
			if !o.led.Retriable(hash) {
				return nil, false
			}
			if err := o.led.RetryFailed(hash); err != nil {
				return nil, false
			}
		case models.StateParsing, models.StateExtracting:
			// In flight on another worker.
			return nil, false
		case models.StateDiscovered:
			if err := o.led.Transition(hash, models.StateDiscovered, models.StateQueued, ""); err != nil {
				return nil, false
			}
		}
	} else {
		if err := o.led.Transition(hash, models.StateDiscovered, models.StateQueued, ""); err != nil {
			return nil, false
		}
	}

	if err := o.led.Transition(hash, models.StateQueued, models.StateParsing, ""); err != nil {
		// Another worker won the claim.
		return nil, false
	}

	cur, _ := o.led.Get(hash)
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// runExtractStage takes a parsed document through classification,
// extraction, persistence, indexing, and the reconciliation trigger.
func (o *Orchestrator) runExtractStage(ctx context.Context, pw parsedWork) {
	hash := pw.rec.ContentHash
	filename := filepath.Base(pw.item.Path)

	docType, classConf, result, extraAudits := o.classifyAndExtract(ctx, filename, pw.doc)
	if ctx.Err() != nil {
		if err := o.led.Requeue(hash); err != nil {
			o.log.WithError(err).WithField("doc_id", pw.rec.DocID()).Warn("requeue after cancel failed")
		}
		return
	}

	ws, err := o.buildWriteSet(ctx, pw.rec, docType, classConf, result, extraAudits, false)
	if err != nil {
		o.failStage(pw.item, hash, models.StateExtracting, err)
		return
	}

	if err := o.commit(ctx, ws); err != nil {
		if ctx.Err() != nil {
			if rqErr := o.led.Requeue(hash); rqErr != nil {
				o.log.WithError(rqErr).WithField("doc_id", pw.rec.DocID()).Warn("requeue after cancel failed")
			}
			return
		}
		if fault.KindOf(err) == fault.PersistenceConflict {
			// Same content reached the store through another path.
			metrics.SkippedDuplicate.Inc()
			if trErr := o.led.Transition(hash, models.StateExtracting, models.StateSkipped, ""); trErr != nil {
				o.log.WithError(trErr).WithField("doc_id", pw.rec.DocID()).Warn("skip transition failed")
			}
			return
		}
		o.failStage(pw.item, hash, models.StateExtracting, err)
		return
	}

	if err := o.led.Transition(hash, models.StateExtracting, models.StatePersisted, ""); err != nil {
		o.log.WithError(err).WithField("doc_id", pw.rec.DocID()).Warn("persisted transition failed")
		return
	}

	o.submitIndex(ctx, hash, ws, pw.doc)
	o.triggerReconcile(ws)

	o.log.WithFields(logrus.Fields{
		"doc_id":     ws.Document.DocID,
		"doc_type":   ws.Document.DocType,
		"confidence": ws.Document.OverallConf,
	}).Info("document persisted")
}

// classifyAndExtract runs the classifier and the extraction chain. A
// classification below the confidence floor downgrades to Other and leaves a
// Medium audit rather than failing the document.
func (o *Orchestrator) classifyAndExtract(ctx context.Context, filename string, doc *models.ParsedDoc) (models.DocType, float64, *extract.Result, []models.FieldAudit) {
	cls := o.classifier.Classify(ctx, filename, doc)
	docType := cls.Type
	var audits []models.FieldAudit

	if cls.Confidence < o.cfg.ClassificationMinConfidence {
		audits = append(audits, models.FieldAudit{
			FieldName:       "doc_type",
			RawValue:        string(cls.Type),
			NormalizedValue: string(models.DocOther),
			ExtractorTag:    string(cls.Method),
			Confidence:      cls.Confidence,
			Status:          models.ValidationSuspect,
			Severity:        models.AuditMedium,
			Note:            "classification below confidence floor, treated as other",
			CreatedAt:       time.Now().UTC(),
		})
		docType = models.DocOther
	}

	result := o.extractor.Extract(ctx, docType, doc, filename)
	return docType, cls.Confidence, result, audits
}

// buildWriteSet assembles the transactional payload for one document from
// the extraction result and the resolved identities.
func (o *Orchestrator) buildWriteSet(ctx context.Context, rec *models.FileRecord, docType models.DocType, classConf float64, result *extract.Result, extraAudits []models.FieldAudit, force bool) (*store.WriteSet, error) {
	now := time.Now().UTC()
	docID := rec.DocID()

	extractedInvestor, _ := result.Str(extract.FieldInvestorName)
	investor, invAudit := o.resolver.ResolveInvestor(rec.InvestorCode, extractedInvestor)

	currency := o.cfg.ReportingCurrency
	rawCur, hasCur := result.Str(extract.FieldCurrency)
	norm, known := normalize.NormalizeCurrency(rawCur)
	switch {
	case hasCur && known:
		currency = norm
	default:
		extraAudits = append(extraAudits, models.FieldAudit{
			FieldName:       extract.FieldCurrency,
			RawValue:        rawCur,
			NormalizedValue: currency,
			ExtractorTag:    models.TagResolver,
			Confidence:      0.5,
			Status:          models.ValidationSuspect,
			Severity:        models.AuditMedium,
			Note:            "currency missing or unrecognized, reporting currency assumed",
			CreatedAt:       now,
		})
	}

	ws := &store.WriteSet{
		Investor: investor,
		Document: models.Document{
			DocID:           docID,
			DocType:         docType,
			ClassConfidence: classConf,
			SourcePath:      rec.Path,
			InvestorRef:     investor.Code,
			Currency:        currency,
			OverallConf:     result.Overall,
			ExtractionError: extractionError(result),
			CreatedAt:       now,
		},
		Force: force,
	}

	if asOf, ok := result.Date(extract.FieldAsOfDate); ok {
		ws.Document.AsOfDate = &asOf
	}

	if fundName, ok := result.Str(extract.FieldFundName); ok {
		fund, isNew, err := o.resolver.ResolveFund(ctx, investor.Code, fundName, currency)
		if err != nil {
			return nil, err
		}
		ws.Fund = &fund
		ws.Document.FundRef = fund.Code
		if isNew {
			o.log.WithFields(logrus.Fields{"fund": fund.Code, "name": fund.Name}).Info("new fund registered")
		}
	}

	ws.Audits = append(ws.Audits, result.Audits...)
	if invAudit != nil {
		ws.Audits = append(ws.Audits, *invAudit)
	}
	ws.Audits = append(ws.Audits, extraAudits...)

	o.attachFacts(ws, docType, result, currency, now)
	return ws, nil
}

// attachFacts maps extracted fields onto the fact tables by document type.
// Facts require a resolved fund and an as-of date; without them the document
// row still persists and the missing-required audits explain the gap.
func (o *Orchestrator) attachFacts(ws *store.WriteSet, docType models.DocType, result *extract.Result, currency string, now time.Time) {
	fundRef := ws.Document.FundRef
	if fundRef == "" || ws.Document.AsOfDate == nil {
		return
	}
	asOf := *ws.Document.AsOfDate
	docID := ws.Document.DocID

	amount := func(name string) float64 {
		v, _ := result.Amount(name)
		return v
	}

	switch docType {
	case models.DocCapitalAccountStatement:
		ending, ok := result.Amount(extract.FieldEndingBalance)
		if !ok {
			return
		}
		ws.CapitalAccount = &models.CapitalAccountRow{
			FundRef:             fundRef,
			InvestorRef:         ws.Document.InvestorRef,
			AsOfDate:            asOf,
			BeginningBalance:    amount(extract.FieldBeginningBalance),
			EndingBalance:       ending,
			Contributions:       amount(extract.FieldContributions),
			Distributions:       amount(extract.FieldDistributions),
			DistributionsROC:    amount(extract.FieldDistributionsROC),
			DistributionsGain:   amount(extract.FieldDistributionsGn),
			DistributionsIncome: amount(extract.FieldDistributionsInc),
			ManagementFees:      amount(extract.FieldManagementFees),
			PartnershipExpenses: amount(extract.FieldPartnershipExp),
			RealizedGainLoss:    amount(extract.FieldRealizedGL),
			UnrealizedGainLoss:  amount(extract.FieldUnrealizedGL),
			TotalCommitment:     amount(extract.FieldTotalCommitment),
			DrawnCommitment:     amount(extract.FieldDrawnCommitment),
			UnfundedCommitment:  amount(extract.FieldUnfundedCommit),
			Currency:            currency,
			SourceDocID:         docID,
			Consistent:          result.Consistent,
			UpdatedAt:           now,
		}
		ws.Observations = append(ws.Observations, models.NAVObservation{
			FundRef:     fundRef,
			Scope:       models.ScopeInvestor,
			AsOfDate:    asOf,
			Value:       ending,
			Currency:    currency,
			SourceDocID: docID,
			CreatedAt:   now,
		})
		for _, fl := range []struct {
			flowType models.FlowType
			field    string
		}{
			{models.FlowCall, extract.FieldContributions},
			{models.FlowDistribution, extract.FieldDistributions},
			{models.FlowFee, extract.FieldManagementFees},
		} {
			if v, ok := result.Amount(fl.field); ok && v > 0 {
				ws.Cashflows = append(ws.Cashflows, models.Cashflow{
					FundRef:     fundRef,
					InvestorRef: ws.Document.InvestorRef,
					FlowType:    fl.flowType,
					FlowDate:    asOf,
					Amount:      v,
					Currency:    currency,
					SourceDocID: docID,
					CreatedAt:   now,
				})
			}
		}

	case models.DocQuarterlyReport, models.DocAnnualReport:
		if nav, ok := result.Amount(extract.FieldFundNAV); ok {
			ws.Observations = append(ws.Observations, models.NAVObservation{
				FundRef:     fundRef,
				Scope:       models.ScopeFund,
				AsOfDate:    asOf,
				Value:       nav,
				Currency:    currency,
				SourceDocID: docID,
				CreatedAt:   now,
			})
		}
		if perf := buildPerformance(result, fundRef, asOf, docID, now); perf != nil {
			ws.Performance = perf
		}

	case models.DocCapitalCallNotice:
		if v, ok := result.Amount(extract.FieldCallAmount); ok && v > 0 {
			flowDate := asOf
			if due, ok := result.Date(extract.FieldDueDate); ok {
				flowDate = due
			}
			ws.Cashflows = append(ws.Cashflows, models.Cashflow{
				FundRef:     fundRef,
				InvestorRef: ws.Document.InvestorRef,
				FlowType:    models.FlowCall,
				FlowDate:    flowDate,
				Amount:      v,
				Currency:    currency,
				SourceDocID: docID,
				CreatedAt:   now,
			})
		}

	case models.DocDistributionNotice:
		if v, ok := result.Amount(extract.FieldDistAmount); ok && v > 0 {
			ws.Cashflows = append(ws.Cashflows, models.Cashflow{
				FundRef:     fundRef,
				InvestorRef: ws.Document.InvestorRef,
				FlowType:    models.FlowDistribution,
				FlowDate:    asOf,
				Amount:      v,
				Currency:    currency,
				SourceDocID: docID,
				CreatedAt:   now,
			})
		}
	}
}

// buildPerformance collects reported metrics. Percent-kind fields arrive in
// percent points and are stored as decimal fractions.
func buildPerformance(result *extract.Result, fundRef string, asOf time.Time, docID string, now time.Time) *models.PerformanceMetric {
	perf := &models.PerformanceMetric{
		FundRef:     fundRef,
		AsOfDate:    asOf,
		SourceDocID: docID,
		CreatedAt:   now,
	}
	any := false
	set := func(dst **float64, name string, percent bool) {
		if v, ok := result.Amount(name); ok {
			if percent {
				v /= 100
			}
			*dst = &v
			any = true
		}
	}
	set(&perf.IRRNet, extract.FieldIRRNet, true)
	set(&perf.MOIC, extract.FieldMOIC, false)
	set(&perf.TVPI, extract.FieldTVPI, false)
	set(&perf.DPI, extract.FieldDPI, false)
	set(&perf.RVPI, extract.FieldRVPI, false)
	set(&perf.CalledPct, extract.FieldCalledPct, true)
	set(&perf.DistributedPct, extract.FieldDistribPct, true)

	if !any {
		return nil
	}
	return perf
}

// extractionError renders the document row's always-present error summary.
func extractionError(result *extract.Result) string {
	if !result.Incomplete {
		return ""
	}
	return "missing required: " + strings.Join(result.MissingRequired, ", ")
}

// submitIndex hands the persisted document to the vector indexing worker.
// Indexing failures never fail the document.
func (o *Orchestrator) submitIndex(ctx context.Context, hash string, ws *store.WriteSet, doc *models.ParsedDoc) {
	if o.indexer == nil {
		return
	}
	job := index.Job{
		Hash:   hash,
		DocID:  ws.Document.DocID,
		Chunks: index.BuildChunks(&ws.Document, ws.CapitalAccount, doc),
	}
	if err := o.indexer.Submit(ctx, job); err != nil {
		o.log.WithError(err).WithField("doc_id", ws.Document.DocID).Warn("index submit failed")
	}
}

// triggerReconcile starts an advisory reconciliation run for the document's
// fund period. The run is detached from the document's lifecycle.
func (o *Orchestrator) triggerReconcile(ws *store.WriteSet) {
	if o.recon == nil || ws.Document.FundRef == "" || ws.Document.AsOfDate == nil {
		return
	}
	fundRef := ws.Document.FundRef
	asOf := *ws.Document.AsOfDate

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()
		if _, err := o.recon.Run(ctx, fundRef, asOf, nil); err != nil {
			o.log.WithError(err).WithFields(logrus.Fields{
				"fund":  fundRef,
				"as_of": asOf.Format("2006-01-02"),
			}).Warn("post-persist reconciliation failed")
		}
	}()
}

// failStage moves a record to Failed and schedules a retry when the fault
// and the attempt budget allow one.
func (o *Orchestrator) failStage(item queue.WorkItem, hash string, from models.FileState, err error) {
	o.log.WithError(err).WithFields(logrus.Fields{
		"doc_id": models.DocIDFromHash(hash),
		"stage":  string(from),
	}).Warn("stage failed")

	if trErr := o.led.Transition(hash, from, models.StateFailed, err.Error()); trErr != nil {
		o.log.WithError(trErr).WithField("doc_id", models.DocIDFromHash(hash)).Warn("failed transition rejected")
		return
	}
	if !fault.Retryable(err) {
		return
	}
	rec, ok := o.led.Get(hash)
	if !ok {
		return
	}
	o.scheduleRetry(item, hash, rec.Attempts)
}
