package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/core/metrics"
	"fundpipe/pkg/models"
)

// WriteSet is everything one document commits in a single transaction.
// Force replays an already-persisted document: the document row is updated
// in place and audit rows append (history is never rewritten).
type WriteSet struct {
	Investor       models.Investor
	Fund           *models.Fund
	Document       models.Document
	CapitalAccount *models.CapitalAccountRow
	Observations   []models.NAVObservation
	Cashflows      []models.Cashflow
	Performance    *models.PerformanceMetric
	Audits         []models.FieldAudit
	Force          bool
}

// FactKey is the serialization key for fact upserts.
func (ws *WriteSet) FactKey() string {
	asOf := ""
	if ws.Document.AsOfDate != nil {
		asOf = ws.Document.AsOfDate.Format("2006-01-02")
	}
	return fmt.Sprintf("%s|%s|%s", ws.Document.FundRef, ws.Document.InvestorRef, asOf)
}

// Writer commits WriteSets transactionally. Same-key writes are serialized
// by a keyed mutex; everything else runs concurrently on the pool.
type Writer struct {
	db      *DB
	locks   *keyedMutex
	timeout time.Duration
	log     *logrus.Entry
}

func NewWriter(db *DB, timeout time.Duration) *Writer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Writer{
		db:      db,
		locks:   newKeyedMutex(),
		timeout: timeout,
		log:     logrus.WithField("component", "writer"),
	}
}

// Commit runs the per-document contract: upsert identities, insert the
// document row, upsert facts, append audits and observations. A duplicate
// doc_id aborts with PersistenceConflict and nothing becomes visible.
func (w *Writer) Commit(ctx context.Context, ws *WriteSet) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	unlock := w.locks.Lock(ws.FactKey())
	defer unlock()

	tx, err := w.db.Pool.Begin(ctx)
	if err != nil {
		return fault.Wrap(fault.Transient, "store.commit", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO investors (code, name) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`,
		ws.Investor.Code, ws.Investor.Name); err != nil {
		return wrapPg("store.investor", err)
	}

	if ws.Fund != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO funds (code, name, investor_ref, currency) VALUES ($1, $2, $3, $4)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, currency = EXCLUDED.currency`,
			ws.Fund.Code, ws.Fund.Name, ws.Fund.InvestorRef, ws.Fund.Currency); err != nil {
			return wrapPg("store.fund", err)
		}
	}

	conflictClause := `ON CONFLICT (doc_id) DO NOTHING`
	if ws.Force {
		conflictClause = `ON CONFLICT (doc_id) DO UPDATE SET
			doc_type = EXCLUDED.doc_type,
			classification_confidence = EXCLUDED.classification_confidence,
			fund_ref = EXCLUDED.fund_ref,
			as_of_date = EXCLUDED.as_of_date,
			currency = EXCLUDED.currency,
			overall_confidence = EXCLUDED.overall_confidence,
			extraction_error = EXCLUDED.extraction_error`
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO documents (doc_id, doc_type, classification_confidence, source_path,
			investor_ref, fund_ref, as_of_date, currency, overall_confidence, extraction_error)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10)
		`+conflictClause,
		ws.Document.DocID, ws.Document.DocType, ws.Document.ClassConfidence, ws.Document.SourcePath,
		ws.Document.InvestorRef, ws.Document.FundRef, ws.Document.AsOfDate, ws.Document.Currency,
		ws.Document.OverallConf, ws.Document.ExtractionError)
	if err != nil {
		return wrapPg("store.document", err)
	}
	if !ws.Force && tag.RowsAffected() == 0 {
		return fault.New(fault.PersistenceConflict, "store.document", "doc_id %s already persisted", ws.Document.DocID)
	}

	if ws.Force {
		// Observations are keyed by source doc; a forced replay supersedes
		// the previous run's rows rather than duplicating them.
		for _, table := range []string{"nav_observations", "cashflows", "performance_metrics"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE source_doc_id = $1`, ws.Document.DocID); err != nil {
				return wrapPg("store.force_cleanup", err)
			}
		}
	}

	if ws.CapitalAccount != nil {
		if err := upsertCapitalAccount(ctx, tx, ws.CapitalAccount); err != nil {
			return err
		}
	}

	for _, audit := range ws.Audits {
		if audit.DocID == "" {
			audit.DocID = ws.Document.DocID
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO field_audits (doc_id, field_name, raw_value, normalized_value,
				extractor_tag, confidence, validation_status, severity, note, override, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)`,
			audit.DocID, audit.FieldName, audit.RawValue, audit.NormalizedValue,
			audit.ExtractorTag, audit.Confidence, audit.Status, audit.Severity, audit.Note,
			audit.Override, audit.CreatedAt); err != nil {
			return wrapPg("store.audit", err)
		}
	}

	for _, obs := range ws.Observations {
		if _, err := tx.Exec(ctx, `
			INSERT INTO nav_observations (fund_ref, scope, as_of_date, value, currency, source_doc_id)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			obs.FundRef, obs.Scope, obs.AsOfDate, obs.Value, obs.Currency, obs.SourceDocID); err != nil {
			return wrapPg("store.nav", err)
		}
	}

	for _, flow := range ws.Cashflows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO cashflows (fund_ref, investor_ref, flow_type, flow_date, amount, currency, source_doc_id)
			VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)`,
			flow.FundRef, flow.InvestorRef, flow.FlowType, flow.FlowDate, flow.Amount,
			flow.Currency, flow.SourceDocID); err != nil {
			return wrapPg("store.cashflow", err)
		}
	}

	if ws.Performance != nil {
		p := ws.Performance
		if _, err := tx.Exec(ctx, `
			INSERT INTO performance_metrics (fund_ref, as_of_date, irr_net, moic, tvpi, dpi, rvpi,
				called_pct, distributed_pct, source_doc_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.FundRef, p.AsOfDate, p.IRRNet, p.MOIC, p.TVPI, p.DPI, p.RVPI,
			p.CalledPct, p.DistributedPct, p.SourceDocID); err != nil {
			return wrapPg("store.performance", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapPg("store.commit", err)
	}
	metrics.DocsPersisted.WithLabelValues(string(ws.Document.DocType)).Inc()
	return nil
}

func upsertCapitalAccount(ctx context.Context, tx pgxTx, row *models.CapitalAccountRow) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO capital_accounts (fund_ref, investor_ref, as_of_date,
			beginning_balance, ending_balance, contributions_period, distributions_period,
			distributions_roc, distributions_gain, distributions_income,
			management_fees_period, partnership_expenses_period,
			realized_gain_loss_period, unrealized_gain_loss_period,
			total_commitment, drawn_commitment, unfunded_commitment,
			currency, source_doc_id, consistent, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, now())
		ON CONFLICT (fund_ref, investor_ref, as_of_date) DO UPDATE SET
			beginning_balance = EXCLUDED.beginning_balance,
			ending_balance = EXCLUDED.ending_balance,
			contributions_period = EXCLUDED.contributions_period,
			distributions_period = EXCLUDED.distributions_period,
			distributions_roc = EXCLUDED.distributions_roc,
			distributions_gain = EXCLUDED.distributions_gain,
			distributions_income = EXCLUDED.distributions_income,
			management_fees_period = EXCLUDED.management_fees_period,
			partnership_expenses_period = EXCLUDED.partnership_expenses_period,
			realized_gain_loss_period = EXCLUDED.realized_gain_loss_period,
			unrealized_gain_loss_period = EXCLUDED.unrealized_gain_loss_period,
			total_commitment = EXCLUDED.total_commitment,
			drawn_commitment = EXCLUDED.drawn_commitment,
			unfunded_commitment = EXCLUDED.unfunded_commitment,
			currency = EXCLUDED.currency,
			source_doc_id = EXCLUDED.source_doc_id,
			consistent = EXCLUDED.consistent,
			updated_at = now()`,
		row.FundRef, row.InvestorRef, row.AsOfDate,
		row.BeginningBalance, row.EndingBalance, row.Contributions, row.Distributions,
		row.DistributionsROC, row.DistributionsGain, row.DistributionsIncome,
		row.ManagementFees, row.PartnershipExpenses,
		row.RealizedGainLoss, row.UnrealizedGainLoss,
		row.TotalCommitment, row.DrawnCommitment, row.UnfundedCommitment,
		row.Currency, row.SourceDocID, row.Consistent)
	if err != nil {
		return wrapPg("store.capital_account", err)
	}
	return nil
}

// pgxTx is the slice of pgx.Tx the writer helpers need.
type pgxTx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// wrapPg maps database errors onto the fault taxonomy. Unique violations
// become conflicts; serialization failures and deadlocks stay retryable.
func wrapPg(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fault.Wrap(fault.PersistenceConflict, op, err)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fault.Wrap(fault.Transient, op, err)
		case "23514": // check_violation (e.g. negative cashflow amount)
			return fault.Wrap(fault.Invalid, op, err)
		}
	}
	return fault.Wrap(fault.Transient, op, err)
}
