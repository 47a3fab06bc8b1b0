package store

import (
	"context"
	"encoding/json"

	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/models"
)

// FindingsRepo owns reconciliation output: findings plus the run summary,
// committed together.
type FindingsRepo struct {
	db *DB
}

func NewFindingsRepo(db *DB) *FindingsRepo {
	return &FindingsRepo{db: db}
}

// SaveRun persists a reconciliation run and its findings in one
// transaction.
func (r *FindingsRepo) SaveRun(ctx context.Context, run *models.ReconciliationRun, findings []models.ReconciliationFinding) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fault.Wrap(fault.Transient, "store.findings", err)
	}
	defer tx.Rollback(ctx)

	for _, f := range findings {
		recs, err := json.Marshal(f.Recommendations)
		if err != nil {
			return fault.Wrap(fault.Fatal, "store.findings", err)
		}
		evidence := f.Evidence
		if evidence == "" {
			evidence = "{}"
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reconciliation_findings (fund_ref, as_of_date, reconciliation_type,
				severity, status, details, evidence, recommendations)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			f.FundRef, f.AsOfDate, f.Type, f.Severity, f.Status, f.Details, evidence, recs); err != nil {
			return wrapPg("store.findings", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO reconciliation_runs (fund_ref, as_of_date, overall_status, findings_count, needs_review)
		VALUES ($1, $2, $3, $4, $5)`,
		run.FundRef, run.AsOfDate, run.OverallStatus, len(findings), run.NeedsReview); err != nil {
		return wrapPg("store.findings", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapPg("store.findings", err)
	}
	return nil
}
