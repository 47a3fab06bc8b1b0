package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/models"
)

// Reader serves the resolver, the reconciliation engine, and status
// queries.
type Reader struct {
	db *DB
}

func NewReader(db *DB) *Reader {
	return &Reader{db: db}
}

// FundsByInvestor lists the investor's funds for fuzzy resolution.
func (r *Reader) FundsByInvestor(ctx context.Context, investorRef string) ([]models.Fund, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT code, name, investor_ref, COALESCE(currency, ''), created_at
		FROM funds WHERE investor_ref = $1 ORDER BY code`, investorRef)
	if err != nil {
		return nil, fault.Wrap(fault.Transient, "store.funds", err)
	}
	defer rows.Close()

	var funds []models.Fund
	for rows.Next() {
		var f models.Fund
		if err := rows.Scan(&f.Code, &f.Name, &f.InvestorRef, &f.Currency, &f.CreatedAt); err != nil {
			return nil, fault.Wrap(fault.Transient, "store.funds", err)
		}
		funds = append(funds, f)
	}
	return funds, rows.Err()
}

// DocumentExists reports whether doc_id was already persisted.
func (r *Reader) DocumentExists(ctx context.Context, docID string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE doc_id = $1)`, docID).Scan(&exists)
	if err != nil {
		return false, fault.Wrap(fault.Transient, "store.document_exists", err)
	}
	return exists, nil
}

// NAVObservations returns every observation for a (fund, as-of) key.
func (r *Reader) NAVObservations(ctx context.Context, fundRef string, asOf time.Time) ([]models.NAVObservation, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT fund_ref, scope, as_of_date, value, currency, source_doc_id, created_at
		FROM nav_observations WHERE fund_ref = $1 AND as_of_date = $2
		ORDER BY created_at`, fundRef, asOf)
	if err != nil {
		return nil, fault.Wrap(fault.Transient, "store.nav_observations", err)
	}
	defer rows.Close()

	var obs []models.NAVObservation
	for rows.Next() {
		var o models.NAVObservation
		if err := rows.Scan(&o.FundRef, &o.Scope, &o.AsOfDate, &o.Value, &o.Currency, &o.SourceDocID, &o.CreatedAt); err != nil {
			return nil, fault.Wrap(fault.Transient, "store.nav_observations", err)
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// CapitalAccounts returns all investor rows for a (fund, as-of) key; their
// ending balances sum to the CAS-derived fund NAV.
func (r *Reader) CapitalAccounts(ctx context.Context, fundRef string, asOf time.Time) ([]models.CapitalAccountRow, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT fund_ref, investor_ref, as_of_date, beginning_balance, ending_balance,
			contributions_period, distributions_period, distributions_roc, distributions_gain,
			distributions_income, management_fees_period, partnership_expenses_period,
			realized_gain_loss_period, unrealized_gain_loss_period,
			total_commitment, drawn_commitment, unfunded_commitment,
			currency, source_doc_id, consistent, updated_at
		FROM capital_accounts WHERE fund_ref = $1 AND as_of_date = $2`, fundRef, asOf)
	if err != nil {
		return nil, fault.Wrap(fault.Transient, "store.capital_accounts", err)
	}
	defer rows.Close()
	return scanCapitalAccounts(rows)
}

// CapitalAccountHistory returns the latest rows for a fund across periods,
// newest first, up to limit periods.
func (r *Reader) CapitalAccountHistory(ctx context.Context, fundRef string, limit int) ([]models.CapitalAccountRow, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT fund_ref, investor_ref, as_of_date, beginning_balance, ending_balance,
			contributions_period, distributions_period, distributions_roc, distributions_gain,
			distributions_income, management_fees_period, partnership_expenses_period,
			realized_gain_loss_period, unrealized_gain_loss_period,
			total_commitment, drawn_commitment, unfunded_commitment,
			currency, source_doc_id, consistent, updated_at
		FROM capital_accounts WHERE fund_ref = $1
		ORDER BY as_of_date DESC LIMIT $2`, fundRef, limit)
	if err != nil {
		return nil, fault.Wrap(fault.Transient, "store.capital_account_history", err)
	}
	defer rows.Close()
	return scanCapitalAccounts(rows)
}

func scanCapitalAccounts(rows pgx.Rows) ([]models.CapitalAccountRow, error) {
	var out []models.CapitalAccountRow
	for rows.Next() {
		var c models.CapitalAccountRow
		if err := rows.Scan(&c.FundRef, &c.InvestorRef, &c.AsOfDate, &c.BeginningBalance, &c.EndingBalance,
			&c.Contributions, &c.Distributions, &c.DistributionsROC, &c.DistributionsGain,
			&c.DistributionsIncome, &c.ManagementFees, &c.PartnershipExpenses,
			&c.RealizedGainLoss, &c.UnrealizedGainLoss,
			&c.TotalCommitment, &c.DrawnCommitment, &c.UnfundedCommitment,
			&c.Currency, &c.SourceDocID, &c.Consistent, &c.UpdatedAt); err != nil {
			return nil, fault.Wrap(fault.Transient, "store.capital_accounts", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Cashflows returns a fund's full dated flow history, oldest first, as
// XIRR input.
func (r *Reader) Cashflows(ctx context.Context, fundRef string) ([]models.Cashflow, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT fund_ref, COALESCE(investor_ref, ''), flow_type, flow_date, amount, currency,
			source_doc_id, created_at
		FROM cashflows WHERE fund_ref = $1 ORDER BY flow_date`, fundRef)
	if err != nil {
		return nil, fault.Wrap(fault.Transient, "store.cashflows", err)
	}
	defer rows.Close()

	var flows []models.Cashflow
	for rows.Next() {
		var f models.Cashflow
		if err := rows.Scan(&f.FundRef, &f.InvestorRef, &f.FlowType, &f.FlowDate, &f.Amount,
			&f.Currency, &f.SourceDocID, &f.CreatedAt); err != nil {
			return nil, fault.Wrap(fault.Transient, "store.cashflows", err)
		}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

// ReportedPerformance returns the latest reported metrics for a (fund,
// as-of) key, or nil when none were reported.
func (r *Reader) ReportedPerformance(ctx context.Context, fundRef string, asOf time.Time) (*models.PerformanceMetric, error) {
	var p models.PerformanceMetric
	err := r.db.Pool.QueryRow(ctx, `
		SELECT fund_ref, as_of_date, irr_net, moic, tvpi, dpi, rvpi, called_pct,
			distributed_pct, source_doc_id, created_at
		FROM performance_metrics WHERE fund_ref = $1 AND as_of_date = $2
		ORDER BY created_at DESC LIMIT 1`, fundRef, asOf).
		Scan(&p.FundRef, &p.AsOfDate, &p.IRRNet, &p.MOIC, &p.TVPI, &p.DPI, &p.RVPI,
			&p.CalledPct, &p.DistributedPct, &p.SourceDocID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.Transient, "store.performance", err)
	}
	return &p, nil
}

// ActiveFundPeriods lists (fund_ref, as_of_date) pairs with documents
// persisted since the cutoff; the nightly reconciliation sweep walks them.
func (r *Reader) ActiveFundPeriods(ctx context.Context, since time.Time) (map[string][]time.Time, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT DISTINCT fund_ref, as_of_date FROM documents
		WHERE created_at >= $1 AND fund_ref IS NOT NULL AND as_of_date IS NOT NULL`, since)
	if err != nil {
		return nil, fault.Wrap(fault.Transient, "store.active_periods", err)
	}
	defer rows.Close()

	out := make(map[string][]time.Time)
	for rows.Next() {
		var fund string
		var asOf time.Time
		if err := rows.Scan(&fund, &asOf); err != nil {
			return nil, fault.Wrap(fault.Transient, "store.active_periods", err)
		}
		out[fund] = append(out[fund], asOf)
	}
	return out, rows.Err()
}
