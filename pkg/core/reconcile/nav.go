package reconcile

import (
	"context"
	"fmt"
	"math"
	"time"

	"fundpipe/pkg/models"
)

// navSource is one NAV value with its provenance.
type navSource struct {
	Label  string   `json:"label"`
	Value  float64  `json:"value"`
	DocID  string   `json:"source_doc_id,omitempty"`
	DocIDs []string `json:"source_doc_ids,omitempty"`
}

// checkNAV compares NAV values across sources: the sum of capital account
// ending balances, reported fund-scope observations, and the NAV implied by
// rolling the balance identity forward. Fewer than two sources means there
// is nothing to compare and no finding is emitted.
//
// Variance ladder against the reference value: within max(nav_pct, nav_abs)
// Pass; under 1% Warning; 1% and over Fail.
func (e *Engine) checkNAV(ctx context.Context, fundRef string, asOf time.Time) ([]models.ReconciliationFinding, error) {
	rows, err := e.src.CapitalAccounts(ctx, fundRef, asOf)
	if err != nil {
		return nil, err
	}
	obs, err := e.src.NAVObservations(ctx, fundRef, asOf)
	if err != nil {
		return nil, err
	}

	var sources []navSource
	if len(rows) > 0 {
		var sum, derived float64
		var docs []string
		for _, r := range rows {
			sum += r.EndingBalance
			derived += r.BeginningBalance + r.Contributions - r.Distributions -
				r.ManagementFees - r.PartnershipExpenses + r.RealizedGainLoss + r.UnrealizedGainLoss
			docs = append(docs, r.SourceDocID)
		}
		sources = append(sources,
			navSource{Label: "capital_account_sum", Value: sum, DocIDs: docs},
			navSource{Label: "balance_identity_rollforward", Value: derived, DocIDs: docs},
		)
	}
	for _, o := range obs {
		if o.Scope != models.ScopeFund {
			continue
		}
		sources = append(sources, navSource{Label: "reported_fund_nav", Value: o.Value, DocID: o.SourceDocID})
	}

	if len(sources) < 2 {
		return nil, nil
	}

	ref := sources[0]
	worst := models.CheckPass
	maxVariance := 0.0
	for _, s := range sources[1:] {
		status, pct := e.navVariance(ref.Value, s.Value)
		worst = models.WorstStatus(worst, status)
		if pct > maxVariance {
			maxVariance = pct
		}
	}

	details := fmt.Sprintf("NAV agrees across %d sources within tolerance", len(sources))
	var recs []string
	if worst != models.CheckPass {
		details = fmt.Sprintf("NAV variance up to %.2f%% across %d sources", maxVariance*100, len(sources))
		recs = []string{
			"Confirm which source document carries the authoritative NAV",
			"Check for timing differences between statement cut-off dates",
		}
	}

	return []models.ReconciliationFinding{{
		Type:     models.ReconcileNAV,
		Severity: severityFor(worst),
		Status:   worst,
		Details:  details,
		Evidence: evidenceJSON(map[string]interface{}{
			"sources":      sources,
			"max_variance": maxVariance,
		}),
		Recommendations: recs,
	}}, nil
}

// navVariance grades the spread between two NAV values and returns the
// relative variance.
func (e *Engine) navVariance(a, b float64) (models.CheckStatus, float64) {
	diff := math.Abs(a - b)
	base := math.Max(math.Abs(a), math.Abs(b))
	if base == 0 {
		if diff == 0 {
			return models.CheckPass, 0
		}
		return models.CheckFail, 1
	}
	pct := diff / base
	if diff <= e.tol.NAVAbs || pct <= e.tol.NAVPct {
		return models.CheckPass, pct
	}
	if pct < 0.01 {
		return models.CheckWarning, pct
	}
	return models.CheckFail, pct
}
