package reconcile

import (
	"context"
	"fmt"
	"math"
	"time"

	"fundpipe/pkg/models"
)

// checkCommitment verifies per investor that unfunded = total - drawn
// within tolerance and that drawn never exceeds total. Both violations are
// Fail: commitment numbers feed capital call planning.
func (e *Engine) checkCommitment(ctx context.Context, fundRef string, asOf time.Time) ([]models.ReconciliationFinding, error) {
	rows, err := e.src.CapitalAccounts(ctx, fundRef, asOf)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	worst := models.CheckPass
	var issues []string
	var recs []string
	evidence := make([]map[string]interface{}, 0, len(rows))

	for _, r := range rows {
		tol := math.Max(e.tol.CommitmentPct*math.Abs(r.TotalCommitment), e.tol.CommitmentAbs)
		expected := r.TotalCommitment - r.DrawnCommitment

		evidence = append(evidence, map[string]interface{}{
			"investor_ref":  r.InvestorRef,
			"total":         r.TotalCommitment,
			"drawn":         r.DrawnCommitment,
			"unfunded":      r.UnfundedCommitment,
			"source_doc_id": r.SourceDocID,
		})

		if math.Abs(r.UnfundedCommitment-expected) > tol {
			worst = models.WorstStatus(worst, models.CheckFail)
			issues = append(issues, fmt.Sprintf("%s: unfunded %.2f != total %.2f - drawn %.2f",
				r.InvestorRef, r.UnfundedCommitment, r.TotalCommitment, r.DrawnCommitment))
			recs = append(recs, "Re-verify commitment figures for investor "+r.InvestorRef)
		}
		if r.DrawnCommitment > r.TotalCommitment+tol {
			worst = models.WorstStatus(worst, models.CheckFail)
			issues = append(issues, fmt.Sprintf("%s: drawn %.2f exceeds total commitment %.2f",
				r.InvestorRef, r.DrawnCommitment, r.TotalCommitment))
			recs = append(recs, "Check for a commitment increase not yet recorded for "+r.InvestorRef)
		}
	}

	details := fmt.Sprintf("commitments consistent for %d investors", len(rows))
	if len(issues) > 0 {
		details = fmt.Sprintf("%d commitment violations across %d investors", len(issues), len(rows))
	}

	return []models.ReconciliationFinding{{
		Type:     models.ReconcileCommitment,
		Severity: severityFor(worst),
		Status:   worst,
		Details:  details,
		Evidence: evidenceJSON(map[string]interface{}{
			"investors": evidence,
			"issues":    issues,
		}),
		Recommendations: recs,
	}}, nil
}
