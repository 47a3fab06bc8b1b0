package reconcile

import (
	"context"
	"fmt"
	"math"
	"time"

	"fundpipe/pkg/models"
)

// checkPerformance recomputes IRR and the multiples from the full cashflow
// history plus the current NAV and compares them with reported values.
// irr_net is stored as a decimal fraction; the irr_pp tolerance is in
// percentage points. Metric mismatches beyond tolerance are Fail; a broken
// TVPI = DPI + RVPI identity in the reported numbers is a Warning.
func (e *Engine) checkPerformance(ctx context.Context, fundRef string, asOf time.Time) ([]models.ReconciliationFinding, error) {
	reported, err := e.src.ReportedPerformance(ctx, fundRef, asOf)
	if err != nil {
		return nil, err
	}
	if reported == nil {
		return nil, nil
	}

	flows, err := e.src.Cashflows(ctx, fundRef)
	if err != nil {
		return nil, err
	}
	rows, err := e.src.CapitalAccounts(ctx, fundRef, asOf)
	if err != nil {
		return nil, err
	}

	var nav float64
	for _, r := range rows {
		nav += r.EndingBalance
	}

	var contributions, distributions float64
	points := make([]FlowPoint, 0, len(flows)+1)
	for _, f := range flows {
		switch f.FlowType {
		case models.FlowCall:
			contributions += f.Amount
			points = append(points, FlowPoint{Date: f.FlowDate, Amount: -f.Amount})
		case models.FlowDistribution:
			distributions += f.Amount
			points = append(points, FlowPoint{Date: f.FlowDate, Amount: f.Amount})
		}
	}
	if contributions == 0 {
		return nil, nil
	}
	if nav != 0 {
		// Terminal NAV counts as an inflow at the valuation date.
		points = append(points, FlowPoint{Date: asOf, Amount: nav})
	}

	computed := map[string]float64{
		"dpi":  distributions / contributions,
		"rvpi": nav / contributions,
		"moic": (distributions + nav) / contributions,
	}
	computed["tvpi"] = computed["dpi"] + computed["rvpi"]

	worst := models.CheckPass
	var issues []string
	var recs []string

	compare := func(name string, rep *float64, tol float64) {
		if rep == nil {
			return
		}
		if diff := math.Abs(computed[name] - *rep); diff > tol {
			worst = models.WorstStatus(worst, models.CheckFail)
			issues = append(issues, fmt.Sprintf("%s reported %.4f vs computed %.4f (diff %.4f)", name, *rep, computed[name], diff))
		}
	}
	compare("moic", reported.MOIC, e.tol.MultipleAbs)
	compare("tvpi", reported.TVPI, e.tol.MultipleAbs)
	compare("dpi", reported.DPI, e.tol.MultipleAbs)
	compare("rvpi", reported.RVPI, e.tol.MultipleAbs)

	evidence := map[string]interface{}{
		"computed":      computed,
		"nav":           nav,
		"contributions": contributions,
		"distributions": distributions,
		"reported_doc":  reported.SourceDocID,
	}

	if irr, xerr := XIRR(points); xerr == nil {
		evidence["computed_irr"] = irr
		if reported.IRRNet != nil {
			if diffPp := math.Abs(irr-*reported.IRRNet) * 100; diffPp > e.tol.IRRPp {
				worst = models.WorstStatus(worst, models.CheckFail)
				issues = append(issues, fmt.Sprintf("irr_net reported %.4f vs computed %.4f (%.2f pp apart)", *reported.IRRNet, irr, diffPp))
			}
		}
	} else {
		evidence["irr_error"] = xerr.Error()
	}

	if reported.TVPI != nil && reported.DPI != nil && reported.RVPI != nil {
		if gap := math.Abs(*reported.TVPI - (*reported.DPI + *reported.RVPI)); gap > e.tol.TVPIIdentity {
			worst = models.WorstStatus(worst, models.CheckWarning)
			issues = append(issues, fmt.Sprintf("reported TVPI %.4f != DPI + RVPI %.4f", *reported.TVPI, *reported.DPI+*reported.RVPI))
			recs = append(recs, "Reported multiples break TVPI = DPI + RVPI; verify extraction")
		}
	}

	details := "reported performance matches recomputation"
	if len(issues) > 0 {
		details = fmt.Sprintf("%d performance discrepancies against recomputation", len(issues))
		recs = append(recs, "Re-check the performance section of the source report")
	}
	evidence["issues"] = issues

	return []models.ReconciliationFinding{{
		Type:            models.ReconcilePerformance,
		Severity:        severityFor(worst),
		Status:          worst,
		Details:         details,
		Evidence:        evidenceJSON(evidence),
		Recommendations: recs,
	}}, nil
}
