package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fundpipe/pkg/models"
)

// cashflow reconciliation looks back over the last four reporting periods.
const (
	cashflowPeriods = 4
	feeRateCeiling  = 0.025 // per period, against contributions
	// Quarterly periods are ~91 days; beyond this gap a period is missing.
	maxPeriodGapDays = 100
)

type periodFlows struct {
	AsOf          string   `json:"as_of"`
	Contributions float64  `json:"contributions"`
	Distributions float64  `json:"distributions"`
	Fees          float64  `json:"fees"`
	DocIDs        []string `json:"source_doc_ids"`
}

// checkCashflow sums flows per period from capital account history and
// flags negative contributions (Fail), fee rates above 2.5% of period
// contributions (Warning), and gaps between reporting periods (Warning).
func (e *Engine) checkCashflow(ctx context.Context, fundRef string, asOf time.Time) ([]models.ReconciliationFinding, error) {
	// Rows are per investor; over-fetch so four distinct periods survive
	// grouping even with several investors per period.
	rows, err := e.src.CapitalAccountHistory(ctx, fundRef, cashflowPeriods*8)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	byPeriod := make(map[string]*periodFlows)
	dates := make(map[string]time.Time)
	for _, r := range rows {
		key := r.AsOfDate.Format("2006-01-02")
		p, ok := byPeriod[key]
		if !ok {
			p = &periodFlows{AsOf: key}
			byPeriod[key] = p
			dates[key] = r.AsOfDate
		}
		p.Contributions += r.Contributions
		p.Distributions += r.Distributions
		p.Fees += r.ManagementFees
		p.DocIDs = append(p.DocIDs, r.SourceDocID)
	}

	keys := make([]string, 0, len(byPeriod))
	for k := range byPeriod {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > cashflowPeriods {
		keys = keys[len(keys)-cashflowPeriods:]
	}

	worst := models.CheckPass
	var issues []string
	var recs []string
	periods := make([]periodFlows, 0, len(keys))
	for i, k := range keys {
		p := byPeriod[k]
		periods = append(periods, *p)

		if p.Contributions < 0 {
			worst = models.WorstStatus(worst, models.CheckFail)
			issues = append(issues, fmt.Sprintf("negative contributions %.2f in period %s", p.Contributions, p.AsOf))
			recs = append(recs, "Re-extract the source document for period "+p.AsOf)
		}
		if p.Contributions > 0 && p.Fees/p.Contributions > feeRateCeiling {
			worst = models.WorstStatus(worst, models.CheckWarning)
			issues = append(issues, fmt.Sprintf("fee rate %.2f%% of contributions in period %s exceeds %.1f%%",
				p.Fees/p.Contributions*100, p.AsOf, feeRateCeiling*100))
			recs = append(recs, "Verify the management fee basis for period "+p.AsOf)
		}
		if i > 0 {
			gap := dates[k].Sub(dates[keys[i-1]])
			if gap > maxPeriodGapDays*24*time.Hour {
				worst = models.WorstStatus(worst, models.CheckWarning)
				issues = append(issues, fmt.Sprintf("missing reporting period between %s and %s", keys[i-1], k))
				recs = append(recs, "Request the missing statement from the fund administrator")
			}
		}
	}

	details := fmt.Sprintf("cashflows consistent over last %d periods", len(keys))
	if len(issues) > 0 {
		details = fmt.Sprintf("%d cashflow issues over last %d periods", len(issues), len(keys))
	}

	return []models.ReconciliationFinding{{
		Type:     models.ReconcileCashflow,
		Severity: severityFor(worst),
		Status:   worst,
		Details:  details,
		Evidence: evidenceJSON(map[string]interface{}{
			"periods": periods,
			"issues":  issues,
		}),
		Recommendations: recs,
	}}, nil
}
