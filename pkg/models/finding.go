package models

import "time"

// Severity grades reconciliation findings.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities, worst first. Used for worst-of aggregation.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// WorstSeverity returns the higher-ranked of two severities.
func WorstSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// CheckStatus is the pass/warn/fail outcome of one reconciliation check.
type CheckStatus string

const (
	CheckPass    CheckStatus = "pass"
	CheckWarning CheckStatus = "warning"
	CheckFail    CheckStatus = "fail"
)

// Rank orders statuses, worst first.
func (s CheckStatus) Rank() int {
	switch s {
	case CheckFail:
		return 2
	case CheckWarning:
		return 1
	default:
		return 0
	}
}

// WorstStatus returns the worse of two check statuses.
func WorstStatus(a, b CheckStatus) CheckStatus {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ReconciliationType names the four cross-source checks.
type ReconciliationType string

const (
	ReconcileNAV         ReconciliationType = "nav"
	ReconcileCashflow    ReconciliationType = "cashflow"
	ReconcilePerformance ReconciliationType = "performance"
	ReconcileCommitment  ReconciliationType = "commitment"
)

// ReconciliationFinding is one finding produced by a reconciliation run.
// Details carries a JSON evidence blob including the source doc ids.
type ReconciliationFinding struct {
	FundRef         string             `json:"fund_ref"`
	AsOfDate        time.Time          `json:"as_of_date"`
	Type            ReconciliationType `json:"reconciliation_type"`
	Severity        Severity           `json:"severity"`
	Status          CheckStatus        `json:"status"`
	Details         string             `json:"details"`
	Evidence        string             `json:"evidence,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// ReconciliationRun aggregates the findings of one (fund, as_of) run.
// OverallStatus is the worst severity encountered across findings.
type ReconciliationRun struct {
	RunID           string                  `json:"run_id"`
	FundRef         string                  `json:"fund_ref"`
	AsOfDate        time.Time               `json:"as_of_date"`
	Scope           []ReconciliationType    `json:"scope"`
	Findings        []ReconciliationFinding `json:"findings"`
	OverallStatus   CheckStatus             `json:"overall_status"`
	OverallSeverity Severity                `json:"overall_severity"`
	NeedsReview     bool                    `json:"needs_review"`
	StartedAt       time.Time               `json:"started_at"`
	FinishedAt      time.Time               `json:"finished_at"`
}
