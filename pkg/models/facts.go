package models

import "time"

// Investor is a canonical investor identity. Funds are scoped under it.
type Investor struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Fund is a canonical fund identity scoped to an investor.
type Fund struct {
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	InvestorRef string    `json:"investor_ref"`
	Currency    string    `json:"currency,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CapitalAccountRow holds one investor's capital account for one period.
// Keyed by (fund_ref, investor_ref, as_of_date).
type CapitalAccountRow struct {
	FundRef     string    `json:"fund_ref"`
	InvestorRef string    `json:"investor_ref"`
	AsOfDate    time.Time `json:"as_of_date"`

	BeginningBalance float64 `json:"beginning_balance"`
	EndingBalance    float64 `json:"ending_balance"`

	Contributions        float64 `json:"contributions_period"`
	Distributions        float64 `json:"distributions_period"`
	DistributionsROC     float64 `json:"distributions_roc"`    // return of capital
	DistributionsGain    float64 `json:"distributions_gain"`   // realized gain
	DistributionsIncome  float64 `json:"distributions_income"` // income/dividend
	ManagementFees       float64 `json:"management_fees_period"`
	PartnershipExpenses  float64 `json:"partnership_expenses_period"`
	RealizedGainLoss     float64 `json:"realized_gain_loss_period"`
	UnrealizedGainLoss   float64 `json:"unrealized_gain_loss_period"`

	TotalCommitment    float64 `json:"total_commitment"`
	DrawnCommitment    float64 `json:"drawn_commitment"`
	UnfundedCommitment float64 `json:"unfunded_commitment"`

	Currency    string    `json:"currency"`
	SourceDocID string    `json:"source_doc_id"`
	Consistent  bool      `json:"consistent"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NAVScope distinguishes fund-level from investor-level NAV observations.
type NAVScope string

const (
	ScopeFund     NAVScope = "fund"
	ScopeInvestor NAVScope = "investor"
)

// NAVObservation is one sourced NAV value. Observations are append-only;
// multiple observations for the same key feed reconciliation.
type NAVObservation struct {
	FundRef     string    `json:"fund_ref"`
	Scope       NAVScope  `json:"scope"`
	AsOfDate    time.Time `json:"as_of_date"`
	Value       float64   `json:"value"`
	Currency    string    `json:"currency"`
	SourceDocID string    `json:"source_doc_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// FlowType encodes cashflow direction; amounts are always non-negative.
type FlowType string

const (
	FlowCall         FlowType = "call"
	FlowDistribution FlowType = "distribution"
	FlowFee          FlowType = "fee"
	FlowTax          FlowType = "tax"
	FlowOther        FlowType = "other"
)

// Cashflow is one dated flow between investor and fund.
type Cashflow struct {
	FundRef     string    `json:"fund_ref"`
	InvestorRef string    `json:"investor_ref,omitempty"`
	FlowType    FlowType  `json:"flow_type"`
	FlowDate    time.Time `json:"flow_date"`
	Amount      float64   `json:"amount"`
	Currency    string    `json:"currency"`
	SourceDocID string    `json:"source_doc_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// PerformanceMetric holds reported fund performance for one period.
type PerformanceMetric struct {
	FundRef        string    `json:"fund_ref"`
	AsOfDate       time.Time `json:"as_of_date"`
	IRRNet         *float64  `json:"irr_net,omitempty"`
	MOIC           *float64  `json:"moic,omitempty"`
	TVPI           *float64  `json:"tvpi,omitempty"`
	DPI            *float64  `json:"dpi,omitempty"`
	RVPI           *float64  `json:"rvpi,omitempty"`
	CalledPct      *float64  `json:"called_pct,omitempty"`
	DistributedPct *float64  `json:"distributed_pct,omitempty"`
	SourceDocID    string    `json:"source_doc_id"`
	CreatedAt      time.Time `json:"created_at"`
}
