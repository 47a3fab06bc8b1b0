package models

import "time"

// DocType classifies a source document.
type DocType string

const (
	DocCapitalAccountStatement DocType = "capital_account_statement"
	DocQuarterlyReport         DocType = "quarterly_report"
	DocAnnualReport            DocType = "annual_report"
	DocCapitalCallNotice       DocType = "capital_call_notice"
	DocDistributionNotice      DocType = "distribution_notice"
	DocLPA                     DocType = "lpa"
	DocPPM                     DocType = "ppm"
	DocSubscription            DocType = "subscription"
	DocOther                   DocType = "other"
)

// Specificity ranks doc types for deterministic tie-breaking: a
// CapitalAccountStatement beats a QuarterlyReport when anchor weights tie.
func (t DocType) Specificity() int {
	switch t {
	case DocCapitalAccountStatement:
		return 9
	case DocCapitalCallNotice:
		return 8
	case DocDistributionNotice:
		return 7
	case DocSubscription:
		return 6
	case DocQuarterlyReport:
		return 5
	case DocAnnualReport:
		return 4
	case DocLPA:
		return 3
	case DocPPM:
		return 2
	default:
		return 0
	}
}

// Document is one ingested source document. DocID is stable: the first 16 hex
// characters of the file's SHA-256 content hash.
type Document struct {
	DocID           string     `json:"doc_id"`
	DocType         DocType    `json:"doc_type"`
	ClassConfidence float64    `json:"classification_confidence"`
	SourcePath      string     `json:"source_path"`
	InvestorRef     string     `json:"investor_ref"`
	FundRef         string     `json:"fund_ref,omitempty"`
	AsOfDate        *time.Time `json:"as_of_date,omitempty"`
	Currency        string     `json:"currency,omitempty"`
	OverallConf     float64    `json:"overall_confidence"`
	ExtractionError string     `json:"extraction_error"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ProcessStatus values returned by ProcessFile.
const (
	StatusProcessed        = "processed"
	StatusAlreadyProcessed = "already_processed"
	StatusFailed           = "failed"
	StatusPartial          = "partial"
)

// ProcessResult summarizes one ProcessFile call.
type ProcessResult struct {
	DocID         string  `json:"doc_id"`
	Status        string  `json:"status"`
	Confidence    float64 `json:"confidence"`
	FindingsCount int     `json:"findings_count"`
	Error         string  `json:"error,omitempty"`
}
