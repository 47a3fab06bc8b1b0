package models

import "time"

// ValidationStatus is the outcome of field-level validation.
type ValidationStatus string

const (
	ValidationOK           ValidationStatus = "ok"
	ValidationInconsistent ValidationStatus = "inconsistent"
	ValidationMissing      ValidationStatus = "missing"
	ValidationSuspect      ValidationStatus = "suspect"
)

// AuditSeverity grades audit entries that are not tied to a tolerance check.
type AuditSeverity string

const (
	AuditCritical AuditSeverity = "critical"
	AuditHigh     AuditSeverity = "high"
	AuditMedium   AuditSeverity = "medium"
	AuditLow      AuditSeverity = "low"
	AuditInfo     AuditSeverity = "info"
)

// FieldAudit records one extractor's attempt to populate one field.
// Rows are immutable; overrides append a new row with Override set.
type FieldAudit struct {
	DocID           string           `json:"doc_id"`
	FieldName       string           `json:"field_name"`
	RawValue        string           `json:"raw_value"`
	NormalizedValue string           `json:"normalized_value"`
	ExtractorTag    string           `json:"extractor_tag"`
	Confidence      float64          `json:"confidence"`
	Status          ValidationStatus `json:"validation_status"`
	Severity        AuditSeverity    `json:"severity,omitempty"`
	Note            string           `json:"note,omitempty"`
	Override        bool             `json:"override,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Extractor tags recorded on audit rows.
const (
	TagAnchor   = "anchor_regex"
	TagTable    = "table_structure"
	TagLLM      = "llm_field_matcher"
	TagFilename = "filename_fallback"
	TagResolver = "resolver"
)
