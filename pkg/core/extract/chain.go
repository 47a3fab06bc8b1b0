// Package extract implements the multi-method extraction chain: anchors,
// table structure, then an LLM field matcher, each hit carrying a per-field
// confidence and an audit entry.
package extract

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fundpipe/pkg/core/metrics"
	"fundpipe/pkg/models"
)

const (
	// llmTextBudget caps the excerpt handed to the field matcher.
	llmTextBudget = 3000
	// llmTableBudget caps how many tables go along.
	llmTableBudget = 3
)

// FieldOracle is the LLM capability the chain consumes: given the catalog
// and document content, return raw string values keyed by field name.
type FieldOracle interface {
	ExtractFields(ctx context.Context, docType models.DocType, fields []Field, text string, tables []models.Table) (map[string]string, error)
}

// FieldValue is one resolved field after normalization.
type FieldValue struct {
	Name       string
	Raw        string
	Norm       string
	Amount     *float64
	Date       *time.Time
	Confidence float64
	Tag        string
	Status     models.ValidationStatus
}

// Result is the chain's output for one document.
type Result struct {
	DocType         models.DocType
	Fields          map[string]*FieldValue
	Audits          []models.FieldAudit
	Overall         float64
	Incomplete      bool
	Consistent      bool
	MissingRequired []string
}

// Amount returns a resolved numeric field.
func (r *Result) Amount(name string) (float64, bool) {
	if fv, ok := r.Fields[name]; ok && fv.Amount != nil {
		return *fv.Amount, true
	}
	return 0, false
}

// Date returns a resolved date field.
func (r *Result) Date(name string) (time.Time, bool) {
	if fv, ok := r.Fields[name]; ok && fv.Date != nil {
		return *fv.Date, true
	}
	return time.Time{}, false
}

// Str returns a resolved string field.
func (r *Result) Str(name string) (string, bool) {
	if fv, ok := r.Fields[name]; ok && fv.Norm != "" {
		return fv.Norm, true
	}
	return "", false
}

// Chain runs the prioritized extractors over a parsed document.
type Chain struct {
	oracle FieldOracle
	now    func() time.Time
	log    *logrus.Entry
}

// New builds a Chain. oracle may be nil; the chain then runs deterministic
// extractors only.
func New(oracle FieldOracle) *Chain {
	return &Chain{
		oracle: oracle,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logrus.WithField("component", "extractor"),
	}
}

// Extract resolves the catalog for docType against the parsed document.
// Partial extraction is not an error: missing required fields lower the
// overall confidence and produce Critical audits, but the Result is usable.
func (c *Chain) Extract(ctx context.Context, docType models.DocType, doc *models.ParsedDoc, filename string) *Result {
	catalog := Catalog(docType)
	text := doc.FullText()

	res := &Result{
		DocType:    docType,
		Fields:     make(map[string]*FieldValue),
		Consistent: true,
	}

	// Pass 1+2: anchors then tables, deterministic.
	winners := make(map[string]candidate)
	second := make(map[string]candidate)
	for _, field := range catalog {
		if cand, ok := extractAnchor(field, text); ok {
			winners[field.Name] = cand
			if tc, ok := extractTable(field, doc.Tables); ok {
				second[field.Name] = tc
			}
			continue
		}
		if cand, ok := extractTable(field, doc.Tables); ok {
			winners[field.Name] = cand
		}
	}

	// Pass 3: one LLM call covers both fill-in and corroboration.
	llmValues := c.llmPass(ctx, docType, catalog, text, doc.Tables, winners)

	for _, field := range catalog {
		cand, ok := winners[field.Name]
		if !ok {
			if raw, found := llmValues[field.Name]; found && strings.TrimSpace(raw) != "" {
				cand = candidate{raw: strings.TrimSpace(raw), confidence: llmConfidenceCeiling, tag: models.TagLLM}
				ok = true
			}
		}
		if !ok {
			continue
		}

		fv, err := normalizeCandidate(field, cand)
		if err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{"field": field.Name, "raw": cand.raw}).Debug("candidate failed normalization")
			continue
		}

		c.corroborate(field, fv, second, llmValues)
		res.Fields[field.Name] = fv
	}

	c.fillAsOfFromFilename(res, filename)
	c.validate(docType, res)
	c.auditMissingRequired(docType, res)
	res.Overall = overallConfidence(catalog, res)
	res.Audits = append(res.Audits, fieldAudits(res)...)
	return res
}

// llmPass invokes the field matcher once, with the text and table budget.
func (c *Chain) llmPass(ctx context.Context, docType models.DocType, catalog []Field, text string, tables []models.Table, winners map[string]candidate) map[string]string {
	if c.oracle == nil {
		return nil
	}
	excerpt := text
	if len(excerpt) > llmTextBudget {
		excerpt = excerpt[:llmTextBudget]
	}
	if len(tables) > llmTableBudget {
		tables = tables[:llmTableBudget]
	}

	values, err := c.oracle.ExtractFields(ctx, docType, catalog, excerpt, tables)
	if err != nil {
		metrics.LLMCalls.WithLabelValues("extract", "error").Inc()
		c.log.WithError(err).Warn("llm field matcher failed, deterministic results stand")
		return nil
	}
	metrics.LLMCalls.WithLabelValues("extract", "ok").Inc()
	return values
}

// corroborate upgrades a field's confidence when an independent extractor
// agrees within tolerance.
func (c *Chain) corroborate(field Field, fv *FieldValue, second map[string]candidate, llmValues map[string]string) {
	agree := false
	if tc, ok := second[field.Name]; ok && fv.Tag != tc.tag {
		if other, err := normalizeCandidate(field, tc); err == nil && valuesAgree(field.Kind, fv, other) {
			agree = true
		}
	}
	if raw, ok := llmValues[field.Name]; ok && fv.Tag != models.TagLLM {
		cand := candidate{raw: strings.TrimSpace(raw), confidence: llmConfidenceCeiling, tag: models.TagLLM}
		if other, err := normalizeCandidate(field, cand); err == nil && valuesAgree(field.Kind, fv, other) {
			agree = true
		}
	}
	if agree && fv.Confidence < corroborationFloor {
		fv.Confidence = corroborationFloor
	}
}

// valuesAgree compares two normalized values by field kind.
func valuesAgree(kind FieldKind, a, b *FieldValue) bool {
	switch kind {
	case KindAmount, KindPercent, KindMultiple:
		if a.Amount == nil || b.Amount == nil {
			return false
		}
		tol := math.Max(0.001*math.Abs(*a.Amount), 0.01)
		return math.Abs(*a.Amount-*b.Amount) <= tol
	case KindDate:
		return a.Date != nil && b.Date != nil && a.Date.Equal(*b.Date)
	default:
		return strings.EqualFold(a.Norm, b.Norm)
	}
}

// normalizeCandidate runs a raw hit through the kind-specific parser.
func normalizeCandidate(field Field, cand candidate) (*FieldValue, error) {
	fv := &FieldValue{
		Name:       field.Name,
		Raw:        cand.raw,
		Confidence: cand.confidence,
		Tag:        cand.tag,
		Status:     models.ValidationOK,
	}
	switch field.Kind {
	case KindAmount, KindPercent, KindMultiple:
		v, err := ParseAmount(cand.raw)
		if err != nil {
			return nil, err
		}
		fv.Amount = &v
		fv.Norm = strconv.FormatFloat(v, 'f', -1, 64)
	case KindDate:
		t, err := ParseDate(cand.raw)
		if err != nil {
			return nil, err
		}
		fv.Date = &t
		fv.Norm = t.Format("2006-01-02")
	default:
		fv.Norm = strings.TrimSpace(cand.raw)
	}
	return fv, nil
}

// fillAsOfFromFilename recovers a missing as_of_date from filename tokens
// at reduced confidence.
func (c *Chain) fillAsOfFromFilename(res *Result, filename string) {
	if _, ok := res.Fields[FieldAsOfDate]; ok {
		return
	}
	t, ok := DateFromFilename(filename)
	if !ok {
		return
	}
	norm := t.Format("2006-01-02")
	res.Fields[FieldAsOfDate] = &FieldValue{
		Name:       FieldAsOfDate,
		Raw:        filename,
		Norm:       norm,
		Date:       &t,
		Confidence: filenameDateConfidence,
		Tag:        models.TagFilename,
		Status:     models.ValidationOK,
	}
}

// validate applies the identity and sanity rules. Violations mark audits
// Inconsistent but never discard the extraction.
func (c *Chain) validate(docType models.DocType, res *Result) {
	if t, ok := res.Date(FieldAsOfDate); ok && !SaneDate(t, c.now()) {
		res.Fields[FieldAsOfDate].Status = models.ValidationSuspect
	}

	for _, name := range []string{FieldContributions, FieldDistributions, FieldManagementFees,
		FieldTotalCommitment, FieldDrawnCommitment, FieldUnfundedCommit, FieldCallAmount, FieldDistAmount} {
		if v, ok := res.Amount(name); ok && v < 0 {
			res.Fields[name].Status = models.ValidationInconsistent
			res.Consistent = false
		}
	}

	if docType == models.DocCapitalAccountStatement {
		c.validateBalanceIdentity(res)
		c.validateCommitmentIdentity(res)
	}
}

// validateBalanceIdentity checks
// ending = beginning + contributions − distributions − fees − expenses
//          + realized + unrealized
// within max(0.5% of |ending|, 100 units).
func (c *Chain) validateBalanceIdentity(res *Result) {
	ending, ok := res.Amount(FieldEndingBalance)
	if !ok {
		return
	}
	beginning, ok := res.Amount(FieldBeginningBalance)
	if !ok {
		return
	}
	get := func(name string) float64 {
		v, _ := res.Amount(name)
		return v
	}
	expected := beginning +
		get(FieldContributions) -
		get(FieldDistributions) -
		get(FieldManagementFees) -
		get(FieldPartnershipExp) +
		get(FieldRealizedGL) +
		get(FieldUnrealizedGL)

	tol := math.Max(0.005*math.Abs(ending), 100)
	if math.Abs(ending-expected) > tol {
		res.Fields[FieldEndingBalance].Status = models.ValidationInconsistent
		res.Consistent = false
	}
}

// validateCommitmentIdentity checks unfunded = total − drawn within
// max(0.1% of total, 1 unit). A missing drawn commitment is derived from
// the other two instead of failing the check.
func (c *Chain) validateCommitmentIdentity(res *Result) {
	total, okT := res.Amount(FieldTotalCommitment)
	drawn, okD := res.Amount(FieldDrawnCommitment)
	unfunded, okU := res.Amount(FieldUnfundedCommit)

	if okT && okU && !okD {
		derived := total - unfunded
		conf := math.Min(res.Fields[FieldTotalCommitment].Confidence, res.Fields[FieldUnfundedCommit].Confidence)
		res.Fields[FieldDrawnCommitment] = &FieldValue{
			Name:       FieldDrawnCommitment,
			Raw:        "",
			Norm:       strconv.FormatFloat(derived, 'f', -1, 64),
			Amount:     &derived,
			Confidence: conf,
			Tag:        models.TagResolver,
			Status:     models.ValidationOK,
		}
		return
	}
	if !okT || !okD || !okU {
		return
	}

	tol := math.Max(0.001*math.Abs(total), 1)
	if math.Abs(unfunded-(total-drawn)) > tol {
		res.Fields[FieldUnfundedCommit].Status = models.ValidationInconsistent
		res.Consistent = false
	}
}

// auditMissingRequired emits Critical audits for required fields the chain
// could not resolve.
func (c *Chain) auditMissingRequired(docType models.DocType, res *Result) {
	for _, name := range RequiredFields(docType) {
		if _, ok := res.Fields[name]; ok {
			continue
		}
		res.Incomplete = true
		res.MissingRequired = append(res.MissingRequired, name)
		res.Audits = append(res.Audits, models.FieldAudit{
			FieldName: name,
			Status:    models.ValidationMissing,
			Severity:  models.AuditCritical,
			Note:      "required field not extracted",
			CreatedAt: c.now(),
		})
	}
}

// overallConfidence is the weighted mean of field confidences: required
// fields weigh double, missing required fields contribute zero.
func overallConfidence(catalog []Field, res *Result) float64 {
	var sum, weight float64
	for _, field := range catalog {
		w := 1.0
		if field.Required {
			w = 2.0
		}
		fv, ok := res.Fields[field.Name]
		if !ok {
			if field.Required {
				weight += w
			}
			continue
		}
		sum += w * fv.Confidence
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

// fieldAudits renders one audit row per resolved field. DocID is stamped by
// the persistence layer once the document row exists.
func fieldAudits(res *Result) []models.FieldAudit {
	audits := make([]models.FieldAudit, 0, len(res.Fields))
	for _, fv := range res.Fields {
		audits = append(audits, models.FieldAudit{
			FieldName:       fv.Name,
			RawValue:        fv.Raw,
			NormalizedValue: fv.Norm,
			ExtractorTag:    fv.Tag,
			Confidence:      fv.Confidence,
			Status:          fv.Status,
			CreatedAt:       time.Now().UTC(),
		})
	}
	return audits
}
