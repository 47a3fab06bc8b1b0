package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundpipe/pkg/models"
)

const casText = `Capital Account Statement
Fund Name: Alpha Fund IV, L.P.
Investor: Pension Trust Alpha
As of Date: 2023-12-31
Reporting Currency: EUR

Beginning Balance:            35,000,000
Contributions:                 5,000,000
Distributions:                 4,000,000
Management Fees:                 250,000
Realized Gain:                   250,000
Unrealized Gain:               4,700,000
Ending Balance:               40,700,000

Total Commitment:             50,000,000
Unfunded Commitment:          15,000,000
`

type fakeFieldOracle struct {
	values map[string]string
	err    error
	calls  int
}

func (f *fakeFieldOracle) ExtractFields(_ context.Context, _ models.DocType, _ []Field, _ string, _ []models.Table) (map[string]string, error) {
	f.calls++
	return f.values, f.err
}

func parsedDoc(text string, tables ...models.Table) *models.ParsedDoc {
	return &models.ParsedDoc{Pages: []models.Page{{No: 1, Text: text}}, Tables: tables}
}

func TestCapitalAccountHappyPath(t *testing.T) {
	chain := New(nil)
	res := chain.Extract(context.Background(), models.DocCapitalAccountStatement, parsedDoc(casText), "alpha_cas_2023.pdf")

	for name, want := range map[string]float64{
		FieldBeginningBalance: 35_000_000,
		FieldEndingBalance:    40_700_000,
		FieldContributions:    5_000_000,
		FieldDistributions:    4_000_000,
		FieldManagementFees:   250_000,
		FieldTotalCommitment:  50_000_000,
		FieldUnfundedCommit:   15_000_000,
	} {
		got, ok := res.Amount(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	asOf, ok := res.Date(FieldAsOfDate)
	require.True(t, ok)
	assert.Equal(t, "2023-12-31", asOf.Format("2006-01-02"))

	fund, ok := res.Str(FieldFundName)
	require.True(t, ok)
	assert.Contains(t, fund, "Alpha Fund IV")

	assert.True(t, res.Consistent, "balance identity holds")
	assert.False(t, res.Incomplete)
	assert.GreaterOrEqual(t, res.Overall, 0.8)
	assert.LessOrEqual(t, res.Overall, 1.0)

	// Grouped amounts normalize to a form the text does not contain, so the
	// anchor hit loses the verbatim bump; the ISO date keeps it.
	assert.InDelta(t, 0.8, res.Fields[FieldEndingBalance].Confidence, 1e-9)
	assert.InDelta(t, 0.9, res.Fields[FieldAsOfDate].Confidence, 1e-9)

	// Drawn commitment is derived from total − unfunded.
	drawn, ok := res.Amount(FieldDrawnCommitment)
	require.True(t, ok)
	assert.Equal(t, 35_000_000.0, drawn)
	assert.Equal(t, models.TagResolver, res.Fields[FieldDrawnCommitment].Tag)
}

func TestAnchorVerbatimPenalty(t *testing.T) {
	field := Field{Name: FieldEndingBalance, Kind: KindAmount, Aliases: []string{"ending balance"}}

	grouped, ok := extractAnchor(field, "Ending Balance: 40,700,000\n")
	require.True(t, ok)
	assert.InDelta(t, 0.8, grouped.confidence, 1e-9, "normalized 40700000 is not in the text")

	plain, ok := extractAnchor(field, "Ending Balance: 40700000\n")
	require.True(t, ok)
	assert.InDelta(t, 0.9, plain.confidence, 1e-9, "ungrouped value survives normalization verbatim")
}

func TestBalanceIdentityViolationMarksInconsistent(t *testing.T) {
	text := `Capital Account Statement
As of Date: 2023-12-31
Fund: Alpha Fund IV
Beginning Balance: 35,000,000
Contributions: 5,000,000
Ending Balance: 90,000,000
Total Commitment: 50,000,000
`
	chain := New(nil)
	res := chain.Extract(context.Background(), models.DocCapitalAccountStatement, parsedDoc(text), "x.pdf")

	assert.False(t, res.Consistent)
	assert.Equal(t, models.ValidationInconsistent, res.Fields[FieldEndingBalance].Status)
}

func TestAsOfDateFallsBackToFilename(t *testing.T) {
	text := `Capital Account Statement
Fund: Alpha Fund IV
Beginning Balance: 1,000,000
Ending Balance: 1,000,000
Total Commitment: 2,000,000
`
	chain := New(nil)
	res := chain.Extract(context.Background(), models.DocCapitalAccountStatement, parsedDoc(text), "alpha_Q2 2025_cas.pdf")

	asOf, ok := res.Date(FieldAsOfDate)
	require.True(t, ok)
	assert.Equal(t, "2025-06-30", asOf.Format("2006-01-02"))
	fv := res.Fields[FieldAsOfDate]
	assert.Equal(t, models.TagFilename, fv.Tag)
	assert.LessOrEqual(t, fv.Confidence, 0.7)
}

func TestMissingRequiredProducesCriticalAudit(t *testing.T) {
	chain := New(nil)
	res := chain.Extract(context.Background(), models.DocCapitalAccountStatement, parsedDoc("no labels here"), "x.pdf")

	assert.True(t, res.Incomplete)
	assert.Contains(t, res.MissingRequired, FieldEndingBalance)

	critical := 0
	for _, audit := range res.Audits {
		if audit.Severity == models.AuditCritical && audit.Status == models.ValidationMissing {
			critical++
		}
	}
	assert.GreaterOrEqual(t, critical, len(res.MissingRequired))
}

func TestTableExtractorReadsLabelRows(t *testing.T) {
	table := models.Table{
		Headers: []string{"Line Item", "Prior Period", "Current Period"},
		Rows: [][]string{
			{"Beginning Balance", "30,000,000", "35,000,000"},
			{"Ending Balance", "35,000,000", "40,700,000"},
		},
	}
	chain := New(nil)
	res := chain.Extract(context.Background(), models.DocCapitalAccountStatement,
		parsedDoc("Capital Account Statement\nAs of Date: 2023-12-31\nFund: Alpha IV\nTotal Commitment: 50,000,000", table), "x.pdf")

	ending, ok := res.Amount(FieldEndingBalance)
	require.True(t, ok)
	assert.Equal(t, 40_700_000.0, ending, "rightmost numeric cell is the current period")
	assert.Equal(t, models.TagTable, res.Fields[FieldEndingBalance].Tag)
	assert.InDelta(t, 0.90, res.Fields[FieldEndingBalance].Confidence, 1e-9, "base 0.85 plus exact alias bonus")
}

func TestLLMFillsGapsAndIsCapped(t *testing.T) {
	oracle := &fakeFieldOracle{values: map[string]string{
		FieldEndingBalance: "40.700.000,00",
		FieldFundName:      "Alpha Fund IV",
	}}
	chain := New(oracle)
	res := chain.Extract(context.Background(), models.DocCapitalAccountStatement,
		parsedDoc("As of Date: 2023-12-31\nBeginning Balance: 35,000,000\nTotal Commitment: 50,000,000"), "x.pdf")

	assert.Equal(t, 1, oracle.calls)
	ending, ok := res.Amount(FieldEndingBalance)
	require.True(t, ok)
	assert.Equal(t, 40_700_000.0, ending, "llm value goes through the same number normalization")
	assert.Equal(t, models.TagLLM, res.Fields[FieldEndingBalance].Tag)
	assert.LessOrEqual(t, res.Fields[FieldEndingBalance].Confidence, 0.8)
}

func TestCorroborationUpgradesConfidence(t *testing.T) {
	oracle := &fakeFieldOracle{values: map[string]string{
		FieldBeginningBalance: "35,000,000",
	}}
	chain := New(oracle)
	res := chain.Extract(context.Background(), models.DocCapitalAccountStatement,
		parsedDoc("Capital Account Statement\nAs of Date: 2023-12-31\nFund: Alpha IV\nBeginning Balance: 35,000,000\nEnding Balance: 35,000,000\nTotal Commitment: 50,000,000"), "x.pdf")

	fv := res.Fields[FieldBeginningBalance]
	require.NotNil(t, fv)
	assert.Equal(t, models.TagAnchor, fv.Tag, "anchor still wins")
	assert.GreaterOrEqual(t, fv.Confidence, 0.95, "llm agreement upgrades confidence")
}

func TestLLMFailureIsNonFatal(t *testing.T) {
	oracle := &fakeFieldOracle{err: errors.New("rate limited")}
	chain := New(oracle)
	res := chain.Extract(context.Background(), models.DocCapitalAccountStatement, parsedDoc(casText), "x.pdf")

	_, ok := res.Amount(FieldEndingBalance)
	assert.True(t, ok, "deterministic extraction stands when the llm fails")
}

func TestNegativeContributionsAreInconsistent(t *testing.T) {
	text := `Capital Account Statement
As of Date: 2023-12-31
Fund: Alpha IV
Beginning Balance: 1,000,000
Contributions: (500,000)
Ending Balance: 500,000
Total Commitment: 2,000,000
`
	chain := New(nil)
	res := chain.Extract(context.Background(), models.DocCapitalAccountStatement, parsedDoc(text), "x.pdf")

	fv := res.Fields[FieldContributions]
	require.NotNil(t, fv)
	assert.Equal(t, models.ValidationInconsistent, fv.Status)
	assert.False(t, res.Consistent)
}
