package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundpipe/pkg/models"
)

func sampleRow() *models.CapitalAccountRow {
	return &models.CapitalAccountRow{
		FundRef:            "AFIV",
		InvestorRef:        "INV-A",
		AsOfDate:           time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		BeginningBalance:   35_000_000,
		EndingBalance:      40_700_000,
		Contributions:      5_000_000,
		Distributions:      4_000_000,
		ManagementFees:     250_000,
		RealizedGainLoss:   250_000,
		UnrealizedGainLoss: 4_700_000,
		TotalCommitment:    50_000_000,
		DrawnCommitment:    35_000_000,
		UnfundedCommitment: 15_000_000,
		Currency:           "EUR",
		Consistent:         true,
	}
}

func sampleDoc() *models.Document {
	asOf := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	return &models.Document{
		DocID:       "abc123def4567890",
		DocType:     models.DocCapitalAccountStatement,
		InvestorRef: "INV-A",
		FundRef:     "AFIV",
		AsOfDate:    &asOf,
		Currency:    "EUR",
	}
}

func TestBuildChunksCanonicalFact(t *testing.T) {
	chunks := BuildChunks(sampleDoc(), sampleRow(), nil)
	require.Len(t, chunks, 1)

	c := chunks[0]
	assert.Contains(t, c.Text, "investor INV-A in fund AFIV as of 2023-12-31")
	assert.Contains(t, c.Text, "Ending balance 40700000.00", "numbers spelled with field names")
	assert.Contains(t, c.Text, "Total commitment 50000000.00")
	assert.NotContains(t, c.Text, "inconsistent")

	assert.Equal(t, "abc123def4567890", c.Metadata["doc_id"])
	assert.Equal(t, "capital_account_statement", c.Metadata["doc_type"])
	assert.Equal(t, "AFIV", c.Metadata["fund_ref"])
	assert.Equal(t, "2023-12-31", c.Metadata["as_of_date"])
	assert.Equal(t, "EUR", c.Metadata["currency"])
}

func TestBuildChunksFlagsInconsistentRow(t *testing.T) {
	row := sampleRow()
	row.Consistent = false
	chunks := BuildChunks(sampleDoc(), row, nil)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "flagged inconsistent")
}

func TestBuildChunksPerPageForFreeText(t *testing.T) {
	doc := sampleDoc()
	doc.DocType = models.DocQuarterlyReport
	parsed := &models.ParsedDoc{Pages: []models.Page{
		{No: 1, Text: "Quarterly letter to limited partners."},
		{No: 2, Text: "   \n"},
		{No: 3, Text: "Portfolio company updates."},
	}}

	chunks := BuildChunks(doc, nil, parsed)
	require.Len(t, chunks, 2, "blank pages are dropped")
	assert.Equal(t, "1", chunks[0].Metadata["page_no"])
	assert.Equal(t, "3", chunks[1].Metadata["page_no"])
	assert.Equal(t, "quarterly_report", chunks[0].Metadata["doc_type"])

	// Page metadata must not leak between chunks.
	assert.NotEqual(t, chunks[0].Metadata["page_no"], chunks[1].Metadata["page_no"])
}

func TestBuildChunksOmitsUnknownFields(t *testing.T) {
	doc := sampleDoc()
	doc.FundRef = ""
	doc.AsOfDate = nil
	doc.Currency = ""
	doc.DocType = models.DocOther

	chunks := BuildChunks(doc, nil, &models.ParsedDoc{Pages: []models.Page{{No: 1, Text: "misc"}}})
	require.Len(t, chunks, 1)
	_, hasFund := chunks[0].Metadata["fund_ref"]
	_, hasAsOf := chunks[0].Metadata["as_of_date"]
	assert.False(t, hasFund)
	assert.False(t, hasAsOf)
}

func TestMemoryIndexSearchAndFilters(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex()

	_, err := idx.AddChunks(ctx, "doc1", []Chunk{
		{Text: "ending balance for fund AFIV", Metadata: map[string]string{"fund_ref": "AFIV"}},
	})
	require.NoError(t, err)
	_, err = idx.AddChunks(ctx, "doc2", []Chunk{
		{Text: "ending balance for fund GCII", Metadata: map[string]string{"fund_ref": "GCII"}},
	})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, "ending balance", 10, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = idx.Search(ctx, "ending balance", 10, map[string]string{"fund_ref": "AFIV"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Text, "AFIV")

	require.NoError(t, idx.Delete(ctx, "doc1"))
	hits, err = idx.Search(ctx, "ending balance", 10, map[string]string{"fund_ref": "AFIV"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
