package index

import (
	"fmt"
	"strconv"
	"strings"

	"fundpipe/pkg/models"
)

// BuildChunks renders a persisted document into chunks. Structured facts
// get a single canonical chunk synthesized from the normalized fields;
// free-text documents split by page, dropping blank pages.
func BuildChunks(doc *models.Document, row *models.CapitalAccountRow, parsed *models.ParsedDoc) []Chunk {
	meta := baseMetadata(doc)

	if row != nil {
		return []Chunk{{Text: canonicalFactText(doc, row), Metadata: meta}}
	}

	var chunks []Chunk
	if parsed != nil {
		for _, page := range parsed.Pages {
			if strings.TrimSpace(page.Text) == "" {
				continue
			}
			m := cloneMeta(meta)
			m["page_no"] = strconv.Itoa(page.No)
			chunks = append(chunks, Chunk{Text: page.Text, Metadata: m})
		}
	}
	return chunks
}

func baseMetadata(doc *models.Document) map[string]string {
	meta := map[string]string{
		"doc_id":       doc.DocID,
		"doc_type":     string(doc.DocType),
		"investor_ref": doc.InvestorRef,
	}
	if doc.FundRef != "" {
		meta["fund_ref"] = doc.FundRef
	}
	if doc.AsOfDate != nil {
		meta["as_of_date"] = doc.AsOfDate.Format("2006-01-02")
	}
	if doc.Currency != "" {
		meta["currency"] = doc.Currency
	}
	return meta
}

func cloneMeta(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// canonicalFactText writes the capital account as one retrieval-friendly
// paragraph: every number is spelled with its field name so analytical
// queries land on it.
func canonicalFactText(doc *models.Document, row *models.CapitalAccountRow) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Capital account statement for investor %s in fund %s as of %s (%s).\n",
		row.InvestorRef, row.FundRef, row.AsOfDate.Format("2006-01-02"), row.Currency)
	fmt.Fprintf(&sb, "Beginning balance %.2f, ending balance %.2f.\n", row.BeginningBalance, row.EndingBalance)
	fmt.Fprintf(&sb, "Period contributions %.2f, distributions %.2f (return of capital %.2f, realized gains %.2f, income %.2f).\n",
		row.Contributions, row.Distributions, row.DistributionsROC, row.DistributionsGain, row.DistributionsIncome)
	fmt.Fprintf(&sb, "Management fees %.2f, partnership expenses %.2f, realized gain/loss %.2f, unrealized gain/loss %.2f.\n",
		row.ManagementFees, row.PartnershipExpenses, row.RealizedGainLoss, row.UnrealizedGainLoss)
	fmt.Fprintf(&sb, "Total commitment %.2f, drawn %.2f, unfunded %.2f.\n",
		row.TotalCommitment, row.DrawnCommitment, row.UnfundedCommitment)
	if !row.Consistent {
		sb.WriteString("Balance identity flagged inconsistent; operator review pending.\n")
	}
	fmt.Fprintf(&sb, "Source document %s.", doc.DocID)
	return sb.String()
}
