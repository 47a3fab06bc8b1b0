package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHTMLTablesSimple(t *testing.T) {
	html := `<html><body><table>
		<tr><th>Line Item</th><th>Amount</th></tr>
		<tr><td>Beginning Balance</td><td>35,000,000</td></tr>
		<tr><td>Contributions</td><td>5,000,000</td></tr>
	</table></body></html>`

	tables := extractHTMLTables(html)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"Line Item", "Amount"}, tables[0].Headers)
	require.Len(t, tables[0].Rows, 2)
	assert.Equal(t, []string{"Contributions", "5,000,000"}, tables[0].Rows[1])
}

func TestExtractHTMLTablesColspanAlignment(t *testing.T) {
	// The spanned header occupies two grid columns; the data row beneath
	// must still line up.
	html := `<table>
		<tr><th>Fund</th><th colspan="2">Balances</th></tr>
		<tr><td>Alpha IV</td><td>35,000,000</td><td>40,700,000</td></tr>
	</table>`

	tables := extractHTMLTables(html)
	require.Len(t, tables, 1)
	require.Len(t, tables[0].Headers, 3)
	assert.Equal(t, "Balances", tables[0].Headers[1])
	assert.Equal(t, []string{"Alpha IV", "35,000,000", "40,700,000"}, tables[0].Rows[0])
}

func TestExtractHTMLTablesRowspanDoesNotShiftCells(t *testing.T) {
	html := `<table>
		<tr><th>Section</th><th>Item</th><th>Value</th></tr>
		<tr><td rowspan="2">Fees</td><td>Management</td><td>250,000</td></tr>
		<tr><td>Performance</td><td>100,000</td></tr>
	</table>`

	tables := extractHTMLTables(html)
	require.Len(t, tables, 1)
	require.Len(t, tables[0].Rows, 2)
	// Second row's cells shift right past the rowspan placeholder.
	assert.Equal(t, "Performance", tables[0].Rows[1][1])
	assert.Equal(t, "100,000", tables[0].Rows[1][2])
}

func TestExtractHTMLTablesSkipsHeaderOnly(t *testing.T) {
	html := `<table><tr><th>Only Headers</th></tr></table>`
	assert.Empty(t, extractHTMLTables(html))
}
