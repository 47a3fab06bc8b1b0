package parse

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fundpipe/pkg/config"
	"fundpipe/pkg/core/fault"
)

func TestParseCSVWithCommaDelimiter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flows.csv")
	content := "date,type,amount\n2025-03-15,capital_call,1000000\n2025-06-30,distribution,250000\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p := New(config.Default())
	doc, err := p.Parse(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, doc.Tables, 1)
	assert.Equal(t, []string{"date", "type", "amount"}, doc.Tables[0].Headers)
	require.Len(t, doc.Tables[0].Rows, 2)
	assert.Equal(t, "capital_call", doc.Tables[0].Rows[0][1])
	assert.Equal(t, "flows.csv", doc.Metadata["filename"])
}

func TestParseCSVSniffsSemicolon(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "konto.csv")
	content := "Datum;Betrag;Typ\n2025-03-15;1.234,56;Abruf\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p := New(config.Default())
	doc, err := p.Parse(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, doc.Tables, 1)
	assert.Equal(t, []string{"Datum", "Betrag", "Typ"}, doc.Tables[0].Headers)
	assert.Equal(t, "1.234,56", doc.Tables[0].Rows[0][1])
}

func TestParseCSVWindows1252Fallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "latin.csv")
	// "Gebühren" with 0xFC (ü): invalid as UTF-8, valid Windows-1252.
	content := []byte("name,amount\nGeb\xfchren,100\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	p := New(config.Default())
	doc, err := p.Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Gebühren", doc.Tables[0].Rows[0][0])
}

func TestParseCSVHeaderOnlyIsParseError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c\n"), 0o644))

	p := New(config.Default())
	_, err := p.Parse(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, fault.ParseError, fault.KindOf(err))
}

func TestParseXLSXSheetsBecomeTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cas.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Fund", "Beginning Balance", "Ending Balance"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Alpha Fund IV", 35000000, 40700000}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	p := New(config.Default())
	doc, err := p.Parse(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, doc.Tables, 1)
	assert.Equal(t, sheet, doc.Tables[0].Name)
	assert.Equal(t, []string{"Fund", "Beginning Balance", "Ending Balance"}, doc.Tables[0].Headers)
	assert.Contains(t, doc.Pages[0].Text, "Alpha Fund IV")
	assert.Contains(t, doc.Pages[0].Text, "numeric values")
}

func TestParseUnsupportedExtension(t *testing.T) {
	p := New(config.Default())
	_, err := p.Parse(context.Background(), filepath.Join(t.TempDir(), "doc.docx"))
	require.Error(t, err)
	assert.Equal(t, fault.ParseError, fault.KindOf(err))
}

func TestParsePDFRequiresPoppler(t *testing.T) {
	p := New(config.Default())
	if !p.poppler.IsAvailable() {
		t.Skip("poppler-utils not installed")
	}
	// Corrupt PDF content: poppler rejects it, which must map to ParseError.
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 truncated"), 0o644))

	_, err := p.Parse(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, fault.ParseError, fault.KindOf(err))
}
