package parse

import (
	"encoding/csv"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/models"
)

// parseCSV reads a delimited file into one Table plus a text page. Encoding
// runs through a fallback ladder; the delimiter is sniffed from the header
// line.
func parseCSV(path string) (*models.ParsedDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.Transient, "parse.csv", err)
	}

	text, err := decodeText(raw)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fault.Wrap(fault.ParseError, "parse.csv", err)
	}
	if len(records) < 2 {
		return nil, fault.New(fault.ParseError, "parse.csv", "%s: need a header and at least one data row", path)
	}

	headers := records[0]
	var rows [][]string
	for _, rec := range records[1:] {
		if rowEmpty(rec) {
			continue
		}
		padded := make([]string, len(headers))
		copy(padded, rec)
		rows = append(rows, padded)
	}

	return &models.ParsedDoc{
		Pages:  []models.Page{{No: 1, Text: text}},
		Tables: []models.Table{{Headers: headers, Rows: rows}},
	}, nil
}

// decodeText tries UTF-8, then Windows-1252, then Latin-1. Windows-1252
// goes before Latin-1 because it assigns the 0x80-0x9F range that European
// bank exports actually use; bytes it leaves undefined show up as U+FFFD
// and push us down the ladder.
func decodeText(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}

	if s, err := charmap.Windows1252.NewDecoder().String(string(raw)); err == nil && !strings.ContainsRune(s, utf8.RuneError) {
		return s, nil
	}

	if s, err := charmap.ISO8859_1.NewDecoder().String(string(raw)); err == nil {
		return s, nil
	}

	return "", fault.New(fault.EncodingIssue, "parse.csv", "content is not UTF-8, Windows-1252, or Latin-1")
}

// sniffDelimiter picks the separator with the most occurrences in the first
// line. Comma wins ties.
func sniffDelimiter(text string) rune {
	line := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	best, bestCount := ',', strings.Count(line, ",")
	for _, cand := range []rune{';', '\t', '|'} {
		if n := strings.Count(line, string(cand)); n > bestCount {
			best, bestCount = cand, n
		}
	}
	return best
}
