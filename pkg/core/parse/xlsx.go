package parse

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"fundpipe/pkg/core/fault"
	"fundpipe/pkg/models"
)

// previewRows caps how many data rows go into a sheet's derived text page.
// The full table is still available to the table extractor.
const previewRows = 25

// parseXLSX reads every sheet into a Table (first non-empty row as headers)
// and synthesizes one text page per sheet so classification and anchor
// matching have prose to work with.
func parseXLSX(path string) (*models.ParsedDoc, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.ParseError, "parse.xlsx", err)
	}
	defer f.Close()

	doc := &models.ParsedDoc{}
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fault.Wrap(fault.ParseError, "parse.xlsx", err)
		}

		table, ok := sheetToTable(sheet, rows)
		if ok {
			doc.Tables = append(doc.Tables, table)
		}
		doc.Pages = append(doc.Pages, models.Page{
			No:   i + 1,
			Text: sheetText(sheet, table, ok),
		})
	}

	if len(doc.Pages) == 0 {
		return nil, fault.New(fault.ParseError, "parse.xlsx", "workbook %s has no sheets", path)
	}
	return doc, nil
}

// sheetToTable finds the first non-empty row as headers and takes the rest
// as data, padding ragged rows to header width.
func sheetToTable(sheet string, rows [][]string) (models.Table, bool) {
	start := -1
	for i, row := range rows {
		if !rowEmpty(row) {
			start = i
			break
		}
	}
	if start == -1 || start == len(rows)-1 {
		return models.Table{}, false
	}

	headers := rows[start]
	var data [][]string
	for _, row := range rows[start+1:] {
		if rowEmpty(row) {
			continue
		}
		padded := make([]string, len(headers))
		copy(padded, row)
		data = append(data, padded)
	}
	if len(data) == 0 {
		return models.Table{}, false
	}
	return models.Table{Name: sheet, Headers: headers, Rows: data}, true
}

// sheetText renders a sheet as tab-joined lines plus a short numeric
// summary, giving text-based stages something to match against.
func sheetText(sheet string, table models.Table, ok bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Sheet: %s\n", sheet)
	if !ok {
		sb.WriteString("(empty)\n")
		return sb.String()
	}

	sb.WriteString(strings.Join(table.Headers, "\t"))
	sb.WriteString("\n")
	for i, row := range table.Rows {
		if i >= previewRows {
			fmt.Fprintf(&sb, "... %d more rows\n", len(table.Rows)-previewRows)
			break
		}
		sb.WriteString(strings.Join(row, "\t"))
		sb.WriteString("\n")
	}

	if summary := describeNumeric(table); summary != "" {
		sb.WriteString(summary)
	}
	return sb.String()
}

// describeNumeric emits min/max per numeric column, one line per column.
func describeNumeric(table models.Table) string {
	var sb strings.Builder
	for c, header := range table.Headers {
		var min, max float64
		n := 0
		for _, row := range table.Rows {
			if c >= len(row) {
				continue
			}
			v, err := strconv.ParseFloat(strings.ReplaceAll(row[c], ",", ""), 64)
			if err != nil {
				continue
			}
			if n == 0 || v < min {
				min = v
			}
			if n == 0 || v > max {
				max = v
			}
			n++
		}
		if n > 0 && header != "" {
			fmt.Fprintf(&sb, "%s: %d numeric values, min %.2f, max %.2f\n", header, n, min, max)
		}
	}
	return sb.String()
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
