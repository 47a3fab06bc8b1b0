package parse

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"fundpipe/pkg/models"
)

// extractHTMLTables walks every <table> in the HTML and converts each to a
// models.Table via a virtual grid, so colspan/rowspan cells land in the
// right columns. Cell text is kept verbatim apart from whitespace collapse:
// number normalization belongs to the extraction stage.
func extractHTMLTables(html string) []models.Table {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var tables []models.Table
	doc.Find("table").Each(func(_ int, sel *goquery.Selection) {
		grid := buildGrid(sel)
		if len(grid) < 2 {
			// Header-only or empty tables carry no extractable facts.
			return
		}
		tables = append(tables, models.Table{
			Headers: grid[0],
			Rows:    grid[1:],
		})
	})
	return tables
}

// buildGrid fills a 2D grid from the table's tr/td structure, expanding
// spans into placeholder cells so columns stay aligned.
func buildGrid(table *goquery.Selection) [][]string {
	rows := table.Find("tr")
	rowCount := rows.Length()
	if rowCount == 0 {
		return nil
	}

	maxCols := 0
	rows.Each(func(_ int, tr *goquery.Selection) {
		cols := 0
		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			colspan, _ := strconv.Atoi(cell.AttrOr("colspan", "1"))
			if colspan < 1 {
				colspan = 1
			}
			cols += colspan
		})
		if cols > maxCols {
			maxCols = cols
		}
	})
	if maxCols == 0 {
		return nil
	}

	grid := make([][]string, rowCount)
	filled := make([][]bool, rowCount)
	for i := range grid {
		grid[i] = make([]string, maxCols)
		filled[i] = make([]bool, maxCols)
	}

	rowIdx := 0
	rows.Each(func(_ int, tr *goquery.Selection) {
		colIdx := 0
		for colIdx < maxCols && filled[rowIdx][colIdx] {
			colIdx++
		}

		tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			colspan, _ := strconv.Atoi(cell.AttrOr("colspan", "1"))
			rowspan, _ := strconv.Atoi(cell.AttrOr("rowspan", "1"))
			if colspan < 1 {
				colspan = 1
			}
			if rowspan < 1 {
				rowspan = 1
			}

			text := collapseSpace(cell.Text())
			for r := 0; r < rowspan; r++ {
				for c := 0; c < colspan; c++ {
					tr, tc := rowIdx+r, colIdx+c
					if tr >= rowCount || tc >= maxCols {
						continue
					}
					filled[tr][tc] = true
					if r == 0 && c == 0 {
						grid[tr][tc] = text
					}
				}
			}

			colIdx += colspan
			for colIdx < maxCols && filled[rowIdx][colIdx] {
				colIdx++
			}
		})
		rowIdx++
	})
	return grid
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
