package extract

import (
	"strings"

	"fundpipe/pkg/models"
)

// extractTable looks a field up in structured tables. Two layouts are
// recognized:
//   - label rows: the alias sits in the first cell, the value in the last
//     numeric cell of the same row;
//   - label columns: the alias is a column header, the value comes from the
//     first data row.
func extractTable(field Field, tables []models.Table) (candidate, bool) {
	for _, table := range tables {
		if c, ok := fromLabelRow(field, table); ok {
			return c, true
		}
		if c, ok := fromLabelColumn(field, table); ok {
			return c, true
		}
	}
	return candidate{}, false
}

func fromLabelRow(field Field, table models.Table) (candidate, bool) {
	for _, row := range table.Rows {
		if len(row) < 2 {
			continue
		}
		label := strings.TrimSpace(row[0])
		alias, ok := matchAlias(field, label)
		if !ok {
			continue
		}
		raw, ok := pickCell(field.Kind, row[1:])
		if !ok {
			continue
		}
		conf := tableBaseConfidence
		if strings.EqualFold(label, alias) {
			conf += tableAliasBonus
		}
		return candidate{raw: raw, confidence: conf, tag: models.TagTable, note: "row label: " + label}, true
	}
	return candidate{}, false
}

func fromLabelColumn(field Field, table models.Table) (candidate, bool) {
	if len(table.Rows) == 0 {
		return candidate{}, false
	}
	for col, header := range table.Headers {
		label := strings.TrimSpace(header)
		alias, ok := matchAlias(field, label)
		if !ok {
			continue
		}
		row := table.Rows[0]
		if col >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[col])
		if raw == "" {
			continue
		}
		if needsNumeric(field.Kind) && !LooksNumeric(raw) {
			continue
		}
		conf := tableBaseConfidence
		if strings.EqualFold(label, alias) {
			conf += tableAliasBonus
		}
		return candidate{raw: raw, confidence: conf, tag: models.TagTable, note: "column header: " + label}, true
	}
	return candidate{}, false
}

// matchAlias reports whether label contains one of the field's aliases at a
// word boundary, returning the alias that matched.
func matchAlias(field Field, label string) (string, bool) {
	lower := strings.ToLower(label)
	for _, alias := range field.Aliases {
		if findAlias(lower, strings.ToLower(alias)) >= 0 {
			return alias, true
		}
	}
	return "", false
}

// pickCell selects the value cell for a label row: the last cell that fits
// the field kind. Period statements put the current period in the rightmost
// column.
func pickCell(kind FieldKind, cells []string) (string, bool) {
	for i := len(cells) - 1; i >= 0; i-- {
		raw := strings.TrimSpace(cells[i])
		if raw == "" {
			continue
		}
		if needsNumeric(kind) && !LooksNumeric(raw) {
			continue
		}
		return raw, true
	}
	return "", false
}

func needsNumeric(kind FieldKind) bool {
	switch kind {
	case KindAmount, KindPercent, KindMultiple:
		return true
	}
	return false
}
