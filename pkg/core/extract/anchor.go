package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"fundpipe/pkg/models"
)

// candidate is one extractor's raw hit for a field, before normalization.
type candidate struct {
	raw        string
	confidence float64
	tag        string
	note       string
}

const (
	anchorBaseConfidence   = 0.9
	anchorVerbatimPenalty  = 0.1
	tableBaseConfidence    = 0.85
	tableAliasBonus        = 0.05
	llmConfidenceCeiling   = 0.8
	corroborationFloor     = 0.95
	filenameDateConfidence = 0.7
)

// amountTokenRegex captures the first amount-looking token after a label:
// optional parentheses or sign, digits with separators.
var amountTokenRegex = regexp.MustCompile(`\(?-?\s*[$€£¥]?\s*\d[\d.,]*\)?`)

// extractAnchor scans the text for "label <separator> value" patterns.
// Longer aliases are tried first so "as of date" wins over "as of". A
// matched label must be followed by an explicit separator (colon, equals,
// dash, or column-style run of whitespace); a bare word inside prose is not
// a label.
func extractAnchor(field Field, text string) (candidate, bool) {
	lower := strings.ToLower(text)
	for _, alias := range aliasesByLength(field.Aliases) {
		la := strings.ToLower(alias)
		from := 0
		for {
			idx := findAlias(lower[from:], la)
			if idx < 0 {
				break
			}
			idx += from
			from = idx + 1

			rest := text[idx+len(alias):]
			if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
				rest = rest[:nl]
			}
			value, ok := afterSeparator(rest)
			if !ok {
				continue
			}

			raw, ok := pickToken(field.Kind, value)
			if !ok {
				continue
			}
			if field.Kind == KindDate {
				if _, err := ParseDate(raw); err != nil {
					continue
				}
			}

			conf := anchorBaseConfidence
			if !verbatimAfterNormalization(field.Kind, raw, text) {
				conf -= anchorVerbatimPenalty
			}
			return candidate{raw: raw, confidence: conf, tag: models.TagAnchor, note: "alias: " + alias}, true
		}
	}
	return candidate{}, false
}

// verbatimAfterNormalization reports whether the value's canonical form
// appears unchanged in the source text. A comma-grouped amount or a prose
// date normalizes away from what the document shows.
func verbatimAfterNormalization(kind FieldKind, raw, text string) bool {
	switch kind {
	case KindAmount, KindPercent, KindMultiple:
		v, err := ParseAmount(raw)
		if err != nil {
			return false
		}
		return strings.Contains(text, strconv.FormatFloat(v, 'f', -1, 64))
	case KindDate:
		t, err := ParseDate(raw)
		if err != nil {
			return false
		}
		return strings.Contains(text, t.Format("2006-01-02"))
	default:
		return strings.Contains(text, strings.TrimSpace(raw))
	}
}

// afterSeparator accepts the text following a label only when an explicit
// separator sits between label and value.
func afterSeparator(rest string) (string, bool) {
	trimmed := strings.TrimLeft(rest, " \t")
	wsRun := len(rest) - len(trimmed)
	switch {
	case trimmed == "":
		return "", false
	case trimmed[0] == ':' || trimmed[0] == '=':
		return strings.TrimLeft(trimmed[1:], " \t"), true
	case strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "–"):
		return strings.TrimLeft(strings.TrimPrefix(strings.TrimPrefix(trimmed, "–"), "-"), " \t"), true
	case wsRun >= 2 || strings.Contains(rest[:wsRun], "\t"):
		// Column-style layout: label and value separated by alignment.
		return trimmed, true
	}
	return "", false
}

// aliasesByLength orders aliases longest first without mutating the catalog.
func aliasesByLength(aliases []string) []string {
	out := make([]string, len(aliases))
	copy(out, aliases)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// findAlias locates alias in lower at a word boundary, returning the first
// boundary-respecting occurrence.
func findAlias(lower, alias string) int {
	from := 0
	for {
		idx := strings.Index(lower[from:], alias)
		if idx < 0 {
			return -1
		}
		idx += from
		beforeOK := idx == 0 || !isWordByte(lower[idx-1])
		after := idx + len(alias)
		afterOK := after >= len(lower) || !isWordByte(lower[after])
		if beforeOK && afterOK {
			return idx
		}
		from = idx + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

// pickToken extracts the raw value token for a field kind from the text
// following the label.
func pickToken(kind FieldKind, rest string) (string, bool) {
	switch kind {
	case KindAmount, KindPercent, KindMultiple:
		m := amountTokenRegex.FindString(rest)
		if m == "" {
			return "", false
		}
		return strings.TrimSpace(m), true
	case KindDate:
		// Dates may span several words; take up to the next double space
		// or end of line.
		v := strings.TrimSpace(rest)
		if i := strings.Index(v, "  "); i > 0 {
			v = v[:i]
		}
		return v, v != ""
	default:
		v := strings.TrimSpace(rest)
		if i := strings.Index(v, "  "); i > 0 {
			v = v[:i]
		}
		v = strings.Trim(v, " .,;")
		return v, v != ""
	}
}
