package extract

import (
	"strconv"
	"strings"

	"fundpipe/pkg/core/fault"
)

// ParseAmount parses a currency amount with locale-aware separator
// disambiguation:
//   - both "," and "." present: the rightmost separator is the decimal;
//   - only "," present in a three-digit grouping pattern: thousands;
//   - otherwise a lone "," is the decimal (European style);
//   - parentheses mean negative (accounting format);
//   - currency symbols and codes are stripped.
func ParseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fault.New(fault.Invalid, "extract.amount", "empty value")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}

	s = stripCurrencyMarks(s)
	if s == "" {
		return 0, fault.New(fault.Invalid, "extract.amount", "no digits in %q", raw)
	}

	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234.567,89: dot groups, comma decimal
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// 1,234,567.89
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if isGroupingComma(s) {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		// A dot in a pure three-digit grouping with no decimal part is
		// European thousands: 1.234.567
		if isGroupingDot(s) {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fault.New(fault.Invalid, "extract.amount", "cannot parse %q", raw)
	}
	if negative {
		v = -v
	}
	return v, nil
}

// isGroupingComma reports whether every comma in s sits in a strict
// three-digit grouping pattern (e.g. "1,234,567").
func isGroupingComma(s string) bool {
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return false
	}
	if len(parts[0]) == 0 || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 || !allDigits(p) {
			return false
		}
	}
	return allDigits(parts[0])
}

// isGroupingDot is the dot-separated analogue, requiring at least two groups
// so "1234.5" stays a decimal.
func isGroupingDot(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) < 3 {
		return false
	}
	if len(parts[0]) == 0 || len(parts[0]) > 3 || !allDigits(parts[0]) {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 || !allDigits(p) {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// stripCurrencyMarks removes symbols, ISO codes, and spacing from an amount
// string, leaving digits and separators.
func stripCurrencyMarks(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// LooksNumeric reports whether raw plausibly holds an amount (at least one
// digit after stripping marks).
func LooksNumeric(raw string) bool {
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
