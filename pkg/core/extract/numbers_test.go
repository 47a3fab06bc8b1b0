package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmountLocaleDisambiguation(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1.234,56", 1234.56},  // European: dot groups, comma decimal
		{"1,234.56", 1234.56},  // US: comma groups, dot decimal
		{"1234", 1234},         // plain
		{"1,234", 1234},        // lone comma in grouping pattern: thousands
		{"1,5", 1.5},           // lone comma not grouping: decimal
		{"1.234.567", 1234567}, // dot-only grouping
		{"1234.5", 1234.5},     // dot decimal
		{"$5,000,000", 5000000},
		{"EUR 2.500.000,00", 2500000},
		{"€ 40.700.000", 40700000},
		{"(250,000)", -250000}, // accounting negative
		{"-1.234,50", -1234.5},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseAmountRejectsNonNumeric(t *testing.T) {
	for _, in := range []string{"", "N/A", "—", "tbd"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, in)
	}
}

func TestParseDateFormats(t *testing.T) {
	cases := map[string]string{
		"2023-12-31":           "2023-12-31",
		"December 31, 2023":    "2023-12-31",
		"31 December 2023":     "2023-12-31",
		"31.12.2023":           "2023-12-31",
		"31. Dezember 2023":    "2023-12-31",
		"31 de diciembre 2023": "2023-12-31",
	}
	for in, want := range cases {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.Format("2006-01-02"), in)
	}
}

func TestDateFromFilenameMixedTokens(t *testing.T) {
	cases := map[string]string{
		"alpha_fund_Q2 2025_cas.pdf":  "2025-06-30",
		"report_q4-2023.xlsx":         "2023-12-31",
		"2024Q1_statement.pdf":        "2024-03-31",
		"fund_2025-06_statement.xlsx": "2025-06-30",
	}
	for in, want := range cases {
		got, ok := DateFromFilename(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got.Format("2006-01-02"), in)
	}

	_, ok := DateFromFilename("statement_final_v2.pdf")
	assert.False(t, ok)
}

func TestMonthEndLeapYear(t *testing.T) {
	assert.Equal(t, "2024-02-29", MonthEnd(2024, 2).Format("2006-01-02"), "leap year")
	assert.Equal(t, "2023-02-28", MonthEnd(2023, 2).Format("2006-01-02"))
	assert.Equal(t, "2025-12-31", MonthEnd(2025, 12).Format("2006-01-02"))
}
