package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateFromFilenameQuarterTokens(t *testing.T) {
	for filename, want := range map[string]string{
		"alpha_Q2 2025_cas.pdf":    "2025-06-30",
		"alpha_Q2-2025_cas.pdf":    "2025-06-30",
		"alpha_2025Q2.pdf":         "2025-06-30",
		"alpha_Q2_25.pdf":          "2025-06-30",
		"fund_q4_2023_report.xlsx": "2023-12-31",
	} {
		got, ok := DateFromFilename(filename)
		require.True(t, ok, filename)
		assert.Equal(t, want, got.Format("2006-01-02"), filename)
	}
}

func TestDateFromFilenameYearMonth(t *testing.T) {
	got, ok := DateFromFilename("nav_2025-06_final.pdf")
	require.True(t, ok)
	assert.Equal(t, "2025-06-30", got.Format("2006-01-02"))
}

func TestDateFromFilenameNoToken(t *testing.T) {
	for _, filename := range []string{"statement_final.pdf", "q5_2025.pdf", "quarterly.pdf"} {
		_, ok := DateFromFilename(filename)
		assert.False(t, ok, filename)
	}
}

func TestMonthEnd(t *testing.T) {
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), MonthEnd(2024, time.February))
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), MonthEnd(2023, time.December))
}
