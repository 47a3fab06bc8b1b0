package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"fundpipe/pkg/core/fault"
)

// dateLayouts is tried in order. European day-first layouts come after ISO
// so unambiguous inputs never mis-parse.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02.01.2006",
	"02/01/2006",
}

var monthNamesDE = map[string]time.Month{
	"januar": time.January, "februar": time.February, "märz": time.March,
	"april": time.April, "mai": time.May, "juni": time.June,
	"juli": time.July, "august": time.August, "september": time.September,
	"oktober": time.October, "november": time.November, "dezember": time.December,
}

var monthNamesES = map[string]time.Month{
	"enero": time.January, "febrero": time.February, "marzo": time.March,
	"abril": time.April, "mayo": time.May, "junio": time.June,
	"julio": time.July, "agosto": time.August, "septiembre": time.September,
	"octubre": time.October, "noviembre": time.November, "diciembre": time.December,
}

// dmYearRegex matches "31. Dezember 2023" / "31 de diciembre de 2023".
var dmYearRegex = regexp.MustCompile(`(?i)(\d{1,2})\.?\s+(?:de\s+)?(\p{L}+)\s+(?:de\s+)?(\d{4})`)

// ParseDate parses a reporting date in any supported format, returning a
// UTC midnight time.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fault.New(fault.Invalid, "extract.date", "empty date")
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	if m := dmYearRegex.FindStringSubmatch(s); m != nil {
		day, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		name := strings.ToLower(m[2])
		if month, ok := monthNamesDE[name]; ok {
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
		}
		if month, ok := monthNamesES[name]; ok {
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
		}
	}

	return time.Time{}, fault.New(fault.Invalid, "extract.date", "unrecognized date %q", raw)
}

// quarterRegex matches quarter/year tokens in filenames: "Q2 2025",
// "Q2-2025", "2025Q2", "Q2_25". Two-digit years read as 20xx.
var quarterRegex = regexp.MustCompile(`(?i)(?:q([1-4])[\s_-]?(\d{4}|\d{2})|(\d{4})[\s_-]?q([1-4]))(?:[^0-9]|$)`)

// yearMonthRegex matches "2025-06" style filename tokens.
var yearMonthRegex = regexp.MustCompile(`(20\d{2})[-_](0[1-9]|1[0-2])(?:[^0-9]|$)`)

// DateFromFilename recovers an as-of date from filename tokens. Quarter
// tokens map to the quarter's month-end.
func DateFromFilename(filename string) (time.Time, bool) {
	if m := quarterRegex.FindStringSubmatch(filename); m != nil {
		var q, year int
		if m[1] != "" {
			q, _ = strconv.Atoi(m[1])
			year, _ = strconv.Atoi(m[2])
			if year < 100 {
				year += 2000
			}
		} else {
			year, _ = strconv.Atoi(m[3])
			q, _ = strconv.Atoi(m[4])
		}
		return MonthEnd(year, time.Month(q*3)), true
	}
	if m := yearMonthRegex.FindStringSubmatch(filename); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return MonthEnd(year, time.Month(month)), true
	}
	return time.Time{}, false
}

// MonthEnd returns the last calendar day of (year, month) at UTC midnight.
func MonthEnd(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// SaneDate enforces the date sanity rule: not in the future, year >= 1990.
func SaneDate(t time.Time, now time.Time) bool {
	return !t.After(now) && t.Year() >= 1990
}
