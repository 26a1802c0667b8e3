package textutil

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

var (
	dayMonthYearRe = regexp.MustCompile(`(\d{1,2})\s+(\w+)\s+(\d{4})`)
	dashDateRe     = regexp.MustCompile(`(\d{1,2})-(\w{3,})-(\d{2,4})`)
)

// months resolves a month name by its first three letters, so "Sept" and
// "September" both work.
var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// fallbackLayouts are tried in order once the day-first patterns fail.
// Slash dates are month-first.
var fallbackLayouts = []string{
	isoDate,
	time.RFC3339,
	"2006-01-02T15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"1/2/2006",
	"01/02/2006",
	"1/2/2006 15:04:05",
}

// ParseDate normalises a human-written date to YYYY-MM-DD. It understands
// "14 January 2026", "14-Jan-2026" and "14-Jan-26" (two-digit years are
// taken as 20yy), then a list of common machine layouts. It returns nil when
// nothing yields a real calendar date.
func ParseDate(text string) *string {
	cleaned := strings.TrimSpace(strings.ReplaceAll(text, ".", ""))
	if cleaned == "" {
		return nil
	}

	if m := dayMonthYearRe.FindStringSubmatch(cleaned); m != nil {
		if d, ok := civilDate(m[1], m[2], m[3]); ok {
			return &d
		}
	}

	if m := dashDateRe.FindStringSubmatch(cleaned); m != nil {
		year := m[3]
		if len(year) == 2 {
			year = "20" + year
		}
		if d, ok := civilDate(m[1], m[2], year); ok {
			return &d
		}
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			d := t.UTC().Format(isoDate)
			return &d
		}
	}
	return nil
}

// civilDate validates day/month/year and formats them. Rollover dates such as
// 30 February are rejected.
func civilDate(day, month, year string) (string, bool) {
	d, err := strconv.Atoi(day)
	if err != nil {
		return "", false
	}
	y, err := strconv.Atoi(year)
	if err != nil || y < 1000 {
		return "", false
	}
	lower := strings.ToLower(month)
	if len(lower) < 3 {
		return "", false
	}
	mon, ok := months[lower[:3]]
	if !ok {
		return "", false
	}
	t := time.Date(y, mon, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != mon {
		return "", false
	}
	return t.Format(isoDate), true
}

// IsValidDate reports whether s is a YYYY-MM-DD calendar date.
func IsValidDate(s string) bool {
	_, err := time.Parse(isoDate, s)
	return err == nil
}
