// Package dateparse interprets the date strings and identifiers emitted by
// the upstream preprint servers.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// layouts are tried in order before falling back to fallbackPattern.
var layouts = []string{
	"2 January, 2006",
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z",
}

var fallbackPattern = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)

// ParseDate parses a source-native date string and returns its calendar date
// at midnight UTC. The second return value is false when no known layout and
// no embedded Y-M-D substring matches.
func ParseDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, text); err == nil {
			return truncateToDay(t), true
		}
	}

	m := fallbackPattern.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > daysIn(time.Month(month), year) {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

// ParseDay parses a strict YYYY-MM-DD value such as an API date filter.
func ParseDay(text string) (time.Time, error) {
	return time.Parse(DayLayout, strings.TrimSpace(text))
}

// DayLayout is the plain YYYY-MM-DD layout used in API parameters and storage.
const DayLayout = "2006-01-02"

// FormatDay renders t as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format(DayLayout)
}

// NormalizeISODate converts an ISO-8601 timestamp into YYYY-MM-DD. The raw
// value is returned unchanged when it cannot be parsed.
func NormalizeISODate(raw string) string {
	if raw == "" {
		return raw
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", DayLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			return FormatDay(t)
		}
	}
	return raw
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
