package extraction

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const isoDate = "2006-01-02"

// dateShapePattern matches date-like substrings: numeric day-first or
// year-first dates with an optional time, and day/month-name forms.
const dateShapePattern = `\b(?:` +
	`\d{4}[/\-.]\d{1,2}[/\-.]\d{1,2}(?:[T ]\d{1,2}:\d{2}(?::\d{2})?)?` + // YYYY-MM-DD[ HH:MM[:SS]]
	`|\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}(?:\s+\d{1,2}:\d{2}(?::\d{2})?(?:\s*[ap]m)?)?` + // DD/MM/YYYY[ HH:MM]
	`|\d{1,2}(?:st|nd|rd|th)?[\s\-]+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?,?[\s\-]+\d{2,4}` + // 15 Mar 2024, 15-Mar-24
	`|(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}` + // March 15, 2024
	`)\b`

var dateShapeRe = regexp.MustCompile(`(?i)` + dateShapePattern)

var ordinalSuffixRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\b`)

// numericDateRe matches dates written only with digits and separators. The
// fuzzy parser reads "05.04.2024" month-first, so these go through the
// day-first layouts before it.
var numericDateRe = regexp.MustCompile(`^[\d/\-.]+(?:[T ][\d:]+)?$`)

// dateFormats are tried before the fuzzy parser for numeric dates and after
// it for everything else.
var dateFormats = []string{
	"02/01/2006", // DD/MM/YYYY
	"2/1/2006",   // D/M/YYYY
	"02-01-2006", // DD-MM-YYYY
	"2-1-2006",
	"02.01.2006", // DD.MM.YYYY
	"2.1.2006",
	"2006-01-02", // YYYY-MM-DD
	"2006/01/02", // YYYY/MM/DD
	"2006.01.02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006 15:04:05",
	"02 Jan 2006",
	"2 Jan 2006",
	"02 January 2006",
	"2 January 2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02-Jan-06",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"January 2 2006",
	"02/01/06", // DD/MM/YY
	"2/1/06",   // D/M/YY
	"02-01-06",
	"2-1-06",
	"02.01.06",
	"2.1.06",
}

// parseLenientDate parses a date in any of the common invoice formats,
// preferring day-first readings. The result is a UTC calendar date.
func parseLenientDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	s = ordinalSuffixRe.ReplaceAllString(s, "$1")
	s = strings.TrimRight(s, ".,")
	if s == "" {
		return time.Time{}, false
	}

	if numericDateRe.MatchString(s) {
		if t, ok := parseDateFormats(s); ok {
			return t, true
		}
	}
	if t, err := dateparse.ParseAny(s, dateparse.PreferMonthFirst(false)); err == nil && plausibleYear(t) {
		return civilDate(t), true
	}
	return parseDateFormats(s)
}

func parseDateFormats(s string) (time.Time, bool) {
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			// Handle 2-digit years
			if t.Year() < 100 {
				t = t.AddDate(2000, 0, 0)
			}
			if plausibleYear(t) {
				return civilDate(t), true
			}
		}
	}
	return time.Time{}, false
}

// extractDates returns every parseable date found in text, in order.
func extractDates(text string) []time.Time {
	var dates []time.Time
	for _, m := range dateShapeRe.FindAllString(text, -1) {
		if t, ok := parseLenientDate(m); ok {
			dates = append(dates, t)
		}
	}
	return dates
}

// normalizeDate converts any recognised date string to YYYY-MM-DD.
func normalizeDate(s string) (string, bool) {
	t, ok := parseLenientDate(s)
	if !ok {
		return "", false
	}
	return t.Format(isoDate), true
}

func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func plausibleYear(t time.Time) bool {
	return t.Year() >= 1900 && t.Year() <= 2999
}
