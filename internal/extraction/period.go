package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// maxPeriodPatterns caps the per-day patterns generated for a date range.
const maxPeriodPatterns = 1000

// PeriodMode distinguishes a calendar-month filing from an explicit range.
type PeriodMode string

const (
	PeriodMonthly PeriodMode = "monthly"
	PeriodRange   PeriodMode = "range"
)

// PeriodRequest carries the raw period parameters from a caller. Exactly
// one of (Month, Year) or (StartDate, EndDate) must be set.
type PeriodRequest struct {
	Month     string `json:"month,omitempty"`
	Year      string `json:"year,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// IsZero reports whether no period parameter was given.
func (r PeriodRequest) IsZero() bool {
	return r.Month == "" && r.Year == "" && r.StartDate == "" && r.EndDate == ""
}

// FilingPeriod is a validated, inclusive date span.
type FilingPeriod struct {
	Mode  PeriodMode `json:"mode"`
	Start time.Time  `json:"start"`
	End   time.Time  `json:"end"`
}

var yearRe = regexp.MustCompile(`^\d{4}$`)

var monthsByName = func() map[string]time.Month {
	m := make(map[string]time.Month, 36)
	for mo := time.January; mo <= time.December; mo++ {
		name := strings.ToLower(mo.String())
		m[name] = mo
		m[name[:3]] = mo
	}
	m["sept"] = time.September
	return m
}()

// ParsePeriod validates period parameters.
func ParsePeriod(req PeriodRequest) (FilingPeriod, error) {
	month := strings.TrimSpace(req.Month)
	year := strings.TrimSpace(req.Year)
	start := strings.TrimSpace(req.StartDate)
	end := strings.TrimSpace(req.EndDate)

	hasMonthly := month != "" || year != ""
	hasRange := start != "" || end != ""

	switch {
	case hasMonthly && hasRange:
		return FilingPeriod{}, invalidPeriod("provide either month and year or start_date and end_date, not both")
	case hasMonthly:
		return parseMonthly(month, year)
	case hasRange:
		return parseRange(start, end)
	}
	return FilingPeriod{}, invalidPeriod("a filing period is required: month and year, or start_date and end_date")
}

func parseMonthly(month, year string) (FilingPeriod, error) {
	if month == "" || year == "" {
		return FilingPeriod{}, invalidPeriod("month and year must be provided together")
	}
	mo, ok := monthsByName[strings.ToLower(month)]
	if !ok {
		return FilingPeriod{}, invalidPeriod("invalid month %q", month)
	}
	if !yearRe.MatchString(year) {
		return FilingPeriod{}, invalidPeriod("invalid year %q: expected four digits", year)
	}
	y, _ := strconv.Atoi(year)

	start := time.Date(y, mo, 1, 0, 0, 0, 0, time.UTC)
	return FilingPeriod{
		Mode:  PeriodMonthly,
		Start: start,
		End:   start.AddDate(0, 1, -1),
	}, nil
}

func parseRange(startStr, endStr string) (FilingPeriod, error) {
	if startStr == "" || endStr == "" {
		return FilingPeriod{}, invalidPeriod("start_date and end_date must be provided together")
	}
	start, err := parsePeriodDate(startStr)
	if err != nil {
		return FilingPeriod{}, err
	}
	end, err := parsePeriodDate(endStr)
	if err != nil {
		return FilingPeriod{}, err
	}
	if start.After(end) {
		return FilingPeriod{}, invalidPeriod("start_date %s is after end_date %s", startStr, endStr)
	}
	return FilingPeriod{Mode: PeriodRange, Start: start, End: end}, nil
}

func parsePeriodDate(s string) (time.Time, error) {
	for _, layout := range []string{isoDate, "02/01/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalidPeriod("invalid date %q: expected YYYY-MM-DD or DD/MM/YYYY", s)
}

// Contains reports whether t's calendar date lies inside the period.
func (p FilingPeriod) Contains(t time.Time) bool {
	d := civilDate(t)
	return !d.Before(p.Start) && !d.After(p.End)
}

func (p FilingPeriod) String() string {
	if p.Mode == PeriodMonthly {
		return fmt.Sprintf("%s %d", p.Start.Month(), p.Start.Year())
	}
	return fmt.Sprintf("%s to %s", p.Start.Format(isoDate), p.End.Format(isoDate))
}

// Patterns returns lower-case literal strings that indicate a date inside
// the period. Monthly periods list month/year forms first, then every day
// in four forms. Ranges list six forms per day, capped at
// maxPeriodPatterns, followed by month/year forms for each month touched.
func (p FilingPeriod) Patterns() []string {
	var patterns []string

	if p.Mode == PeriodMonthly {
		patterns = append(patterns, monthYearPatterns(p.Start.Month(), p.Start.Year())...)
		for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
			patterns = append(patterns,
				d.Format("02/01/2006"),
				d.Format("2/1/2006"),
				d.Format(isoDate),
				d.Format("02.01.2006"),
			)
		}
		return patterns
	}

	for d := p.Start; !d.After(p.End) && len(patterns) < maxPeriodPatterns; d = d.AddDate(0, 0, 1) {
		for _, layout := range []string{"02/01/2006", "02-01-2006", "02.01.2006", isoDate, "02/01/06", "02-01-06"} {
			if len(patterns) == maxPeriodPatterns {
				break
			}
			patterns = append(patterns, d.Format(layout))
		}
	}

	for m := time.Date(p.Start.Year(), p.Start.Month(), 1, 0, 0, 0, 0, time.UTC); !m.After(p.End); m = m.AddDate(0, 1, 0) {
		patterns = append(patterns, monthYearPatterns(m.Month(), m.Year())...)
	}
	return patterns
}

func monthYearPatterns(mo time.Month, year int) []string {
	full := strings.ToLower(mo.String())
	abbr := full[:3]
	return []string{
		fmt.Sprintf("%02d/%d", int(mo), year),
		fmt.Sprintf("%d/%d", int(mo), year),
		fmt.Sprintf("%d-%02d", year, int(mo)),
		fmt.Sprintf("%s %d", abbr, year),
		fmt.Sprintf("%s %d", full, year),
		fmt.Sprintf("%s.%d", abbr, year),
		fmt.Sprintf("%02d.%d", int(mo), year),
	}
}
