package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Dates of service arrive in whatever shape the billing source produced:
// ISO, US, international, month names, or ranges. Everything is
// standardized to YYYY-MM-DD; a range standardizes to its start date.

const standardDateLayout = "2006-01-02"

// Years accepted for dates of service.
const (
	minServiceYear = 1900
	maxServiceYear = 2030
)

// DateStandardizer standardizes textual date formats to YYYY-MM-DD.
type DateStandardizer struct {
	layouts         []string
	rangeSeparators []string
}

// NewDateStandardizer creates a standardizer with the supported input layouts.
func NewDateStandardizer() *DateStandardizer {
	return &DateStandardizer{
		// Order matters: US month-first layouts are tried before
		// day-first international ones.
		layouts: []string{
			"2006-01-02",
			"2006/01/02",
			"20060102",

			"01/02/2006",
			"01-02-2006",
			"01/02/06",
			"01-02-06",
			"01.02.2006",
			"01.02.06",

			"02/01/2006",
			"02-01-2006",
			"02/01/06",
			"02-01-06",
			"02.01.2006",
			"02.01.06",

			"January 2, 2006",
			"Jan 2, 2006",
			"2 January 2006",
			"2 Jan 2006",
		},
		rangeSeparators: []string{
			" - ",
			" – ",
			" — ",
			" to ",
			" TO ",
			" thru ",
			" THRU ",
			"–",
			"—",
		},
	}
}

var (
	isoDateRe      = regexp.MustCompile(`^\d{4}-\d{1,2}-\d{1,2}$`)
	leadingJunkRe  = regexp.MustCompile(`^[^0-9]+`)
	numericDateRes = []struct {
		re    *regexp.Regexp
		order string
	}{
		{regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{2,4})`), "mdy"},
		{regexp.MustCompile(`^(\d{4})[/\-.](\d{1,2})[/\-.](\d{1,2})`), "ymd"},
		{regexp.MustCompile(`^(\d{1,2})\s+(\d{1,2})\s+(\d{2,4})`), "mdy"},
	}
)

// Standardize converts any supported date format to YYYY-MM-DD. Ranges
// standardize to their first date. Returns "" when the input cannot be
// parsed or falls outside the accepted year range.
func (s *DateStandardizer) Standardize(raw string) string {
	d, ok := s.Parse(raw)
	if !ok {
		return ""
	}
	return d.Format(standardDateLayout)
}

// Parse resolves a raw date string to a time.Time. The boolean reports
// whether parsing succeeded.
func (s *DateStandardizer) Parse(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if isoDateRe.MatchString(raw) {
		d, err := time.Parse(standardDateLayout, raw)
		if err != nil || !yearInRange(d.Year()) {
			return time.Time{}, false
		}
		return d, true
	}

	if start, ok := s.splitRange(raw); ok {
		return s.parseSingle(start)
	}
	return s.parseSingle(raw)
}

// splitRange extracts the start date of a date range, if raw is one.
func (s *DateStandardizer) splitRange(raw string) (string, bool) {
	for _, sep := range s.rangeSeparators {
		if strings.Contains(raw, sep) {
			parts := strings.Split(raw, sep)
			if len(parts) >= 2 {
				return strings.TrimSpace(parts[0]), true
			}
		}
	}

	// A bare hyphen can be a range separator, but never inside an ISO date.
	if strings.Contains(raw, "-") && !isoDateRe.MatchString(raw) {
		parts := strings.Split(raw, "-")
		if len(parts) == 2 {
			left, right := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if looksLikeDate(left) && looksLikeDate(right) {
				return left, true
			}
		}
	}
	return "", false
}

func looksLikeDate(s string) bool {
	return strings.ContainsAny(s, "0123456789") && strings.ContainsAny(s, "/.")
}

func (s *DateStandardizer) parseSingle(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if d, ok := s.tryLayouts(raw); ok {
		return d, true
	}

	// Some sources prefix dates with junk like "MX"; strip and retry.
	stripped := leadingJunkRe.ReplaceAllString(raw, "")
	if stripped != raw && stripped != "" {
		if d, ok := s.tryLayouts(stripped); ok {
			return d, true
		}
		raw = stripped
	}

	return parseWithPatterns(raw)
}

func (s *DateStandardizer) tryLayouts(raw string) (time.Time, bool) {
	for _, layout := range s.layouts {
		d, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if twoDigitYearLayout(layout) {
			d = applyYearPivot(d)
		}
		if yearInRange(d.Year()) {
			return d, true
		}
	}
	return time.Time{}, false
}

func twoDigitYearLayout(layout string) bool {
	return !strings.Contains(layout, "2006")
}

// applyYearPivot maps two-digit years 00-30 to the 2000s and 31-99 to
// the 1900s, overriding Go's 69/68 split.
func applyYearPivot(d time.Time) time.Time {
	yy := d.Year() % 100
	var year int
	if yy <= 30 {
		year = 2000 + yy
	} else {
		year = 1900 + yy
	}
	return time.Date(year, d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// parseWithPatterns handles edge-case shapes the layouts miss, like
// space-separated numerics.
func parseWithPatterns(raw string) (time.Time, bool) {
	for _, p := range numericDateRes {
		m := p.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}

		var year, month, day int
		switch p.order {
		case "mdy":
			month, _ = strconv.Atoi(m[1])
			day, _ = strconv.Atoi(m[2])
			year, _ = strconv.Atoi(m[3])
		case "ymd":
			year, _ = strconv.Atoi(m[1])
			month, _ = strconv.Atoi(m[2])
			day, _ = strconv.Atoi(m[3])
		}

		if year < 100 {
			if year <= 30 {
				year += 2000
			} else {
				year += 1900
			}
		}

		if month < 1 || month > 12 || day < 1 || day > 31 || !yearInRange(year) {
			continue
		}

		d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		// Reject normalized overflows like Feb 30.
		if d.Month() != time.Month(month) || d.Day() != day {
			continue
		}
		return d, true
	}
	return time.Time{}, false
}

func yearInRange(year int) bool {
	return year >= minServiceYear && year <= maxServiceYear
}

// Package-level standardizer shared by callers that don't need their own.
var defaultDateStandardizer = NewDateStandardizer()

// StandardizeDateOfService standardizes a date of service to YYYY-MM-DD,
// returning "" for unparseable input. Callers treat "" as missing.
func StandardizeDateOfService(raw string) string {
	return defaultDateStandardizer.Standardize(raw)
}

// ParseDateOfService resolves a date of service to a time.Time.
func ParseDateOfService(raw string) (time.Time, bool) {
	return defaultDateStandardizer.Parse(raw)
}
