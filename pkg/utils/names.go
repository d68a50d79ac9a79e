package utils

import (
	"regexp"
	"strings"
)

var (
	nameCharRe       = regexp.MustCompile(`[^a-z\s-]`)
	nameSuffixRe     = regexp.MustCompile(`\b(jr|sr|ii|iii|iv|v|phd|md|do)\b`)
	nameWhitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanPatientName normalizes a patient name for matching: lower-cases,
// strips punctuation except spaces and hyphens, removes generational and
// professional suffixes, and collapses whitespace. The function is
// idempotent: CleanPatientName(CleanPatientName(s)) == CleanPatientName(s).
func CleanPatientName(name string) string {
	if name == "" {
		return ""
	}

	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, ",", "")
	name = nameCharRe.ReplaceAllString(name, "")
	name = nameSuffixRe.ReplaceAllString(name, "")
	name = nameWhitespaceRe.ReplaceAllString(name, " ")

	return strings.TrimSpace(name)
}
