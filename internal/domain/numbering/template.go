package numbering

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Template placeholders
const (
	PlaceholderYear      = "%YYYY%"
	PlaceholderShortYear = "%YY%"
	PlaceholderMonth     = "%MM%"
	PlaceholderDay       = "%DD%"
)

// counterSeparator joins the rendered prefix and the padded counter
const counterSeparator = "-"

var placeholderPattern = regexp.MustCompile(`%[A-Za-z0-9_]+%`)

var knownPlaceholders = map[string]struct{}{
	PlaceholderYear:      {},
	PlaceholderShortYear: {},
	PlaceholderMonth:     {},
	PlaceholderDay:       {},
}

// RenderPrefix substitutes the date placeholders in template. Unknown
// %TOKEN% sequences are kept verbatim.
func RenderPrefix(template string, issuedAt time.Time) string {
	if template == "" {
		return ""
	}
	r := strings.NewReplacer(
		PlaceholderYear, fmt.Sprintf("%04d", issuedAt.Year()),
		PlaceholderShortYear, fmt.Sprintf("%02d", issuedAt.Year()%100),
		PlaceholderMonth, fmt.Sprintf("%02d", int(issuedAt.Month())),
		PlaceholderDay, fmt.Sprintf("%02d", issuedAt.Day()),
	)
	return r.Replace(template)
}

// Render produces the full document number: the rendered prefix, a "-"
// separator (skipped when the prefix already ends with one or is empty)
// and the counter zero-padded to padding digits.
func Render(template string, issuedAt time.Time, counter int64, padding int) string {
	prefix := RenderPrefix(template, issuedAt)
	if prefix != "" && !strings.HasSuffix(prefix, counterSeparator) {
		prefix += counterSeparator
	}
	if padding < 0 {
		padding = 0
	}
	return prefix + fmt.Sprintf("%0*d", padding, counter)
}

// UnknownPlaceholders lists %TOKEN% sequences in template that Render does
// not substitute, in order of first appearance.
func UnknownPlaceholders(template string) []string {
	var unknown []string
	seen := make(map[string]struct{})
	for _, token := range placeholderPattern.FindAllString(template, -1) {
		if _, ok := knownPlaceholders[token]; ok {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		unknown = append(unknown, token)
	}
	return unknown
}

// FiscalYearOf returns the fiscal year containing date. A fiscal year is
// labelled by the calendar year in which it starts; startMonth 1 (or any
// value outside 1-12) means fiscal years follow the calendar.
func FiscalYearOf(date time.Time, startMonth int) int {
	if startMonth <= 1 || startMonth > 12 {
		return date.Year()
	}
	if int(date.Month()) >= startMonth {
		return date.Year()
	}
	return date.Year() - 1
}
