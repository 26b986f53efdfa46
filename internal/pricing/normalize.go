// Package pricing parses heterogeneous price strings into comparable numeric
// values. It underlies catalog drift comparisons, so it must be deterministic
// and agnostic to locale formatting ("$1,234.56" and "1.234,56 €" are equal).
package pricing

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Numeral adjacent to a currency marker. Preferred over the bare fallback
	// so quantities and dates in the same string are not mis-captured.
	anchoredPrice = regexp.MustCompile(`(?:[$€£¥₹₩₽]|[A-Z]{3}\b)\s*([0-9][0-9.,]*)|([0-9][0-9.,]*)\s*(?:[$€£¥₹₩₽]|[A-Z]{3}\b)`)

	// First numeral sequence anywhere in the string.
	barePrice = regexp.MustCompile(`[0-9][0-9.,]*`)
)

// Normalize parses a free-form price string into a float64.
// Returns 0 for "free"/"gratis" and NaN when no parseable number is present.
func Normalize(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}

	lower := strings.ToLower(s)
	if strings.Contains(lower, "free") || strings.Contains(lower, "gratis") {
		return 0
	}

	raw := extractNumeral(s)
	if raw == "" {
		return math.NaN()
	}

	v, err := strconv.ParseFloat(normalizeSeparators(raw), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return math.NaN()
	}
	return v
}

// extractNumeral returns the numeral sequence to parse, preferring a match
// anchored to a currency symbol or code.
func extractNumeral(s string) string {
	if m := anchoredPrice.FindStringSubmatch(s); m != nil {
		if m[1] != "" {
			return m[1]
		}
		return m[2]
	}
	return barePrice.FindString(s)
}

// normalizeSeparators rewrites a numeral with ambiguous thousands/decimal
// separators into plain strconv syntax.
//
// When both ',' and '.' appear, the rightmost one is the decimal separator.
// A lone ',' is decimal only when exactly two digits follow it; the symmetric
// rule applies to a lone '.'.
func normalizeSeparators(raw string) string {
	raw = strings.Trim(raw, ".,")

	comma := strings.LastIndex(raw, ",")
	dot := strings.LastIndex(raw, ".")

	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			// 1.234,56 -> comma is decimal
			raw = strings.ReplaceAll(raw, ".", "")
			raw = strings.Replace(raw, ",", ".", 1)
		} else {
			// 1,234.56 -> dot is decimal
			raw = strings.ReplaceAll(raw, ",", "")
		}
	case comma >= 0:
		raw = resolveLoneSeparator(raw, ",")
	case dot >= 0:
		raw = resolveLoneSeparator(raw, ".")
	}

	return raw
}

func resolveLoneSeparator(raw, sep string) string {
	last := strings.LastIndex(raw, sep)
	trailing := len(raw) - last - 1

	if strings.Count(raw, sep) == 1 && trailing == 2 {
		// Decimal: 12,50 -> 12.50
		return strings.Replace(raw, sep, ".", 1)
	}
	// Thousands: 1,234 / 1.234.567 -> strip
	return strings.ReplaceAll(raw, sep, "")
}
