package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// VALUE PARSING
// ============================================================================

// nullTokens are read as missing. Comparison is exact after trimming.
var nullTokens = map[string]bool{
	"":     true,
	"null": true,
	"NULL": true,
	"Null": true,
	"N/A":  true,
	"n/a":  true,
	"NA":   true,
	"NaN":  true,
	"nan":  true,
	"None": true,
}

// IsMissingToken reports whether s (already trimmed) denotes a missing value.
func IsMissingToken(s string) bool {
	return nullTokens[s]
}

var currencyPrefixes = []string{"$", "€", "£", "¥", "₹"}

// groupedNumber matches comma thousands groups ("1,234.56") and Indian
// lakh grouping ("1,00,000"). Decimal commas ("1,5") do not match.
var groupedNumber = regexp.MustCompile(`^(\d{1,3}(,\d{3})+|\d{1,2}(,\d{2})*,\d{3})(\.\d+)?$`)

// ParseNumber parses s as a number. Grouping commas, one leading
// currency symbol (after an optional sign) and a trailing % are accepted.
// NaN and infinities are not numbers.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	sign := ""
	if s[0] == '-' || s[0] == '+' {
		sign, s = s[:1], strings.TrimSpace(s[1:])
	}
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(strings.TrimPrefix(s, p))
			break
		}
	}
	if sign == "" && strings.HasPrefix(s, "-") {
		// "$-12.50"
		sign, s = "-", s[1:]
	}
	s = strings.TrimSuffix(s, "%")
	if strings.Contains(s, ",") {
		if !groupedNumber.MatchString(s) {
			return 0, false
		}
		s = strings.ReplaceAll(s, ",", "")
	}

	if s == "" || !startsWithDigitOrDot(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(sign+s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func startsWithDigitOrDot(s string) bool {
	c := s[0]
	return (c >= '0' && c <= '9') || c == '.'
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"1/2/06",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan-2006",
	"Jan 2006",
	"January 2006",
}

// ParseDate tries each known layout in order. Ambiguous day/month forms
// resolve month-first.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// cellText renders a raw extractor value as trimmed text.
// The second result is true when the value is missing.
func cellText(v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		s = x
	case json.Number:
		s = x.String()
	case float64:
		if math.IsNaN(x) {
			return "", true
		}
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case bool:
		s = strconv.FormatBool(x)
	default:
		s = fmt.Sprint(x)
	}
	s = strings.TrimSpace(s)
	if IsMissingToken(s) {
		return "", true
	}
	return s, false
}
