package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/spektr-org/vizon/extract"
)

// ============================================================================
// NORMALIZER — RawRecordSet → Table
// ============================================================================
// Pipeline per column:
//   1. Name    → header cell, else column_N; duplicates get .1, .2
//   2. Cells   → null tokens and absent cells become Missing
//   3. Type    → numeric if every present value parses, else date, else text
//   4. Profile → uniques, samples, role, temporal/currency patterns
// Then across columns:
//   5. Hierarchies between dimension columns
//
// Output is a pure function of the input: no map iteration order, clock or
// randomness reaches the table.
// ============================================================================

// Normalize converts a raw record set into a canonical table.
// Zero rows or zero columns yield *EmptyInputError.
func Normalize(raw *extract.RawRecordSet) (*Table, error) {
	if raw == nil {
		return nil, &EmptyInputError{Reason: "no record set"}
	}
	if len(raw.Rows) == 0 {
		return nil, &EmptyInputError{Source: raw.Source, Reason: "no rows"}
	}
	width := raw.Width()
	if width == 0 {
		return nil, &EmptyInputError{Source: raw.Source, Reason: "no columns"}
	}

	names := columnNames(raw.Header, width)
	keys := columnKeys(names)
	rows := len(raw.Rows)

	t := &Table{Source: raw.Source, Columns: make([]Column, width)}
	for c := 0; c < width; c++ {
		col := Column{
			Name:        names[c],
			Key:         keys[c],
			DisplayName: toDisplayName(names[c]),
			Cells:       make([]Cell, rows),
		}

		present := make([]string, 0, rows)
		for r, row := range raw.Rows {
			var v any
			if c < len(row) {
				v = row[c]
			}
			text, missing := cellText(v)
			if missing {
				col.Cells[r] = Cell{Missing: true}
				continue
			}
			col.Cells[r] = Cell{Raw: text}
			present = append(present, text)
		}

		col.Type = inferType(present)
		typeCells(&col)
		analyzeColumn(&col, present, rows)
		t.Columns[c] = col
	}

	detectHierarchies(t)
	return t, nil
}

// ============================================================================
// NAMING
// ============================================================================

func columnNames(header []string, width int) []string {
	names := make([]string, width)
	used := make(map[string]bool, width)
	suffix := make(map[string]int)

	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		base := name
		for used[name] {
			suffix[base]++
			name = fmt.Sprintf("%s.%d", base, suffix[base])
		}
		used[name] = true
		names[i] = name
	}
	return names
}

func columnKeys(names []string) []string {
	keys := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, n := range names {
		key := toSnakeCase(n)
		if key == "" {
			key = fmt.Sprintf("column_%d", i+1)
		}
		base := key
		for k := 2; used[key]; k++ {
			key = fmt.Sprintf("%s_%d", base, k)
		}
		used[key] = true
		keys[i] = key
	}
	return keys
}

// ============================================================================
// TYPE INFERENCE
// ============================================================================

// inferType is all-or-nothing: one unparsable value makes the column text.
func inferType(values []string) ColumnType {
	if len(values) == 0 {
		return TypeText
	}
	if all(values, func(v string) bool { _, ok := ParseNumber(v); return ok }) {
		return TypeNumeric
	}
	if all(values, func(v string) bool { _, ok := ParseDate(v); return ok }) {
		return TypeDate
	}
	return TypeText
}

func all(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func typeCells(col *Column) {
	for i := range col.Cells {
		cell := &col.Cells[i]
		if cell.Missing {
			continue
		}
		switch col.Type {
		case TypeNumeric:
			cell.Num, _ = ParseNumber(cell.Raw)
		case TypeDate:
			cell.Time, _ = ParseDate(cell.Raw)
		}
	}
}

// ============================================================================
// COLUMN PROFILING
// ============================================================================

// analyzeColumn fills Profile and Role from the present values.
func analyzeColumn(col *Column, present []string, rows int) {
	uniqueSet := make(map[string]bool, len(present))
	for _, v := range present {
		uniqueSet[v] = true
	}

	p := &col.Profile
	p.Unique = len(uniqueSet)
	p.Missing = rows - len(present)
	p.Samples = collectSamples(uniqueSet, 10)

	if col.Type == TypeNumeric {
		for _, v := range present {
			if strings.Contains(v, ".") {
				p.HasDecimals = true
				break
			}
		}
	}

	switch col.Type {
	case TypeText:
		p.CurrencyCode = detectCurrencyCodes(p.Samples)
		p.Temporal, p.TemporalFormat = detectTemporalPattern(p.Samples)
	case TypeDate:
		p.Temporal = true
	}

	col.Role = classifyRole(col, len(present), rows)

	switch {
	case p.Unique <= 10:
		p.Cardinality = "low"
	case p.Unique <= 100:
		p.Cardinality = "medium"
	default:
		p.Cardinality = "high"
	}
}

// classifyRole determines dimension vs measure vs identifier.
func classifyRole(col *Column, present, rows int) Role {
	p := col.Profile
	switch col.Type {
	case TypeNumeric:
		// Continuous data is always a measure, even when every value differs.
		if p.HasDecimals {
			return RoleMeasure
		}
		if p.Unique == rows && rows > 10 {
			return RoleIdentifier
		}
		// Ratio-based: few values relative to rows → coded dimension (priority 1-5).
		// Absolute < 20 alone fails on small datasets where 6/12 looks low but is 50%.
		ratio := float64(p.Unique) / float64(rows)
		if p.Unique < 20 && ratio < 0.3 {
			return RoleDimension
		}
		return RoleMeasure

	case TypeDate:
		return RoleDimension

	default:
		if present == 0 {
			return RoleIdentifier
		}
		if p.Unique == rows && rows > 10 {
			return RoleIdentifier
		}
		if p.Unique > rows/2 && p.Unique > 50 {
			return RoleIdentifier
		}
		return RoleDimension
	}
}

// ============================================================================
// SPECIAL PATTERN DETECTION
// ============================================================================

// Known ISO 4217 currency codes (common subset).
var knownCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CNY": true,
	"INR": true, "SGD": true, "AUD": true, "CAD": true, "CHF": true,
	"HKD": true, "NZD": true, "SEK": true, "KRW": true, "NOK": true,
	"MXN": true, "BRL": true, "ZAR": true, "THB": true, "MYR": true,
	"IDR": true, "PHP": true, "VND": true, "TWD": true, "AED": true,
	"SAR": true, "QAR": true, "PLN": true, "CZK": true, "ILS": true,
	"DKK": true, "RUB": true, "TRY": true, "ARS": true, "CLP": true,
	"COP": true, "PEN": true, "EGP": true, "NGN": true, "KES": true,
	"PKR": true, "BDT": true, "LKR": true, "NPR": true,
}

// detectCurrencyCodes: at least 80% of samples are ISO codes.
func detectCurrencyCodes(samples []string) bool {
	if len(samples) == 0 {
		return false
	}
	matches := 0
	for _, s := range samples {
		if knownCurrencies[strings.TrimSpace(s)] {
			matches++
		}
	}
	return matches > 0 && float64(matches)/float64(len(samples)) >= 0.8
}

// Text columns that read as periods but are not full dates.
var periodPatterns = []struct {
	re     *regexp.Regexp
	format string
}{
	{regexp.MustCompile(`^\d{4}-\d{2}$`), "yyyy-MM"},       // 2026-01
	{regexp.MustCompile(`^Q[1-4]-\d{4}$`), "QN-yyyy"},      // Q1-2026
	{regexp.MustCompile(`^Q[1-4]\s+\d{4}$`), "QN yyyy"},    // Q1 2026
	{regexp.MustCompile(`^\d{4}-Q[1-4]$`), "yyyy-QN"},      // 2026-Q1
	{regexp.MustCompile(`^FY\s?\d{2,4}$`), "FYyy"},         // FY26
	{regexp.MustCompile(`^(?i)(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*$`), "MMM"},
}

func detectTemporalPattern(samples []string) (bool, string) {
	if len(samples) == 0 {
		return false, ""
	}
	for _, pattern := range periodPatterns {
		matches := 0
		for _, s := range samples {
			if pattern.re.MatchString(strings.TrimSpace(s)) {
				matches++
			}
		}
		if float64(matches)/float64(len(samples)) >= 0.8 {
			return true, pattern.format
		}
	}
	return false, ""
}

// ============================================================================
// HIERARCHY DETECTION
// ============================================================================

// detectHierarchies finds parent/child pairs among dimension columns.
// If every value of B maps to exactly one value of A, and A has fewer unique
// values, A is a parent of B. The closest parent (most unique values) wins;
// column order breaks ties.
func detectHierarchies(t *Table) {
	var dims []int
	for i := range t.Columns {
		c := &t.Columns[i]
		if c.Role == RoleDimension && c.Type != TypeNumeric {
			dims = append(dims, i)
		}
	}

	for _, ci := range dims {
		child := &t.Columns[ci]
		bestParent := -1
		bestUniques := 0

		for _, pi := range dims {
			if pi == ci {
				continue
			}
			parent := &t.Columns[pi]
			if parent.Profile.Unique >= child.Profile.Unique {
				continue
			}
			if isFunctionalDependency(child, parent) && parent.Profile.Unique > bestUniques {
				bestParent = pi
				bestUniques = parent.Profile.Unique
			}
		}

		if bestParent >= 0 {
			child.Profile.Parent = t.Columns[bestParent].Name
		}
	}
}

func isFunctionalDependency(child, parent *Column) bool {
	childToParent := make(map[string]string)
	for r := range child.Cells {
		c, p := child.Cells[r], parent.Cells[r]
		if c.Missing || p.Missing {
			continue
		}
		if existing, ok := childToParent[c.Raw]; ok {
			if existing != p.Raw {
				return false
			}
			continue
		}
		childToParent[c.Raw] = p.Raw
	}
	return len(childToParent) > 1
}

// ============================================================================
// STRING UTILITIES
// ============================================================================

// toSnakeCase converts "Column Name" or "columnName" → "column_name".
// Runs of anything other than letters and digits become one underscore.
func toSnakeCase(s string) string {
	var b strings.Builder
	var prev rune
	pendingSep := false
	for i, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && i > 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				pendingSep = true
			}
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingSep = true
		}
		prev = r
	}
	return b.String()
}

// toDisplayName cleans a header for human display.
// "story_points" → "Story Points", "assignee" → "Assignee"
func toDisplayName(s string) string {
	if strings.Contains(s, " ") {
		return strings.TrimSpace(s)
	}
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")

	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[:1])) + strings.ToLower(string(r[1:]))
	}
	return strings.Join(words, " ")
}

// collectSamples picks up to maxSamples values in sorted order.
func collectSamples(uniqueSet map[string]bool, maxSamples int) []string {
	samples := make([]string, 0, len(uniqueSet))
	for v := range uniqueSet {
		samples = append(samples, v)
	}
	sort.Strings(samples)
	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}
	return samples
}
