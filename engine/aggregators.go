package engine

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spektr-org/vizon/schema"
)

// ============================================================================
// AGGREGATORS — Grouping, Aggregation, and Sorting via RecordView
// ============================================================================
// All functions operate on RecordView: zero-copy access to the table.
// Grouping produces SubViews (index lists into parent view).
// Missing measure cells are skipped, never counted as zero.
// ============================================================================

// MissingLabel is the group label for rows whose grouping cell is missing.
const MissingLabel = "(missing)"

// GroupAndAggregate is the main entry point for the aggregation pipeline.
// Pipeline: group → aggregate → sort → limit.
func GroupAndAggregate(
	view RecordView,
	groupBy []string,
	measure string,
	aggregation string,
	sortBy string,
	limit int,
) []Group {
	if view.Len() == 0 {
		return nil
	}

	// 1. Group
	var groups []Group
	if len(groupBy) == 0 {
		groups = []Group{{
			Key:   "all",
			Label: "Total",
			View:  view,
		}}
	} else if len(groupBy) == 1 {
		groups = groupBySingle(view, groupBy[0])
	} else {
		groups = groupByMulti(view, groupBy)
	}

	// 2. Aggregate
	for i := range groups {
		aggregateGroup(&groups[i], measure, aggregation)
		for j := range groups[i].SubGroups {
			aggregateGroup(&groups[i].SubGroups[j], measure, aggregation)
		}
	}

	// 3. Sort
	SortGroups(groups, sortBy)

	// 4. Limit
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}

	return groups
}

// ============================================================================
// GROUPING
// ============================================================================

// groupBySingle groups in first-seen order.
func groupBySingle(view RecordView, dimension string) []Group {
	grouped := make(map[string][]int)
	order := make([]string, 0)

	for i := 0; i < view.Len(); i++ {
		key := getDimensionValue(view, i, dimension)
		if _, exists := grouped[key]; !exists {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], i)
	}

	groups := make([]Group, 0, len(order))
	for _, key := range order {
		groups = append(groups, Group{
			Key:   key,
			Label: key,
			View:  newSubView(view, grouped[key]),
		})
	}
	return groups
}

func groupByMulti(view RecordView, dimensions []string) []Group {
	if len(dimensions) < 2 {
		return groupBySingle(view, dimensions[0])
	}

	primaryGroups := groupBySingle(view, dimensions[0])
	for i := range primaryGroups {
		primaryGroups[i].SubGroups = groupBySingle(primaryGroups[i].View, dimensions[1])
	}
	return primaryGroups
}

// getDimensionValue extracts a grouping value from a view at index.
// Missing cells group under MissingLabel. "year" is a virtual dimension
// derived from the time column when the table has no year column.
func getDimensionValue(view RecordView, i int, dimension string) string {
	val := view.Dimension(i, dimension)
	if val == "" && dimension == "year" && view.TimeKey() != "" {
		if t, ok := schema.ParseDate(view.Dimension(i, view.TimeKey())); ok {
			return strconv.Itoa(t.Year())
		}
		if p := view.Dimension(i, view.TimeKey()); len(p) >= 4 {
			if _, err := strconv.Atoi(p[:4]); err == nil {
				return p[:4] // "2026-01", "2026-Q1"
			}
		}
	}
	if val == "" {
		return MissingLabel
	}
	return val
}

// ============================================================================
// AGGREGATION
// ============================================================================

func aggregateGroup(group *Group, measure string, aggregation string) {
	group.Count = group.View.Len()
	if group.Count == 0 {
		return
	}

	switch aggregation {
	case "sum":
		group.Value = SumMeasure(group.View, measure)
	case "count":
		group.Value = float64(group.Count)
	case "avg":
		group.Value = AvgMeasure(group.View, measure)
	case "max":
		group.Value = MaxMeasure(group.View, measure)
	case "min":
		group.Value = MinMeasure(group.View, measure)
	case "list":
		group.Value = SumMeasure(group.View, measure) // for sorting
	case "none":
		// pass through
	default:
		group.Value = SumMeasure(group.View, measure)
	}
}

// SumMeasure sums the present values of a measure across a view.
func SumMeasure(view RecordView, measure string) float64 {
	var total float64
	for i := 0; i < view.Len(); i++ {
		if v, ok := view.Measure(i, measure); ok {
			total += v
		}
	}
	return total
}

// CountMeasure counts the rows where a measure is present.
func CountMeasure(view RecordView, measure string) int {
	n := 0
	for i := 0; i < view.Len(); i++ {
		if _, ok := view.Measure(i, measure); ok {
			n++
		}
	}
	return n
}

// AvgMeasure averages the present values of a measure.
func AvgMeasure(view RecordView, measure string) float64 {
	n := CountMeasure(view, measure)
	if n == 0 {
		return 0
	}
	return SumMeasure(view, measure) / float64(n)
}

// MaxMeasure returns the largest present value of a measure, or 0.
func MaxMeasure(view RecordView, measure string) float64 {
	m, found := math.Inf(-1), false
	for i := 0; i < view.Len(); i++ {
		if v, ok := view.Measure(i, measure); ok && (!found || v > m) {
			m, found = v, true
		}
	}
	if !found {
		return 0
	}
	return m
}

// MinMeasure returns the smallest present value of a measure, or 0.
func MinMeasure(view RecordView, measure string) float64 {
	m, found := math.Inf(1), false
	for i := 0; i < view.Len(); i++ {
		if v, ok := view.Measure(i, measure); ok && (!found || v < m) {
			m, found = v, true
		}
	}
	if !found {
		return 0
	}
	return m
}

// ============================================================================
// SORTING
// ============================================================================

// SortGroups sorts aggregate groups by the specified sort mode.
// Sorts are stable so equal values keep grouping order.
func SortGroups(groups []Group, sortBy string) {
	switch sortBy {
	case "value_desc", "amount_desc":
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Value > groups[j].Value })
	case "value_asc", "amount_asc":
		sort.SliceStable(groups, func(i, j int) bool { return groups[i].Value < groups[j].Value })
	case "chronological", "date_asc":
		sort.SliceStable(groups, func(i, j int) bool { return periodLess(groups[i].Key, groups[j].Key) })
	case "reverse_chronological", "date_desc":
		sort.SliceStable(groups, func(i, j int) bool { return periodLess(groups[j].Key, groups[i].Key) })
	case "label_asc", "alpha_asc":
		sort.SliceStable(groups, func(i, j int) bool { return strings.ToLower(groups[i].Key) < strings.ToLower(groups[j].Key) })
	case "label_desc":
		sort.SliceStable(groups, func(i, j int) bool { return strings.ToLower(groups[i].Key) > strings.ToLower(groups[j].Key) })
	default:
		// preserve grouping order
	}
}

// ============================================================================
// PERIODS
// ============================================================================

var (
	yearMonthRe   = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	quarterYearRe = regexp.MustCompile(`^Q([1-4])[-\s](\d{4})$`)
	yearQuarterRe = regexp.MustCompile(`^(\d{4})-Q([1-4])$`)
	yearRe        = regexp.MustCompile(`^\d{4}$`)
)

// PeriodOrder converts a period label to a sortable instant.
// Understands every date layout the normalizer does plus "2026-01",
// "Q1-2026", "2026-Q1" and bare years. ok is false for anything else.
func PeriodOrder(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, ok := schema.ParseDate(s); ok {
		return t, true
	}
	if yearMonthRe.MatchString(s) {
		if t, err := time.Parse("2006-01", s); err == nil {
			return t, true
		}
	}
	if m := quarterYearRe.FindStringSubmatch(s); m != nil {
		return quarterStart(m[2], m[1]), true
	}
	if m := yearQuarterRe.FindStringSubmatch(s); m != nil {
		return quarterStart(m[1], m[2]), true
	}
	if yearRe.MatchString(s) {
		if t, err := time.Parse("2006", s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func quarterStart(year, quarter string) time.Time {
	y, _ := strconv.Atoi(year)
	q, _ := strconv.Atoi(quarter)
	return time.Date(y, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
}

// periodLess orders parseable periods chronologically before anything else,
// and unparseable ones alphabetically.
func periodLess(a, b string) bool {
	ta, okA := PeriodOrder(a)
	tb, okB := PeriodOrder(b)
	switch {
	case okA && okB:
		return ta.Before(tb)
	case okA != okB:
		return okA
	default:
		return a < b
	}
}

// ============================================================================
// FORMATTING UTILITIES
// ============================================================================

// FormatAmount formats a value with comma separators and two decimals.
// Units other than "currency" are appended: "12.50 hours".
func FormatAmount(amount float64, unit string) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	cents := int64(math.Round(amount * 100))
	result := fmt.Sprintf("%s.%02d", groupThousands(cents/100), cents%100)
	if negative && cents != 0 {
		result = "-" + result
	}
	if unit != "" && unit != "currency" {
		result += " " + unit
	}
	return result
}

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	return groupThousands(int64(n))
}

func groupThousands(n int64) string {
	if n < 1000 {
		return strconv.FormatInt(n, 10)
	}
	return fmt.Sprintf("%s,%03d", groupThousands(n/1000), n%1000)
}

// RoundTo2 rounds to 2 decimal places.
func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// UniqueValues returns distinct present values for a dimension across a view,
// in first-seen order.
func UniqueValues(view RecordView, dimension string) []string {
	seen := make(map[string]bool)
	var result []string
	for i := 0; i < view.Len(); i++ {
		val := view.Dimension(i, dimension)
		if val != "" && !seen[val] {
			seen[val] = true
			result = append(result, val)
		}
	}
	return result
}

// LabelForDimension returns a capitalized label for a dimension key.
func LabelForDimension(dimension string) string {
	if len(dimension) == 0 {
		return ""
	}
	words := strings.Fields(strings.ReplaceAll(dimension, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// LabelForAggregation returns a human-readable label for an aggregation type.
func LabelForAggregation(aggregation string) string {
	switch aggregation {
	case "sum":
		return "Total"
	case "count":
		return "Count"
	case "avg":
		return "Average"
	case "max":
		return "Maximum"
	case "min":
		return "Minimum"
	default:
		return "Value"
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
