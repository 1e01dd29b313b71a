package engine

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ============================================================================
// EXECUTOR — Dispatcher + Placeholder Resolution
// ============================================================================
// Entry point: Execute(spec, view, opts...)
//
// Pipeline:
//   1. Apply filters from QuerySpec → SubView
//   2. Group and aggregate
//   3. Dispatch to builder (chart / table / text)
//   4. Resolve reply template placeholders
//   5. Return Result
//
// This function never calls an AI service. All computation is local.
// Zero data copy: the engine reads the table through RecordView.
// ============================================================================

// unitView is implemented by views that know column units.
type unitView interface {
	Unit(key string) string
}

// Execute runs a QuerySpec against a RecordView and returns a render-ready Result.
//
// Options:
//   - WithDefaultMeasure(key) — sets the measure when QuerySpec.Measure is empty
//   - WithLogger(logger)      — debug output
func Execute(spec QuerySpec, view RecordView, opts ...Option) (*Result, error) {
	if view == nil {
		return nil, fmt.Errorf("execute: nil view")
	}
	cfg := applyOptions(opts)
	logger := cfg.Logger

	measure := resolveMeasure(spec.Measure, view, cfg)

	if view.Len() == 0 {
		return &Result{
			Success: true,
			Type:    "text",
			Reply:   "No data available to analyze.",
		}, nil
	}

	logger.Debug("executing query",
		zap.Int("rows", view.Len()),
		zap.String("intent", spec.Intent),
		zap.String("visualize", spec.Visualize),
		zap.String("aggregation", spec.Aggregation),
		zap.String("measure", measure))

	unit := ""
	if uv, ok := view.(unitView); ok && measure != "" {
		unit = uv.Unit(measure)
	}

	// ── RATIO AGGREGATION (early return) ──────────────────────────────────
	if spec.Aggregation == "ratio" && spec.CompareFilters != nil {
		return executeRatio(spec, view, measure, unit, logger)
	}

	// 1. Apply filters → SubView (zero-copy)
	filtered := ApplyFilters(view, spec.Filters)
	if filtered.Len() == 0 {
		return &Result{
			Success: true,
			Type:    "text",
			Reply:   "No records match your query filters. Try broadening your search.",
		}, nil
	}
	logger.Debug("filtered", zap.Int("rows", filtered.Len()), zap.Int("from", view.Len()))

	// 2. Group and aggregate
	aggregation := spec.Aggregation
	if measure == "" && aggregation != "list" && aggregation != "none" {
		aggregation = "count" // no numeric column to aggregate
	}
	groups := GroupAndAggregate(filtered, spec.GroupBy, measure, aggregation, spec.SortBy, spec.Limit)

	// 3. Dispatch to builder
	result := &Result{
		Success:     true,
		Title:       spec.Title,
		DisplayUnit: unit,
		QuerySpec:   &spec,
	}
	effective := spec
	effective.Aggregation = aggregation

	switch spec.Intent {
	case "chart":
		result.Type = "chart"
		result.ChartConfig = BuildChart(effective, groups, filtered)
		if result.ChartConfig == nil {
			result.Type = "text"
			result.Reply = "Not enough data to generate a chart."
			return result, nil
		}

	case "table":
		result.Type = "table"
		result.TableData = BuildTable(effective, groups, filtered, measure, unit)

	default:
		result.Type = "text"
		result.Data = BuildText(effective, filtered, measure, unit)
		if aggregation == "growth" && result.Data.Growth != nil && result.Data.Growth.Direction == "insufficient data" {
			result.Reply = fmt.Sprintf("The data shows %s for %s. At least two periods are needed to show a trend.",
				result.Data.Value, result.Data.Period)
			return result, nil
		}
	}

	// 4. Resolve reply template placeholders
	result.Reply = ResolvePlaceholders(spec.Reply, groups, filtered, measure, unit)
	return result, nil
}

// resolveMeasure picks the column to aggregate: the spec's, then the
// configured default, then the first numeric column. "" means count rows.
func resolveMeasure(requested string, view RecordView, cfg *config) string {
	keys := view.MeasureKeys()
	for _, candidate := range []string{requested, cfg.DefaultMeasure} {
		if candidate == "" {
			continue
		}
		for _, k := range keys {
			if k == candidate || strings.EqualFold(view.Label(k), candidate) {
				return k
			}
		}
	}
	if len(keys) > 0 {
		return keys[0]
	}
	return ""
}

// ============================================================================
// RATIO EXECUTION (early return path)
// ============================================================================

func executeRatio(spec QuerySpec, view RecordView, measure, unit string, logger *zap.Logger) (*Result, error) {
	denominator := ApplyFilters(view, spec.Filters)
	numerator := ApplyFilters(view, *spec.CompareFilters)

	denomSum := SumMeasure(denominator, measure)
	numSum := SumMeasure(numerator, measure)
	if measure == "" {
		denomSum, numSum = float64(denominator.Len()), float64(numerator.Len())
	}

	var pct float64
	if denomSum > 0 {
		pct = (numSum / denomSum) * 100
	}

	numLabel := buildFilterLabel(spec.CompareFilters)
	denomLabel := buildFilterLabel(&spec.Filters)

	displayValue := fmt.Sprintf("%.1f%%", pct)
	// ConcatView for period derivation, no data copy
	period := DerivePeriod(newConcatView(denominator, numerator))

	textData := &TextData{
		Value:    displayValue,
		RawValue: pct,
		Unit:     unit,
		Period:   period,
		Count:    numerator.Len() + denominator.Len(),
		Ratio: &RatioData{
			NumeratorTotal:   numSum,
			DenominatorTotal: denomSum,
			Percentage:       pct,
			NumeratorLabel:   numLabel,
			DenominatorLabel: denomLabel,
		},
	}

	reply := spec.Reply
	replacements := map[string]string{
		"{ratio_percent}":     displayValue,
		"{numerator_total}":   FormatAmount(numSum, unit),
		"{denominator_total}": FormatAmount(denomSum, unit),
		"{numerator_label}":   numLabel,
		"{denominator_label}": denomLabel,
		"{period}":            period,
		"{total}":             FormatAmount(numSum, unit),
	}
	for _, k := range sortedKeys(replacements) {
		reply = strings.ReplaceAll(reply, k, replacements[k])
	}
	if reply == "" {
		reply = fmt.Sprintf("%s is %s of %s.", numLabel, displayValue, denomLabel)
	}

	logger.Debug("ratio", zap.String("numerator", numLabel), zap.String("denominator", denomLabel), zap.Float64("percent", pct))

	return &Result{
		Success:     true,
		Type:        "text",
		Title:       spec.Title,
		Reply:       reply,
		Data:        textData,
		DisplayUnit: unit,
		QuerySpec:   &spec,
	}, nil
}

// ============================================================================
// PLACEHOLDER RESOLUTION
// ============================================================================

// ResolvePlaceholders substitutes computed values into the reply template.
func ResolvePlaceholders(template string, groups []Group, view RecordView, measure string, unit string) string {
	if template == "" {
		return buildDefaultReply(view, measure, unit)
	}

	count := view.Len()
	replacements := map[string]string{
		"{count}":    FormatInt(count),
		"{period}":   DerivePeriod(view),
		"{currency}": unit,
		"{unit}":     unit,
	}

	if measure != "" {
		total := SumMeasure(view, measure)
		replacements["{total}"] = FormatAmount(total, unit)
		if n := CountMeasure(view, measure); n > 0 {
			replacements["{avg}"] = FormatAmount(total/float64(n), unit)
			replacements["{max}"] = FormatAmount(MaxMeasure(view, measure), unit)
			replacements["{min}"] = FormatAmount(MinMeasure(view, measure), unit)
		}
	} else {
		replacements["{total}"] = FormatInt(count)
	}

	// Top group (highest value, first wins ties)
	if len(groups) > 0 {
		topGroup := groups[0]
		for _, g := range groups[1:] {
			if g.Value > topGroup.Value {
				topGroup = g
			}
		}
		replacements["{top_category}"] = topGroup.Label
		replacements["{top_amount}"] = FormatAmount(topGroup.Value, unit)
	}

	if measure != "" {
		if g := BuildGrowthText(view, measure, unit).Growth; g != nil && g.Direction != "insufficient data" {
			replacements["{growth_percent}"] = fmt.Sprintf("%.1f%%", g.ChangePercent)
			replacements["{change_amount}"] = FormatAmount(g.ChangeAmount, unit)
			replacements["{earliest_value}"] = FormatAmount(g.EarliestValue, unit)
			replacements["{latest_value}"] = FormatAmount(g.LatestValue, unit)
			replacements["{earliest_period}"] = g.EarliestPeriod
			replacements["{latest_period}"] = g.LatestPeriod
			replacements["{direction}"] = g.Direction
		}
	}

	result := template
	for _, placeholder := range sortedKeys(replacements) {
		result = strings.ReplaceAll(result, placeholder, replacements[placeholder])
	}

	// Safety net: strip unresolved placeholders
	return stripUnresolvedPlaceholders(result)
}

// ============================================================================
// QUERYSPEC NORMALIZATION
// ============================================================================

// NormalizeQuerySpec applies deterministic rules to fix common AI inconsistencies.
func NormalizeQuerySpec(spec QuerySpec, logger *zap.Logger) QuerySpec {
	changed := false

	// Rule 1: "list" aggregation must be a table
	if spec.Aggregation == "list" && spec.Intent != "table" {
		spec.Intent = "table"
		spec.Visualize = "table"
		changed = true
	}

	// Rule 2: Charts must have a groupBy dimension
	if spec.Intent == "chart" && len(spec.GroupBy) == 0 {
		spec.Intent = "text"
		spec.Visualize = "text"
		changed = true
	}

	// Rule 3: max/min with no groupBy → text
	if (spec.Aggregation == "max" || spec.Aggregation == "min") && len(spec.GroupBy) == 0 && spec.Intent != "text" {
		spec.Intent = "text"
		spec.Visualize = "text"
		changed = true
	}

	// Rule 4: unknown intents fall back to text
	switch spec.Intent {
	case "chart", "table", "text":
	default:
		spec.Intent = "text"
		changed = true
	}

	if changed && logger != nil {
		logger.Debug("query spec adjusted",
			zap.String("intent", spec.Intent),
			zap.Strings("groupBy", spec.GroupBy),
			zap.String("aggregation", spec.Aggregation))
	}
	return spec
}

// ============================================================================
// INTERNAL HELPERS
// ============================================================================

func buildDefaultReply(view RecordView, measure string, unit string) string {
	if view.Len() == 0 {
		return "No matching records found."
	}
	if measure == "" {
		return fmt.Sprintf("Found %s records.", FormatInt(view.Len()))
	}
	return fmt.Sprintf("Found %s records with %s totalling %s.",
		FormatInt(view.Len()), view.Label(measure), FormatAmount(SumMeasure(view, measure), unit))
}

// buildFilterLabel creates a human-readable label from Filters.
func buildFilterLabel(f *Filters) string {
	if f == nil || f.IsEmpty() {
		return "All"
	}

	var parts []string
	for _, dim := range sortedKeys(f.Dimensions) {
		if vals := f.Dimensions[dim]; len(vals) > 0 {
			parts = append(parts, strings.Join(vals, ", "))
		}
	}
	return strings.Join(parts, " / ")
}

var placeholderRegex = regexp.MustCompile(`\{[a-z_]+\}`)

func stripUnresolvedPlaceholders(text string) string {
	cleaned := placeholderRegex.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, "  ", " ")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimRight(cleaned, " .—-–")
	if cleaned == "" {
		return text
	}
	return cleaned
}
