package engine

import (
	"fmt"
	"math"
	"sort"
)

// ============================================================================
// TEXT BUILDER — Produces TextData for simple queries
// ============================================================================
// Period-aware answers (growth, period labels) read the view's time column.
// ============================================================================

// BuildText produces text response data from filtered rows.
func BuildText(spec QuerySpec, view RecordView, measure string, unit string) *TextData {
	if view.Len() == 0 {
		return &TextData{
			Value:  "0",
			Unit:   unit,
			Period: DerivePeriod(view),
		}
	}

	var value float64
	switch spec.Aggregation {
	case "sum":
		value = SumMeasure(view, measure)
	case "count":
		value = float64(view.Len())
	case "avg":
		value = AvgMeasure(view, measure)
	case "max":
		value = MaxMeasure(view, measure)
	case "min":
		value = MinMeasure(view, measure)
	case "growth":
		return BuildGrowthText(view, measure, unit)
	default:
		if measure == "" {
			value = float64(view.Len())
		} else {
			value = SumMeasure(view, measure)
		}
	}

	var formatted string
	if spec.Aggregation == "count" || measure == "" {
		formatted = FormatInt(int(value))
	} else {
		formatted = FormatAmount(value, unit)
	}

	return &TextData{
		Value:    formatted,
		RawValue: value,
		Unit:     unit,
		Period:   DerivePeriod(view),
		Count:    view.Len(),
	}
}

// ============================================================================
// GROWTH BUILDER
// ============================================================================

// BuildGrowthText compares the earliest and latest period totals.
func BuildGrowthText(view RecordView, measure string, unit string) *TextData {
	if view.Len() == 0 {
		return &TextData{
			Value:  "No data",
			Unit:   unit,
			Period: "No data",
		}
	}

	periodTotals := make(map[string]float64)
	if key := view.TimeKey(); key != "" {
		for i := 0; i < view.Len(); i++ {
			p := view.Dimension(i, key)
			if p == "" {
				continue
			}
			v, _ := view.Measure(i, measure)
			periodTotals[p] += v
		}
	}

	// Need at least 2 distinct periods
	if len(periodTotals) < 2 {
		total := SumMeasure(view, measure)
		period := DerivePeriod(view)
		return &TextData{
			Value:    FormatAmount(total, unit),
			RawValue: total,
			Unit:     unit,
			Period:   period,
			Count:    view.Len(),
			Growth: &GrowthData{
				EarliestValue:  total,
				LatestValue:    total,
				EarliestPeriod: period,
				LatestPeriod:   period,
				Direction:      "insufficient data",
			},
		}
	}

	periods := sortedKeys(periodTotals)
	sort.SliceStable(periods, func(i, j int) bool { return periodLess(periods[i], periods[j]) })

	earliest, latest := periods[0], periods[len(periods)-1]
	earliestTotal, latestTotal := periodTotals[earliest], periodTotals[latest]

	changeAmount := latestTotal - earliestTotal
	var changePercent float64
	if earliestTotal != 0 {
		changePercent = (changeAmount / earliestTotal) * 100
	}

	direction := "unchanged"
	if changePercent > 0.5 {
		direction = "increased"
	} else if changePercent < -0.5 {
		direction = "decreased"
	}

	var displayValue string
	switch direction {
	case "increased":
		displayValue = fmt.Sprintf("↑ %.1f%%", math.Abs(changePercent))
	case "decreased":
		displayValue = fmt.Sprintf("↓ %.1f%%", math.Abs(changePercent))
	default:
		displayValue = "→ No change"
	}

	return &TextData{
		Value:    displayValue,
		RawValue: changePercent,
		Unit:     unit,
		Period:   fmt.Sprintf("%s – %s", earliest, latest),
		Count:    view.Len(),
		Growth: &GrowthData{
			EarliestValue:  earliestTotal,
			LatestValue:    latestTotal,
			EarliestPeriod: earliest,
			LatestPeriod:   latest,
			ChangeAmount:   changeAmount,
			ChangePercent:  changePercent,
			Direction:      direction,
		},
	}
}

// ============================================================================
// PERIOD HELPER
// ============================================================================

// DerivePeriod builds a human-readable period string from a view's time column.
func DerivePeriod(view RecordView) string {
	if view.Len() == 0 {
		return "No data"
	}
	key := view.TimeKey()
	if key == "" {
		return "All time"
	}

	periods := UniqueValues(view, key)
	switch len(periods) {
	case 0:
		return "All time"
	case 1:
		return periods[0]
	}

	earliest, latest := periods[0], periods[0]
	for _, p := range periods[1:] {
		if periodLess(p, earliest) {
			earliest = p
		}
		if periodLess(latest, p) {
			latest = p
		}
	}
	return fmt.Sprintf("%s – %s", earliest, latest)
}
