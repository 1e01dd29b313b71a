package engine

import (
	"fmt"
)

// ============================================================================
// TABLE BUILDER — Produces TableData from QuerySpec + Groups
// ============================================================================
// Column discovery uses view.DimensionKeys() instead of inspecting rows.
// ============================================================================

// BuildTable produces a TableData from a QuerySpec, groups, filtered view, and display unit.
func BuildTable(spec QuerySpec, groups []Group, view RecordView, measure string, unit string) *TableData {
	if spec.Aggregation == "list" {
		return buildListTable(spec, view, measure, unit)
	}
	return buildAggregatedTable(spec, groups, view, unit)
}

// ============================================================================
// LIST TABLE — Row per record
// ============================================================================

func buildListTable(spec QuerySpec, view RecordView, measure string, unit string) *TableData {
	if view.Len() == 0 {
		return &TableData{
			Title:   spec.Title,
			Columns: []Column{},
			Rows:    [][]string{},
		}
	}

	dimKeys := view.DimensionKeys()
	columns := make([]Column, 0, len(dimKeys)+1)
	for _, key := range dimKeys {
		if key == measure {
			continue
		}
		columns = append(columns, Column{
			Key:   key,
			Label: view.Label(key),
			Type:  "text",
			Align: "left",
		})
	}
	hasMeasure := measure != ""
	if hasMeasure {
		columns = append(columns, Column{
			Key:   measure,
			Label: view.Label(measure),
			Type:  "number",
			Align: "right",
		})
	}

	rows := make([][]string, 0, view.Len())
	var total float64
	for i := 0; i < view.Len(); i++ {
		row := make([]string, 0, len(columns))
		for _, c := range columns {
			if c.Key != measure {
				row = append(row, view.Dimension(i, c.Key))
			}
		}
		if hasMeasure {
			if val, ok := view.Measure(i, measure); ok {
				row = append(row, fmt.Sprintf("%.2f", val))
				total += val
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}

	data := &TableData{
		Title:   spec.Title,
		Columns: columns,
		Rows:    rows,
	}
	if hasMeasure {
		data.Summary = &Summary{
			Label: fmt.Sprintf("Total (%d records)", view.Len()),
			Values: map[string]string{
				measure: FormatAmount(total, unit),
			},
		}
	}
	return data
}

// ============================================================================
// AGGREGATED TABLE — Summary rows
// ============================================================================

func buildAggregatedTable(spec QuerySpec, groups []Group, view RecordView, unit string) *TableData {
	if len(groups) == 0 {
		return &TableData{
			Title:   spec.Title,
			Columns: []Column{},
			Rows:    [][]string{},
		}
	}

	groupLabel := "Group"
	if len(spec.GroupBy) > 0 {
		groupLabel = view.Label(spec.GroupBy[0])
	}
	valueLabel := LabelForAggregation(spec.Aggregation)

	columns := []Column{
		{Key: "group", Label: groupLabel, Type: "text", Align: "left"},
		{Key: "value", Label: valueLabel, Type: "number", Align: "right"},
		{Key: "count", Label: "Count", Type: "number", Align: "center"},
	}

	rows := make([][]string, 0, len(groups))
	var totalValue float64
	var totalCount int

	for _, g := range groups {
		rows = append(rows, []string{
			g.Label,
			fmt.Sprintf("%.2f", g.Value),
			fmt.Sprintf("%d", g.Count),
		})
		totalValue += g.Value
		totalCount += g.Count
	}

	return &TableData{
		Title:   spec.Title,
		Columns: columns,
		Rows:    rows,
		Summary: &Summary{
			Label: "Total",
			Values: map[string]string{
				"value": FormatAmount(totalValue, unit),
				"count": fmt.Sprintf("%d", totalCount),
			},
		},
	}
}
