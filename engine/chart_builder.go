package engine

import (
	"sort"
)

// ============================================================================
// CHART BUILDER — Produces ChartConfig from QuerySpec + Groups
// ============================================================================
// Category charts (bar, line, pie, stacked_bar, area) come from groups.
// Hierarchical charts (treemap, sunburst) and scatter come from a view and
// are used by the dashboard.
// ============================================================================

// Default color palette for chart series.
var defaultColors = []string{
	"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6",
	"#06B6D4", "#EC4899", "#84CC16", "#F97316", "#6366F1",
}

// BuildChart produces a ChartConfig from a QuerySpec and aggregated groups.
func BuildChart(spec QuerySpec, groups []Group, view RecordView) *ChartConfig {
	if len(groups) == 0 {
		return nil
	}

	chartType := spec.Visualize
	if chartType == "" || chartType == "table" || chartType == "text" {
		chartType = "bar"
	}

	config := &ChartConfig{
		ChartType:  chartType,
		Title:      spec.Title,
		ShowLegend: true,
		ShowGrid:   chartType != "pie",
	}

	if len(spec.GroupBy) > 0 {
		config.XAxis = view.Label(spec.GroupBy[0])
	}
	config.YAxis = LabelForAggregation(spec.Aggregation)

	if len(spec.GroupBy) >= 2 && hasSubGroups(groups) {
		config.Series = buildMultiSeries(groups)
	} else {
		config.Series = buildSingleSeries(groups, spec.Title)
	}

	config.Colors = assignColors(len(config.Series))
	return config
}

// ============================================================================
// SERIES BUILDERS
// ============================================================================

func buildSingleSeries(groups []Group, seriesName string) []ChartSeries {
	if seriesName == "" {
		seriesName = "Value"
	}

	points := make([]ChartPoint, 0, len(groups))
	for _, g := range groups {
		points = append(points, ChartPoint{
			Label: g.Label,
			Value: RoundTo2(g.Value),
		})
	}

	return []ChartSeries{{
		Name: seriesName,
		Data: points,
	}}
}

// buildMultiSeries emits one series per sub-group key, in first-seen order.
func buildMultiSeries(groups []Group) []ChartSeries {
	var subKeys []string
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, sg := range g.SubGroups {
			if !seen[sg.Key] {
				seen[sg.Key] = true
				subKeys = append(subKeys, sg.Key)
			}
		}
	}

	seriesMap := make(map[string][]ChartPoint, len(subKeys))
	for _, g := range groups {
		sgLookup := make(map[string]float64, len(g.SubGroups))
		for _, sg := range g.SubGroups {
			sgLookup[sg.Key] = sg.Value
		}
		for _, key := range subKeys {
			seriesMap[key] = append(seriesMap[key], ChartPoint{
				Label: g.Label,
				Value: RoundTo2(sgLookup[key]),
			})
		}
	}

	series := make([]ChartSeries, 0, len(subKeys))
	for i, key := range subKeys {
		series = append(series, ChartSeries{
			Name:  key,
			Data:  seriesMap[key],
			Color: defaultColors[i%len(defaultColors)],
		})
	}
	return series
}

func hasSubGroups(groups []Group) bool {
	for _, g := range groups {
		if len(g.SubGroups) > 0 {
			return true
		}
	}
	return false
}

func assignColors(count int) []string {
	colors := make([]string, count)
	for i := 0; i < count; i++ {
		colors[i] = defaultColors[i%len(defaultColors)]
	}
	return colors
}

// ============================================================================
// HIERARCHICAL + SCATTER BUILDERS
// ============================================================================

// BuildTreemap sums measure per value of dimension.
func BuildTreemap(view RecordView, dimension, measure string) *ChartConfig {
	nodes := buildNodes(view, []string{dimension}, measure)
	if len(nodes) == 0 {
		return nil
	}
	return &ChartConfig{
		ChartType:  "treemap",
		Title:      view.Label(measure) + " by " + view.Label(dimension),
		Nodes:      nodes,
		Colors:     assignColors(len(nodes)),
		ShowLegend: true,
	}
}

// BuildSunburst sums measure over a two-level path: outer, then inner.
func BuildSunburst(view RecordView, outer, inner, measure string) *ChartConfig {
	nodes := buildNodes(view, []string{outer, inner}, measure)
	if len(nodes) == 0 {
		return nil
	}
	return &ChartConfig{
		ChartType:  "sunburst",
		Title:      view.Label(measure) + " by " + view.Label(outer) + " and " + view.Label(inner),
		Nodes:      nodes,
		Colors:     assignColors(len(nodes)),
		ShowLegend: true,
	}
}

// buildNodes groups along path and sums measure at every level.
// Siblings are ordered by value desc, then label asc.
func buildNodes(view RecordView, path []string, measure string) []ChartNode {
	if view.Len() == 0 || len(path) == 0 {
		return nil
	}
	groups := groupBySingle(view, path[0])
	nodes := make([]ChartNode, 0, len(groups))
	for _, g := range groups {
		node := ChartNode{
			Label: g.Label,
			Value: RoundTo2(SumMeasure(g.View, measure)),
			Count: g.View.Len(),
		}
		if len(path) > 1 {
			node.Children = buildNodes(g.View, path[1:], measure)
		}
		nodes = append(nodes, node)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Value != nodes[j].Value {
			return nodes[i].Value > nodes[j].Value
		}
		return nodes[i].Label < nodes[j].Label
	})
	return nodes
}

// BuildScatter plots x against y for rows where both are present.
// groupBy is optional and colors points by a dimension.
func BuildScatter(view RecordView, x, y, groupBy string) *ChartConfig {
	points := make([]ScatterPoint, 0, view.Len())
	for i := 0; i < view.Len(); i++ {
		xv, okX := view.Measure(i, x)
		yv, okY := view.Measure(i, y)
		if !okX || !okY {
			continue
		}
		p := ScatterPoint{X: xv, Y: yv}
		if groupBy != "" {
			p.Group = getDimensionValue(view, i, groupBy)
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil
	}
	return &ChartConfig{
		ChartType:  "scatter",
		Title:      view.Label(y) + " vs " + view.Label(x),
		XAxis:      view.Label(x),
		YAxis:      view.Label(y),
		Points:     points,
		ShowLegend: groupBy != "",
		ShowGrid:   true,
	}
}

// BuildDistinctBar counts rows per value of dimension, largest first.
func BuildDistinctBar(view RecordView, dimension string, limit int) *ChartConfig {
	groups := GroupAndAggregate(view, []string{dimension}, "", "count", "", 0)
	if len(groups) == 0 {
		return nil
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Label < groups[j].Label
	})
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	config := &ChartConfig{
		ChartType: "bar",
		Title:     "Rows by " + view.Label(dimension),
		XAxis:     view.Label(dimension),
		YAxis:     "Count",
		Series:    buildSingleSeries(groups, "Count"),
		ShowGrid:  true,
	}
	config.Colors = assignColors(len(config.Series))
	return config
}
