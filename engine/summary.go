package engine

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/spektr-org/vizon/schema"
)

// ============================================================================
// DASHBOARD — Metric summary + overview charts for one table
// ============================================================================
// Layout:
//   Headline   — totals of the first four numeric columns
//   Sums       — sum / mean / min / max per numeric column
//   TopValues  — top-N frequencies per categorical column
//   Charts     — treemap, then sunburst or scatter; distinct-count bars
//                when the table has no numeric column
//
// BuildDashboard is a pure function of the table and options.
// ============================================================================

// HeadlineCount is how many numeric sums become headline cards.
const HeadlineCount = 4

// ColumnSum aggregates one numeric column. Missing cells are excluded from
// every statistic and counted in Missing.
type ColumnSum struct {
	Column     string  `json:"column"`
	Label      string  `json:"label"`
	Unit       string  `json:"unit,omitempty"`
	Sum        float64 `json:"sum"`
	Mean       float64 `json:"mean"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	NonMissing int     `json:"nonMissing"`
	Missing    int     `json:"missing"`
	Display    string  `json:"display"`
}

// ValueCount is one value and how many rows hold it.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Frequency is the top-N value counts of one categorical column.
type Frequency struct {
	Column   string       `json:"column"`
	Label    string       `json:"label"`
	Distinct int          `json:"distinct"`
	Top      []ValueCount `json:"top"`
}

// MetricSummary is the derived statistics of a table.
type MetricSummary struct {
	RowCount    int         `json:"rowCount"`
	ColumnCount int         `json:"columnCount"`
	Sums        []ColumnSum `json:"sums"`
	TopValues   []Frequency `json:"topValues"`
	Headline    []ColumnSum `json:"headline"`
}

// Dashboard is everything the overview tab renders.
type Dashboard struct {
	Title    string         `json:"title"`
	Summary  MetricSummary  `json:"summary"`
	Charts   []*ChartConfig `json:"charts"`
	Warnings []string       `json:"warnings,omitempty"`
}

// BuildDashboard computes the metric summary and chart specs for t.
func BuildDashboard(t *schema.Table, opts ...Option) (*Dashboard, error) {
	if t == nil {
		return nil, errors.New("dashboard: nil table")
	}
	cfg := applyOptions(opts)
	view := NewTableView(t)

	numeric := t.NumericColumns()
	categorical := t.CategoricalColumns()

	d := &Dashboard{
		Title: t.Name,
		Summary: MetricSummary{
			RowCount:    t.Rows(),
			ColumnCount: t.Width(),
			Sums:        make([]ColumnSum, 0, len(numeric)),
			TopValues:   make([]Frequency, 0, len(categorical)),
		},
		Charts: []*ChartConfig{},
	}
	if d.Title == "" {
		d.Title = t.Source
	}

	for _, c := range numeric {
		d.Summary.Sums = append(d.Summary.Sums, sumColumn(view, c))
	}
	for _, c := range categorical {
		d.Summary.TopValues = append(d.Summary.TopValues, topValues(view, c, cfg.TopN))
	}
	d.Summary.Headline = d.Summary.Sums[:min(HeadlineCount, len(d.Summary.Sums))]

	if len(numeric) == 0 {
		d.Warnings = append(d.Warnings, "No numeric data found for metrics.")
	}
	d.Charts = append(d.Charts, overviewCharts(view, t, cfg.TopN, &d.Warnings)...)

	cfg.Logger.Debug("dashboard built",
		zap.String("source", t.Source),
		zap.Int("rows", d.Summary.RowCount),
		zap.Int("sums", len(d.Summary.Sums)),
		zap.Int("frequencies", len(d.Summary.TopValues)),
		zap.Int("charts", len(d.Charts)))
	return d, nil
}

func sumColumn(view RecordView, c *schema.Column) ColumnSum {
	s := ColumnSum{
		Column:     c.Name,
		Label:      c.Label(),
		Unit:       c.Unit,
		Sum:        SumMeasure(view, c.Key),
		Min:        MinMeasure(view, c.Key),
		Max:        MaxMeasure(view, c.Key),
		NonMissing: CountMeasure(view, c.Key),
	}
	s.Missing = view.Len() - s.NonMissing
	if s.NonMissing > 0 {
		s.Mean = s.Sum / float64(s.NonMissing)
	}
	s.Display = FormatAmount(s.Sum, s.Unit)
	return s
}

// topValues counts every value of c, missing cells under MissingLabel, and
// keeps the n most frequent: count desc, then value asc.
func topValues(view RecordView, c *schema.Column, n int) Frequency {
	counts := make(map[string]int)
	for i := 0; i < view.Len(); i++ {
		counts[getDimensionValue(view, i, c.Key)]++
	}

	top := make([]ValueCount, 0, len(counts))
	for v, k := range counts {
		top = append(top, ValueCount{Value: v, Count: k})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Value < top[j].Value
	})

	distinct := len(counts)
	if _, ok := counts[MissingLabel]; ok {
		distinct--
	}
	if n > 0 && len(top) > n {
		top = top[:n]
	}
	return Frequency{Column: c.Name, Label: c.Label(), Distinct: distinct, Top: top}
}

// overviewCharts picks the fixed chart set. Axes prefer dimension-role
// columns and fall back to any categorical column.
func overviewCharts(view *TableView, t *schema.Table, topN int, warnings *[]string) []*ChartConfig {
	numeric := t.NumericColumns()
	groups := t.GroupingColumns()
	if len(groups) == 0 {
		groups = t.CategoricalColumns()
	}

	var charts []*ChartConfig
	add := func(c *ChartConfig) {
		if c != nil {
			charts = append(charts, c)
		}
	}

	if len(numeric) == 0 {
		for _, c := range groups {
			add(BuildDistinctBar(view, c.Key, topN))
		}
		if len(charts) == 0 {
			*warnings = append(*warnings, "Not enough data dimensions for charts.")
		}
		return charts
	}

	measure := numeric[0].Key
	if len(groups) > 0 {
		add(BuildTreemap(view, groups[0].Key, measure))
	} else {
		*warnings = append(*warnings, "Need categorical and numeric data for a treemap.")
	}

	switch {
	case len(groups) > 1:
		outer, inner := groups[0], groups[1]
		// a detected hierarchy reads better parent-first
		if outer.Profile.Parent == inner.Name {
			outer, inner = inner, outer
		}
		add(BuildSunburst(view, outer.Key, inner.Key, measure))
	case len(numeric) >= 2:
		colorBy := ""
		if len(groups) > 0 {
			colorBy = groups[0].Key
		}
		add(BuildScatter(view, numeric[0].Key, numeric[1].Key, colorBy))
	default:
		*warnings = append(*warnings, "Not enough data dimensions for a secondary chart.")
	}
	return charts
}
