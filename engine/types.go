package engine

// ============================================================================
// ENGINE TYPES — Table Analytics
// ============================================================================
// Two entry points share these types:
//   BuildDashboard(table)       — fixed overview: metric summary + charts
//   Execute(spec, view)         — one QuerySpec from the assistant
//
// The engine never calls an AI service and has no side effects.
// ============================================================================

// ============================================================================
// QUERYSPEC — Contract between the assistant and the engine
// ============================================================================

// QuerySpec defines what the engine should compute.
// The assistant's model produces this; the engine consumes it.
type QuerySpec struct {
	Intent         string   `json:"intent"`                   // "text", "table", "chart"
	Filters        Filters  `json:"filters"`                  // Which rows to include
	CompareFilters *Filters `json:"compareFilters,omitempty"` // For ratio: numerator filters
	Aggregation    string   `json:"aggregation"`              // "sum", "count", "avg", "max", "min", "list", "growth", "ratio", "none"
	Measure        string   `json:"measure"`                  // Which numeric column to aggregate (empty → default)
	GroupBy        []string `json:"groupBy"`                  // Column keys: ["region"], ["category", "region"]
	SortBy         string   `json:"sortBy"`                   // "value_desc", "value_asc", "date_asc", "date_desc", "alpha_asc"
	Limit          int      `json:"limit"`                    // 0 = all
	Visualize      string   `json:"visualize"`                // "bar", "line", "pie", "stacked_bar", "area", "table", "text"
	Title          string   `json:"title"`                    // Chart/table title
	Reply          string   `json:"reply"`                    // Template: "Total {total} across {count} rows."
	Confidence     float64  `json:"confidence"`               // 0.0–1.0
}

// Filters define which rows to include.
// Keys are column keys. Values are allowed values.
// OR within a column, AND across columns. Empty = all.
type Filters struct {
	Dimensions map[string][]string `json:"dimensions"`
}

// IsEmpty returns true if no filters are set.
func (f Filters) IsEmpty() bool {
	for _, vals := range f.Dimensions {
		if len(vals) > 0 {
			return false
		}
	}
	return true
}

// ============================================================================
// RESULT — Render-ready output
// ============================================================================

// Result is the engine's render-ready output.
type Result struct {
	Success bool   `json:"success"`
	Type    string `json:"type"` // "chart", "table", "text"
	Reply   string `json:"reply"`
	Title   string `json:"title"`

	// Exactly one of these is populated based on Type:
	ChartConfig *ChartConfig `json:"chartConfig,omitempty"`
	TableData   *TableData   `json:"tableData,omitempty"`
	Data        *TextData    `json:"data,omitempty"`

	DisplayUnit string   `json:"displayUnit,omitempty"`
	Errors      []string `json:"errors,omitempty"`

	QuerySpec *QuerySpec `json:"querySpec,omitempty"`
}

// ============================================================================
// GROUP — Intermediate computation result
// ============================================================================

// Group represents a grouped/aggregated result.
// Builders convert these into ChartConfig, TableData, or TextData.
type Group struct {
	Key       string     `json:"key"`
	Label     string     `json:"label"`
	Value     float64    `json:"value"`
	Count     int        `json:"count"`
	SubGroups []Group    `json:"subGroups,omitempty"`
	View      RecordView `json:"-"` // Sub-view for rows in this group (zero-copy)
}

// ============================================================================
// CHART TYPES
// ============================================================================

// ChartConfig defines how to render a chart.
// Series carries category charts; Nodes carries treemap and sunburst;
// Points carries scatter.
type ChartConfig struct {
	ChartType  string         `json:"chartType"`
	Title      string         `json:"title"`
	XAxis      string         `json:"xAxis,omitempty"`
	YAxis      string         `json:"yAxis,omitempty"`
	Series     []ChartSeries  `json:"series,omitempty"`
	Nodes      []ChartNode    `json:"nodes,omitempty"`
	Points     []ScatterPoint `json:"points,omitempty"`
	Colors     []string       `json:"colors,omitempty"`
	ShowLegend bool           `json:"showLegend"`
	ShowGrid   bool           `json:"showGrid"`
}

// ChartSeries represents a data series in a chart.
type ChartSeries struct {
	Name  string       `json:"name"`
	Data  []ChartPoint `json:"data"`
	Color string       `json:"color,omitempty"`
}

// ChartPoint represents a single data point.
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ChartNode is one rectangle or ring segment of a hierarchical chart.
// A node's value is the sum of its children's values.
type ChartNode struct {
	Label    string      `json:"label"`
	Value    float64     `json:"value"`
	Count    int         `json:"count"`
	Children []ChartNode `json:"children,omitempty"`
}

// ScatterPoint is one row plotted on two numeric axes.
type ScatterPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Group string  `json:"group,omitempty"`
}

// ============================================================================
// TABLE TYPES
// ============================================================================

// TableData defines how to render a table.
type TableData struct {
	Title   string     `json:"title"`
	Columns []Column   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Summary *Summary   `json:"summary,omitempty"`
}

// Column defines a table column.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Type  string `json:"type"`  // "text", "number"
	Align string `json:"align"` // "left", "center", "right"
}

// Summary provides totals or aggregations for a table.
type Summary struct {
	Label  string            `json:"label"`
	Values map[string]string `json:"values"`
}

// ============================================================================
// TEXT TYPES
// ============================================================================

// TextData is structured data for simple query answers (type="text").
type TextData struct {
	Value    string      `json:"value"`
	RawValue float64     `json:"rawValue"`
	Unit     string      `json:"unit"`
	Period   string      `json:"period"`
	Count    int         `json:"count"`
	Growth   *GrowthData `json:"growth,omitempty"`
	Ratio    *RatioData  `json:"ratio,omitempty"`
}

// GrowthData contains change-over-time metrics.
type GrowthData struct {
	EarliestValue  float64 `json:"earliestValue"`
	LatestValue    float64 `json:"latestValue"`
	EarliestPeriod string  `json:"earliestPeriod"`
	LatestPeriod   string  `json:"latestPeriod"`
	ChangeAmount   float64 `json:"changeAmount"`
	ChangePercent  float64 `json:"changePercent"`
	Direction      string  `json:"direction"` // "increased", "decreased", "unchanged", "insufficient data"
}

// RatioData contains cross-group percentage comparison.
type RatioData struct {
	NumeratorTotal   float64 `json:"numeratorTotal"`
	DenominatorTotal float64 `json:"denominatorTotal"`
	Percentage       float64 `json:"percentage"`
	NumeratorLabel   string  `json:"numeratorLabel"`
	DenominatorLabel string  `json:"denominatorLabel"`
}
