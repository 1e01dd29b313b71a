package assistant

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spektr-org/vizon/engine"
	"github.com/spektr-org/vizon/schema"
)

// ============================================================================
// PROMPT BUILDERS
// ============================================================================
// Two prompts:
//   Ask       → data context + conversation + question, free-text answer
//   Visualize → table-driven QuerySpec prompt, JSON answer
//
// The QuerySpec prompt is generated from the table's columns:
//   - Dimensions → listed with distinct values
//   - Measures   → listed with units
//   - Hierarchies → parent/child relationships explained
//   - Temporal   → identified for time-based queries
//
// The model translates only. The engine computes every number locally.
// ============================================================================

// AnalystSystemPrompt frames the Ask model.
const AnalystSystemPrompt = `You are Vi, the VIZON assistant. You answer questions about one dataset as a Data Analyst.
Base every number on the data context you are given. If the data cannot answer the question, say so plainly.
Keep answers short and use plain text or simple markdown lists.`

// MaxHistoryTurns bounds how many earlier exchanges are replayed in a prompt.
const MaxHistoryTurns = 10

// buildAskPrompt renders the user part of an Ask request.
func buildAskPrompt(dataContext string, history []Message, question string) string {
	var b strings.Builder
	b.WriteString("Data Context:\n")
	b.WriteString(dataContext)
	b.WriteString("\n")

	if len(history) > 0 {
		if max := 2 * MaxHistoryTurns; len(history) > max {
			history = history[len(history)-max:]
		}
		b.WriteString("Conversation so far:\n")
		for _, m := range history {
			role := "User"
			if m.Role == RoleAssistant {
				role = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "User Question: %s\nAnswer as a Data Analyst.", question)
	return b.String()
}

// ── QuerySpec prompt ───────────────────────────────────────

// DataSummary provides lightweight metadata about available values.
// Distinct values only, never rows.
type DataSummary struct {
	RecordCount int                 `json:"recordCount"`
	Dimensions  map[string][]string `json:"dimensions"` // column key → distinct values
}

// maxSummaryValues caps distinct values listed per dimension.
const maxSummaryValues = 50

// BuildDataSummary collects distinct values of every groupable column.
func BuildDataSummary(view engine.RecordView) *DataSummary {
	summary := &DataSummary{
		RecordCount: view.Len(),
		Dimensions:  make(map[string][]string),
	}
	for _, key := range view.DimensionKeys() {
		vals := engine.UniqueValues(view, key)
		if len(vals) > maxSummaryValues {
			vals = vals[:maxSummaryValues]
		}
		summary.Dimensions[key] = vals
	}
	return summary
}

// BuildQueryPrompt generates the system prompt for QuerySpec translation.
func BuildQueryPrompt(t *schema.Table, summary *DataSummary, now time.Time) string {
	var b strings.Builder

	d := schema.Describe(t)

	// ── Header ────────────────────────────────────────────────────────────
	fmt.Fprintf(&b, `You are a query translator for the dataset "%s".

CURRENT DATE: %s

YOUR ROLE:
Translate the user's natural language query into a structured QuerySpec that a computation engine will execute.
You are a TRANSLATOR ONLY — do NOT compute any values. The engine will do all computation locally.

`, d.Name, now.Format("2006-01-02"))

	// ── Data Summary ──────────────────────────────────────────────────────
	if summary != nil {
		summaryJSON, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Fprintf(&b, "DATA SUMMARY (what data is available — NOT actual values):\n%s\n\n", summaryJSON)
	}

	// ── Data Model ────────────────────────────────────────────────────────
	b.WriteString("DATA MODEL:\n")
	b.WriteString(buildDimensionDescription(d.Dimensions))
	b.WriteString(buildMeasureDescription(d.Measures))
	b.WriteString("\n")

	if h := buildHierarchyDescription(d); h != "" {
		b.WriteString("DIMENSION HIERARCHIES:\n")
		b.WriteString(h)
		b.WriteString("\n")
	}

	b.WriteString(buildResponseFormat(d.Dimensions, d.DefaultMeasure()))
	b.WriteString(buildQuerySpecRules(d.Dimensions))
	b.WriteString(buildExampleTranslations(d.Dimensions, d.DefaultMeasure()))

	b.WriteString("\nRemember: You are a TRANSLATOR. Output structured instructions for the engine. Do NOT compute values.\n")
	return b.String()
}

// ============================================================================
// SECTION BUILDERS
// ============================================================================

func buildDimensionDescription(dims []schema.DimensionMeta) string {
	var b strings.Builder
	b.WriteString("DIMENSIONS (fields for grouping and filtering):\n")
	for _, d := range dims {
		fmt.Fprintf(&b, "- %q", d.Key)
		if d.DisplayName != "" && d.DisplayName != d.Key {
			fmt.Fprintf(&b, " (%s)", d.DisplayName)
		}
		if d.Description != "" {
			fmt.Fprintf(&b, ": %s", d.Description)
		}
		if len(d.SampleValues) > 0 {
			fmt.Fprintf(&b, " — values: [%s]", strings.Join(quotedValues(d.SampleValues), ", "))
		}
		if d.IsTemporal {
			b.WriteString(" [TEMPORAL — use for time-based queries]")
		}
		if d.IsCurrencyCode {
			b.WriteString(" [CURRENCY CODE]")
		}
		if d.SortHint != "" {
			fmt.Fprintf(&b, " [order: %s]", d.SortHint)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func buildMeasureDescription(measures []schema.MeasureMeta) string {
	var b strings.Builder
	b.WriteString("\nMEASURES (numeric fields for aggregation):\n")
	if len(measures) == 0 {
		b.WriteString("- none; use aggregation \"count\"\n")
	}
	for _, m := range measures {
		fmt.Fprintf(&b, "- %q", m.Key)
		if m.DisplayName != "" && m.DisplayName != m.Key {
			fmt.Fprintf(&b, " (%s)", m.DisplayName)
		}
		if m.Description != "" {
			fmt.Fprintf(&b, ": %s", m.Description)
		}
		if m.Unit != "" {
			fmt.Fprintf(&b, " [unit: %s]", m.Unit)
		}
		b.WriteString(" — aggregations: [sum, avg, min, max, count]\n")
	}
	return b.String()
}

func buildHierarchyDescription(d schema.Descriptor) string {
	var b strings.Builder
	for _, dim := range d.Dimensions {
		if dim.Parent == "" {
			continue
		}
		for _, p := range d.Dimensions {
			if p.Column == dim.Parent || p.Key == dim.Parent {
				fmt.Fprintf(&b, "- %q is a child of %q (e.g., filter parent then group by child for breakdown)\n", dim.Key, p.Key)
				break
			}
		}
	}
	return b.String()
}

func buildResponseFormat(dims []schema.DimensionMeta, measure string) string {
	filterExample := "{\n"
	for _, d := range dims {
		filterExample += fmt.Sprintf("      %q: [],\n", d.Key)
	}
	filterExample += "    }"

	return fmt.Sprintf(`RESPONSE FORMAT (ALWAYS valid JSON, no markdown):
{
  "interpretation": {
    "visualType": "bar|line|pie|area|stacked_bar|table|text",
    "summary": "A one-line description of what will be shown",
    "details": [
      {"label": "Data", "value": "Description of data being analyzed"},
      {"label": "Display", "value": "Chart/table/text description"}
    ],
    "suggestions": [
      {"label": "refinement label", "modifier": "appended to query"}
    ],
    "confidence": 0.9
  },
  "querySpec": {
    "intent": "text|table|chart",
    "filters": {
      "dimensions": %s
    },
    "compareFilters": null,
    "aggregation": "sum|count|avg|max|min|list|growth|ratio|none",
    "measure": "%s",
    "groupBy": [],
    "sortBy": "value_desc|value_asc|date_asc|date_desc|alpha_asc",
    "limit": 0,
    "visualize": "bar|line|pie|stacked_bar|area|table|text",
    "title": "Chart or table title",
    "reply": "Template with {total}, {count}, {period}, {top_category}, {top_amount}, {avg}, {max}, {min}, {growth_percent}, {direction}, {ratio_percent} placeholders",
    "confidence": 0.9
  }
}

`, filterExample, measure)
}

func buildQuerySpecRules(dims []schema.DimensionMeta) string {
	dimKeys := make([]string, 0, len(dims))
	var temporal []string
	for _, d := range dims {
		dimKeys = append(dimKeys, fmt.Sprintf("%q", d.Key))
		if d.IsTemporal {
			temporal = append(temporal, d.Key)
		}
	}

	temporalNote := ""
	if len(temporal) > 0 {
		temporalNote = fmt.Sprintf(`
TEMPORAL DIMENSIONS: %s
- Use these for time-series queries, trends, and growth analysis.
- Sort by "date_asc" for chronological, "date_desc" for reverse.
`, strings.Join(temporal, ", "))
	}

	return fmt.Sprintf(`QUERYSPEC RULES:

1. "intent" — what type of response to generate:
   - "text" → simple total, count, or average (e.g., "how much?", "how many?")
   - "table" → list of records or summary table (e.g., "show all", "list")
   - "chart" → visual chart (e.g., "show by X", "compare", "breakdown")

2. "filters" — which records to include:
   - Keys are dimension names: %s
   - Empty array = no filter (include all values for that dimension)
   - Values must match the DATA SUMMARY above; "(missing)" selects empty cells
   - Filters are AND across dimensions, OR within a dimension

3. "aggregation" — how to combine records:
   - "sum" → total (default for "how much" queries)
   - "count" → number of records ("how many")
   - "avg" → average value
   - "max" → largest value ("biggest", "highest", "largest")
   - "min" → smallest value ("smallest", "lowest")
   - "list" → no aggregation, show individual records ("show all", "list")
   - "growth" → percentage change from earliest to latest period ("trend", "increased")
   - "ratio" → percentage comparison between two subsets ("what %% of X was Y")
   - "none" → pass-through

4. "measure" — which numeric field to aggregate (from MEASURES above)

5. "groupBy" — dimensions to group by: %s
   - [] → no grouping (single result)
   - Can combine for multi-dimensional: ["dim1", "dim2"]
%s
6. "sortBy":
   - "value_desc" → highest first (default for totals)
   - "value_asc" → lowest first
   - "date_asc" → chronological (for time series)
   - "date_desc" → reverse chronological
   - "alpha_asc" → alphabetical

7. "limit" — max results (0 = all)

8. "visualize" — chart type:
   - For intent "chart": "bar", "line", "pie", "stacked_bar", "area"
   - For intent "table": "table"
   - For intent "text": "text"

9. "reply" — natural language template with placeholders:
   {total}, {count}, {period}, {top_category}, {top_amount}, {avg}, {max}, {min}
   Growth: {growth_percent}, {change_amount}, {earliest_value}, {latest_value}, {direction}
   Ratio: {ratio_percent}, {numerator_total}, {denominator_total}

RATIO QUERIES:
When user asks "what percentage of X was Y", "how much of A went to B":
- aggregation: "ratio", intent: "text"
- "filters" = DENOMINATOR (the total/base)
- "compareFilters" = NUMERATOR (the part)

IMPORTANT:
- "list" aggregation → always intent: "table"
- Charts must have at least one groupBy dimension
- max/min with no groupBy → intent: "text"
`, strings.Join(dimKeys, ", "), strings.Join(dimKeys, ", "), temporalNote)
}

func buildExampleTranslations(dims []schema.DimensionMeta, measure string) string {
	if len(dims) == 0 {
		return ""
	}

	var firstDim, secondDim, temporalDim string
	for _, d := range dims {
		switch {
		case d.IsTemporal && temporalDim == "":
			temporalDim = d.Key
		case firstDim == "":
			firstDim = d.Key
		case secondDim == "":
			secondDim = d.Key
		}
	}

	var b strings.Builder
	b.WriteString("EXAMPLE QUERY TRANSLATIONS:\n")
	if firstDim != "" && measure != "" {
		fmt.Fprintf(&b, "- \"show %s by %s\" → groupBy:[%q], intent:\"chart\", aggregation:\"sum\", measure:%q\n",
			measure, firstDim, firstDim, measure)
		fmt.Fprintf(&b, "- \"total %s\" → intent:\"text\", aggregation:\"sum\", measure:%q\n", measure, measure)
	}
	if temporalDim != "" {
		fmt.Fprintf(&b, "- \"trend over time\" → groupBy:[%q], intent:\"chart\", visualize:\"line\", sortBy:\"date_asc\"\n", temporalDim)
		b.WriteString("- \"has it increased?\" → intent:\"text\", aggregation:\"growth\"\n")
	}
	b.WriteString("- \"show all records\" → intent:\"table\", aggregation:\"list\"\n")
	if firstDim != "" {
		fmt.Fprintf(&b, "- \"how many per %s\" → groupBy:[%q], intent:\"chart\", aggregation:\"count\"\n", firstDim, firstDim)
		fmt.Fprintf(&b, "- \"top 5 by %s\" → groupBy:[%q], sortBy:\"value_desc\", limit:5\n", firstDim, firstDim)
	}
	if firstDim != "" && secondDim != "" {
		fmt.Fprintf(&b, "- \"compare %s across %s\" → groupBy:[%q, %q], intent:\"chart\", visualize:\"stacked_bar\"\n",
			firstDim, secondDim, secondDim, firstDim)
	}
	b.WriteString("\n")
	return b.String()
}

// ============================================================================
// HELPERS
// ============================================================================

var ratioKeywords = []string{"percentage of", "% of", "how much of", "portion of", "fraction of", "what part of", "share of"}

// ratioHint flags questions that need both filters and compareFilters.
func ratioHint(query string) string {
	lower := strings.ToLower(query)
	for _, kw := range ratioKeywords {
		if strings.Contains(lower, kw) {
			return "\nHINT: This is a RATIO query. Use aggregation:\"ratio\" with BOTH \"filters\" (denominator) AND \"compareFilters\" (numerator).\n"
		}
	}
	return ""
}

func quotedValues(vals []string) []string {
	quoted := make([]string, len(vals))
	for i, v := range vals {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return quoted
}
