package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spektr-org/vizon/assistant"
	"github.com/spektr-org/vizon/engine"
	"github.com/spektr-org/vizon/schema"
)

// ============================================================================
// OUTPUT TYPES
// ============================================================================

type cliOutput struct {
	Query string `json:"query"`
	*assistant.Visualization
}

// ============================================================================
// CSV OUTPUT — chart or table data, ready for Sheets/Excel
// ============================================================================

func writeResultCSV(w io.Writer, result *engine.Result) error {
	cw := csv.NewWriter(w)

	switch {
	case result == nil:
		cw.Write([]string{"Result", "No data"})
	case result.ChartConfig != nil && len(result.ChartConfig.Series) > 0:
		writeChartCSV(cw, result.ChartConfig)
	case result.TableData != nil && len(result.TableData.Columns) > 0:
		writeTableCSV(cw, result.TableData)
	default:
		reply := result.Reply
		if reply == "" {
			reply = "No data"
		}
		cw.Write([]string{"Summary", "Value", "Unit"})
		value := ""
		if result.Data != nil {
			value = result.Data.Value
		}
		cw.Write([]string{reply, value, result.DisplayUnit})
	}

	cw.Flush()
	return cw.Error()
}

func writeChartCSV(cw *csv.Writer, chart *engine.ChartConfig) {
	xLabel, yLabel := chart.XAxis, chart.YAxis
	if xLabel == "" {
		xLabel = "Label"
	}
	if yLabel == "" {
		yLabel = "Value"
	}

	// Single series → two columns
	if len(chart.Series) == 1 {
		cw.Write([]string{xLabel, yLabel})
		for _, d := range chart.Series[0].Data {
			cw.Write([]string{d.Label, fmtNum(d.Value)})
		}
		return
	}

	// Multi-series → label + one column per series, rows in first-seen label order
	headers := []string{xLabel}
	var labels []string
	seen := map[string]bool{}
	values := make([]map[string]float64, len(chart.Series))
	for i, s := range chart.Series {
		headers = append(headers, s.Name)
		values[i] = make(map[string]float64, len(s.Data))
		for _, d := range s.Data {
			values[i][d.Label] = d.Value
			if !seen[d.Label] {
				seen[d.Label] = true
				labels = append(labels, d.Label)
			}
		}
	}
	cw.Write(headers)
	for _, label := range labels {
		row := []string{label}
		for i := range chart.Series {
			if v, ok := values[i][label]; ok {
				row = append(row, fmtNum(v))
			} else {
				row = append(row, "")
			}
		}
		cw.Write(row)
	}
}

func writeTableCSV(cw *csv.Writer, table *engine.TableData) {
	headers := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		headers[i] = c.Label
	}
	cw.Write(headers)
	for _, row := range table.Rows {
		cw.Write(row)
	}
}

// ============================================================================
// TEXT OUTPUT
// ============================================================================

func writeDashboardText(w io.Writer, d *engine.Dashboard) error {
	title := d.Title
	if title == "" {
		title = "Dashboard"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%d rows, %d columns\n", title, d.Summary.RowCount, d.Summary.ColumnCount)
	if len(d.Summary.Headline) > 0 {
		b.WriteString("\n")
		for _, s := range d.Summary.Headline {
			fmt.Fprintf(&b, "  %-24s %s\n", s.Label, s.Display)
		}
	}
	for _, f := range d.Summary.TopValues {
		parts := make([]string, len(f.Top))
		for i, v := range f.Top {
			parts[i] = fmt.Sprintf("%s (%d)", v.Value, v.Count)
		}
		fmt.Fprintf(&b, "\n%s: %d distinct\n  %s\n", f.Label, f.Distinct, strings.Join(parts, ", "))
	}
	if len(d.Charts) > 0 {
		b.WriteString("\nCharts:\n")
		for _, c := range d.Charts {
			fmt.Fprintf(&b, "  [%s] %s\n", c.ChartType, c.Title)
		}
	}
	for _, warn := range d.Warnings {
		fmt.Fprintf(&b, "! %s\n", warn)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeDescriptorText(w io.Writer, d schema.Descriptor) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d rows)\n", d.Name, d.Rows)
	b.WriteString("\nDimensions:\n")
	for _, dim := range d.Dimensions {
		fmt.Fprintf(&b, "  %-20s %-8s %s", dim.Key, dim.Type, dim.CardinalityHint)
		if dim.IsTemporal {
			b.WriteString(" temporal")
		}
		if dim.Parent != "" {
			fmt.Fprintf(&b, " (in %s)", dim.Parent)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nMeasures:\n")
	for _, m := range d.Measures {
		fmt.Fprintf(&b, "  %-20s %s", m.Key, m.Role)
		if m.Unit != "" {
			fmt.Fprintf(&b, " [%s]", m.Unit)
		}
		b.WriteString("\n")
	}
	for _, sc := range d.SkippedColumns {
		fmt.Fprintf(&b, "- skipped %s: %s\n", sc.Column, sc.Reason)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeVisualizationText(w io.Writer, v *assistant.Visualization) error {
	var lines []string
	if v.Interpretation.Summary != "" {
		lines = append(lines, v.Interpretation.Summary)
	}
	if v.Result != nil && v.Result.Reply != "" {
		lines = append(lines, v.Result.Reply)
	}
	if len(lines) == 0 {
		lines = append(lines, "No result.")
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// ============================================================================
// JSON OUTPUT
// ============================================================================

func writeJSON(w io.Writer, v any, format string) error {
	enc := json.NewEncoder(w)
	if format == "pretty" {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func fmtNum(v float64) string {
	// Whole numbers → no decimals, fractional → 2 decimals
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
