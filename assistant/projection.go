package assistant

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spektr-org/vizon/engine"
	"github.com/spektr-org/vizon/helpers"
	"github.com/spektr-org/vizon/schema"
)

// ============================================================================
// DATA CONTEXT — What the model sees when answering questions
// ============================================================================
// A bounded projection of the table:
//   1. Dataset header   → name, source, row and column counts
//   2. Column listing   → type, role, unit, description, parent
//   3. Metric summary   → sums per numeric column, top values per category
//   4. Rows as CSV      → at most MaxContextRows
//
// The whole block is capped at MaxContextChars; rows are dropped from the
// end, never cut mid-line.
// ============================================================================

const (
	MaxContextRows  = 200
	MaxContextChars = 30000
)

// BuildDataContext renders the projection of t.
func BuildDataContext(t *schema.Table) string {
	var b strings.Builder

	name := t.Name
	if name == "" {
		name = t.Source
	}
	fmt.Fprintf(&b, "DATASET: %s\n", name)
	if t.Description != "" {
		fmt.Fprintf(&b, "DESCRIPTION: %s\n", t.Description)
	}
	if t.Source != "" && t.Source != name {
		fmt.Fprintf(&b, "SOURCE: %s\n", t.Source)
	}
	fmt.Fprintf(&b, "ROWS: %d, COLUMNS: %d\n\n", t.Rows(), t.Width())

	b.WriteString(describeColumns(t))
	if d, err := engine.BuildDashboard(t); err == nil {
		b.WriteString(describeSummary(d.Summary))
	}

	head := b.String()
	if len(head) > MaxContextChars {
		// very wide tables: the listing alone is over budget
		cut := strings.LastIndexByte(head[:MaxContextChars-len(truncatedNote)], '\n')
		return head[:cut+1] + truncatedNote
	}
	return head + projectRows(t, MaxContextChars-len(head))
}

const truncatedNote = "... (truncated)\n"

func describeColumns(t *schema.Table) string {
	var b strings.Builder
	b.WriteString("COLUMNS:\n")
	for i := range t.Columns {
		c := &t.Columns[i]
		fmt.Fprintf(&b, "- %q (%s, %s", c.Name, c.Type, c.Role)
		if c.Unit != "" {
			fmt.Fprintf(&b, ", unit: %s", c.Unit)
		}
		if c.Profile.Missing > 0 {
			fmt.Fprintf(&b, ", %d missing", c.Profile.Missing)
		}
		b.WriteString(")")
		if c.Description != "" {
			fmt.Fprintf(&b, ": %s", c.Description)
		}
		if c.Profile.Parent != "" {
			fmt.Fprintf(&b, " [child of %q]", c.Profile.Parent)
		}
		if c.SortHint != "" {
			fmt.Fprintf(&b, " [order: %s]", c.SortHint)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func describeSummary(s engine.MetricSummary) string {
	if len(s.Sums) == 0 && len(s.TopValues) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("SUMMARY:\n")
	for _, sum := range s.Sums {
		fmt.Fprintf(&b, "- %s: sum %s, mean %s, min %s, max %s over %d values\n",
			sum.Column, schema.FormatNumber(engine.RoundTo2(sum.Sum)), schema.FormatNumber(engine.RoundTo2(sum.Mean)),
			schema.FormatNumber(sum.Min), schema.FormatNumber(sum.Max), sum.NonMissing)
	}
	for _, f := range s.TopValues {
		parts := make([]string, len(f.Top))
		for i, v := range f.Top {
			parts[i] = fmt.Sprintf("%s (%d)", v.Value, v.Count)
		}
		fmt.Fprintf(&b, "- %s: %d distinct; top %s\n", f.Column, f.Distinct, strings.Join(parts, ", "))
	}
	b.WriteString("\n")
	return b.String()
}

// projectRows writes up to MaxContextRows rows as CSV within budget chars.
func projectRows(t *schema.Table, budget int) string {
	var buf bytes.Buffer
	n, err := helpers.WriteCSVRows(&buf, t, MaxContextRows)
	if err != nil {
		return ""
	}

	csv := buf.String()
	label := fmt.Sprintf("DATA (first %d of %d rows, CSV):\n", n, t.Rows())
	if n == t.Rows() {
		label = "DATA (CSV):\n"
	}
	if len(label)+len(csv) <= budget {
		return label + csv
	}

	// drop whole lines from the end until it fits
	room := budget - len(label) - len(truncatedNote)
	if room <= 0 {
		return ""
	}
	cut := strings.LastIndexByte(csv[:room], '\n')
	if cut < 0 {
		return ""
	}
	return label + csv[:cut+1] + truncatedNote
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
