package schema

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// CANONICAL TABLE — The one typed shape every input is normalized into
// ============================================================================
// Column-major: each Column holds exactly Rows() cells. Missing values are
// explicit cells with Missing set, never zero and never dropped.
// The dashboard builder and the assistant only ever see this type.
// ============================================================================

// ColumnType is the inferred type of a column.
type ColumnType string

const (
	TypeNumeric ColumnType = "numeric"
	TypeDate    ColumnType = "date"
	TypeText    ColumnType = "text"
)

// Role says how a column is used downstream.
type Role string

const (
	RoleDimension  Role = "dimension"  // groupable
	RoleMeasure    Role = "measure"    // aggregatable
	RoleIdentifier Role = "identifier" // unique per row, or all missing
)

// Cell is one value. Raw always holds the trimmed source text.
type Cell struct {
	Missing bool
	Raw     string
	Num     float64
	Time    time.Time
}

// Profile is per-column metadata gathered during normalization.
type Profile struct {
	Unique         int      `json:"unique"`
	Missing        int      `json:"missing"`
	Samples        []string `json:"samples,omitempty"`
	HasDecimals    bool     `json:"hasDecimals,omitempty"`
	Temporal       bool     `json:"temporal,omitempty"`
	TemporalFormat string   `json:"temporalFormat,omitempty"`
	CurrencyCode   bool     `json:"currencyCode,omitempty"`
	Cardinality    string   `json:"cardinality"` // "low", "medium", "high"
	Parent         string   `json:"parent,omitempty"`
}

// Column is a named, typed sequence of cells.
type Column struct {
	Name        string
	Key         string
	Type        ColumnType
	Role        Role
	DisplayName string
	Description string
	Unit        string
	SortHint    string
	Cells       []Cell
	Profile     Profile
}

// Table is the canonical, typed form of one extraction.
type Table struct {
	Source      string
	Name        string
	Description string
	Columns     []Column
}

// Rows returns the row count.
func (t *Table) Rows() int {
	if t == nil || len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Cells)
}

// Width returns the column count.
func (t *Table) Width() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// Index resolves a column by name, then key, then case-insensitive name.
// Returns -1 when nothing matches.
func (t *Table) Index(name string) int {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return i
		}
	}
	for i := range t.Columns {
		if t.Columns[i].Key == name {
			return i
		}
	}
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return i
		}
	}
	return -1
}

// Column returns the named column, or nil.
func (t *Table) Column(name string) *Column {
	if i := t.Index(name); i >= 0 {
		return &t.Columns[i]
	}
	return nil
}

// Names returns column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// NumericColumns returns every numeric column in order.
func (t *Table) NumericColumns() []*Column {
	var out []*Column
	for i := range t.Columns {
		if t.Columns[i].Type == TypeNumeric {
			out = append(out, &t.Columns[i])
		}
	}
	return out
}

// CategoricalColumns returns every text and date column in order.
func (t *Table) CategoricalColumns() []*Column {
	var out []*Column
	for i := range t.Columns {
		if t.Columns[i].Type != TypeNumeric {
			out = append(out, &t.Columns[i])
		}
	}
	return out
}

// GroupingColumns returns the categorical columns whose role is dimension,
// the ones that make sense as chart axes.
func (t *Table) GroupingColumns() []*Column {
	var out []*Column
	for _, c := range t.CategoricalColumns() {
		if c.Role == RoleDimension {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a copy whose columns can be modified independently.
// Cells are shared; they are never mutated after normalization.
func (t *Table) Clone() *Table {
	c := *t
	c.Columns = make([]Column, len(t.Columns))
	copy(c.Columns, t.Columns)
	for i := range c.Columns {
		c.Columns[i].Profile.Samples = append([]string(nil), t.Columns[i].Profile.Samples...)
	}
	return &c
}

// Label returns DisplayName, falling back to Name.
func (c *Column) Label() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Name
}

// Value returns the typed value of row i: nil, float64, time.Time or string.
func (c *Column) Value(i int) any {
	cell := c.Cells[i]
	if cell.Missing {
		return nil
	}
	switch c.Type {
	case TypeNumeric:
		return cell.Num
	case TypeDate:
		return cell.Time
	default:
		return cell.Raw
	}
}

// Format renders row i for export: "" for missing, shortest float form for
// numbers, ISO date (RFC 3339 when a clock is present) for dates.
func (c *Column) Format(i int) string {
	cell := c.Cells[i]
	if cell.Missing {
		return ""
	}
	switch c.Type {
	case TypeNumeric:
		return FormatNumber(cell.Num)
	case TypeDate:
		return FormatDate(cell.Time)
	default:
		return cell.Raw
	}
}

// FormatNumber prints f without trailing zeros.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatDate prints a date as 2006-01-02, or RFC 3339 when it has a time of day.
func FormatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 && t.Location() == time.UTC {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

// ── JSON ───────────────────────────────────────────────────

type columnJSON struct {
	Name        string     `json:"name"`
	Key         string     `json:"key"`
	Type        ColumnType `json:"type"`
	Role        Role       `json:"role"`
	DisplayName string     `json:"displayName,omitempty"`
	Description string     `json:"description,omitempty"`
	Unit        string     `json:"unit,omitempty"`
	SortHint    string     `json:"sortHint,omitempty"`
	Profile     Profile    `json:"profile"`
	Values      []any      `json:"values"`
}

type tableJSON struct {
	Source      string       `json:"source"`
	Name        string       `json:"name,omitempty"`
	Description string       `json:"description,omitempty"`
	Rows        int          `json:"rows"`
	Columns     []columnJSON `json:"columns"`
}

// MarshalJSON renders the table column-major. Missing cells are null.
// The output depends only on the table contents.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{
		Source:      t.Source,
		Name:        t.Name,
		Description: t.Description,
		Rows:        t.Rows(),
		Columns:     make([]columnJSON, len(t.Columns)),
	}
	for i := range t.Columns {
		c := &t.Columns[i]
		values := make([]any, len(c.Cells))
		for r, cell := range c.Cells {
			switch {
			case cell.Missing:
				values[r] = nil
			case c.Type == TypeNumeric:
				values[r] = cell.Num
			default:
				values[r] = c.Format(r)
			}
		}
		out.Columns[i] = columnJSON{
			Name:        c.Name,
			Key:         c.Key,
			Type:        c.Type,
			Role:        c.Role,
			DisplayName: c.DisplayName,
			Description: c.Description,
			Unit:        c.Unit,
			SortHint:    c.SortHint,
			Profile:     c.Profile,
			Values:      values,
		}
	}
	return json.Marshal(out)
}
