package engine

import (
	"github.com/spektr-org/vizon/schema"
)

// ============================================================================
// RECORD VIEW — Zero-Copy Data Access Interface
// ============================================================================
// The engine never owns table data. It reads through this interface.
//
// Implementations:
//   TableView   — reads a *schema.Table column-major (zero-copy)
//   SubView     — filtered subset (indices into parent, zero-copy)
//   ConcatView  — virtual concatenation of two views
//
// Keys are column keys; names resolve too, so AI output that echoes the
// header text still lands on the right column.
// ============================================================================

// RecordView provides indexed access to a dataset.
// The engine calls Dimension/Measure in tight loops; keep implementations fast.
type RecordView interface {
	Len() int
	Dimension(index int, key string) string        // "" when missing
	Measure(index int, key string) (float64, bool) // false when missing or not numeric
	DimensionKeys() []string                       // groupable keys
	MeasureKeys() []string                         // numeric keys
	TimeKey() string                               // first temporal column, "" if none
	Label(key string) string                       // display label for a key
}

// ============================================================================
// TABLE VIEW — wraps *schema.Table
// ============================================================================

// TableView is a RecordView over a canonical table.
type TableView struct {
	table   *schema.Table
	index   map[string]int
	dimKeys []string
	mesKeys []string
	timeKey string
}

// NewTableView creates a RecordView from a canonical table.
func NewTableView(t *schema.Table) *TableView {
	v := &TableView{table: t, index: make(map[string]int, 2*t.Width())}
	for i := range t.Columns {
		c := &t.Columns[i]
		// names first so a key never shadows a real header
		if _, ok := v.index[c.Name]; !ok {
			v.index[c.Name] = i
		}
	}
	for i := range t.Columns {
		c := &t.Columns[i]
		if _, ok := v.index[c.Key]; !ok {
			v.index[c.Key] = i
		}
		if c.Type == schema.TypeNumeric {
			v.mesKeys = append(v.mesKeys, c.Key)
			if c.Role == schema.RoleDimension {
				v.dimKeys = append(v.dimKeys, c.Key)
			}
			continue
		}
		v.dimKeys = append(v.dimKeys, c.Key)
		if v.timeKey == "" && c.Profile.Temporal {
			v.timeKey = c.Key
		}
	}
	return v
}

// Table returns the underlying table.
func (v *TableView) Table() *schema.Table { return v.table }

func (v *TableView) column(key string) *schema.Column {
	if i, ok := v.index[key]; ok {
		return &v.table.Columns[i]
	}
	if i := v.table.Index(key); i >= 0 {
		return &v.table.Columns[i]
	}
	return nil
}

func (v *TableView) Len() int { return v.table.Rows() }

func (v *TableView) Dimension(i int, key string) string {
	c := v.column(key)
	if c == nil || i < 0 || i >= len(c.Cells) {
		return ""
	}
	return c.Format(i)
}

func (v *TableView) Measure(i int, key string) (float64, bool) {
	c := v.column(key)
	if c == nil || c.Type != schema.TypeNumeric || i < 0 || i >= len(c.Cells) {
		return 0, false
	}
	cell := c.Cells[i]
	if cell.Missing {
		return 0, false
	}
	return cell.Num, true
}

func (v *TableView) DimensionKeys() []string { return v.dimKeys }
func (v *TableView) MeasureKeys() []string   { return v.mesKeys }
func (v *TableView) TimeKey() string         { return v.timeKey }

// Unit returns the unit recorded for a numeric column, "" if none.
func (v *TableView) Unit(key string) string {
	if c := v.column(key); c != nil {
		return c.Unit
	}
	return ""
}

func (v *TableView) Label(key string) string {
	if c := v.column(key); c != nil {
		return c.Label()
	}
	return LabelForDimension(key)
}

// ============================================================================
// SUB VIEW — filtered subset (zero-copy)
// ============================================================================

// SubView is a filtered subset of a parent RecordView.
// Holds indices into the parent, no data copy.
type SubView struct {
	parent  RecordView
	indices []int
}

func newSubView(parent RecordView, indices []int) RecordView {
	return &SubView{parent: parent, indices: indices}
}

func (v *SubView) Len() int { return len(v.indices) }

func (v *SubView) Dimension(i int, key string) string {
	if i < 0 || i >= len(v.indices) {
		return ""
	}
	return v.parent.Dimension(v.indices[i], key)
}

func (v *SubView) Measure(i int, key string) (float64, bool) {
	if i < 0 || i >= len(v.indices) {
		return 0, false
	}
	return v.parent.Measure(v.indices[i], key)
}

func (v *SubView) DimensionKeys() []string { return v.parent.DimensionKeys() }
func (v *SubView) MeasureKeys() []string   { return v.parent.MeasureKeys() }
func (v *SubView) TimeKey() string         { return v.parent.TimeKey() }
func (v *SubView) Label(key string) string { return v.parent.Label(key) }

// ============================================================================
// CONCAT VIEW — virtual concatenation of two views
// ============================================================================

// ConcatView logically concatenates two RecordViews.
// Used for ratio period derivation without data copy.
type ConcatView struct {
	a, b RecordView
}

func newConcatView(a, b RecordView) RecordView {
	return &ConcatView{a: a, b: b}
}

func (v *ConcatView) Len() int { return v.a.Len() + v.b.Len() }

func (v *ConcatView) Dimension(i int, key string) string {
	if i < v.a.Len() {
		return v.a.Dimension(i, key)
	}
	return v.b.Dimension(i-v.a.Len(), key)
}

func (v *ConcatView) Measure(i int, key string) (float64, bool) {
	if i < v.a.Len() {
		return v.a.Measure(i, key)
	}
	return v.b.Measure(i-v.a.Len(), key)
}

func (v *ConcatView) DimensionKeys() []string { return v.a.DimensionKeys() }
func (v *ConcatView) MeasureKeys() []string   { return v.a.MeasureKeys() }
func (v *ConcatView) TimeKey() string         { return v.a.TimeKey() }
func (v *ConcatView) Label(key string) string { return v.a.Label(key) }
