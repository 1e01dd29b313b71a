package schema

// ============================================================================
// DESCRIPTOR — The shape of a table, without its rows
// ============================================================================
// Derived from a normalized Table. The assistant builds its query prompt
// from it; the CLI and the HTTP API print it so users can see what was
// detected before asking anything.
// ============================================================================

// Descriptor describes the complete shape of a dataset.
type Descriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
	Rows        int    `json:"rows"`

	Dimensions []DimensionMeta `json:"dimensions"`
	Measures   []MeasureMeta   `json:"measures"`

	// Columns left out of Dimensions and Measures
	SkippedColumns []SkippedColumn `json:"skippedColumns,omitempty"`
}

// DimensionMeta describes a field used for grouping/filtering.
type DimensionMeta struct {
	Key             string   `json:"key"`
	Column          string   `json:"column"`
	DisplayName     string   `json:"displayName"`
	Description     string   `json:"description,omitempty"`
	Type            string   `json:"type"`
	SampleValues    []string `json:"sampleValues"`
	Parent          string   `json:"parent,omitempty"` // parent dimension key for hierarchies
	IsTemporal      bool     `json:"isTemporal,omitempty"`
	TemporalFormat  string   `json:"temporalFormat,omitempty"`
	IsCurrencyCode  bool     `json:"isCurrencyCode,omitempty"`
	CardinalityHint string   `json:"cardinalityHint,omitempty"` // "low", "medium", "high"
	SortHint        string   `json:"sortHint,omitempty"`
	Missing         int      `json:"missing,omitempty"`
}

// MeasureMeta describes a numeric field used for aggregation.
type MeasureMeta struct {
	Key          string   `json:"key"`
	Column       string   `json:"column"`
	DisplayName  string   `json:"displayName"`
	Description  string   `json:"description,omitempty"`
	Unit         string   `json:"unit,omitempty"`
	Aggregations []string `json:"aggregations"`

	// Role is "measure" for real quantities; coded numbers ("dimension")
	// are listed under Dimensions as well, numeric IDs are "identifier".
	Role    string `json:"role"`
	Missing int    `json:"missing,omitempty"`
}

// SkippedColumn records why a column is neither dimension nor measure.
type SkippedColumn struct {
	Column string `json:"column"`
	Reason string `json:"reason"`
}

var measureAggregations = []string{"sum", "avg", "min", "max", "count"}

// Describe derives the Descriptor of t.
func Describe(t *Table) Descriptor {
	d := Descriptor{
		Name:        t.Name,
		Description: t.Description,
		Source:      t.Source,
		Rows:        t.Rows(),
		Dimensions:  []DimensionMeta{},
		Measures:    []MeasureMeta{},
	}
	if d.Name == "" {
		d.Name = t.Source
	}

	for i := range t.Columns {
		c := &t.Columns[i]
		if c.Type == TypeNumeric {
			d.Measures = append(d.Measures, MeasureMeta{
				Key:          c.Key,
				Column:       c.Name,
				DisplayName:  c.Label(),
				Description:  c.Description,
				Unit:         c.Unit,
				Aggregations: measureAggregations,
				Role:         string(c.Role),
				Missing:      c.Profile.Missing,
			})
			if c.Role == RoleDimension {
				d.Dimensions = append(d.Dimensions, dimensionMeta(c))
			}
			continue
		}
		if c.Role == RoleIdentifier {
			reason := "unique per row"
			if c.Profile.Missing == t.Rows() {
				reason = "all values missing"
			}
			d.SkippedColumns = append(d.SkippedColumns, SkippedColumn{Column: c.Name, Reason: reason})
			continue
		}
		d.Dimensions = append(d.Dimensions, dimensionMeta(c))
	}
	return d
}

func dimensionMeta(c *Column) DimensionMeta {
	return DimensionMeta{
		Key:             c.Key,
		Column:          c.Name,
		DisplayName:     c.Label(),
		Description:     c.Description,
		Type:            string(c.Type),
		SampleValues:    c.Profile.Samples,
		Parent:          c.Profile.Parent,
		IsTemporal:      c.Profile.Temporal,
		TemporalFormat:  c.Profile.TemporalFormat,
		IsCurrencyCode:  c.Profile.CurrencyCode,
		CardinalityHint: c.Profile.Cardinality,
		SortHint:        c.SortHint,
		Missing:         c.Profile.Missing,
	}
}

// DefaultMeasure returns the first measure-role key, then any numeric
// column's key, or "" when the table has no numeric column.
func (d Descriptor) DefaultMeasure() string {
	for _, m := range d.Measures {
		if m.Role == string(RoleMeasure) {
			return m.Key
		}
	}
	if len(d.Measures) > 0 {
		return d.Measures[0].Key
	}
	return ""
}

// DimensionKeys returns all dimension keys.
func (d Descriptor) DimensionKeys() []string {
	keys := make([]string, len(d.Dimensions))
	for i, dim := range d.Dimensions {
		keys[i] = dim.Key
	}
	return keys
}

// MeasureKeys returns all measure keys.
func (d Descriptor) MeasureKeys() []string {
	keys := make([]string, len(d.Measures))
	for i, m := range d.Measures {
		keys[i] = m.Key
	}
	return keys
}

// Dimension returns the dimension with key, or nil.
func (d Descriptor) Dimension(key string) *DimensionMeta {
	for i := range d.Dimensions {
		if d.Dimensions[i].Key == key {
			return &d.Dimensions[i]
		}
	}
	return nil
}
