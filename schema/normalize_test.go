package schema

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/vizon/extract"
)

// ============================================================================
// NORMALIZER TESTS
// ============================================================================

// Sample Jira CSV export
var jiraCSV = []byte(`Issue Key,Summary,Status,Priority,Issue Type,Assignee,Component,Sprint,Story Points,Time Spent Hours,Created,Resolved
PROJ-101,Login timeout on mobile,In Progress,P1 - Critical,Bug,alice@corp.com,Backend,Sprint 17,5,12.5,2026-01-15,
PROJ-102,Dashboard crash on Safari,To Do,P2 - High,Bug,bob@corp.com,Frontend,Sprint 17,3,0,2026-01-16,
PROJ-103,Add dark mode toggle,Done,P3 - Medium,Story,charlie@corp.com,Frontend,Sprint 16,8,16,2026-01-10,2026-01-20
PROJ-104,Update user docs,In Review,P4 - Low,Task,alice@corp.com,Documentation,Sprint 17,2,4,2026-01-18,
PROJ-105,Payment fails with expired card,In Progress,P1 - Critical,Bug,dave@corp.com,Backend,Sprint 17,8,20,2026-01-12,
PROJ-106,Optimize DB queries,Done,P2 - High,Task,eve@corp.com,Backend,Sprint 16,5,10,2026-01-08,2026-01-15
PROJ-107,Mobile push notifications,To Do,P2 - High,Story,frank@corp.com,Mobile,Sprint 18,13,0,2026-01-20,
PROJ-108,Fix memory leak in worker,In Progress,P1 - Critical,Bug,alice@corp.com,Infrastructure,Sprint 17,5,8,2026-01-14,
PROJ-109,Redesign settings page,Done,P3 - Medium,Story,bob@corp.com,Frontend,Sprint 15,8,14,2026-01-05,2026-01-12
PROJ-110,API rate limiting,Done,P2 - High,Story,charlie@corp.com,Backend,Sprint 16,5,9,2026-01-09,2026-01-18
PROJ-111,Add export to CSV,To Do,P3 - Medium,Story,dave@corp.com,Backend,Sprint 18,3,0,2026-01-22,
PROJ-112,Update SSL certs,Done,P1 - Critical,Task,eve@corp.com,Infrastructure,Sprint 16,1,2,2026-01-07,2026-01-07
`)

// Sample personal finance CSV
var financeCSV = []byte(`Month,Location,Category,Field,Currency,Amount
Jan-2026,Singapore,Income,Salary,SGD,8500.00
Jan-2026,Singapore,Expense,Rent,SGD,2200.00
Jan-2026,Singapore,Expense,Groceries,SGD,450.00
Jan-2026,Singapore,Expense,Transport,SGD,120.00
Jan-2026,India,Income,Rental Income,INR,25000.00
Jan-2026,India,Expense,Property Tax,INR,5000.00
Feb-2026,Singapore,Income,Salary,SGD,8500.00
Feb-2026,Singapore,Expense,Rent,SGD,2200.00
Feb-2026,Singapore,Expense,Internet,SGD,49.90
Feb-2026,India,Transfer,ToIndia,INR,50000.00
`)

func fromCSV(t *testing.T, name string, data []byte) *Table {
	t.Helper()
	raw, err := extract.NewTabular(nil).Extract(context.Background(), extract.Input{Name: name, Data: data})
	require.NoError(t, err)
	table, err := Normalize(raw)
	require.NoError(t, err)
	return table
}

func column(raw ...any) *extract.RawRecordSet {
	rs := &extract.RawRecordSet{Source: "test", Header: []string{"v"}}
	for _, v := range raw {
		rs.Rows = append(rs.Rows, []any{v})
	}
	return rs
}

// ── Core properties ────────────────────────────────────────

func TestEveryColumnHasRowCountCells(t *testing.T) {
	raw := &extract.RawRecordSet{
		Header: []string{"a", "b"},
		Rows: [][]any{
			{"1"},
			{"2", "x", "overflow"},
			{},
		},
	}
	table, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, 3, table.Rows())
	assert.Equal(t, 3, table.Width(), "ragged rows extend the column set")
	for _, c := range table.Columns {
		assert.Len(t, c.Cells, table.Rows(), c.Name)
	}
	assert.Equal(t, []string{"a", "b", "column_3"}, table.Names())
	assert.True(t, table.Columns[2].Cells[0].Missing, "absent cells are missing")
}

func TestNormalizeIsDeterministic(t *testing.T) {
	first, err := json.Marshal(fromCSV(t, "jira.csv", jiraCSV))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := json.Marshal(fromCSV(t, "jira.csv", jiraCSV))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again), "run %d", i)
	}
}

func TestZeroRowsIsEmptyInputError(t *testing.T) {
	_, err := Normalize(&extract.RawRecordSet{Source: "blank.csv", Header: []string{"a", "b"}})
	require.Error(t, err)

	var empty *EmptyInputError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, "blank.csv", empty.Source)
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Contains(t, err.Error(), "blank.csv")
}

func TestZeroColumnsIsEmptyInputError(t *testing.T) {
	_, err := Normalize(&extract.RawRecordSet{Source: "photo.png", Rows: [][]any{{}, {}}})
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = Normalize(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestMixedColumnIsText(t *testing.T) {
	table, err := Normalize(column("12", "7", "abc"))
	require.NoError(t, err)

	c := table.Columns[0]
	assert.Equal(t, TypeText, c.Type)
	assert.Equal(t, []string{"12", "7", "abc"}, []string{c.Cells[0].Raw, c.Cells[1].Raw, c.Cells[2].Raw},
		"original strings are kept")
}

func TestNumericColumnKeepsMissingMarker(t *testing.T) {
	table, err := Normalize(column("12", "7", ""))
	require.NoError(t, err)

	c := table.Columns[0]
	assert.Equal(t, TypeNumeric, c.Type)
	assert.Equal(t, 12.0, c.Cells[0].Num)
	assert.Equal(t, 7.0, c.Cells[1].Num)
	assert.True(t, c.Cells[2].Missing, "blank is missing, not zero")
	assert.Nil(t, c.Value(2))
	assert.Equal(t, 1, c.Profile.Missing)
}

// ── Naming ─────────────────────────────────────────────────

func TestColumnNaming(t *testing.T) {
	cases := []struct {
		name   string
		header []string
		width  int
		want   []string
	}{
		{"no header", nil, 3, []string{"column_1", "column_2", "column_3"}},
		{"blank cells", []string{"Region", " ", "Sales"}, 3, []string{"Region", "column_2", "Sales"}},
		{"duplicates", []string{"a", "a", "a"}, 3, []string{"a", "a.1", "a.2"}},
		{"duplicate of positional", []string{"column_2", ""}, 2, []string{"column_2", "column_2.1"}},
		{"short header", []string{"x"}, 2, []string{"x", "column_2"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, columnNames(tc.header, tc.width))
		})
	}
}

func TestColumnKeysAreUnique(t *testing.T) {
	keys := columnKeys([]string{"Sales Amount", "sales_amount", "!!!"})
	assert.Equal(t, []string{"sales_amount", "sales_amount_2", "column_3"}, keys)
}

func TestSnakeCase(t *testing.T) {
	cases := map[string]string{
		"Issue Key":          "issue_key",
		"storyPoints":        "story_points",
		"Time Spent (hours)": "time_spent_hours",
		"  A--B ":            "a_b",
		"Revenue2024":        "revenue2024",
		"column_1":           "column_1",
	}
	for in, want := range cases {
		assert.Equal(t, want, toSnakeCase(in), in)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Story Points", toDisplayName("story_points"))
	assert.Equal(t, "Assignee", toDisplayName("assignee"))
	assert.Equal(t, "Already Nice", toDisplayName("Already Nice"))
}

// ── Missing values and typing ──────────────────────────────

func TestNullTokensAreMissing(t *testing.T) {
	table, err := Normalize(column("1", nil, "null", "N/A", "NaN", "None", "  ", "NA", "2"))
	require.NoError(t, err)

	c := table.Columns[0]
	assert.Equal(t, TypeNumeric, c.Type)
	assert.Equal(t, 7, c.Profile.Missing)
	assert.False(t, c.Cells[0].Missing)
	assert.False(t, c.Cells[8].Missing)
}

func TestCellRawIsTrimmedSourceText(t *testing.T) {
	table, err := Normalize(column(" North ", "North", "\tSouth"))
	require.NoError(t, err)

	c := table.Columns[0]
	assert.Equal(t, "North", c.Cells[0].Raw)
	assert.Equal(t, "South", c.Cells[2].Raw)
	assert.Equal(t, 2, c.Profile.Unique, "padding does not split a category")
}

func TestAllMissingColumnIsText(t *testing.T) {
	table, err := Normalize(column("", nil, "n/a"))
	require.NoError(t, err)
	c := table.Columns[0]
	assert.Equal(t, TypeText, c.Type)
	assert.Equal(t, RoleIdentifier, c.Role)
	assert.Empty(t, table.GroupingColumns())
}

func TestJSONValuesFromModels(t *testing.T) {
	raw := &extract.RawRecordSet{
		Header: []string{"qty", "price", "paid"},
		Rows: [][]any{
			{json.Number("2"), 3.5, true},
			{json.Number("1"), nil, false},
		},
	}
	table, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, TypeNumeric, table.Column("qty").Type)
	assert.Equal(t, TypeNumeric, table.Column("price").Type)
	assert.Equal(t, TypeText, table.Column("paid").Type, "booleans are text")
	assert.Equal(t, "true", table.Column("paid").Cells[0].Raw)
}

func TestDateColumn(t *testing.T) {
	table, err := Normalize(column("2026-01-15", "", "2026-02-01"))
	require.NoError(t, err)

	c := table.Columns[0]
	assert.Equal(t, TypeDate, c.Type)
	assert.True(t, c.Profile.Temporal)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), c.Cells[2].Time)
	assert.Equal(t, "2026-02-01", c.Format(2))
	assert.Equal(t, "", c.Format(1))
}

func TestDecimalCommaColumnStaysText(t *testing.T) {
	table := fromCSV(t, "prices.csv", []byte("item;price\napple;1,5\npear;2,25\n"))
	price := table.Column("price")
	require.NotNil(t, price)
	assert.Equal(t, TypeText, price.Type)
	assert.Equal(t, "1,5", price.Cells[0].Raw)
	assert.Equal(t, "2,25", price.Cells[1].Raw)
}

func TestParseNumber(t *testing.T) {
	ok := []struct {
		in   string
		want float64
	}{
		{"1,234.56", 1234.56},
		{"$12", 12},
		{"-$12.50", -12.5},
		{"$-12.50", -12.5},
		{"€ 7", 7},
		{"₹1,00,000", 100000},
		{"45%", 45},
		{"1e3", 1000},
		{"+3", 3},
		{".5", 0.5},
	}
	for _, tc := range ok {
		got, parsed := ParseNumber(tc.in)
		assert.True(t, parsed, tc.in)
		assert.InDelta(t, tc.want, got, 1e-9, tc.in)
	}

	for _, in := range []string{"", "-", "abc", "NaN", "Inf", "-infinity", "12abc", "$", "1,5", "1,2,3", "12,34.5", ",123"} {
		_, parsed := ParseNumber(in)
		assert.False(t, parsed, in)
	}
}

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2026-01-15", "01/15/2026", "Jan 2, 2026", "2 Jan 2026", "Jan-2026", "January 2026", "2026-01-15T10:00:00Z"} {
		_, ok := ParseDate(in)
		assert.True(t, ok, in)
	}
	for _, in := range []string{"13/45/2026", "Sprint 17", "2026"} {
		_, ok := ParseDate(in)
		assert.False(t, ok, in)
	}
}

// ── Profiling ──────────────────────────────────────────────

func TestProfileJira(t *testing.T) {
	table := fromCSV(t, "jira.csv", jiraCSV)

	roles := map[string]Role{}
	types := map[string]ColumnType{}
	for _, c := range table.Columns {
		roles[c.Name] = c.Role
		types[c.Name] = c.Type
	}

	wantRoles := map[string]Role{
		"Issue Key":        RoleIdentifier,
		"Summary":          RoleIdentifier,
		"Status":           RoleDimension,
		"Priority":         RoleDimension,
		"Issue Type":       RoleDimension,
		"Assignee":         RoleDimension,
		"Component":        RoleDimension,
		"Sprint":           RoleDimension,
		"Story Points":     RoleMeasure,
		"Time Spent Hours": RoleMeasure,
		"Created":          RoleDimension,
		"Resolved":         RoleDimension,
	}
	if diff := cmp.Diff(wantRoles, roles); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, TypeNumeric, types["Story Points"])
	assert.Equal(t, TypeDate, types["Created"])
	assert.Equal(t, TypeDate, types["Resolved"])
	assert.Equal(t, 7, table.Column("Resolved").Profile.Missing)
	assert.Equal(t, "story_points", table.Column("Story Points").Key)
	assert.Equal(t, table.Column("Story Points"), table.Column("story_points"), "lookup by key")
}

func TestProfileFinance(t *testing.T) {
	table := fromCSV(t, "finance.csv", financeCSV)

	assert.Equal(t, TypeDate, table.Column("Month").Type)
	assert.True(t, table.Column("Currency").Profile.CurrencyCode)
	assert.Equal(t, "low", table.Column("Field").Profile.Cardinality)
	assert.Equal(t, "Category", table.Column("Field").Profile.Parent)
	assert.Empty(t, table.Column("Category").Profile.Parent)

	amount := table.Column("Amount")
	assert.Equal(t, RoleMeasure, amount.Role)
	assert.True(t, amount.Profile.HasDecimals)

	var names []string
	for _, c := range table.NumericColumns() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Amount"}, names)
	assert.Len(t, table.CategoricalColumns(), 5)
}

func TestTemporalPatterns(t *testing.T) {
	cases := []struct {
		samples []string
		want    string
	}{
		{[]string{"Q1-2026", "Q2-2026", "Q3-2026"}, "QN-yyyy"},
		{[]string{"2026-01", "2026-02"}, "yyyy-MM"},
		{[]string{"Jan", "Feb", "March"}, "MMM"},
		{[]string{"FY24", "FY25"}, "FYyy"},
	}
	for _, tc := range cases {
		ok, format := detectTemporalPattern(tc.samples)
		assert.True(t, ok, tc.samples)
		assert.Equal(t, tc.want, format)
	}

	ok, _ := detectTemporalPattern([]string{"Sprint 15", "Sprint 16"})
	assert.False(t, ok)
}

func TestCurrencyCodeDetection(t *testing.T) {
	assert.True(t, detectCurrencyCodes([]string{"USD", "EUR", "SGD"}))
	assert.False(t, detectCurrencyCodes([]string{"Singapore", "India"}))
	assert.False(t, detectCurrencyCodes(nil))
}

// ── JSON ───────────────────────────────────────────────────

func TestTableJSON(t *testing.T) {
	table, err := Normalize(&extract.RawRecordSet{
		Source: "inline",
		Header: []string{"item", "amount"},
		Rows:   [][]any{{"Pen", "3.50"}, {"Ink", ""}},
	})
	require.NoError(t, err)

	b, err := json.Marshal(table)
	require.NoError(t, err)

	var decoded struct {
		Source  string `json:"source"`
		Rows    int    `json:"rows"`
		Columns []struct {
			Name   string `json:"name"`
			Type   string `json:"type"`
			Values []any  `json:"values"`
		} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "inline", decoded.Source)
	assert.Equal(t, 2, decoded.Rows)
	assert.Equal(t, []any{"Pen", "Ink"}, decoded.Columns[0].Values)
	assert.Equal(t, []any{3.5, nil}, decoded.Columns[1].Values)
}

func TestEmptyInputErrorMessage(t *testing.T) {
	err := error(&EmptyInputError{Source: "https://example.com", Reason: "no rows"})
	assert.True(t, errors.Is(err, ErrEmptyInput))
	assert.Equal(t, "https://example.com: no data to normalize (no rows)", err.Error())
}
