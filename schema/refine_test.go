package schema

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/vizon/ai"
)

// ============================================================================
// SMART REFINE TESTS
// ============================================================================

func mockRefineResponse() string {
	return "```json\n" + `{
  "datasetName": "Jira Project Tracker",
  "datasetDescription": "Issue tracking data from a Jira project board",
  "enrichments": [
    {"name": "Status", "description": "Issue workflow state", "sortHint": "To Do > In Progress > In Review > Done"},
    {"name": "Priority", "description": "Issue severity level", "sortHint": "P1 - Critical > P2 - High > P3 - Medium > P4 - Low"},
    {"key": "story_points", "displayName": "Story Points", "description": "Effort estimation", "unit": "Points"},
    {"name": "Assignee", "unit": "currency"},
    {"name": "Nonexistent", "description": "ignored"}
  ],
  "suggestedHierarchies": [
    {"parent": "Component", "child": "Assignee", "reason": "teams own components"},
    {"parent": "Status", "child": "Story Points", "reason": "numeric children are ignored"}
  ]
}` + "\n```"
}

func staticModel(text string, err error) (ai.Model, *ai.Request) {
	var seen ai.Request
	return ai.ModelFunc(func(ctx context.Context, req ai.Request) (*ai.Response, error) {
		seen = req
		if err != nil {
			return nil, err
		}
		return &ai.Response{Text: text}, nil
	}), &seen
}

func TestRefineAppliesEnrichments(t *testing.T) {
	draft := fromCSV(t, "jira.csv", jiraCSV)
	model, req := staticModel(mockRefineResponse(), nil)

	refined, err := Refine(context.Background(), model, draft, nil)
	require.NoError(t, err)

	assert.True(t, req.JSON)
	assert.Equal(t, "Jira Project Tracker", refined.Name)
	assert.Equal(t, "Issue tracking data from a Jira project board", refined.Description)

	status := refined.Column("Status")
	assert.Equal(t, "Issue workflow state", status.Description)
	assert.Equal(t, "To Do > In Progress > In Review > Done", status.SortHint)

	points := refined.Column("Story Points")
	assert.Equal(t, "points", points.Unit)
	assert.Equal(t, "Effort estimation", points.Description)
	assert.Empty(t, points.Profile.Parent, "numeric columns never get a parent")

	assignee := refined.Column("Assignee")
	assert.Empty(t, assignee.Unit, "units only apply to numeric columns")
	assert.Equal(t, "Component", assignee.Profile.Parent)

	// roles, types and cells are untouched
	for i := range draft.Columns {
		assert.Equal(t, draft.Columns[i].Type, refined.Columns[i].Type)
		assert.Equal(t, draft.Columns[i].Role, refined.Columns[i].Role)
		assert.Equal(t, draft.Columns[i].Cells, refined.Columns[i].Cells)
	}
}

func TestRefineDoesNotMutateDraft(t *testing.T) {
	draft := fromCSV(t, "jira.csv", jiraCSV)
	before, err := json.Marshal(draft)
	require.NoError(t, err)

	model, _ := staticModel(mockRefineResponse(), nil)
	_, err = Refine(context.Background(), model, draft, nil)
	require.NoError(t, err)

	after, err := json.Marshal(draft)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRefineKeepsDetectedHierarchy(t *testing.T) {
	draft := fromCSV(t, "finance.csv", financeCSV)
	require.Equal(t, "Category", draft.Column("Field").Profile.Parent)

	resp := `{"suggestedHierarchies": [{"parent": "Location", "child": "Field"}]}`
	model, _ := staticModel(resp, nil)

	refined, err := Refine(context.Background(), model, draft, nil)
	require.NoError(t, err)
	assert.Equal(t, "Category", refined.Column("Field").Profile.Parent)
}

func TestRefinePayloadHasNoRowData(t *testing.T) {
	draft := fromCSV(t, "jira.csv", jiraCSV)
	payload := buildRefinePayload(draft)

	assert.Equal(t, 12, payload.RowCount)
	require.Len(t, payload.Columns, 12)
	for _, c := range payload.Columns {
		assert.LessOrEqual(t, len(c.Samples), 5, c.Name)
	}
	assert.True(t, payload.Detected.HasTemporal)

	prompt := buildRefinePrompt(payload)
	assert.True(t, strings.Contains(prompt, `"Story Points"`))
	assert.NotContains(t, prompt, "Update SSL certs", "unsampled row text must not leak")
}

func TestRefineFailuresReturnDraft(t *testing.T) {
	draft := fromCSV(t, "finance.csv", financeCSV)

	failing, _ := staticModel("", ai.ErrUnavailable)
	got, err := Refine(context.Background(), failing, draft, nil)
	assert.ErrorIs(t, err, ai.ErrUnavailable)
	assert.Same(t, draft, got)

	garbage, _ := staticModel("not json at all", nil)
	got, err = Refine(context.Background(), garbage, draft, nil)
	assert.ErrorIs(t, err, ai.ErrMalformed)
	assert.Same(t, draft, got)

	got, err = Refine(context.Background(), nil, draft, nil)
	assert.Error(t, err)
	assert.Same(t, draft, got)

	_, err = Refine(context.Background(), failing, nil, nil)
	assert.Error(t, err)
}

func TestIsValidUnit(t *testing.T) {
	for _, u := range []string{"currency", "Hours", "points", "percent", "units"} {
		assert.True(t, isValidUnit(u), u)
	}
	for _, u := range []string{"", "kg", "dollars"} {
		assert.False(t, isValidUnit(u), u)
	}
}
