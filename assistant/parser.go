package assistant

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/spektr-org/vizon/ai"
	"github.com/spektr-org/vizon/engine"
)

// ============================================================================
// RESPONSE PARSER — Extracts QuerySpec + Interpretation from model JSON
// ============================================================================

// Interpretation is the human-readable preview of a translated query.
type Interpretation struct {
	VisualType  string            `json:"visualType"`
	Summary     string            `json:"summary"`
	Details     []InterpretDetail `json:"details"`
	Suggestions []Suggestion      `json:"suggestions"`
	Confidence  float64           `json:"confidence"`
}

// InterpretDetail is one label/value line of an Interpretation.
type InterpretDetail struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Suggestion is a follow-up refinement the user can apply.
type Suggestion struct {
	Label    string `json:"label"`
	Modifier string `json:"modifier"`
}

// Translation is the parsed model answer for a Visualize call.
type Translation struct {
	QuerySpec      engine.QuerySpec `json:"querySpec"`
	Interpretation Interpretation   `json:"interpretation"`
}

// parseResponse extracts a Translation from the model's JSON answer.
func parseResponse(response string, logger *zap.Logger) (*Translation, error) {
	response = ai.StripCodeFence(response)

	var result Translation
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("parse translator response: %w (response: %.200s)", err, response)
	}

	if result.QuerySpec.Intent == "" {
		result.QuerySpec.Intent = "text"
	}
	if result.QuerySpec.Aggregation == "" {
		result.QuerySpec.Aggregation = "sum"
	}
	if result.QuerySpec.Visualize == "" {
		result.QuerySpec.Visualize = result.QuerySpec.Intent
	}
	if result.QuerySpec.Confidence == 0 && result.Interpretation.Confidence > 0 {
		result.QuerySpec.Confidence = result.Interpretation.Confidence
	}

	result.QuerySpec = engine.NormalizeQuerySpec(result.QuerySpec, logger)
	return &result, nil
}

// parseFallbackInterpretation salvages an Interpretation when the full
// response does not parse.
func parseFallbackInterpretation(response string) Interpretation {
	response = ai.StripCodeFence(response)

	var wrapper struct {
		Interpretation Interpretation `json:"interpretation"`
	}
	if err := json.Unmarshal([]byte(response), &wrapper); err == nil && wrapper.Interpretation.Summary != "" {
		return wrapper.Interpretation
	}

	var direct Interpretation
	if err := json.Unmarshal([]byte(response), &direct); err == nil && direct.Summary != "" {
		return direct
	}

	return Interpretation{
		VisualType: "table",
		Summary:    "Showing the matching rows",
		Details:    []InterpretDetail{{Label: "Display", Value: "Data table"}},
		Confidence: 0.5,
	}
}

// fallbackSpec lists rows when the model's answer cannot be used.
func fallbackSpec() engine.QuerySpec {
	return engine.QuerySpec{
		Intent:      "table",
		Aggregation: "list",
		Visualize:   "table",
		Title:       "Query Results",
		Confidence:  0.5,
	}
}
