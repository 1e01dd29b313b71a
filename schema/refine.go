package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spektr-org/vizon/ai"
)

// ============================================================================
// SMART REFINE — AI-assisted column descriptions (one call per table)
// ============================================================================
//
// After Normalize has typed and profiled the table, Refine optionally sends
// column metadata to the model for semantic enrichment. The assistant uses
// the result to describe the table in its prompts.
//
// What the model sees:
//   - Column names, types, roles, up to 5 sample values, unique counts
//   - Row count
//   - Detected hierarchies, currency and temporal flags
//
// What the model never sees:
//   - Row data beyond the samples
//
// What comes back:
//   - Dataset name + description
//   - Display names, descriptions, units, sort hints per column
//   - Hierarchy suggestions the heuristics missed
//
// Types, roles, keys and cells are never changed.
// ============================================================================

// Refine returns an enriched copy of t. On failure it returns t unchanged
// together with the error, so callers can treat refinement as best-effort.
func Refine(ctx context.Context, model ai.Model, t *Table, logger *zap.Logger) (*Table, error) {
	if t == nil {
		return nil, errors.New("refine: table is nil")
	}
	if model == nil {
		return t, errors.New("refine: no model configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	payload := buildRefinePayload(t)
	prompt := buildRefinePrompt(payload)

	logger.Debug("smart refine request",
		zap.String("source", t.Source),
		zap.Int("columns", len(payload.Columns)),
		zap.Int("prompt_bytes", len(prompt)))

	resp, err := model.Generate(ctx, ai.Request{Parts: []ai.Part{ai.Text(prompt)}, JSON: true})
	if err != nil {
		logger.Warn("smart refine call failed, keeping heuristics", zap.Error(err))
		return t, fmt.Errorf("refine: %w", err)
	}

	enrichment, err := parseRefineResponse(resp.Text)
	if err != nil {
		logger.Warn("smart refine parse failed, keeping heuristics", zap.Error(err))
		return t, fmt.Errorf("refine: %w", err)
	}

	result := applyEnrichments(t, enrichment)
	logger.Info("smart refine applied",
		zap.String("source", t.Source),
		zap.String("name", result.Name),
		zap.Int("enriched", len(enrichment.Enrichments)))
	return result, nil
}

// ============================================================================
// PAYLOAD BUILDER — What the model sees
// ============================================================================

type refinePayload struct {
	Columns  []refineColumn `json:"columns"`
	RowCount int            `json:"rowCount"`
	Detected refineDetected `json:"detected"`
}

type refineColumn struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Role           string   `json:"role"`
	Samples        []string `json:"samples"`
	Unique         int      `json:"unique"`
	Missing        int      `json:"missing,omitempty"`
	IsTemporal     bool     `json:"isTemporal,omitempty"`
	IsCurrencyCode bool     `json:"isCurrencyCode,omitempty"`
	Parent         string   `json:"parent,omitempty"`
}

type refineDetected struct {
	HasCurrency bool     `json:"hasCurrency"`
	HasTemporal bool     `json:"hasTemporal"`
	Hierarchies []string `json:"hierarchies,omitempty"` // "child → parent"
}

func buildRefinePayload(t *Table) refinePayload {
	p := refinePayload{RowCount: t.Rows(), Columns: make([]refineColumn, 0, len(t.Columns))}
	for _, c := range t.Columns {
		p.Columns = append(p.Columns, refineColumn{
			Name:           c.Name,
			Type:           string(c.Type),
			Role:           string(c.Role),
			Samples:        limitSamples(c.Profile.Samples, 5),
			Unique:         c.Profile.Unique,
			Missing:        c.Profile.Missing,
			IsTemporal:     c.Profile.Temporal,
			IsCurrencyCode: c.Profile.CurrencyCode,
			Parent:         c.Profile.Parent,
		})
		if c.Profile.CurrencyCode {
			p.Detected.HasCurrency = true
		}
		if c.Profile.Temporal {
			p.Detected.HasTemporal = true
		}
		if c.Profile.Parent != "" {
			p.Detected.Hierarchies = append(p.Detected.Hierarchies,
				fmt.Sprintf("%s → %s", c.Name, c.Profile.Parent))
		}
	}
	return p
}

// ============================================================================
// PROMPT BUILDER
// ============================================================================

func buildRefinePrompt(payload refinePayload) string {
	payloadJSON, _ := json.MarshalIndent(payload, "", "  ")

	return fmt.Sprintf(`You are a data analyst inspecting a dataset's structure. Based on the column metadata below, provide semantic enrichments.

COLUMN METADATA:
%s

INSTRUCTIONS:
1. Suggest a concise, descriptive name for this dataset (2-5 words)
2. Write a one-line description of what this dataset contains
3. For each column (use the exact column name), provide:
   - displayName: Human-friendly label
   - description: What this column represents in the domain
   - unit: For numeric columns only — one of: "currency", "hours", "points", "percent", "units", or ""
   - sortHint: For ordinal columns — natural ordering (e.g., "P1 > P2 > P3", "To Do > In Progress > Done")
4. Suggest hierarchies the heuristics may have missed (parent → child column names)

Respond with ONLY valid JSON:
{
  "datasetName": "...",
  "datasetDescription": "...",
  "enrichments": [
    {"name": "column name", "displayName": "...", "description": "...", "unit": "", "sortHint": ""}
  ],
  "suggestedHierarchies": [
    {"parent": "parent column", "child": "child column", "reason": "..."}
  ]
}`, string(payloadJSON))
}

// ============================================================================
// RESPONSE
// ============================================================================

type refineEnrichment struct {
	DatasetName          string                `json:"datasetName"`
	DatasetDescription   string                `json:"datasetDescription"`
	Enrichments          []columnEnrichment    `json:"enrichments"`
	SuggestedHierarchies []hierarchySuggestion `json:"suggestedHierarchies"`
}

type columnEnrichment struct {
	Name        string `json:"name"`
	Key         string `json:"key"` // some models echo keys instead of names
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
	SortHint    string `json:"sortHint"`
}

type hierarchySuggestion struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
	Reason string `json:"reason"`
}

func parseRefineResponse(response string) (*refineEnrichment, error) {
	response = ai.StripCodeFence(response)

	var result refineEnrichment
	if err := json.Unmarshal([]byte(response), &result); err != nil {
		return nil, fmt.Errorf("%w: refine response: %v (response: %.300s)", ai.ErrMalformed, err, response)
	}
	return &result, nil
}

// ============================================================================
// APPLY ENRICHMENTS
// ============================================================================

// applyEnrichments merges suggestions into a copy of t.
// Rules:
//   - non-empty suggestions replace generated display names and descriptions
//   - units only apply to numeric columns, and only known units
//   - suggested hierarchies apply only where none was detected, and only
//     between existing non-numeric columns
func applyEnrichments(t *Table, e *refineEnrichment) *Table {
	result := t.Clone()

	if e.DatasetName != "" {
		result.Name = e.DatasetName
	}
	if e.DatasetDescription != "" {
		result.Description = e.DatasetDescription
	}

	for _, ce := range e.Enrichments {
		name := ce.Name
		if name == "" {
			name = ce.Key
		}
		i := result.Index(name)
		if i < 0 {
			continue
		}
		c := &result.Columns[i]
		if ce.DisplayName != "" {
			c.DisplayName = ce.DisplayName
		}
		if ce.Description != "" {
			c.Description = ce.Description
		}
		if ce.SortHint != "" {
			c.SortHint = ce.SortHint
		}
		if c.Type == TypeNumeric && isValidUnit(ce.Unit) {
			c.Unit = strings.ToLower(ce.Unit)
		}
	}

	for _, h := range e.SuggestedHierarchies {
		ci, pi := result.Index(h.Child), result.Index(h.Parent)
		if ci < 0 || pi < 0 || ci == pi {
			continue
		}
		child, parent := &result.Columns[ci], &result.Columns[pi]
		if child.Type == TypeNumeric || parent.Type == TypeNumeric || child.Profile.Parent != "" {
			continue
		}
		child.Profile.Parent = parent.Name
	}

	return result
}

func limitSamples(vals []string, max int) []string {
	if len(vals) <= max {
		return vals
	}
	return vals[:max]
}

func isValidUnit(unit string) bool {
	switch strings.ToLower(unit) {
	case "currency", "hours", "points", "percent", "units":
		return true
	}
	return false
}
