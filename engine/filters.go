package engine

import (
	"strings"
)

// ============================================================================
// FILTERS — Column-Value Filtering via RecordView
// ============================================================================
// Single-pass filter: checks ALL column constraints per row in one loop.
// Returns a SubView (index list into parent), zero data copy.
// ============================================================================

// ApplyFilters returns a view of rows matching all filters.
// Columns are AND-combined; values within a column are OR-combined and
// compared case-insensitively. MissingLabel matches missing cells.
// Empty filter = no restriction (returns original view).
func ApplyFilters(view RecordView, filters Filters) RecordView {
	if filters.IsEmpty() {
		return view
	}

	// Pre-build lowercase lookup sets, in key order for a stable loop
	type constraint struct {
		key string
		set map[string]bool
	}
	var constraints []constraint
	for _, dim := range sortedKeys(filters.Dimensions) {
		if allowed := filters.Dimensions[dim]; len(allowed) > 0 {
			constraints = append(constraints, constraint{dim, toLowerSet(allowed)})
		}
	}

	n := view.Len()
	indices := make([]int, 0, n)
	for i := 0; i < n; i++ {
		pass := true
		for _, c := range constraints {
			val := view.Dimension(i, c.key)
			if val == "" {
				val = MissingLabel
			}
			if !c.set[strings.ToLower(val)] {
				pass = false
				break
			}
		}
		if pass {
			indices = append(indices, i)
		}
	}

	return newSubView(view, indices)
}

// toLowerSet converts a string slice to a lowercase lookup set.
func toLowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[strings.ToLower(strings.TrimSpace(item))] = true
	}
	return set
}
