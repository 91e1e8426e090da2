package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSparseMerge(t *testing.T) {
	stored := map[string]any{
		"a":      1.0,
		"b":      2.0,
		"nested": map[string]any{"x": "keep", "y": "old"},
		"list":   []any{"one", "two"},
	}
	incoming := map[string]any{
		"a":      3.0,
		"c":      "",
		"nested": map[string]any{"y": "new"},
		"list":   []any{"", "TWO", "three"},
	}

	merged := SparseMerge(stored, incoming)

	assert.Equal(t, map[string]any{
		"a":      3.0,
		"b":      2.0,
		"nested": map[string]any{"x": "keep", "y": "new"},
		"list":   []any{"one", "TWO", "three"},
	}, merged)
	assert.Equal(t, 1.0, stored["a"])
}

func TestSparseMergeIntoEmpty(t *testing.T) {
	merged := SparseMerge(nil, map[string]any{"a": "x", "b": nil})
	assert.Equal(t, map[string]any{"a": "x"}, merged)
}
