package reconcile

import "github.com/mit-27/panora-sync/internal/fieldmapping"

// SparseMerge overlays incoming onto stored and returns a new map.
// Empty incoming values never overwrite. Nested objects merge recursively and
// lists merge by position, appending extra incoming items. Nothing is removed.
func SparseMerge(stored, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(stored)+len(incoming))
	for k, v := range stored {
		out[k] = v
	}
	for k, v := range incoming {
		if fieldmapping.IsEmpty(v) {
			continue
		}
		out[k] = mergeValue(out[k], v)
	}
	return out
}

func mergeValue(stored, incoming any) any {
	switch in := incoming.(type) {
	case map[string]any:
		if s, ok := stored.(map[string]any); ok {
			return SparseMerge(s, in)
		}
		return SparseMerge(nil, in)
	case []any:
		if s, ok := stored.([]any); ok {
			return mergeList(s, in)
		}
	}
	return incoming
}

func mergeList(stored, incoming []any) []any {
	out := make([]any, max(len(stored), len(incoming)))
	copy(out, stored)
	for i, v := range incoming {
		if i >= len(stored) {
			out[i] = v
			continue
		}
		if fieldmapping.IsEmpty(v) {
			continue
		}
		out[i] = mergeValue(stored[i], v)
	}
	return out
}
