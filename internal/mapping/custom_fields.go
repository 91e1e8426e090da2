package mapping

import "github.com/mit-27/panora-sync/internal/unified"

// ExtractCustomFields copies src[remote_id] into the result under slug, for keys present in src.
// Returns nil when nothing was copied.
func ExtractCustomFields(src map[string]any, mappings []unified.CustomFieldMapping) map[string]any {
	if len(src) == 0 || len(mappings) == 0 {
		return nil
	}
	var out map[string]any
	for _, m := range mappings {
		if m.Slug == "" || m.RemoteID == "" {
			continue
		}
		value, ok := src[m.RemoteID]
		if !ok {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(mappings))
		}
		out[m.Slug] = value
	}
	return out
}

// ApplyCustomFields writes fieldMappings[slug] into dst under the provider remote_id
func ApplyCustomFields(dst map[string]any, fieldMappings map[string]any, mappings []unified.CustomFieldMapping) {
	if dst == nil || len(fieldMappings) == 0 {
		return
	}
	for _, m := range mappings {
		if m.Slug == "" || m.RemoteID == "" {
			continue
		}
		if value, ok := fieldMappings[m.Slug]; ok {
			dst[m.RemoteID] = value
		}
	}
}
