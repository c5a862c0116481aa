package smartparse

// Collaborators disagree about how they wrap lists: some return a bare array,
// some {items: []}, some {videos: []}. Normalize flattens them all.

var listFields = []string{"videos", "events", "results", "items", "data", "emails", "messages"}

// Normalize coerces an arbitrary result value into a flat list. Checks, in
// order: already a list; a structure with a known list field; a structure
// whose content field is itself a structure (recursed once). Anything else
// normalizes to an empty list.
func Normalize(value any) []any {
	return normalize(value, true)
}

func normalize(value any, recurse bool) []any {
	switch v := value.(type) {
	case []any:
		return v
	case map[string]any:
		for _, field := range listFields {
			if inner, ok := v[field].([]any); ok {
				return inner
			}
		}
		if recurse {
			if content, ok := v["content"]; ok {
				switch content.(type) {
				case map[string]any, []any:
					return normalize(content, false)
				}
			}
		}
	}
	return []any{}
}
