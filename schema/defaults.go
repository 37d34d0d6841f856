package schema

// applyDefaults fills missing object properties that declare a "default"
// in node, recursing through properties, items and allOf. value must be in
// the JSON data model; it is modified in place and returned.
func applyDefaults(node, value any) any {
	sm, ok := node.(map[string]any)
	if !ok {
		return value
	}

	switch v := value.(type) {
	case map[string]any:
		if props, ok := sm["properties"].(map[string]any); ok {
			for name, ps := range props {
				pm, ok := ps.(map[string]any)
				if !ok {
					continue
				}
				cur, present := v[name]
				if !present {
					if d, ok := pm["default"]; ok {
						v[name] = deepCopy(d)
					}
					continue
				}
				v[name] = applyDefaults(pm, cur)
			}
		}
	case []any:
		if items, ok := sm["items"].(map[string]any); ok {
			for i := range v {
				v[i] = applyDefaults(items, v[i])
			}
		}
	}

	if all, ok := sm["allOf"].([]any); ok {
		for _, sub := range all {
			value = applyDefaults(sub, value)
		}
	}
	return value
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
