package bridge

// NormalizeResult applies the result serialization contract to a decoded JSON
// value: null object members are dropped at every depth, array elements are
// normalized in place, scalars pass through unchanged.
func NormalizeResult(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if item == nil {
				continue
			}
			if normalized := NormalizeResult(item); normalized != nil {
				out[k] = normalized
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = NormalizeResult(item)
		}
		return out
	default:
		return v
	}
}
