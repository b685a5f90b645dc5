package diff

// Merge deep-merges sources over dst, left to right, and returns a fresh map;
// neither dst nor any source is mutated. Nested maps merge key by key.
// Slices are atomic: a source slice replaces the destination value outright.
// A source value of Undefined deletes the key.
func Merge(dst map[string]any, srcs ...map[string]any) map[string]any {
	out := cloneMap(dst)
	for _, src := range srcs {
		for k, sv := range src {
			if sv == any(Undefined) {
				delete(out, k)
				continue
			}
			sm, srcIsMap := sv.(map[string]any)
			if !srcIsMap {
				out[k] = cloneValue(sv)
				continue
			}
			dm, dstIsMap := out[k].(map[string]any)
			if !dstIsMap {
				out[k] = cloneMap(sm)
				continue
			}
			out[k] = Merge(dm, sm)
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
