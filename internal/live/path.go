// internal/live/path.go
package live

// Lookup walks path through v.
// Steps are string keys for maps and int indices for slices.
// Only the shapes produced by the drivers are understood; anything else fails.
func Lookup(v any, path ...any) (any, bool) {
	cur := v
	for _, step := range path {
		next, ok := lookupStep(cur, step)
		if !ok {
			return nil, false
		}
		cur = next
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

func lookupStep(node any, step any) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		k, ok := step.(string)
		if !ok {
			return nil, false
		}
		v, ok := n[k]
		return v, ok

	case map[string]int64:
		k, ok := step.(string)
		if !ok {
			return nil, false
		}
		v, ok := n[k]
		return v, ok

	case []any:
		i, ok := index(step, len(n))
		if !ok {
			return nil, false
		}
		return n[i], true

	case []int64:
		i, ok := index(step, len(n))
		if !ok {
			return nil, false
		}
		return n[i], true

	case []float64:
		i, ok := index(step, len(n))
		if !ok {
			return nil, false
		}
		return n[i], true
	}
	return nil, false
}

func index(step any, n int) (int, bool) {
	i, ok := step.(int)
	if !ok || i < 0 || i >= n {
		return 0, false
	}
	return i, true
}
