// Package state keeps client-side projections of cisline entities consistent
// with the server after each mutation, without refetching.
package state

// ApplyNested returns parents with transform applied to the one element whose
// key is id. Other elements are copied unchanged. When nothing matches the
// input slice itself is returned.
func ApplyNested[P any, K comparable](parents []P, key func(P) K, id K, transform func(P) P) []P {
	idx := -1
	for i, p := range parents {
		if key(p) == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return parents
	}
	out := make([]P, len(parents))
	copy(out, parents)
	out[idx] = transform(parents[idx])
	return out
}

// AddChild appends child to a copy of children, so the caller's slice is
// never aliased.
func AddChild[C any](children []C, child C) []C {
	out := make([]C, len(children), len(children)+1)
	copy(out, children)
	return append(out, child)
}

// RemoveChild drops every child whose key is id.
func RemoveChild[C any, K comparable](children []C, key func(C) K, id K) []C {
	out := make([]C, 0, len(children))
	for _, c := range children {
		if key(c) != id {
			out = append(out, c)
		}
	}
	return out
}

// ReplaceChild swaps in child for the element keyed id; no match is a no-op.
func ReplaceChild[C any, K comparable](children []C, key func(C) K, id K, child C) []C {
	return ApplyNested(children, key, id, func(C) C { return child })
}

// UpsertChild replaces the child keyed id or appends it when absent.
func UpsertChild[C any, K comparable](children []C, key func(C) K, child C) []C {
	id := key(child)
	for _, c := range children {
		if key(c) == id {
			return ReplaceChild(children, key, id, child)
		}
	}
	return AddChild(children, child)
}

// ApplyChildren returns a copy of children with fn applied to each.
func ApplyChildren[C any](children []C, fn func(C) C) []C {
	if children == nil {
		return nil
	}
	out := make([]C, len(children))
	for i, c := range children {
		out[i] = fn(c)
	}
	return out
}

// HasChild reports whether any child is keyed id.
func HasChild[C any, K comparable](children []C, key func(C) K, id K) bool {
	for _, c := range children {
		if key(c) == id {
			return true
		}
	}
	return false
}
