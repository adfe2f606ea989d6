package store

import "reflect"

// RecycleIdentity returns a value shaped like newData, but with every
// subtree that is structurally value-equal to the corresponding subtree of
// oldData replaced by the oldData subtree itself, per spec.md §4.7. This
// makes reference equality between two reads a reliable "nothing changed
// here" signal, and is what lets Store.Notify skip firing a subscription
// whose data didn't actually change shape even though some sibling field
// elsewhere in the source did.
func RecycleIdentity(old, new any) any {
	switch nv := new.(type) {
	case map[string]any:
		ov, ok := old.(map[string]any)
		if !ok {
			return nv
		}
		return recycleMap(ov, nv)
	case []any:
		ov, ok := old.([]any)
		if !ok {
			return nv
		}
		return recycleSlice(ov, nv)
	default:
		if scalarEqual(old, new) {
			return old
		}
		return new
	}
}

func recycleMap(old, new map[string]any) map[string]any {
	out := make(map[string]any, len(new))
	same := len(old) == len(new)
	for k, v := range new {
		ov, has := old[k]
		if !has {
			out[k] = v
			same = false
			continue
		}
		rv := RecycleIdentity(ov, v)
		out[k] = rv
		if same && !identicalValue(rv, ov) {
			same = false
		}
	}
	if same {
		return old
	}
	return out
}

func recycleSlice(old, new []any) []any {
	if len(old) != len(new) {
		out := make([]any, len(new))
		copy(out, new)
		return out
	}
	out := make([]any, len(new))
	same := true
	for i, v := range new {
		rv := RecycleIdentity(old[i], v)
		out[i] = rv
		if !identicalValue(rv, old[i]) {
			same = false
		}
	}
	if same {
		return old
	}
	return out
}

// identicalValue reports whether a and b are the same value for the
// purpose of notify's reference-equality check: pointer identity for maps
// and slices (the only composite shapes a Reader ever produces), ordinary
// equality for scalars.
func identicalValue(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		return ok && mapIdentity(av) == mapIdentity(bv)
	case []any:
		bv, ok := b.([]any)
		return ok && sliceIdentity(av) == sliceIdentity(bv)
	default:
		return scalarEqual(a, b)
	}
}

func scalarEqual(a, b any) bool { return a == b }

func mapIdentity(m map[string]any) uintptr {
	if m == nil {
		return 0
	}
	return reflect.ValueOf(m).Pointer()
}

func sliceIdentity(s []any) uintptr {
	if s == nil {
		return 0
	}
	return reflect.ValueOf(s).Pointer()
}
