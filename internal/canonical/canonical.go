package canonical

import (
	"slices"
	"strings"
)

// Canonicalize rewrites `v` so that every mapping, at every nesting level,
// lists its keys in ascending byte order. Sequences keep their element
// order; scalars are returned as-is. The result shares no mapping or
// sequence storage with the input.
//
// Canonicalize is idempotent.
func Canonicalize(v Value) Value {
	switch tv := v.(type) {
	case Sequence:
		out := make(Sequence, len(tv))
		for i, el := range tv {
			out[i] = Canonicalize(el)
		}
		return out

	case Mapping:
		out := make(Mapping, len(tv))
		for i, f := range tv {
			out[i] = Field{Key: f.Key, Value: Canonicalize(f.Value)}
		}

		// Stable so that duplicate keys (legal in BSON) keep their
		// relative order.
		slices.SortStableFunc(out, func(a, b Field) int {
			return strings.Compare(a.Key, b.Key)
		})
		return out
	}

	return v
}

// IsSorted reports whether every mapping inside `v` has strictly
// ascending keys.
func IsSorted(v Value) bool {
	switch tv := v.(type) {
	case Sequence:
		for _, el := range tv {
			if !IsSorted(el) {
				return false
			}
		}

	case Mapping:
		for i, f := range tv {
			if i > 0 && tv[i-1].Key >= f.Key {
				return false
			}
			if !IsSorted(f.Value) {
				return false
			}
		}
	}

	return true
}
