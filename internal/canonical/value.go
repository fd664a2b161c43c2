package canonical

// This package defines a small, closed value model for the documents and
// metadata that the auditor compares, plus the routine that rewrites such
// values into a canonical (key-sorted) form.

import (
	"reflect"
)

// Value is one node of the value model. The set of implementations is
// closed: Null, Bool, Number, String, Sequence, Mapping, and Opaque.
type Value interface {
	isValue()
}

// Null is the absence of a value.
type Null struct{}

// Bool is a boolean scalar.
type Bool bool

// Number is a numeric scalar. V holds the number in its original Go
// representation (e.g., int32, int64, float64, or a BSON decimal) so that
// numbers of different types never compare equal.
type Number struct {
	V any
}

// String is a string scalar.
type String string

// Sequence is an ordered list of values.
type Sequence []Value

// Field is one key/value pair of a Mapping.
type Field struct {
	Key   string
	Value Value
}

// Mapping is an ordered list of key/value pairs.
type Mapping []Field

// Opaque is a scalar that the model does not interpret, like an ObjectID
// or a timestamp. Canonicalization passes it through unchanged.
type Opaque struct {
	V any
}

func (Null) isValue()     {}
func (Bool) isValue()     {}
func (Number) isValue()   {}
func (String) isValue()   {}
func (Sequence) isValue() {}
func (Mapping) isValue()  {}
func (Opaque) isValue()   {}

// Lookup returns the value of the first field named `key`.
func (m Mapping) Lookup(key string) (Value, bool) {
	for _, f := range m {
		if f.Key == key {
			return f.Value, true
		}
	}

	return nil, false
}

// Without returns a copy of the mapping minus every field whose key is
// in `keys`.
func (m Mapping) Without(keys ...string) Mapping {
	out := make(Mapping, 0, len(m))

FIELDS:
	for _, f := range m {
		for _, k := range keys {
			if f.Key == k {
				continue FIELDS
			}
		}

		out = append(out, f)
	}

	return out
}

// Equal reports whether two values are structurally identical, including
// the order of mapping fields.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Null:
		_, ok := b.(Null)
		return ok
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Number:
		bv, ok := b.(Number)
		return ok && reflect.DeepEqual(av.V, bv.V)
	case Opaque:
		bv, ok := b.(Opaque)
		return ok && reflect.DeepEqual(av.V, bv.V)
	case Sequence:
		bv, ok := b.(Sequence)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Mapping:
		bv, ok := b.(Mapping)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i].Key != bv[i].Key || !Equal(av[i].Value, bv[i].Value) {
				return false
			}
		}
		return true
	}

	panic("unknown canonical value type: " + reflect.TypeOf(a).String())
}
