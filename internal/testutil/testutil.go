package testutil

import (
	"go.mongodb.org/mongo-driver/bson"
)

// MustMarshal wraps `bson.Marshal` with a panic on failure.
func MustMarshal(doc any) bson.Raw {
	raw, err := bson.Marshal(doc)
	if err != nil {
		panic("bson.Marshal (error in test): " + err.Error())
	}

	return raw
}

// MustRawValue marshals a single value into a bson.RawValue, with a
// panic on failure.
func MustRawValue(val any) bson.RawValue {
	return MustMarshal(bson.D{{"v", val}}).Lookup("v")
}

// RawValues converts each of the given values into a bson.RawValue.
func RawValues[T any](vals ...T) []bson.RawValue {
	out := make([]bson.RawValue, len(vals))
	for i, v := range vals {
		out[i] = MustRawValue(v)
	}

	return out
}
