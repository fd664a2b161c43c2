package types

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// RealNumber represents any real (i.e., non-complex) number type.
type RealNumber interface {
	constraints.Integer | constraints.Float
}

// VerificationKind names one of the auditor’s verification strategies.
// Each run uses exactly one.
type VerificationKind string

const (
	KindCount    VerificationKind = "count"
	KindMetadata VerificationKind = "metadata"
	KindSample   VerificationKind = "sample"
)

// VerificationKinds lists every valid VerificationKind.
var VerificationKinds = []VerificationKind{KindCount, KindMetadata, KindSample}

// ParseVerificationKind validates a stringified VerificationKind.
func ParseVerificationKind(s string) (VerificationKind, error) {
	for _, k := range VerificationKinds {
		if string(k) == s {
			return k, nil
		}
	}

	return "", errors.Errorf("unknown verification kind %#q", s)
}

// ToNumericTypeOf returns a copy of the 1st parameter converted to the
// “type of” the 2nd parameter.
//
// Example:
// ```
//
//	limit := int32(234)
//	i := ToNumericTypeOf(0, limit)
//
// ```
func ToNumericTypeOf[To, From RealNumber](value From, _ To) To {
	return To(value)
}
