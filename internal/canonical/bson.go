package canonical

import (
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// FromBSON converts a BSON document into a Mapping, preserving field order.
func FromBSON(doc bson.Raw) (Mapping, error) {
	elems, err := doc.Elements()
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse BSON document")
	}

	out := make(Mapping, 0, len(elems))
	for _, el := range elems {
		val, err := FromRawValue(el.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "field %#q", el.Key())
		}

		out = append(out, Field{Key: el.Key(), Value: val})
	}

	return out, nil
}

// FromRawValue converts a single BSON value into the value model.
func FromRawValue(rv bson.RawValue) (Value, error) {
	switch rv.Type {
	case bsontype.Null, bsontype.Undefined:
		return Null{}, nil
	case bsontype.Boolean:
		return Bool(rv.Boolean()), nil
	case bsontype.String:
		return String(rv.StringValue()), nil
	case bsontype.Int32:
		return Number{rv.Int32()}, nil
	case bsontype.Int64:
		return Number{rv.Int64()}, nil
	case bsontype.Double:
		return Number{rv.Double()}, nil
	case bsontype.Decimal128:
		return Number{rv.Decimal128()}, nil
	case bsontype.EmbeddedDocument:
		return FromBSON(rv.Document())
	case bsontype.Array:
		vals, err := rv.Array().Values()
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse BSON array")
		}

		out := make(Sequence, len(vals))
		for i, v := range vals {
			out[i], err = FromRawValue(v)
			if err != nil {
				return nil, errors.Wrapf(err, "array element %d", i)
			}
		}
		return out, nil
	}

	var native any
	if err := rv.Unmarshal(&native); err != nil {
		return nil, errors.Wrapf(err, "failed to decode BSON %s", rv.Type)
	}

	return Opaque{native}, nil
}

// ToBSON converts a value into the equivalent BSON-marshalable Go value:
// bson.D for mappings, bson.A for sequences.
func ToBSON(v Value) any {
	switch tv := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return bool(tv)
	case String:
		return string(tv)
	case Number:
		return tv.V
	case Opaque:
		return tv.V
	case Sequence:
		out := make(bson.A, len(tv))
		for i, el := range tv {
			out[i] = ToBSON(el)
		}
		return out
	case Mapping:
		return ToDocument(tv)
	}

	panic("unknown canonical value type")
}

// ToDocument converts a Mapping into a bson.D.
func ToDocument(m Mapping) bson.D {
	out := make(bson.D, len(m))
	for i, f := range m {
		out[i] = bson.E{Key: f.Key, Value: ToBSON(f.Value)}
	}

	return out
}
