package canonical

import (
	"testing"

	"github.com/cespare/permute/v2"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type UnitTestSuite struct {
	suite.Suite
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, &UnitTestSuite{})
}

func mustFromBSON(s *UnitTestSuite, doc any) Mapping {
	raw, err := bson.Marshal(doc)
	s.Require().NoError(err)

	m, err := FromBSON(raw)
	s.Require().NoError(err)

	return m
}

func (s *UnitTestSuite) TestSortsNestedKeys() {
	in := mustFromBSON(s, bson.D{
		{"z", 1},
		{"a", bson.D{{"y", "yy"}, {"b", "bb"}}},
		{"m", bson.A{
			bson.D{{"q", 1}, {"c", 2}},
			"plain",
		}},
	})

	out := Canonicalize(in)

	expected := mustFromBSON(s, bson.D{
		{"a", bson.D{{"b", "bb"}, {"y", "yy"}}},
		{"m", bson.A{
			bson.D{{"c", 2}, {"q", 1}},
			"plain",
		}},
		{"z", 1},
	})

	s.Assert().True(Equal(expected, out), "canonical form: %+v", out)
	s.Assert().True(IsSorted(out))
	s.Assert().False(IsSorted(in))

	// The input is left alone.
	s.Assert().Equal("z", in[0].Key)
}

func (s *UnitTestSuite) TestSequenceOrderKept() {
	in := Sequence{Number{int32(3)}, Number{int32(1)}, Number{int32(2)}}

	s.Assert().True(Equal(in, Canonicalize(in)))
}

func (s *UnitTestSuite) TestScalarsPassThrough() {
	oid := primitive.NewObjectID()

	for _, v := range []Value{
		Null{},
		Bool(true),
		Number{1.5},
		Number{int64(-4)},
		String("hello"),
		Opaque{oid},
	} {
		s.Assert().True(Equal(v, Canonicalize(v)), "%#v", v)
	}
}

func (s *UnitTestSuite) TestIdempotent() {
	values := []Value{
		Null{},
		String(""),
		Sequence{},
		Mapping{},
		mustFromBSON(s, bson.D{
			{"b", bson.A{bson.D{{"y", 1}, {"x", bson.D{{"k", nil}, {"a", true}}}}}},
			{"a", primitive.NewDateTimeFromTime(primitive.NewObjectID().Timestamp())},
			{"B", 12.5},
		}),
	}

	for _, v := range values {
		once := Canonicalize(v)
		twice := Canonicalize(once)

		s.Assert().True(Equal(once, twice), "idempotence for %+v", v)
		s.Assert().True(IsSorted(once), "sorted: %+v", once)
	}
}

func (s *UnitTestSuite) TestByteOrder() {
	out := Canonicalize(Mapping{
		{"b", Null{}},
		{"_id", Null{}},
		{"B", Null{}},
		{"a", Null{}},
	}).(Mapping)

	keys := []string{}
	for _, f := range out {
		keys = append(keys, f.Key)
	}

	s.Assert().Equal([]string{"B", "_id", "a", "b"}, keys)
}

func (s *UnitTestSuite) TestFieldOrderIndependence() {
	fields := Mapping{
		{"name", String("widget")},
		{"qty", Number{int32(4)}},
		{"tags", Sequence{String("x"), String("y")}},
		{"dims", Mapping{{"w", Number{2.0}}, {"h", Number{3.0}}}},
	}

	expected := Canonicalize(fields)

	p := permute.Slice(fields)
	for p.Permute() {
		s.Assert().True(
			Equal(expected, Canonicalize(fields)),
			"permutation %+v",
			fields,
		)
	}
}

func (s *UnitTestSuite) TestEqualDistinguishesNumberTypes() {
	s.Assert().False(Equal(Number{int32(1)}, Number{int64(1)}))
	s.Assert().True(Equal(Number{int64(1)}, Number{int64(1)}))
	s.Assert().False(Equal(Mapping{{"a", Null{}}}, Mapping{{"a", Null{}}, {"b", Null{}}}))
	s.Assert().False(Equal(Sequence{}, Mapping{}))
}

func (s *UnitTestSuite) TestBSONRoundTrip() {
	oid := primitive.NewObjectID()
	doc := bson.D{
		{"_id", oid},
		{"n", int64(5)},
		{"sub", bson.D{{"b", bson.A{int32(1), "two"}}, {"a", nil}}},
	}

	m := mustFromBSON(s, doc)
	raw, err := bson.Marshal(ToDocument(m))
	s.Require().NoError(err)

	expectedRaw, err := bson.Marshal(doc)
	s.Require().NoError(err)

	s.Assert().Equal(bson.Raw(expectedRaw), bson.Raw(raw))
}

func (s *UnitTestSuite) TestMappingHelpers() {
	m := Mapping{{"ns", String("a.b")}, {"v", Number{int32(2)}}, {"key", Null{}}}

	val, ok := m.Lookup("v")
	s.Assert().True(ok)
	s.Assert().True(Equal(Number{int32(2)}, val))

	_, ok = m.Lookup("nope")
	s.Assert().False(ok)

	s.Assert().True(Equal(Mapping{{"key", Null{}}}, m.Without("ns", "v")))
	s.Assert().Len(m, 3, "Without should copy")
}
