package verifier

import (
	"context"
	"math/rand"

	"github.com/10gen/migration-auditor/internal/access"
	"github.com/10gen/migration-auditor/internal/canonical"
	"github.com/10gen/migration-auditor/internal/logger"
	"github.com/10gen/migration-auditor/internal/testutil"
	"github.com/10gen/migration-auditor/internal/types"
	"github.com/10gen/migration-auditor/internal/verifier/runlog"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

var ordersNS = access.Namespace{DB: "sales", Coll: "orders"}

func (s *UnitTestSuite) compare(kind types.VerificationKind) runlog.Payload {
	comparator, err := newComparator(kind, comparatorSettings{
		logger:     logger.NewDebugLogger(),
		src:        s.src,
		dst:        s.dst,
		loggingDB:  DefaultLoggingDBName,
		sampleSize: 200,
		partitions: 1,
		rng:        rand.New(rand.NewSource(1)),
	})
	s.Require().NoError(err)

	payload, err := comparator.Compare(
		context.Background(),
		s.src.Collection(ordersNS),
		s.dst.Collection(ordersNS),
	)
	s.Require().NoError(err)
	s.Require().Equal(kind, payload.Kind())

	return payload
}

func (s *UnitTestSuite) TestMetadataIgnoresVolatileIndexFields() {
	opts := bson.D{{"validationLevel", "strict"}, {"capped", false}}
	s.src.CreateCollection("sales.orders", opts)
	s.dst.CreateCollection("sales.orders", bson.D{{"capped", false}, {"validationLevel", "strict"}})

	s.src.CreateIndex("sales.orders", bson.D{
		{"v", int32(1)},
		{"key", bson.D{{"status", int32(1)}}},
		{"name", "status_1"},
		{"ns", "sales.orders"},
	})
	s.dst.CreateIndex("sales.orders", bson.D{
		{"name", "status_1"},
		{"key", bson.D{{"status", int32(1)}}},
		{"v", int32(2)},
		{"ns", "migrated.orders"},
	})

	result := s.compare(types.KindMetadata).(runlog.MetadataResult)
	s.Assert().True(result.Matched(), "src: %v\ndst: %v", result.SrcInfo, result.DstInfo)

	s.Assert().True(canonical.IsSorted(result.SrcInfo))
	s.Assert().True(canonical.IsSorted(result.DstInfo))

	idx, _ := result.SrcInfo.Lookup("idx")
	for _, index := range idx.(canonical.Sequence) {
		_, hasNS := index.(canonical.Mapping).Lookup("ns")
		_, hasV := index.(canonical.Mapping).Lookup("v")
		s.Assert().False(hasNS)
		s.Assert().False(hasV)
	}
}

func (s *UnitTestSuite) TestMetadataExtraIndex() {
	s.src.CreateCollection("sales.orders", nil)
	s.dst.CreateCollection("sales.orders", nil)
	s.dst.CreateIndex("sales.orders", bson.D{
		{"v", int32(2)},
		{"key", bson.D{{"status", int32(1)}}},
		{"name", "status_1"},
	})

	s.Assert().False(s.compare(types.KindMetadata).Matched())
}

func (s *UnitTestSuite) TestMetadataDifferentOptions() {
	s.src.CreateCollection("sales.orders", bson.D{{"capped", true}, {"size", int64(4096)}})
	s.dst.CreateCollection("sales.orders", nil)

	s.Assert().False(s.compare(types.KindMetadata).Matched())
}

func (s *UnitTestSuite) TestMetadataMissingDestination() {
	s.src.CreateCollection("sales.orders", nil)

	result := s.compare(types.KindMetadata).(runlog.MetadataResult)
	s.Assert().False(result.Matched())
	s.Assert().Equal(canonical.Mapping{}, result.DstInfo)
}

func (s *UnitTestSuite) TestSampleIgnoresFieldOrder() {
	for i := 0; i < 5; i++ {
		s.src.Insert("sales.orders", bson.D{{"_id", int32(i)}, {"a", i}, {"b", bson.D{{"x", 1}, {"y", 2}}}})
		s.dst.Insert("sales.orders", bson.D{{"b", bson.D{{"y", 2}, {"x", 1}}}, {"a", i}, {"_id", int32(i)}})
	}

	result := s.compare(types.KindSample).(runlog.SampleResult)
	s.Assert().True(result.Matched())
	s.Assert().Equal(5, result.NumDocs)
	s.Assert().NotEmpty(result.SrcHash)
	s.Assert().Empty(result.IDs, "matches don’t list identifiers")

	_, exists := s.src.StagingDocs(DefaultLoggingDBName, "out.sales.orders")
	s.Assert().False(exists, "source staging is dropped after a match")

	_, exists = s.dst.StagingDocs(DefaultLoggingDBName, "out.sales.orders")
	s.Assert().False(exists, "destination staging is dropped after a match")
}

func (s *UnitTestSuite) TestSampleMismatchKeepsStaging() {
	s.src.Insert("sales.orders", numberedDocs(5, bson.E{"status", "new"})...)

	dstDocs := numberedDocs(5, bson.E{"status", "new"})
	dstDocs[3] = bson.D{{"_id", int32(3)}, {"n", int32(3)}, {"status", "lost"}}
	s.dst.Insert("sales.orders", dstDocs...)

	result := s.compare(types.KindSample).(runlog.SampleResult)
	s.Assert().False(result.Matched())
	s.Assert().NotEqual(result.SrcHash, result.DstHash)
	s.Assert().Len(result.IDs, 5)

	srcStaged, exists := s.src.StagingDocs(DefaultLoggingDBName, "out.sales.orders")
	s.Require().True(exists, "source staging survives a mismatch")
	s.Assert().Len(srcStaged, 5)

	for _, sd := range srcStaged {
		s.Assert().Equal("n", sd.Value[0].Key, "staged values are canonical")
		s.Assert().Len(sd.Value, 2, "staged values lack _id")
	}

	_, exists = s.dst.StagingDocs(DefaultLoggingDBName, "out.sales.orders")
	s.Assert().True(exists, "destination staging survives a mismatch")
}

func (s *UnitTestSuite) TestSampleMissingDestinationDocuments() {
	s.src.Insert("sales.orders", numberedDocs(5)...)
	s.dst.Insert("sales.orders", numberedDocs(4)...)

	result := s.compare(types.KindSample).(runlog.SampleResult)
	s.Assert().False(result.Matched())
}

func (s *UnitTestSuite) TestSampleEmptyCollections() {
	s.src.CreateCollection("sales.orders", nil)
	s.dst.CreateCollection("sales.orders", nil)

	result := s.compare(types.KindSample).(runlog.SampleResult)
	s.Assert().True(result.Matched(), "nothing staged on either side")
	s.Assert().Zero(result.NumDocs)
}

func (s *UnitTestSuite) TestSampleReplacesStaleStaging() {
	s.src.Insert("sales.orders", numberedDocs(3)...)
	s.dst.Insert("sales.orders", numberedDocs(3)...)

	stale := []access.StagedDocument{{ID: testutil.MustRawValue(int32(99)), Value: bson.D{{"old", true}}}}
	s.Require().NoError(s.src.Staging(DefaultLoggingDBName, "out.sales.orders").Write(context.Background(), stale))

	s.Assert().True(s.compare(types.KindSample).Matched())
}

func (s *UnitTestSuite) TestSampleLargeCollection() {
	s.src.Insert("sales.orders", numberedDocs(1000)...)
	s.dst.Insert("sales.orders", numberedDocs(1000)...)

	result := s.compare(types.KindSample).(runlog.SampleResult)
	s.Assert().True(result.Matched())
	s.Assert().Equal(200, result.NumDocs)
}

func (s *UnitTestSuite) TestSampleStagingFailure() {
	s.src.Insert("sales.orders", numberedDocs(3)...)
	s.dst.Fail["stage:logging.out.sales.orders"] = errors.New("disk full")

	comparator, err := newComparator(types.KindSample, comparatorSettings{
		logger:     logger.NewDebugLogger(),
		src:        s.src,
		dst:        s.dst,
		loggingDB:  DefaultLoggingDBName,
		sampleSize: 200,
		partitions: 1,
		rng:        rand.New(rand.NewSource(1)),
	})
	s.Require().NoError(err)

	_, err = comparator.Compare(context.Background(), s.src.Collection(ordersNS), s.dst.Collection(ordersNS))
	s.Assert().ErrorContains(err, "disk full")
}
