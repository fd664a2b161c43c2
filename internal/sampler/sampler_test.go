package sampler

import (
	"context"
	"math/rand"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// sliceReader serves identifiers 0 .. n-1 as int64s.
type sliceReader struct {
	n     int64
	reads []Window
}

func (r *sliceReader) Count(context.Context) (int64, error) {
	return r.n, nil
}

func (r *sliceReader) FindIDs(_ context.Context, skip, limit int64) ([]bson.RawValue, error) {
	r.reads = append(r.reads, Window{skip, limit})

	var out []bson.RawValue
	for i := skip; i < r.n && i < skip+limit; i++ {
		out = append(out, bson.RawValue{
			Type:  bson.TypeInt64,
			Value: bson.Raw(lo.Must(bson.Marshal(bson.D{{"v", i}}))).Lookup("v").Value,
		})
	}

	return out, nil
}

func idsToInts(ids []bson.RawValue) []int64 {
	return lo.Map(ids, func(rv bson.RawValue, _ int) int64 {
		return rv.Int64()
	})
}

func TestSampleSmallCollectionReturnsEverything(t *testing.T) {
	reader := &sliceReader{n: 50}

	ids, err := Sample(context.Background(), reader, 200, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, lo.RangeFrom(int64(0), 50), idsToInts(ids), "all ids, ascending")
	assert.Equal(t, []Window{{0, 50}}, reader.reads)
}

func TestSampleExactSizeReturnsEverything(t *testing.T) {
	reader := &sliceReader{n: 200}

	ids, err := Sample(context.Background(), reader, 200, 4, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Len(t, ids, 200)
}

func TestSampleOnePartition(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		reader := &sliceReader{n: 10_000}

		ids, err := Sample(context.Background(), reader, 200, 1, rand.New(rand.NewSource(seed)))
		require.NoError(t, err)

		ints := idsToInts(ids)
		assert.Len(t, ints, 200, "seed %d", seed)
		assert.Len(t, lo.Uniq(ints), 200, "seed %d: no duplicates", seed)

		for _, id := range ints {
			assert.GreaterOrEqual(t, id, int64(0))
			assert.Less(t, id, int64(10_000))
		}
	}
}

func TestSampleManyPartitions(t *testing.T) {
	reader := &sliceReader{n: 1_000}

	ids, err := Sample(context.Background(), reader, 100, 4, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	require.Len(t, reader.reads, 4)

	for i, w := range reader.reads {
		assert.EqualValues(t, 25, w.Limit)
		assert.GreaterOrEqual(t, w.Skip, int64(i*250), "window %d starts inside its partition", i)
		assert.LessOrEqual(t, w.Skip+w.Limit, int64((i+1)*250), "window %d ends inside its partition", i)
	}

	assert.Len(t, ids, 100)
}

func TestWindowsFractionalPartitions(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	// 1000/3 partitions of ~333.3 docs, ~33.3 sampled per partition.
	windows := Windows(1_000, 100, 3, rng)
	require.Len(t, windows, 3)

	total := int64(0)
	for _, w := range windows {
		assert.EqualValues(t, 33, w.Limit, "per-partition size is truncated")
		assert.LessOrEqual(t, w.Skip+w.Limit, int64(1_000))
		total += w.Limit
	}

	assert.EqualValues(t, 99, total, "truncation can undershoot the target")
}

func TestWindowsTinyTarget(t *testing.T) {
	windows := Windows(1_000, 2, 4, rand.New(rand.NewSource(1)))

	for _, w := range windows {
		assert.EqualValues(t, 1, w.Limit, "zero limits are clamped")
	}
}

func TestSampleEmptyCollection(t *testing.T) {
	reader := &sliceReader{n: 0}

	ids, err := Sample(context.Background(), reader, 200, 1, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Empty(t, ids)
	assert.Empty(t, reader.reads, "no read for an empty window")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(1, 1))
	assert.Error(t, Validate(0, 1))
	assert.Error(t, Validate(10, 0))

	_, err := Sample(context.Background(), &sliceReader{n: 5}, 10, 0, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}
