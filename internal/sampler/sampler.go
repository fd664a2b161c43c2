package sampler

import (
	"context"
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	// DefaultSampleSize is the number of documents sampled per collection
	// when the operator doesn't say otherwise.
	DefaultSampleSize = 200

	// DefaultPartitions is the default number of partitions per collection.
	DefaultPartitions = 1
)

// Window is a contiguous range of the collection’s identifiers, in
// ascending identifier order.
type Window struct {
	Skip  int64
	Limit int64
}

// IDReader reads a collection's identifiers.
type IDReader interface {
	Count(ctx context.Context) (int64, error)

	// FindIDs returns up to `limit` identifiers, in ascending order, after
	// skipping the first `skip`.
	FindIDs(ctx context.Context, skip, limit int64) ([]bson.RawValue, error)
}

// Validate checks the sampling parameters.
func Validate(target int64, partitions int) error {
	if target < 1 {
		return errors.Errorf("sample size must be positive (got %d)", target)
	}

	if partitions < 1 {
		return errors.Errorf("partition count must be positive (got %d)", partitions)
	}

	return nil
}

// Windows computes which identifier windows to read from a collection of
// `total` documents in order to sample roughly `target` of them from
// `partitions` equal-sized partitions.
//
// If total <= target the single returned window covers the whole
// collection. Otherwise each partition contributes one window, placed at
// a random offset within the partition. This is a heuristic: adjacent
// records are sampled (or skipped) together, and truncation can make the
// total fall slightly short of `target`.
func Windows(total, target int64, partitions int, rng *rand.Rand) []Window {
	if total <= target {
		return []Window{{Skip: 0, Limit: total}}
	}

	partitionSpan := float64(total) / float64(partitions)
	perPartition := float64(target) / float64(partitions)

	// A zero limit means "no limit" to the server, so every window reads
	// at least one identifier.
	limit := max(int64(perPartition), 1)

	windows := make([]Window, 0, partitions)
	for i := 0; i < partitions; i++ {
		offset := rng.Float64() * (partitionSpan - perPartition)

		windows = append(windows, Window{
			Skip:  int64(math.Floor(math.Floor(offset) + float64(i)*partitionSpan)),
			Limit: limit,
		})
	}

	return windows
}

// Sample returns the identifiers to sample from the collection that
// `reader` reads.
func Sample(
	ctx context.Context,
	reader IDReader,
	target int64,
	partitions int,
	rng *rand.Rand,
) ([]bson.RawValue, error) {
	if err := Validate(target, partitions); err != nil {
		return nil, err
	}

	total, err := reader.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count documents to sample")
	}

	var ids []bson.RawValue
	for _, w := range Windows(total, target, partitions, rng) {
		if w.Limit == 0 {
			continue
		}

		windowIDs, err := reader.FindIDs(ctx, w.Skip, w.Limit)
		if err != nil {
			return nil, errors.Wrapf(
				err,
				"failed to read %d identifiers after the first %d",
				w.Limit,
				w.Skip,
			)
		}

		ids = append(ids, windowIDs...)
	}

	return ids, nil
}
