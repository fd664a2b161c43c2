package verifier

import (
	"context"

	"github.com/10gen/migration-auditor/internal/access"
	"github.com/10gen/migration-auditor/internal/canonical"
	"github.com/10gen/migration-auditor/internal/verifier/runlog"
	"github.com/pkg/errors"
)

// Index specification fields that differ legitimately between clusters.
var volatileIndexFields = []string{"ns", "v"}

// MetadataComparator compares collection options and index
// specifications.
type MetadataComparator struct{}

var _ Comparator = MetadataComparator{}

func (MetadataComparator) Compare(ctx context.Context, src, dst access.Collection) (runlog.Payload, error) {
	srcInfo, err := collectionInfo(ctx, src)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read source metadata")
	}

	dstInfo, err := collectionInfo(ctx, dst)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read destination metadata")
	}

	return runlog.MetadataResult{SrcInfo: srcInfo, DstInfo: dstInfo}, nil
}

// collectionInfo returns the canonical {options, idx} document for a
// collection, or an empty mapping if the collection doesn’t exist.
func collectionInfo(ctx context.Context, coll access.Collection) (canonical.Mapping, error) {
	spec, err := coll.Spec(ctx)
	if err != nil {
		return nil, err
	}

	specVal, exists := spec.Get()
	if !exists {
		return canonical.Mapping{}, nil
	}

	options := canonical.Mapping{}
	if len(specVal.Options) > 0 {
		options, err = canonical.FromBSON(specVal.Options)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse collection options")
		}
	}

	indexes, err := coll.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}

	idx := make(canonical.Sequence, 0, len(indexes))
	for _, raw := range indexes {
		index, err := canonical.FromBSON(raw)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse index specification")
		}

		idx = append(idx, index.Without(volatileIndexFields...))
	}

	info := canonical.Mapping{
		{Key: "options", Value: options},
		{Key: "idx", Value: idx},
	}

	return canonical.Canonicalize(info).(canonical.Mapping), nil
}
