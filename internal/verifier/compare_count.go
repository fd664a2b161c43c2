package verifier

import (
	"context"

	"github.com/10gen/migration-auditor/internal/access"
	"github.com/10gen/migration-auditor/internal/verifier/runlog"
	"github.com/pkg/errors"
)

// CountComparator compares document counts.
type CountComparator struct{}

var _ Comparator = CountComparator{}

func (CountComparator) Compare(ctx context.Context, src, dst access.Collection) (runlog.Payload, error) {
	srcCount, err := src.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count source documents")
	}

	// A missing destination collection counts 0.
	dstCount, err := dst.Count(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count destination documents")
	}

	return runlog.CountResult{SrcCount: srcCount, DstCount: dstCount}, nil
}
