package verifier

import (
	"context"
	"math/rand"

	"github.com/10gen/migration-auditor/internal/access"
	"github.com/10gen/migration-auditor/internal/logger"
	"github.com/10gen/migration-auditor/internal/types"
	"github.com/10gen/migration-auditor/internal/verifier/runlog"
	"github.com/pkg/errors"
)

// Comparator verifies one namespace with one strategy. A discrepancy
// between the clusters is a result (see Payload.Matched), not an error;
// errors mean that a cluster couldn’t be read or written.
type Comparator interface {
	Compare(ctx context.Context, src, dst access.Collection) (runlog.Payload, error)
}

// comparatorSettings is what NewComparator needs to build any
// Comparator.
type comparatorSettings struct {
	logger     *logger.Logger
	src, dst   access.Cluster
	loggingDB  string
	sampleSize int64
	partitions int
	rng        *rand.Rand
}

func newComparator(kind types.VerificationKind, settings comparatorSettings) (Comparator, error) {
	switch kind {
	case types.KindCount:
		return CountComparator{}, nil
	case types.KindMetadata:
		return MetadataComparator{}, nil
	case types.KindSample:
		return &SampleComparator{
			logger:     settings.logger,
			src:        settings.src,
			dst:        settings.dst,
			loggingDB:  settings.loggingDB,
			sampleSize: settings.sampleSize,
			partitions: settings.partitions,
			rng:        settings.rng,
		}, nil
	}

	return nil, errors.Errorf("unknown verification type %#q", kind)
}
