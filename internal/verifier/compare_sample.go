package verifier

import (
	"context"
	"math/rand"

	"github.com/10gen/migration-auditor/internal/access"
	"github.com/10gen/migration-auditor/internal/canonical"
	"github.com/10gen/migration-auditor/internal/logger"
	"github.com/10gen/migration-auditor/internal/sampler"
	"github.com/10gen/migration-auditor/internal/verifier/runlog"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// SampleComparator compares the content of a random sample of documents.
// Each side’s sampled documents are canonicalized into a staging
// collection in the logging database, and the server’s hashes of the two
// staging collections are compared.
//
// Staging collections survive a mismatch so that the operator can
// inspect them.
type SampleComparator struct {
	logger     *logger.Logger
	src, dst   access.Cluster
	loggingDB  string
	sampleSize int64
	partitions int
	rng        *rand.Rand
}

var _ Comparator = &SampleComparator{}

func (c *SampleComparator) Compare(ctx context.Context, src, dst access.Collection) (runlog.Payload, error) {
	ns := src.Namespace()
	stagingName := access.StagingName(ns)

	srcStaging := c.src.Staging(c.loggingDB, stagingName)
	dstStaging := c.dst.Staging(c.loggingDB, stagingName)

	// A previous mismatch leaves staging collections behind.
	if err := dropStaging(ctx, srcStaging, dstStaging); err != nil {
		return nil, err
	}

	ids, err := sampler.Sample(ctx, src, c.sampleSize, c.partitions, c.rng)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sample source identifiers")
	}

	c.logger.Debug().
		Str("namespace", ns.String()).
		Int("sampledIDs", len(ids)).
		Msg("Sampled document identifiers.")

	srcHash, err := stageAndHash(ctx, src, srcStaging, ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash source sample")
	}

	dstHash, err := stageAndHash(ctx, dst, dstStaging, ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash destination sample")
	}

	result := runlog.SampleResult{
		NumDocs: len(ids),
		SrcHash: srcHash,
		DstHash: dstHash,
	}

	if !result.Matched() {
		result.IDs = ids

		c.logger.Debug().
			Str("namespace", ns.String()).
			Str("staging", stagingName).
			Msg("Keeping staging collections for inspection.")

		return result, nil
	}

	if err := dropStaging(ctx, srcStaging, dstStaging); err != nil {
		return nil, err
	}

	return result, nil
}

// stageAndHash writes the canonical form of the collection’s documents
// with the given identifiers into `staging` and returns the server’s hash
// of it.
func stageAndHash(
	ctx context.Context,
	coll access.Collection,
	staging access.Staging,
	ids []bson.RawValue,
) (string, error) {
	docs, err := coll.FindByIDs(ctx, ids)
	if err != nil {
		return "", err
	}

	staged := make([]access.StagedDocument, 0, len(docs))
	for _, doc := range docs {
		sd, err := stageDocument(doc)
		if err != nil {
			return "", err
		}

		staged = append(staged, sd)
	}

	if err := staging.Write(ctx, staged); err != nil {
		return "", err
	}

	return staging.ContentHash(ctx)
}

// stageDocument splits a document into its identifier and the canonical
// form of everything else.
func stageDocument(doc bson.Raw) (access.StagedDocument, error) {
	id, err := doc.LookupErr(access.IDField)
	if err != nil {
		return access.StagedDocument{}, errors.Wrap(err, "document lacks an identifier")
	}

	mapping, err := canonical.FromBSON(doc)
	if err != nil {
		return access.StagedDocument{}, errors.Wrapf(err, "failed to parse document %s", id)
	}

	value := canonical.Canonicalize(mapping.Without(access.IDField)).(canonical.Mapping)

	return access.StagedDocument{
		ID:    id,
		Value: canonical.ToDocument(value),
	}, nil
}

func dropStaging(ctx context.Context, stagings ...access.Staging) error {
	for _, s := range stagings {
		if err := s.Drop(ctx); err != nil {
			return errors.Wrapf(err, "failed to drop staging collection %#q", s.Name())
		}
	}

	return nil
}
