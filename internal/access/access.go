package access

// This package defines what the auditor needs from a cluster. The
// auditor depends only on these interfaces; mongocluster implements them
// over the MongoDB driver, and testutil implements them in memory.

import (
	"context"
	"strings"

	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
)

// IDField is the name of every document’s primary identifier.
const IDField = "_id"

// Namespace is a database & collection pair.
type Namespace struct {
	DB   string
	Coll string
}

// ParseNamespace splits a “db.collection” string. Only the first dot
// separates the two, since collection names may contain dots.
func ParseNamespace(ns string) Namespace {
	db, coll, _ := strings.Cut(ns, ".")
	return Namespace{DB: db, Coll: coll}
}

func (ns Namespace) String() string {
	return ns.DB + "." + ns.Coll
}

// CollectionSpec describes a collection as listCollections reports it.
type CollectionSpec struct {
	Name    string
	Type    string
	Options bson.Raw
}

// StagedDocument is one entry of a staging artifact: a sampled document,
// without its identifier, keyed by that identifier.
type StagedDocument struct {
	ID    bson.RawValue
	Value bson.D
}

// Cluster is one side of the migration.
type Cluster interface {
	// ListDatabases returns every database’s name.
	ListDatabases(ctx context.Context) ([]string, error)

	// ListCollections returns the specifications of every collection
	// in the database.
	ListCollections(ctx context.Context, db string) ([]CollectionSpec, error)

	// Collection returns a handle on a (possibly nonexistent) collection.
	Collection(ns Namespace) Collection

	// Staging returns a handle on a staging artifact in the given
	// database.
	Staging(db, name string) Staging
}

// Collection is a handle on a single collection.
type Collection interface {
	Namespace() Namespace

	// Count returns the number of documents; 0 if the collection
	// doesn’t exist.
	Count(ctx context.Context) (int64, error)

	// Spec returns the collection’s specification, or None if the
	// collection doesn’t exist.
	Spec(ctx context.Context) (mo.Option[CollectionSpec], error)

	// ListIndexes returns the collection’s index specifications.
	ListIndexes(ctx context.Context) ([]bson.Raw, error)

	// FindIDs returns up to `limit` identifiers in ascending order,
	// after skipping the first `skip`.
	FindIDs(ctx context.Context, skip, limit int64) ([]bson.RawValue, error)

	// FindByIDs returns the documents whose identifiers are in `ids`, in
	// ascending identifier order. Identifiers that match nothing are
	// silently ignored.
	FindByIDs(ctx context.Context, ids []bson.RawValue) ([]bson.Raw, error)
}

// Staging is a transient collection that holds canonicalized sample
// documents so the server can hash them.
type Staging interface {
	Name() string

	// Write appends the documents, which must be in ascending
	// identifier order.
	Write(ctx context.Context, docs []StagedDocument) error

	// ContentHash returns the server’s digest of the artifact.
	ContentHash(ctx context.Context) (string, error)

	// Drop removes the artifact. Dropping a nonexistent artifact
	// succeeds.
	Drop(ctx context.Context) error
}

// StagingName returns the name of the staging artifact for a namespace.
// It is not unique per run, so concurrent sample runs against the same
// namespace would collide.
func StagingName(ns Namespace) string {
	return "out." + ns.String()
}
