package testutil

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"slices"
	"strings"

	"github.com/10gen/migration-auditor/internal/access"
	clone "github.com/huandu/go-clone/generic"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// MemCluster is an in-memory access.Cluster. Documents are kept in
// ascending _id order, as a real cluster would return them.
//
// Failures can be injected via Fail, keyed by "<op>:<namespace>", where
// op is one of count, spec, indexes, findIDs, findByIDs, stage, hash.
type MemCluster struct {
	dbs     map[string]map[string]*memColl
	staging map[access.Namespace][]access.StagedDocument

	Fail map[string]error
}

type memColl struct {
	options bson.Raw
	indexes []bson.Raw
	docs    []bson.Raw
}

var _ access.Cluster = &MemCluster{}

// NewMemCluster returns an empty MemCluster.
func NewMemCluster() *MemCluster {
	return &MemCluster{
		dbs:     map[string]map[string]*memColl{},
		staging: map[access.Namespace][]access.StagedDocument{},
		Fail:    map[string]error{},
	}
}

// CreateCollection creates a collection with the given options and the
// default _id index. It’s a no-op if the collection exists.
func (c *MemCluster) CreateCollection(ns string, opts bson.D) {
	parsed := access.ParseNamespace(ns)

	if c.dbs[parsed.DB] == nil {
		c.dbs[parsed.DB] = map[string]*memColl{}
	}

	if _, exists := c.dbs[parsed.DB][parsed.Coll]; exists {
		return
	}

	if opts == nil {
		opts = bson.D{}
	}

	c.dbs[parsed.DB][parsed.Coll] = &memColl{
		options: MustMarshal(opts),
		indexes: []bson.Raw{
			MustMarshal(bson.D{
				{"v", int32(2)},
				{"key", bson.D{{"_id", int32(1)}}},
				{"name", "_id_"},
				{"ns", ns},
			}),
		},
	}
}

// CreateIndex adds an index specification to a collection, creating the
// collection if needed.
func (c *MemCluster) CreateIndex(ns string, spec bson.D) {
	c.CreateCollection(ns, nil)
	coll := c.coll(access.ParseNamespace(ns))
	coll.indexes = append(coll.indexes, MustMarshal(spec))
}

// Insert adds documents to a collection, creating the collection if
// needed. Every document must have an _id.
func (c *MemCluster) Insert(ns string, docs ...bson.D) {
	c.CreateCollection(ns, nil)
	coll := c.coll(access.ParseNamespace(ns))

	for _, d := range docs {
		raw := MustMarshal(d)
		if _, err := raw.LookupErr(access.IDField); err != nil {
			panic("document lacks _id (error in test)")
		}

		coll.docs = append(coll.docs, raw)
	}

	slices.SortStableFunc(coll.docs, func(a, b bson.Raw) int {
		return compareIDs(a.Lookup(access.IDField), b.Lookup(access.IDField))
	})
}

// StagingDocs returns what the given staging artifact holds, if it exists.
func (c *MemCluster) StagingDocs(db, name string) ([]access.StagedDocument, bool) {
	docs, exists := c.staging[access.Namespace{DB: db, Coll: name}]
	return docs, exists
}

func (c *MemCluster) coll(ns access.Namespace) *memColl {
	return c.dbs[ns.DB][ns.Coll]
}

func (c *MemCluster) fail(op string, ns access.Namespace) error {
	return c.Fail[op+":"+ns.String()]
}

func (c *MemCluster) ListDatabases(context.Context) ([]string, error) {
	names := lo.Keys(c.dbs)
	for ns := range c.staging {
		names = append(names, ns.DB)
	}

	names = lo.Uniq(names)
	slices.Sort(names)

	return names, nil
}

func (c *MemCluster) ListCollections(_ context.Context, db string) ([]access.CollectionSpec, error) {
	var specs []access.CollectionSpec

	for name, coll := range c.dbs[db] {
		specs = append(specs, access.CollectionSpec{
			Name:    name,
			Type:    "collection",
			Options: slices.Clone(coll.options),
		})
	}

	for ns := range c.staging {
		if ns.DB == db {
			specs = append(specs, access.CollectionSpec{
				Name:    ns.Coll,
				Type:    "collection",
				Options: MustMarshal(bson.D{}),
			})
		}
	}

	slices.SortFunc(specs, func(a, b access.CollectionSpec) int {
		return strings.Compare(a.Name, b.Name)
	})

	return specs, nil
}

func (c *MemCluster) Collection(ns access.Namespace) access.Collection {
	return &memCollHandle{cluster: c, ns: ns}
}

func (c *MemCluster) Staging(db, name string) access.Staging {
	return &memStaging{cluster: c, ns: access.Namespace{DB: db, Coll: name}}
}

type memCollHandle struct {
	cluster *MemCluster
	ns      access.Namespace
}

func (h *memCollHandle) Namespace() access.Namespace {
	return h.ns
}

func (h *memCollHandle) docs() []bson.Raw {
	coll := h.cluster.coll(h.ns)
	if coll == nil {
		return nil
	}

	return clone.Clone(coll.docs)
}

func (h *memCollHandle) Count(context.Context) (int64, error) {
	if err := h.cluster.fail("count", h.ns); err != nil {
		return 0, err
	}

	return int64(len(h.docs())), nil
}

func (h *memCollHandle) Spec(context.Context) (mo.Option[access.CollectionSpec], error) {
	if err := h.cluster.fail("spec", h.ns); err != nil {
		return mo.None[access.CollectionSpec](), err
	}

	coll := h.cluster.coll(h.ns)
	if coll == nil {
		return mo.None[access.CollectionSpec](), nil
	}

	return mo.Some(access.CollectionSpec{
		Name:    h.ns.Coll,
		Type:    "collection",
		Options: slices.Clone(coll.options),
	}), nil
}

func (h *memCollHandle) ListIndexes(context.Context) ([]bson.Raw, error) {
	if err := h.cluster.fail("indexes", h.ns); err != nil {
		return nil, err
	}

	coll := h.cluster.coll(h.ns)
	if coll == nil {
		return nil, nil
	}

	return clone.Clone(coll.indexes), nil
}

func (h *memCollHandle) FindIDs(_ context.Context, skip, limit int64) ([]bson.RawValue, error) {
	if err := h.cluster.fail("findIDs", h.ns); err != nil {
		return nil, err
	}

	docs := h.docs()
	if skip >= int64(len(docs)) {
		return nil, nil
	}

	docs = docs[skip:]
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}

	return lo.Map(docs, func(d bson.Raw, _ int) bson.RawValue {
		return d.Lookup(access.IDField)
	}), nil
}

func (h *memCollHandle) FindByIDs(_ context.Context, ids []bson.RawValue) ([]bson.Raw, error) {
	if err := h.cluster.fail("findByIDs", h.ns); err != nil {
		return nil, err
	}

	return lo.Filter(h.docs(), func(d bson.Raw, _ int) bool {
		id := d.Lookup(access.IDField)
		return lo.ContainsBy(ids, func(want bson.RawValue) bool {
			return compareIDs(id, want) == 0
		})
	}), nil
}

type memStaging struct {
	cluster *MemCluster
	ns      access.Namespace
}

func (s *memStaging) Name() string {
	return s.ns.Coll
}

func (s *memStaging) Write(_ context.Context, docs []access.StagedDocument) error {
	if err := s.cluster.fail("stage", s.ns); err != nil {
		return err
	}

	if len(docs) == 0 {
		return nil
	}

	s.cluster.staging[s.ns] = append(s.cluster.staging[s.ns], clone.Clone(docs)...)

	return nil
}

// ContentHash mimics dbHash: an MD5 over the artifact’s documents in
// _id order, and empty if the artifact doesn’t exist.
func (s *memStaging) ContentHash(context.Context) (string, error) {
	if err := s.cluster.fail("hash", s.ns); err != nil {
		return "", err
	}

	docs, exists := s.cluster.staging[s.ns]
	if !exists {
		return "", nil
	}

	docs = slices.Clone(docs)
	slices.SortStableFunc(docs, func(a, b access.StagedDocument) int {
		return compareIDs(a.ID, b.ID)
	})

	hash := md5.New()
	for _, d := range docs {
		raw, err := bson.Marshal(bson.D{{access.IDField, d.ID}, {"value", d.Value}})
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal staged document")
		}

		hash.Write(raw)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

func (s *memStaging) Drop(context.Context) error {
	delete(s.cluster.staging, s.ns)
	return nil
}

// compareIDs orders identifiers: numbers by value, strings
// lexicographically, and anything else by type then bytes.
func compareIDs(a, b bson.RawValue) int {
	aNum, aIsNum := asFloat(a)
	bNum, bIsNum := asFloat(b)

	switch {
	case aIsNum && bIsNum:
		switch {
		case aNum < bNum:
			return -1
		case aNum > bNum:
			return 1
		}
		return 0
	case a.Type == bsontype.String && b.Type == bsontype.String:
		return strings.Compare(a.StringValue(), b.StringValue())
	case a.Type != b.Type:
		return int(a.Type) - int(b.Type)
	}

	return bytes.Compare(a.Value, b.Value)
}

func asFloat(rv bson.RawValue) (float64, bool) {
	switch rv.Type {
	case bsontype.Int32:
		return float64(rv.Int32()), true
	case bsontype.Int64:
		return float64(rv.Int64()), true
	case bsontype.Double:
		return rv.Double(), true
	}

	return 0, false
}
