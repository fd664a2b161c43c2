package mongocluster

import (
	"context"
	"slices"

	"github.com/10gen/migration-auditor/internal/access"
	"github.com/10gen/migration-auditor/internal/logger"
	"github.com/10gen/migration-auditor/internal/util"
	"github.com/10gen/migration-auditor/mmongo"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const (
	appName = "Migration Auditor"

	// CommandNotSupportedOnView is what listIndexes fails with on a view.
	commandNotSupportedOnView = 166
)

// Credential is a username & password for clusters that need one.
type Credential struct {
	Username string
	Password string
}

// Cluster implements access.Cluster over a MongoDB client.
type Cluster struct {
	label  string
	client *mongo.Client
	logger *logger.Logger
}

var _ access.Cluster = &Cluster{}

// Connect connects to the cluster at `uri` and pings it. If a credential
// is given it overrides any in the URI; a rejected credential yields a
// util.AuthenticationError.
func Connect(
	ctx context.Context,
	logger *logger.Logger,
	label string,
	uri string,
	cred mo.Option[Credential],
) (*Cluster, error) {
	_, uri, err := mmongo.MaybeAddDirectConnection(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s connection string", label)
	}

	opts := options.Client().
		ApplyURI(uri).
		SetAppName(appName).
		SetWriteConcern(writeconcern.Majority())

	if c, has := cred.Get(); has {
		auth := options.Credential{
			Username: c.Username,
			Password: c.Password,
		}

		if opts.Auth != nil {
			auth.AuthSource = opts.Auth.AuthSource
			auth.AuthMechanism = opts.Auth.AuthMechanism
		}

		opts.SetAuth(auth)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", label)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)

		if util.IsAuthenticationError(err) {
			return nil, util.AuthenticationError{
				Username: lo.TernaryF(
					cred.IsPresent(),
					func() string { return cred.MustGet().Username },
					func() string { return lo.FromPtr(opts.Auth).Username },
				),
				Cause: err,
			}
		}

		return nil, errors.Wrapf(err, "failed to reach %s", label)
	}

	logger.Info().
		Str("cluster", label).
		Msg("Connected.")

	return &Cluster{
		label:  label,
		client: client,
		logger: logger,
	}, nil
}

// Client returns the underlying driver client.
func (c *Cluster) Client() *mongo.Client {
	return c.client
}

// Disconnect closes the client.
func (c *Cluster) Disconnect(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *Cluster) ListDatabases(ctx context.Context) ([]string, error) {
	names, err := c.client.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s databases", c.label)
	}

	slices.Sort(names)

	return names, nil
}

func (c *Cluster) ListCollections(ctx context.Context, db string) ([]access.CollectionSpec, error) {
	return c.listCollections(ctx, db, bson.D{})
}

func (c *Cluster) listCollections(ctx context.Context, db string, filter bson.D) ([]access.CollectionSpec, error) {
	cursor, err := c.client.Database(db).ListCollections(ctx, filter)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s collections in %#q", c.label, db)
	}

	var specs []access.CollectionSpec
	if err := cursor.All(ctx, &specs); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s collections in %#q", c.label, db)
	}

	return specs, nil
}

func (c *Cluster) Collection(ns access.Namespace) access.Collection {
	return &Collection{
		cluster: c,
		ns:      ns,
		coll:    c.client.Database(ns.DB).Collection(ns.Coll),
	}
}

func (c *Cluster) Staging(db, name string) access.Staging {
	return &Staging{
		cluster: c,
		coll:    c.client.Database(db).Collection(name),
	}
}

// Collection implements access.Collection.
type Collection struct {
	cluster *Cluster
	ns      access.Namespace
	coll    *mongo.Collection
}

var _ access.Collection = &Collection{}

func (c *Collection) Namespace() access.Namespace {
	return c.ns
}

func (c *Collection) Count(ctx context.Context) (int64, error) {
	count, err := c.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count %s documents in %#q", c.cluster.label, c.ns)
	}

	return count, nil
}

func (c *Collection) Spec(ctx context.Context) (mo.Option[access.CollectionSpec], error) {
	specs, err := c.cluster.listCollections(ctx, c.ns.DB, bson.D{{"name", c.ns.Coll}})
	if err != nil {
		return mo.None[access.CollectionSpec](), err
	}

	switch len(specs) {
	case 0:
		return mo.None[access.CollectionSpec](), nil
	case 1:
		return mo.Some(specs[0]), nil
	}

	return mo.None[access.CollectionSpec](), errors.Errorf(
		"received multiple results (%v) when fetching %s %#q's specification",
		specs,
		c.cluster.label,
		c.ns,
	)
}

func (c *Collection) ListIndexes(ctx context.Context) ([]bson.Raw, error) {
	cursor, err := c.coll.Indexes().List(ctx)
	if err != nil {
		if util.IsNamespaceNotFoundError(err) || mmongo.ErrorHasCode(err, commandNotSupportedOnView) {
			return nil, nil
		}

		return nil, errors.Wrapf(err, "failed to read %s %#q’s indexes", c.cluster.label, c.ns)
	}

	var specs []bson.Raw
	if err := cursor.All(ctx, &specs); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s %#q’s indexes", c.cluster.label, c.ns)
	}

	return specs, nil
}

func (c *Collection) FindIDs(ctx context.Context, skip, limit int64) ([]bson.RawValue, error) {
	opts := options.Find().
		SetProjection(bson.D{{access.IDField, 1}}).
		SetSort(bson.D{{access.IDField, 1}}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := c.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s %#q’s identifiers", c.cluster.label, c.ns)
	}
	defer cursor.Close(ctx)

	var ids []bson.RawValue
	for cursor.Next(ctx) {
		ids = append(ids, cloneRawValue(cursor.Current.Lookup(access.IDField)))
	}

	return ids, errors.Wrapf(cursor.Err(), "failed to read %s %#q’s identifiers", c.cluster.label, c.ns)
}

func (c *Collection) FindByIDs(ctx context.Context, ids []bson.RawValue) ([]bson.Raw, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := c.coll.Find(
		ctx,
		bson.D{{access.IDField, bson.D{{"$in", ids}}}},
		options.Find().SetSort(bson.D{{access.IDField, 1}}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query %s %#q’s sampled documents", c.cluster.label, c.ns)
	}

	var docs []bson.Raw
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s %#q’s sampled documents", c.cluster.label, c.ns)
	}

	return docs, nil
}

// Staging implements access.Staging as a collection.
type Staging struct {
	cluster *Cluster
	coll    *mongo.Collection
}

var _ access.Staging = &Staging{}

func (s *Staging) Name() string {
	return s.coll.Name()
}

func (s *Staging) Write(ctx context.Context, docs []access.StagedDocument) error {
	if len(docs) == 0 {
		return nil
	}

	models := lo.Map(docs, func(d access.StagedDocument, _ int) any {
		return bson.D{
			{access.IDField, d.ID},
			{"value", d.Value},
		}
	})

	_, err := s.coll.InsertMany(ctx, models, options.InsertMany().SetOrdered(true))

	return errors.Wrapf(err, "failed to write %d documents to %s staging %#q", len(docs), s.cluster.label, s.Name())
}

func (s *Staging) ContentHash(ctx context.Context) (string, error) {
	var resp struct {
		Collections map[string]string
	}

	err := s.coll.Database().RunCommand(
		ctx,
		bson.D{
			{"dbHash", 1},
			{"collections", bson.A{s.Name()}},
		},
	).Decode(&resp)
	if err != nil {
		return "", errors.Wrapf(err, "failed to hash %s staging %#q", s.cluster.label, s.Name())
	}

	// dbHash omits collections that don’t exist, which happens when
	// nothing was staged. That is a legitimate (empty) result.
	return resp.Collections[s.Name()], nil
}

func (s *Staging) Drop(ctx context.Context) error {
	return errors.Wrapf(s.coll.Drop(ctx), "failed to drop %s staging %#q", s.cluster.label, s.Name())
}

func cloneRawValue(rv bson.RawValue) bson.RawValue {
	rv.Value = slices.Clone(rv.Value)
	return rv
}
