package runlog

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/mo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// JobCollName is the collection that holds Run records.
	JobCollName = "job"

	// LogCollName is the collection that holds LogEntry records.
	LogCollName = "log"
)

// LogFilter narrows a FindLogEntries query. Unset fields match anything.
type LogFilter struct {
	Skipped   mo.Option[bool]
	Matched   mo.Option[bool]
	Namespace mo.Option[string]
}

// Matches indicates whether the entry satisfies the filter.
func (f LogFilter) Matches(e LogEntry) bool {
	if skipped, has := f.Skipped.Get(); has && e.Skipped != skipped {
		return false
	}

	// Skipped entries have no match status, so they never satisfy a
	// filter on it.
	if matched, has := f.Matched.Get(); has && (e.Skipped || e.Matched() != matched) {
		return false
	}

	if ns, has := f.Namespace.Get(); has && e.Namespace != ns {
		return false
	}

	return true
}

// Store persists Runs and LogEntries.
type Store interface {
	InsertRun(ctx context.Context, run Run) error
	InsertLogEntry(ctx context.Context, entry LogEntry) error
	FinishRun(ctx context.Context, id RunID, end time.Time, summary Summary) error

	FindRun(ctx context.Context, id RunID) (mo.Option[Run], error)

	// FindLogEntries returns a run’s entries in the order they were
	// written.
	FindLogEntries(ctx context.Context, id RunID, filter LogFilter) ([]LogEntry, error)
}

// MongoStore is a Store in a MongoDB logging database.
type MongoStore struct {
	db *mongo.Database
}

var _ Store = &MongoStore{}

// NewMongoStore returns a MongoStore in the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// DatabaseName returns the logging database’s name.
func (s *MongoStore) DatabaseName() string {
	return s.db.Name()
}

// CreateIndexes creates the log collection’s indexes. The unique index
// guarantees one entry per namespace per run.
func (s *MongoStore) CreateIndexes(ctx context.Context) error {
	_, err := s.logColl().Indexes().CreateOne(
		ctx,
		mongo.IndexModel{
			Keys:    bson.D{{"runId", 1}, {"ns", 1}},
			Options: options.Index().SetUnique(true),
		},
	)

	return errors.Wrapf(err, "failed to create index on %#q", LogCollName)
}

func (s *MongoStore) jobColl() *mongo.Collection {
	return s.db.Collection(JobCollName)
}

func (s *MongoStore) logColl() *mongo.Collection {
	return s.db.Collection(LogCollName)
}

func (s *MongoStore) InsertRun(ctx context.Context, run Run) error {
	_, err := s.jobColl().InsertOne(ctx, run)
	return errors.Wrapf(err, "failed to insert run %s", run.ID)
}

func (s *MongoStore) InsertLogEntry(ctx context.Context, entry LogEntry) error {
	_, err := s.logColl().InsertOne(ctx, entry)
	return errors.Wrapf(err, "failed to insert log entry for %#q", entry.Namespace)
}

func (s *MongoStore) FinishRun(ctx context.Context, id RunID, end time.Time, summary Summary) error {
	res, err := s.jobColl().UpdateOne(
		ctx,
		bson.D{{"_id", id}},
		bson.D{{"$set", bson.D{
			{"end", end},
			{"summary", summary},
		}}},
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update run %s", id)
	}

	if res.MatchedCount != 1 {
		return errors.Errorf("run %s not found", id)
	}

	return nil
}

func (s *MongoStore) FindRun(ctx context.Context, id RunID) (mo.Option[Run], error) {
	var run Run
	err := s.jobColl().FindOne(ctx, bson.D{{"_id", id}}).Decode(&run)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return mo.None[Run](), nil
	}
	if err != nil {
		return mo.None[Run](), errors.Wrapf(err, "failed to read run %s", id)
	}

	return mo.Some(run), nil
}

func (s *MongoStore) FindLogEntries(ctx context.Context, id RunID, filter LogFilter) ([]LogEntry, error) {
	query := bson.D{{"runId", id}}

	if skipped, has := filter.Skipped.Get(); has {
		query = append(query, bson.E{"skipped", skipped})
	}
	if matched, has := filter.Matched.Get(); has {
		query = append(query, bson.E{"matched", matched})
	}
	if ns, has := filter.Namespace.Get(); has {
		query = append(query, bson.E{"ns", ns})
	}

	cursor, err := s.logColl().Find(ctx, query, options.Find().SetSort(bson.D{{"_id", 1}}))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query run %s’s log", id)
	}

	var entries []LogEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, errors.Wrapf(err, "failed to read run %s’s log", id)
	}

	return entries, nil
}
