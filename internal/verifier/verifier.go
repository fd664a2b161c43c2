package verifier

import (
	"context"
	"math/rand"
	"time"

	"github.com/10gen/migration-auditor/internal/access"
	"github.com/10gen/migration-auditor/internal/credentials"
	"github.com/10gen/migration-auditor/internal/logger"
	"github.com/10gen/migration-auditor/internal/mongocluster"
	"github.com/10gen/migration-auditor/internal/sampler"
	"github.com/10gen/migration-auditor/internal/types"
	"github.com/10gen/migration-auditor/internal/util"
	"github.com/10gen/migration-auditor/internal/verifier/namespaces"
	"github.com/10gen/migration-auditor/internal/verifier/runlog"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/samber/mo"
)

// DefaultLoggingDBName is the default name of the database that holds
// run records, run logs, and staging collections.
const DefaultLoggingDBName = "logging"

// Config is one run’s configuration.
type Config struct {
	LoggingDBName string

	// DstUsername, if set, overrides the destination connection
	// string’s credential. The password comes from DstCredential.
	DstUsername   string
	DstCredential credentials.Source
	DstURI        string

	// Only sample runs use these.
	SampleSize int64
	Partitions int

	// Whitelist restricts the run to the named databases. It is nil to
	// include every database, or else a non-empty list of strings.
	Whitelist any
}

// DestinationConnector connects to the destination cluster, optionally
// with an explicit credential. A rejected credential must yield an
// AuthenticationError.
type DestinationConnector func(
	ctx context.Context,
	uri string,
	cred mo.Option[mongocluster.Credential],
) (access.Cluster, error)

// Verifier runs verifications of a destination cluster against a source
// cluster. The run records live in the source’s logging database.
type Verifier struct {
	logger     *logger.Logger
	src        access.Cluster
	store      runlog.Store
	connectDst DestinationConnector
	rng        *rand.Rand
}

// NewVerifier returns a Verifier.
func NewVerifier(
	logger *logger.Logger,
	src access.Cluster,
	store runlog.Store,
	connectDst DestinationConnector,
) *Verifier {
	return &Verifier{
		logger:     logger,
		src:        src,
		store:      store,
		connectDst: connectDst,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRandomSource sets the random source for sampling.
func (verifier *Verifier) SetRandomSource(rng *rand.Rand) {
	verifier.rng = rng
}

// runState is everything one run needs. It belongs to the run’s single
// execution path.
type runState struct {
	kind       types.VerificationKind
	recorder   *runlog.Recorder
	selector   *namespaces.Selector
	comparator Comparator
	dst        access.Cluster
}

// Verify performs one run of the given kind.
//
// An invalid configuration yields a ConfigurationError before anything
// is recorded. Any other failure aborts the run, leaving it without a
// summary; the returned Run then still carries the run’s identifier so
// that the operator can inspect what was logged.
//
// Mismatches are not errors. They are in the returned Run’s summary.
func (verifier *Verifier) Verify(
	ctx context.Context,
	kind types.VerificationKind,
	cfg Config,
) (runlog.Run, error) {
	whitelist, err := validateConfig(kind, cfg)
	if err != nil {
		return runlog.Run{}, err
	}

	verifier.logWhitelist(whitelist)

	recorder := runlog.NewRecorder(verifier.store, verifier.logger, kind)
	if _, err := recorder.StartRun(ctx); err != nil {
		return runlog.Run{}, err
	}

	dst, err := verifier.connectDestination(ctx, cfg)
	if err != nil {
		return recorder.Run(), err
	}

	comparator, err := newComparator(kind, comparatorSettings{
		logger:     verifier.logger,
		src:        verifier.src,
		dst:        dst,
		loggingDB:  cfg.LoggingDBName,
		sampleSize: cfg.SampleSize,
		partitions: cfg.Partitions,
		rng:        verifier.rng,
	})
	if err != nil {
		return recorder.Run(), err
	}

	state := &runState{
		kind:       kind,
		recorder:   recorder,
		selector:   namespaces.NewSelector(kind, cfg.LoggingDBName, whitelist),
		comparator: comparator,
		dst:        dst,
	}

	if err := verifier.traverse(ctx, state); err != nil {
		verifier.logger.Error().
			Err(err).
			Str("runID", recorder.RunID().String()).
			Bool("transient", util.IsTransientError(err)).
			Msg("Run aborted. Its log entries so far remain, but it has no summary.")

		return recorder.Run(), err
	}

	return recorder.FinishRun(ctx)
}

func validateConfig(
	kind types.VerificationKind,
	cfg Config,
) (mo.Option[mapset.Set[string]], error) {
	whitelist, err := namespaces.ParseWhitelist(cfg.Whitelist)
	if err != nil {
		return whitelist, err
	}

	if _, err := types.ParseVerificationKind(string(kind)); err != nil {
		return whitelist, ConfigurationError{Setting: "verification type", Reason: err.Error()}
	}

	if cfg.LoggingDBName == "" {
		return whitelist, ConfigurationError{Setting: "logging database", Reason: "name is empty"}
	}

	if cfg.DstURI == "" {
		return whitelist, ConfigurationError{Setting: "destination connection string", Reason: "it is empty"}
	}

	if cfg.DstUsername != "" && cfg.DstCredential == nil {
		return whitelist, ConfigurationError{
			Setting: "destination credential",
			Reason:  "a username needs a password source",
		}
	}

	if kind == types.KindSample {
		if err := sampler.Validate(cfg.SampleSize, cfg.Partitions); err != nil {
			return whitelist, ConfigurationError{Setting: "sampling parameters", Reason: err.Error()}
		}
	}

	return whitelist, nil
}

func (verifier *Verifier) logWhitelist(whitelist mo.Option[mapset.Set[string]]) {
	if wl, has := whitelist.Get(); has {
		verifier.logger.Info().
			Strs("databases", wl.ToSlice()).
			Msg("Verifying only whitelisted databases.")

		return
	}

	verifier.logger.Info().Msg("No database whitelist provided. Verifying all databases.")
}

// connectDestination resolves the destination credential, if any, and
// connects.
func (verifier *Verifier) connectDestination(ctx context.Context, cfg Config) (access.Cluster, error) {
	cred := mo.None[mongocluster.Credential]()

	if cfg.DstUsername != "" {
		verifier.logger.Info().
			Str("username", cfg.DstUsername).
			Str("passwordSource", cfg.DstCredential.Describe()).
			Msg("Obtaining destination password.")

		password, err := cfg.DstCredential.Resolve(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to obtain destination password")
		}

		cred = mo.Some(mongocluster.Credential{
			Username: cfg.DstUsername,
			Password: password,
		})
	}

	dst, err := verifier.connectDst(ctx, cfg.DstURI, cred)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to destination")
	}

	return dst, nil
}

// traverse visits every source namespace, one at a time.
func (verifier *Verifier) traverse(ctx context.Context, state *runState) error {
	dbNames, err := verifier.src.ListDatabases(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list source databases")
	}

	for _, db := range dbNames {
		if !state.selector.EnumeratesDatabase(db) {
			verifier.logger.Debug().
				Str("database", db).
				Msg("Ignoring excluded database.")

			continue
		}

		specs, err := verifier.src.ListCollections(ctx, db)
		if err != nil {
			return errors.Wrapf(err, "failed to list source collections in %#q", db)
		}

		for _, spec := range specs {
			ns := access.Namespace{DB: db, Coll: spec.Name}

			if err := verifier.visit(ctx, state, ns); err != nil {
				return err
			}
		}
	}

	return nil
}

func (verifier *Verifier) visit(ctx context.Context, state *runState, ns access.Namespace) error {
	start := state.recorder.Now()
	decision := state.selector.Classify(ns.DB, ns.Coll)

	switch decision.Action {
	case namespaces.Exclude:
		return nil

	case namespaces.Skip:
		verifier.logger.Info().
			Str("namespace", ns.String()).
			Str("reason", string(decision.Reason)).
			Msg("Skipping collection.")

		return state.recorder.RecordSkipped(ctx, ns, string(decision.Reason), decision.SkipsDatabase, start)
	}

	verifier.logger.Info().
		Str("namespace", ns.String()).
		Str("verificationType", string(state.kind)).
		Msg("Processing collection.")

	payload, err := state.comparator.Compare(
		ctx,
		verifier.src.Collection(ns),
		state.dst.Collection(ns),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to verify %#q", ns)
	}

	event := verifier.logger.Info()
	if !payload.Matched() {
		event = verifier.logger.Warn()
	}

	event.
		Str("namespace", ns.String()).
		Bool("matched", payload.Matched()).
		Msg("Collection verified.")

	return state.recorder.RecordOutcome(ctx, ns, start, payload)
}
