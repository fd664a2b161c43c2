package runlog

import (
	"context"
	"slices"
	"time"

	"github.com/10gen/migration-auditor/internal/access"
	"github.com/10gen/migration-auditor/internal/logger"
	"github.com/10gen/migration-auditor/internal/types"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
)

// Recorder persists a single run: the Run record at the start, one
// LogEntry per namespace as soon as its outcome is known, and the final
// Summary at the end. It is not safe for concurrent use; one run has one
// execution path.
type Recorder struct {
	store  Store
	logger *logger.Logger
	kind   types.VerificationKind
	now    func() time.Time

	run Run
	acc summaryAccumulator
}

// NewRecorder returns a Recorder for a run of the given kind.
func NewRecorder(store Store, logger *logger.Logger, kind types.VerificationKind) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger,
		kind:   kind,
		now:    time.Now,
		acc:    newSummaryAccumulator(),
	}
}

// Now returns the Recorder’s notion of the current time.
func (r *Recorder) Now() time.Time {
	return r.now()
}

// RunID returns the run’s identifier, or empty if StartRun hasn’t
// succeeded.
func (r *Recorder) RunID() RunID {
	return r.run.ID
}

// Run returns the run as recorded so far.
func (r *Recorder) Run() Run {
	return r.run
}

// StartRun creates the Run record.
func (r *Recorder) StartRun(ctx context.Context) (RunID, error) {
	if r.run.ID != "" {
		return "", errors.Errorf("run %s already started", r.run.ID)
	}

	run := Run{
		ID:    NewRunID(),
		Kind:  r.kind,
		Start: r.now(),
	}

	if err := r.store.InsertRun(ctx, run); err != nil {
		return "", errors.Wrap(err, "failed to create run record")
	}

	r.run = run

	r.logger.Info().
		Str("runID", run.ID.String()).
		Str("verificationType", string(r.kind)).
		Msg("Started new run.")

	return run.ID, nil
}

// RecordSkipped logs a skipped namespace. If `skipsDatabase` is true,
// the namespace’s database joins the summary’s skipped databases.
func (r *Recorder) RecordSkipped(
	ctx context.Context,
	ns access.Namespace,
	reason string,
	skipsDatabase bool,
	start time.Time,
) error {
	entry := LogEntry{
		RunID:     r.run.ID,
		Namespace: ns.String(),
		Skipped:   true,
		Reason:    reason,
		Kind:      r.kind,
		Start:     start,
		End:       start,
	}

	if err := r.insert(ctx, entry); err != nil {
		return err
	}

	r.acc.skipped(ns.DB, skipsDatabase)

	return nil
}

// RecordOutcome logs a processed namespace’s result.
func (r *Recorder) RecordOutcome(
	ctx context.Context,
	ns access.Namespace,
	start time.Time,
	payload Payload,
) error {
	if payload.Kind() != r.kind {
		return errors.Errorf(
			"%s result for %#q doesn’t belong in a %s run",
			payload.Kind(),
			ns,
			r.kind,
		)
	}

	entry := LogEntry{
		RunID:     r.run.ID,
		Namespace: ns.String(),
		Kind:      r.kind,
		Start:     start,
		End:       r.now(),
		Payload:   payload,
	}

	if err := r.insert(ctx, entry); err != nil {
		return err
	}

	r.acc.processed(ns.DB, payload.Matched())

	return nil
}

func (r *Recorder) insert(ctx context.Context, entry LogEntry) error {
	if r.run.ID == "" {
		return errors.Errorf("cannot log %#q before the run starts", entry.Namespace)
	}

	return errors.Wrapf(
		r.store.InsertLogEntry(ctx, entry),
		"failed to log %#q’s outcome",
		entry.Namespace,
	)
}

// Summary returns the summary of what has been recorded so far.
func (r *Recorder) Summary() Summary {
	return r.acc.summary()
}

// FinishRun writes the end time and the Summary onto the Run record, in
// one update, and returns the final Run.
func (r *Recorder) FinishRun(ctx context.Context) (Run, error) {
	if r.run.ID == "" {
		return Run{}, errors.New("cannot finish a run that never started")
	}

	end := r.now()
	summary := r.acc.summary()

	if err := r.store.FinishRun(ctx, r.run.ID, end, summary); err != nil {
		return Run{}, errors.Wrapf(err, "failed to finalize run %s", r.run.ID)
	}

	r.run.End = &end
	r.run.Summary = &summary

	r.logger.Info().
		Str("runID", r.run.ID.String()).
		Int64("processed", summary.Coll.Processed).
		Int64("skipped", summary.Coll.Skipped).
		Int64("matches", summary.Coll.Matches).
		Int64("mismatches", summary.Coll.Mismatches).
		Msg("Run finished.")

	return r.run, nil
}

type summaryAccumulator struct {
	processedDBs mapset.Set[string]
	skippedDBs   mapset.Set[string]
	coll         CollSummary
}

func newSummaryAccumulator() summaryAccumulator {
	return summaryAccumulator{
		processedDBs: mapset.NewThreadUnsafeSet[string](),
		skippedDBs:   mapset.NewThreadUnsafeSet[string](),
	}
}

func (a *summaryAccumulator) skipped(db string, skipsDatabase bool) {
	a.coll.Skipped++

	if skipsDatabase {
		a.skippedDBs.Add(db)
	}
}

func (a *summaryAccumulator) processed(db string, matched bool) {
	a.coll.Processed++
	a.processedDBs.Add(db)

	if matched {
		a.coll.Matches++
	} else {
		a.coll.Mismatches++
	}
}

func (a *summaryAccumulator) summary() Summary {
	return Summary{
		DB: DBSummary{
			Processed: sortedSlice(a.processedDBs),
			Skipped:   sortedSlice(a.skippedDBs),
		},
		Coll: a.coll,
	}
}

func sortedSlice(s mapset.Set[string]) []string {
	out := s.ToSlice()
	slices.Sort(out)

	return out
}
