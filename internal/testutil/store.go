package testutil

import (
	"context"
	"time"

	"github.com/10gen/migration-auditor/internal/verifier/runlog"
	clone "github.com/huandu/go-clone/generic"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

// MemoryStore is an in-memory runlog.Store. Entries go through a BSON
// round trip on the way in, so tests see what a real store would hold.
type MemoryStore struct {
	runs    map[runlog.RunID]runlog.Run
	entries []runlog.LogEntry

	// FailInsertRun and FailInsertLogEntry, if set, make the
	// respective operations fail.
	FailInsertRun      error
	FailInsertLogEntry error
}

var _ runlog.Store = &MemoryStore{}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: map[runlog.RunID]runlog.Run{},
	}
}

// Runs returns every run in the store.
func (s *MemoryStore) Runs() []runlog.Run {
	return clone.Clone(lo.Values(s.runs))
}

func (s *MemoryStore) InsertRun(_ context.Context, run runlog.Run) error {
	if s.FailInsertRun != nil {
		return s.FailInsertRun
	}

	if _, exists := s.runs[run.ID]; exists {
		return errors.Errorf("duplicate run %s", run.ID)
	}

	s.runs[run.ID] = clone.Clone(run)

	return nil
}

func (s *MemoryStore) InsertLogEntry(_ context.Context, entry runlog.LogEntry) error {
	if s.FailInsertLogEntry != nil {
		return s.FailInsertLogEntry
	}

	for _, e := range s.entries {
		if e.RunID == entry.RunID && e.Namespace == entry.Namespace {
			return errors.Errorf("duplicate log entry for %#q in run %s", entry.Namespace, entry.RunID)
		}
	}

	raw := MustMarshal(entry)

	var stored runlog.LogEntry
	if err := stored.UnmarshalBSON(raw); err != nil {
		return err
	}

	s.entries = append(s.entries, stored)

	return nil
}

func (s *MemoryStore) FinishRun(_ context.Context, id runlog.RunID, end time.Time, summary runlog.Summary) error {
	run, exists := s.runs[id]
	if !exists {
		return errors.Errorf("run %s not found", id)
	}

	run.End = &end
	run.Summary = lo.ToPtr(clone.Clone(summary))
	s.runs[id] = run

	return nil
}

func (s *MemoryStore) FindRun(_ context.Context, id runlog.RunID) (mo.Option[runlog.Run], error) {
	run, exists := s.runs[id]
	if !exists {
		return mo.None[runlog.Run](), nil
	}

	return mo.Some(clone.Clone(run)), nil
}

func (s *MemoryStore) FindLogEntries(
	_ context.Context,
	id runlog.RunID,
	filter runlog.LogFilter,
) ([]runlog.LogEntry, error) {
	return lo.Filter(s.entries, func(e runlog.LogEntry, _ int) bool {
		return e.RunID == id && filter.Matches(e)
	}), nil
}
