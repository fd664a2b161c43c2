package namespaces

import (
	"strings"

	"github.com/10gen/migration-auditor/internal/types"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/mo"
)

// Action is what the auditor does with a namespace.
type Action int

const (
	// Process means the namespace gets verified.
	Process Action = iota

	// Skip means the namespace is not verified, but the skip is logged.
	Skip

	// Exclude means the namespace is ignored without a trace.
	Exclude
)

func (a Action) String() string {
	switch a {
	case Process:
		return "process"
	case Skip:
		return "skip"
	case Exclude:
		return "exclude"
	}

	return "unknown"
}

// SkipReason says why a namespace was skipped.
type SkipReason string

const (
	ReasonLoggingDB      SkipReason = "logging database"
	ReasonSystemColl     SkipReason = "system collection"
	ReasonNotWhitelisted SkipReason = "not whitelisted"
)

// Decision is the Selector’s verdict on one namespace.
type Decision struct {
	Action Action
	Reason SkipReason

	// SkipsDatabase indicates that the whole database counts as
	// skipped in the run summary. This is false for system collections
	// because those appear in otherwise-audited databases.
	SkipsDatabase bool
}

// Selector decides which namespaces a run verifies.
type Selector struct {
	loggingDB   string
	excludedDBs mapset.Set[string]
	whitelist   mo.Option[mapset.Set[string]]
}

// NewSelector returns a Selector for the given verification kind.
func NewSelector(
	kind types.VerificationKind,
	loggingDB string,
	whitelist mo.Option[mapset.Set[string]],
) *Selector {
	return &Selector{
		loggingDB:   loggingDB,
		excludedDBs: mapset.NewSet(ExcludedSystemDBs[kind]...),
		whitelist:   whitelist,
	}
}

// EnumeratesDatabase indicates whether the database’s collections should
// be listed at all.
func (s *Selector) EnumeratesDatabase(db string) bool {
	return db == s.loggingDB || !s.excludedDBs.Contains(db)
}

// Classify applies the selection policy to one namespace. The checks
// happen in this order: logging database, excluded system database,
// system collection, whitelist.
func (s *Selector) Classify(db, coll string) Decision {
	switch {
	case db == s.loggingDB:
		return Decision{Action: Skip, Reason: ReasonLoggingDB, SkipsDatabase: true}

	case s.excludedDBs.Contains(db):
		return Decision{Action: Exclude}

	case strings.HasPrefix(coll, ExcludedSystemCollPrefix):
		return Decision{Action: Skip, Reason: ReasonSystemColl}
	}

	if wl, has := s.whitelist.Get(); has && !wl.Contains(db) {
		return Decision{Action: Skip, Reason: ReasonNotWhitelisted, SkipsDatabase: true}
	}

	return Decision{Action: Process}
}
