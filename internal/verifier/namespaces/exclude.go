package namespaces

import (
	"github.com/10gen/migration-auditor/internal/types"
	"github.com/samber/lo"
)

const (
	// ExcludedSystemCollPrefix is the prefix of system collections,
	// which we skip.
	ExcludedSystemCollPrefix = "system."
)

var (
	// coreSystemDBs are never audited.
	coreSystemDBs = []string{"admin", "local"}

	// ExcludedSystemDBs are the system databases that each verification
	// kind leaves out entirely.
	//
	// The metadata check enumerates “config” while the others don’t.
	// TODO: confirm with product whether “config” should be audited
	// by the metadata check.
	ExcludedSystemDBs = map[types.VerificationKind][]string{
		types.KindCount:    lo.Union(coreSystemDBs, []string{"config"}),
		types.KindMetadata: lo.Union(coreSystemDBs),
		types.KindSample:   lo.Union(coreSystemDBs, []string{"config"}),
	}
)
