//go:build ruleguard
// +build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func NoZerologInterface(m dsl.Matcher) {
	m.Import("github.com/rs/zerolog")

	m.Match("$v.Interface($*_)").
		Where(m["v"].Type.Is("*zerolog.Event")).
		Report("Avoid Interface(); use Any() instead.")
}

// Run IDs go into logs as strings so that operators can grep for them.
func RunIDAsString(m dsl.Matcher) {
	m.Import("github.com/10gen/migration-auditor/internal/verifier/runlog")

	m.Match("$e.Any($k, $id)").
		Where(m["e"].Type.Is("*zerolog.Event") && m["id"].Type.Is("runlog.RunID")).
		Report("Log run IDs with Str($k, $id.String()).")
}
