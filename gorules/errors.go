//go:build ruleguard
// +build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// Errors should carry stacks.
func NoFmtErrorf(m dsl.Matcher) {
	m.Match("fmt.Errorf($*args)").
		Report("Use errors.Errorf from github.com/pkg/errors so that the error carries a stack.").
		Suggest("errors.Errorf($args)")
}
