// Package linter implements the IR-to-IR normalization stage: ordered,
// idempotent passes that rewrite a raw ir.Query into a normalized one
// without changing its observable semantics.
package linter

import (
	"github.com/druarnfield/unmdx/diagnostics"
	"github.com/druarnfield/unmdx/ir"
)

// Level selects which passes run.
type Level string

// Optimization levels, from least to most aggressive.
const (
	LevelNone         Level = "none"
	LevelConservative Level = "conservative"
	LevelModerate     Level = "moderate"
	LevelAggressive   Level = "aggressive"
)

// Options configures a linter run.
type Options struct {
	Level Level

	// MaxCrossJoinDepth bounds how many already-kept dimensions the
	// crossjoin pass compares each dimension against when looking for a
	// duplicate; a duplicate of a kept dimension beyond that position is
	// left in place (a defensive cap, not expected to trigger on real
	// input). Zero or less means 64.
	MaxCrossJoinDepth int

	// DisabledRules skips passes by Pass.Name regardless of Level.
	DisabledRules map[string]bool
}

// Pass is one ordered, idempotent IR-to-IR rewrite.
type Pass struct {
	// Name is a short identifier, used in diagnostic codes and
	// Options.DisabledRules.
	Name string

	// Doc is a one-line description of what the pass does.
	Doc string

	// MinLevel is the lowest optimization level at which this pass runs.
	MinLevel Level

	// Run rewrites q and appends any diagnostics to bag. It must return a
	// fresh Query; the input must not be mutated in place. opts is the
	// full Options the pass ran under, for passes whose behavior varies
	// within a single MinLevel band (e.g. aggressive-only inlining).
	Run func(q *ir.Query, bag *diagnostics.Bag, opts Options) *ir.Query
}

var levelRank = map[Level]int{
	LevelNone:         0,
	LevelConservative: 1,
	LevelModerate:     2,
	LevelAggressive:   3,
}

// DefaultPasses returns the built-in normalization passes in their
// required order.
func DefaultPasses() []*Pass {
	return []*Pass{
		flattenSetsPass,
		hierarchyCollapsePass,
		dedupeMembersPass,
		removeEmptyFiltersPass,
		cleanCalculationsPass,
		crossJoinOptimizationPass,
		validatePass,
	}
}

// Lint runs the default passes over q at the given optimization level,
// returning the normalized query and the diagnostics accumulated across
// every pass. The input query is never mutated.
func Lint(q *ir.Query, opts Options) (*ir.Query, *diagnostics.Bag) {
	bag := diagnostics.NewBag()
	if q == nil {
		return nil, bag
	}
	if opts.Level == "" {
		opts.Level = LevelConservative
	}

	current := q.Clone()
	want := levelRank[opts.Level]

	scratch := diagnostics.NewBag()
	ir.Validate(current, scratch)
	wasValid := current.Valid

	for _, pass := range DefaultPasses() {
		if opts.DisabledRules[pass.Name] {
			continue
		}
		if levelRank[pass.MinLevel] > want {
			continue
		}

		before := current
		next := pass.Run(current, bag, opts)
		if next == nil {
			next = before
		}

		if pass.Name == validatePassName {
			current = next
			continue
		}

		check := diagnostics.NewBag()
		ir.Validate(next, check)
		if wasValid && !next.Valid {
			bag.Warnf(diagnostics.KindNormalizationWarning, diagnostics.Span{},
				"pass %q would have invalidated the query; reverted", pass.Name)
			next = before
			next.Valid = wasValid
		} else {
			wasValid = next.Valid
		}
		current = next
	}

	return current, bag
}
