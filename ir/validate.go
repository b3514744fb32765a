package ir

import (
	"fmt"

	"github.com/druarnfield/unmdx/diagnostics"
)

// Validate checks the invariants listed in §4.2 against a fully-built
// Query, appending diagnostics to bag and setting q.Valid. It never panics
// on malformed input; validation failures become diagnostics, not errors
// returned to the caller (§4.2: "not exceptions at the API level").
func Validate(q *Query, bag *diagnostics.Bag) {
	if q == nil {
		return
	}

	ok := true
	ok = checkUniqueCalculationNames(q, bag) && ok
	ok = checkAcyclicCalculations(q, bag) && ok
	ok = checkNonEmptySpecificSelections(q, bag) && ok
	ok = checkUniqueAxisAssignments(q, bag) && ok
	ok = checkMeasureReferencesResolve(q, bag) && ok

	q.Valid = ok
}

func checkUniqueCalculationNames(q *Query, bag *diagnostics.Bag) bool {
	seen := make(map[string]diagnostics.Span, len(q.Calculations))
	ok := true
	for _, c := range q.Calculations {
		if first, dup := seen[c.Name]; dup {
			bag.Add(diagnostics.Diagnostic{
				Severity: diagnostics.Error,
				Kind:     diagnostics.KindSemanticError,
				Code:     "duplicate_calculation_name",
				Message:  fmt.Sprintf("calculation %q redefined (first defined at %s)", c.Name, first),
				Span:     c.Span,
			})
			ok = false
			continue
		}
		seen[c.Name] = c.Span
	}
	return ok
}

// checkAcyclicCalculations builds the dependency graph over MeasureReference
// edges between calculations and rejects cycles, per §9's DAG rule.
func checkAcyclicCalculations(q *Query, bag *diagnostics.Bag) bool {
	byName := make(map[string]*Calculation, len(q.Calculations))
	for i := range q.Calculations {
		byName[q.Calculations[i].Name] = &q.Calculations[i]
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(q.Calculations))
	ok := true

	var path []string
	var visit func(name string) bool
	visit = func(name string) bool {
		c, isCalc := byName[name]
		if !isCalc {
			return true
		}
		switch color[name] {
		case black:
			return true
		case gray:
			cycleStart := 0
			for i, n := range path {
				if n == name {
					cycleStart = i
					break
				}
			}
			cyclePath := append(append([]string(nil), path[cycleStart:]...), name)
			bag.Add(diagnostics.Diagnostic{
				Severity:   diagnostics.Error,
				Kind:       diagnostics.KindSemanticError,
				Code:       "circular_calculation",
				Message:    fmt.Sprintf("circular calculation reference: %v", cyclePath),
				Span:       c.Span,
				Suggestion: fmt.Sprintf("break the cycle in %v", cyclePath),
			})
			return false
		}
		color[name] = gray
		path = append(path, name)
		for _, ref := range c.Expression.MeasureReferences() {
			if !visit(ref) {
				return false
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return true
	}

	for _, c := range q.Calculations {
		if color[c.Name] == white {
			if !visit(c.Name) {
				ok = false
			}
		}
	}
	return ok
}

func checkNonEmptySpecificSelections(q *Query, bag *diagnostics.Bag) bool {
	ok := true
	for _, d := range q.Dimensions {
		if d.Members.Kind == SelectSpecific && len(d.Members.Names) == 0 {
			bag.Add(diagnostics.Diagnostic{
				Severity: diagnostics.Error,
				Kind:     diagnostics.KindSemanticError,
				Code:     "empty_specific_selection",
				Message:  fmt.Sprintf("dimension %s.%s has an empty SPECIFIC member selection", d.Hierarchy.Table, d.Hierarchy.Hierarchy),
				Span:     d.Span,
			})
			ok = false
		}
	}
	return ok
}

// checkUniqueAxisAssignments is a best-effort check: the IR no longer
// carries raw axis ids (those are consumed during lowering), so this
// re-validates at the level the IR can observe — no dimension reference
// (hierarchy+level+kind) should appear twice verbatim, which would indicate
// the lowerer failed to deduplicate a CrossJoin.
func checkUniqueAxisAssignments(q *Query, bag *diagnostics.Bag) bool {
	seen := make(map[string]diagnostics.Span, len(q.Dimensions))
	ok := true
	for _, d := range q.Dimensions {
		key := fmt.Sprintf("%s|%s|%s|%v", d.Hierarchy.Table, d.Hierarchy.Hierarchy, d.Level.Level, d.Members)
		if first, dup := seen[key]; dup {
			bag.Add(diagnostics.Diagnostic{
				Severity: diagnostics.Warning,
				Kind:     diagnostics.KindNormalizationWarning,
				Code:     "duplicate_dimension",
				Message:  fmt.Sprintf("dimension %s.%s.%s duplicated (first seen at %s)", d.Hierarchy.Table, d.Hierarchy.Hierarchy, d.Level.Level, first),
				Span:     d.Span,
			})
			continue
		}
		seen[key] = d.Span
	}
	return ok
}

func checkMeasureReferencesResolve(q *Query, bag *diagnostics.Bag) bool {
	known := make(map[string]bool, len(q.Measures)+len(q.Calculations))
	for _, m := range q.Measures {
		known[m.Name] = true
	}
	for _, c := range q.Calculations {
		known[c.Name] = true
	}

	ok := true
	check := func(e *Expression, span diagnostics.Span) {
		e.Walk(func(n *Expression) {
			if n.Kind == ExprMeasureRef && !known[n.MeasureRef.Name] {
				bag.Add(diagnostics.Diagnostic{
					Severity: diagnostics.Error,
					Kind:     diagnostics.KindSemanticError,
					Code:     "undefined_measure_reference",
					Message:  fmt.Sprintf("reference to undefined measure or calculation %q", n.MeasureRef.Name),
					Span:     span,
				})
				ok = false
			}
		})
	}

	for _, m := range q.Measures {
		if m.Aggregation == AggCustom {
			check(&m.Expression, m.Span)
		}
	}
	for _, c := range q.Calculations {
		check(&c.Expression, c.Span)
	}
	return ok
}
