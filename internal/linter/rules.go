package linter

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/expr-lang/expr"

	"github.com/druarnfield/unmdx/diagnostics"
	"github.com/druarnfield/unmdx/ir"
)

const validatePassName = "validate"

var flattenSetsPass = &Pass{
	Name:     "flatten-sets",
	Doc:      "Drops specific-member selections left with no names; defense in depth against malformed lowerer output.",
	MinLevel: LevelNone,
	Run:      runFlattenSets,
}

func runFlattenSets(q *ir.Query, bag *diagnostics.Bag, _ Options) *ir.Query {
	out := q.Clone()
	kept := out.Dimensions[:0]
	for _, d := range out.Dimensions {
		if d.Members.Kind == ir.SelectSpecific && len(d.Members.Names) == 0 {
			bag.Warnf(diagnostics.KindNormalizationWarning, d.Span,
				"dropping %s.%s: SPECIFIC selection with no members", d.Hierarchy.Table, d.Level.Level)
			continue
		}
		kept = append(kept, d)
	}
	out.Dimensions = kept
	return out
}

var hierarchyCollapsePass = &Pass{
	Name:     "hierarchy-collapse",
	Doc:      "Keeps only the finest whole-level dimension per table, matching the lowerer's own rule, for dimensions that reach the IR via paths the lowerer doesn't dedupe (e.g. CrossJoin).",
	MinLevel: LevelNone,
	Run:      runHierarchyCollapse,
}

func runHierarchyCollapse(q *ir.Query, bag *diagnostics.Bag, _ Options) *ir.Query {
	out := q.Clone()

	byTable := map[string][]int{}
	for i, d := range out.Dimensions {
		if d.Members.Kind != ir.SelectAll {
			continue
		}
		byTable[d.Hierarchy.Table] = append(byTable[d.Hierarchy.Table], i)
	}

	drop := map[int]bool{}
	for table, idxs := range byTable {
		if len(idxs) < 2 {
			continue
		}
		keep := idxs[len(idxs)-1]
		for _, i := range idxs[:len(idxs)-1] {
			drop[i] = true
		}
		bag.Warnf(diagnostics.KindNormalizationWarning, out.Dimensions[keep].Span,
			"redundant_hierarchy_levels: collapsing %d competing whole-level selections on %q to %s",
			len(idxs), table, out.Dimensions[keep].Level.Level)
	}

	if len(drop) == 0 {
		return out
	}

	kept := out.Dimensions[:0]
	for i, d := range out.Dimensions {
		if drop[i] {
			continue
		}
		kept = append(kept, d)
	}
	out.Dimensions = kept
	return out
}

var dedupeMembersPass = &Pass{
	Name:     "dedupe-members",
	Doc:      "Removes repeated names within a SPECIFIC member selection, preserving first occurrence.",
	MinLevel: LevelNone,
	Run:      runDedupeMembers,
}

func runDedupeMembers(q *ir.Query, bag *diagnostics.Bag, _ Options) *ir.Query {
	out := q.Clone()
	for i, d := range out.Dimensions {
		if d.Members.Kind != ir.SelectSpecific {
			continue
		}
		seen := make(map[string]bool, len(d.Members.Names))
		deduped := make([]string, 0, len(d.Members.Names))
		dropped := 0
		for _, n := range d.Members.Names {
			if seen[n] {
				dropped++
				continue
			}
			seen[n] = true
			deduped = append(deduped, n)
		}
		if dropped > 0 {
			d.Members.Names = deduped
			out.Dimensions[i] = d
			bag.Infof(diagnostics.KindNormalizationWarning, d.Span,
				"removed %d duplicate member name(s) from %s.%s", dropped, d.Hierarchy.Table, d.Level.Level)
		}
	}
	return out
}

var removeEmptyFiltersPass = &Pass{
	Name:     "remove-empty-filters",
	Doc:      "Drops NonEmptyFilter when the query projects no measures, and merges structurally identical filters.",
	MinLevel: LevelNone,
	Run:      runRemoveEmptyFilters,
}

func runRemoveEmptyFilters(q *ir.Query, bag *diagnostics.Bag, _ Options) *ir.Query {
	out := q.Clone()

	kept := out.Filters[:0]
	for _, f := range out.Filters {
		if f.NonEmpty != nil && len(out.Measures) == 0 {
			bag.Infof(diagnostics.KindNormalizationWarning, diagnostics.Span{},
				"dropping NON EMPTY filter: query projects no measures")
			continue
		}
		kept = append(kept, f)
	}
	out.Filters = kept

	deduped := out.Filters[:0]
	for _, f := range out.Filters {
		dup := false
		for _, existing := range deduped {
			if reflect.DeepEqual(existing.Dimension, f.Dimension) &&
				reflect.DeepEqual(existing.Measure, f.Measure) &&
				reflect.DeepEqual(existing.NonEmpty, f.NonEmpty) &&
				reflect.DeepEqual(existing.Logical, f.Logical) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		deduped = append(deduped, f)
	}
	out.Filters = deduped

	return out
}

var cleanCalculationsPass = &Pass{
	Name:     "clean-calculations",
	Doc:      "Canonicalizes division to DIVIDE, folds numeric-only constant subtrees via expr-lang, collapses double negation, and (aggressive only) inlines single-reference calculations.",
	MinLevel: LevelModerate,
	Run:      runCleanCalculations,
}

func runCleanCalculations(q *ir.Query, bag *diagnostics.Bag, opts Options) *ir.Query {
	out := q.Clone()

	for i, c := range out.Calculations {
		c.Expression = cleanExpression(c.Expression, bag)
		out.Calculations[i] = c
	}

	for i, m := range out.Measures {
		if m.Aggregation != ir.AggCustom {
			continue
		}
		m.Expression = cleanExpression(m.Expression, bag)
		out.Measures[i] = m
	}

	if opts.Level == LevelAggressive {
		out = inlineSingleUseCalculations(out, bag)
	}

	return out
}

// cleanExpression returns a rewritten copy of e, leaving e's own nodes
// untouched: "/" becomes a DIVIDE call, double negation collapses, and numeric-only
// subtrees fold to a single Constant.
func cleanExpression(e ir.Expression, bag *diagnostics.Bag) ir.Expression {
	switch e.Kind {
	case ir.ExprBinaryOp:
		left := cleanExpression(*e.BinaryOp.Left, bag)
		right := cleanExpression(*e.BinaryOp.Right, bag)

		if e.BinaryOp.Op == ir.OpDiv {
			e = ir.Expression{
				Kind: ir.ExprFunctionCall,
				Span: e.Span,
				FunctionCall: &ir.FunctionCall{
					Name:    "DIVIDE",
					DAXName: "DIVIDE",
					Args:    []*ir.Expression{&left, &right},
				},
			}
			return e
		}

		if folded, ok := foldConstantBinary(e.BinaryOp.Op, left, right, bag); ok {
			return folded
		}

		e.BinaryOp = &ir.BinaryOp{Op: e.BinaryOp.Op, Left: &left, Right: &right}
		return e

	case ir.ExprLogicalOp:
		operands := make([]*ir.Expression, len(e.LogicalOp.Operands))
		for i, op := range e.LogicalOp.Operands {
			cleaned := cleanExpression(*op, bag)
			operands[i] = &cleaned
		}
		if e.LogicalOp.Op == ir.LogNot && len(operands) == 1 && operands[0].Kind == ir.ExprLogicalOp &&
			operands[0].LogicalOp.Op == ir.LogNot && len(operands[0].LogicalOp.Operands) == 1 {
			return *operands[0].LogicalOp.Operands[0]
		}
		e.LogicalOp = &ir.LogicalOpExpr{Op: e.LogicalOp.Op, Operands: operands}
		return e

	case ir.ExprComparison:
		left := cleanExpression(*e.Comparison.Left, bag)
		right := cleanExpression(*e.Comparison.Right, bag)
		e.Comparison = &ir.Comparison{Op: e.Comparison.Op, Left: &left, Right: &right}
		return e

	case ir.ExprFunctionCall:
		args := make([]*ir.Expression, len(e.FunctionCall.Args))
		for i, a := range e.FunctionCall.Args {
			cleaned := cleanExpression(*a, bag)
			args[i] = &cleaned
		}
		e.FunctionCall = &ir.FunctionCall{Name: e.FunctionCall.Name, DAXName: e.FunctionCall.DAXName, Args: args}
		return e

	case ir.ExprConditional:
		cond := cleanExpression(*e.Conditional.Cond, bag)
		then := cleanExpression(*e.Conditional.Then, bag)
		els := cleanExpression(*e.Conditional.Else, bag)
		e.Conditional = &ir.Conditional{Cond: &cond, Then: &then, Else: &els}
		return e

	default:
		return e
	}
}

// foldConstantBinary evaluates left op right via expr-lang when both sides
// are numeric constants, returning the folded Constant expression.
func foldConstantBinary(op ir.BinaryOperator, left, right ir.Expression, bag *diagnostics.Bag) (ir.Expression, bool) {
	if left.Kind != ir.ExprConstant || right.Kind != ir.ExprConstant {
		return ir.Expression{}, false
	}
	if left.Constant.Type != ir.ConstNumeric || right.Constant.Type != ir.ConstNumeric {
		return ir.Expression{}, false
	}

	source := fmt.Sprintf("%s %s %s", strconv.FormatFloat(left.Constant.Number, 'g', -1, 64),
		string(op), strconv.FormatFloat(right.Constant.Number, 'g', -1, 64))

	program, err := expr.Compile(source, expr.AsFloat64())
	if err != nil {
		bag.Infof(diagnostics.KindNormalizationWarning, left.Span, "constant fold skipped: %s", err)
		return ir.Expression{}, false
	}
	result, err := expr.Run(program, nil)
	if err != nil {
		bag.Infof(diagnostics.KindNormalizationWarning, left.Span, "constant fold skipped: %s", err)
		return ir.Expression{}, false
	}
	value, ok := result.(float64)
	if !ok {
		return ir.Expression{}, false
	}

	return ir.Expression{
		Kind: ir.ExprConstant,
		Span: left.Span,
		Constant: &ir.Constant{
			Type:   ir.ConstNumeric,
			Number: value,
		},
	}, true
}

// inlineSingleUseCalculations substitutes a Calculation's expression
// directly at its single reference site and drops the Calculation, when
// it is referenced from exactly one place across measures and other
// calculations.
func inlineSingleUseCalculations(q *ir.Query, bag *diagnostics.Bag) *ir.Query {
	out := q.Clone()

	refCount := map[string]int{}
	countRefs := func(e ir.Expression) {
		e.Walk(func(n *ir.Expression) {
			if n.Kind == ir.ExprMeasureRef {
				refCount[n.MeasureRef.Name]++
			}
		})
	}
	for _, c := range out.Calculations {
		countRefs(c.Expression)
	}
	for _, m := range out.Measures {
		if m.Aggregation == ir.AggCustom {
			countRefs(m.Expression)
		}
	}

	byName := map[string]ir.Calculation{}
	for _, c := range out.Calculations {
		byName[c.Name] = c
	}

	var inline func(e ir.Expression, seen map[string]bool) ir.Expression
	inline = func(e ir.Expression, seen map[string]bool) ir.Expression {
		if e.Kind == ir.ExprMeasureRef {
			calc, ok := byName[e.MeasureRef.Name]
			if ok && refCount[e.MeasureRef.Name] == 1 && !seen[e.MeasureRef.Name] {
				seen[e.MeasureRef.Name] = true
				return inline(calc.Expression, seen)
			}
			return e
		}
		// cleanExpression returns freshly built composite nodes, so the
		// references inside them can be replaced without touching q.
		e = cleanExpression(e, diagnostics.NewBag())
		e.Walk(func(n *ir.Expression) {
			if n.Kind == ir.ExprMeasureRef {
				*n = inline(*n, seen)
			}
		})
		return e
	}

	inlined := map[string]bool{}
	for i, c := range out.Calculations {
		c.Expression = inline(c.Expression, map[string]bool{c.Name: true})
		out.Calculations[i] = c
	}
	for i, m := range out.Measures {
		if m.Aggregation != ir.AggCustom {
			continue
		}
		m.Expression = inline(m.Expression, map[string]bool{})
		out.Measures[i] = m
	}

	kept := out.Calculations[:0]
	for _, c := range out.Calculations {
		if refCount[c.Name] == 1 {
			inlined[c.Name] = true
			bag.Infof(diagnostics.KindNormalizationWarning, c.Span,
				"inlined single-use calculation %q", c.Name)
			continue
		}
		kept = append(kept, c)
	}
	out.Calculations = kept

	return out
}

var crossJoinOptimizationPass = &Pass{
	Name:     "crossjoin-optimization",
	Doc:      "Coalesces exact duplicate dimensions (same hierarchy, level, and member selection) surfaced by independent CrossJoin branches.",
	MinLevel: LevelModerate,
	Run:      runCrossJoinOptimization,
}

func runCrossJoinOptimization(q *ir.Query, bag *diagnostics.Bag, opts Options) *ir.Query {
	out := q.Clone()

	maxDepth := opts.MaxCrossJoinDepth
	if maxDepth <= 0 {
		maxDepth = 64
	}

	kept := make([]ir.Dimension, 0, len(out.Dimensions))
	for _, d := range out.Dimensions {
		dup := -1
		for i, existing := range kept {
			if i >= maxDepth {
				break
			}
			if existing.Hierarchy == d.Hierarchy && existing.Level == d.Level &&
				reflect.DeepEqual(existing.Members, d.Members) {
				dup = i
				break
			}
		}
		if dup >= 0 {
			bag.Infof(diagnostics.KindNormalizationWarning, d.Span,
				"coalesced duplicate crossjoin dimension %s.%s", d.Hierarchy.Table, d.Level.Level)
			continue
		}
		kept = append(kept, d)
	}
	out.Dimensions = kept

	return out
}

var validatePass = &Pass{
	Name:     validatePassName,
	Doc:      "Reruns the §4.2 invariant checks and records the query's final validity.",
	MinLevel: LevelNone,
	Run:      runValidate,
}

func runValidate(q *ir.Query, bag *diagnostics.Bag, _ Options) *ir.Query {
	ir.Validate(q, bag)
	return q
}
