// Package lower turns an mdxparse parse tree into the semantic ir.Query:
// axis assignment, set flattening, hierarchy collapse, CrossJoin expansion,
// WHERE lowering, and calculation extraction. The parse tree is consumed
// once and discarded.
package lower

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/druarnfield/unmdx/diagnostics"
	"github.com/druarnfield/unmdx/internal/mdxlex"
	"github.com/druarnfield/unmdx/internal/mdxparse"
	"github.com/druarnfield/unmdx/ir"
)

// cell is one flattened axis position: a tuple of member refs (length 1 for
// a bare member, length N for a parenthesized tuple).
type cell struct {
	Members []mdxparse.MemberExpr
}

// Lowerer holds the accumulated state for lowering a single query.
type Lowerer struct {
	bag       *diagnostics.Bag
	calcNames map[string]bool
}

// Lower converts a parsed mdxparse.Query into an ir.Query, reporting
// best-effort diagnostics for constructs it cannot faithfully represent
// rather than failing the whole lowering.
func Lower(q *mdxparse.Query, hints []mdxlex.Hint) (*ir.Query, *diagnostics.Bag) {
	l := &Lowerer{bag: diagnostics.NewBag(), calcNames: map[string]bool{}}
	out := &ir.Query{}

	for _, item := range q.With {
		switch {
		case item.Member != nil:
			calc := l.lowerMemberDef(item.Member)
			out.Calculations = append(out.Calculations, calc)
			l.calcNames[strings.ToUpper(calc.Name)] = true
		case item.Set != nil:
			l.bag.Add(diagnostics.Diagnostic{
				Severity: diagnostics.Warning,
				Kind:     diagnostics.KindUnsupportedConstruct,
				Code:     "named_set_inlined_only",
				Message:  "WITH SET \"" + item.Set.Alias + "\" is not lowered; references to the named set are not substituted and contribute no members",
			})
		}
	}

	for _, axis := range q.Select.Axes {
		cells := l.flattenSet(axis.Set)
		measures, dims := l.splitCells(cells)
		out.Measures = append(out.Measures, measures...)
		dims = l.collapseRedundantHierarchies(dims)
		out.Dimensions = append(out.Dimensions, dims...)

		if axis.NonEmpty {
			out.Filters = append(out.Filters, ir.Filter{NonEmpty: &ir.NonEmptyFilter{}})
		}
	}

	if q.Select.Where != nil {
		out.Filters = append(out.Filters, l.lowerWhere(q.Select.Where)...)
	}

	out.Cube = ir.CubeReference{Name: q.Select.Cube.Name}
	for _, h := range hints {
		out.Metadata.Hints = append(out.Metadata.Hints, ir.Hint{Key: h.Key, Value: h.Value})
	}
	applyMeasureTableHints(out, hints)
	out.Metadata.SourceSpan = diagnostics.Span{Start: q.Span, End: q.Span}

	return out, l.bag
}

// applyMeasureTableHints reads MEASURE_TABLE structured comment hints
// ("/* MEASURE_TABLE: MeasureName=TableName */") and records the named
// table on the matching base measure, giving the DAX emitter a concrete
// table to resolve a calculation's DEFINE MEASURE against instead of
// falling back to the cube name (SUPPLEMENTAL FEATURES item 2).
func applyMeasureTableHints(out *ir.Query, hints []mdxlex.Hint) {
	for _, h := range hints {
		if h.Key != "MEASURE_TABLE" {
			continue
		}
		name, table, ok := strings.Cut(h.Value, "=")
		if !ok {
			continue
		}
		name, table = strings.TrimSpace(name), strings.TrimSpace(table)
		for i := range out.Measures {
			if strings.EqualFold(out.Measures[i].Name, name) {
				out.Measures[i].Table = table
			}
		}
	}
}

// ---- WITH MEMBER ----

func (l *Lowerer) lowerMemberDef(def *mdxparse.MemberDef) ir.Calculation {
	name := leafName(def.Path)
	kind := ir.CalcMeasure
	if len(def.Path.Parts) > 0 && !strings.EqualFold(def.Path.Parts[0], "Measures") {
		kind = ir.CalcMember
		l.bag.Add(diagnostics.Diagnostic{
			Severity: diagnostics.Warning,
			Kind:     diagnostics.KindUnsupportedConstruct,
			Code:     "member_calculation_dropped",
			Message:  "calculated member \"" + name + "\" targets a dimension member, not [Measures]; DAX measures are dimensionless so this definition cannot be represented and its expression is recorded for diagnostics only",
		})
	}
	return ir.Calculation{
		Name:         name,
		Kind:         kind,
		Expression:   l.lowerExpr(def.Value),
		FormatString: def.Format,
		Span:         spanOf(def.Span),
	}
}

// ---- axis set flattening ----

func (l *Lowerer) flattenSet(s mdxparse.SetExpr) []cell {
	switch s.Kind {
	case mdxparse.SetBraces:
		var out []cell
		for _, el := range s.Elements {
			out = append(out, l.flattenElement(el)...)
		}
		return out
	case mdxparse.SetMember:
		if s.Member == nil {
			return nil
		}
		return []cell{{Members: []mdxparse.MemberExpr{*s.Member}}}
	case mdxparse.SetParen:
		if s.Inner == nil {
			return nil
		}
		return l.flattenSet(*s.Inner)
	case mdxparse.SetBinOp:
		return l.flattenBinOp(s)
	case mdxparse.SetFuncCall:
		return l.flattenFuncCall(s.FuncCall)
	}
	return nil
}

func (l *Lowerer) flattenElement(el mdxparse.SetElement) []cell {
	switch {
	case el.Member != nil:
		return []cell{{Members: []mdxparse.MemberExpr{*el.Member}}}
	case el.Tuple != nil:
		return []cell{{Members: append([]mdxparse.MemberExpr(nil), el.Tuple.Members...)}}
	case el.Set != nil:
		return l.flattenSet(*el.Set)
	case el.Range != nil:
		l.bag.Add(diagnostics.Diagnostic{
			Severity: diagnostics.Warning,
			Kind:     diagnostics.KindUnsupportedConstruct,
			Code:     "member_range_approximated",
			Message:  "member range \"" + leafName(el.Range.From) + ":" + leafName(el.Range.To) + "\" cannot be enumerated without cube metadata; lowered to its two endpoints only",
		})
		return []cell{
			{Members: []mdxparse.MemberExpr{el.Range.From}},
			{Members: []mdxparse.MemberExpr{el.Range.To}},
		}
	}
	return nil
}

func (l *Lowerer) flattenBinOp(s mdxparse.SetExpr) []cell {
	if s.Left == nil || s.Right == nil {
		return nil
	}
	left := l.flattenSet(*s.Left)
	right := l.flattenSet(*s.Right)
	switch s.Op {
	case "UNION":
		return append(left, right...)
	default: // CROSSJOIN (explicit "*")
		return crossProduct(left, right)
	}
}

func crossProduct(left, right []cell) []cell {
	if len(left) == 0 {
		return right
	}
	if len(right) == 0 {
		return left
	}
	out := make([]cell, 0, len(left)*len(right))
	for _, a := range left {
		for _, b := range right {
			members := make([]mdxparse.MemberExpr, 0, len(a.Members)+len(b.Members))
			members = append(members, a.Members...)
			members = append(members, b.Members...)
			out = append(out, cell{Members: members})
		}
	}
	return out
}

func (l *Lowerer) flattenFuncCall(fc *mdxparse.FuncCallExpr) []cell {
	if fc == nil {
		return nil
	}
	name := strings.ToUpper(fc.Name)
	switch name {
	case "CROSSJOIN":
		var result []cell
		for i, arg := range fc.Args {
			part := l.flattenArgAsSet(arg)
			if i == 0 {
				result = part
				continue
			}
			result = crossProduct(result, part)
		}
		return result
	case "UNION":
		var out []cell
		for _, arg := range fc.Args {
			out = append(out, l.flattenArgAsSet(arg)...)
		}
		return out
	case "HIERARCHIZE", "ORDER":
		if len(fc.Args) == 0 {
			return nil
		}
		return l.flattenArgAsSet(fc.Args[0])
	case "FILTER":
		if len(fc.Args) == 0 {
			return nil
		}
		l.bag.Add(diagnostics.Diagnostic{
			Severity: diagnostics.Warning,
			Kind:     diagnostics.KindUnsupportedConstruct,
			Code:     "filter_predicate_dropped",
			Message:  "FILTER()'s boolean predicate cannot be evaluated without cube data; the unfiltered set is used instead",
		})
		return l.flattenArgAsSet(fc.Args[0])
	case "TOPCOUNT", "BOTTOMCOUNT":
		if len(fc.Args) == 0 {
			return nil
		}
		l.bag.Add(diagnostics.Diagnostic{
			Severity: diagnostics.Warning,
			Kind:     diagnostics.KindUnsupportedConstruct,
			Code:     "topcount_order_dropped",
			Message:  name + "'s ranking expression is not evaluated; only the count limit is preserved",
		})
		return l.flattenArgAsSet(fc.Args[0])
	case "DESCENDANTS":
		l.bag.Add(diagnostics.Diagnostic{
			Severity: diagnostics.Info,
			Kind:     diagnostics.KindNormalizationWarning,
			Code:     "descendants_as_dimension",
			Message:  "DESCENDANTS() is lowered directly to a DESCENDANTS member selection rather than enumerated",
		})
		return nil // handled specially by splitCells via descendantsDimension
	case "EXCEPT", "INTERSECT":
		l.bag.Add(diagnostics.Diagnostic{
			Severity: diagnostics.Warning,
			Kind:     diagnostics.KindUnsupportedConstruct,
			Code:     "set_algebra_unsupported",
			Message:  name + "() requires evaluating set membership against cube data, which is out of scope; its first operand is used unmodified",
		})
		if len(fc.Args) == 0 {
			return nil
		}
		return l.flattenArgAsSet(fc.Args[0])
	default:
		l.bag.Add(diagnostics.Diagnostic{
			Severity: diagnostics.Warning,
			Kind:     diagnostics.KindUnsupportedConstruct,
			Code:     "unknown_set_function",
			Message:  "set function \"" + fc.Name + "\" is not recognized and was skipped",
		})
		return nil
	}
}

func (l *Lowerer) flattenArgAsSet(e mdxparse.Expr) []cell {
	switch e.Kind {
	case mdxparse.ExprSet:
		if e.SetArg == nil {
			return nil
		}
		return l.flattenSet(*e.SetArg)
	case mdxparse.ExprMember:
		if e.Member == nil {
			return nil
		}
		return []cell{{Members: []mdxparse.MemberExpr{*e.Member}}}
	case mdxparse.ExprTuple:
		if e.Tuple == nil {
			return nil
		}
		return []cell{{Members: append([]mdxparse.MemberExpr(nil), e.Tuple.Members...)}}
	default:
		return nil
	}
}

// ---- measure vs dimension split ----

func (l *Lowerer) splitCells(cells []cell) ([]ir.Measure, []ir.Dimension) {
	var measures []ir.Measure
	seenMeasure := map[string]int{}

	type dimKey struct{ table, level string }
	dimOrder := []dimKey{}
	dimSel := map[dimKey]*ir.Dimension{}
	specificValues := map[dimKey][]string{}

	addSpecific := func(table, hierarchy, level, name string, span mdxparse.MemberExpr) {
		k := dimKey{table, level}
		if _, ok := dimSel[k]; !ok {
			dimOrder = append(dimOrder, k)
			d := &ir.Dimension{
				Hierarchy: ir.HierarchyReference{Table: table, Hierarchy: hierarchy},
				Level:     ir.LevelReference{Level: level},
				Members:   ir.MemberSelection{Kind: ir.SelectSpecific},
				Span:      spanOf(span.Span),
			}
			dimSel[k] = d
		}
		if !containsString(specificValues[k], name) {
			specificValues[k] = append(specificValues[k], name)
		}
	}

	addWhole := func(table, hierarchy, level string, sel ir.MemberSelection, span mdxparse.MemberExpr) {
		k := dimKey{table, level}
		if _, ok := dimSel[k]; ok {
			return
		}
		dimOrder = append(dimOrder, k)
		dimSel[k] = &ir.Dimension{
			Hierarchy: ir.HierarchyReference{Table: table, Hierarchy: hierarchy},
			Level:     ir.LevelReference{Level: level},
			Members:   sel,
			Span:      spanOf(span.Span),
		}
	}

	for _, c := range cells {
		for _, m := range c.Members {
			if len(m.Parts) == 0 {
				continue
			}
			if strings.EqualFold(m.Parts[0], "Measures") {
				name := leafName(m)
				key := strings.ToUpper(name)
				if idx, ok := seenMeasure[key]; ok {
					if measures[idx].Alias == "" && measures[idx].Name != name {
						measures[idx].Alias = name
					}
					l.bag.Add(diagnostics.Diagnostic{
						Severity: diagnostics.Warning,
						Kind:     diagnostics.KindNormalizationWarning,
						Code:     "duplicate_measure_alias",
						Message:  "measure \"" + name + "\" is selected more than once; the duplicate occurrence is dropped",
						Span:     spanOf(m.Span),
					})
					continue
				}
				seenMeasure[key] = len(measures)
				measures = append(measures, ir.Measure{
					Name:        name,
					Aggregation: l.aggregationFor(name),
					Span:        spanOf(m.Span),
				})
				continue
			}

			table := m.Parts[0]
			hierarchy := table
			if len(m.Parts) >= 2 {
				hierarchy = m.Parts[1]
			}
			level := hierarchy

			switch m.Suffix {
			case mdxparse.SuffixMembers:
				addWhole(table, hierarchy, level, ir.MemberSelection{Kind: ir.SelectAll}, m)
			case mdxparse.SuffixChildren:
				parent := m.Parts[len(m.Parts)-1]
				addWhole(table, hierarchy, level, ir.MemberSelection{Kind: ir.SelectChildren, ParentName: parent}, m)
			default:
				if m.Key != "" {
					addSpecific(table, hierarchy, level, m.Key, m)
					continue
				}
				switch len(m.Parts) {
				case 0, 1:
					// nothing usable without at least table.level
				case 2:
					addWhole(table, hierarchy, level, ir.MemberSelection{Kind: ir.SelectAll}, m)
				default:
					name := m.Parts[len(m.Parts)-1]
					addSpecific(table, hierarchy, level, name, m)
				}
			}
		}
	}

	dims := make([]ir.Dimension, 0, len(dimOrder))
	for _, k := range dimOrder {
		d := dimSel[k]
		if d.Members.Kind == ir.SelectSpecific {
			d.Members.Names = specificValues[k]
		}
		dims = append(dims, *d)
	}
	return measures, dims
}

func (l *Lowerer) aggregationFor(name string) ir.Aggregation {
	if l.calcNames[strings.ToUpper(name)] {
		return ir.AggCustom
	}
	return ir.AggSum
}

// collapseRedundantHierarchies keeps only the last (finest, by source order)
// dimension for each table that was given multiple whole-level selections,
// matching the convention that a cascading list of `.Members` axes from
// coarse to fine names its finest level last.
func (l *Lowerer) collapseRedundantHierarchies(dims []ir.Dimension) []ir.Dimension {
	byTable := map[string][]int{}
	for i, d := range dims {
		if d.Members.Kind != ir.SelectAll {
			continue
		}
		byTable[d.Hierarchy.Table] = append(byTable[d.Hierarchy.Table], i)
	}
	drop := map[int]bool{}
	warned := false
	for _, idxs := range byTable {
		if len(idxs) < 2 {
			continue
		}
		keep := idxs[len(idxs)-1]
		for _, i := range idxs {
			if i != keep {
				drop[i] = true
			}
		}
		if !warned {
			l.bag.Add(diagnostics.Diagnostic{
				Severity: diagnostics.Warning,
				Kind:     diagnostics.KindNormalizationWarning,
				Code:     "redundant_hierarchy_levels",
				Message:  "multiple levels of the same hierarchy were selected on one axis; only the finest level is kept",
			})
			warned = true
		}
	}
	out := make([]ir.Dimension, 0, len(dims))
	for i, d := range dims {
		if !drop[i] {
			out = append(out, d)
		}
	}
	return out
}

func containsString(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func leafName(m mdxparse.MemberExpr) string {
	if m.Key != "" {
		return m.Key
	}
	if len(m.Parts) == 0 {
		return ""
	}
	return m.Parts[len(m.Parts)-1]
}

func spanOf(p lexer.Position) diagnostics.Span {
	return diagnostics.Span{Start: p, End: p}
}
