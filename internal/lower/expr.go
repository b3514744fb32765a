package lower

import (
	"strconv"
	"strings"

	"github.com/druarnfield/unmdx/diagnostics"
	"github.com/druarnfield/unmdx/internal/mdxparse"
	"github.com/druarnfield/unmdx/ir"
)

// timeIntelligenceFuncs maps recognized MDX time-intelligence-ish function
// names to their DAX equivalents (SUPPLEMENTAL FEATURES item 3).
var timeIntelligenceFuncs = map[string]string{
	"YTD":                "TOTALYTD",
	"QTD":                "TOTALQTD",
	"MTD":                "TOTALMTD",
	"PARALLELPERIOD":     "PARALLELPERIOD",
	"PREVIOUSMONTH":      "PREVIOUSMONTH",
	"PREVIOUSYEAR":       "PREVIOUSYEAR",
	"SAMEPERIODLASTYEAR": "SAMEPERIODLASTYEAR",
	"DATEADD":            "DATEADD",
}

func (l *Lowerer) lowerExpr(e mdxparse.Expr) ir.Expression {
	switch e.Kind {
	case mdxparse.ExprNumber:
		return ir.Expression{Kind: ir.ExprConstant, Span: spanOf(e.Span), Constant: &ir.Constant{Type: ir.ConstNumeric, Number: e.Number}}
	case mdxparse.ExprString:
		return ir.Expression{Kind: ir.ExprConstant, Span: spanOf(e.Span), Constant: &ir.Constant{Type: ir.ConstString, Str: e.Str}}
	case mdxparse.ExprMember:
		if e.Member == nil {
			return ir.Expression{}
		}
		return l.lowerMemberRefExpr(*e.Member)
	case mdxparse.ExprTuple:
		if e.Tuple == nil || len(e.Tuple.Members) == 0 {
			return ir.Expression{}
		}
		return l.lowerMemberRefExpr(e.Tuple.Members[0])
	case mdxparse.ExprParen:
		if e.Inner == nil {
			return ir.Expression{}
		}
		return l.lowerExpr(*e.Inner)
	case mdxparse.ExprUnary:
		if e.Inner == nil {
			return ir.Expression{}
		}
		inner := l.lowerExpr(*e.Inner)
		zero := ir.Expression{Kind: ir.ExprConstant, Constant: &ir.Constant{Type: ir.ConstNumeric, Number: 0}}
		return ir.Expression{Kind: ir.ExprBinaryOp, Span: spanOf(e.Span), BinaryOp: &ir.BinaryOp{Op: ir.OpSub, Left: &zero, Right: &inner}}
	case mdxparse.ExprBinary:
		return l.lowerBinaryExpr(e)
	case mdxparse.ExprFuncCall:
		return l.lowerFuncCallExpr(e)
	case mdxparse.ExprCase:
		return l.lowerCaseExpr(e)
	case mdxparse.ExprIif:
		return l.lowerIifExpr(e)
	default:
		l.bag.Add(diagnostics.Diagnostic{
			Severity: diagnostics.Warning,
			Kind:     diagnostics.KindUnsupportedConstruct,
			Code:     "expression_form_unsupported",
			Message:  "an expression form could not be lowered and was replaced with an empty string constant",
		})
		return ir.Expression{Kind: ir.ExprConstant, Constant: &ir.Constant{Type: ir.ConstString, Str: ""}}
	}
}

func (l *Lowerer) lowerMemberRefExpr(m mdxparse.MemberExpr) ir.Expression {
	if len(m.Parts) > 0 && strings.EqualFold(m.Parts[0], "Measures") {
		return ir.Expression{Kind: ir.ExprMeasureRef, Span: spanOf(m.Span), MeasureRef: &ir.MeasureReference{Name: leafName(m)}}
	}
	table := ""
	hierarchy := ""
	if len(m.Parts) > 0 {
		table = m.Parts[0]
	}
	if len(m.Parts) > 1 {
		hierarchy = m.Parts[1]
	}
	return ir.Expression{
		Kind: ir.ExprMemberRef,
		Span: spanOf(m.Span),
		MemberRef: &ir.MemberReference{
			Hierarchy: ir.HierarchyReference{Table: table, Hierarchy: hierarchy},
			Level:     ir.LevelReference{Level: hierarchy},
			Name:      leafName(m),
		},
	}
}

func (l *Lowerer) lowerBinaryExpr(e mdxparse.Expr) ir.Expression {
	var left, right ir.Expression
	if e.Left != nil {
		left = l.lowerExpr(*e.Left)
	}
	if e.Right != nil {
		right = l.lowerExpr(*e.Right)
	}
	if e.Op == "&" {
		// string concatenation has no arithmetic DAX operator; represent it
		// as a two-arg CONCATENATE call, left to the emitter to render.
		return ir.Expression{
			Kind: ir.ExprFunctionCall,
			Span: spanOf(e.Span),
			FunctionCall: &ir.FunctionCall{
				Name:    "CONCATENATE",
				DAXName: "CONCATENATE",
				Args:    []*ir.Expression{&left, &right},
			},
		}
	}
	op := ir.BinaryOperator(e.Op)
	return ir.Expression{Kind: ir.ExprBinaryOp, Span: spanOf(e.Span), BinaryOp: &ir.BinaryOp{Op: op, Left: &left, Right: &right}}
}

func (l *Lowerer) lowerFuncCallExpr(e mdxparse.Expr) ir.Expression {
	fc := e.FuncCall
	if fc == nil {
		return ir.Expression{}
	}
	name := strings.ToUpper(fc.Name)
	args := make([]*ir.Expression, 0, len(fc.Args))
	for _, a := range fc.Args {
		lowered := l.lowerExpr(a)
		args = append(args, &lowered)
	}
	daxName, ok := timeIntelligenceFuncs[name]
	if !ok {
		l.bag.Add(diagnostics.Diagnostic{
			Severity: diagnostics.Warning,
			Kind:     diagnostics.KindUnsupportedConstruct,
			Code:     "unsupported_construct",
			Message:  "function \"" + fc.Name + "\" is not a recognized time-intelligence function; it is preserved verbatim using its MDX name",
			Span:     spanOf(e.Span),
		})
		daxName = fc.Name
	}
	return ir.Expression{
		Kind: ir.ExprFunctionCall,
		Span: spanOf(e.Span),
		FunctionCall: &ir.FunctionCall{
			Name:    fc.Name,
			DAXName: daxName,
			Args:    args,
		},
	}
}

// lowerCaseExpr flattens both CASE forms into a right-nested Conditional
// chain of IIF-equivalents, matching DAX's SWITCH/IF idiom.
func (l *Lowerer) lowerCaseExpr(e mdxparse.Expr) ir.Expression {
	ce := e.Case
	if ce == nil || len(ce.Whens) == 0 {
		return ir.Expression{Kind: ir.ExprConstant, Constant: &ir.Constant{Type: ir.ConstString, Str: ""}}
	}

	var elseExpr ir.Expression
	if ce.Else != nil {
		elseExpr = l.lowerExpr(*ce.Else)
	} else {
		elseExpr = ir.Expression{Kind: ir.ExprConstant, Constant: &ir.Constant{Type: ir.ConstString, Str: ""}}
	}

	result := elseExpr
	for i := len(ce.Whens) - 1; i >= 0; i-- {
		when := ce.Whens[i]
		var cond ir.Expression
		switch {
		case when.CondBool != nil:
			cond = l.lowerBoolExprAsExpression(*when.CondBool)
		case when.CondValue != nil && ce.Operand != nil:
			left := l.lowerExpr(*ce.Operand)
			right := l.lowerExpr(*when.CondValue)
			cond = ir.Expression{Kind: ir.ExprComparison, Comparison: &ir.Comparison{Op: ir.CmpEq, Left: &left, Right: &right}}
		default:
			cond = ir.Expression{Kind: ir.ExprConstant, Constant: &ir.Constant{Type: ir.ConstBoolean, Boolean: false}}
		}
		then := l.lowerExpr(when.Result)
		prev := result
		result = ir.Expression{Kind: ir.ExprConditional, Conditional: &ir.Conditional{Cond: &cond, Then: &then, Else: &prev}}
	}
	return result
}

func (l *Lowerer) lowerIifExpr(e mdxparse.Expr) ir.Expression {
	ie := e.Iif
	if ie == nil {
		return ir.Expression{}
	}
	cond := l.lowerBoolExprAsExpression(ie.Cond)
	then := l.lowerExpr(ie.Then)
	els := l.lowerExpr(ie.Else)
	return ir.Expression{Kind: ir.ExprConditional, Span: spanOf(e.Span), Conditional: &ir.Conditional{Cond: &cond, Then: &then, Else: &els}}
}

// lowerBoolExprAsExpression embeds a boolean predicate inside a value
// expression (IIF/CASE conditions), reusing the same BoolExpr lowering the
// WHERE clause uses but producing an ir.Expression instead of an ir.Filter.
func (l *Lowerer) lowerBoolExprAsExpression(b mdxparse.BoolExpr) ir.Expression {
	switch b.Kind {
	case mdxparse.BoolComparison:
		left := l.lowerExprOrZero(b.Left)
		right := l.lowerExprOrZero(b.Right)
		return ir.Expression{Kind: ir.ExprComparison, Comparison: &ir.Comparison{Op: ir.CompareOperator(b.CompareOp), Left: &left, Right: &right}}
	case mdxparse.BoolAnd, mdxparse.BoolOr, mdxparse.BoolXor:
		op := ir.LogAnd
		if b.Kind == mdxparse.BoolOr {
			op = ir.LogOr
		} else if b.Kind == mdxparse.BoolXor {
			op = ir.LogXor
		}
		operands := make([]*ir.Expression, 0, len(b.Operands))
		for _, o := range b.Operands {
			e := l.lowerBoolExprAsExpression(*o)
			operands = append(operands, &e)
		}
		return ir.Expression{Kind: ir.ExprLogicalOp, LogicalOp: &ir.LogicalOpExpr{Op: op, Operands: operands}}
	case mdxparse.BoolNot:
		var operand ir.Expression
		if len(b.Operands) == 1 {
			operand = l.lowerBoolExprAsExpression(*b.Operands[0])
		}
		return ir.Expression{Kind: ir.ExprLogicalOp, LogicalOp: &ir.LogicalOpExpr{Op: ir.LogNot, Operands: []*ir.Expression{&operand}}}
	case mdxparse.BoolParen:
		if b.Inner == nil {
			return ir.Expression{}
		}
		return l.lowerBoolExprAsExpression(*b.Inner)
	default:
		l.bag.Add(diagnostics.Diagnostic{
			Severity: diagnostics.Warning,
			Kind:     diagnostics.KindUnsupportedConstruct,
			Code:     "predicate_form_unsupported",
			Message:  "a BETWEEN/IN/IS predicate inside a value expression is approximated as a constant true",
		})
		return ir.Expression{Kind: ir.ExprConstant, Constant: &ir.Constant{Type: ir.ConstBoolean, Boolean: true}}
	}
}

func (l *Lowerer) lowerExprOrZero(e *mdxparse.Expr) ir.Expression {
	if e == nil {
		return ir.Expression{Kind: ir.ExprConstant, Constant: &ir.Constant{Type: ir.ConstNumeric, Number: 0}}
	}
	return l.lowerExpr(*e)
}

// ---- WHERE lowering ----

func (l *Lowerer) lowerWhere(wc *mdxparse.WhereClause) []ir.Filter {
	if wc == nil || wc.Empty {
		return nil
	}
	var out []ir.Filter
	if wc.Tuple != nil {
		for _, m := range wc.Tuple.Members {
			out = append(out, l.dimensionFilterFromMember(m, ir.OpEquals))
		}
	}
	if wc.Member != nil {
		out = append(out, l.dimensionFilterFromMember(*wc.Member, ir.OpEquals))
	}
	if wc.Logical != nil {
		out = append(out, l.lowerBoolExprToFilter(*wc.Logical))
	}
	return out
}

func (l *Lowerer) dimensionFilterFromMember(m mdxparse.MemberExpr, op ir.FilterOperator) ir.Filter {
	table := ""
	hierarchy := ""
	if len(m.Parts) > 0 {
		table = m.Parts[0]
	}
	if len(m.Parts) > 1 {
		hierarchy = m.Parts[1]
	}
	return ir.Filter{Dimension: &ir.DimensionFilter{
		Dimension: ir.HierarchyReference{Table: table, Hierarchy: hierarchy},
		Level:     ir.LevelReference{Level: hierarchy},
		Operator:  op,
		Values:    []string{leafName(m)},
		Span:      spanOf(m.Span),
	}}
}

func (l *Lowerer) lowerBoolExprToFilter(b mdxparse.BoolExpr) ir.Filter {
	switch b.Kind {
	case mdxparse.BoolComparison:
		return l.comparisonToFilter(b)
	case mdxparse.BoolBetween:
		loFilter := l.comparisonToFilter(mdxparse.BoolExpr{Kind: mdxparse.BoolComparison, CompareOp: ">=", Left: b.Left, Right: b.BetweenLo})
		hiFilter := l.comparisonToFilter(mdxparse.BoolExpr{Kind: mdxparse.BoolComparison, CompareOp: "<=", Left: b.Left, Right: b.BetweenHi})
		return ir.Filter{Logical: &ir.LogicalFilter{Op: ir.LogAnd, Operands: []ir.Filter{loFilter, hiFilter}}}
	case mdxparse.BoolIn:
		if b.Left != nil && b.Left.Kind == mdxparse.ExprMember && b.Left.Member != nil && b.InSet != nil {
			values := l.memberNamesFromSet(*b.InSet)
			m := *b.Left.Member
			table, hierarchy := "", ""
			if len(m.Parts) > 0 {
				table = m.Parts[0]
			}
			if len(m.Parts) > 1 {
				hierarchy = m.Parts[1]
			}
			return ir.Filter{Dimension: &ir.DimensionFilter{
				Dimension: ir.HierarchyReference{Table: table, Hierarchy: hierarchy},
				Level:     ir.LevelReference{Level: hierarchy},
				Operator:  ir.OpIn,
				Values:    values,
				Span:      spanOf(b.Span),
			}}
		}
		return l.unsupportedPredicate("IN predicate")
	case mdxparse.BoolIsNull, mdxparse.BoolIsEmpty:
		if b.Left != nil && b.Left.Kind == mdxparse.ExprMember && b.Left.Member != nil &&
			len(b.Left.Member.Parts) > 0 && strings.EqualFold(b.Left.Member.Parts[0], "Measures") {
			return ir.Filter{NonEmpty: &ir.NonEmptyFilter{MeasureName: leafName(*b.Left.Member)}}
		}
		return l.unsupportedPredicate("IS NULL/EMPTY predicate")
	case mdxparse.BoolIsLeaf, mdxparse.BoolIsDataMember:
		return l.unsupportedPredicate("IS LEAF/DATAMEMBER predicate")
	case mdxparse.BoolAnd, mdxparse.BoolOr, mdxparse.BoolXor:
		op := ir.LogAnd
		if b.Kind == mdxparse.BoolOr {
			op = ir.LogOr
		} else if b.Kind == mdxparse.BoolXor {
			op = ir.LogXor
		}
		operands := make([]ir.Filter, 0, len(b.Operands))
		for _, o := range b.Operands {
			operands = append(operands, l.lowerBoolExprToFilter(*o))
		}
		return ir.Filter{Logical: &ir.LogicalFilter{Op: op, Operands: operands, Span: spanOf(b.Span)}}
	case mdxparse.BoolNot:
		var operand ir.Filter
		if len(b.Operands) == 1 {
			operand = l.lowerBoolExprToFilter(*b.Operands[0])
		}
		return ir.Filter{Logical: &ir.LogicalFilter{Op: ir.LogNot, Operands: []ir.Filter{operand}, Span: spanOf(b.Span)}}
	case mdxparse.BoolParen:
		if b.Inner == nil {
			return ir.Filter{}
		}
		return l.lowerBoolExprToFilter(*b.Inner)
	default:
		return l.unsupportedPredicate("predicate")
	}
}

func (l *Lowerer) unsupportedPredicate(what string) ir.Filter {
	l.bag.Add(diagnostics.Diagnostic{
		Severity: diagnostics.Warning,
		Kind:     diagnostics.KindUnsupportedConstruct,
		Code:     "where_predicate_unsupported",
		Message:  what + " could not be lowered to a filter and was dropped",
	})
	return ir.Filter{}
}

func (l *Lowerer) comparisonToFilter(b mdxparse.BoolExpr) ir.Filter {
	if b.Left == nil || b.Right == nil {
		return l.unsupportedPredicate("comparison")
	}
	if b.Left.Kind == mdxparse.ExprMember && b.Left.Member != nil {
		m := *b.Left.Member
		if len(m.Parts) > 0 && strings.EqualFold(m.Parts[0], "Measures") {
			return l.measureComparisonFilter(leafName(m), b.CompareOp, b.Right)
		}
		op := ir.OpEquals
		if b.CompareOp == "<>" {
			op = ir.OpNotEquals
		}
		table, hierarchy := "", ""
		if len(m.Parts) > 0 {
			table = m.Parts[0]
		}
		if len(m.Parts) > 1 {
			hierarchy = m.Parts[1]
		}
		return ir.Filter{Dimension: &ir.DimensionFilter{
			Dimension: ir.HierarchyReference{Table: table, Hierarchy: hierarchy},
			Level:     ir.LevelReference{Level: hierarchy},
			Operator:  op,
			Values:    []string{literalText(*b.Right)},
			Span:      spanOf(b.Span),
		}}
	}
	return l.unsupportedPredicate("comparison")
}

func (l *Lowerer) measureComparisonFilter(name, op string, right *mdxparse.Expr) ir.Filter {
	var mfop ir.MeasureFilterOperator
	switch op {
	case "=":
		mfop = ir.MFEQ
	case "<>":
		mfop = ir.MFNEQ
	case "<":
		mfop = ir.MFLT
	case ">":
		mfop = ir.MFGT
	case "<=":
		mfop = ir.MFLTE
	case ">=":
		mfop = ir.MFGTE
	default:
		mfop = ir.MFEQ
	}
	value := 0.0
	if right != nil && right.Kind == mdxparse.ExprNumber {
		value = right.Number
	} else if right != nil && right.Kind == mdxparse.ExprString {
		if f, err := strconv.ParseFloat(right.Str, 64); err == nil {
			value = f
		}
	}
	return ir.Filter{Measure: &ir.MeasureFilter{MeasureName: name, Operator: mfop, Value: value}}
}

func (l *Lowerer) memberNamesFromSet(s mdxparse.SetExpr) []string {
	cells := l.flattenSet(s)
	var out []string
	for _, c := range cells {
		for _, m := range c.Members {
			out = append(out, leafName(m))
		}
	}
	return out
}

func literalText(e mdxparse.Expr) string {
	switch e.Kind {
	case mdxparse.ExprString:
		return e.Str
	case mdxparse.ExprNumber:
		return strconv.FormatFloat(e.Number, 'g', -1, 64)
	case mdxparse.ExprMember:
		if e.Member != nil {
			return leafName(*e.Member)
		}
	}
	return ""
}
