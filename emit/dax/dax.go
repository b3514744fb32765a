// Package dax implements C5, the DAX text emitter: it renders a
// (typically linted) ir.Query as a DAX query string.
package dax

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/druarnfield/unmdx/diagnostics"
	"github.com/druarnfield/unmdx/emit"
	"github.com/druarnfield/unmdx/ir"
)

func init() {
	emit.Register(&Emitter{})
}

// reservedTableWords must be single-quoted even without whitespace, per
// §4.5's minimum list.
var reservedTableWords = map[string]bool{
	"Date": true, "Time": true, "Value": true, "Min": true, "Max": true,
	"Sum": true, "Count": true, "Average": true,
}

// Emitter renders DAX text from an ir.Query.
type Emitter struct {
	// MaxWidth caps line length before argument lists are split one per
	// line. Zero means DefaultMaxLineWidth.
	MaxWidth int
}

func (e *Emitter) Name() string { return "dax" }

// Emit renders q as a DAX query. It never errors: an IR without
// projections renders an empty EVALUATE table constructor, and
// unsupported constructs were already reduced to diagnostics by earlier
// stages.
func (e *Emitter) Emit(q *ir.Query) (string, error) {
	width := e.MaxWidth
	if width <= 0 {
		width = DefaultMaxLineWidth
	}
	f := &formatter{maxWidth: width}

	var b strings.Builder

	if len(q.Calculations) > 0 {
		b.WriteString("DEFINE\n")
		for _, c := range q.Calculations {
			if c.Kind != ir.CalcMeasure {
				continue
			}
			b.WriteString(indentUnit)
			b.WriteString("MEASURE ")
			b.WriteString(escapeTable(calcTable(q, c)))
			b.WriteString("[")
			b.WriteString(c.Name)
			b.WriteString("] = ")
			b.WriteString(renderExpr(c.Expression))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("EVALUATE\n")
	b.WriteString(renderBody(f, q))

	if len(q.OrderBy) > 0 {
		b.WriteString("\nORDER BY ")
		terms := make([]string, len(q.OrderBy))
		for i, ob := range q.OrderBy {
			terms[i] = renderExpr(ob.Expression) + " " + string(ob.Direction)
		}
		b.WriteString(strings.Join(terms, ", "))
	}

	out := strings.TrimRight(b.String(), "\n")
	return out + "\n", nil
}

func renderBody(f *formatter, q *ir.Query) string {
	if len(q.Dimensions) == 0 {
		elems := make([]string, len(q.Measures))
		for i, m := range q.Measures {
			elems[i] = measureRef(m.Name)
		}
		return f.wrapBraces(elems)
	}

	summarizeArgs := make([]string, 0, len(q.Dimensions)+2*len(q.Measures))
	for _, d := range q.Dimensions {
		summarizeArgs = append(summarizeArgs, column(d.Hierarchy.Table, d.Level.Level))
	}
	for _, m := range q.Measures {
		alias := m.Alias
		if alias == "" {
			alias = m.Name
		}
		summarizeArgs = append(summarizeArgs, stringLit(alias), measureRef(m.Name))
	}
	inner := f.wrapCall("SUMMARIZECOLUMNS", summarizeArgs)

	calcFilters := make([]string, 0, len(q.Filters)+len(q.Dimensions))
	for _, d := range q.Dimensions {
		if d.Members.Kind == ir.SelectSpecific && len(d.Members.Names) > 0 {
			calcFilters = append(calcFilters, renderSpecificMemberFilter(d))
		}
	}
	var nonEmptyMeasures []string
	for _, fl := range q.Filters {
		switch {
		case fl.NonEmpty != nil:
			name := fl.NonEmpty.MeasureName
			if name == "" && len(q.Measures) > 0 {
				name = q.Measures[0].Name
			}
			if name != "" {
				nonEmptyMeasures = append(nonEmptyMeasures, name)
			}
		default:
			if rendered := renderFilter(fl); rendered != "" {
				calcFilters = append(calcFilters, rendered)
			}
		}
	}

	table := inner
	if len(calcFilters) > 0 {
		table = f.wrapCall("CALCULATETABLE", append([]string{inner}, calcFilters...))
	}
	for _, name := range nonEmptyMeasures {
		table = f.wrapCall("FILTER", []string{table, measureRef(name) + " <> BLANK()"})
	}
	return table
}

func renderSpecificMemberFilter(d ir.Dimension) string {
	col := column(d.Hierarchy.Table, d.Level.Level)
	if len(d.Members.Names) == 1 {
		return fmt.Sprintf("%s = %s", col, valueLit(d.Members.Names[0]))
	}
	vals := make([]string, len(d.Members.Names))
	for i, n := range d.Members.Names {
		vals[i] = stringLit(n)
	}
	return fmt.Sprintf("%s IN { %s }", col, strings.Join(vals, ", "))
}

func renderFilter(f ir.Filter) string {
	switch {
	case f.Dimension != nil:
		return renderDimensionFilter(f.Dimension)
	case f.Measure != nil:
		return renderMeasureFilter(f.Measure)
	case f.Logical != nil:
		return renderLogicalFilter(f.Logical)
	default:
		return ""
	}
}

func renderDimensionFilter(f *ir.DimensionFilter) string {
	col := column(f.Dimension.Table, f.Level.Level)
	switch f.Operator {
	case ir.OpIn:
		vals := make([]string, len(f.Values))
		for i, v := range f.Values {
			vals[i] = stringLit(v)
		}
		return fmt.Sprintf("%s IN { %s }", col, strings.Join(vals, ", "))
	case ir.OpNotEquals:
		if len(f.Values) == 0 {
			return ""
		}
		return fmt.Sprintf("%s <> %s", col, valueLit(f.Values[0]))
	case ir.OpContains:
		if len(f.Values) == 0 {
			return ""
		}
		return fmt.Sprintf("SEARCH(%s, %s, 1, 0) > 0", stringLit(f.Values[0]), col)
	default: // OpEquals
		if len(f.Values) == 0 {
			return ""
		}
		return fmt.Sprintf("%s = %s", col, valueLit(f.Values[0]))
	}
}

var measureFilterSymbols = map[ir.MeasureFilterOperator]string{
	ir.MFGT:  ">",
	ir.MFLT:  "<",
	ir.MFGTE: ">=",
	ir.MFLTE: "<=",
	ir.MFEQ:  "=",
	ir.MFNEQ: "<>",
}

func renderMeasureFilter(f *ir.MeasureFilter) string {
	return fmt.Sprintf("%s %s %s", measureRef(f.MeasureName), measureFilterSymbols[f.Operator],
		strconv.FormatFloat(f.Value, 'g', -1, 64))
}

func renderLogicalFilter(lf *ir.LogicalFilter) string {
	switch lf.Op {
	case ir.LogNot:
		if len(lf.Operands) != 1 {
			return ""
		}
		return "NOT(" + renderFilter(lf.Operands[0]) + ")"
	case ir.LogXor:
		if len(lf.Operands) != 2 {
			return ""
		}
		a, b := renderFilter(lf.Operands[0]), renderFilter(lf.Operands[1])
		return fmt.Sprintf("((%s) && NOT(%s)) || (NOT(%s) && (%s))", a, b, a, b)
	default:
		joiner := " && "
		if lf.Op == ir.LogOr {
			joiner = " || "
		}
		parts := make([]string, len(lf.Operands))
		for i, op := range lf.Operands {
			parts[i] = renderFilter(op)
		}
		return "(" + strings.Join(parts, joiner) + ")"
	}
}

func renderExpr(e ir.Expression) string {
	switch e.Kind {
	case ir.ExprConstant:
		return renderConstant(e.Constant)
	case ir.ExprMeasureRef:
		return measureRef(e.MeasureRef.Name)
	case ir.ExprMemberRef:
		return valueLit(e.MemberRef.Name)
	case ir.ExprBinaryOp:
		return "(" + renderExpr(*e.BinaryOp.Left) + " " + string(e.BinaryOp.Op) + " " + renderExpr(*e.BinaryOp.Right) + ")"
	case ir.ExprComparison:
		return renderExpr(*e.Comparison.Left) + " " + string(e.Comparison.Op) + " " + renderExpr(*e.Comparison.Right)
	case ir.ExprLogicalOp:
		return renderLogicalExpr(e.LogicalOp)
	case ir.ExprFunctionCall:
		name := e.FunctionCall.DAXName
		if name == "" {
			name = e.FunctionCall.Name
		}
		args := make([]string, len(e.FunctionCall.Args))
		for i, a := range e.FunctionCall.Args {
			args[i] = renderExpr(*a)
		}
		return name + "(" + strings.Join(args, ", ") + ")"
	case ir.ExprConditional:
		return fmt.Sprintf("IF(%s, %s, %s)", renderExpr(*e.Conditional.Cond), renderExpr(*e.Conditional.Then), renderExpr(*e.Conditional.Else))
	default:
		return ""
	}
}

func renderLogicalExpr(l *ir.LogicalOpExpr) string {
	switch l.Op {
	case ir.LogNot:
		if len(l.Operands) != 1 {
			return ""
		}
		return "NOT(" + renderExpr(*l.Operands[0]) + ")"
	case ir.LogXor:
		if len(l.Operands) != 2 {
			return ""
		}
		a, b := renderExpr(*l.Operands[0]), renderExpr(*l.Operands[1])
		return fmt.Sprintf("((%s) && NOT(%s)) || (NOT(%s) && (%s))", a, b, a, b)
	default:
		joiner := " && "
		if l.Op == ir.LogOr {
			joiner = " || "
		}
		parts := make([]string, len(l.Operands))
		for i, op := range l.Operands {
			parts[i] = renderExpr(*op)
		}
		return "(" + strings.Join(parts, joiner) + ")"
	}
}

func renderConstant(c *ir.Constant) string {
	switch c.Type {
	case ir.ConstNumeric:
		return strconv.FormatFloat(c.Number, 'g', -1, 64)
	case ir.ConstBoolean:
		if c.Boolean {
			return "TRUE()"
		}
		return "FALSE()"
	default:
		return stringLit(c.Str)
	}
}

// calcTable resolves the DEFINE MEASURE table for calculation c: the table
// of its first MeasureReference's base measure when that measure carries a
// MEASURE_TABLE hint, falling back to the cube name otherwise. The
// fallback is recorded as a calculation_table_assumption diagnostic since
// it is a guess, not a fact read off the query (SUPPLEMENTAL FEATURES
// item 2).
func calcTable(q *ir.Query, c ir.Calculation) string {
	if refs := c.Expression.MeasureReferences(); len(refs) > 0 {
		for _, m := range q.Measures {
			if strings.EqualFold(m.Name, refs[0]) && m.Table != "" {
				return m.Table
			}
		}
	}

	if q.Metadata.Diagnostics == nil {
		q.Metadata.Diagnostics = diagnostics.NewBag()
	}
	q.Metadata.Diagnostics.Add(diagnostics.Diagnostic{
		Severity: diagnostics.Info,
		Kind:     diagnostics.KindNormalizationWarning,
		Code:     "calculation_table_assumption",
		Message:  "calculation \"" + c.Name + "\" does not unambiguously resolve a table; assuming the cube's own table \"" + q.Cube.Name + "\"",
		Span:     c.Span,
	})
	return q.Cube.Name
}

func escapeTable(name string) string {
	if strings.ContainsAny(name, " \t") || reservedTableWords[name] {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}

func column(table, col string) string {
	return escapeTable(table) + "[" + col + "]"
}

func measureRef(name string) string {
	return "[" + name + "]"
}

func stringLit(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// valueLit renders v unquoted when it parses as a number, per §4.5's
// EQUALS rule, otherwise as an escaped string literal.
func valueLit(v string) string {
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v
	}
	return stringLit(v)
}
