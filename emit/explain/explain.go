// Package explain implements C6: rendering an ir.Query as a human- or
// machine-readable explanation in one of four formats.
package explain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/druarnfield/unmdx/emit"
	"github.com/druarnfield/unmdx/ir"
)

// Format selects the explanation's output shape.
type Format string

// Recognized explanation formats (§4.6).
const (
	FormatSQL       Format = "sql"
	FormatNatural   Format = "natural"
	FormatJSON      Format = "json"
	FormatMarkdown  Format = "markdown"
)

// Detail controls how much of the query's non-essential structure
// (calculations, metadata, hints) is surfaced.
type Detail string

// Recognized detail levels (§4.6).
const (
	DetailMinimal  Detail = "minimal"
	DetailStandard Detail = "standard"
	DetailDetailed Detail = "detailed"
)

// Emitter renders an explanation at a fixed format and detail level. The
// registry holds one instance per format at DetailStandard; callers that
// need a different detail level use Explain directly.
type Emitter struct {
	Format Format
	Detail Detail

	// IncludeDAX, when set, appends the DAX translation to markdown
	// output (§4.6's "optionally including the DAX equivalent").
	IncludeDAX func(*ir.Query) (string, error)
}

func init() {
	for _, f := range []Format{FormatSQL, FormatNatural, FormatJSON, FormatMarkdown} {
		emit.Register(&Emitter{Format: f, Detail: DetailStandard})
	}
}

func (e *Emitter) Name() string { return "explain-" + string(e.Format) }

func (e *Emitter) Emit(q *ir.Query) (string, error) {
	return Explain(q, e.Format, e.Detail, e.IncludeDAX)
}

// Explain renders q in the given format and detail level. includeDAX, if
// non-nil, is invoked to append a DAX equivalent to markdown output.
func Explain(q *ir.Query, format Format, detail Detail, includeDAX func(*ir.Query) (string, error)) (string, error) {
	switch format {
	case FormatSQL:
		return explainSQL(q, detail), nil
	case FormatNatural:
		return explainNatural(q, detail), nil
	case FormatJSON:
		return explainJSON(q, detail)
	case FormatMarkdown:
		return explainMarkdown(q, detail, includeDAX)
	default:
		return "", fmt.Errorf("explain: unknown format %q", format)
	}
}

func aggName(a ir.Aggregation) string {
	switch a {
	case ir.AggSum:
		return "SUM"
	case ir.AggAvg:
		return "AVG"
	case ir.AggCount:
		return "COUNT"
	case ir.AggDistinctCount:
		return "COUNT_DISTINCT"
	case ir.AggMin:
		return "MIN"
	case ir.AggMax:
		return "MAX"
	default:
		return "CUSTOM"
	}
}

func measureSQLExpr(m ir.Measure) string {
	if m.Aggregation == ir.AggCustom {
		return m.Name
	}
	return fmt.Sprintf("%s(%s)", aggName(m.Aggregation), m.Name)
}

func dimensionLabel(d ir.Dimension) string {
	return fmt.Sprintf("%s.%s", d.Hierarchy.Table, d.Level.Level)
}

func filterLabel(f ir.Filter) string {
	switch {
	case f.Dimension != nil:
		return dimensionFilterLabel(f.Dimension)
	case f.Measure != nil:
		return fmt.Sprintf("%s %s %v", f.Measure.MeasureName, measureOpLabel(f.Measure.Operator), f.Measure.Value)
	case f.NonEmpty != nil:
		if f.NonEmpty.MeasureName != "" {
			return fmt.Sprintf("%s IS NOT NULL", f.NonEmpty.MeasureName)
		}
		return "NON EMPTY"
	case f.Logical != nil:
		return logicalFilterLabel(f.Logical)
	default:
		return ""
	}
}

func dimensionFilterLabel(f *ir.DimensionFilter) string {
	col := fmt.Sprintf("%s.%s", f.Dimension.Table, f.Level.Level)
	switch f.Operator {
	case ir.OpIn:
		return fmt.Sprintf("%s IN (%s)", col, strings.Join(f.Values, ", "))
	case ir.OpNotEquals:
		return fmt.Sprintf("%s != %s", col, firstOr(f.Values, ""))
	case ir.OpContains:
		return fmt.Sprintf("%s CONTAINS %s", col, firstOr(f.Values, ""))
	default:
		return fmt.Sprintf("%s = %s", col, firstOr(f.Values, ""))
	}
}

func firstOr(vals []string, def string) string {
	if len(vals) == 0 {
		return def
	}
	return vals[0]
}

func measureOpLabel(op ir.MeasureFilterOperator) string {
	switch op {
	case ir.MFGT:
		return ">"
	case ir.MFLT:
		return "<"
	case ir.MFGTE:
		return ">="
	case ir.MFLTE:
		return "<="
	case ir.MFEQ:
		return "="
	default:
		return "!="
	}
}

func logicalFilterLabel(lf *ir.LogicalFilter) string {
	switch lf.Op {
	case ir.LogNot:
		if len(lf.Operands) == 1 {
			return "NOT (" + filterLabel(lf.Operands[0]) + ")"
		}
	case ir.LogXor:
		if len(lf.Operands) == 2 {
			return fmt.Sprintf("(%s) XOR (%s)", filterLabel(lf.Operands[0]), filterLabel(lf.Operands[1]))
		}
	}
	joiner := " AND "
	if lf.Op == ir.LogOr {
		joiner = " OR "
	}
	parts := make([]string, len(lf.Operands))
	for i, op := range lf.Operands {
		parts[i] = filterLabel(op)
	}
	return "(" + strings.Join(parts, joiner) + ")"
}

func explainSQL(q *ir.Query, detail Detail) string {
	var b strings.Builder

	selectParts := make([]string, 0, len(q.Dimensions)+len(q.Measures))
	for _, d := range q.Dimensions {
		selectParts = append(selectParts, dimensionLabel(d))
	}
	for _, m := range q.Measures {
		alias := m.Alias
		if alias == "" {
			alias = m.Name
		}
		selectParts = append(selectParts, fmt.Sprintf("%s AS %s", measureSQLExpr(m), alias))
	}
	if len(selectParts) == 0 {
		selectParts = []string{"*"}
	}

	fmt.Fprintf(&b, "SELECT %s\n", strings.Join(selectParts, ", "))
	fmt.Fprintf(&b, "FROM %s\n", q.Cube.Name)

	var whereParts, havingParts []string
	for _, f := range q.Filters {
		if f.NonEmpty != nil {
			havingParts = append(havingParts, filterLabel(f)+" IS NOT NULL")
			continue
		}
		whereParts = append(whereParts, filterLabel(f))
	}
	if len(whereParts) > 0 {
		fmt.Fprintf(&b, "WHERE %s\n", strings.Join(whereParts, " AND "))
	}
	if len(q.Dimensions) > 0 {
		groupCols := make([]string, len(q.Dimensions))
		for i, d := range q.Dimensions {
			groupCols[i] = dimensionLabel(d)
		}
		fmt.Fprintf(&b, "GROUP BY %s\n", strings.Join(groupCols, ", "))
	}
	if len(havingParts) > 0 {
		fmt.Fprintf(&b, "HAVING %s\n", strings.Join(havingParts, " AND "))
	}
	if len(q.OrderBy) > 0 {
		terms := make([]string, len(q.OrderBy))
		for i, ob := range q.OrderBy {
			terms[i] = fmt.Sprintf("%s %s", exprLabel(ob.Expression), ob.Direction)
		}
		fmt.Fprintf(&b, "ORDER BY %s\n", strings.Join(terms, ", "))
	}

	if detail != DetailMinimal {
		for _, c := range q.Calculations {
			fmt.Fprintf(&b, "-- calculation %s = %s\n", c.Name, exprLabel(c.Expression))
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func exprLabel(e ir.Expression) string {
	switch e.Kind {
	case ir.ExprConstant:
		if e.Constant == nil {
			return ""
		}
		switch e.Constant.Type {
		case ir.ConstNumeric:
			return fmt.Sprintf("%g", e.Constant.Number)
		case ir.ConstBoolean:
			return fmt.Sprintf("%v", e.Constant.Boolean)
		default:
			return e.Constant.Str
		}
	case ir.ExprMeasureRef:
		return e.MeasureRef.Name
	case ir.ExprMemberRef:
		return e.MemberRef.Name
	case ir.ExprBinaryOp:
		return fmt.Sprintf("(%s %s %s)", exprLabel(*e.BinaryOp.Left), e.BinaryOp.Op, exprLabel(*e.BinaryOp.Right))
	case ir.ExprComparison:
		return fmt.Sprintf("%s %s %s", exprLabel(*e.Comparison.Left), e.Comparison.Op, exprLabel(*e.Comparison.Right))
	case ir.ExprLogicalOp:
		parts := make([]string, len(e.LogicalOp.Operands))
		for i, op := range e.LogicalOp.Operands {
			parts[i] = exprLabel(*op)
		}
		return fmt.Sprintf("(%s %s)", e.LogicalOp.Op, strings.Join(parts, " "))
	case ir.ExprFunctionCall:
		args := make([]string, len(e.FunctionCall.Args))
		for i, a := range e.FunctionCall.Args {
			args[i] = exprLabel(*a)
		}
		return fmt.Sprintf("%s(%s)", e.FunctionCall.Name, strings.Join(args, ", "))
	case ir.ExprConditional:
		return fmt.Sprintf("IF %s THEN %s ELSE %s", exprLabel(*e.Conditional.Cond), exprLabel(*e.Conditional.Then), exprLabel(*e.Conditional.Else))
	default:
		return ""
	}
}

func explainNatural(q *ir.Query, detail Detail) string {
	var b strings.Builder

	measureNames := make([]string, len(q.Measures))
	for i, m := range q.Measures {
		measureNames[i] = m.Name
	}
	if len(measureNames) == 0 {
		b.WriteString("This query returns no measures")
	} else {
		fmt.Fprintf(&b, "This query calculates %s", strings.Join(measureNames, ", "))
	}

	if len(q.Dimensions) > 0 {
		dimNames := make([]string, len(q.Dimensions))
		for i, d := range q.Dimensions {
			dimNames[i] = dimensionLabel(d)
		}
		fmt.Fprintf(&b, " grouped by %s", strings.Join(dimNames, ", "))
	}

	var conditions []string
	for _, f := range q.Filters {
		if f.NonEmpty != nil {
			conditions = append(conditions, "only rows with non-blank values")
			continue
		}
		conditions = append(conditions, filterLabel(f))
	}
	if len(conditions) > 0 {
		fmt.Fprintf(&b, " where %s", strings.Join(conditions, " and "))
	}
	b.WriteString(" from ")
	b.WriteString(q.Cube.Name)
	b.WriteString(".")

	if detail != DetailMinimal && len(q.Calculations) > 0 {
		b.WriteString("\n\nCalculations:\n")
		for _, c := range q.Calculations {
			fmt.Fprintf(&b, "- %s is defined as %s\n", c.Name, exprLabel(c.Expression))
		}
	}
	if detail == DetailDetailed && len(q.Metadata.Hints) > 0 {
		b.WriteString("\nHints:\n")
		for _, h := range q.Metadata.Hints {
			fmt.Fprintf(&b, "- %s: %s\n", h.Key, h.Value)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// explainDoc mirrors the json-format keys from §4.6 exactly.
type explainDoc struct {
	Measures     []measureDoc     `json:"measures"`
	Dimensions   []dimensionDoc   `json:"dimensions"`
	Filters      []string         `json:"filters"`
	Calculations []calculationDoc `json:"calculations,omitempty"`
	Cube         string           `json:"cube"`
	OrderBy      []orderByDoc     `json:"order_by,omitempty"`
	Limit        *limitDoc        `json:"limit,omitempty"`
	Metadata     *metadataDoc     `json:"metadata,omitempty"`
}

type measureDoc struct {
	Name        string `json:"name"`
	Aggregation string `json:"aggregation"`
	Alias       string `json:"alias,omitempty"`
}

type dimensionDoc struct {
	Table    string   `json:"table"`
	Level    string   `json:"level"`
	Kind     string   `json:"kind"`
	Members  []string `json:"members,omitempty"`
}

type calculationDoc struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Expression string `json:"expression"`
}

type orderByDoc struct {
	Expression string `json:"expression"`
	Direction  string `json:"direction"`
}

type limitDoc struct {
	Count     int    `json:"count"`
	Direction string `json:"direction"`
}

type metadataDoc struct {
	Hints         map[string]string `json:"hints,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

func explainJSON(q *ir.Query, detail Detail) (string, error) {
	doc := explainDoc{Cube: q.Cube.Name}

	for _, m := range q.Measures {
		doc.Measures = append(doc.Measures, measureDoc{Name: m.Name, Aggregation: string(m.Aggregation), Alias: m.Alias})
	}
	for _, d := range q.Dimensions {
		doc.Dimensions = append(doc.Dimensions, dimensionDoc{
			Table: d.Hierarchy.Table, Level: d.Level.Level, Kind: string(d.Members.Kind), Members: d.Members.Names,
		})
	}
	for _, f := range q.Filters {
		doc.Filters = append(doc.Filters, filterLabel(f))
	}
	for _, ob := range q.OrderBy {
		doc.OrderBy = append(doc.OrderBy, orderByDoc{Expression: exprLabel(ob.Expression), Direction: string(ob.Direction)})
	}
	if q.Limit != nil {
		doc.Limit = &limitDoc{Count: q.Limit.Count, Direction: string(q.Limit.Direction)}
	}

	if detail != DetailMinimal {
		for _, c := range q.Calculations {
			doc.Calculations = append(doc.Calculations, calculationDoc{Name: c.Name, Kind: string(c.Kind), Expression: exprLabel(c.Expression)})
		}
	}
	if detail == DetailDetailed {
		md := &metadataDoc{CorrelationID: q.Metadata.CorrelationID}
		if len(q.Metadata.Hints) > 0 {
			md.Hints = map[string]string{}
			for _, h := range q.Metadata.Hints {
				md.Hints[h.Key] = h.Value
			}
		}
		doc.Metadata = md
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("explain: marshal json: %w", err)
	}
	return string(out) + "\n", nil
}

func explainMarkdown(q *ir.Query, detail Detail, includeDAX func(*ir.Query) (string, error)) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# Query against %s\n\n", q.Cube.Name)

	b.WriteString("## Measures\n\n")
	for _, m := range q.Measures {
		fmt.Fprintf(&b, "- **%s** (%s)\n", m.Name, aggName(m.Aggregation))
	}

	if len(q.Dimensions) > 0 {
		b.WriteString("\n## Dimensions\n\n")
		for _, d := range q.Dimensions {
			fmt.Fprintf(&b, "- %s — %s\n", dimensionLabel(d), string(d.Members.Kind))
		}
	}

	if len(q.Filters) > 0 {
		b.WriteString("\n## Filters\n\n")
		for _, f := range q.Filters {
			fmt.Fprintf(&b, "- %s\n", filterLabel(f))
		}
	}

	if detail != DetailMinimal && len(q.Calculations) > 0 {
		b.WriteString("\n## Calculations\n\n")
		for _, c := range q.Calculations {
			fmt.Fprintf(&b, "- `%s` = `%s`\n", c.Name, exprLabel(c.Expression))
		}
	}

	if detail == DetailDetailed && len(q.Metadata.Hints) > 0 {
		b.WriteString("\n## Hints\n\n")
		keys := make([]string, 0, len(q.Metadata.Hints))
		byKey := map[string]string{}
		for _, h := range q.Metadata.Hints {
			keys = append(keys, h.Key)
			byKey[h.Key] = h.Value
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- `%s`: %s\n", k, byKey[k])
		}
	}

	if includeDAX != nil {
		daxText, err := includeDAX(q)
		if err == nil && daxText != "" {
			b.WriteString("\n## DAX\n\n```dax\n")
			b.WriteString(strings.TrimRight(daxText, "\n"))
			b.WriteString("\n```\n")
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n", nil
}
