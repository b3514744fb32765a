package ir

import "github.com/druarnfield/unmdx/diagnostics"

// BinaryOperator enumerates arithmetic operators.
type BinaryOperator string

// Arithmetic operators.
const (
	OpAdd BinaryOperator = "+"
	OpSub BinaryOperator = "-"
	OpMul BinaryOperator = "*"
	OpDiv BinaryOperator = "/"
)

// CompareOperator enumerates comparison operators.
type CompareOperator string

// Comparison operators.
const (
	CmpEq  CompareOperator = "="
	CmpNeq CompareOperator = "<>"
	CmpLt  CompareOperator = "<"
	CmpGt  CompareOperator = ">"
	CmpLte CompareOperator = "<="
	CmpGte CompareOperator = ">="
)

// LogicalOperator enumerates boolean connectives.
type LogicalOperator string

// Logical operators. NOT takes exactly one operand. XOR is a taxonomy
// extension (no DAX-native equivalent; emitters expand it).
const (
	LogAnd LogicalOperator = "AND"
	LogOr  LogicalOperator = "OR"
	LogNot LogicalOperator = "NOT"
	LogXor LogicalOperator = "XOR"
)

// ExpressionKind tags which Expression variant is populated.
type ExpressionKind string

// Expression variants (§3).
const (
	ExprConstant         ExpressionKind = "CONSTANT"
	ExprMeasureRef       ExpressionKind = "MEASURE_REF"
	ExprMemberRef        ExpressionKind = "MEMBER_REF"
	ExprBinaryOp         ExpressionKind = "BINARY_OP"
	ExprComparison       ExpressionKind = "COMPARISON"
	ExprLogicalOp        ExpressionKind = "LOGICAL_OP"
	ExprFunctionCall     ExpressionKind = "FUNCTION_CALL"
	ExprConditional      ExpressionKind = "CONDITIONAL"
)

// ConstantType tags the Go type carried by a Constant expression.
type ConstantType string

// Constant value kinds.
const (
	ConstNumeric ConstantType = "NUMERIC"
	ConstString  ConstantType = "STRING"
	ConstBoolean ConstantType = "BOOLEAN"
)

// Constant holds a literal value of one of the three recognized kinds.
type Constant struct {
	Type    ConstantType
	Number  float64
	Str     string
	Boolean bool
}

// MeasureReference names a measure or calculation by name; resolution
// against Query.Measures/Calculations happens at validation time.
type MeasureReference struct {
	Name string
}

// MemberReference names a single dimension member.
type MemberReference struct {
	Hierarchy HierarchyReference
	Level     LevelReference
	Name      string
}

// BinaryOp is a two-operand arithmetic expression.
type BinaryOp struct {
	Op    BinaryOperator
	Left  *Expression
	Right *Expression
}

// Comparison is a two-operand relational expression.
type Comparison struct {
	Op    CompareOperator
	Left  *Expression
	Right *Expression
}

// LogicalOpExpr is an AND/OR/NOT/XOR-ish boolean combination. XOR is
// represented with Op set to a dedicated string constant since it has no
// DAX-native equivalent and must be emitted as an expanded boolean formula.
type LogicalOpExpr struct {
	Op       LogicalOperator
	Operands []*Expression
}

// FunctionCall covers aggregate functions and time-intelligence stubs.
// DAXName is populated by the lowerer/linter with the DAX equivalent when
// Name resolves to a known time-intelligence function (SUPPLEMENTAL
// FEATURES item 3); for any other function the lowerer copies Name into it
// as a best-effort pass-through. The emitter uses Name verbatim when
// DAXName is empty.
type FunctionCall struct {
	Name    string
	DAXName string
	Args    []*Expression
}

// Conditional covers IIF and flattened CASE expressions.
type Conditional struct {
	Cond *Expression
	Then *Expression
	Else *Expression
}

// Expression is an algebraic tagged union. Exactly one field matching Kind
// is populated; consumers must handle every Kind exhaustively.
type Expression struct {
	Kind ExpressionKind
	Span diagnostics.Span

	Constant     *Constant
	MeasureRef   *MeasureReference
	MemberRef    *MemberReference
	BinaryOp     *BinaryOp
	Comparison   *Comparison
	LogicalOp    *LogicalOpExpr
	FunctionCall *FunctionCall
	Conditional  *Conditional
}

// Walk calls visit on e and recursively on every child expression,
// depth-first, pre-order. Used by the linter's calculation inliner and by
// the calculation dependency graph builder.
func (e *Expression) Walk(visit func(*Expression)) {
	if e == nil {
		return
	}
	visit(e)
	switch e.Kind {
	case ExprBinaryOp:
		e.BinaryOp.Left.Walk(visit)
		e.BinaryOp.Right.Walk(visit)
	case ExprComparison:
		e.Comparison.Left.Walk(visit)
		e.Comparison.Right.Walk(visit)
	case ExprLogicalOp:
		for _, op := range e.LogicalOp.Operands {
			op.Walk(visit)
		}
	case ExprFunctionCall:
		for _, a := range e.FunctionCall.Args {
			a.Walk(visit)
		}
	case ExprConditional:
		e.Conditional.Cond.Walk(visit)
		e.Conditional.Then.Walk(visit)
		e.Conditional.Else.Walk(visit)
	}
}

// MeasureReferences collects the names of every MeasureReference reachable
// from e, used by the calculation dependency graph and table-inference
// (SUPPLEMENTAL FEATURES item 2).
func (e *Expression) MeasureReferences() []string {
	var names []string
	e.Walk(func(n *Expression) {
		if n.Kind == ExprMeasureRef {
			names = append(names, n.MeasureRef.Name)
		}
	})
	return names
}
