// Package mdxparse hand-rolls a recursive-descent parser over mdxlex's
// token stream, producing a concrete parse tree with source spans and
// error-recovery diagnostics. The parse tree is considered internal: per
// the data model's lifecycle rule, it should exist only long enough for the
// lowerer to consume it once.
package mdxparse

import "github.com/alecthomas/participle/v2/lexer"

// Query is the top-level parse tree node: an optional WITH section
// followed by the SELECT statement.
type Query struct {
	With   []WithItem
	Select SelectStmt
	Span   lexer.Position
}

// WithItem is either a MEMBER or SET definition from the WITH clause.
type WithItem struct {
	Member *MemberDef
	Set    *SetDef
}

// MemberDef is `MEMBER member_path AS value_expr (format_clause)?`.
type MemberDef struct {
	Path   MemberExpr
	Value  Expr
	Format string // raw FORMAT_STRING clause text, if present
	Span   lexer.Position
}

// SetDef is `SET set_alias AS set_expr`.
type SetDef struct {
	Alias string
	Value SetExpr
	Span  lexer.Position
}

// SelectStmt is `SELECT axis_spec (, axis_spec)* FROM cube_spec where_clause?`.
type SelectStmt struct {
	Axes  []AxisSpec
	Cube  CubeSpec
	Where *WhereClause
	Span  lexer.Position
}

// AxisSpec is one projected axis: `(NON EMPTY)? set_expr ON axis_id`.
type AxisSpec struct {
	NonEmpty bool
	Set      SetExpr
	Axis     AxisID
	Span     lexer.Position
}

// AxisID names a query axis, either symbolically (COLUMNS, ROWS, ...) or by
// ordinal number/AXIS(n).
type AxisID struct {
	Name   string // "COLUMNS", "ROWS", "PAGES", "CHAPTERS", "SECTIONS", or "" if Number set
	Number int
	HasNum bool
}

// CubeSpec names the cube queried by FROM. Sub holds a nested SELECT for
// the `"(" select_stmt ")"` production; when set, Name is empty.
type CubeSpec struct {
	Name string
	Sub  *SelectStmt
	Span lexer.Position
}

// WhereClause is `WHERE ( tuple_expr | member_expr | logical_expr | "(" ")" )`.
type WhereClause struct {
	Tuple   *TupleExpr
	Member  *MemberExpr
	Logical *BoolExpr
	Empty   bool
	Span    lexer.Position
}

// SetExprKind tags the SetExpr variants.
type SetExprKind int

// SetExpr variants.
const (
	SetBraces SetExprKind = iota
	SetFuncCall
	SetMember
	SetBinOp
	SetParen
)

// SetExpr is `"{" set_items? "}" | function_call | member_expr | set_expr
// set_op set_expr | "(" set_expr ")"`.
type SetExpr struct {
	Kind SetExprKind
	Span lexer.Position

	Elements []SetElement  // SetBraces
	FuncCall *FuncCallExpr // SetFuncCall
	Member   *MemberExpr   // SetMember
	Op       string        // SetBinOp: "CROSSJOIN" (explicit or implicit comma-product), "UNION", "EXCEPT", "INTERSECT"
	Left     *SetExpr      // SetBinOp
	Right    *SetExpr      // SetBinOp
	Inner    *SetExpr      // SetParen
}

// SetElement is one item inside `{ ... }`: a nested set, a tuple, a member,
// or a member range `a:b`.
type SetElement struct {
	Set    *SetExpr
	Tuple  *TupleExpr
	Member *MemberExpr
	Range  *MemberRangeExpr
}

// MemberRangeExpr is `a : b`.
type MemberRangeExpr struct {
	From MemberExpr
	To   MemberExpr
}

// TupleExpr is `"(" member_expr ("," member_expr)* ")"`.
type TupleExpr struct {
	Members []MemberExpr
	Span    lexer.Position
}

// MemberSuffixKind tags the optional trailing navigation function on a
// member expression.
type MemberSuffixKind string

// Recognized member navigation suffixes.
const (
	SuffixNone        MemberSuffixKind = ""
	SuffixMembers     MemberSuffixKind = "MEMBERS"
	SuffixChildren    MemberSuffixKind = "CHILDREN"
	SuffixParent      MemberSuffixKind = "PARENT"
	SuffixFirstChild  MemberSuffixKind = "FIRSTCHILD"
	SuffixLastChild   MemberSuffixKind = "LASTCHILD"
	SuffixLead        MemberSuffixKind = "LEAD"
	SuffixLag         MemberSuffixKind = "LAG"
)

// MemberExpr is `part ("." part)*` with an optional trailing navigation
// suffix and an optional key reference `.&[key]`.
type MemberExpr struct {
	Parts  []string // dotted path segments, bracket contents or bare identifiers, in order
	Suffix MemberSuffixKind
	LeadLagN int // argument to .Lead(n)/.Lag(n)
	Key    string // non-empty when a trailing .&[key] was present
	Span   lexer.Position
}

// FuncCallExpr is `NAME "(" (expr ("," expr)*)? ")"`, used both where the
// grammar expects a set_expr (e.g. CROSSJOIN, DESCENDANTS) and where it
// expects a value_expr (aggregate/time-intelligence functions).
type FuncCallExpr struct {
	Name string
	Args []Expr
	Span lexer.Position
}

// ExprKind tags the value-expression variants covered by §4.1's "value
// expressions" production.
type ExprKind int

// Expr variants.
const (
	ExprNumber ExprKind = iota
	ExprString
	ExprMember
	ExprTuple
	ExprFuncCall
	ExprCase
	ExprIif
	ExprParen
	ExprUnary
	ExprBinary
	ExprSet
)

// Expr is a value expression: numeric, string, tuple, member, function
// call, CASE, IIF, unary/binary arithmetic, or a parenthesized sub-expr.
type Expr struct {
	Kind ExprKind
	Span lexer.Position

	Number   float64
	Str      string
	Member   *MemberExpr
	Tuple    *TupleExpr
	FuncCall *FuncCallExpr
	Case     *CaseExpr
	Iif      *IifExpr
	Inner    *Expr  // ExprParen, ExprUnary operand
	UnaryOp  string // "-"
	Op       string // ExprBinary: "+","-","*","/","&"
	Left     *Expr
	Right    *Expr
	SetArg   *SetExpr // ExprSet: a set-valued function argument, e.g. CROSSJOIN's operands
}

// CaseExpr covers both simple (`CASE x WHEN a THEN b ...`) and searched
// (`CASE WHEN cond THEN b ...`) forms; Operand is nil for the searched form.
type CaseExpr struct {
	Operand *Expr
	Whens   []CaseWhen
	Else    *Expr
}

// CaseWhen is one WHEN/THEN arm. Cond is a value (simple form, compared to
// Operand) or a boolean expression (searched form) — the lowerer
// disambiguates using CaseExpr.Operand.
type CaseWhen struct {
	CondValue *Expr
	CondBool  *BoolExpr
	Result    Expr
}

// IifExpr is `IIF(cond, then, else)`.
type IifExpr struct {
	Cond BoolExpr
	Then Expr
	Else Expr
}

// BoolExprKind tags the logical-expression variants used inside WHERE and
// IIF/searched-CASE conditions (§4.1 "logical expressions").
type BoolExprKind int

// BoolExpr variants.
const (
	BoolComparison BoolExprKind = iota
	BoolBetween
	BoolIn
	BoolIsNull
	BoolIsEmpty
	BoolIsLeaf
	BoolIsDataMember
	BoolAnd
	BoolOr
	BoolNot
	BoolXor
	BoolParen
)

// BoolExpr is a boolean-valued expression: a comparison, BETWEEN, IN,
// IS-predicate, logical connective, or parenthesized sub-expression.
type BoolExpr struct {
	Kind BoolExprKind
	Span lexer.Position

	CompareOp string // "=","<>","<",">","<=",">="
	Left      *Expr
	Right     *Expr

	BetweenLo *Expr
	BetweenHi *Expr

	InSet *SetExpr

	Operands []*BoolExpr // AND/OR/XOR (2+) or NOT (1)
	Inner    *BoolExpr   // BoolParen
}
