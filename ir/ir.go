// Package ir defines the semantic intermediate representation shared by the
// lowerer, linter, and emitters: an immutable-after-build tree describing
// query intent independent of MDX surface syntax.
package ir

import "github.com/druarnfield/unmdx/diagnostics"

// Aggregation enumerates the built-in measure aggregation kinds.
type Aggregation string

// Recognized aggregations. CUSTOM requires Measure.Expression.
const (
	AggSum           Aggregation = "SUM"
	AggAvg           Aggregation = "AVG"
	AggCount         Aggregation = "COUNT"
	AggDistinctCount Aggregation = "DISTINCT_COUNT"
	AggMin           Aggregation = "MIN"
	AggMax           Aggregation = "MAX"
	AggCustom        Aggregation = "CUSTOM"
)

// CalculationKind distinguishes WITH MEMBER targets.
type CalculationKind string

// Recognized calculation kinds. A WITH MEMBER on [Measures] lowers to a
// MEASURE calculation. One targeting a dimension lowers to a MEMBER
// calculation: it stays in Query.Calculations with a warning, and the DAX
// emitter does not define it (DAX measures are dimensionless).
const (
	CalcMeasure CalculationKind = "MEASURE"
	CalcMember  CalculationKind = "MEMBER"
)

// FilterOperator enumerates DimensionFilter comparison operators.
type FilterOperator string

// Dimension filter operators.
const (
	OpIn        FilterOperator = "IN"
	OpEquals    FilterOperator = "EQUALS"
	OpNotEquals FilterOperator = "NOT_EQUALS"
	OpContains  FilterOperator = "CONTAINS"
)

// MeasureFilterOperator enumerates MeasureFilter comparison operators.
type MeasureFilterOperator string

// Measure filter operators.
const (
	MFGT  MeasureFilterOperator = "GT"
	MFLT  MeasureFilterOperator = "LT"
	MFGTE MeasureFilterOperator = "GTE"
	MFLTE MeasureFilterOperator = "LTE"
	MFEQ  MeasureFilterOperator = "EQ"
	MFNEQ MeasureFilterOperator = "NEQ"
)

// CubeReference names the queried cube. Purely symbolic: the lowerer never
// resolves it against a schema.
type CubeReference struct {
	Name     string
	Database string // optional qualifier, e.g. a catalog/server prefix
	Span     diagnostics.Span
}

// Measure is a named aggregated value appearing in the projection.
type Measure struct {
	Name         string
	Aggregation  Aggregation
	Expression   Expression // set only when Aggregation == AggCustom
	Alias        string
	FormatString string
	// Table is the measure's owning fact table, when known from a
	// MEASURE_TABLE structured comment hint. Empty when the source MDX
	// gave no such hint, in which case a calculation referencing this
	// measure falls back to the cube's own name.
	Table string
	Span  diagnostics.Span
}

// HierarchyReference names a hierarchy by its owning table and name.
type HierarchyReference struct {
	Table     string
	Hierarchy string
}

// LevelReference names a single level within a hierarchy.
type LevelReference struct {
	Level string
}

// SelectionKind tags the MemberSelection variants.
type SelectionKind string

// MemberSelection variants (§3).
const (
	SelectAll         SelectionKind = "ALL"
	SelectSpecific    SelectionKind = "SPECIFIC"
	SelectChildren    SelectionKind = "CHILDREN"
	SelectDescendants SelectionKind = "DESCENDANTS"
	SelectRange       SelectionKind = "RANGE"
)

// DescendantsFlag controls which levels DESCENDANTS includes.
type DescendantsFlag string

// Recognized DESCENDANTS flags.
const (
	SelfAndAfter  DescendantsFlag = "SELF_AND_AFTER"
	SelfAndBefore DescendantsFlag = "SELF_AND_BEFORE"
	Leaves        DescendantsFlag = "LEAVES"
)

// MemberSelection is a tagged union over the ways a Dimension can pick
// members out of a hierarchy level. Exactly one of the variant-specific
// fields is meaningful, selected by Kind.
type MemberSelection struct {
	Kind SelectionKind

	// SPECIFIC
	Names []string

	// CHILDREN
	ParentName string

	// DESCENDANTS
	AncestorName string
	LeafLevel    string
	Flag         DescendantsFlag

	// RANGE
	FromName string
	ToName   string
}

// Dimension is one grouping axis in the output.
type Dimension struct {
	Hierarchy HierarchyReference
	Level     LevelReference
	Members   MemberSelection
	Span      diagnostics.Span
}

// Filter is a tagged union over DimensionFilter, MeasureFilter, and
// NonEmptyFilter. Exactly one of the pointer fields is non-nil.
type Filter struct {
	Dimension *DimensionFilter
	Measure   *MeasureFilter
	NonEmpty  *NonEmptyFilter
	// Logical wraps one of the above taxonomy extensions for compound
	// WHERE expressions that don't reduce to a single equality/IN test,
	// per §4.3's "implementations may expand the taxonomy" license.
	Logical *LogicalFilter
}

// DimensionFilter restricts a dimension to a set of member values.
type DimensionFilter struct {
	Dimension HierarchyReference
	Level     LevelReference
	Operator  FilterOperator
	Values    []string
	Span      diagnostics.Span
}

// MeasureFilter restricts rows by a numeric comparison on a measure.
type MeasureFilter struct {
	MeasureName string
	Operator    MeasureFilterOperator
	Value       float64
	Span        diagnostics.Span
}

// NonEmptyFilter drops rows where MeasureName (or any projected measure,
// when MeasureName is empty) is blank.
type NonEmptyFilter struct {
	MeasureName string
	Span        diagnostics.Span
}

// LogicalFilter wraps a boolean combination of filters that cannot be
// flattened into a plain conjunction, emitted by the DAX emitter as a
// CALCULATETABLE boolean filter expression.
type LogicalFilter struct {
	Op       LogicalOperator
	Operands []Filter
	Span     diagnostics.Span
}

// Calculation is a WITH-section definition of MEASURE or MEMBER kind; only
// MEASURE calculations are emitted as DAX measures.
type Calculation struct {
	Name         string
	Kind         CalculationKind
	Expression   Expression
	SolveOrder   *int
	FormatString string
	Span         diagnostics.Span
}

// SortDirection controls ORDER BY direction.
type SortDirection string

// Sort directions.
const (
	Ascending  SortDirection = "ASC"
	Descending SortDirection = "DESC"
)

// OrderBy is one ORDER BY term.
type OrderBy struct {
	Expression Expression
	Direction  SortDirection
}

// LimitDirection distinguishes TopCount from BottomCount.
type LimitDirection string

// Limit directions.
const (
	Top    LimitDirection = "TOP"
	Bottom LimitDirection = "BOTTOM"
)

// Limit caps the number of rows, as produced by TopCount/BottomCount.
type Limit struct {
	Count     int
	Direction LimitDirection
}

// Hint is a structured comment annotation harvested by the lexer. Hints are
// advisory and never alter semantics (§4.1, §4.3).
type Hint struct {
	Key   string
	Value string
}

// QueryMetadata carries everything about a Query that isn't part of its
// observable semantics: hints, accumulated diagnostics, and the source span
// of the whole statement.
type QueryMetadata struct {
	Hints       []Hint
	Diagnostics *diagnostics.Bag
	SourceSpan  diagnostics.Span
	// CorrelationID ties a single pipeline invocation's log lines together;
	// populated by the public API, not by the lowerer.
	CorrelationID string
}

// Query is the IR root. It is built once by the lowerer, rewritten into
// fresh values by each linter pass, and consumed read-only by emitters.
type Query struct {
	Cube         CubeReference
	Measures     []Measure
	Dimensions   []Dimension
	Filters      []Filter
	Calculations []Calculation
	OrderBy      []OrderBy
	Limit        *Limit
	Metadata     QueryMetadata

	// Valid is false once validation (ir.Validate) has recorded any error
	// diagnostic against this Query; downstream stages still run best-effort.
	Valid bool
}

// Clone performs a deep-enough copy for linter passes to return a fresh
// Query without aliasing slices with the input (per §3's "each pass returns
// a new IR" lifecycle rule).
func (q *Query) Clone() *Query {
	if q == nil {
		return nil
	}
	clone := *q
	clone.Measures = append([]Measure(nil), q.Measures...)
	clone.Dimensions = append([]Dimension(nil), q.Dimensions...)
	clone.Filters = append([]Filter(nil), q.Filters...)
	clone.Calculations = append([]Calculation(nil), q.Calculations...)
	clone.OrderBy = append([]OrderBy(nil), q.OrderBy...)
	clone.Metadata.Hints = append([]Hint(nil), q.Metadata.Hints...)
	for i, d := range clone.Dimensions {
		d.Members.Names = append([]string(nil), d.Members.Names...)
		clone.Dimensions[i] = d
	}
	if q.Limit != nil {
		l := *q.Limit
		clone.Limit = &l
	}
	return &clone
}
