package lower_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/druarnfield/unmdx/diagnostics"
	"github.com/druarnfield/unmdx/internal/lower"
	"github.com/druarnfield/unmdx/internal/mdxparse"
	"github.com/druarnfield/unmdx/ir"
)

func TestLower_SimpleMeasure_S1(t *testing.T) {
	res := mdxparse.Parse(`SELECT {[Measures].[Sales Amount]} ON 0 FROM [Adventure Works]`)
	require.Zero(t, res.Bag.Len())
	q, bag := lower.Lower(res.Query, res.Hints)
	require.Zero(t, bag.Len(), "unexpected diagnostics: %v", bag.All())
	require.Len(t, q.Measures, 1)
	assert.Equal(t, "Sales Amount", q.Measures[0].Name)
	assert.Empty(t, q.Dimensions)
	assert.Equal(t, "Adventure Works", q.Cube.Name)
}

func TestLower_DimensionGrouping_S2(t *testing.T) {
	res := mdxparse.Parse("SELECT{[Measures].[Sales Amount]}ON COLUMNS,\n     {[Product].[Category].Members}    ON    ROWS\nFROM    [Adventure Works]")
	require.Zero(t, res.Bag.Len())
	q, bag := lower.Lower(res.Query, res.Hints)
	require.Zero(t, bag.Len(), "unexpected diagnostics: %v", bag.All())
	require.Len(t, q.Measures, 1)
	require.Len(t, q.Dimensions, 1)
	d := q.Dimensions[0]
	assert.Equal(t, "Product", d.Hierarchy.Table)
	assert.Equal(t, "Category", d.Level.Level)
	assert.Equal(t, ir.SelectAll, d.Members.Kind)
}

func TestLower_RedundantHierarchyCollapsed_S3(t *testing.T) {
	src := `SELECT {[Measures].[Sales Amount]} ON 0,
{[Geography].[Country].Members,
 [Geography].[State].Members,
 [Geography].[City].Members,
 [Geography].[PostalCode].Members} ON 1
FROM [Adventure Works]
WHERE ([Date].[Calendar Year].&[2023])`
	res := mdxparse.Parse(src)
	require.Zero(t, res.Bag.Len())
	q, bag := lower.Lower(res.Query, res.Hints)

	require.Len(t, q.Dimensions, 1)
	assert.Equal(t, "PostalCode", q.Dimensions[0].Level.Level)
	assert.Equal(t, 1, bag.Len(), "expected exactly one redundant_hierarchy_levels warning: %v", bag.All())

	require.Len(t, q.Filters, 1)
	require.NotNil(t, q.Filters[0].Dimension)
	assert.Equal(t, "Date", q.Filters[0].Dimension.Dimension.Table)
	assert.Equal(t, []string{"2023"}, q.Filters[0].Dimension.Values)
}

func TestLower_SpecificMembers_S4(t *testing.T) {
	src := `SELECT {[Measures].[Sales Amount]} ON 0,
{[Product].[Category].[Bikes], [Product].[Category].[Accessories]} ON 1
FROM [Adventure Works]`
	res := mdxparse.Parse(src)
	require.Zero(t, res.Bag.Len())
	q, bag := lower.Lower(res.Query, res.Hints)
	require.Zero(t, bag.Len(), "unexpected diagnostics: %v", bag.All())

	require.Len(t, q.Dimensions, 1)
	d := q.Dimensions[0]
	assert.Equal(t, ir.SelectSpecific, d.Members.Kind)
	assert.Equal(t, []string{"Bikes", "Accessories"}, d.Members.Names)
}

func TestLower_CalculatedMeasureDivisionSafety_S5(t *testing.T) {
	src := `WITH MEMBER [Measures].[Average Price] AS
  [Measures].[Sales Amount] / [Measures].[Order Quantity]
SELECT {[Measures].[Sales Amount],[Measures].[Order Quantity],[Measures].[Average Price]} ON 0
FROM [Adventure Works]`
	res := mdxparse.Parse(src)
	require.Zero(t, res.Bag.Len())
	q, bag := lower.Lower(res.Query, res.Hints)
	require.Zero(t, bag.Len(), "unexpected diagnostics: %v", bag.All())

	require.Len(t, q.Calculations, 1)
	assert.Equal(t, "Average Price", q.Calculations[0].Name)
	assert.Equal(t, ir.CalcMeasure, q.Calculations[0].Kind)
	require.Equal(t, ir.ExprBinaryOp, q.Calculations[0].Expression.Kind)
	assert.Equal(t, ir.OpDiv, q.Calculations[0].Expression.BinaryOp.Op)

	require.Len(t, q.Measures, 3)
	names := []string{q.Measures[0].Name, q.Measures[1].Name, q.Measures[2].Name}
	assert.Equal(t, []string{"Sales Amount", "Order Quantity", "Average Price"}, names)
	assert.Equal(t, ir.AggCustom, q.Measures[2].Aggregation)
}

func TestLower_NonEmptyFilter_S6(t *testing.T) {
	res := mdxparse.Parse(`SELECT NON EMPTY {{[Measures].[Sales Amount]}} ON 0, NON EMPTY {{{[Product].[Category].Members}}} ON 1 FROM [Adventure Works]`)
	require.Zero(t, res.Bag.Len())
	q, _ := lower.Lower(res.Query, res.Hints)

	nonEmptyCount := 0
	for _, f := range q.Filters {
		if f.NonEmpty != nil {
			nonEmptyCount++
		}
	}
	assert.Equal(t, 2, nonEmptyCount)
}

func TestLower_WhereInPredicate(t *testing.T) {
	res := mdxparse.Parse(`SELECT {[Measures].[Sales Amount]} ON 0 FROM [Adventure Works] WHERE [Product].[Category] IN {[Product].[Category].[Bikes], [Product].[Category].[Accessories]}`)
	require.Zero(t, res.Bag.Len(), "parse diagnostics: %v", res.Bag.All())
	q, bag := lower.Lower(res.Query, res.Hints)
	require.Zero(t, bag.Len(), "lower diagnostics: %v", bag.All())
	require.Len(t, q.Filters, 1)
	require.NotNil(t, q.Filters[0].Dimension)
	assert.Equal(t, ir.OpIn, q.Filters[0].Dimension.Operator)
	assert.ElementsMatch(t, []string{"Bikes", "Accessories"}, q.Filters[0].Dimension.Values)
}

func TestLower_WhereMeasureComparisonAndLogical(t *testing.T) {
	res := mdxparse.Parse(`SELECT {[Measures].[Sales Amount]} ON 0 FROM [Adventure Works] WHERE [Measures].[Sales Amount] > 1000 AND NOT [Date].[Calendar Year].&[2023] IS NULL`)
	require.Zero(t, res.Bag.Len(), "parse diagnostics: %v", res.Bag.All())
	q, bag := lower.Lower(res.Query, res.Hints)
	_ = bag
	require.Len(t, q.Filters, 1)
	require.NotNil(t, q.Filters[0].Logical)
	assert.Equal(t, ir.LogAnd, q.Filters[0].Logical.Op)
	require.Len(t, q.Filters[0].Logical.Operands, 2)
	require.NotNil(t, q.Filters[0].Logical.Operands[0].Measure)
	assert.Equal(t, ir.MFGT, q.Filters[0].Logical.Operands[0].Measure.Operator)
}

func TestLower_DuplicateMeasure_CollapsesWithWarning(t *testing.T) {
	res := mdxparse.Parse(`SELECT {[Measures].[Sales Amount], [Measures].[sales amount]} ON 0 FROM [Adventure Works]`)
	require.Zero(t, res.Bag.Len(), "parse diagnostics: %v", res.Bag.All())
	q, bag := lower.Lower(res.Query, res.Hints)

	want := []ir.Measure{
		{Name: "Sales Amount", Alias: "sales amount", Aggregation: ir.AggSum},
	}
	// Span carries source positions that vary with surrounding whitespace
	// and aren't part of the semantic comparison.
	if diff := cmp.Diff(want, q.Measures, cmpopts.IgnoreFields(ir.Measure{}, "Span")); diff != "" {
		t.Errorf("measures mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, bag.All(), 1)
	got := bag.All()[0]
	assert.Equal(t, diagnostics.Warning, got.Severity)
	assert.Equal(t, diagnostics.KindNormalizationWarning, got.Kind)
	assert.Equal(t, "duplicate_measure_alias", got.Code)
}
