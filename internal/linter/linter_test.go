package linter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/druarnfield/unmdx/internal/linter"
	"github.com/druarnfield/unmdx/internal/lower"
	"github.com/druarnfield/unmdx/internal/mdxparse"
	"github.com/druarnfield/unmdx/ir"
)

func lowerQuery(t *testing.T, src string, wantCodes ...string) *ir.Query {
	t.Helper()
	res := mdxparse.Parse(src)
	require.Zero(t, res.Bag.Len(), "parse diagnostics: %v", res.Bag.All())
	q, bag := lower.Lower(res.Query, res.Hints)
	var codes []string
	for _, d := range bag.All() {
		codes = append(codes, d.Code)
	}
	require.Equal(t, wantCodes, codes, "lower diagnostics: %v", bag.All())
	return q
}

func TestLint_HierarchyCollapse_S3(t *testing.T) {
	// Synthesize a query the lowerer would not have collapsed on its own
	// (two independent CrossJoin branches each selecting a whole level on
	// the same table), to exercise the linter's own rerun of the rule.
	q := &ir.Query{
		Cube: ir.CubeReference{Name: "Adventure Works"},
		Measures: []ir.Measure{
			{Name: "Sales Amount", Aggregation: ir.AggSum},
		},
		Dimensions: []ir.Dimension{
			{
				Hierarchy: ir.HierarchyReference{Table: "Geography", Hierarchy: "Country"},
				Level:     ir.LevelReference{Level: "Country"},
				Members:   ir.MemberSelection{Kind: ir.SelectAll},
			},
			{
				Hierarchy: ir.HierarchyReference{Table: "Geography", Hierarchy: "City"},
				Level:     ir.LevelReference{Level: "City"},
				Members:   ir.MemberSelection{Kind: ir.SelectAll},
			},
		},
	}

	out, bag := linter.Lint(q, linter.Options{Level: linter.LevelConservative})
	require.Len(t, out.Dimensions, 1)
	assert.Equal(t, "City", out.Dimensions[0].Level.Level)
	assert.NotZero(t, bag.Len(), "expected a normalization warning for the collapse")
}

func TestLint_DedupeMembers(t *testing.T) {
	q := &ir.Query{
		Cube:     ir.CubeReference{Name: "Adventure Works"},
		Measures: []ir.Measure{{Name: "Sales Amount", Aggregation: ir.AggSum}},
		Dimensions: []ir.Dimension{
			{
				Hierarchy: ir.HierarchyReference{Table: "Product", Hierarchy: "Category"},
				Level:     ir.LevelReference{Level: "Category"},
				Members:   ir.MemberSelection{Kind: ir.SelectSpecific, Names: []string{"Bikes", "Accessories", "Bikes"}},
			},
		},
	}

	out, _ := linter.Lint(q, linter.Options{Level: linter.LevelConservative})
	require.Len(t, out.Dimensions, 1)
	assert.Equal(t, []string{"Bikes", "Accessories"}, out.Dimensions[0].Members.Names)
}

func TestLint_RemovesNonEmptyFilterWithNoMeasures(t *testing.T) {
	q := &ir.Query{
		Cube: ir.CubeReference{Name: "Adventure Works"},
		Dimensions: []ir.Dimension{
			{
				Hierarchy: ir.HierarchyReference{Table: "Product", Hierarchy: "Category"},
				Level:     ir.LevelReference{Level: "Category"},
				Members:   ir.MemberSelection{Kind: ir.SelectAll},
			},
		},
		Filters: []ir.Filter{{NonEmpty: &ir.NonEmptyFilter{}}},
	}

	out, _ := linter.Lint(q, linter.Options{Level: linter.LevelConservative})
	assert.Empty(t, out.Filters)
}

func TestLint_CleanCalculations_DivideAndFold(t *testing.T) {
	numerator := ir.Expression{Kind: ir.ExprMeasureRef, MeasureRef: &ir.MeasureReference{Name: "Sales Amount"}}
	denominator := ir.Expression{Kind: ir.ExprMeasureRef, MeasureRef: &ir.MeasureReference{Name: "Order Quantity"}}
	divExpr := ir.Expression{
		Kind:     ir.ExprBinaryOp,
		BinaryOp: &ir.BinaryOp{Op: ir.OpDiv, Left: &numerator, Right: &denominator},
	}

	two := ir.Expression{Kind: ir.ExprConstant, Constant: &ir.Constant{Type: ir.ConstNumeric, Number: 2}}
	three := ir.Expression{Kind: ir.ExprConstant, Constant: &ir.Constant{Type: ir.ConstNumeric, Number: 3}}
	foldExpr := ir.Expression{
		Kind:     ir.ExprBinaryOp,
		BinaryOp: &ir.BinaryOp{Op: ir.OpAdd, Left: &two, Right: &three},
	}

	q := &ir.Query{
		Cube: ir.CubeReference{Name: "Adventure Works"},
		Measures: []ir.Measure{
			{Name: "Sales Amount", Aggregation: ir.AggSum},
			{Name: "Order Quantity", Aggregation: ir.AggSum},
			{Name: "Average Price", Aggregation: ir.AggCustom, Expression: divExpr},
			{Name: "Magic Constant", Aggregation: ir.AggCustom, Expression: foldExpr},
		},
	}

	out, _ := linter.Lint(q, linter.Options{Level: linter.LevelModerate})

	avg := out.Measures[2]
	require.Equal(t, ir.ExprFunctionCall, avg.Expression.Kind)
	assert.Equal(t, "DIVIDE", avg.Expression.FunctionCall.DAXName)

	magic := out.Measures[3]
	require.Equal(t, ir.ExprConstant, magic.Expression.Kind)
	assert.Equal(t, float64(5), magic.Expression.Constant.Number)
}

func TestLint_AggressiveInlinesSingleUseCalculation(t *testing.T) {
	base := ir.Expression{Kind: ir.ExprMeasureRef, MeasureRef: &ir.MeasureReference{Name: "Sales Amount"}}
	hundred := ir.Expression{Kind: ir.ExprConstant, Constant: &ir.Constant{Type: ir.ConstNumeric, Number: 100}}
	helper := ir.Expression{
		Kind:     ir.ExprBinaryOp,
		BinaryOp: &ir.BinaryOp{Op: ir.OpMul, Left: &base, Right: &hundred},
	}

	helperRef := ir.Expression{Kind: ir.ExprMeasureRef, MeasureRef: &ir.MeasureReference{Name: "Helper"}}
	ten := ir.Expression{Kind: ir.ExprConstant, Constant: &ir.Constant{Type: ir.ConstNumeric, Number: 10}}
	finalExpr := ir.Expression{
		Kind:     ir.ExprBinaryOp,
		BinaryOp: &ir.BinaryOp{Op: ir.OpDiv, Left: &helperRef, Right: &ten},
	}

	q := &ir.Query{
		Cube: ir.CubeReference{Name: "Adventure Works"},
		Measures: []ir.Measure{
			{Name: "Sales Amount", Aggregation: ir.AggSum},
		},
		Calculations: []ir.Calculation{
			{Name: "Helper", Kind: ir.CalcMeasure, Expression: helper},
			{Name: "Final", Kind: ir.CalcMeasure, Expression: finalExpr},
		},
	}

	out, _ := linter.Lint(q, linter.Options{Level: linter.LevelAggressive})
	require.Len(t, out.Calculations, 1)
	assert.Equal(t, "Final", out.Calculations[0].Name)
	require.Equal(t, ir.ExprFunctionCall, out.Calculations[0].Expression.Kind)
	assert.Equal(t, "DIVIDE", out.Calculations[0].Expression.FunctionCall.DAXName)
}

func TestLint_IdempotentAcrossLevels(t *testing.T) {
	for _, lvl := range []linter.Level{linter.LevelNone, linter.LevelConservative, linter.LevelModerate, linter.LevelAggressive} {
		q := lowerQuery(t, `SELECT {[Measures].[Sales Amount]} ON 0,
{[Geography].[Country].Members,
 [Geography].[State].Members,
 [Geography].[PostalCode].Members} ON 1
FROM [Adventure Works]`, "redundant_hierarchy_levels")

		once, _ := linter.Lint(q, linter.Options{Level: lvl})
		twice, _ := linter.Lint(once, linter.Options{Level: lvl})

		assert.Equal(t, once.Measures, twice.Measures, "level %s not idempotent on measures", lvl)
		assert.Equal(t, once.Dimensions, twice.Dimensions, "level %s not idempotent on dimensions", lvl)
		assert.Equal(t, once.Filters, twice.Filters, "level %s not idempotent on filters", lvl)
	}
}

func TestLint_DisabledRuleSkipped(t *testing.T) {
	q := &ir.Query{
		Cube:     ir.CubeReference{Name: "Adventure Works"},
		Measures: []ir.Measure{{Name: "Sales Amount", Aggregation: ir.AggSum}},
		Dimensions: []ir.Dimension{
			{
				Hierarchy: ir.HierarchyReference{Table: "Product", Hierarchy: "Category"},
				Level:     ir.LevelReference{Level: "Category"},
				Members:   ir.MemberSelection{Kind: ir.SelectSpecific, Names: []string{"Bikes", "Bikes"}},
			},
		},
	}

	out, _ := linter.Lint(q, linter.Options{
		Level:         linter.LevelConservative,
		DisabledRules: map[string]bool{"dedupe-members": true},
	})
	assert.Equal(t, []string{"Bikes", "Bikes"}, out.Dimensions[0].Members.Names)
}
