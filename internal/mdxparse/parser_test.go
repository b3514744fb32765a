package mdxparse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/druarnfield/unmdx/internal/mdxparse"
)

func TestParse_SimpleMeasure_S1(t *testing.T) {
	res := mdxparse.Parse(`SELECT {[Measures].[Sales Amount]} ON 0 FROM [Adventure Works]`)
	require.Zero(t, res.Bag.Len(), "unexpected diagnostics: %v", res.Bag.All())
	require.Len(t, res.Query.Select.Axes, 1)

	axis := res.Query.Select.Axes[0]
	require.Equal(t, 0, axis.Axis.Number)
	require.True(t, axis.Axis.HasNum)
	require.Equal(t, mdxparse.SetBraces, axis.Set.Kind)
	require.Len(t, axis.Set.Elements, 1)
	member := axis.Set.Elements[0].Member
	require.NotNil(t, member)
	assert.Equal(t, []string{"Measures", "Sales Amount"}, member.Parts)

	assert.Equal(t, "Adventure Works", res.Query.Select.Cube.Name)
}

func TestParse_MessySpacingDimension_S2(t *testing.T) {
	res := mdxparse.Parse("SELECT{[Measures].[Sales Amount]}ON COLUMNS,\n     {[Product].[Category].Members}    ON    ROWS\nFROM    [Adventure Works]")
	require.Zero(t, res.Bag.Len(), "unexpected diagnostics: %v", res.Bag.All())
	require.Len(t, res.Query.Select.Axes, 2)

	cols := res.Query.Select.Axes[0]
	assert.Equal(t, "COLUMNS", cols.Axis.Name)

	rows := res.Query.Select.Axes[1]
	assert.Equal(t, "ROWS", rows.Axis.Name)
	require.Len(t, rows.Set.Elements, 1)
	member := rows.Set.Elements[0].Member
	require.NotNil(t, member)
	assert.Equal(t, []string{"Product", "Category"}, member.Parts)
	assert.Equal(t, mdxparse.SuffixMembers, member.Suffix)
}

func TestParse_RedundantHierarchyLevels_S3(t *testing.T) {
	src := `SELECT {[Measures].[Sales Amount]} ON 0,
{[Geography].[Country].Members,
 [Geography].[State].Members,
 [Geography].[City].Members,
 [Geography].[PostalCode].Members} ON 1
FROM [Adventure Works]
WHERE ([Date].[Calendar Year].&[2023])`
	res := mdxparse.Parse(src)
	require.Zero(t, res.Bag.Len(), "unexpected diagnostics: %v", res.Bag.All())

	rows := res.Query.Select.Axes[1]
	require.Len(t, rows.Set.Elements, 4)

	require.NotNil(t, res.Query.Select.Where)
	require.NotNil(t, res.Query.Select.Where.Tuple)
	tuple := res.Query.Select.Where.Tuple
	require.Len(t, tuple.Members, 1)
	assert.Equal(t, []string{"Date", "Calendar Year"}, tuple.Members[0].Parts)
	assert.Equal(t, "2023", tuple.Members[0].Key)
}

func TestParse_SpecificMembersSelection_S4(t *testing.T) {
	src := `SELECT {[Measures].[Sales Amount]} ON 0,
{[Product].[Category].[Bikes], [Product].[Category].[Accessories]} ON 1
FROM [Adventure Works]`
	res := mdxparse.Parse(src)
	require.Zero(t, res.Bag.Len(), "unexpected diagnostics: %v", res.Bag.All())

	rows := res.Query.Select.Axes[1]
	require.Len(t, rows.Set.Elements, 2)
	first := rows.Set.Elements[0].Member
	require.NotNil(t, first)
	assert.Equal(t, []string{"Product", "Category", "Bikes"}, first.Parts)
}

func TestParse_CalculatedMeasureDivisionSafety_S5(t *testing.T) {
	src := `WITH MEMBER [Measures].[Average Price] AS
  [Measures].[Sales Amount] / [Measures].[Order Quantity]
SELECT {[Measures].[Sales Amount],[Measures].[Order Quantity],[Measures].[Average Price]} ON 0
FROM [Adventure Works]`
	res := mdxparse.Parse(src)
	require.Zero(t, res.Bag.Len(), "unexpected diagnostics: %v", res.Bag.All())
	require.Len(t, res.Query.With, 1)

	member := res.Query.With[0].Member
	require.NotNil(t, member)
	assert.Equal(t, []string{"Measures", "Average Price"}, member.Path.Parts)
	require.Equal(t, mdxparse.ExprBinary, member.Value.Kind)
	assert.Equal(t, "/", member.Value.Op)

	axis := res.Query.Select.Axes[0]
	require.Len(t, axis.Set.Elements, 3)
}

func TestParse_NonEmptyFilter_S6(t *testing.T) {
	res := mdxparse.Parse(`SELECT NON EMPTY {{[Measures].[Sales Amount]}} ON 0, NON EMPTY {{{[Product].[Category].Members}}} ON 1 FROM [Adventure Works]`)
	require.Zero(t, res.Bag.Len(), "unexpected diagnostics: %v", res.Bag.All())
	require.Len(t, res.Query.Select.Axes, 2)
	assert.True(t, res.Query.Select.Axes[0].NonEmpty)
	assert.True(t, res.Query.Select.Axes[1].NonEmpty)

	// triple-nested braces: SetBraces -> element Set -> SetBraces -> ...
	outer := res.Query.Select.Axes[1].Set
	require.Equal(t, mdxparse.SetBraces, outer.Kind)
	require.Len(t, outer.Elements, 1)
	require.NotNil(t, outer.Elements[0].Set)
}

func TestParse_MissingFromProducesDiagnosticAndRecovers(t *testing.T) {
	res := mdxparse.Parse(`SELECT {[Measures].[Sales Amount]} ON 0 [Adventure Works]`)
	require.NotZero(t, res.Bag.Len())
	assert.Equal(t, mdxparse.SuggestMissingFrom, res.Bag.All()[0].Suggestion)
}

func TestParse_DuplicateAxisIsDiagnosed(t *testing.T) {
	res := mdxparse.Parse(`SELECT {[Measures].[Sales Amount]} ON 0, {[Measures].[Order Quantity]} ON 0 FROM [Adventure Works]`)
	found := false
	for _, d := range res.Bag.All() {
		if d.Suggestion == mdxparse.SuggestDuplicateAxis {
			found = true
		}
	}
	assert.True(t, found, "expected a duplicate-axis diagnostic, got: %v", res.Bag.All())
}

func TestParse_WhereLogicalExpression(t *testing.T) {
	res := mdxparse.Parse(`SELECT {[Measures].[Sales Amount]} ON 0 FROM [Adventure Works] WHERE [Measures].[Sales Amount] > 1000 AND NOT [Date].[Calendar Year].&[2023] IS NULL`)
	require.Zero(t, res.Bag.Len(), "unexpected diagnostics: %v", res.Bag.All())
	require.NotNil(t, res.Query.Select.Where)
	require.NotNil(t, res.Query.Select.Where.Logical)
	assert.Equal(t, mdxparse.BoolAnd, res.Query.Select.Where.Logical.Kind)
}

func TestParse_CaseExprSearchedForm(t *testing.T) {
	src := `WITH MEMBER [Measures].[Tier] AS
  CASE WHEN [Measures].[Sales Amount] > 1000 THEN "High" ELSE "Low" END
SELECT {[Measures].[Tier]} ON 0 FROM [Adventure Works]`
	res := mdxparse.Parse(src)
	require.Zero(t, res.Bag.Len(), "unexpected diagnostics: %v", res.Bag.All())
	member := res.Query.With[0].Member
	require.Equal(t, mdxparse.ExprCase, member.Value.Kind)
	require.Nil(t, member.Value.Case.Operand)
	require.Len(t, member.Value.Case.Whens, 1)
	assert.NotNil(t, member.Value.Case.Whens[0].CondBool)
}

func TestParse_CrossJoinSetFunction(t *testing.T) {
	res := mdxparse.Parse(`SELECT {[Measures].[Sales Amount]} ON 0, CROSSJOIN({[Product].[Category].Members}, {[Date].[Calendar Year].Members}) ON 1 FROM [Adventure Works]`)
	require.Zero(t, res.Bag.Len(), "unexpected diagnostics: %v", res.Bag.All())
	rows := res.Query.Select.Axes[1].Set
	require.Equal(t, mdxparse.SetFuncCall, rows.Kind)
	require.NotNil(t, rows.FuncCall)
	assert.Equal(t, "CROSSJOIN", rows.FuncCall.Name)
	require.Len(t, rows.FuncCall.Args, 2)
	assert.Equal(t, mdxparse.ExprSet, rows.FuncCall.Args[0].Kind)
}
