package dax_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/druarnfield/unmdx/emit"
	"github.com/druarnfield/unmdx/emit/dax"
	"github.com/druarnfield/unmdx/internal/linter"
	"github.com/druarnfield/unmdx/internal/lower"
	"github.com/druarnfield/unmdx/internal/mdxparse"
)

func compile(t *testing.T, src string) string {
	t.Helper()
	res := mdxparse.Parse(src)
	require.Zero(t, res.Bag.Len(), "parse diagnostics: %v", res.Bag.All())
	q, bag := lower.Lower(res.Query, res.Hints)
	require.Zero(t, bag.Len(), "lower diagnostics: %v", bag.All())
	q, _ = linter.Lint(q, linter.Options{Level: linter.LevelModerate})

	e := emit.Get("dax")
	require.NotNil(t, e, "dax emitter not registered")
	out, err := e.Emit(q)
	require.NoError(t, err)
	return out
}

func TestEmit_SimpleMeasure_S1(t *testing.T) {
	out := compile(t, `SELECT {[Measures].[Sales Amount]} ON 0 FROM [Adventure Works]`)
	assert.Equal(t, "EVALUATE\n{ [Sales Amount] }\n", out)
}

func TestEmit_DimensionGrouping_S2(t *testing.T) {
	out := compile(t, "SELECT{[Measures].[Sales Amount]}ON COLUMNS,\n     {[Product].[Category].Members}    ON    ROWS\nFROM    [Adventure Works]")
	assert.Contains(t, out, "SUMMARIZECOLUMNS(")
	assert.Contains(t, out, "Product[Category]")
	assert.Contains(t, out, `"Sales Amount", [Sales Amount]`)
}

func TestEmit_SpecificMembers_S4(t *testing.T) {
	out := compile(t, `SELECT {[Measures].[Sales Amount]} ON 0,
{[Product].[Category].[Bikes], [Product].[Category].[Accessories]} ON 1
FROM [Adventure Works]`)
	assert.Contains(t, out, "CALCULATETABLE(")
	assert.Contains(t, out, `Product[Category] IN { "Bikes", "Accessories" }`)
}

func TestEmit_CalculatedMeasureDivisionSafety_S5(t *testing.T) {
	out := compile(t, `WITH MEMBER [Measures].[Average Price] AS
  [Measures].[Sales Amount] / [Measures].[Order Quantity]
SELECT {[Measures].[Sales Amount],[Measures].[Order Quantity],[Measures].[Average Price]} ON 0
FROM [Adventure Works]`)
	assert.Contains(t, out, "DEFINE")
	assert.Contains(t, out, "MEASURE 'Adventure Works'[Average Price] = DIVIDE([Sales Amount], [Order Quantity])")
	assert.Contains(t, out, "EVALUATE")
	assert.True(t, strings.Contains(out, "{ [Sales Amount], [Order Quantity], [Average Price] }"))
}

func TestEmit_NonEmptyFilter_S6(t *testing.T) {
	out := compile(t, `SELECT NON EMPTY {{[Measures].[Sales Amount]}} ON 0, NON EMPTY {{{[Product].[Category].Members}}} ON 1 FROM [Adventure Works]`)
	assert.Contains(t, out, "FILTER(")
	assert.Contains(t, out, "[Sales Amount] <> BLANK()")
}

func TestEmit_WhereEqualityWrapsCalculateTable(t *testing.T) {
	out := compile(t, `SELECT {[Measures].[Sales Amount]} ON 0, {[Product].[Category].Members} ON 1 FROM [Adventure Works] WHERE ([Date].[Calendar Year].&[2023])`)
	assert.Contains(t, out, "CALCULATETABLE(")
	assert.Contains(t, out, `'Date'[Calendar Year] = 2023`)
}

func TestEmit_ReservedCubeNameQuotedInDefineMeasure(t *testing.T) {
	out := compile(t, `WITH MEMBER [Measures].[Doubled] AS [Measures].[Sales Amount] * 2
SELECT {[Measures].[Doubled]} ON 0 FROM [Date]`)
	assert.Contains(t, out, "MEASURE 'Date'[Doubled] =")
}

func TestEmit_CalculationTableResolvesFromMeasureTableHint(t *testing.T) {
	src := `/* MEASURE_TABLE: Sales Amount=FactSales */
WITH MEMBER [Measures].[Doubled] AS [Measures].[Sales Amount] * 2
SELECT {[Measures].[Sales Amount],[Measures].[Doubled]} ON 0 FROM [Adventure Works]`

	res := mdxparse.Parse(src)
	require.Zero(t, res.Bag.Len(), "parse diagnostics: %v", res.Bag.All())
	q, bag := lower.Lower(res.Query, res.Hints)
	require.Zero(t, bag.Len(), "lower diagnostics: %v", bag.All())

	e := emit.Get("dax")
	require.NotNil(t, e, "dax emitter not registered")
	out, err := e.Emit(q)
	require.NoError(t, err)

	assert.Contains(t, out, "MEASURE FactSales[Doubled] =")
	if q.Metadata.Diagnostics != nil {
		assert.Empty(t, q.Metadata.Diagnostics.All())
	}
}

func TestEmit_CalculationTableFallsBackToCubeNameWithDiagnostic(t *testing.T) {
	src := `WITH MEMBER [Measures].[Doubled] AS [Measures].[Sales Amount] * 2
SELECT {[Measures].[Sales Amount],[Measures].[Doubled]} ON 0 FROM [Adventure Works]`

	res := mdxparse.Parse(src)
	require.Zero(t, res.Bag.Len(), "parse diagnostics: %v", res.Bag.All())
	q, bag := lower.Lower(res.Query, res.Hints)
	require.Zero(t, bag.Len(), "lower diagnostics: %v", bag.All())

	e := emit.Get("dax")
	require.NotNil(t, e, "dax emitter not registered")
	out, err := e.Emit(q)
	require.NoError(t, err)

	assert.Contains(t, out, "MEASURE 'Adventure Works'[Doubled] =")
	require.Len(t, q.Metadata.Diagnostics.All(), 1)
	assert.Equal(t, "calculation_table_assumption", q.Metadata.Diagnostics.All()[0].Code)
}
