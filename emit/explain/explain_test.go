package explain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/druarnfield/unmdx/emit/explain"
	"github.com/druarnfield/unmdx/internal/linter"
	"github.com/druarnfield/unmdx/internal/lower"
	"github.com/druarnfield/unmdx/internal/mdxparse"
	"github.com/druarnfield/unmdx/ir"
)

func lint(t *testing.T, src string) *ir.Query {
	t.Helper()
	res := mdxparse.Parse(src)
	require.Zero(t, res.Bag.Len(), "parse diagnostics: %v", res.Bag.All())
	q, bag := lower.Lower(res.Query, res.Hints)
	require.Zero(t, bag.Len(), "lower diagnostics: %v", bag.All())
	q, _ = linter.Lint(q, linter.Options{Level: linter.LevelModerate})
	return q
}

func TestExplain_SQL_SimpleMeasure_S1(t *testing.T) {
	q := lint(t, `SELECT {[Measures].[Sales Amount]} ON 0 FROM [Adventure Works]`)
	out, err := explain.Explain(q, explain.FormatSQL, explain.DetailStandard, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "SELECT SUM(Sales Amount) AS Sales Amount")
	assert.Contains(t, out, "FROM Adventure Works")
}

func TestExplain_SQL_DimensionGrouping_S2(t *testing.T) {
	q := lint(t, "SELECT{[Measures].[Sales Amount]}ON COLUMNS,\n     {[Product].[Category].Members}    ON    ROWS\nFROM    [Adventure Works]")
	out, err := explain.Explain(q, explain.FormatSQL, explain.DetailStandard, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Product.Category")
	assert.Contains(t, out, "GROUP BY Product.Category")
}

func TestExplain_Natural_DimensionGrouping_S2(t *testing.T) {
	q := lint(t, "SELECT{[Measures].[Sales Amount]}ON COLUMNS,\n     {[Product].[Category].Members}    ON    ROWS\nFROM    [Adventure Works]")
	out, err := explain.Explain(q, explain.FormatNatural, explain.DetailStandard, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "This query calculates Sales Amount")
	assert.Contains(t, out, "grouped by Product.Category")
}

func TestExplain_JSON_RoundTrips_S4(t *testing.T) {
	q := lint(t, `SELECT {[Measures].[Sales Amount]} ON 0,
{[Product].[Category].[Bikes], [Product].[Category].[Accessories]} ON 1
FROM [Adventure Works]`)
	out, err := explain.Explain(q, explain.FormatJSON, explain.DetailStandard, nil)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "Adventure Works", doc["cube"])
	dims, ok := doc["dimensions"].([]any)
	require.True(t, ok)
	require.Len(t, dims, 1)
}

func TestExplain_JSON_MinimalOmitsCalculations(t *testing.T) {
	q := lint(t, `WITH MEMBER [Measures].[Average Price] AS
  [Measures].[Sales Amount] / [Measures].[Order Quantity]
SELECT {[Measures].[Sales Amount],[Measures].[Order Quantity],[Measures].[Average Price]} ON 0
FROM [Adventure Works]`)

	minimal, err := explain.Explain(q, explain.FormatJSON, explain.DetailMinimal, nil)
	require.NoError(t, err)
	var minDoc map[string]any
	require.NoError(t, json.Unmarshal([]byte(minimal), &minDoc))
	_, present := minDoc["calculations"]
	assert.False(t, present, "minimal detail should omit calculations")

	standard, err := explain.Explain(q, explain.FormatJSON, explain.DetailStandard, nil)
	require.NoError(t, err)
	var stdDoc map[string]any
	require.NoError(t, json.Unmarshal([]byte(standard), &stdDoc))
	calcs, ok := stdDoc["calculations"].([]any)
	require.True(t, ok)
	require.Len(t, calcs, 1)
}

func TestExplain_Markdown_NonEmptyFilter_S6(t *testing.T) {
	q := lint(t, `SELECT NON EMPTY {{[Measures].[Sales Amount]}} ON 0, NON EMPTY {{{[Product].[Category].Members}}} ON 1 FROM [Adventure Works]`)
	out, err := explain.Explain(q, explain.FormatMarkdown, explain.DetailStandard, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "# Query against Adventure Works")
	assert.Contains(t, out, "## Filters")
}

func TestExplain_Markdown_IncludesDAXWhenRequested(t *testing.T) {
	q := lint(t, `SELECT {[Measures].[Sales Amount]} ON 0 FROM [Adventure Works]`)
	out, err := explain.Explain(q, explain.FormatMarkdown, explain.DetailStandard, func(*ir.Query) (string, error) {
		return "EVALUATE\n{ [Sales Amount] }\n", nil
	})
	require.NoError(t, err)
	assert.Contains(t, out, "## DAX")
	assert.Contains(t, out, "```dax")
}
