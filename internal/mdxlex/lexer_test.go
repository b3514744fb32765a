package mdxlex_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/druarnfield/unmdx/internal/mdxlex"
)

func tokens(t *testing.T, input string) []lexer.Token {
	t.Helper()
	s := mdxlex.NewState("test.mdx", input)
	var toks []lexer.Token
	for {
		tok, err := s.Next()
		require.NoError(t, err)
		if tok.Type == mdxlex.EOF {
			break
		}
		toks = append(toks, tok)
	}
	return toks
}

func TestLexer_BracketIdentPreservesContents(t *testing.T) {
	toks := tokens(t, "[Measures].[Sales Amount]")
	require.Len(t, toks, 3)
	assert.Equal(t, mdxlex.BracketIdent, toks[0].Type)
	assert.Equal(t, "[Measures]", toks[0].Value)
	assert.Equal(t, mdxlex.BracketIdent, toks[2].Type)
	assert.Equal(t, "[Sales Amount]", toks[2].Value)
}

func TestLexer_KeywordsAreCaseInsensitive(t *testing.T) {
	toks := tokens(t, "select From where")
	require.Len(t, toks, 3)
	for _, tok := range toks {
		assert.Equal(t, mdxlex.Keyword, tok.Type)
	}
	assert.Equal(t, "SELECT", toks[0].Value)
	assert.Equal(t, "FROM", toks[1].Value)
	assert.Equal(t, "WHERE", toks[2].Value)
}

func TestLexer_ScientificNotation(t *testing.T) {
	toks := tokens(t, "1.5E+6 2E-3 42")
	require.Len(t, toks, 3)
	for _, tok := range toks {
		assert.Equal(t, mdxlex.Number, tok.Type)
	}
	assert.Equal(t, "1.5E+6", toks[0].Value)
	assert.Equal(t, "2E-3", toks[1].Value)
}

func TestLexer_StringLiteralsBothQuoteStyles(t *testing.T) {
	toks := tokens(t, `"hello" 'world'`)
	require.Len(t, toks, 2)
	assert.Equal(t, mdxlex.String, toks[0].Type)
	assert.Equal(t, `"hello"`, toks[0].Value)
	assert.Equal(t, `'world'`, toks[1].Value)
}

func TestLexer_ComparisonOperators(t *testing.T) {
	toks := tokens(t, "= <> < > <= >=")
	require.Len(t, toks, 6)
	for _, tok := range toks {
		assert.Equal(t, mdxlex.CompareOp, tok.Type)
	}
}

func TestLexer_CommentsAreStrippedButHintsAreHarvested(t *testing.T) {
	s := mdxlex.NewState("test.mdx", "SELECT /* STORAGE_ENGINE_HINT: TabularEngine */ {} ON 0 FROM [Cube]")
	for {
		tok, err := s.Next()
		require.NoError(t, err)
		if tok.Type == mdxlex.EOF {
			break
		}
		assert.NotEqual(t, mdxlex.Comment, tok.Type)
	}
	require.Len(t, s.Hints, 1)
	assert.Equal(t, "STORAGE_ENGINE_HINT", s.Hints[0].Key)
	assert.Equal(t, "TabularEngine", s.Hints[0].Value)
}

func TestLexer_NestedBlockComments(t *testing.T) {
	s := mdxlex.NewState("test.mdx", "/* outer /* inner */ still outer */ SELECT")
	tok, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, mdxlex.Keyword, tok.Type)
	assert.Equal(t, "SELECT", tok.Value)
}

func TestLexer_LineCommentStyles(t *testing.T) {
	toks := tokens(t, "SELECT -- a dash comment\nFROM // a slash comment\n[Cube]")
	require.Len(t, toks, 3)
	assert.Equal(t, "SELECT", toks[0].Value)
	assert.Equal(t, "FROM", toks[1].Value)
	assert.Equal(t, "[Cube]", toks[2].Value)
}

func TestLexer_UnclosedStringIsAnError(t *testing.T) {
	s := mdxlex.NewState("test.mdx", `"unterminated`)
	_, err := s.Next()
	assert.Error(t, err)
}
