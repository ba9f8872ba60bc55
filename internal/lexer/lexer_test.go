package lexer

import (
	"testing"

	"github.com/dekarrin/vela/internal/source"
	"github.com/dekarrin/vela/internal/token"
	"github.com/stretchr/testify/assert"
)

func lexAll(t *testing.T, src string) []token.Token {
	t.Helper()
	l := New(source.FileID{}, src)
	return l.Lex()
}

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, tk := range toks {
		out[i] = tk.Kind
	}
	return out
}

func Test_Lexer_Keywords(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []token.Kind
	}{
		{"fn decl", "fn main", []token.Kind{token.KwFn, token.Ident, token.EOF}},
		{"let mut", "let mut x", []token.Kind{token.KwLet, token.KwMut, token.Ident, token.EOF}},
		{"ident not keyword prefix", "function", []token.Kind{token.Ident, token.EOF}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			toks := lexAll(t, tc.input)
			assert.Equal(t, tc.expected, kinds(toks))
		})
	}
}

func Test_Lexer_NumberDotField(t *testing.T) {
	toks := lexAll(t, "3.field")
	assert.Equal(t, []token.Kind{token.IntLit, token.Dot, token.Ident, token.EOF}, kinds(toks))
	assert.EqualValues(t, 3, toks[0].IntValue)
}

func Test_Lexer_FloatLiteral(t *testing.T) {
	toks := lexAll(t, "3.14")
	assert.Equal(t, []token.Kind{token.FloatLit, token.EOF}, kinds(toks))
	assert.InDelta(t, 3.14, toks[0].FloatValue, 1e-9)
}

func Test_Lexer_StringEscapes(t *testing.T) {
	toks := lexAll(t, `"a\nb\tc\\d\"e"`)
	require := assert.New(t)
	require.Equal(token.StringLit, toks[0].Kind)
	require.Equal("a\nb\tc\\d\"e", toks[0].StringValue)
}

func Test_Lexer_UnterminatedString(t *testing.T) {
	l := New(source.FileID{}, `"abc`)
	toks := l.Lex()
	require := assert.New(t)
	require.Equal(token.Illegal, toks[0].Kind)
	require.Len(l.Errors(), 1)
}

func Test_Lexer_Operators(t *testing.T) {
	toks := lexAll(t, "&& & | || == = != < <= > >= << >> -> =>")
	assert.Equal(t, []token.Kind{
		token.AmpAmp, token.Amp, token.Pipe, token.PipePipe,
		token.Eq, token.Assign, token.NotEq,
		token.Lt, token.LtEq, token.Gt, token.GtEq,
		token.Shl, token.Shr, token.Arrow, token.FatArrow, token.EOF,
	}, kinds(toks))
}

func Test_Lexer_LineComment(t *testing.T) {
	toks := lexAll(t, "let x // this is ignored\n= 1")
	assert.Equal(t, []token.Kind{token.KwLet, token.Ident, token.Assign, token.IntLit, token.EOF}, kinds(toks))
}

func Test_Lexer_TrackLineColumn(t *testing.T) {
	toks := lexAll(t, "fn\nmain")
	require := assert.New(t)
	require.Equal(1, toks[0].Span.Start.Line)
	require.Equal(2, toks[1].Span.Start.Line)
}

func Test_Lexer_AlwaysEndsWithEOF(t *testing.T) {
	toks := lexAll(t, "")
	require := assert.New(t)
	require.Len(toks, 1)
	require.True(toks[0].IsEOF())
}
