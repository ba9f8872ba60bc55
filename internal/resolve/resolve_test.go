package resolve

import (
	"testing"

	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/lexer"
	"github.com/dekarrin/vela/internal/parser"
	"github.com/dekarrin/vela/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFile(t *testing.T, src string) *ast.File {
	t.Helper()
	m := source.NewMap()
	fid := m.Add("test.vl", src)
	toks := lexer.New(fid, src).Lex()
	p := parser.New(fid, toks)
	f := p.ParseFile()
	require.Empty(t, p.Diagnostics().All())
	return f
}

func Test_Resolve_identifierFindsDeclaration(t *testing.T) {
	assert := assert.New(t)
	f := parseFile(t, "fn f(a: i32) -> i32 { let b = a; b }")

	r := New()
	r.Resolve(f)
	assert.Empty(r.Diagnostics().All())

	tail := f.Items[0].Body.Tail
	require.NotEqual(t, 0, tail.ResolvedSymbol) // sanity: field touched
	sym := r.Table().Symbol(SymbolID(tail.ResolvedSymbol))
	require.NotNil(t, sym)
	assert.Equal("b", sym.Name)
}

func Test_Resolve_undefinedIdentifier(t *testing.T) {
	assert := assert.New(t)
	f := parseFile(t, "fn f() -> i32 { undefined_name }")

	r := New()
	r.Resolve(f)
	require.Len(t, r.Diagnostics().All(), 1)
	assert.Contains(r.Diagnostics().All()[0].Message, "undefined_name")
}

func Test_Resolve_undefinedIdentifierSuggestsCloseName(t *testing.T) {
	assert := assert.New(t)
	f := parseFile(t, "fn f() -> i32 { let length = 1; lenght }")

	r := New()
	r.Resolve(f)
	require.Len(t, r.Diagnostics().All(), 1)
	d := r.Diagnostics().All()[0]
	require.Len(t, d.Suggestions, 1)
	assert.Contains(d.Suggestions[0], "length")
}

func Test_Resolve_duplicateDefinitionInSameScope(t *testing.T) {
	assert := assert.New(t)
	f := parseFile(t, "fn f() { let x = 1; let x = 2; }")

	r := New()
	r.Resolve(f)
	require.Len(t, r.Diagnostics().All(), 1)
	assert.Contains(r.Diagnostics().All()[0].Message, "duplicate")
}

func Test_Resolve_shadowingAcrossBlocksIsAllowed(t *testing.T) {
	assert := assert.New(t)
	f := parseFile(t, "fn f() -> i32 { let x = 1; { let x = 2; x } }")

	r := New()
	r.Resolve(f)
	assert.Empty(r.Diagnostics().All())
}
