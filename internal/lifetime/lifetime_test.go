package lifetime

import (
	"testing"

	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/infer"
	"github.com/dekarrin/vela/internal/lexer"
	"github.com/dekarrin/vela/internal/parser"
	"github.com/dekarrin/vela/internal/resolve"
	"github.com/dekarrin/vela/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkSrc(t *testing.T, src string) (*ast.File, *Checker) {
	t.Helper()
	m := source.NewMap()
	fid := m.Add("test.vl", src)
	toks := lexer.New(fid, src).Lex()
	p := parser.New(fid, toks)
	f := p.ParseFile()
	require.Empty(t, p.Diagnostics().All())

	r := resolve.New()
	r.Resolve(f)
	require.Empty(t, r.Diagnostics().All())

	inf := infer.New(r.Table(), false)
	inf.InferFile(f)
	require.Empty(t, inf.Diagnostics().All())

	c := New(r.Table())
	c.Check(f)
	return f, c
}

func Test_Lifetime_singleRefParamElidesToReturn(t *testing.T) {
	_, c := checkSrc(t, "fn first(a: &i32) -> &i32 { a }")
	assert.Empty(t, c.Diagnostics().All())
}

func Test_Lifetime_ambiguousElisionWithTwoRefParamsErrors(t *testing.T) {
	_, c := checkSrc(t, "fn pick(a: &i32, b: &i32) -> &i32 { a }")
	require.Len(t, c.Diagnostics().All(), 1)
	assert.Equal(t, "E0106", c.Diagnostics().All()[0].Code)
}

func Test_Lifetime_letBindingTracksBorrowedReference(t *testing.T) {
	f, c := checkSrc(t, "fn f(a: &i32) -> &i32 { let r = a; r }")
	assert.Empty(t, c.Diagnostics().All())

	tail := f.Items[0].Body.Tail
	assert.NotZero(t, tail.LifetimeVar)
}

func Test_Lifetime_noConstraintsForValueTypedFunction(t *testing.T) {
	_, c := checkSrc(t, "fn add(a: i32, b: i32) -> i32 { a + b }")
	assert.Empty(t, c.Diagnostics().All())
}
