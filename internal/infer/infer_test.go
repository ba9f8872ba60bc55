package infer

import (
	"testing"

	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/lexer"
	"github.com/dekarrin/vela/internal/parser"
	"github.com/dekarrin/vela/internal/resolve"
	"github.com/dekarrin/vela/internal/source"
	"github.com/dekarrin/vela/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inferSrc(t *testing.T, src string, strict bool) (*ast.File, *Inferencer, *resolve.Table) {
	t.Helper()
	m := source.NewMap()
	fid := m.Add("test.vl", src)
	toks := lexer.New(fid, src).Lex()
	p := parser.New(fid, toks)
	f := p.ParseFile()
	require.Empty(t, p.Diagnostics().All(), "parse should succeed")

	r := resolve.New()
	r.Resolve(f)
	require.Empty(t, r.Diagnostics().All(), "resolution should succeed")

	inf := New(r.Table(), strict)
	inf.InferFile(f)
	return f, inf, r.Table()
}

func Test_InferFile_literalDefaultsToI32(t *testing.T) {
	assert := assert.New(t)
	f, inf, _ := inferSrc(t, "fn f() -> i32 { let x = 1; x }", false)
	assert.Empty(inf.Diagnostics().All())

	tail := f.Items[0].Body.Tail
	require.NotNil(t, tail.Type)
	assert.Equal("i32", tail.Type.String())
}

func Test_InferFile_annotationMismatchReported(t *testing.T) {
	assert := assert.New(t)
	_, inf, _ := inferSrc(t, "fn k() -> i32 { let x: i32 = true; x }", false)

	diags := inf.Diagnostics().All()
	require.NotEmpty(t, diags)
	assert.Equal("E0308", diags[0].Code)
	assert.Contains(diags[0].Message, "expected i32, found bool")
}

func Test_InferFile_ifBranchesMustAgree(t *testing.T) {
	assert := assert.New(t)
	_, inf, _ := inferSrc(t, "fn f(c: bool, x: i32) -> i32 { let y = if c { x } else { true }; 0 }", false)

	require.NotEmpty(t, inf.Diagnostics().All())
	assert.Equal("E0308", inf.Diagnostics().All()[0].Code)
}

func Test_InferFile_ifConditionMustBeBool(t *testing.T) {
	_, inf, _ := inferSrc(t, "fn f(x: i32) -> i32 { if x { 2 } else { 3 } }", false)
	assert.NotEmpty(t, inf.Diagnostics().All())
}

func Test_InferFile_callConstraintsFlowIntoArguments(t *testing.T) {
	assert := assert.New(t)
	f, inf, _ := inferSrc(t, `fn double(n: i32) -> i32 { n * 2 }
fn g() -> i32 { double(21) }`, false)
	assert.Empty(inf.Diagnostics().All())

	call := f.Items[1].Body.Tail
	require.Equal(t, ast.Call, call.Kind)
	require.NotNil(t, call.Type)
	assert.Equal("i32", call.Type.String())
}

func Test_InferFile_argumentCountMismatch(t *testing.T) {
	assert := assert.New(t)
	_, inf, _ := inferSrc(t, `fn double(n: i32) -> i32 { n * 2 }
fn g() -> i32 { double(1, 2) }`, false)

	diags := inf.Diagnostics().All()
	require.NotEmpty(t, diags)
	assert.Equal("E0061", diags[0].Code)
}

func Test_InferFile_callingANonFunction(t *testing.T) {
	assert := assert.New(t)
	_, inf, _ := inferSrc(t, "fn g() -> i32 { let x: i32 = 1; x(2) }", false)

	diags := inf.Diagnostics().All()
	require.NotEmpty(t, diags)
	assert.Equal("E0618", diags[0].Code)
}

func Test_Unify_occursCheckRejectsInfiniteType(t *testing.T) {
	assert := assert.New(t)
	inf := New(resolve.NewTable(), false)

	v := types.NewVar("T")
	ok := inf.Unify(v, types.NewReference(false, v), source.Span{})

	assert.False(ok)
	require.NotEmpty(t, inf.Diagnostics().All())
	assert.Equal("E0072", inf.Diagnostics().All()[0].Code)
	assert.Contains(inf.Diagnostics().All()[0].Message, "infinite type")
}

func Test_Unify_appliedSubstitutionMakesBothSidesIdentical(t *testing.T) {
	// spec property: after solving, applying the substitution to both
	// sides of every discharged constraint yields identical types.
	assert := assert.New(t)
	inf := New(resolve.NewTable(), false)

	a := types.NewVar("a")
	b := types.NewVar("b")
	lhs := types.NewTuple(a, types.BoolType)
	rhs := types.NewTuple(types.NewReference(false, b), types.BoolType)

	require.True(t, inf.Unify(lhs, rhs, source.Span{}))
	require.True(t, inf.Unify(b, types.I32Type, source.Span{}))

	assert.True(types.Equal(inf.sub.Apply(lhs), inf.sub.Apply(rhs)))
	assert.Equal("(&i32, bool)", inf.sub.Apply(lhs).String())
}

func Test_InferFile_strictModeFlagsUnresolvedVariables(t *testing.T) {
	assert := assert.New(t)
	_, inf, _ := inferSrc(t, "fn f() { let x; }", true)

	diags := inf.Diagnostics().All()
	require.NotEmpty(t, diags)
	assert.Equal("E0282", diags[0].Code)
}

func Test_InferFile_symbolTypesGroundAfterFinalize(t *testing.T) {
	assert := assert.New(t)
	_, inf, table := inferSrc(t, "fn f() -> i32 { let x = 1; let y = x + 2; y }", false)
	assert.Empty(inf.Diagnostics().All())

	for _, sym := range table.Symbols() {
		if sym.Name == "x" || sym.Name == "y" {
			require.NotNil(t, sym.Type, "symbol %s should have a type", sym.Name)
			assert.Equal("i32", sym.Type.String(), "symbol %s", sym.Name)
		}
	}
}
