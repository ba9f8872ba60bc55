package lower

import (
	"testing"

	"github.com/dekarrin/vela/internal/infer"
	"github.com/dekarrin/vela/internal/ir"
	"github.com/dekarrin/vela/internal/lexer"
	"github.com/dekarrin/vela/internal/parser"
	"github.com/dekarrin/vela/internal/resolve"
	"github.com/dekarrin/vela/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lowerSrc(t *testing.T, src string) *ir.Module {
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

	inf := infer.New(r.Table(), false)
	inf.InferFile(f)
	require.Empty(t, inf.Diagnostics().All(), "inference should succeed")

	lw := New(r.Table())
	mod := lw.LowerFile(f, "test.vl")
	require.Empty(t, lw.Diagnostics().All(), "lowering should succeed")
	return mod
}

func countOp(f *ir.Function, op ir.Op) int {
	n := 0
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op == op {
				n++
			}
		}
	}
	return n
}

func Test_LowerFile_straightLinePromotesAllSlots(t *testing.T) {
	assert := assert.New(t)
	mod := lowerSrc(t, "fn f(a: i32) -> i32 { let x = a + 1; x }")
	f := mod.Function("f")
	require.NotNil(t, f)

	assert.Zero(countOp(f, ir.OpAlloca), "every local's address stays private, so every slot promotes")
	assert.Zero(countOp(f, ir.OpLoad))
	assert.Zero(countOp(f, ir.OpStore))
	assert.Empty(ir.Validate(mod))
}

func Test_LowerFile_branchAssignmentsMergeThroughPhi(t *testing.T) {
	assert := assert.New(t)
	mod := lowerSrc(t, "fn m(c: bool) -> i32 { let x = 0; if c { x = 1; } else { x = 2; } x }")
	f := mod.Function("m")
	require.NotNil(t, f)

	found := false
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op != ir.OpPhi || len(in.Incoming) != 2 {
				continue
			}
			vals := map[int64]bool{}
			for _, inc := range in.Incoming {
				if inc.Value.IsConst() {
					vals[inc.Value.Const.Int] = true
				}
			}
			if vals[1] && vals[2] {
				found = true
			}
		}
	}
	assert.True(found, "expected a phi merging 1 and 2:\n%s", f)
	assert.Empty(ir.Validate(mod))
}

func Test_LowerFile_whileLoopPutsPhiInHeader(t *testing.T) {
	assert := assert.New(t)
	mod := lowerSrc(t, `fn sum() -> i32 {
		let mut total = 0;
		let mut i = 0;
		while i < 10 {
			total = total + i;
			i = i + 1;
		}
		total
	}`)
	f := mod.Function("sum")
	require.NotNil(t, f)

	head := f.Block("while.head1")
	require.NotNil(t, head, "blocks: %s", f)
	phis := 0
	for _, in := range head.Instrs {
		if in.Op == ir.OpPhi {
			phis++
			assert.Len(in.Incoming, 2, "one incoming per header predecessor")
		}
	}
	assert.Equal(2, phis, "total and i are both redefined in the loop")
	assert.Empty(ir.Validate(mod))
}

func Test_LowerFile_escapedSlotStaysInMemory(t *testing.T) {
	assert := assert.New(t)
	mod := lowerSrc(t, `fn f() -> i32 {
		let mut v = 1;
		let r = &mut v;
		*r = 2;
		v
	}`)
	f := mod.Function("f")
	require.NotNil(t, f)

	assert.NotZero(countOp(f, ir.OpAlloca), "a slot whose address is taken must not promote")
	assert.Empty(ir.Validate(mod))
}

func Test_LowerFile_shortCircuitOnlyRunsRhsConditionally(t *testing.T) {
	assert := assert.New(t)
	mod := lowerSrc(t, "fn f(a: bool, b: bool) -> bool { a && b }")
	f := mod.Function("f")
	require.NotNil(t, f)

	require.GreaterOrEqual(t, len(f.Blocks), 3, "&& lowers to branches:\n%s", f)
	assert.Empty(ir.Validate(mod))
}

func Test_LowerFile_returnStatementTerminates(t *testing.T) {
	assert := assert.New(t)
	mod := lowerSrc(t, `fn abs(n: i32) -> i32 {
		if n < 0 {
			return 0 - n;
		}
		n
	}`)
	f := mod.Function("abs")
	require.NotNil(t, f)

	rets := 0
	for _, b := range f.Blocks {
		require.NotNil(t, b.Term, "every block ends in a terminator")
		if b.Term.Kind == ir.TermRet {
			rets++
		}
	}
	assert.Equal(2, rets)
	assert.Empty(ir.Validate(mod))
}

func Test_LowerFile_constItemBecomesGlobal(t *testing.T) {
	assert := assert.New(t)
	mod := lowerSrc(t, `const LIMIT: i32 = 64;
fn f() -> i32 { LIMIT }`)

	require.Len(t, mod.Globals, 1)
	assert.Equal("LIMIT", mod.Globals[0].Name)
	require.NotNil(t, mod.Globals[0].Init)
	assert.Equal(int64(64), mod.Globals[0].Init.Int)

	f := mod.Function("f")
	require.NotNil(t, f)
	assert.Equal(1, countOp(f, ir.OpLoad), "reading a const loads through its global")
	assert.Empty(ir.Validate(mod))
}

func Test_LowerFile_structLiteralAndFieldAccess(t *testing.T) {
	assert := assert.New(t)
	mod := lowerSrc(t, `struct Point { x: i32, y: i32 }
fn f() -> i32 {
	let p = Point { x: 3, y: 4 };
	p.x
}`)

	require.Len(t, mod.Types, 1)
	assert.Equal("Point", mod.Types[0].Name)

	f := mod.Function("f")
	require.NotNil(t, f)
	assert.NotZero(countOp(f, ir.OpGEP), "field initialization goes through gep")
	assert.NotZero(countOp(f, ir.OpExtractValue), "field reads extract from the loaded aggregate")
	assert.Empty(ir.Validate(mod))
}
