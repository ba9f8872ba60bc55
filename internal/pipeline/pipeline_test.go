package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dekarrin/vela/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileAt(t *testing.T, level int, src string) (*ir.Module, []string) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.OptLevel = level
	p := New(cfg)
	m, diags := p.Compile("test.vl", src)
	var msgs []string
	for _, d := range diags.All() {
		msgs = append(msgs, d.Message)
	}
	return m, msgs
}

func Test_Compile_integerArithmeticFoldsToConstant(t *testing.T) {
	assert := assert.New(t)
	m, msgs := compileAt(t, 2, "fn f() -> i32 { let x = 2; let y = 3; x * y + 1 }")
	require.NotNil(t, m, "compile should succeed: %v", msgs)

	f := m.Function("f")
	require.NotNil(t, f)
	for _, b := range f.Blocks {
		assert.Empty(b.Instrs, "no arithmetic should survive folding")
	}
	entry := f.Entry()
	require.Equal(t, ir.TermRet, entry.Term.Kind)
	require.NotNil(t, entry.Term.Value)
	require.True(t, entry.Term.Value.IsConst())
	assert.Equal(int64(7), entry.Term.Value.Const.Int)
}

func Test_Compile_deadStoreEliminated(t *testing.T) {
	assert := assert.New(t)
	m, msgs := compileAt(t, 2, "fn g(a: i32) -> i32 { let x = a + 1; let y = a + 2; y }")
	require.NotNil(t, m, "compile should succeed: %v", msgs)

	f := m.Function("g")
	require.NotNil(t, f)
	var adds []*ir.Instr
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op == ir.OpAdd {
				adds = append(adds, in)
			}
		}
	}
	require.Len(t, adds, 1, "only the live a+2 remains")
	assert.Equal(int64(2), adds[0].Args[1].Const.Int)
}

func Test_Compile_borrowConflictWithholdsModule(t *testing.T) {
	assert := assert.New(t)
	m, msgs := compileAt(t, 2, "fn h() { let mut v = 0; let r = &mut v; let s = &v; *r = 1; }")

	assert.Nil(m, "the module is withheld from the backend on error")
	require.NotEmpty(t, msgs)
	assert.Contains(msgs[0], "cannot borrow `v` as immutable because it is also borrowed as mutable")
}

func Test_Compile_typeMismatchAtLetBinding(t *testing.T) {
	assert := assert.New(t)
	m, msgs := compileAt(t, 2, "fn k() -> i32 { let x: i32 = true; x }")

	assert.Nil(m)
	require.NotEmpty(t, msgs)
	assert.Contains(msgs[0], "mismatched types: expected i32, found bool")
}

func Test_Compile_phiAtMergeOfBranchAssignments(t *testing.T) {
	assert := assert.New(t)
	m, msgs := compileAt(t, 0, "fn m(c: bool) -> i32 { let x = 0; if c { x = 1; } else { x = 2; } x }")
	require.NotNil(t, m, "compile should succeed: %v", msgs)

	f := m.Function("m")
	require.NotNil(t, f)
	var phi *ir.Instr
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op == ir.OpPhi && len(in.Incoming) == 2 {
				vals := map[int64]bool{}
				for _, inc := range in.Incoming {
					if inc.Value.IsConst() && inc.Value.Const.Kind == ir.ConstInt {
						vals[inc.Value.Const.Int] = true
					}
				}
				if vals[1] && vals[2] {
					phi = in
				}
			}
		}
	}
	assert.NotNil(phi, "the merge block needs a phi selecting 1 or 2:\n%s", f)
}

func Test_Compile_loopCompilesAndValidates(t *testing.T) {
	m, msgs := compileAt(t, 3, `fn sum() -> i32 {
		let mut total = 0;
		let mut i = 0;
		while i < 10 {
			total = total + i;
			i = i + 1;
		}
		total
	}`)
	require.NotNil(t, m, "compile should succeed: %v", msgs)
	assert.Empty(t, ir.Validate(m))
}

func Test_Compile_callsAcrossFunctions(t *testing.T) {
	assert := assert.New(t)
	m, msgs := compileAt(t, 2, `fn double(n: i32) -> i32 { n * 2 }
fn quad(n: i32) -> i32 { double(double(n)) }`)
	require.NotNil(t, m, "compile should succeed: %v", msgs)

	// at -O2 the small callee is inlined away
	f := m.Function("quad")
	require.NotNil(t, f)
	calls := 0
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op == ir.OpCall {
				calls++
			}
		}
	}
	assert.Zero(calls, "double is below the inlining threshold:\n%s", f)
}

func Test_Compile_strictModeRejectsAmbiguousTypes(t *testing.T) {
	assert := assert.New(t)
	cfg := DefaultConfig()
	cfg.Strict = true
	p := New(cfg)
	m, diags := p.Compile("test.vl", "fn f() { let x; }")

	assert.Nil(m)
	assert.True(diags.HasErrors())
}

func Test_Compile_lexErrorAbortsBeforeParse(t *testing.T) {
	assert := assert.New(t)
	m, msgs := compileAt(t, 2, "fn f() { let s = \"unterminated }")

	assert.Nil(m)
	assert.NotEmpty(msgs)
}

func Test_Compile_optimizedModuleStillValidates(t *testing.T) {
	m, msgs := compileAt(t, 3, `fn fact(n: i32) -> i32 {
		if n <= 1 {
			return 1;
		}
		return n * fact(n - 1);
	}`)
	require.NotNil(t, m, "compile should succeed: %v", msgs)
	assert.Empty(t, ir.Validate(m))
}

func Test_LoadConfig_readsTOML(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "vela.toml")
	require.NoError(t, os.WriteFile(path, []byte("opt_level = 3\nstrict_inference = true\nvalidate_ir = false\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(3, cfg.OptLevel)
	assert.True(cfg.Strict)
	assert.False(cfg.ValidateIR)
	assert.True(cfg.Elision, "unset keys keep their defaults")
}

func Test_LoadConfig_rejectsOutOfRangeLevel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vela.toml")
	require.NoError(t, os.WriteFile(path, []byte("opt_level = 9\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
