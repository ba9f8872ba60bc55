package borrow

import (
	"testing"

	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/infer"
	"github.com/dekarrin/vela/internal/lexer"
	"github.com/dekarrin/vela/internal/parser"
	"github.com/dekarrin/vela/internal/resolve"
	"github.com/dekarrin/vela/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkSrc runs the front half of the pipeline (lex, parse, resolve, infer)
// and then the borrow checker, returning its diagnostics.
func checkSrc(t *testing.T, src string) []diag.Diagnostic {
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

	c := New(r.Table())
	c.Check(f)
	return c.Diagnostics().All()
}

func errorMessages(diags []diag.Diagnostic) []string {
	var msgs []string
	for _, d := range diags {
		msgs = append(msgs, d.Message)
	}
	return msgs
}

func Test_Check_sharedThenMutConflict(t *testing.T) {
	assert := assert.New(t)
	diags := checkSrc(t, `fn h() {
		let mut v = 0;
		let r = &mut v;
		let s = &v;
		*r = 1;
	}`)

	require.Len(t, diags, 1)
	assert.Contains(diags[0].Message, "cannot borrow `v` as immutable because it is also borrowed as mutable")
}

func Test_Check_twoSharedLoansAllowed(t *testing.T) {
	assert := assert.New(t)
	diags := checkSrc(t, `fn f() {
		let v = 0;
		let r = &v;
		let s = &v;
		let a = *r + *s;
	}`)

	assert.Empty(diags, "two shared loans on the same place are allowed: %v", errorMessages(diags))
}

func Test_Check_twoMutLoansRejected(t *testing.T) {
	assert := assert.New(t)
	diags := checkSrc(t, `fn f() {
		let mut v = 0;
		let r = &mut v;
		let s = &mut v;
		*r = 1;
	}`)

	require.NotEmpty(t, diags)
	assert.Contains(diags[0].Message, "cannot borrow `v` as mutable")
}

func Test_Check_assignWhileBorrowedRejected(t *testing.T) {
	assert := assert.New(t)
	diags := checkSrc(t, `fn f() {
		let mut v = 0;
		let r = &v;
		v = 1;
		let a = *r;
	}`)

	require.NotEmpty(t, diags)
	assert.Contains(diags[0].Message, "cannot assign to `v` because it is borrowed")
}

func Test_Check_useOfMovedValue(t *testing.T) {
	assert := assert.New(t)
	diags := checkSrc(t, `fn f() {
		let s = "hello";
		let a = s;
		let b = s;
	}`)

	require.NotEmpty(t, diags)
	assert.Contains(diags[0].Message, "use of moved value: `s`")
}

func Test_Check_reassignmentClearsMove(t *testing.T) {
	assert := assert.New(t)
	diags := checkSrc(t, `fn f() {
		let mut s = "hello";
		let a = s;
		s = "world";
		let b = s;
	}`)

	assert.Empty(diags, "reassignment restores ownership: %v", errorMessages(diags))
}

func Test_Check_mutRefDereferencedRepeatedly(t *testing.T) {
	assert := assert.New(t)
	diags := checkSrc(t, `fn f() {
		let mut v = 0;
		let r = &mut v;
		*r = 1;
		*r = 2;
		let a = *r;
		*r = a + 1;
	}`)

	assert.Empty(diags, "reading or writing through a mutable reference never moves it: %v", errorMessages(diags))
}

func Test_Check_movingTheRefBindingStillMoves(t *testing.T) {
	assert := assert.New(t)
	diags := checkSrc(t, `fn f() {
		let mut v = 0;
		let r = &mut v;
		let b = r;
		*r = 1;
	}`)

	require.NotEmpty(t, diags)
	assert.Contains(diags[0].Message, "use of moved value: `r`")
}

func Test_Check_borrowInsideLoopBodyEndsEachIteration(t *testing.T) {
	assert := assert.New(t)
	diags := checkSrc(t, `fn f() {
		let mut v = 0;
		let mut i = 0;
		while i < 10 {
			let r = &mut v;
			*r = i;
			i = i + 1;
		}
	}`)

	assert.Empty(diags, "a loan rebound every iteration does not conflict with itself: %v", errorMessages(diags))
}

func Test_Check_moveErrorSurvivesMoreUses(t *testing.T) {
	// borrow-check monotonicity: adding more uses never removes an error.
	base := checkSrc(t, `fn f() {
		let s = "hello";
		let a = s;
		let b = s;
	}`)
	more := checkSrc(t, `fn f() {
		let s = "hello";
		let a = s;
		let b = s;
		let c = s;
	}`)

	assert.GreaterOrEqual(t, len(more), len(base))
}

func Test_Check_eachFunctionIsItsOwnRecoveryUnit(t *testing.T) {
	assert := assert.New(t)
	diags := checkSrc(t, `fn bad() {
		let mut v = 0;
		let r = &mut v;
		let s = &v;
		*r = 1;
	}
	fn good() -> i32 {
		let x = 1;
		x
	}
	fn alsobad() {
		let s = "hello";
		let a = s;
		let b = s;
	}`)

	assert.Len(diags, 2)
}
