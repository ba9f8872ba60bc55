package parser

import (
	"testing"

	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/lexer"
	"github.com/dekarrin/vela/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseSrc(t *testing.T, src string) (*ast.File, *Parser) {
	t.Helper()
	m := source.NewMap()
	fid := m.Add("test.vl", src)
	lx := lexer.New(fid, src)
	toks := lx.Lex()
	require.Empty(t, lx.Errors())
	p := New(fid, toks)
	f := p.ParseFile()
	return f, p
}

func Test_ParseFile_arithmeticFold(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{
			name: "scenario 1 from spec: integer arithmetic",
			src:  "fn f() -> i32 { let x = 2; let y = 3; x * y + 1 }",
		},
		{
			name: "scenario 2 from spec: dead store elimination",
			src:  "fn g(a: i32) -> i32 { let x = a + 1; let y = a + 2; y }",
		},
		{
			name: "scenario 3 from spec: borrow conflict source",
			src:  "fn h() { let mut v = 0; let r = &mut v; let s = &v; *r = 1; }",
		},
		{
			name: "scenario 6 from spec: ssa phi insertion",
			src:  "fn m(c: bool) -> i32 { let x; if c { x = 1; } else { x = 2; } x }",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			f, p := parseSrc(t, tc.src)
			assert.Empty(p.Diagnostics().All())
			assert.Len(f.Items, 1)
			assert.Equal(ast.FnItem, f.Items[0].Kind)
		})
	}
}

func Test_ParseFile_precedence(t *testing.T) {
	assert := assert.New(t)
	f, p := parseSrc(t, "fn f() -> i32 { 1 + 2 * 3 }")
	assert.Empty(p.Diagnostics().All())

	body := f.Items[0].Body
	require.NotNil(t, body)
	tail := body.Tail
	require.NotNil(t, tail)
	assert.Equal(ast.Binary, tail.Kind)
	assert.Equal("+", tail.Op)
	assert.Equal(ast.Binary, tail.Right.Kind)
	assert.Equal("*", tail.Right.Op)
}

func Test_ParseFile_assignmentRightAssociative(t *testing.T) {
	assert := assert.New(t)
	f, p := parseSrc(t, "fn f() { let mut a = 0; let mut b = 0; a = b = 1; }")
	assert.Empty(p.Diagnostics().All())

	body := f.Items[0].Body
	require.Len(t, body.Stmts, 3)
	assignStmt := body.Stmts[2]
	assign := assignStmt.Value
	require.Equal(t, ast.Assign, assign.Kind)
	assert.Equal(ast.Assign, assign.Right.Kind)
}

func Test_ParseFile_structAndStruct(t *testing.T) {
	assert := assert.New(t)
	src := `
struct Point {
	x: i32,
	y: i32,
}

fn origin() -> Point {
	Point { x: 0, y: 0 }
}
`
	f, p := parseSrc(t, src)
	assert.Empty(p.Diagnostics().All())
	require.Len(t, f.Items, 2)
	assert.Equal(ast.StructItem, f.Items[0].Kind)
	assert.Len(f.Items[0].Fields, 2)

	fn := f.Items[1]
	tail := fn.Body.Tail
	require.NotNil(t, tail)
	assert.Equal(ast.StructLit, tail.Kind)
	assert.Equal("Point", tail.TypeName)
}

func Test_ParseFile_recoversFromBadItem(t *testing.T) {
	assert := assert.New(t)
	src := "not an item\nfn ok() -> i32 { 1 }"
	f, p := parseSrc(t, src)
	assert.NotEmpty(p.Diagnostics().All())
	require.Len(t, f.Items, 1)
	assert.Equal("ok", f.Items[0].Name)
}
