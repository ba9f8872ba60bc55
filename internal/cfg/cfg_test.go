package cfg

import (
	"testing"

	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/lexer"
	"github.com/dekarrin/vela/internal/parser"
	"github.com/dekarrin/vela/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFnBody(t *testing.T, src string) *ast.Expr {
	t.Helper()
	m := source.NewMap()
	fid := m.Add("test.vl", src)
	toks := lexer.New(fid, src).Lex()
	p := parser.New(fid, toks)
	f := p.ParseFile()
	require.Empty(t, p.Diagnostics().All())
	require.NotEmpty(t, f.Items)
	require.NotNil(t, f.Items[0].Body)
	return f.Items[0].Body
}

func Test_Build_straightLineIsSingleBlock(t *testing.T) {
	assert := assert.New(t)
	g := Build(parseFnBody(t, "fn f() -> i32 { let x = 1; let y = 2; x }"))

	assert.Len(g.Blocks, 1)
	assert.Equal(TermReturn, g.Blocks[g.Entry].Term)
	assert.True(g.Blocks[g.Entry].Preds.Empty())
}

func Test_Build_whileMakesHeaderBodyExit(t *testing.T) {
	assert := assert.New(t)
	g := Build(parseFnBody(t, "fn f() { let mut i = 0; while i < 10 { i = i + 1; } }"))

	// entry, header, body, exit
	require.Len(t, g.Blocks, 4)
	header := g.Blocks[1]
	assert.Equal(TermBranch, header.Term)
	assert.Equal(2, header.Succs.Len())

	// the body's fallthrough back to the header is the loop's back-edge
	require.Len(t, g.BackEdges, 1)
	for tail, h := range g.BackEdges {
		assert.Equal(header.ID, h)
		assert.True(g.Dominates(h, tail))
	}
}

func Test_Dominators_diamond(t *testing.T) {
	assert := assert.New(t)
	g := Build(parseFnBody(t, `fn f(c: bool) -> i32 {
		let mut y = 0;
		if c { y = 1; } else { y = 2; }
		y
	}`))

	// every block is dominated by the entry
	for _, b := range g.Blocks {
		if g.Reachable().Has(b.ID) {
			assert.True(g.Dominates(g.Entry, b.ID), "entry should dominate block %d", b.ID)
		}
	}

	// a merge block with two predecessors is not dominated by either branch
	for _, b := range g.Blocks {
		if b.Preds.Len() == 2 {
			for _, p := range b.Preds.Elements() {
				if p != g.Entry {
					assert.False(g.Dominates(p, b.ID), "branch %d should not dominate merge %d", p, b.ID)
				}
			}
			id, ok := g.IDom(b.ID)
			require.True(t, ok)
			assert.Equal(g.Entry, id)
		}
	}
}

func Test_DominanceFrontier_branchesMeetAtMerge(t *testing.T) {
	assert := assert.New(t)
	g := Build(parseFnBody(t, `fn f(c: bool) -> i32 {
		let mut y = 0;
		if c { y = 1; } else { y = 2; }
		y
	}`))

	var merge BlockID = -1
	for _, b := range g.Blocks {
		if b.Preds.Len() == 2 {
			merge = b.ID
		}
	}
	require.NotEqual(t, BlockID(-1), merge)

	df := g.DominanceFrontier()
	for _, p := range g.Blocks[merge].Preds.Elements() {
		assert.True(df[p].Has(merge), "merge should be in the frontier of predecessor %d", p)
	}
	assert.False(df[g.Entry].Has(merge), "entry strictly dominates the merge")
}

func Test_NaturalLoop_containsHeaderAndBody(t *testing.T) {
	assert := assert.New(t)
	g := Build(parseFnBody(t, "fn f() { let mut i = 0; while i < 3 { i = i + 1; } }"))

	require.Len(t, g.BackEdges, 1)
	for tail, header := range g.BackEdges {
		body := g.NaturalLoop(tail, header)
		assert.True(body.Has(header))
		assert.True(body.Has(tail))
		assert.False(body.Has(g.Entry))
	}
}
