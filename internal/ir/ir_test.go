package ir

import (
	"testing"

	"github.com/dekarrin/vela/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var i32 = types.I32Type

func diamondFn() *Function {
	cond := Ref("c", types.BoolType)
	return &Function{
		Name:   "pick",
		Params: []Param{{Name: "c", Type: types.BoolType}},
		Return: i32,
		Blocks: []*Block{
			{Label: "entry", Term: &Terminator{Kind: TermCondBr, Value: &cond, Then: "then", Else: "else"}},
			{Label: "then", Term: &Terminator{Kind: TermBr, Target: "merge"}},
			{Label: "else", Term: &Terminator{Kind: TermBr, Target: "merge"}},
			{
				Label: "merge",
				Instrs: []*Instr{
					{Name: "x", Op: OpPhi, Type: i32, Incoming: []Incoming{
						{Value: IntValue(1, i32), Pred: "then"},
						{Value: IntValue(2, i32), Pred: "else"},
					}},
				},
				Term: &Terminator{Kind: TermRet, Value: &Value{Name: "x", Type: i32}},
			},
		},
	}
}

func Test_Validate_wellFormedFunctionPasses(t *testing.T) {
	m := &Module{Functions: []*Function{diamondFn()}}
	assert.Empty(t, Validate(m))
}

func Test_Validate_missingTerminator(t *testing.T) {
	f := diamondFn()
	f.Blocks[1].Term = nil
	errs := Validate(&Module{Functions: []*Function{f}})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "no terminator")
}

func Test_Validate_branchToUndefinedLabel(t *testing.T) {
	f := diamondFn()
	f.Blocks[1].Term.Target = "nowhere"
	errs := Validate(&Module{Functions: []*Function{f}})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "undefined label")
}

func Test_Validate_phiMustCoverEveryPredecessor(t *testing.T) {
	f := diamondFn()
	f.Blocks[3].Instrs[0].Incoming = f.Blocks[3].Instrs[0].Incoming[:1]
	errs := Validate(&Module{Functions: []*Function{f}})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "do not match predecessors")
}

func Test_Validate_doubleDefinitionRejected(t *testing.T) {
	f := diamondFn()
	f.Blocks[1].Instrs = []*Instr{
		{Name: "x", Op: OpAdd, Type: i32, Args: []Value{IntValue(1, i32), IntValue(2, i32)}},
	}
	errs := Validate(&Module{Functions: []*Function{f}})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "defined more than once")
}

func Test_Validate_useMustBeDominatedByDefinition(t *testing.T) {
	f := diamondFn()
	// "then" defines y, "else" uses it: no path through "else" defines y
	f.Blocks[1].Instrs = []*Instr{
		{Name: "y", Op: OpAdd, Type: i32, Args: []Value{IntValue(1, i32), IntValue(2, i32)}},
	}
	f.Blocks[2].Instrs = []*Instr{
		{Name: "z", Op: OpAdd, Type: i32, Args: []Value{Ref("y", i32), IntValue(1, i32)}},
	}
	errs := Validate(&Module{Functions: []*Function{f}})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "does not dominate")
}

func Test_Validate_unreachableBlockRejected(t *testing.T) {
	f := diamondFn()
	f.Blocks = append(f.Blocks, &Block{Label: "island", Term: &Terminator{Kind: TermBr, Target: "merge"}})
	errs := Validate(&Module{Functions: []*Function{f}})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Error(), "unreachable")
}

func Test_Dominance_diamond(t *testing.T) {
	assert := assert.New(t)
	d := Dominance(diamondFn())

	assert.True(d.Dominates("entry", "merge"))
	assert.False(d.Dominates("then", "merge"))
	id, ok := d.IDom("merge")
	require.True(t, ok)
	assert.Equal("entry", id)

	df := d.Frontier()
	assert.True(df["then"].Has("merge"))
	assert.True(df["else"].Has("merge"))
	assert.False(df["entry"].Has("merge"))
}

func Test_Dominance_loopBackEdge(t *testing.T) {
	assert := assert.New(t)
	cond := Ref("c", types.BoolType)
	f := &Function{
		Name:   "loop",
		Return: i32,
		Blocks: []*Block{
			{Label: "entry", Term: &Terminator{Kind: TermBr, Target: "head"}},
			{
				Label: "head",
				Instrs: []*Instr{
					{Name: "c", Op: OpICmp, Cond: CondLT, Type: types.BoolType,
						Args: []Value{IntValue(0, i32), IntValue(1, i32)}},
				},
				Term: &Terminator{Kind: TermCondBr, Value: &cond, Then: "body", Else: "exit"},
			},
			{Label: "body", Term: &Terminator{Kind: TermBr, Target: "head"}},
			{Label: "exit", Term: &Terminator{Kind: TermRet, Value: &Value{Const: &Constant{Kind: ConstInt, Int: 0}, Type: i32}}},
		},
	}
	d := Dominance(f)

	edges := d.BackEdges()
	require.Len(t, edges, 1)
	assert.Equal("body", edges[0][0])
	assert.Equal("head", edges[0][1])

	body := d.NaturalLoop("body", "head")
	assert.True(body.Has("head"))
	assert.True(body.Has("body"))
	assert.False(body.Has("entry"))
	assert.False(body.Has("exit"))
}

func Test_Encode_moduleRoundTrips(t *testing.T) {
	assert := assert.New(t)
	m := &Module{
		Name: "demo",
		Globals: []*Global{
			{Name: "LIMIT", Type: i32, Init: &Constant{Kind: ConstInt, Int: 64}},
		},
		Types: []*TypeDef{
			{Name: "Pair", Type: types.NewTuple(i32, types.BoolType)},
		},
		Functions: []*Function{diamondFn()},
	}

	data := Encode(m)
	got, err := Decode(data)
	require.NoError(t, err)

	assert.Equal("demo", got.Name)
	require.Len(t, got.Globals, 1)
	assert.Equal(int64(64), got.Globals[0].Init.Int)
	require.Len(t, got.Types, 1)
	assert.Equal("(i32, bool)", got.Types[0].Type.String())
	require.Len(t, got.Functions, 1)

	gf := got.Functions[0]
	assert.Equal("pick", gf.Name)
	require.Len(t, gf.Blocks, 4)
	phi := gf.Blocks[3].Instrs[0]
	assert.Equal(OpPhi, phi.Op)
	require.Len(t, phi.Incoming, 2)
	assert.Equal("then", phi.Incoming[0].Pred)
	assert.Equal(int64(1), phi.Incoming[0].Value.Const.Int)

	// the decoded module still satisfies every structural invariant
	assert.Empty(Validate(got))
}

func Test_String_rendersReadableListing(t *testing.T) {
	assert := assert.New(t)
	s := diamondFn().String()

	assert.Contains(s, "fn @pick(%c: bool) -> i32 {")
	assert.Contains(s, "condbr %c, %then, %else")
	assert.Contains(s, "%x = phi [1, %then], [2, %else] : i32")
	assert.Contains(s, "ret %x")
}
