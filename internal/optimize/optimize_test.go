package optimize

import (
	"testing"

	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/ir"
	"github.com/dekarrin/vela/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var i32 = types.I32Type

func retOf(v ir.Value) *ir.Terminator {
	return &ir.Terminator{Kind: ir.TermRet, Value: &v}
}

func singleBlockFn(name string, instrs []*ir.Instr, term *ir.Terminator) *ir.Function {
	return &ir.Function{
		Name:   name,
		Return: i32,
		Blocks: []*ir.Block{{Label: "entry", Instrs: instrs, Term: term}},
	}
}

func Test_constFold_arithmeticChainFoldsToConstant(t *testing.T) {
	assert := assert.New(t)
	// x = 2 * 3; y = x + 1; ret y  ==>  ret 7
	f := singleBlockFn("f", []*ir.Instr{
		{Name: "x", Op: ir.OpMul, Type: i32, Args: []ir.Value{ir.IntValue(2, i32), ir.IntValue(3, i32)}},
		{Name: "y", Op: ir.OpAdd, Type: i32, Args: []ir.Value{ir.Ref("x", i32), ir.IntValue(1, i32)}},
	}, retOf(ir.Ref("y", i32)))
	m := &ir.Module{Functions: []*ir.Function{f}}

	o := New(O2)
	o.Run(m)

	assert.Empty(f.Blocks[0].Instrs, "no arithmetic should remain")
	require.NotNil(t, f.Blocks[0].Term.Value)
	require.True(t, f.Blocks[0].Term.Value.IsConst())
	assert.Equal(int64(7), f.Blocks[0].Term.Value.Const.Int)
}

func Test_constFold_divisionByZeroNotFolded(t *testing.T) {
	assert := assert.New(t)
	f := singleBlockFn("f", []*ir.Instr{
		{Name: "x", Op: ir.OpSDiv, Type: i32, Args: []ir.Value{ir.IntValue(1, i32), ir.IntValue(0, i32)}},
	}, retOf(ir.Ref("x", i32)))
	m := &ir.Module{Functions: []*ir.Function{f}}

	New(O2).Run(m)

	require.Len(t, f.Blocks[0].Instrs, 1)
	assert.Equal(ir.OpSDiv, f.Blocks[0].Instrs[0].Op)
}

func Test_constFold_overflowDeclinesAndWarns(t *testing.T) {
	assert := assert.New(t)
	f := singleBlockFn("f", []*ir.Instr{
		{Name: "x", Op: ir.OpAdd, Type: i32, Args: []ir.Value{ir.IntValue(2147483647, i32), ir.IntValue(1, i32)}},
	}, retOf(ir.Ref("x", i32)))
	m := &ir.Module{Functions: []*ir.Function{f}}

	o := New(O2)
	o.Run(m)

	require.Len(t, f.Blocks[0].Instrs, 1, "overflowing add must not fold")
	assert.Equal(1, o.Diagnostics().Count(diag.Warning))
	assert.False(o.Diagnostics().HasErrors())
}

func Test_deadCode_unusedPureInstrRemovedStoreKept(t *testing.T) {
	assert := assert.New(t)
	f := &ir.Function{
		Name:   "g",
		Params: []ir.Param{{Name: "a", Type: i32}},
		Return: i32,
		Blocks: []*ir.Block{{
			Label: "entry",
			Instrs: []*ir.Instr{
				{Name: "x", Op: ir.OpAdd, Type: i32, Args: []ir.Value{ir.Ref("a", i32), ir.IntValue(1, i32)}},
				{Name: "y", Op: ir.OpAdd, Type: i32, Args: []ir.Value{ir.Ref("a", i32), ir.IntValue(2, i32)}},
				{Name: "s", Op: ir.OpAlloca, Type: types.NewRawPointer(true, i32)},
				{Op: ir.OpStore, Args: []ir.Value{ir.IntValue(9, i32), ir.Ref("s", types.NewRawPointer(true, i32))}},
			},
			Term: retOf(ir.Ref("y", i32)),
		}},
	}
	m := &ir.Module{Functions: []*ir.Function{f}}

	New(O1).Run(m)

	ops := map[ir.Op]int{}
	names := map[string]bool{}
	for _, in := range f.Blocks[0].Instrs {
		ops[in.Op]++
		names[in.Name] = true
	}
	assert.False(names["x"], "the dead x computation should be removed")
	assert.True(names["y"], "the returned computation stays")
	assert.Equal(1, ops[ir.OpStore], "stores are always kept")
}

func Test_deadCode_constantBranchPrunesUntakenSide(t *testing.T) {
	assert := assert.New(t)
	cond := ir.BoolValue(true)
	f := &ir.Function{
		Name:   "f",
		Return: i32,
		Blocks: []*ir.Block{
			{Label: "entry", Term: &ir.Terminator{Kind: ir.TermCondBr, Value: &cond, Then: "yes", Else: "no"}},
			{Label: "yes", Term: retOf(ir.IntValue(1, i32))},
			{Label: "no", Term: retOf(ir.IntValue(2, i32))},
		},
	}
	m := &ir.Module{Functions: []*ir.Function{f}}

	New(O1).Run(m)

	require.Len(t, f.Blocks, 2)
	assert.Equal(ir.TermBr, f.Blocks[0].Term.Kind)
	assert.Equal("yes", f.Blocks[0].Term.Target)
	assert.Nil(f.Block("no"))
}

func Test_cse_duplicatePureInstrMerged(t *testing.T) {
	assert := assert.New(t)
	f := &ir.Function{
		Name:   "f",
		Params: []ir.Param{{Name: "a", Type: i32}},
		Return: i32,
		Blocks: []*ir.Block{{
			Label: "entry",
			Instrs: []*ir.Instr{
				{Name: "x", Op: ir.OpAdd, Type: i32, Args: []ir.Value{ir.Ref("a", i32), ir.IntValue(1, i32)}},
				{Name: "y", Op: ir.OpAdd, Type: i32, Args: []ir.Value{ir.Ref("a", i32), ir.IntValue(1, i32)}},
				{Name: "z", Op: ir.OpMul, Type: i32, Args: []ir.Value{ir.Ref("x", i32), ir.Ref("y", i32)}},
			},
			Term: retOf(ir.Ref("z", i32)),
		}},
	}

	o := New(O2)
	changed := o.cse(f)

	assert.True(changed)
	require.Len(t, f.Blocks[0].Instrs, 2)
	mul := f.Blocks[0].Instrs[1]
	assert.Equal("x", mul.Args[0].Name)
	assert.Equal("x", mul.Args[1].Name, "the duplicate should canonicalize to the first name")
}

func Test_strengthReduce_mulByPowerOfTwoBecomesShift(t *testing.T) {
	assert := assert.New(t)
	f := &ir.Function{
		Name:   "f",
		Params: []ir.Param{{Name: "a", Type: i32}},
		Return: i32,
		Blocks: []*ir.Block{{
			Label: "entry",
			Instrs: []*ir.Instr{
				{Name: "x", Op: ir.OpMul, Type: i32, Args: []ir.Value{ir.Ref("a", i32), ir.IntValue(8, i32)}},
			},
			Term: retOf(ir.Ref("x", i32)),
		}},
	}

	o := New(O3)
	changed := o.strengthReduce(f)

	assert.True(changed)
	require.Len(t, f.Blocks[0].Instrs, 1)
	in := f.Blocks[0].Instrs[0]
	assert.Equal(ir.OpShl, in.Op)
	assert.Equal(int64(3), in.Args[1].Const.Int)
}

func Test_strengthReduce_identityMulCollapses(t *testing.T) {
	assert := assert.New(t)
	f := &ir.Function{
		Name:   "f",
		Params: []ir.Param{{Name: "a", Type: i32}},
		Return: i32,
		Blocks: []*ir.Block{{
			Label: "entry",
			Instrs: []*ir.Instr{
				{Name: "x", Op: ir.OpMul, Type: i32, Args: []ir.Value{ir.Ref("a", i32), ir.IntValue(1, i32)}},
			},
			Term: retOf(ir.Ref("x", i32)),
		}},
	}

	o := New(O3)
	o.strengthReduce(f)

	assert.Empty(f.Blocks[0].Instrs)
	assert.Equal("a", f.Blocks[0].Term.Value.Name)
}

func Test_inline_smallCalleeSubstituted(t *testing.T) {
	assert := assert.New(t)
	callee := &ir.Function{
		Name:   "inc",
		Params: []ir.Param{{Name: "n", Type: i32}},
		Return: i32,
		Blocks: []*ir.Block{{
			Label: "entry",
			Instrs: []*ir.Instr{
				{Name: "r", Op: ir.OpAdd, Type: i32, Args: []ir.Value{ir.Ref("n", i32), ir.IntValue(1, i32)}},
			},
			Term: retOf(ir.Ref("r", i32)),
		}},
	}
	caller := &ir.Function{
		Name:   "f",
		Params: []ir.Param{{Name: "a", Type: i32}},
		Return: i32,
		Blocks: []*ir.Block{{
			Label: "entry",
			Instrs: []*ir.Instr{
				{Name: "c", Op: ir.OpCall, Callee: "inc", Type: i32, Args: []ir.Value{ir.Ref("a", i32)}},
			},
			Term: retOf(ir.Ref("c", i32)),
		}},
	}
	m := &ir.Module{Functions: []*ir.Function{caller, callee}}

	o := New(O2)
	changed := o.inline(m, inlineThresholdO2)
	require.True(t, changed)

	for _, b := range caller.Blocks {
		for _, in := range b.Instrs {
			assert.NotEqual(ir.OpCall, in.Op, "the call should be gone")
		}
	}
	assert.Empty(ir.Validate(&ir.Module{Functions: []*ir.Function{caller}}))
}

func Test_inline_recursiveCalleeSkipped(t *testing.T) {
	assert := assert.New(t)
	rec := &ir.Function{
		Name:   "r",
		Params: []ir.Param{{Name: "n", Type: i32}},
		Return: i32,
		Blocks: []*ir.Block{{
			Label: "entry",
			Instrs: []*ir.Instr{
				{Name: "c", Op: ir.OpCall, Callee: "r", Type: i32, Args: []ir.Value{ir.Ref("n", i32)}},
			},
			Term: retOf(ir.Ref("c", i32)),
		}},
	}
	m := &ir.Module{Functions: []*ir.Function{rec}}

	o := New(O2)
	assert.False(o.inline(m, inlineThresholdO2))
}

func Test_tailCall_selfCallInReturnPositionBecomesJump(t *testing.T) {
	assert := assert.New(t)
	cond := ir.Ref("done", types.BoolType)
	f := &ir.Function{
		Name:   "count",
		Params: []ir.Param{{Name: "n", Type: i32}},
		Return: i32,
		Blocks: []*ir.Block{
			{
				Label: "entry",
				Instrs: []*ir.Instr{
					{Name: "done", Op: ir.OpICmp, Cond: ir.CondLE, Type: types.BoolType,
						Args: []ir.Value{ir.Ref("n", i32), ir.IntValue(0, i32)}},
				},
				Term: &ir.Terminator{Kind: ir.TermCondBr, Value: &cond, Then: "base", Else: "rec"},
			},
			{Label: "base", Term: retOf(ir.IntValue(0, i32))},
			{
				Label: "rec",
				Instrs: []*ir.Instr{
					{Name: "m", Op: ir.OpSub, Type: i32, Args: []ir.Value{ir.Ref("n", i32), ir.IntValue(1, i32)}},
					{Name: "c", Op: ir.OpCall, Callee: "count", Type: i32, Args: []ir.Value{ir.Ref("m", i32)}},
				},
				Term: retOf(ir.Ref("c", i32)),
			},
		},
	}

	o := New(O2)
	changed := o.tailCall(f)
	require.True(t, changed)

	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			assert.NotEqual(ir.OpCall, in.Op, "the self tail call should be a jump now")
		}
	}
	var phis int
	for _, in := range f.Blocks[1].Instrs {
		if in.Op == ir.OpPhi {
			phis++
			assert.Len(in.Incoming, 2, "one incoming from first entry, one from the jump")
		}
	}
	assert.Equal(1, phis, "one parameter, one rebinding phi")
	assert.Empty(ir.Validate(&ir.Module{Functions: []*ir.Function{f}}))
}

func Test_licm_invariantInstrHoistedToPreheader(t *testing.T) {
	assert := assert.New(t)
	iv := ir.Ref("i.phi", i32)
	cond := ir.Ref("c", types.BoolType)
	f := &ir.Function{
		Name:   "f",
		Params: []ir.Param{{Name: "a", Type: i32}, {Name: "b", Type: i32}},
		Return: i32,
		Blocks: []*ir.Block{
			{Label: "entry", Term: &ir.Terminator{Kind: ir.TermBr, Target: "head"}},
			{
				Label: "head",
				Instrs: []*ir.Instr{
					{Name: "i.phi", Op: ir.OpPhi, Type: i32, Incoming: []ir.Incoming{
						{Value: ir.IntValue(0, i32), Pred: "entry"},
						{Value: ir.Ref("i.next", i32), Pred: "body"},
					}},
					{Name: "c", Op: ir.OpICmp, Cond: ir.CondLT, Type: types.BoolType,
						Args: []ir.Value{iv, ir.IntValue(10, i32)}},
				},
				Term: &ir.Terminator{Kind: ir.TermCondBr, Value: &cond, Then: "body", Else: "exit"},
			},
			{
				Label: "body",
				Instrs: []*ir.Instr{
					{Name: "inv", Op: ir.OpMul, Type: i32, Args: []ir.Value{ir.Ref("a", i32), ir.Ref("b", i32)}},
					{Name: "i.next", Op: ir.OpAdd, Type: i32, Args: []ir.Value{iv, ir.Ref("inv", i32)}},
				},
				Term: &ir.Terminator{Kind: ir.TermBr, Target: "head"},
			},
			{Label: "exit", Term: retOf(iv)},
		},
	}

	o := New(O3)
	changed := o.licm(f)
	require.True(t, changed)

	entry := f.Block("entry")
	var hoisted bool
	for _, in := range entry.Instrs {
		if in.Name == "inv" {
			hoisted = true
		}
	}
	assert.True(hoisted, "a*b is invariant and should sit in the preheader")
	for _, in := range f.Block("body").Instrs {
		assert.NotEqual("inv", in.Name)
	}
	assert.Empty(ir.Validate(&ir.Module{Functions: []*ir.Function{f}}))
}
