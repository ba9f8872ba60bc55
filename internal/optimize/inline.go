package optimize

import (
	"fmt"

	"github.com/dekarrin/vela/internal/ir"
	"github.com/dekarrin/vela/internal/types"
	"github.com/dekarrin/vela/internal/util"
)

// branchPenalty is added to the inlining cost for each terminator with more
// than one target (conditional branch or switch), so branchy callees look
// more expensive than straight-line ones of the same instruction count.
const branchPenalty = 2

// inlineCounter gives each inlined callee copy a distinct name prefix.
var inlineCounter int

// inline substitutes callee bodies into callers when the callee's cost is
// below the threshold and the call is not (mutually) recursive. One
// substitution per caller per invocation keeps the
// fixpoint driver in control of how far inlining cascades.
func (o *Optimizer) inline(m *ir.Module, threshold int) bool {
	cyclic := callGraphCycles(m)

	changed := false
	for _, caller := range m.Functions {
		if cyclic.Has(caller.Name) {
			continue
		}
		spliced := false
		for bi := 0; bi < len(caller.Blocks) && !spliced; bi++ {
			b := caller.Blocks[bi]
			for ii, in := range b.Instrs {
				if in.Op != ir.OpCall {
					continue
				}
				callee := m.Function(in.Callee)
				if callee == nil || callee.Name == caller.Name || cyclic.Has(callee.Name) {
					continue
				}
				if cost(callee) > threshold {
					continue
				}
				spliceCall(caller, bi, ii, in, callee)
				spliced = true
				changed = true
				break
			}
		}
	}
	return changed
}

// cost is the callee's instruction count, counting one per terminator,
// plus branchPenalty per conditional branch or switch.
func cost(f *ir.Function) int {
	c := 0
	for _, b := range f.Blocks {
		c += len(b.Instrs)
		if b.Term != nil {
			c++
			if len(b.Term.Targets()) > 1 {
				c += branchPenalty
			}
		}
	}
	return c
}

// callGraphCycles returns every function on a cycle in the module's call
// graph, self-calls included.
func callGraphCycles(m *ir.Module) util.StringSet {
	calls := map[string]util.StringSet{}
	for _, f := range m.Functions {
		out := util.NewStringSet()
		for _, b := range f.Blocks {
			for _, in := range b.Instrs {
				if in.Op == ir.OpCall {
					out.Add(in.Callee)
				}
			}
		}
		calls[f.Name] = out
	}

	cyclic := util.NewStringSet()
	for name := range calls {
		// DFS from name; reaching name again means a cycle through it
		stack := calls[name].Elements()
		visited := util.NewStringSet()
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if cur == name {
				cyclic.Add(name)
				break
			}
			if visited.Has(cur) {
				continue
			}
			visited.Add(cur)
			if out, ok := calls[cur]; ok {
				stack = append(stack, out.Elements()...)
			}
		}
	}
	return cyclic
}

// spliceCall replaces the call instruction at caller.Blocks[bi].Instrs[ii]
// with a renamed copy of callee's blocks: parameters rewrite to the
// argument values, the block splits at the call site, and the return
// value(s) reach the continuation through a phi when the callee returns
// from more than one block.
func spliceCall(caller *ir.Function, bi, ii int, call *ir.Instr, callee *ir.Function) {
	inlineCounter++
	prefix := fmt.Sprintf("inl%d.", inlineCounter)

	rename := func(name string) string { return prefix + name }

	// parameter names map to the call's argument values; everything else
	// defined inside the callee gets the fresh prefix.
	argOf := map[string]ir.Value{}
	for i, p := range callee.Params {
		if i < len(call.Args) {
			argOf[p.Name] = call.Args[i]
		} else {
			argOf[p.Name] = ir.IntValue(0, p.Type)
		}
	}
	internal := util.NewStringSet()
	for _, cb := range callee.Blocks {
		for _, cin := range cb.Instrs {
			if cin.Name != "" {
				internal.Add(cin.Name)
			}
		}
	}
	mapValue := func(v ir.Value) ir.Value {
		if v.IsConst() {
			return v
		}
		if arg, isParam := argOf[v.Name]; isParam {
			return arg
		}
		if internal.Has(v.Name) {
			return ir.Ref(rename(v.Name), v.Type)
		}
		return v // module-level name
	}

	block := caller.Blocks[bi]
	contLabel := prefix + "cont"

	// copy callee blocks, rewriting names, labels, and returns
	var copied []*ir.Block
	type retSite struct {
		label string
		value *ir.Value
	}
	var rets []retSite
	for _, cb := range callee.Blocks {
		nb := &ir.Block{Label: rename(cb.Label)}
		for _, cin := range cb.Instrs {
			ni := &ir.Instr{
				Name: cin.Name, Op: cin.Op, Type: cin.Type,
				Cond: cin.Cond, Callee: cin.Callee, Index: cin.Index, Span: cin.Span,
			}
			if ni.Name != "" {
				ni.Name = rename(ni.Name)
			}
			ni.Args = make([]ir.Value, len(cin.Args))
			for i, a := range cin.Args {
				ni.Args[i] = mapValue(a)
			}
			ni.Incoming = make([]ir.Incoming, len(cin.Incoming))
			for i, inc := range cin.Incoming {
				ni.Incoming[i] = ir.Incoming{Value: mapValue(inc.Value), Pred: rename(inc.Pred)}
			}
			nb.Instrs = append(nb.Instrs, ni)
		}
		t := cb.Term
		switch t.Kind {
		case ir.TermRet:
			var rv *ir.Value
			if t.Value != nil {
				mapped := mapValue(*t.Value)
				rv = &mapped
			}
			rets = append(rets, retSite{label: nb.Label, value: rv})
			nb.Term = &ir.Terminator{Kind: ir.TermBr, Target: contLabel, Span: t.Span}
		case ir.TermBr:
			nb.Term = &ir.Terminator{Kind: ir.TermBr, Target: rename(t.Target), Span: t.Span}
		case ir.TermCondBr:
			mapped := mapValue(*t.Value)
			nb.Term = &ir.Terminator{Kind: ir.TermCondBr, Value: &mapped, Then: rename(t.Then), Else: rename(t.Else), Span: t.Span}
		case ir.TermSwitch:
			mapped := mapValue(*t.Value)
			nt := &ir.Terminator{Kind: ir.TermSwitch, Value: &mapped, Else: rename(t.Else), Span: t.Span}
			for _, c := range t.Cases {
				nt.Cases = append(nt.Cases, ir.SwitchCase{Value: c.Value, Target: rename(c.Target)})
			}
			nb.Term = nt
		default:
			nb.Term = &ir.Terminator{Kind: t.Kind, Span: t.Span}
		}
		copied = append(copied, nb)
	}

	// split the caller block at the call site
	cont := &ir.Block{Label: contLabel, Instrs: append([]*ir.Instr{}, block.Instrs[ii+1:]...), Term: block.Term}
	block.Instrs = block.Instrs[:ii]
	block.Term = &ir.Terminator{Kind: ir.TermBr, Target: copied[0].Label, Span: call.Span}

	// successors' phis that listed the split block now flow from cont
	for _, sb := range caller.Blocks {
		for _, in := range sb.Instrs {
			if in.Op != ir.OpPhi {
				continue
			}
			for i := range in.Incoming {
				if in.Incoming[i].Pred == block.Label {
					in.Incoming[i].Pred = contLabel
				}
			}
		}
	}

	// insert copied blocks and the continuation right after the call block
	rest := make([]*ir.Block, len(caller.Blocks[bi+1:]))
	copy(rest, caller.Blocks[bi+1:])
	caller.Blocks = append(caller.Blocks[:bi+1], copied...)
	caller.Blocks = append(caller.Blocks, cont)
	caller.Blocks = append(caller.Blocks, rest...)

	// wire the call's result into the continuation
	if call.Name != "" {
		resultType := call.Type
		if resultType == nil {
			resultType = types.UnitType
		}
		switch {
		case len(rets) == 1 && rets[0].value != nil:
			replaceUses(caller, call.Name, *rets[0].value)
		case len(rets) > 1:
			phi := &ir.Instr{Name: call.Name, Op: ir.OpPhi, Type: resultType}
			for _, r := range rets {
				v := ir.IntValue(0, resultType)
				if r.value != nil {
					v = *r.value
				}
				phi.Incoming = append(phi.Incoming, ir.Incoming{Value: v, Pred: r.label})
			}
			cont.Instrs = append([]*ir.Instr{phi}, cont.Instrs...)
		default:
			// unit-returning callee; the result has no uses worth keeping
			replaceUses(caller, call.Name, ir.IntValue(0, resultType))
		}
	}
}
