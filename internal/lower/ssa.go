package lower

import (
	"fmt"

	"github.com/dekarrin/vela/internal/ir"
	"github.com/dekarrin/vela/internal/types"
	"github.com/dekarrin/vela/internal/util"
)

// promote rewrites f into SSA form: every alloca whose
// address never escapes (its only uses are loads and stores) is replaced by
// direct value flow, with phi nodes placed at the iterated dominance
// frontier of its defining blocks and names resolved by a preorder walk of
// the dominator tree.
func promote(f *ir.Function) {
	if len(f.Blocks) == 0 {
		return
	}
	d := ir.Dominance(f)

	// candidate slots: every entry-block alloca, minus any whose address
	// is used by something other than a load or the pointer side of a
	// store.
	slotType := map[string]*types.Type{}
	for _, in := range f.Blocks[0].Instrs {
		if in.Op == ir.OpAlloca && in.Type != nil {
			slotType[in.Name] = in.Type.Elem
		}
	}
	escaped := func(name string) {
		delete(slotType, name)
	}
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			switch in.Op {
			case ir.OpAlloca:
				// the definition itself is not a use
			case ir.OpLoad:
				// address position is fine
			case ir.OpStore:
				// storing the address itself (arg 0) leaks it
				if !in.Args[0].IsConst() {
					if _, isSlot := slotType[in.Args[0].Name]; isSlot {
						escaped(in.Args[0].Name)
					}
				}
			default:
				for _, a := range in.Uses() {
					if !a.IsConst() {
						if _, isSlot := slotType[a.Name]; isSlot {
							escaped(a.Name)
						}
					}
				}
			}
		}
		if b.Term != nil && b.Term.Value != nil && !b.Term.Value.IsConst() {
			if _, isSlot := slotType[b.Term.Value.Name]; isSlot {
				escaped(b.Term.Value.Name)
			}
		}
	}
	if len(slotType) == 0 {
		return
	}

	// blocks that store each promotable slot
	defBlocks := map[string]util.StringSet{}
	for v := range slotType {
		defBlocks[v] = util.NewStringSet()
	}
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op == ir.OpStore && !in.Args[1].IsConst() {
				if _, isSlot := slotType[in.Args[1].Name]; isSlot {
					defBlocks[in.Args[1].Name].Add(b.Label)
				}
			}
		}
	}

	// phi placement at the iterated dominance frontier: a placed phi is
	// itself a definition, so its block joins the worklist.
	df := d.Frontier()
	phiVar := map[*ir.Instr]string{}
	phiCount := 0
	for v, defs := range defBlocks {
		hasPhi := util.NewStringSet()
		worklist := defs.Elements()
		for len(worklist) > 0 {
			b := worklist[len(worklist)-1]
			worklist = worklist[:len(worklist)-1]
			for _, frontier := range df[b].Elements() {
				if hasPhi.Has(frontier) {
					continue
				}
				hasPhi.Add(frontier)
				phiCount++
				phi := &ir.Instr{
					Name: fmt.Sprintf("%s.phi%d", v, phiCount),
					Op:   ir.OpPhi,
					Type: slotType[v],
				}
				blk := f.Block(frontier)
				blk.Instrs = append([]*ir.Instr{phi}, blk.Instrs...)
				phiVar[phi] = v
				if !defs.Has(frontier) {
					worklist = append(worklist, frontier)
				}
			}
		}
	}

	// rename along the dominator tree
	stacks := map[string][]ir.Value{}
	replace := map[string]ir.Value{}
	resolve := func(val ir.Value) ir.Value {
		for !val.IsConst() {
			next, ok := replace[val.Name]
			if !ok {
				return val
			}
			val = next
		}
		return val
	}
	top := func(v string) ir.Value {
		st := stacks[v]
		if len(st) == 0 {
			return zeroValue(slotType[v])
		}
		return st[len(st)-1]
	}
	children := d.Children()

	var walk func(label string)
	walk = func(label string) {
		b := f.Block(label)
		pushed := map[string]int{}

		kept := b.Instrs[:0]
		for _, in := range b.Instrs {
			if v, isPhi := phiVar[in]; isPhi {
				stacks[v] = append(stacks[v], ir.Ref(in.Name, in.Type))
				pushed[v]++
				kept = append(kept, in)
				continue
			}
			for i := range in.Args {
				in.Args[i] = resolve(in.Args[i])
			}
			switch in.Op {
			case ir.OpAlloca:
				if _, isSlot := slotType[in.Name]; isSlot {
					continue // dropped
				}
			case ir.OpLoad:
				if !in.Args[0].IsConst() {
					if _, isSlot := slotType[in.Args[0].Name]; isSlot {
						replace[in.Name] = top(in.Args[0].Name)
						continue // dropped
					}
				}
			case ir.OpStore:
				if !in.Args[1].IsConst() {
					if _, isSlot := slotType[in.Args[1].Name]; isSlot {
						stacks[in.Args[1].Name] = append(stacks[in.Args[1].Name], in.Args[0])
						pushed[in.Args[1].Name]++
						continue // dropped
					}
				}
			}
			kept = append(kept, in)
		}
		b.Instrs = kept

		if b.Term != nil && b.Term.Value != nil {
			resolved := resolve(*b.Term.Value)
			b.Term.Value = &resolved
		}

		// fill this predecessor's operand slot in every successor phi
		seenSucc := util.NewStringSet()
		for _, succ := range d.Succs[label] {
			if seenSucc.Has(succ) {
				continue
			}
			seenSucc.Add(succ)
			sb := f.Block(succ)
			for _, in := range sb.Instrs {
				v, isPhi := phiVar[in]
				if !isPhi {
					continue
				}
				in.Incoming = append(in.Incoming, ir.Incoming{Value: top(v), Pred: label})
			}
		}

		for _, child := range children[label] {
			walk(child)
		}

		for v, n := range pushed {
			stacks[v] = stacks[v][:len(stacks[v])-n]
		}
	}
	walk(f.Blocks[0].Label)
}

// zeroValue is the value an uninitialized promoted slot reads as: the zero
// of its type.
func zeroValue(t *types.Type) ir.Value {
	if t == nil {
		return ir.IntValue(0, types.I32Type)
	}
	switch {
	case t.Kind == types.Primitive && t.Prim == types.Bool:
		return ir.BoolValue(false)
	case isFloatType(t):
		return ir.FloatValue(0, t)
	default:
		return ir.IntValue(0, t)
	}
}
