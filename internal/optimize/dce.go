package optimize

import (
	"github.com/dekarrin/vela/internal/ir"
	"github.com/dekarrin/vela/internal/util"
)

// deadCode is the two-part elimination: (a) instructions
// whose result is unused and which have no side effects (calls and stores
// are always kept), and (b) blocks unreachable from the entry, iterated
// with control-flow simplification so a branch on a folded constant
// condition exposes more unreachable blocks.
func (o *Optimizer) deadCode(f *ir.Function) bool {
	changed := false
	for {
		iterChanged := false
		iterChanged = simplifyControlFlow(f) || iterChanged
		iterChanged = removeUnreachable(f) || iterChanged
		iterChanged = removeDeadInstrs(f) || iterChanged
		if !iterChanged {
			break
		}
		changed = true
	}
	return changed
}

// removeDeadInstrs deletes instructions whose result no one reads, unless
// the operation has side effects.
func removeDeadInstrs(f *ir.Function) bool {
	used := util.NewStringSet()
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			for _, u := range in.Uses() {
				if !u.IsConst() {
					used.Add(u.Name)
				}
			}
		}
		if b.Term != nil && b.Term.Value != nil && !b.Term.Value.IsConst() {
			used.Add(b.Term.Value.Name)
		}
	}

	changed := false
	for _, b := range f.Blocks {
		kept := b.Instrs[:0]
		for _, in := range b.Instrs {
			if in.Op == ir.OpCall || in.Op == ir.OpStore {
				kept = append(kept, in)
				continue
			}
			if in.Name != "" && !used.Has(in.Name) {
				changed = true
				continue
			}
			kept = append(kept, in)
		}
		b.Instrs = kept
	}
	return changed
}

// simplifyControlFlow rewrites conditional branches whose condition folded
// to a constant into unconditional branches, and switches on a constant
// into a branch to the matching case.
func simplifyControlFlow(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks {
		if b.Term == nil {
			continue
		}
		switch b.Term.Kind {
		case ir.TermCondBr:
			if b.Term.Value != nil && b.Term.Value.IsConst() && b.Term.Value.Const.Kind == ir.ConstBool {
				target := b.Term.Else
				dropped := b.Term.Then
				if b.Term.Value.Const.Bool {
					target = b.Term.Then
					dropped = b.Term.Else
				}
				b.Term = &ir.Terminator{Kind: ir.TermBr, Target: target, Span: b.Term.Span}
				if dropped != target {
					removePhiPred(f, dropped, b.Label)
				}
				changed = true
			}
		case ir.TermSwitch:
			if b.Term.Value != nil && b.Term.Value.IsConst() {
				target := b.Term.Else
				for _, c := range b.Term.Cases {
					if c.Value.Equal(*b.Term.Value.Const) {
						target = c.Target
						break
					}
				}
				old := b.Term
				b.Term = &ir.Terminator{Kind: ir.TermBr, Target: target, Span: old.Span}
				for _, t := range old.Targets() {
					if t != target {
						removePhiPred(f, t, b.Label)
					}
				}
				changed = true
			}
		}
	}
	return changed
}

// removePhiPred drops pred's operand from every phi in the named block,
// because the edge pred -> block no longer exists.
func removePhiPred(f *ir.Function, block, pred string) {
	b := f.Block(block)
	if b == nil {
		return
	}
	for _, in := range b.Instrs {
		if in.Op != ir.OpPhi {
			continue
		}
		kept := in.Incoming[:0]
		for _, inc := range in.Incoming {
			if inc.Pred != pred {
				kept = append(kept, inc)
			}
		}
		in.Incoming = kept
	}
}

// removeUnreachable prunes blocks no path from the entry reaches, fixing
// up phis in surviving blocks that listed a pruned predecessor. A phi left
// with a single incoming is replaced by that value.
func removeUnreachable(f *ir.Function) bool {
	if len(f.Blocks) == 0 {
		return false
	}
	d := ir.Dominance(f)
	reach := d.Reachable()

	changed := false
	for _, b := range f.Blocks {
		if reach.Has(b.Label) || b.Term == nil {
			continue
		}
		for _, tgt := range b.Term.Targets() {
			if reach.Has(tgt) {
				removePhiPred(f, tgt, b.Label)
			}
		}
	}
	kept := f.Blocks[:0]
	for _, b := range f.Blocks {
		if reach.Has(b.Label) {
			kept = append(kept, b)
		} else {
			changed = true
		}
	}
	f.Blocks = kept

	// collapse single-incoming phis exposed by edge removal
	for _, b := range f.Blocks {
		remaining := b.Instrs[:0]
		for _, in := range b.Instrs {
			if in.Op == ir.OpPhi && len(in.Incoming) == 1 {
				replaceUses(f, in.Name, in.Incoming[0].Value)
				changed = true
				continue
			}
			remaining = append(remaining, in)
		}
		b.Instrs = remaining
	}
	return changed
}
