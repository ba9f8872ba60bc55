package optimize

import (
	"github.com/dekarrin/vela/internal/ir"
	"github.com/dekarrin/vela/internal/util"
)

// licm hoists loop-invariant pure instructions into the loop's preheader:
// for each natural loop, an instruction whose operands
// are all defined outside the loop (or are themselves invariant) moves to
// the preheader, created if absent.
func (o *Optimizer) licm(f *ir.Function) bool {
	if len(f.Blocks) == 0 {
		return false
	}
	changed := false
	for _, edge := range ir.Dominance(f).BackEdges() {
		// recompute dominance per loop: hoisting into a fresh preheader
		// changes the graph.
		d := ir.Dominance(f)
		tail, header := edge[0], edge[1]
		if !d.Dominates(header, tail) {
			continue // edge vanished in an earlier rewrite
		}
		body := d.NaturalLoop(tail, header)

		pre := o.preheader(f, d, header, body)
		if pre == nil {
			continue
		}

		// names defined inside the loop
		defined := util.NewStringSet()
		for _, l := range body.Elements() {
			blk := f.Block(l)
			for _, in := range blk.Instrs {
				if in.Name != "" {
					defined.Add(in.Name)
				}
			}
		}

		invariant := func(in *ir.Instr) bool {
			if !in.Op.IsPure() {
				return false
			}
			for _, a := range in.Uses() {
				if !a.IsConst() && defined.Has(a.Name) {
					return false
				}
			}
			return true
		}

		for moved := true; moved; {
			moved = false
			for _, l := range body.Elements() {
				blk := f.Block(l)
				kept := blk.Instrs[:0]
				for _, in := range blk.Instrs {
					if in.Name != "" && in.Op != ir.OpPhi && invariant(in) {
						pre.Instrs = append(pre.Instrs, in)
						defined.Remove(in.Name)
						moved = true
						changed = true
						continue
					}
					kept = append(kept, in)
				}
				blk.Instrs = kept
			}
		}
	}
	return changed
}

// preheader returns the block every entry into the loop passes through,
// creating one when the header's sole outside predecessor does not already
// branch to it unconditionally. Loops whose header is entered from more
// than one outside edge are left alone.
func (o *Optimizer) preheader(f *ir.Function, d *ir.DomInfo, header string, body util.StringSet) *ir.Block {
	var outside []string
	for _, p := range d.Preds[header] {
		if !body.Has(p) {
			outside = append(outside, p)
		}
	}
	if len(outside) != 1 {
		return nil
	}
	pred := f.Block(outside[0])
	if pred == nil || pred.Term == nil {
		return nil
	}
	if pred.Term.Kind == ir.TermBr {
		// the existing unconditional predecessor serves as the preheader;
		// hoisted code lands just before its branch.
		return pred
	}

	// the outside predecessor branches conditionally; give the loop a
	// dedicated preheader between them.
	pre := &ir.Block{
		Label: header + ".pre",
		Term:  &ir.Terminator{Kind: ir.TermBr, Target: header},
	}
	retargeted := false
	switch pred.Term.Kind {
	case ir.TermCondBr:
		if pred.Term.Then == header {
			pred.Term.Then = pre.Label
			retargeted = true
		}
		if pred.Term.Else == header {
			pred.Term.Else = pre.Label
			retargeted = true
		}
	case ir.TermSwitch:
		if pred.Term.Else == header {
			pred.Term.Else = pre.Label
			retargeted = true
		}
		for i := range pred.Term.Cases {
			if pred.Term.Cases[i].Target == header {
				pred.Term.Cases[i].Target = pre.Label
				retargeted = true
			}
		}
	}
	if !retargeted {
		return nil
	}

	// phis in the header now receive the outside value via the preheader
	hblk := f.Block(header)
	for _, in := range hblk.Instrs {
		if in.Op != ir.OpPhi {
			continue
		}
		for i := range in.Incoming {
			if in.Incoming[i].Pred == pred.Label {
				in.Incoming[i].Pred = pre.Label
			}
		}
	}

	f.Blocks = append(f.Blocks, pre)
	return pre
}
