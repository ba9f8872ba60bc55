package optimize

import (
	"github.com/dekarrin/vela/internal/ir"
)

// tailCall converts a direct self-call in return position into a jump back
// to the function entry with the parameters rebound:
// the entry grows a phi per parameter selecting the original argument on
// first entry and the tail call's arguments on each jump.
func (o *Optimizer) tailCall(f *ir.Function) bool {
	if len(f.Blocks) == 0 || len(f.Params) == 0 {
		return false
	}

	// find blocks ending in `x = call @self(...); ret x`
	type site struct {
		block *ir.Block
		call  *ir.Instr
	}
	var sites []site
	for _, b := range f.Blocks {
		if b.Term == nil || b.Term.Kind != ir.TermRet || len(b.Instrs) == 0 {
			continue
		}
		last := b.Instrs[len(b.Instrs)-1]
		if last.Op != ir.OpCall || last.Callee != f.Name {
			continue
		}
		if b.Term.Value == nil || b.Term.Value.IsConst() || b.Term.Value.Name != last.Name {
			continue
		}
		sites = append(sites, site{block: b, call: last})
	}
	if len(sites) == 0 {
		return false
	}

	oldEntry := f.Blocks[0]

	// fresh entry that only jumps to the loop header the old entry becomes
	newEntry := &ir.Block{
		Label: "tc.entry",
		Term:  &ir.Terminator{Kind: ir.TermBr, Target: oldEntry.Label},
	}

	// one phi per parameter at the old entry
	var phis []*ir.Instr
	for _, p := range f.Params {
		phi := &ir.Instr{
			Name: p.Name + ".tc",
			Op:   ir.OpPhi,
			Type: p.Type,
			Incoming: []ir.Incoming{
				{Value: ir.Ref(p.Name, p.Type), Pred: newEntry.Label},
			},
		}
		phis = append(phis, phi)
	}

	// every use of a parameter now reads the phi instead
	for i, p := range f.Params {
		replaceUses(f, p.Name, ir.Ref(phis[i].Name, p.Type))
		// except the phi's own first incoming, which is the original value
		phis[i].Incoming[0].Value = ir.Ref(p.Name, p.Type)
	}

	oldEntry.Instrs = append(phis, oldEntry.Instrs...)
	f.Blocks = append([]*ir.Block{newEntry}, f.Blocks...)

	for _, s := range sites {
		for i := range phis {
			arg := ir.IntValue(0, f.Params[i].Type)
			if i < len(s.call.Args) {
				arg = s.call.Args[i]
			}
			phis[i].Incoming = append(phis[i].Incoming, ir.Incoming{Value: arg, Pred: s.block.Label})
		}
		s.block.Instrs = s.block.Instrs[:len(s.block.Instrs)-1]
		s.block.Term = &ir.Terminator{Kind: ir.TermBr, Target: oldEntry.Label, Span: s.block.Term.Span}
	}
	return true
}
