package optimize

import (
	"fmt"
	"strings"

	"github.com/dekarrin/vela/internal/ir"
)

// cse performs common subexpression elimination by global value numbering:
// every pure instruction gets a canonical key of its
// operation and canonicalized operand names; a repeated key's result is
// rewritten to the first occurrence. The table is scoped by the dominator
// tree so the surviving definition always dominates the rewritten uses.
// Loads are not pure (an intervening store may change them) and are never
// merged.
func (o *Optimizer) cse(f *ir.Function) bool {
	if len(f.Blocks) == 0 {
		return false
	}
	d := ir.Dominance(f)
	children := d.Children()

	seen := map[string]string{}   // canonical key -> first defining name
	canon := map[string]string{}  // name -> canonical (surviving) name
	changed := false

	canonName := func(v ir.Value) string {
		if v.IsConst() {
			return v.Const.String()
		}
		name := v.Name
		for {
			next, ok := canon[name]
			if !ok {
				return name
			}
			name = next
		}
	}

	key := func(in *ir.Instr) string {
		var sb strings.Builder
		sb.WriteString(in.Op.String())
		if in.Op == ir.OpICmp || in.Op == ir.OpFCmp {
			sb.WriteString("." + in.Cond.String())
		}
		if in.Op == ir.OpExtractValue || in.Op == ir.OpInsertValue {
			fmt.Fprintf(&sb, ".%d", in.Index)
		}
		for _, a := range in.Args {
			sb.WriteString("|" + canonName(a))
		}
		return sb.String()
	}

	var walk func(label string)
	walk = func(label string) {
		b := f.Block(label)
		var added []string

		kept := b.Instrs[:0]
		for _, in := range b.Instrs {
			// rewrite operands through the canonical map first
			for i := range in.Args {
				if !in.Args[i].IsConst() {
					if c := canonName(in.Args[i]); c != in.Args[i].Name {
						in.Args[i] = ir.Ref(c, in.Args[i].Type)
						changed = true
					}
				}
			}
			for i := range in.Incoming {
				if !in.Incoming[i].Value.IsConst() {
					if c := canonName(in.Incoming[i].Value); c != in.Incoming[i].Value.Name {
						in.Incoming[i].Value = ir.Ref(c, in.Incoming[i].Value.Type)
						changed = true
					}
				}
			}

			if !in.Op.IsPure() || in.Name == "" {
				kept = append(kept, in)
				continue
			}
			k := key(in)
			if first, dup := seen[k]; dup {
				canon[in.Name] = first
				changed = true
				continue // dropped; uses are rewritten as they are visited
			}
			seen[k] = in.Name
			added = append(added, k)
			kept = append(kept, in)
		}
		b.Instrs = kept

		if b.Term != nil && b.Term.Value != nil && !b.Term.Value.IsConst() {
			if c := canonName(*b.Term.Value); c != b.Term.Value.Name {
				v := ir.Ref(c, b.Term.Value.Type)
				b.Term.Value = &v
				changed = true
			}
		}

		for _, child := range children[label] {
			walk(child)
		}
		for _, k := range added {
			delete(seen, k)
		}
	}
	walk(f.Blocks[0].Label)
	return changed
}
