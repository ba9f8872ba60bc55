package ir

import (
	"fmt"

	"github.com/dekarrin/vela/internal/types"
	"github.com/dekarrin/vela/internal/util"
)

// Validate checks the structural SSA invariants over every function in
// m. A non-empty result signals a compiler bug, not a user error: lowering
// and every optimizer pass must preserve all of these.
func Validate(m *Module) []error {
	moduleNames := util.NewStringSet()
	for _, g := range m.Globals {
		moduleNames.Add(g.Name)
	}
	for _, f := range m.Functions {
		moduleNames.Add(f.Name)
	}
	var errs []error
	for _, f := range m.Functions {
		errs = append(errs, validateFunction(f, moduleNames)...)
	}
	return errs
}

func validateFunction(f *Function, moduleNames util.StringSet) []error {
	var errs []error
	failf := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("fn @%s: %s", f.Name, fmt.Sprintf(format, args...)))
	}

	if len(f.Blocks) == 0 {
		failf("has no blocks")
		return errs
	}

	labels := util.NewStringSet()
	for _, b := range f.Blocks {
		if labels.Has(b.Label) {
			failf("duplicate block label %q", b.Label)
		}
		labels.Add(b.Label)
	}

	// every block ends with exactly one terminator and nothing after it
	for _, b := range f.Blocks {
		if b.Term == nil {
			failf("block %%%s has no terminator", b.Label)
			continue
		}
		for _, tgt := range b.Term.Targets() {
			if !labels.Has(tgt) {
				failf("block %%%s branches to undefined label %%%s", b.Label, tgt)
			}
		}
	}

	d := Dominance(f)

	// the entry block has no predecessors
	if len(d.Preds[f.Blocks[0].Label]) != 0 {
		failf("entry block %%%s has predecessors", f.Blocks[0].Label)
	}

	// every non-entry block is reachable from the entry
	reach := d.Reachable()
	for _, b := range f.Blocks[1:] {
		if !reach.Has(b.Label) {
			failf("block %%%s is unreachable from the entry", b.Label)
		}
	}

	// every SSA name is defined exactly once
	defBlock := map[string]string{}
	for _, p := range f.Params {
		defBlock[p.Name] = f.Blocks[0].Label
	}
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Name == "" {
				continue
			}
			if _, dup := defBlock[in.Name]; dup {
				failf("%%%s is defined more than once", in.Name)
			}
			defBlock[in.Name] = b.Label
		}
	}

	// every phi lists exactly one operand per predecessor
	for _, b := range f.Blocks {
		for _, in := range b.Instrs {
			if in.Op != OpPhi {
				continue
			}
			preds := util.StringSetOf(d.Preds[b.Label])
			listed := util.NewStringSet()
			for _, inc := range in.Incoming {
				if listed.Has(inc.Pred) {
					failf("phi %%%s lists predecessor %%%s twice", in.Name, inc.Pred)
				}
				listed.Add(inc.Pred)
			}
			if !listed.Equal(preds) {
				failf("phi %%%s operands %s do not match predecessors %s of block %%%s",
					in.Name, listed.StringOrdered(), preds.StringOrdered(), b.Label)
			}
		}
	}

	// every used value was defined on every path to the use (dominance)
	for _, b := range f.Blocks {
		if !reach.Has(b.Label) {
			continue
		}
		seenHere := util.NewStringSet()
		checkUse := func(v Value, what string) {
			if v.IsConst() || v.Name == "" || moduleNames.Has(v.Name) {
				return
			}
			db, defined := defBlock[v.Name]
			if !defined {
				failf("%s in block %%%s uses undefined value %%%s", what, b.Label, v.Name)
				return
			}
			if db == b.Label {
				if !seenHere.Has(v.Name) {
					failf("%s in block %%%s uses %%%s before its definition", what, b.Label, v.Name)
				}
				return
			}
			if !d.Dominates(db, b.Label) {
				failf("%s in block %%%s uses %%%s whose definition in %%%s does not dominate the use",
					what, b.Label, v.Name, db)
			}
		}
		if b.Label == f.Blocks[0].Label {
			for _, p := range f.Params {
				seenHere.Add(p.Name)
			}
		}
		for _, in := range b.Instrs {
			if in.Op == OpPhi {
				// a phi's operands are read at the end of the predecessor,
				// so each incoming value must dominate its predecessor
				// rather than this block.
				for _, inc := range in.Incoming {
					if inc.Value.IsConst() || inc.Value.Name == "" || moduleNames.Has(inc.Value.Name) {
						continue
					}
					db, defined := defBlock[inc.Value.Name]
					if !defined {
						failf("phi %%%s uses undefined value %%%s", in.Name, inc.Value.Name)
						continue
					}
					if db != inc.Pred && !d.Dominates(db, inc.Pred) {
						failf("phi %%%s incoming %%%s does not dominate predecessor %%%s",
							in.Name, inc.Value.Name, inc.Pred)
					}
				}
			} else {
				for _, u := range in.Uses() {
					checkUse(u, in.Op.String())
				}
			}
			if in.Name != "" {
				seenHere.Add(in.Name)
			}
		}
		if b.Term != nil && b.Term.Value != nil {
			checkUse(*b.Term.Value, b.Term.Kind.kindName())
		}
	}

	// return terminators carry a value compatible with the return type
	for _, b := range f.Blocks {
		if b.Term == nil || b.Term.Kind != TermRet {
			continue
		}
		unitReturn := f.Return == nil || f.Return.Kind == types.Unit
		if b.Term.Value == nil && !unitReturn {
			failf("block %%%s returns unit from a function returning %s", b.Label, f.Return)
		}
	}

	return errs
}

func (k TermKind) kindName() string {
	switch k {
	case TermRet:
		return "ret"
	case TermBr:
		return "br"
	case TermCondBr:
		return "condbr"
	case TermSwitch:
		return "switch"
	case TermUnreachable:
		return "unreachable"
	default:
		return "<invalid>"
	}
}
