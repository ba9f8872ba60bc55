package optimize

import (
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/ir"
	"github.com/dekarrin/vela/internal/types"
)

// intWidth returns the bit width and signedness of an integer-typed value.
func intWidth(t *types.Type) (bits uint, signed bool) {
	if t == nil || t.Kind != types.Primitive {
		return 64, true
	}
	switch t.Prim {
	case types.I8:
		return 8, true
	case types.I16:
		return 16, true
	case types.I32:
		return 32, true
	case types.I64:
		return 64, true
	case types.U8:
		return 8, false
	case types.U16:
		return 16, false
	case types.U32:
		return 32, false
	case types.U64:
		return 64, false
	default:
		return 64, true
	}
}

// fitsWidth reports whether v is representable in the given integer width.
func fitsWidth(v int64, bits uint, signed bool) bool {
	if bits >= 64 {
		return true
	}
	if signed {
		min := -(int64(1) << (bits - 1))
		max := (int64(1) << (bits - 1)) - 1
		return v >= min && v <= max
	}
	max := (int64(1) << bits) - 1
	return v >= 0 && v <= max
}

// checkedIntOp evaluates an integer arithmetic op with overflow checking,
// and the source's checked-arithmetic rule: folding that
// would overflow the result type declines to fold and reports a warning.
// ok is false when the fold must not happen (overflow or division by zero);
// overflow additionally distinguishes the warning-worthy case.
func checkedIntOp(op ir.Op, a, b int64, t *types.Type) (result int64, ok, overflow bool) {
	bits, signed := intWidth(t)
	switch op {
	case ir.OpAdd:
		r := a + b
		if (b > 0 && r < a) || (b < 0 && r > a) || !fitsWidth(r, bits, signed) {
			return 0, false, true
		}
		return r, true, false
	case ir.OpSub:
		r := a - b
		if (b < 0 && r < a) || (b > 0 && r > a) || !fitsWidth(r, bits, signed) {
			return 0, false, true
		}
		return r, true, false
	case ir.OpMul:
		if a == 0 || b == 0 {
			return 0, true, false
		}
		r := a * b
		if r/b != a || !fitsWidth(r, bits, signed) {
			return 0, false, true
		}
		return r, true, false
	case ir.OpSDiv, ir.OpUDiv:
		if b == 0 {
			return 0, false, false // not folded, no warning: runtime trap
		}
		return a / b, true, false
	case ir.OpSRem, ir.OpURem:
		if b == 0 {
			return 0, false, false
		}
		return a % b, true, false
	case ir.OpAnd:
		return a & b, true, false
	case ir.OpOr:
		return a | b, true, false
	case ir.OpXor:
		return a ^ b, true, false
	case ir.OpShl:
		if b < 0 || uint(b) >= bits {
			return 0, false, false
		}
		r := a << uint(b)
		if !fitsWidth(r, bits, signed) {
			return 0, false, true
		}
		return r, true, false
	case ir.OpShr:
		if b < 0 || uint(b) >= bits {
			return 0, false, false
		}
		return a >> uint(b), true, false
	default:
		return 0, false, false
	}
}

func evalCmp(c ir.Cond, cmp int) bool {
	switch c {
	case ir.CondEq:
		return cmp == 0
	case ir.CondNe:
		return cmp != 0
	case ir.CondLT:
		return cmp < 0
	case ir.CondLE:
		return cmp <= 0
	case ir.CondGT:
		return cmp > 0
	case ir.CondGE:
		return cmp >= 0
	default:
		return false
	}
}

// foldInstr computes in's result if every operand is constant. ok is false
// when the instruction cannot (or must not) fold.
func (o *Optimizer) foldInstr(in *ir.Instr) (ir.Value, bool) {
	for _, a := range in.Args {
		if !a.IsConst() {
			return ir.Value{}, false
		}
	}
	switch in.Op {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpSDiv, ir.OpUDiv, ir.OpSRem, ir.OpURem,
		ir.OpAnd, ir.OpOr, ir.OpXor, ir.OpShl, ir.OpShr:
		a, b := in.Args[0].Const, in.Args[1].Const
		if a.Kind == ir.ConstBool && b.Kind == ir.ConstBool {
			// boolean and/or/xor
			switch in.Op {
			case ir.OpAnd:
				return ir.BoolValue(a.Bool && b.Bool), true
			case ir.OpOr:
				return ir.BoolValue(a.Bool || b.Bool), true
			case ir.OpXor:
				return ir.BoolValue(a.Bool != b.Bool), true
			}
			return ir.Value{}, false
		}
		if a.Kind != ir.ConstInt || b.Kind != ir.ConstInt {
			return ir.Value{}, false
		}
		r, ok, overflow := checkedIntOp(in.Op, a.Int, b.Int, in.Type)
		if !ok {
			if overflow {
				o.diags.Add(diag.New(diag.Warning, "W0801", in.Span,
					"this arithmetic operation will overflow at compile time; it was left for runtime"))
			}
			return ir.Value{}, false
		}
		return ir.IntValue(r, in.Type), true

	case ir.OpFAdd, ir.OpFSub, ir.OpFMul, ir.OpFDiv:
		a, b := in.Args[0].Const, in.Args[1].Const
		if a.Kind != ir.ConstFloat || b.Kind != ir.ConstFloat {
			return ir.Value{}, false
		}
		var r float64
		switch in.Op {
		case ir.OpFAdd:
			r = a.Float + b.Float
		case ir.OpFSub:
			r = a.Float - b.Float
		case ir.OpFMul:
			r = a.Float * b.Float
		case ir.OpFDiv:
			if b.Float == 0 {
				return ir.Value{}, false
			}
			r = a.Float / b.Float
		}
		return ir.FloatValue(r, in.Type), true

	case ir.OpNeg:
		a := in.Args[0].Const
		if a.Kind != ir.ConstInt {
			return ir.Value{}, false
		}
		bits, signed := intWidth(in.Type)
		if !fitsWidth(-a.Int, bits, signed) {
			o.diags.Add(diag.New(diag.Warning, "W0801", in.Span,
				"this arithmetic operation will overflow at compile time; it was left for runtime"))
			return ir.Value{}, false
		}
		return ir.IntValue(-a.Int, in.Type), true

	case ir.OpFNeg:
		a := in.Args[0].Const
		if a.Kind != ir.ConstFloat {
			return ir.Value{}, false
		}
		return ir.FloatValue(-a.Float, in.Type), true

	case ir.OpNot:
		a := in.Args[0].Const
		if a.Kind == ir.ConstBool {
			return ir.BoolValue(!a.Bool), true
		}
		if a.Kind == ir.ConstInt {
			return ir.IntValue(^a.Int, in.Type), true
		}
		return ir.Value{}, false

	case ir.OpICmp:
		a, b := in.Args[0].Const, in.Args[1].Const
		switch {
		case a.Kind == ir.ConstInt && b.Kind == ir.ConstInt:
			cmp := 0
			if a.Int < b.Int {
				cmp = -1
			} else if a.Int > b.Int {
				cmp = 1
			}
			return ir.BoolValue(evalCmp(in.Cond, cmp)), true
		case a.Kind == ir.ConstBool && b.Kind == ir.ConstBool:
			if in.Cond == ir.CondEq {
				return ir.BoolValue(a.Bool == b.Bool), true
			}
			if in.Cond == ir.CondNe {
				return ir.BoolValue(a.Bool != b.Bool), true
			}
		}
		return ir.Value{}, false

	case ir.OpFCmp:
		a, b := in.Args[0].Const, in.Args[1].Const
		if a.Kind != ir.ConstFloat || b.Kind != ir.ConstFloat {
			return ir.Value{}, false
		}
		cmp := 0
		if a.Float < b.Float {
			cmp = -1
		} else if a.Float > b.Float {
			cmp = 1
		}
		return ir.BoolValue(evalCmp(in.Cond, cmp)), true

	case ir.OpSelect:
		c := in.Args[0].Const
		if c.Kind != ir.ConstBool {
			return ir.Value{}, false
		}
		if c.Bool {
			return in.Args[1], true
		}
		return in.Args[2], true

	case ir.OpTrunc, ir.OpZext, ir.OpSext, ir.OpBitcast:
		a := in.Args[0].Const
		if a.Kind != ir.ConstInt {
			return ir.Value{}, false
		}
		bits, signed := intWidth(in.Type)
		v := a.Int
		if in.Op == ir.OpTrunc && bits < 64 {
			v &= (int64(1) << bits) - 1
			if signed && v&(int64(1)<<(bits-1)) != 0 {
				v -= int64(1) << bits
			}
		}
		return ir.IntValue(v, in.Type), true

	case ir.OpFptosi:
		a := in.Args[0].Const
		if a.Kind != ir.ConstFloat {
			return ir.Value{}, false
		}
		return ir.IntValue(int64(a.Float), in.Type), true

	case ir.OpSitofp:
		a := in.Args[0].Const
		if a.Kind != ir.ConstInt {
			return ir.Value{}, false
		}
		return ir.FloatValue(float64(a.Int), in.Type), true

	case ir.OpPhi:
		// a phi whose incomings all agree on one constant folds to it
		if len(in.Incoming) == 0 {
			return ir.Value{}, false
		}
		first := in.Incoming[0].Value
		if !first.IsConst() {
			return ir.Value{}, false
		}
		for _, inc := range in.Incoming[1:] {
			if !inc.Value.IsConst() || !inc.Value.Const.Equal(*first.Const) {
				return ir.Value{}, false
			}
		}
		return first, true

	default:
		return ir.Value{}, false
	}
}

// constFold walks every instruction; any whose operands are all constant
// is computed at compile time, its uses rewritten to the constant, and the
// instruction dropped.
func (o *Optimizer) constFold(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks {
		kept := b.Instrs[:0]
		for _, in := range b.Instrs {
			if in.Name == "" {
				kept = append(kept, in)
				continue
			}
			if val, ok := o.foldInstr(in); ok {
				replaceUses(f, in.Name, val)
				changed = true
				continue
			}
			kept = append(kept, in)
		}
		b.Instrs = kept
	}
	return changed
}

// constProp forwards constants stored to a slot on to later loads from the
// same slot, block-locally: the map is invalidated by any call, and by any
// store through a pointer that may alias.
func (o *Optimizer) constProp(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks {
		known := map[string]ir.Value{} // slot name -> stored constant
		kept := b.Instrs[:0]
		for _, in := range b.Instrs {
			switch in.Op {
			case ir.OpStore:
				if !in.Args[1].IsConst() {
					slot := in.Args[1].Name
					if !isEntryAlloca(f, slot) {
						// a store through an arbitrary pointer may alias
						// any slot
						known = map[string]ir.Value{}
					} else if in.Args[0].IsConst() {
						known[slot] = in.Args[0]
					} else {
						delete(known, slot)
					}
				}
			case ir.OpCall:
				known = map[string]ir.Value{}
			case ir.OpLoad:
				if !in.Args[0].IsConst() {
					if val, ok := known[in.Args[0].Name]; ok {
						replaceUses(f, in.Name, val)
						changed = true
						continue // load dropped
					}
				}
			}
			kept = append(kept, in)
		}
		b.Instrs = kept
	}
	return changed
}

// isEntryAlloca reports whether name is an alloca in f's entry block;
// distinct allocas never alias each other.
func isEntryAlloca(f *ir.Function, name string) bool {
	for _, in := range f.Blocks[0].Instrs {
		if in.Op == ir.OpAlloca && in.Name == name {
			return true
		}
	}
	return false
}
