package optimize

import (
	"github.com/dekarrin/vela/internal/ir"
)

// powerOfTwo returns log2(v) when v is a positive power of two.
func powerOfTwo(v int64) (int64, bool) {
	if v <= 0 || v&(v-1) != 0 {
		return 0, false
	}
	var shift int64
	for v > 1 {
		v >>= 1
		shift++
	}
	return shift, true
}

// strengthReduce rewrites expensive operations into cheaper equivalents:
// multiplication by a power-of-two constant becomes a
// left shift, unsigned division by a power-of-two becomes a right shift,
// and identity operands (×1, +0, −0, ×0) collapse the instruction away.
func (o *Optimizer) strengthReduce(f *ir.Function) bool {
	changed := false
	for _, b := range f.Blocks {
		kept := b.Instrs[:0]
		for _, in := range b.Instrs {
			switch in.Op {
			case ir.OpMul:
				other, c, hasConst := splitConstOperand(in)
				if hasConst && c.Kind == ir.ConstInt {
					switch {
					case c.Int == 0:
						replaceUses(f, in.Name, ir.IntValue(0, in.Type))
						changed = true
						continue
					case c.Int == 1:
						replaceUses(f, in.Name, other)
						changed = true
						continue
					default:
						if shift, pow2 := powerOfTwo(c.Int); pow2 {
							in.Op = ir.OpShl
							in.Args = []ir.Value{other, ir.IntValue(shift, in.Type)}
							changed = true
						}
					}
				}
			case ir.OpUDiv:
				if len(in.Args) == 2 && in.Args[1].IsConst() && in.Args[1].Const.Kind == ir.ConstInt {
					if in.Args[1].Const.Int == 1 {
						replaceUses(f, in.Name, in.Args[0])
						changed = true
						continue
					}
					if shift, pow2 := powerOfTwo(in.Args[1].Const.Int); pow2 {
						in.Op = ir.OpShr
						in.Args = []ir.Value{in.Args[0], ir.IntValue(shift, in.Type)}
						changed = true
					}
				}
			case ir.OpAdd:
				other, c, hasConst := splitConstOperand(in)
				if hasConst && c.Kind == ir.ConstInt && c.Int == 0 {
					replaceUses(f, in.Name, other)
					changed = true
					continue
				}
			case ir.OpSub:
				if len(in.Args) == 2 && in.Args[1].IsConst() &&
					in.Args[1].Const.Kind == ir.ConstInt && in.Args[1].Const.Int == 0 {
					replaceUses(f, in.Name, in.Args[0])
					changed = true
					continue
				}
			}
			kept = append(kept, in)
		}
		b.Instrs = kept
	}
	return changed
}

// splitConstOperand returns the non-constant operand and the constant one
// of a commutative binary instruction, when exactly one side is constant.
func splitConstOperand(in *ir.Instr) (other ir.Value, c *ir.Constant, ok bool) {
	if len(in.Args) != 2 {
		return ir.Value{}, nil, false
	}
	switch {
	case in.Args[0].IsConst() && !in.Args[1].IsConst():
		return in.Args[1], in.Args[0].Const, true
	case in.Args[1].IsConst() && !in.Args[0].IsConst():
		return in.Args[0], in.Args[1].Const, true
	default:
		return ir.Value{}, nil, false
	}
}
