package lower

import (
	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/ir"
	"github.com/dekarrin/vela/internal/resolve"
	"github.com/dekarrin/vela/internal/types"
)

// lowerExpr lowers e and returns the Value holding its result.
func (fl *fnLowerer) lowerExpr(e *ast.Expr) ir.Value {
	if e == nil {
		return ir.IntValue(0, types.I32Type)
	}
	switch e.Kind {
	case ast.IntLit:
		return ir.IntValue(e.IntValue, exprType(e))
	case ast.FloatLit:
		return ir.FloatValue(e.FloatValue, exprType(e))
	case ast.BoolLit:
		return ir.BoolValue(e.BoolValue)
	case ast.CharLit:
		return ir.IntValue(int64(e.CharValue), exprType(e))
	case ast.StringLit:
		// string data is a backend concern; the IR constant set only has
		// the null string pointer, so every string literal lowers to it and
		// the literal's text is not kept in the module.
		return ir.NullStrValue()

	case ast.IdentExpr:
		if slot, ok := fl.addrOf[e.ResolvedSymbol]; ok {
			return fl.load(slot)
		}
		sym := fl.l.table.Symbol(resolve.SymbolID(e.ResolvedSymbol))
		if sym != nil && sym.Type != nil && sym.Type.Kind == types.Function {
			return ir.Ref(sym.Name, sym.Type)
		}
		if sym != nil {
			// top-level const/static; loads go through the global's name.
			tmp := fl.newTemp()
			fl.emit(&ir.Instr{Name: tmp, Op: ir.OpLoad, Type: exprType(e),
				Args: []ir.Value{ir.Ref(sym.Name, types.NewRawPointer(false, exprType(e)))},
				Span: e.Span})
			return ir.Ref(tmp, exprType(e))
		}
		return ir.IntValue(0, types.I32Type)

	case ast.Binary:
		return fl.lowerBinary(e)

	case ast.Unary:
		operand := fl.lowerExpr(e.Operand)
		t := exprType(e)
		op := ir.OpNeg
		switch {
		case e.Op == "!":
			op = ir.OpNot
		case isFloatType(t):
			op = ir.OpFNeg
		}
		tmp := fl.newTemp()
		fl.emit(&ir.Instr{Name: tmp, Op: op, Type: t, Args: []ir.Value{operand}, Span: e.Span})
		return ir.Ref(tmp, t)

	case ast.Assign:
		val := fl.lowerExpr(e.Right)
		addr, _, ok := fl.placeAddr(e.Left)
		if ok {
			fl.emit(&ir.Instr{Op: ir.OpStore, Args: []ir.Value{val, addr}, Span: e.Span})
		}
		return ir.IntValue(0, types.I32Type)

	case ast.Ref:
		addr, _, ok := fl.placeAddr(e.Operand)
		if !ok {
			// referencing a temporary: spill it to a fresh slot first.
			val := fl.lowerExpr(e.Operand)
			slot := fl.tempSlot("ref", exprType(e.Operand))
			fl.store(val, slot)
			addr = ir.Ref(slot, types.NewRawPointer(e.Mutable, exprType(e.Operand)))
		}
		addr.Type = exprType(e)
		return addr

	case ast.Deref:
		ptr := fl.lowerExpr(e.Operand)
		t := exprType(e)
		tmp := fl.newTemp()
		fl.emit(&ir.Instr{Name: tmp, Op: ir.OpLoad, Type: t, Args: []ir.Value{ptr}, Span: e.Span})
		return ir.Ref(tmp, t)

	case ast.Call:
		args := make([]ir.Value, len(e.Args))
		for i, a := range e.Args {
			args[i] = fl.lowerExpr(a)
		}
		callee := "<indirect>"
		if e.Callee.Kind == ast.IdentExpr {
			callee = e.Callee.Name
		} else {
			fl.l.diags.Add(diag.Errorf("E0904", e.Span, "indirect calls are not supported in lowering"))
		}
		t := exprType(e)
		tmp := fl.newTemp()
		fl.emit(&ir.Instr{Name: tmp, Op: ir.OpCall, Callee: callee, Type: t, Args: args, Span: e.Span})
		return ir.Ref(tmp, t)

	case ast.MethodCall:
		recv := fl.lowerExpr(e.Receiver)
		args := make([]ir.Value, 0, len(e.Args)+1)
		args = append(args, recv)
		for _, a := range e.Args {
			args = append(args, fl.lowerExpr(a))
		}
		t := exprType(e)
		tmp := fl.newTemp()
		fl.emit(&ir.Instr{Name: tmp, Op: ir.OpCall, Callee: e.Method, Type: t, Args: args, Span: e.Span})
		return ir.Ref(tmp, t)

	case ast.Field:
		base := fl.lowerExpr(e.Base)
		idx, fieldType, ok := fl.fieldIndex(exprType(e.Base), e.Name)
		if !ok {
			return ir.IntValue(0, types.I32Type)
		}
		tmp := fl.newTemp()
		fl.emit(&ir.Instr{Name: tmp, Op: ir.OpExtractValue, Type: fieldType, Args: []ir.Value{base}, Index: idx, Span: e.Span})
		return ir.Ref(tmp, fieldType)

	case ast.Index:
		addr, elemType, ok := fl.placeAddr(e)
		if !ok {
			return ir.IntValue(0, types.I32Type)
		}
		tmp := fl.newTemp()
		fl.emit(&ir.Instr{Name: tmp, Op: ir.OpLoad, Type: elemType, Args: []ir.Value{addr}, Span: e.Span})
		return ir.Ref(tmp, elemType)

	case ast.IfExpr:
		return fl.lowerIf(e)

	case ast.MatchExpr:
		return fl.lowerMatch(e)

	case ast.BlockExpr:
		return fl.lowerBlockExpr(e)

	case ast.Closure:
		fl.l.diags.Add(diag.Errorf("E0903", e.Span, "closure expressions are not supported in lowering"))
		return ir.IntValue(0, types.I32Type)

	case ast.StructLit:
		t := exprType(e)
		slot := fl.tempSlot("struct", t)
		for _, fi := range e.StructFields {
			val := fl.lowerExpr(fi.Value)
			idx, fieldType, ok := fl.fieldIndex(t, fi.Name)
			if !ok {
				continue
			}
			ptr := fl.newTemp()
			fl.emit(&ir.Instr{Name: ptr, Op: ir.OpGEP, Type: types.NewRawPointer(true, fieldType),
				Args: []ir.Value{ir.Ref(slot, types.NewRawPointer(true, t)), ir.IntValue(int64(idx), i64)}, Span: e.Span})
			fl.emit(&ir.Instr{Op: ir.OpStore, Args: []ir.Value{val, ir.Ref(ptr, types.NewRawPointer(true, fieldType))}, Span: e.Span})
		}
		return fl.load(slot)

	case ast.ArrayLit, ast.TupleLit:
		t := exprType(e)
		slot := fl.tempSlot("agg", t)
		for i, elem := range e.Elements {
			val := fl.lowerExpr(elem)
			elemType := exprType(elem)
			ptr := fl.newTemp()
			fl.emit(&ir.Instr{Name: ptr, Op: ir.OpGEP, Type: types.NewRawPointer(true, elemType),
				Args: []ir.Value{ir.Ref(slot, types.NewRawPointer(true, t)), ir.IntValue(int64(i), i64)}, Span: e.Span})
			fl.emit(&ir.Instr{Op: ir.OpStore, Args: []ir.Value{val, ir.Ref(ptr, types.NewRawPointer(true, elemType))}, Span: e.Span})
		}
		return fl.load(slot)

	default:
		return ir.IntValue(0, types.I32Type)
	}
}

// binOps maps source operators on integer operands to IR ops; float and
// unsigned variants are selected in lowerBinary.
var binOps = map[string]ir.Op{
	"+": ir.OpAdd, "-": ir.OpSub, "*": ir.OpMul, "/": ir.OpSDiv, "%": ir.OpSRem,
	"&": ir.OpAnd, "|": ir.OpOr, "^": ir.OpXor, "<<": ir.OpShl, ">>": ir.OpShr,
}

var cmpConds = map[string]ir.Cond{
	"==": ir.CondEq, "!=": ir.CondNe, "<": ir.CondLT, "<=": ir.CondLE, ">": ir.CondGT, ">=": ir.CondGE,
}

func (fl *fnLowerer) lowerBinary(e *ast.Expr) ir.Value {
	if e.Op == "&&" || e.Op == "||" {
		return fl.lowerShortCircuit(e)
	}

	left := fl.lowerExpr(e.Left)
	right := fl.lowerExpr(e.Right)

	if cond, isCmp := cmpConds[e.Op]; isCmp {
		op := ir.OpICmp
		if isFloatType(exprType(e.Left)) {
			op = ir.OpFCmp
		}
		tmp := fl.newTemp()
		fl.emit(&ir.Instr{Name: tmp, Op: op, Cond: cond, Type: types.BoolType, Args: []ir.Value{left, right}, Span: e.Span})
		return ir.Ref(tmp, types.BoolType)
	}

	t := exprType(e)
	op, known := binOps[e.Op]
	if !known {
		fl.l.diags.Add(diag.Errorf("E0905", e.Span, "operator %q has no lowering", e.Op))
		return ir.IntValue(0, types.I32Type)
	}
	switch {
	case isFloatType(t):
		switch op {
		case ir.OpAdd:
			op = ir.OpFAdd
		case ir.OpSub:
			op = ir.OpFSub
		case ir.OpMul:
			op = ir.OpFMul
		case ir.OpSDiv:
			op = ir.OpFDiv
		}
	case isUnsignedType(t):
		switch op {
		case ir.OpSDiv:
			op = ir.OpUDiv
		case ir.OpSRem:
			op = ir.OpURem
		}
	}
	tmp := fl.newTemp()
	fl.emit(&ir.Instr{Name: tmp, Op: op, Type: t, Args: []ir.Value{left, right}, Span: e.Span})
	return ir.Ref(tmp, t)
}

// lowerShortCircuit lowers && and || with branch-based evaluation so the
// right operand only runs when it must; the merged result goes through a
// slot that SSA promotion turns into a phi.
func (fl *fnLowerer) lowerShortCircuit(e *ast.Expr) ir.Value {
	slot := fl.tempSlot("sc", types.BoolType)
	left := fl.lowerExpr(e.Left)
	fl.store(left, slot)

	rhs := fl.newBlock("sc.rhs")
	merge := fl.newBlock("sc.end")

	if e.Op == "&&" {
		fl.cur.Term = &ir.Terminator{Kind: ir.TermCondBr, Value: &left, Then: rhs.Label, Else: merge.Label, Span: e.Span}
	} else {
		fl.cur.Term = &ir.Terminator{Kind: ir.TermCondBr, Value: &left, Then: merge.Label, Else: rhs.Label, Span: e.Span}
	}

	fl.cur = rhs
	right := fl.lowerExpr(e.Right)
	fl.store(right, slot)
	fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: merge.Label, Span: e.Span}

	fl.cur = merge
	return fl.load(slot)
}

// lowerIf lowers an if expression to a conditional branch with the arm
// values merged through a slot at the join point.
func (fl *fnLowerer) lowerIf(e *ast.Expr) ir.Value {
	t := exprType(e)
	slot := fl.tempSlot("if", t)

	cond := fl.lowerExpr(e.Cond)
	thenBlk := fl.newBlock("if.then")
	merge := fl.newBlock("if.end")
	elseLabel := merge.Label
	var elseBlk *ir.Block
	if e.Else != nil {
		elseBlk = fl.newBlock("if.else")
		elseLabel = elseBlk.Label
	}
	fl.cur.Term = &ir.Terminator{Kind: ir.TermCondBr, Value: &cond, Then: thenBlk.Label, Else: elseLabel, Span: e.Span}

	fl.cur = thenBlk
	thenVal := fl.lowerBlockExpr(e.Then)
	if fl.cur.Term == nil {
		fl.store(thenVal, slot)
		fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: merge.Label, Span: e.Span}
	}

	if elseBlk != nil {
		fl.cur = elseBlk
		var elseVal ir.Value
		if e.Else.Kind == ast.IfExpr {
			elseVal = fl.lowerIf(e.Else)
		} else {
			elseVal = fl.lowerBlockExpr(e.Else)
		}
		if fl.cur.Term == nil {
			fl.store(elseVal, slot)
			fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: merge.Label, Span: e.Span}
		}
	}

	fl.cur = merge
	return fl.load(slot)
}

// lowerMatch lowers a match to a chain of equality tests, one test block
// per literal arm; binding and wildcard arms always match.
func (fl *fnLowerer) lowerMatch(e *ast.Expr) ir.Value {
	t := exprType(e)
	slot := fl.tempSlot("match", t)
	scrut := fl.lowerExpr(e.Scrutinee)
	scrutType := exprType(e.Scrutinee)

	merge := fl.newBlock("match.end")

	for i := range e.Arms {
		arm := &e.Arms[i]
		armBlk := fl.newBlock("match.arm")

		switch arm.Pattern.Kind {
		case ast.LiteralPattern:
			lit := fl.lowerExpr(arm.Pattern.Lit)
			cmp := fl.newTemp()
			op := ir.OpICmp
			if isFloatType(scrutType) {
				op = ir.OpFCmp
			}
			fl.emit(&ir.Instr{Name: cmp, Op: op, Cond: ir.CondEq, Type: types.BoolType,
				Args: []ir.Value{scrut, lit}, Span: arm.Pattern.Span})
			cond := ir.Ref(cmp, types.BoolType)
			next := fl.newBlock("match.next")
			fl.cur.Term = &ir.Terminator{Kind: ir.TermCondBr, Value: &cond, Then: armBlk.Label, Else: next.Label, Span: arm.Pattern.Span}
			fl.cur = armBlk
			val := fl.lowerExpr(arm.Body)
			if fl.cur.Term == nil {
				fl.store(val, slot)
				fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: merge.Label, Span: arm.Pattern.Span}
			}
			fl.cur = next

		case ast.BindingPattern, ast.WildcardPattern:
			if arm.Pattern.Kind == ast.BindingPattern {
				bindSlot := fl.allocSlot(arm.Pattern.Name, arm.Pattern.SymbolID, scrutType)
				fl.store(scrut, bindSlot)
			}
			fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: armBlk.Label, Span: arm.Pattern.Span}
			fl.cur = armBlk
			val := fl.lowerExpr(arm.Body)
			if fl.cur.Term == nil {
				fl.store(val, slot)
				fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: merge.Label, Span: arm.Pattern.Span}
			}
			// arms past an irrefutable pattern are unreachable; stop.
			fl.cur = merge
			return fl.load(slot)
		}
	}

	// no irrefutable arm matched: fall through to the merge with the
	// slot's zero value.
	if fl.cur.Term == nil {
		fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: merge.Label, Span: e.Span}
	}
	fl.cur = merge
	return fl.load(slot)
}

// placeAddr returns the address of a place expression (something that can
// be assigned to or referenced): an identifier's slot, a dereferenced
// pointer, or an indexed element. ok is false for non-place expressions.
func (fl *fnLowerer) placeAddr(e *ast.Expr) (ir.Value, *types.Type, bool) {
	switch e.Kind {
	case ast.IdentExpr:
		if slot, ok := fl.addrOf[e.ResolvedSymbol]; ok {
			t := fl.slotType[slot]
			return ir.Ref(slot, types.NewRawPointer(true, t)), t, true
		}
		return ir.Value{}, nil, false

	case ast.Deref:
		ptr := fl.lowerExpr(e.Operand)
		return ptr, exprType(e), true

	case ast.Index:
		baseAddr, baseType, ok := fl.placeAddr(e.Base)
		if !ok {
			// index into a temporary: spill it.
			val := fl.lowerExpr(e.Base)
			baseType = exprType(e.Base)
			slot := fl.tempSlot("idx", baseType)
			fl.store(val, slot)
			baseAddr = ir.Ref(slot, types.NewRawPointer(true, baseType))
		}
		idx := fl.lowerExpr(e.IndexExpr)
		elemType := types.I32Type
		if baseType != nil && baseType.Elem != nil {
			elemType = baseType.Elem
		}
		ptr := fl.newTemp()
		fl.emit(&ir.Instr{Name: ptr, Op: ir.OpGEP, Type: types.NewRawPointer(true, elemType),
			Args: []ir.Value{baseAddr, idx}, Span: e.Span})
		return ir.Ref(ptr, types.NewRawPointer(true, elemType)), elemType, true

	case ast.Field:
		baseAddr, baseType, ok := fl.placeAddr(e.Base)
		if !ok {
			return ir.Value{}, nil, false
		}
		idx, fieldType, found := fl.fieldIndex(baseType, e.Name)
		if !found {
			return ir.Value{}, nil, false
		}
		ptr := fl.newTemp()
		fl.emit(&ir.Instr{Name: ptr, Op: ir.OpGEP, Type: types.NewRawPointer(true, fieldType),
			Args: []ir.Value{baseAddr, ir.IntValue(int64(idx), i64)}, Span: e.Span})
		return ir.Ref(ptr, types.NewRawPointer(true, fieldType)), fieldType, true

	default:
		return ir.Value{}, nil, false
	}
}

// fieldIndex resolves a field name against a named struct type's layout.
func (fl *fnLowerer) fieldIndex(t *types.Type, name string) (int, *types.Type, bool) {
	if t == nil || t.Kind != types.Named {
		return 0, nil, false
	}
	item, ok := fl.l.structs[t.Name]
	if !ok {
		return 0, nil, false
	}
	for i, fld := range item.Fields {
		if fld.Name == name {
			return i, fld.Type, true
		}
	}
	return 0, nil, false
}
