// Package lower translates the typed, resolved AST into the IR of
// internal/ir: every local variable is first materialized
// as an alloca with explicit loads and stores, then a second pass (ssa.go)
// promotes those slots to SSA form, placing phi nodes via dominance
// frontiers and renaming along the dominator tree.
package lower

import (
	"fmt"

	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/ir"
	"github.com/dekarrin/vela/internal/resolve"
	"github.com/dekarrin/vela/internal/types"
)

// Lowerer lowers one resolved, typed file at a time.
type Lowerer struct {
	table   *resolve.Table
	diags   *diag.Collector
	structs map[string]*ast.Item
}

// New returns a Lowerer over a resolved file's symbol table.
func New(table *resolve.Table) *Lowerer {
	return &Lowerer{
		table:   table,
		diags:   diag.NewCollector(),
		structs: make(map[string]*ast.Item),
	}
}

// Diagnostics returns the lowering diagnostics accumulated so far. Anything
// error-severity here means the module must be withheld from the backend.
func (l *Lowerer) Diagnostics() *diag.Collector { return l.diags }

// LowerFile lowers every free function and impl method with a body in f
// into a fresh module and converts each to SSA form. Trait method bodies
// are not lowered.
func (l *Lowerer) LowerFile(f *ast.File, moduleName string) *ir.Module {
	m := &ir.Module{Name: moduleName}

	for _, item := range f.Items {
		switch item.Kind {
		case ast.StructItem:
			l.structs[item.Name] = item
			fieldTypes := make([]*types.Type, len(item.Fields))
			for i, fld := range item.Fields {
				fieldTypes[i] = fld.Type
			}
			m.Types = append(m.Types, &ir.TypeDef{Name: item.Name, Type: types.NewTuple(fieldTypes...)})
		case ast.ConstItem, ast.StaticItem:
			g := &ir.Global{Name: item.Name, Type: item.DeclaredType, Mutable: item.Mutable}
			if item.ValueExpr != nil {
				if c, ok := literalConstant(item.ValueExpr); ok {
					g.Init = &c
				}
			}
			m.Globals = append(m.Globals, g)
		}
	}

	for _, item := range f.Items {
		switch item.Kind {
		case ast.FnItem:
			if item.Body != nil {
				m.Functions = append(m.Functions, l.lowerFn(item))
			}
		case ast.ImplItem:
			for _, method := range item.ImplItems {
				if method.Body != nil {
					m.Functions = append(m.Functions, l.lowerFn(method))
				}
			}
		}
	}
	return m
}

// literalConstant converts a literal expression to an IR constant.
func literalConstant(e *ast.Expr) (ir.Constant, bool) {
	switch e.Kind {
	case ast.IntLit:
		return ir.Constant{Kind: ir.ConstInt, Int: e.IntValue}, true
	case ast.FloatLit:
		return ir.Constant{Kind: ir.ConstFloat, Float: e.FloatValue}, true
	case ast.BoolLit:
		return ir.Constant{Kind: ir.ConstBool, Bool: e.BoolValue}, true
	case ast.CharLit:
		return ir.Constant{Kind: ir.ConstInt, Int: int64(e.CharValue)}, true
	default:
		return ir.Constant{}, false
	}
}

// fnLowerer holds the per-function lowering state: the block being appended
// to, the name counters, and the symbol-id-to-alloca mapping.
type fnLowerer struct {
	l   *Lowerer
	fn  *ir.Function
	cur *ir.Block

	temps  int
	blocks int

	// addrOf maps a resolve symbol id to the alloca holding that binding.
	addrOf map[int]string
	// slotType maps an alloca name to the type of the value it holds.
	slotType map[string]*types.Type

	breakTo []string
	contTo  []string
}

func (l *Lowerer) lowerFn(item *ast.Item) *ir.Function {
	ret := item.ReturnType
	if ret == nil {
		ret = types.UnitType
	}
	fn := &ir.Function{Name: item.Name, Return: ret}
	for _, p := range item.Params {
		fn.Params = append(fn.Params, ir.Param{Name: p.Name, Type: p.Type})
	}

	fl := &fnLowerer{
		l:        l,
		fn:       fn,
		addrOf:   make(map[int]string),
		slotType: make(map[string]*types.Type),
	}
	entry := fl.newBlock("entry")
	fl.cur = entry

	// parameters get a slot each so the body can reassign them; SSA
	// promotion removes the slot again when the address never escapes.
	for i, p := range item.Params {
		slot := fl.allocSlot(p.Name, item.Params[i].SymbolID, p.Type)
		fl.emit(&ir.Instr{Op: ir.OpStore, Args: []ir.Value{ir.Ref(p.Name, p.Type), ir.Ref(slot, types.NewRawPointer(true, p.Type))}, Span: p.Span})
	}

	result := fl.lowerBlockExpr(item.Body)
	if fl.cur.Term == nil {
		if ret.Kind == types.Unit {
			fl.cur.Term = &ir.Terminator{Kind: ir.TermRet, Span: item.Span}
		} else {
			fl.cur.Term = &ir.Terminator{Kind: ir.TermRet, Value: &result, Span: item.Span}
		}
	}

	fl.pruneUnreachable()
	promote(fn)
	return fn
}

func (fl *fnLowerer) newBlock(hint string) *ir.Block {
	label := hint
	if fl.blocks > 0 {
		label = fmt.Sprintf("%s%d", hint, fl.blocks)
	}
	fl.blocks++
	b := &ir.Block{Label: label}
	fl.fn.Blocks = append(fl.fn.Blocks, b)
	return b
}

func (fl *fnLowerer) newTemp() string {
	fl.temps++
	return fmt.Sprintf("t%d", fl.temps)
}

func (fl *fnLowerer) emit(in *ir.Instr) {
	fl.cur.Instrs = append(fl.cur.Instrs, in)
}

// allocSlot emits an alloca into the entry block (locals are materialized
// at function entry) and returns its name.
func (fl *fnLowerer) allocSlot(name string, symID int, t *types.Type) string {
	if t == nil {
		t = types.I32Type
	}
	slot := fmt.Sprintf("%s.addr%d", name, symID)
	fl.fn.Blocks[0].Instrs = append(fl.fn.Blocks[0].Instrs, &ir.Instr{
		Name: slot, Op: ir.OpAlloca, Type: types.NewRawPointer(true, t),
	})
	fl.addrOf[symID] = slot
	fl.slotType[slot] = t
	return slot
}

// tempSlot emits an anonymous entry-block alloca used to merge the value of
// an if/match expression across its arms; SSA promotion turns it into a phi.
func (fl *fnLowerer) tempSlot(hint string, t *types.Type) string {
	if t == nil {
		t = types.I32Type
	}
	fl.temps++
	slot := fmt.Sprintf("%s.slot%d", hint, fl.temps)
	fl.fn.Blocks[0].Instrs = append(fl.fn.Blocks[0].Instrs, &ir.Instr{
		Name: slot, Op: ir.OpAlloca, Type: types.NewRawPointer(true, t),
	})
	fl.slotType[slot] = t
	return slot
}

func (fl *fnLowerer) store(val ir.Value, slot string) {
	t := fl.slotType[slot]
	fl.emit(&ir.Instr{Op: ir.OpStore, Args: []ir.Value{val, ir.Ref(slot, types.NewRawPointer(true, t))}})
}

func (fl *fnLowerer) load(slot string) ir.Value {
	t := fl.slotType[slot]
	tmp := fl.newTemp()
	fl.emit(&ir.Instr{Name: tmp, Op: ir.OpLoad, Type: t, Args: []ir.Value{ir.Ref(slot, types.NewRawPointer(true, t))}})
	return ir.Ref(tmp, t)
}

var i64 = types.NewPrimitive(types.I64)

func exprType(e *ast.Expr) *types.Type {
	if e != nil && e.Type != nil {
		return e.Type
	}
	return types.I32Type
}

func isFloatType(t *types.Type) bool {
	return t != nil && t.Kind == types.Primitive && t.Prim.IsFloat()
}

func isUnsignedType(t *types.Type) bool {
	if t == nil || t.Kind != types.Primitive {
		return false
	}
	switch t.Prim {
	case types.U8, types.U16, types.U32, types.U64:
		return true
	default:
		return false
	}
}

// lowerBlockExpr lowers a block's statements and returns the value of its
// tail expression (or a unit placeholder when there is none).
func (fl *fnLowerer) lowerBlockExpr(block *ast.Expr) ir.Value {
	for _, s := range block.Stmts {
		fl.lowerStmt(s)
		if fl.cur.Term != nil {
			// Statements past a return/break/continue are unreachable;
			// stop, the continuation block was never created.
			return ir.IntValue(0, types.I32Type)
		}
	}
	if block.Tail != nil {
		return fl.lowerExpr(block.Tail)
	}
	return ir.IntValue(0, types.I32Type)
}

func (fl *fnLowerer) lowerStmt(s *ast.Stmt) {
	switch s.Kind {
	case ast.LetStmt:
		t := s.DeclaredType
		if t == nil && s.Init != nil {
			t = exprType(s.Init)
		}
		if t == nil {
			if sym := fl.l.table.Symbol(resolve.SymbolID(s.SymbolID)); sym != nil {
				t = sym.Type
			}
		}
		slot := fl.allocSlot(s.Name, s.SymbolID, t)
		if s.Init != nil {
			val := fl.lowerExpr(s.Init)
			fl.store(val, slot)
		}

	case ast.ExprStmt:
		fl.lowerExpr(s.Value)

	case ast.ReturnStmt:
		if s.Value != nil {
			val := fl.lowerExpr(s.Value)
			fl.cur.Term = &ir.Terminator{Kind: ir.TermRet, Value: &val, Span: s.Span}
		} else {
			fl.cur.Term = &ir.Terminator{Kind: ir.TermRet, Span: s.Span}
		}

	case ast.BreakStmt:
		if len(fl.breakTo) > 0 {
			fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: fl.breakTo[len(fl.breakTo)-1], Span: s.Span}
		}

	case ast.ContinueStmt:
		if len(fl.contTo) > 0 {
			fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: fl.contTo[len(fl.contTo)-1], Span: s.Span}
		}

	case ast.WhileStmt:
		header := fl.newBlock("while.head")
		body := fl.newBlock("while.body")
		exit := fl.newBlock("while.exit")

		fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: header.Label, Span: s.Span}
		fl.cur = header
		cond := fl.lowerExpr(s.Cond)
		fl.cur.Term = &ir.Terminator{Kind: ir.TermCondBr, Value: &cond, Then: body.Label, Else: exit.Label, Span: s.Span}

		fl.breakTo = append(fl.breakTo, exit.Label)
		fl.contTo = append(fl.contTo, header.Label)
		fl.cur = body
		fl.lowerBlockExpr(s.Body)
		if fl.cur.Term == nil {
			fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: header.Label, Span: s.Span}
		}
		fl.breakTo = fl.breakTo[:len(fl.breakTo)-1]
		fl.contTo = fl.contTo[:len(fl.contTo)-1]

		fl.cur = exit

	case ast.ForStmt:
		fl.lowerFor(s)

	case ast.LoopStmt:
		header := fl.newBlock("loop.head")
		exit := fl.newBlock("loop.exit")

		fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: header.Label, Span: s.Span}

		fl.breakTo = append(fl.breakTo, exit.Label)
		fl.contTo = append(fl.contTo, header.Label)
		fl.cur = header
		fl.lowerBlockExpr(s.Body)
		if fl.cur.Term == nil {
			fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: header.Label, Span: s.Span}
		}
		fl.breakTo = fl.breakTo[:len(fl.breakTo)-1]
		fl.contTo = fl.contTo[:len(fl.contTo)-1]

		fl.cur = exit
	}
}

// lowerFor desugars `for v in arr { ... }` into initializer + header + body
// + step + exit. Only fixed-size arrays have a length the
// lowering can test against.
func (fl *fnLowerer) lowerFor(s *ast.Stmt) {
	iterType := exprType(s.IterExpr)
	if iterType.Kind != types.Array || !iterType.SizeKnown {
		fl.l.diags.Add(diag.Errorf("E0902", s.Span,
			"cannot lower for-loop: iteration is only supported over fixed-size arrays, found %s", iterType))
		return
	}
	elemType := iterType.Elem

	arr := fl.lowerExpr(s.IterExpr)
	arrSlot := fl.tempSlot("for.arr", iterType)
	fl.store(arr, arrSlot)

	idxSlot := fl.tempSlot("for.idx", i64)
	fl.store(ir.IntValue(0, i64), idxSlot)

	varSlot := fl.allocSlot(s.ForVar, s.ForVarSymbol, elemType)

	header := fl.newBlock("for.head")
	body := fl.newBlock("for.body")
	step := fl.newBlock("for.step")
	exit := fl.newBlock("for.exit")

	fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: header.Label, Span: s.Span}

	fl.cur = header
	idx := fl.load(idxSlot)
	cmp := fl.newTemp()
	fl.emit(&ir.Instr{Name: cmp, Op: ir.OpICmp, Cond: ir.CondLT, Type: types.BoolType,
		Args: []ir.Value{idx, ir.IntValue(iterType.Size, i64)}})
	cond := ir.Ref(cmp, types.BoolType)
	fl.cur.Term = &ir.Terminator{Kind: ir.TermCondBr, Value: &cond, Then: body.Label, Else: exit.Label, Span: s.Span}

	fl.cur = body
	idxInBody := fl.load(idxSlot)
	elemPtr := fl.newTemp()
	fl.emit(&ir.Instr{Name: elemPtr, Op: ir.OpGEP, Type: types.NewRawPointer(true, elemType),
		Args: []ir.Value{ir.Ref(arrSlot, types.NewRawPointer(true, iterType)), idxInBody}})
	elem := fl.newTemp()
	fl.emit(&ir.Instr{Name: elem, Op: ir.OpLoad, Type: elemType, Args: []ir.Value{ir.Ref(elemPtr, types.NewRawPointer(true, elemType))}})
	fl.store(ir.Ref(elem, elemType), varSlot)

	fl.breakTo = append(fl.breakTo, exit.Label)
	fl.contTo = append(fl.contTo, step.Label)
	fl.lowerBlockExpr(s.Body)
	if fl.cur.Term == nil {
		fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: step.Label, Span: s.Span}
	}
	fl.breakTo = fl.breakTo[:len(fl.breakTo)-1]
	fl.contTo = fl.contTo[:len(fl.contTo)-1]

	fl.cur = step
	idxInStep := fl.load(idxSlot)
	next := fl.newTemp()
	fl.emit(&ir.Instr{Name: next, Op: ir.OpAdd, Type: i64,
		Args: []ir.Value{idxInStep, ir.IntValue(1, i64)}})
	fl.store(ir.Ref(next, i64), idxSlot)
	fl.cur.Term = &ir.Terminator{Kind: ir.TermBr, Target: header.Label, Span: s.Span}

	fl.cur = exit
}

// pruneUnreachable drops blocks no path from the entry reaches; lowering
// creates them when code follows a return or break.
func (fl *fnLowerer) pruneUnreachable() {
	d := ir.Dominance(fl.fn)
	reach := d.Reachable()
	kept := fl.fn.Blocks[:0]
	for _, b := range fl.fn.Blocks {
		if reach.Has(b.Label) {
			kept = append(kept, b)
		}
	}
	fl.fn.Blocks = kept
}
