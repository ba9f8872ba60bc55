package infer

import (
	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/resolve"
	"github.com/dekarrin/vela/internal/types"
)

// Inferencer runs Algorithm W over a resolved file: it visits every
// expression, emits the equality constraints its syntactic form calls
// for, and discharges them immediately through Unify.
type Inferencer struct {
	sub    *Substitution
	diags  *diag.Collector
	table  *resolve.Table
	strict bool

	structs map[string]*ast.Item
	enums   map[string]*ast.Item

	// defaults records, for each not-yet-grounded variable introduced for
	// an integer or float literal, the ground type it should fall back to
	// if it is still unbound when the whole file has been inferred; in strict mode
	// a still-unbound variable is an ambiguity error instead.
	defaults map[int]*types.Type

	curReturn *types.Type
}

// New returns an Inferencer over a resolved file's symbol table. strict
// enables strict inference: unresolved type
// variables left once the whole file has been inferred become errors
// instead of defaulting.
func New(table *resolve.Table, strict bool) *Inferencer {
	return &Inferencer{
		sub: NewSubstitution(), diags: diag.NewCollector(), table: table, strict: strict,
		structs: make(map[string]*ast.Item), enums: make(map[string]*ast.Item),
		defaults: make(map[int]*types.Type),
	}
}

// Diagnostics returns the inference diagnostics accumulated so far.
func (inf *Inferencer) Diagnostics() *diag.Collector { return inf.diags }

// Substitution returns the union-find table built during inference, needed
// by internal/lifetime and internal/lower to read an expression's final
// resolved type.
func (inf *Inferencer) Substitution() *Substitution { return inf.sub }

func (inf *Inferencer) sym(id int) *resolve.Symbol {
	return inf.table.Symbol(resolve.SymbolID(id))
}

// InferFile type-checks every item in f: a first pass registers every
// item-level signature as its symbol's type (so forward references and
// recursive calls resolve), then a second pass infers each body.
func (inf *Inferencer) InferFile(f *ast.File) {
	for _, item := range f.Items {
		inf.registerSignature(item)
	}
	for _, item := range f.Items {
		inf.inferItemBody(item)
	}
	inf.finalizeFile(f)
}

func (inf *Inferencer) registerSignature(item *ast.Item) {
	switch item.Kind {
	case ast.FnItem:
		params := make([]*types.Type, len(item.Params))
		for i, p := range item.Params {
			params[i] = p.Type
		}
		sym := inf.sym(item.SymbolID)
		if sym != nil {
			sym.Type = types.NewFunction(params, item.ReturnType)
		}
	case ast.ConstItem, ast.StaticItem:
		if sym := inf.sym(item.SymbolID); sym != nil {
			sym.Type = item.DeclaredType
		}
	case ast.StructItem:
		inf.structs[item.Name] = item
		if sym := inf.sym(item.SymbolID); sym != nil {
			sym.Type = types.NewNamed(item.Name)
		}
	case ast.EnumItem:
		inf.enums[item.Name] = item
		if sym := inf.sym(item.SymbolID); sym != nil {
			sym.Type = types.NewNamed(item.Name)
		}
	}
}

func (inf *Inferencer) inferItemBody(item *ast.Item) {
	switch item.Kind {
	case ast.FnItem:
		inf.inferFn(item)
	case ast.ConstItem, ast.StaticItem:
		if item.ValueExpr != nil {
			t := inf.inferExpr(item.ValueExpr)
			if item.DeclaredType != nil {
				inf.Unify(t, item.DeclaredType, item.ValueExpr.Span)
			}
		}
	case ast.TraitItem:
		for _, m := range item.Methods {
			inf.inferFn(m)
		}
	case ast.ImplItem:
		for _, m := range item.ImplItems {
			inf.inferFn(m)
		}
	}
}

func (inf *Inferencer) inferFn(fn *ast.Item) {
	if fn.Body == nil {
		return
	}
	savedReturn := inf.curReturn
	inf.curReturn = fn.ReturnType
	bodyType := inf.inferBlock(fn.Body)
	// a body that ends in an explicit return statement already unified
	// against the return type there; its (unit) block value is not the
	// function's result.
	endsInReturn := fn.Body.Tail == nil && len(fn.Body.Stmts) > 0 &&
		fn.Body.Stmts[len(fn.Body.Stmts)-1].Kind == ast.ReturnStmt
	if !endsInReturn {
		inf.Unify(fn.ReturnType, bodyType, fn.Body.Span)
	}
	inf.curReturn = savedReturn
}

func (inf *Inferencer) inferBlock(block *ast.Expr) *types.Type {
	for _, stmt := range block.Stmts {
		inf.inferStmt(stmt)
	}
	if block.Tail != nil {
		t := inf.inferExpr(block.Tail)
		block.Type = t
		return t
	}
	block.Type = types.UnitType
	return types.UnitType
}

func (inf *Inferencer) freshInt(name string) *types.Type {
	v := types.NewVar(name)
	inf.defaults[v.VarID()] = types.NewPrimitive(types.I32)
	return v
}

func (inf *Inferencer) freshFloat(name string) *types.Type {
	v := types.NewVar(name)
	inf.defaults[v.VarID()] = types.NewPrimitive(types.F64)
	return v
}

func (inf *Inferencer) inferStmt(stmt *ast.Stmt) {
	switch stmt.Kind {
	case ast.LetStmt:
		sym := inf.sym(stmt.SymbolID)
		var initType *types.Type
		if stmt.Init != nil {
			initType = inf.inferExpr(stmt.Init)
		}
		switch {
		case stmt.DeclaredType != nil && stmt.Init != nil:
			inf.Unify(stmt.DeclaredType, initType, stmt.Init.Span)
			if sym != nil {
				sym.Type = stmt.DeclaredType
			}
		case stmt.DeclaredType != nil:
			if sym != nil {
				sym.Type = stmt.DeclaredType
			}
		case stmt.Init != nil:
			if sym != nil {
				sym.Type = initType
			}
		default:
			if sym != nil {
				sym.Type = types.NewVar(stmt.Name)
			}
		}
	case ast.ExprStmt:
		inf.inferExpr(stmt.Value)
	case ast.ReturnStmt:
		var t *types.Type = types.UnitType
		if stmt.Value != nil {
			t = inf.inferExpr(stmt.Value)
		}
		if inf.curReturn != nil {
			inf.Unify(inf.curReturn, t, stmt.Span)
		}
	case ast.BreakStmt:
		if stmt.Value != nil {
			inf.inferExpr(stmt.Value)
		}
	case ast.WhileStmt:
		condType := inf.inferExpr(stmt.Cond)
		inf.Unify(condType, types.BoolType, stmt.Cond.Span)
		inf.inferBlock(stmt.Body)
	case ast.ForStmt:
		iterType := inf.sub.Resolve(inf.inferExpr(stmt.IterExpr))
		var elemType *types.Type
		switch iterType.Kind {
		case types.Array, types.Slice:
			elemType = iterType.Elem
		default:
			elemType = types.NewVar(stmt.ForVar)
			inf.Unify(iterType, types.NewSlice(elemType), stmt.IterExpr.Span)
		}
		if sym := inf.sym(stmt.ForVarSymbol); sym != nil {
			sym.Type = elemType
		}
		inf.inferBlock(stmt.Body)
	case ast.LoopStmt:
		inf.inferBlock(stmt.Body)
	}
}
