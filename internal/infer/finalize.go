package infer

import (
	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/source"
	"github.com/dekarrin/vela/internal/types"
)

// finalizeFile walks every cached expression type in f and every symbol's
// type, applying the substitution and resolving defaults: once all
// constraints are discharged, each cached type is substituted to its
// resolved form, and any remaining variables become either their recorded
// ground default or, in strict mode, an ambiguity error.
func (inf *Inferencer) finalizeFile(f *ast.File) {
	for _, item := range f.Items {
		inf.finalizeItem(item)
	}
	for _, sym := range inf.table.Symbols() {
		if sym.Type != nil {
			sym.Type = inf.ground(sym.Type, source.Span{Start: sym.DeclPos, End: sym.DeclPos})
		}
	}
}

func (inf *Inferencer) finalizeItem(item *ast.Item) {
	switch item.Kind {
	case ast.FnItem:
		item.ReturnType = inf.ground(item.ReturnType, item.Span)
		for i := range item.Params {
			item.Params[i].Type = inf.ground(item.Params[i].Type, item.Params[i].Span)
		}
		if item.Body != nil {
			inf.finalizeExpr(item.Body)
		}
	case ast.ConstItem, ast.StaticItem:
		if item.ValueExpr != nil {
			inf.finalizeExpr(item.ValueExpr)
		}
	case ast.TraitItem:
		for _, m := range item.Methods {
			inf.finalizeItem(m)
		}
	case ast.ImplItem:
		for _, m := range item.ImplItems {
			inf.finalizeItem(m)
		}
	}
}

func (inf *Inferencer) finalizeExpr(e *ast.Expr) {
	if e == nil {
		return
	}
	if e.Type != nil {
		e.Type = inf.ground(e.Type, e.Span)
	}
	switch e.Kind {
	case ast.Binary, ast.Assign:
		inf.finalizeExpr(e.Left)
		inf.finalizeExpr(e.Right)
	case ast.Unary, ast.Ref, ast.Deref:
		inf.finalizeExpr(e.Operand)
	case ast.Call:
		inf.finalizeExpr(e.Callee)
		for _, a := range e.Args {
			inf.finalizeExpr(a)
		}
	case ast.MethodCall:
		inf.finalizeExpr(e.Receiver)
		for _, a := range e.Args {
			inf.finalizeExpr(a)
		}
	case ast.Field:
		inf.finalizeExpr(e.Base)
	case ast.Index:
		inf.finalizeExpr(e.Base)
		inf.finalizeExpr(e.IndexExpr)
	case ast.IfExpr:
		inf.finalizeExpr(e.Cond)
		inf.finalizeExpr(e.Then)
		inf.finalizeExpr(e.Else)
	case ast.MatchExpr:
		inf.finalizeExpr(e.Scrutinee)
		for i := range e.Arms {
			inf.finalizeExpr(e.Arms[i].Body)
		}
	case ast.BlockExpr:
		for _, s := range e.Stmts {
			inf.finalizeStmt(s)
		}
		inf.finalizeExpr(e.Tail)
	case ast.Closure:
		for i := range e.Params {
			if e.Params[i].Type != nil {
				e.Params[i].Type = inf.ground(e.Params[i].Type, e.Span)
			}
		}
		inf.finalizeExpr(e.Body)
	case ast.StructLit:
		for _, fi := range e.StructFields {
			inf.finalizeExpr(fi.Value)
		}
	case ast.ArrayLit, ast.TupleLit:
		for _, el := range e.Elements {
			inf.finalizeExpr(el)
		}
	}
}

func (inf *Inferencer) finalizeStmt(s *ast.Stmt) {
	if s.DeclaredType != nil {
		s.DeclaredType = inf.ground(s.DeclaredType, s.Span)
	}
	inf.finalizeExpr(s.Init)
	inf.finalizeExpr(s.Value)
	inf.finalizeExpr(s.Cond)
	inf.finalizeExpr(s.IterExpr)
	if s.Body != nil {
		inf.finalizeExpr(s.Body)
	}
}

// ground fully applies the substitution to t and, for any variable still
// unbound, either substitutes its recorded default (e.g. i32 for an
// unconstrained integer literal) or, in strict mode, records an ambiguity
// diagnostic at span.
func (inf *Inferencer) ground(t *types.Type, span source.Span) *types.Type {
	return inf.groundRec(inf.sub.Apply(t), span)
}

func (inf *Inferencer) groundRec(t *types.Type, span source.Span) *types.Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case types.Var:
		if def, ok := inf.defaults[t.VarID()]; ok {
			return def
		}
		if inf.strict {
			inf.diags.Add(diag.Errorf("E0282", span, "type annotations needed for %s", t))
		}
		return t
	case types.Reference:
		return types.NewReference(t.Mutable, inf.groundRec(t.Elem, span))
	case types.RawPointer:
		return types.NewRawPointer(t.Mutable, inf.groundRec(t.Elem, span))
	case types.Array:
		return types.NewArray(inf.groundRec(t.Elem, span), t.Size, t.SizeKnown)
	case types.Slice:
		return types.NewSlice(inf.groundRec(t.Elem, span))
	case types.Tuple:
		elems := make([]*types.Type, len(t.Tuple))
		for i, e := range t.Tuple {
			elems[i] = inf.groundRec(e, span)
		}
		return types.NewTuple(elems...)
	case types.Function:
		params := make([]*types.Type, len(t.Args))
		for i, p := range t.Args {
			params[i] = inf.groundRec(p, span)
		}
		return types.NewFunction(params, inf.groundRec(t.Return, span))
	default:
		return t
	}
}
