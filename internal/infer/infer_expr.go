package infer

import (
	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/types"
)

var logicalOps = map[string]bool{"&&": true, "||": true}
var relationalOps = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

// inferExpr visits e, emitting the constraints its syntactic form calls
// for, and caches the resolved type on the node itself (walked and
// substituted again at finalize time).
func (inf *Inferencer) inferExpr(e *ast.Expr) *types.Type {
	if e == nil {
		return types.UnitType
	}
	t := inf.inferExprKind(e)
	e.Type = t
	return t
}

func (inf *Inferencer) inferExprKind(e *ast.Expr) *types.Type {
	switch e.Kind {
	case ast.IntLit:
		return inf.freshInt("int")
	case ast.FloatLit:
		return inf.freshFloat("float")
	case ast.StringLit:
		return types.NewPrimitive(types.Str)
	case ast.CharLit:
		return types.NewPrimitive(types.Char)
	case ast.BoolLit:
		return types.BoolType

	case ast.IdentExpr:
		sym := inf.sym(e.ResolvedSymbol)
		if sym == nil {
			return types.NewVar(e.Name)
		}
		if sym.Type == nil {
			sym.Type = types.NewVar(e.Name)
		}
		return sym.Type

	case ast.Binary:
		left := inf.inferExpr(e.Left)
		right := inf.inferExpr(e.Right)
		switch {
		case logicalOps[e.Op]:
			inf.Unify(left, types.BoolType, e.Left.Span)
			inf.Unify(right, types.BoolType, e.Right.Span)
			return types.BoolType
		case relationalOps[e.Op]:
			inf.Unify(left, right, e.Span)
			return types.BoolType
		default: // arithmetic / bitwise / shift
			inf.Unify(left, right, e.Span)
			return left
		}

	case ast.Unary:
		operand := inf.inferExpr(e.Operand)
		if e.Op == "!" {
			inf.Unify(operand, types.BoolType, e.Span)
			return types.BoolType
		}
		return operand

	case ast.Assign:
		left := inf.inferExpr(e.Left)
		right := inf.inferExpr(e.Right)
		inf.Unify(left, right, e.Span)
		return types.UnitType

	case ast.Ref:
		inner := inf.inferExpr(e.Operand)
		return types.NewReference(e.Mutable, inner)

	case ast.Deref:
		operand := inf.sub.Resolve(inf.inferExpr(e.Operand))
		if operand.Kind == types.Reference || operand.Kind == types.RawPointer {
			return operand.Elem
		}
		elem := types.NewVar("deref")
		inf.Unify(operand, types.NewReference(false, elem), e.Span)
		return elem

	case ast.Call:
		calleeType := inf.inferExpr(e.Callee)
		argTypes := make([]*types.Type, len(e.Args))
		for i, a := range e.Args {
			argTypes[i] = inf.inferExpr(a)
		}
		result := types.NewVar("ret")
		expected := types.NewFunction(argTypes, result)
		resolved := inf.sub.Resolve(calleeType)
		if resolved.Kind == types.Function && len(resolved.Args) != len(argTypes) {
			inf.diags.Add(diag.Errorf("E0061", e.Span,
				"this function takes %d argument(s) but %d were supplied", len(resolved.Args), len(argTypes)))
			return result
		}
		if resolved.Kind != types.Var && resolved.Kind != types.Function {
			inf.diags.Add(diag.Errorf("E0618", e.Callee.Span, "expected function, found %s", resolved))
			return result
		}
		inf.Unify(calleeType, expected, e.Span)
		return result

	case ast.MethodCall:
		inf.inferExpr(e.Receiver)
		for _, a := range e.Args {
			inf.inferExpr(a)
		}
		return types.NewVar("methodret")

	case ast.Field:
		baseType := inf.sub.Resolve(inf.inferExpr(e.Base))
		if baseType.Kind == types.Named {
			if def, ok := inf.structs[baseType.Name]; ok {
				for _, f := range def.Fields {
					if f.Name == e.Name {
						return f.Type
					}
				}
			}
		}
		return types.NewVar("field")

	case ast.Index:
		baseType := inf.sub.Resolve(inf.inferExpr(e.Base))
		idxType := inf.inferExpr(e.IndexExpr)
		inf.Unify(idxType, inf.freshInt("idx"), e.IndexExpr.Span)
		if baseType.Kind == types.Array || baseType.Kind == types.Slice {
			return baseType.Elem
		}
		elem := types.NewVar("elem")
		inf.Unify(baseType, types.NewSlice(elem), e.Span)
		return elem

	case ast.IfExpr:
		condType := inf.inferExpr(e.Cond)
		inf.Unify(condType, types.BoolType, e.Cond.Span)
		thenType := inf.inferExpr(e.Then)
		if e.Else != nil {
			elseType := inf.inferExpr(e.Else)
			inf.Unify(thenType, elseType, e.Span)
			return thenType
		}
		return types.UnitType

	case ast.MatchExpr:
		scrutType := inf.inferExpr(e.Scrutinee)
		var armType *types.Type
		for i := range e.Arms {
			arm := &e.Arms[i]
			inf.inferPattern(&arm.Pattern, scrutType)
			t := inf.inferExpr(arm.Body)
			if armType == nil {
				armType = t
			} else {
				inf.Unify(armType, t, arm.Body.Span)
			}
		}
		if armType == nil {
			return types.UnitType
		}
		return armType

	case ast.BlockExpr:
		return inf.inferBlock(e)

	case ast.Closure:
		for i := range e.Params {
			if e.Params[i].Type == nil {
				e.Params[i].Type = types.NewVar(e.Params[i].Name)
			}
		}
		bodyType := inf.inferExpr(e.Body)
		params := make([]*types.Type, len(e.Params))
		for i, p := range e.Params {
			params[i] = p.Type
		}
		return types.NewFunction(params, bodyType)

	case ast.StructLit:
		def, ok := inf.structs[e.TypeName]
		for _, fi := range e.StructFields {
			valType := inf.inferExpr(fi.Value)
			if ok {
				for _, f := range def.Fields {
					if f.Name == fi.Name {
						inf.Unify(valType, f.Type, fi.Value.Span)
					}
				}
			}
		}
		return types.NewNamed(e.TypeName)

	case ast.ArrayLit:
		elem := types.NewVar("elem")
		for _, el := range e.Elements {
			t := inf.inferExpr(el)
			inf.Unify(t, elem, el.Span)
		}
		return types.NewArray(elem, int64(len(e.Elements)), true)

	case ast.TupleLit:
		elems := make([]*types.Type, len(e.Elements))
		for i, el := range e.Elements {
			elems[i] = inf.inferExpr(el)
		}
		return types.NewTuple(elems...)

	default:
		return types.UnitType
	}
}

func (inf *Inferencer) inferPattern(pat *ast.Pattern, scrutType *types.Type) {
	switch pat.Kind {
	case ast.BindingPattern:
		if sym := inf.sym(pat.SymbolID); sym != nil {
			sym.Type = scrutType
		}
	case ast.LiteralPattern:
		litType := inf.inferExpr(pat.Lit)
		inf.Unify(litType, scrutType, pat.Span)
	}
}
