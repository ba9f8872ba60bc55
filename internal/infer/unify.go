package infer

import (
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/source"
	"github.com/dekarrin/vela/internal/types"
)

// Unify discharges the equality constraint type(a) == type(b) at span:
// identical concrete types unify trivially; a variable
// unifies with any type after an occurs check; structural types unify
// component-wise with matching shape; anything else is a type-mismatch
// diagnostic. It returns false (and records a diagnostic) on failure.
func (inf *Inferencer) Unify(a, b *types.Type, span source.Span) bool {
	a = inf.sub.Resolve(a)
	b = inf.sub.Resolve(b)

	if a.Kind == types.Var {
		return inf.bindVar(a, b, span)
	}
	if b.Kind == types.Var {
		return inf.bindVar(b, a, span)
	}
	if a.Kind != b.Kind {
		inf.mismatch(a, b, span)
		return false
	}

	switch a.Kind {
	case types.Primitive:
		if a.Prim != b.Prim {
			inf.mismatch(a, b, span)
			return false
		}
		return true
	case types.Unit:
		return true
	case types.Named:
		if a.Name != b.Name {
			inf.mismatch(a, b, span)
			return false
		}
		return true
	case types.Generic:
		if a.Name != b.Name || len(a.Args) != len(b.Args) {
			inf.mismatch(a, b, span)
			return false
		}
		ok := true
		for i := range a.Args {
			ok = inf.Unify(a.Args[i], b.Args[i], span) && ok
		}
		return ok
	case types.Reference, types.RawPointer:
		if a.Mutable != b.Mutable {
			inf.mismatch(a, b, span)
			return false
		}
		return inf.Unify(a.Elem, b.Elem, span)
	case types.Array:
		if a.SizeKnown && b.SizeKnown && a.Size != b.Size {
			inf.mismatch(a, b, span)
			return false
		}
		return inf.Unify(a.Elem, b.Elem, span)
	case types.Slice:
		return inf.Unify(a.Elem, b.Elem, span)
	case types.Tuple:
		if len(a.Tuple) != len(b.Tuple) {
			inf.mismatch(a, b, span)
			return false
		}
		ok := true
		for i := range a.Tuple {
			ok = inf.Unify(a.Tuple[i], b.Tuple[i], span) && ok
		}
		return ok
	case types.Function:
		if len(a.Args) != len(b.Args) {
			inf.mismatch(a, b, span)
			return false
		}
		ok := true
		for i := range a.Args {
			ok = inf.Unify(a.Args[i], b.Args[i], span) && ok
		}
		return inf.Unify(a.Return, b.Return, span) && ok
	default:
		inf.mismatch(a, b, span)
		return false
	}
}

func (inf *Inferencer) bindVar(v, t *types.Type, span source.Span) bool {
	if t.Kind == types.Var && t.VarID() == v.VarID() {
		return true
	}
	if inf.sub.occurs(v.VarID(), t) {
		inf.diags.Add(diag.Errorf("E0072", span, "infinite type: %s occurs within %s", v, t))
		return false
	}
	inf.sub.bind(v.VarID(), t)
	return true
}

func (inf *Inferencer) mismatch(expected, found *types.Type, span source.Span) {
	inf.diags.Add(diag.Errorf("E0308", span, "mismatched types: expected %s, found %s", expected, found))
}
