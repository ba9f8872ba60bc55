// Package infer implements Algorithm W with a union-find substitution
// table. Each expression is visited; every syntactic form emits equality
// constraints which are discharged immediately via unification rather
// than collected and solved in a later pass, matching the single-pass
// visitor style of the rest of the pipeline.
package infer

import "github.com/dekarrin/vela/internal/types"

// Substitution is the union-find table keyed by type-variable id:
// substitutions are applied lazily (Resolve chases the
// chain) with path compression, and committed (walked and applied to every
// cached expression type) once, after every item of the file has been
// inferred.
type Substitution struct {
	bound map[int]*types.Type
}

// NewSubstitution returns an empty substitution table.
func NewSubstitution() *Substitution {
	return &Substitution{bound: make(map[int]*types.Type)}
}

// Resolve chases t through the substitution chain, compressing the path it
// walks. Non-Var types, and unbound Vars, are returned unchanged.
func (s *Substitution) Resolve(t *types.Type) *types.Type {
	if t == nil || t.Kind != types.Var {
		return t
	}
	bound, ok := s.bound[t.VarID()]
	if !ok {
		return t
	}
	resolved := s.Resolve(bound)
	s.bound[t.VarID()] = resolved
	return resolved
}

func (s *Substitution) bind(varID int, t *types.Type) {
	s.bound[varID] = t
}

// Apply walks t, replacing every bound type variable (at any depth) with
// its resolved target. Unbound variables are left as-is.
func (s *Substitution) Apply(t *types.Type) *types.Type {
	if t == nil {
		return nil
	}
	r := s.Resolve(t)
	switch r.Kind {
	case types.Reference:
		return types.NewReference(r.Mutable, s.Apply(r.Elem))
	case types.RawPointer:
		return types.NewRawPointer(r.Mutable, s.Apply(r.Elem))
	case types.Array:
		return types.NewArray(s.Apply(r.Elem), r.Size, r.SizeKnown)
	case types.Slice:
		return types.NewSlice(s.Apply(r.Elem))
	case types.Tuple:
		elems := make([]*types.Type, len(r.Tuple))
		for i, e := range r.Tuple {
			elems[i] = s.Apply(e)
		}
		return types.NewTuple(elems...)
	case types.Function:
		params := make([]*types.Type, len(r.Args))
		for i, p := range r.Args {
			params[i] = s.Apply(p)
		}
		return types.NewFunction(params, s.Apply(r.Return))
	case types.Generic:
		args := make([]*types.Type, len(r.Args))
		for i, a := range r.Args {
			args[i] = s.Apply(a)
		}
		return types.NewGeneric(r.Name, args...)
	default:
		return r
	}
}

// FreeVars collects the ids of every unbound Var reachable from t.
func (s *Substitution) FreeVars(t *types.Type, out map[int]bool) {
	if t == nil {
		return
	}
	r := s.Resolve(t)
	switch r.Kind {
	case types.Var:
		out[r.VarID()] = true
	case types.Reference, types.RawPointer, types.Array, types.Slice:
		s.FreeVars(r.Elem, out)
	case types.Tuple:
		for _, e := range r.Tuple {
			s.FreeVars(e, out)
		}
	case types.Function:
		for _, p := range r.Args {
			s.FreeVars(p, out)
		}
		s.FreeVars(r.Return, out)
	case types.Generic:
		for _, a := range r.Args {
			s.FreeVars(a, out)
		}
	}
}

// occurs reports whether the variable varID appears anywhere within t,
// chasing the substitution as it goes. This is the occurs check performed
// before binding a variable, rejecting infinite types such as unifying T
// with ref T.
func (s *Substitution) occurs(varID int, t *types.Type) bool {
	r := s.Resolve(t)
	switch r.Kind {
	case types.Var:
		return r.VarID() == varID
	case types.Reference, types.RawPointer, types.Array, types.Slice:
		return s.occurs(varID, r.Elem)
	case types.Tuple:
		for _, e := range r.Tuple {
			if s.occurs(varID, e) {
				return true
			}
		}
		return false
	case types.Function:
		for _, p := range r.Args {
			if s.occurs(varID, p) {
				return true
			}
		}
		return s.occurs(varID, r.Return)
	case types.Generic:
		for _, a := range r.Args {
			if s.occurs(varID, a) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
