// Package types implements the type representation shared by the parser
// (type annotations as written in source), the type inferencer (type
// variables and their unification), and every later stage that needs to ask
// "what type is this value". Types are a discriminated variant rather
// than an inheritance hierarchy: callers switch on Kind and read the
// fields that are valid for that kind.
package types

import "fmt"

// Kind is the discriminant of a Type.
type Kind int

const (
	Invalid Kind = iota
	Primitive
	Unit
	Named
	Generic
	Reference
	RawPointer
	Array
	Slice
	Tuple
	Function
	Var // a type variable introduced by inference
)

// Primitive kinds, a closed set of fixed-width numeric types plus bool/char/str.
type PrimKind int

const (
	I8 PrimKind = iota
	I16
	I32
	I64
	U8
	U16
	U32
	U64
	F32
	F64
	Bool
	Char
	Str
)

var primNames = map[PrimKind]string{
	I8: "i8", I16: "i16", I32: "i32", I64: "i64",
	U8: "u8", U16: "u16", U32: "u32", U64: "u64",
	F32: "f32", F64: "f64", Bool: "bool", Char: "char", Str: "str",
}

func (p PrimKind) String() string { return primNames[p] }

// IsInt reports whether the primitive is one of the signed/unsigned integer
// widths (as opposed to float, bool, char, or str).
func (p PrimKind) IsInt() bool {
	return p <= U64
}

// IsFloat reports whether the primitive is f32 or f64.
func (p PrimKind) IsFloat() bool {
	return p == F32 || p == F64
}

// Type is a single node of the discriminated type variant described in
// The zero value is not a valid Type; construct one with the
// New* functions below.
type Type struct {
	Kind Kind

	Prim PrimKind // valid when Kind == Primitive

	Name string // valid when Kind == Named or Kind == Generic or Kind == Var

	Args []*Type // generic application's Name<T1,...,Tn>, or function params

	Mutable bool  // valid when Kind == Reference or Kind == RawPointer
	Elem    *Type // inner type: Reference, RawPointer, Array, Slice

	SizeKnown bool // Array only: whether a constant size was given
	Size      int64

	Tuple []*Type // valid when Kind == Tuple

	Return *Type // valid when Kind == Function

	varID int // stable identity for Var, used by the union-find substitution
}

func NewPrimitive(p PrimKind) *Type   { return &Type{Kind: Primitive, Prim: p} }
func NewUnit() *Type                  { return &Type{Kind: Unit} }
func NewNamed(name string) *Type      { return &Type{Kind: Named, Name: name} }
func NewGeneric(name string, args ...*Type) *Type {
	return &Type{Kind: Generic, Name: name, Args: args}
}
func NewReference(mut bool, elem *Type) *Type {
	return &Type{Kind: Reference, Mutable: mut, Elem: elem}
}
func NewRawPointer(mut bool, elem *Type) *Type {
	return &Type{Kind: RawPointer, Mutable: mut, Elem: elem}
}
func NewArray(elem *Type, size int64, known bool) *Type {
	return &Type{Kind: Array, Elem: elem, Size: size, SizeKnown: known}
}
func NewSlice(elem *Type) *Type { return &Type{Kind: Slice, Elem: elem} }
func NewTuple(elems ...*Type) *Type {
	return &Type{Kind: Tuple, Tuple: elems}
}
func NewFunction(params []*Type, ret *Type) *Type {
	return &Type{Kind: Function, Args: params, Return: ret}
}

var nextVarID int

// NewVar returns a fresh type variable with a source-derived display name
// (e.g. from the identifier it was inferred for) and a unique identity used
// as the substitution table's key.
func NewVar(name string) *Type {
	nextVarID++
	if name == "" {
		name = fmt.Sprintf("T%d", nextVarID)
	}
	return &Type{Kind: Var, Name: name, varID: nextVarID}
}

// VarID returns the stable identity of a Var type. It panics if Kind is not
// Var.
func (t *Type) VarID() int {
	if t.Kind != Var {
		panic("VarID called on non-Var type")
	}
	return t.varID
}

// String renders the type the way it would appear in source or a diagnostic
// message.
func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	switch t.Kind {
	case Primitive:
		return t.Prim.String()
	case Unit:
		return "()"
	case Named:
		return t.Name
	case Generic:
		s := t.Name + "<"
		for i, a := range t.Args {
			if i > 0 {
				s += ", "
			}
			s += a.String()
		}
		return s + ">"
	case Reference:
		if t.Mutable {
			return "&mut " + t.Elem.String()
		}
		return "&" + t.Elem.String()
	case RawPointer:
		if t.Mutable {
			return "*mut " + t.Elem.String()
		}
		return "*const " + t.Elem.String()
	case Array:
		if t.SizeKnown {
			return fmt.Sprintf("[%s; %d]", t.Elem.String(), t.Size)
		}
		return fmt.Sprintf("[%s; _]", t.Elem.String())
	case Slice:
		return "[" + t.Elem.String() + "]"
	case Tuple:
		s := "("
		for i, e := range t.Tuple {
			if i > 0 {
				s += ", "
			}
			s += e.String()
		}
		return s + ")"
	case Function:
		s := "fn("
		for i, p := range t.Args {
			if i > 0 {
				s += ", "
			}
			s += p.String()
		}
		return s + ") -> " + t.Return.String()
	case Var:
		return "'" + t.Name
	default:
		return "<invalid type>"
	}
}

// Equal performs a shallow structural equality check without chasing any
// substitution; callers that need substitution-aware equality should apply a
// Substitution first (see infer.Substitution.Apply).
func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Primitive:
		return a.Prim == b.Prim
	case Unit:
		return true
	case Named:
		return a.Name == b.Name
	case Generic:
		if a.Name != b.Name || len(a.Args) != len(b.Args) {
			return false
		}
		for i := range a.Args {
			if !Equal(a.Args[i], b.Args[i]) {
				return false
			}
		}
		return true
	case Reference, RawPointer:
		return a.Mutable == b.Mutable && Equal(a.Elem, b.Elem)
	case Array:
		return a.SizeKnown == b.SizeKnown && a.Size == b.Size && Equal(a.Elem, b.Elem)
	case Slice:
		return Equal(a.Elem, b.Elem)
	case Tuple:
		if len(a.Tuple) != len(b.Tuple) {
			return false
		}
		for i := range a.Tuple {
			if !Equal(a.Tuple[i], b.Tuple[i]) {
				return false
			}
		}
		return true
	case Function:
		if len(a.Args) != len(b.Args) || !Equal(a.Return, b.Return) {
			return false
		}
		for i := range a.Args {
			if !Equal(a.Args[i], b.Args[i]) {
				return false
			}
		}
		return true
	case Var:
		return a.varID == b.varID
	default:
		return false
	}
}

// Common primitive singletons used throughout the inferencer and lowering
// stages for results whose type is fixed by the language (e.g. comparisons
// always producing bool).
var (
	BoolType = NewPrimitive(Bool)
	I32Type  = NewPrimitive(I32)
	UnitType = NewUnit()
)
