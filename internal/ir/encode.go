package ir

import (
	"fmt"
	"math"

	"github.com/dekarrin/rezi"
	"github.com/dekarrin/vela/internal/types"
)

// This file contains the binary format for the IR module on the boundary to
// the backend, so a hosting process can hand the backend a byte stream
// instead of a live Go value graph. Encoding is REZI-based throughout; every
// node implements encoding.BinaryMarshaler/BinaryUnmarshaler so the whole
// module round-trips through rezi.EncBinary/rezi.DecBinary.

// Encode serializes a module to bytes.
func Encode(m *Module) []byte {
	return rezi.EncBinary(m)
}

// Decode deserializes a module previously produced by Encode.
func Decode(data []byte) (*Module, error) {
	m := &Module{}
	n, err := rezi.DecBinary(data, m)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("module decode consumed %d/%d bytes", n, len(data))
	}
	return m, nil
}

func encTypeTo(enc []byte, t *types.Type) []byte {
	if t == nil {
		enc = append(enc, rezi.EncBool(false)...)
		return enc
	}
	enc = append(enc, rezi.EncBool(true)...)
	enc = append(enc, rezi.EncInt(int(t.Kind))...)
	switch t.Kind {
	case types.Primitive:
		enc = append(enc, rezi.EncInt(int(t.Prim))...)
	case types.Named, types.Var:
		enc = append(enc, rezi.EncString(t.Name)...)
	case types.Generic:
		enc = append(enc, rezi.EncString(t.Name)...)
		enc = append(enc, rezi.EncInt(len(t.Args))...)
		for _, a := range t.Args {
			enc = encTypeTo(enc, a)
		}
	case types.Reference, types.RawPointer:
		enc = append(enc, rezi.EncBool(t.Mutable)...)
		enc = encTypeTo(enc, t.Elem)
	case types.Array:
		enc = append(enc, rezi.EncBool(t.SizeKnown)...)
		enc = append(enc, rezi.EncInt(int(t.Size))...)
		enc = encTypeTo(enc, t.Elem)
	case types.Slice:
		enc = encTypeTo(enc, t.Elem)
	case types.Tuple:
		enc = append(enc, rezi.EncInt(len(t.Tuple))...)
		for _, e := range t.Tuple {
			enc = encTypeTo(enc, e)
		}
	case types.Function:
		enc = append(enc, rezi.EncInt(len(t.Args))...)
		for _, p := range t.Args {
			enc = encTypeTo(enc, p)
		}
		enc = encTypeTo(enc, t.Return)
	}
	return enc
}

func decType(data []byte) (*types.Type, int, error) {
	var n int

	present, consumed, err := rezi.DecBool(data)
	if err != nil {
		return nil, 0, fmt.Errorf("type presence: %w", err)
	}
	n += consumed
	if !present {
		return nil, n, nil
	}

	kindVal, consumed, err := rezi.DecInt(data[n:])
	if err != nil {
		return nil, 0, fmt.Errorf("type kind: %w", err)
	}
	n += consumed
	kind := types.Kind(kindVal)

	switch kind {
	case types.Primitive:
		p, consumed, err := rezi.DecInt(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		return types.NewPrimitive(types.PrimKind(p)), n, nil
	case types.Unit:
		return types.NewUnit(), n, nil
	case types.Named, types.Var:
		name, consumed, err := rezi.DecString(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		if kind == types.Var {
			return types.NewVar(name), n, nil
		}
		return types.NewNamed(name), n, nil
	case types.Generic:
		name, consumed, err := rezi.DecString(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		count, consumed, err := rezi.DecInt(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		args := make([]*types.Type, count)
		for i := 0; i < count; i++ {
			a, consumed, err := decType(data[n:])
			if err != nil {
				return nil, 0, err
			}
			n += consumed
			args[i] = a
		}
		return types.NewGeneric(name, args...), n, nil
	case types.Reference, types.RawPointer:
		mut, consumed, err := rezi.DecBool(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		elem, consumed, err := decType(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		if kind == types.Reference {
			return types.NewReference(mut, elem), n, nil
		}
		return types.NewRawPointer(mut, elem), n, nil
	case types.Array:
		known, consumed, err := rezi.DecBool(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		size, consumed, err := rezi.DecInt(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		elem, consumed, err := decType(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		return types.NewArray(elem, int64(size), known), n, nil
	case types.Slice:
		elem, consumed, err := decType(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		return types.NewSlice(elem), n, nil
	case types.Tuple:
		count, consumed, err := rezi.DecInt(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		elems := make([]*types.Type, count)
		for i := 0; i < count; i++ {
			e, consumed, err := decType(data[n:])
			if err != nil {
				return nil, 0, err
			}
			n += consumed
			elems[i] = e
		}
		return types.NewTuple(elems...), n, nil
	case types.Function:
		count, consumed, err := rezi.DecInt(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		params := make([]*types.Type, count)
		for i := 0; i < count; i++ {
			p, consumed, err := decType(data[n:])
			if err != nil {
				return nil, 0, err
			}
			n += consumed
			params[i] = p
		}
		ret, consumed, err := decType(data[n:])
		if err != nil {
			return nil, 0, err
		}
		n += consumed
		return types.NewFunction(params, ret), n, nil
	default:
		return nil, 0, fmt.Errorf("unknown type kind %d", kindVal)
	}
}

func (c Constant) MarshalBinary() ([]byte, error) {
	var enc []byte
	enc = append(enc, rezi.EncInt(int(c.Kind))...)
	switch c.Kind {
	case ConstInt:
		enc = append(enc, rezi.EncInt(int(c.Int))...)
	case ConstFloat:
		enc = append(enc, rezi.EncInt(int(math.Float64bits(c.Float)))...)
	case ConstBool:
		enc = append(enc, rezi.EncBool(c.Bool)...)
	}
	return enc, nil
}

func (c *Constant) UnmarshalBinary(data []byte) error {
	var n int
	kind, consumed, err := rezi.DecInt(data)
	if err != nil {
		return fmt.Errorf("constant kind: %w", err)
	}
	n += consumed
	c.Kind = ConstKind(kind)
	switch c.Kind {
	case ConstInt:
		v, _, err := rezi.DecInt(data[n:])
		if err != nil {
			return err
		}
		c.Int = int64(v)
	case ConstFloat:
		bits, _, err := rezi.DecInt(data[n:])
		if err != nil {
			return err
		}
		c.Float = math.Float64frombits(uint64(bits))
	case ConstBool:
		v, _, err := rezi.DecBool(data[n:])
		if err != nil {
			return err
		}
		c.Bool = v
	}
	return nil
}

func (v Value) MarshalBinary() ([]byte, error) {
	var enc []byte
	enc = append(enc, rezi.EncString(v.Name)...)
	enc = append(enc, rezi.EncBool(v.Const != nil)...)
	if v.Const != nil {
		enc = append(enc, rezi.EncBinary(*v.Const)...)
	}
	enc = encTypeTo(enc, v.Type)
	return enc, nil
}

func (v *Value) UnmarshalBinary(data []byte) error {
	var n int
	name, consumed, err := rezi.DecString(data)
	if err != nil {
		return fmt.Errorf("value name: %w", err)
	}
	n += consumed
	v.Name = name

	hasConst, consumed, err := rezi.DecBool(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	if hasConst {
		c := &Constant{}
		consumed, err := rezi.DecBinary(data[n:], c)
		if err != nil {
			return err
		}
		n += consumed
		v.Const = c
	}

	t, _, err := decType(data[n:])
	if err != nil {
		return err
	}
	v.Type = t
	return nil
}

func (in *Instr) MarshalBinary() ([]byte, error) {
	var enc []byte
	enc = append(enc, rezi.EncString(in.Name)...)
	enc = append(enc, rezi.EncInt(int(in.Op))...)
	enc = encTypeTo(enc, in.Type)
	enc = append(enc, rezi.EncInt(int(in.Cond))...)
	enc = append(enc, rezi.EncString(in.Callee)...)
	enc = append(enc, rezi.EncInt(in.Index)...)
	enc = append(enc, rezi.EncInt(len(in.Args))...)
	for _, a := range in.Args {
		enc = append(enc, rezi.EncBinary(a)...)
	}
	enc = append(enc, rezi.EncInt(len(in.Incoming))...)
	for _, inc := range in.Incoming {
		enc = append(enc, rezi.EncString(inc.Pred)...)
		enc = append(enc, rezi.EncBinary(inc.Value)...)
	}
	return enc, nil
}

func (in *Instr) UnmarshalBinary(data []byte) error {
	var n int
	var err error
	var consumed int

	if in.Name, consumed, err = rezi.DecString(data); err != nil {
		return fmt.Errorf("instr name: %w", err)
	}
	n += consumed
	op, consumed, err := rezi.DecInt(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	in.Op = Op(op)
	if in.Type, consumed, err = decType(data[n:]); err != nil {
		return err
	}
	n += consumed
	cond, consumed, err := rezi.DecInt(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	in.Cond = Cond(cond)
	if in.Callee, consumed, err = rezi.DecString(data[n:]); err != nil {
		return err
	}
	n += consumed
	if in.Index, consumed, err = rezi.DecInt(data[n:]); err != nil {
		return err
	}
	n += consumed

	argCount, consumed, err := rezi.DecInt(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	in.Args = make([]Value, argCount)
	for i := 0; i < argCount; i++ {
		if consumed, err = rezi.DecBinary(data[n:], &in.Args[i]); err != nil {
			return err
		}
		n += consumed
	}

	incCount, consumed, err := rezi.DecInt(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	in.Incoming = make([]Incoming, incCount)
	for i := 0; i < incCount; i++ {
		if in.Incoming[i].Pred, consumed, err = rezi.DecString(data[n:]); err != nil {
			return err
		}
		n += consumed
		if consumed, err = rezi.DecBinary(data[n:], &in.Incoming[i].Value); err != nil {
			return err
		}
		n += consumed
	}
	return nil
}

func (t *Terminator) MarshalBinary() ([]byte, error) {
	var enc []byte
	enc = append(enc, rezi.EncInt(int(t.Kind))...)
	enc = append(enc, rezi.EncBool(t.Value != nil)...)
	if t.Value != nil {
		enc = append(enc, rezi.EncBinary(*t.Value)...)
	}
	enc = append(enc, rezi.EncString(t.Target)...)
	enc = append(enc, rezi.EncString(t.Then)...)
	enc = append(enc, rezi.EncString(t.Else)...)
	enc = append(enc, rezi.EncInt(len(t.Cases))...)
	for _, c := range t.Cases {
		enc = append(enc, rezi.EncBinary(c.Value)...)
		enc = append(enc, rezi.EncString(c.Target)...)
	}
	return enc, nil
}

func (t *Terminator) UnmarshalBinary(data []byte) error {
	var n, consumed int
	var err error

	kind, consumed, err := rezi.DecInt(data)
	if err != nil {
		return fmt.Errorf("terminator kind: %w", err)
	}
	n += consumed
	t.Kind = TermKind(kind)

	hasValue, consumed, err := rezi.DecBool(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	if hasValue {
		v := &Value{}
		if consumed, err = rezi.DecBinary(data[n:], v); err != nil {
			return err
		}
		n += consumed
		t.Value = v
	}

	if t.Target, consumed, err = rezi.DecString(data[n:]); err != nil {
		return err
	}
	n += consumed
	if t.Then, consumed, err = rezi.DecString(data[n:]); err != nil {
		return err
	}
	n += consumed
	if t.Else, consumed, err = rezi.DecString(data[n:]); err != nil {
		return err
	}
	n += consumed

	caseCount, consumed, err := rezi.DecInt(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	t.Cases = make([]SwitchCase, caseCount)
	for i := 0; i < caseCount; i++ {
		if consumed, err = rezi.DecBinary(data[n:], &t.Cases[i].Value); err != nil {
			return err
		}
		n += consumed
		if t.Cases[i].Target, consumed, err = rezi.DecString(data[n:]); err != nil {
			return err
		}
		n += consumed
	}
	return nil
}

func (b *Block) MarshalBinary() ([]byte, error) {
	var enc []byte
	enc = append(enc, rezi.EncString(b.Label)...)
	enc = append(enc, rezi.EncInt(len(b.Instrs))...)
	for _, in := range b.Instrs {
		enc = append(enc, rezi.EncBinary(in)...)
	}
	enc = append(enc, rezi.EncBool(b.Term != nil)...)
	if b.Term != nil {
		enc = append(enc, rezi.EncBinary(b.Term)...)
	}
	return enc, nil
}

func (b *Block) UnmarshalBinary(data []byte) error {
	var n, consumed int
	var err error

	if b.Label, consumed, err = rezi.DecString(data); err != nil {
		return fmt.Errorf("block label: %w", err)
	}
	n += consumed

	instrCount, consumed, err := rezi.DecInt(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	b.Instrs = make([]*Instr, instrCount)
	for i := 0; i < instrCount; i++ {
		b.Instrs[i] = &Instr{}
		if consumed, err = rezi.DecBinary(data[n:], b.Instrs[i]); err != nil {
			return err
		}
		n += consumed
	}

	hasTerm, consumed, err := rezi.DecBool(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	if hasTerm {
		b.Term = &Terminator{}
		if _, err = rezi.DecBinary(data[n:], b.Term); err != nil {
			return err
		}
	}
	return nil
}

func (f *Function) MarshalBinary() ([]byte, error) {
	var enc []byte
	enc = append(enc, rezi.EncString(f.Name)...)
	enc = append(enc, rezi.EncInt(len(f.Params))...)
	for _, p := range f.Params {
		enc = append(enc, rezi.EncString(p.Name)...)
		enc = encTypeTo(enc, p.Type)
	}
	enc = encTypeTo(enc, f.Return)
	enc = append(enc, rezi.EncInt(len(f.Blocks))...)
	for _, b := range f.Blocks {
		enc = append(enc, rezi.EncBinary(b)...)
	}
	return enc, nil
}

func (f *Function) UnmarshalBinary(data []byte) error {
	var n, consumed int
	var err error

	if f.Name, consumed, err = rezi.DecString(data); err != nil {
		return fmt.Errorf("function name: %w", err)
	}
	n += consumed

	paramCount, consumed, err := rezi.DecInt(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	f.Params = make([]Param, paramCount)
	for i := 0; i < paramCount; i++ {
		if f.Params[i].Name, consumed, err = rezi.DecString(data[n:]); err != nil {
			return err
		}
		n += consumed
		if f.Params[i].Type, consumed, err = decType(data[n:]); err != nil {
			return err
		}
		n += consumed
	}

	if f.Return, consumed, err = decType(data[n:]); err != nil {
		return err
	}
	n += consumed

	blockCount, consumed, err := rezi.DecInt(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	f.Blocks = make([]*Block, blockCount)
	for i := 0; i < blockCount; i++ {
		f.Blocks[i] = &Block{}
		if consumed, err = rezi.DecBinary(data[n:], f.Blocks[i]); err != nil {
			return err
		}
		n += consumed
	}
	return nil
}

func (g *Global) MarshalBinary() ([]byte, error) {
	var enc []byte
	enc = append(enc, rezi.EncString(g.Name)...)
	enc = encTypeTo(enc, g.Type)
	enc = append(enc, rezi.EncBool(g.Mutable)...)
	enc = append(enc, rezi.EncBool(g.Init != nil)...)
	if g.Init != nil {
		enc = append(enc, rezi.EncBinary(*g.Init)...)
	}
	return enc, nil
}

func (g *Global) UnmarshalBinary(data []byte) error {
	var n, consumed int
	var err error

	if g.Name, consumed, err = rezi.DecString(data); err != nil {
		return fmt.Errorf("global name: %w", err)
	}
	n += consumed
	if g.Type, consumed, err = decType(data[n:]); err != nil {
		return err
	}
	n += consumed
	if g.Mutable, consumed, err = rezi.DecBool(data[n:]); err != nil {
		return err
	}
	n += consumed
	hasInit, consumed, err := rezi.DecBool(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	if hasInit {
		c := &Constant{}
		if _, err = rezi.DecBinary(data[n:], c); err != nil {
			return err
		}
		g.Init = c
	}
	return nil
}

func (m *Module) MarshalBinary() ([]byte, error) {
	var enc []byte
	enc = append(enc, rezi.EncString(m.Name)...)
	enc = append(enc, rezi.EncInt(len(m.Globals))...)
	for _, g := range m.Globals {
		enc = append(enc, rezi.EncBinary(g)...)
	}
	enc = append(enc, rezi.EncInt(len(m.Types))...)
	for _, td := range m.Types {
		enc = append(enc, rezi.EncString(td.Name)...)
		enc = encTypeTo(enc, td.Type)
	}
	enc = append(enc, rezi.EncInt(len(m.Functions))...)
	for _, f := range m.Functions {
		enc = append(enc, rezi.EncBinary(f)...)
	}
	return enc, nil
}

func (m *Module) UnmarshalBinary(data []byte) error {
	var n, consumed int
	var err error

	if m.Name, consumed, err = rezi.DecString(data); err != nil {
		return fmt.Errorf("module name: %w", err)
	}
	n += consumed

	globalCount, consumed, err := rezi.DecInt(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	m.Globals = make([]*Global, globalCount)
	for i := 0; i < globalCount; i++ {
		m.Globals[i] = &Global{}
		if consumed, err = rezi.DecBinary(data[n:], m.Globals[i]); err != nil {
			return err
		}
		n += consumed
	}

	typeCount, consumed, err := rezi.DecInt(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	m.Types = make([]*TypeDef, typeCount)
	for i := 0; i < typeCount; i++ {
		m.Types[i] = &TypeDef{}
		if m.Types[i].Name, consumed, err = rezi.DecString(data[n:]); err != nil {
			return err
		}
		n += consumed
		if m.Types[i].Type, consumed, err = decType(data[n:]); err != nil {
			return err
		}
		n += consumed
	}

	fnCount, consumed, err := rezi.DecInt(data[n:])
	if err != nil {
		return err
	}
	n += consumed
	m.Functions = make([]*Function, fnCount)
	for i := 0; i < fnCount; i++ {
		m.Functions[i] = &Function{}
		if consumed, err = rezi.DecBinary(data[n:], m.Functions[i]); err != nil {
			return err
		}
		n += consumed
	}
	return nil
}
