// Package ast defines the three mutually recursive trees of the language
// (items, statements, expressions) as discriminated variants: tagged
// structs rather than an interface hierarchy, switched on Kind by each
// visitor (resolve, infer, lifetime, cfg, lower).
package ast

import (
	"github.com/dekarrin/vela/internal/source"
	"github.com/dekarrin/vela/internal/types"
)

// File is a single parsed compilation unit: the ordered top-level items
// declared in one source file.
type File struct {
	FileID source.FileID
	Items  []*Item
}

// ItemKind discriminates the top-level declaration forms.
type ItemKind int

const (
	InvalidItem ItemKind = iota
	FnItem
	StructItem
	EnumItem
	ConstItem
	StaticItem
	UseItem
	TraitItem
	ImplItem
)

// Param is a single function or closure parameter.
type Param struct {
	Name     string
	Type     *types.Type
	Mutable  bool
	Span     source.Span
	SymbolID int // filled by internal/resolve
}

// StructField is a single named field of a struct or a named enum variant.
type StructField struct {
	Name string
	Type *types.Type
	Span source.Span
}

// EnumVariant is one variant of an enum item. A unit variant has no fields.
type EnumVariant struct {
	Name   string
	Fields []StructField
	Span   source.Span
}

// Item is a top-level declaration: function, struct, enum, const, static,
// use, trait, or impl, each carrying a name and optional generic parameter
// list.
type Item struct {
	Kind     ItemKind
	Name     string
	Generics []string
	Span     source.Span

	// Fn
	Params     []Param
	ReturnType *types.Type
	Body       *Expr // Kind == Block; nil for a trait method signature

	// Struct
	Fields []StructField

	// Enum
	Variants []EnumVariant

	// Const / Static
	DeclaredType *types.Type
	ValueExpr    *Expr
	Mutable      bool // static mut

	// Use
	Path  []string
	Alias string

	// Trait
	Methods []*Item

	// Impl
	TraitName  string // empty for an inherent impl
	TargetType *types.Type
	ImplItems  []*Item

	SymbolID int // filled by internal/resolve
}

// StmtKind discriminates the statement forms.
type StmtKind int

const (
	InvalidStmt StmtKind = iota
	LetStmt
	ExprStmt
	ReturnStmt
	WhileStmt
	ForStmt
	LoopStmt
	BreakStmt
	ContinueStmt
)

// Stmt is one statement inside a block. Which fields are meaningful is
// selected by Kind.
type Stmt struct {
	Kind StmtKind
	Span source.Span

	// LetStmt
	Name         string
	Mutable      bool
	DeclaredType *types.Type // optional annotation
	Init         *Expr       // optional initializer
	SymbolID     int         // filled by internal/resolve

	// ExprStmt, ReturnStmt, BreakStmt (value is optional on break)
	Value *Expr

	// WhileStmt / ForStmt / LoopStmt
	Cond     *Expr // WhileStmt
	Body     *Expr // Kind == Block, shared by while/for/loop
	ForVar       string
	ForVarSymbol int // filled by internal/resolve
	IterExpr     *Expr // ForStmt's iterable
}

// ExprKind discriminates the expression forms.
type ExprKind int

const (
	InvalidExpr ExprKind = iota
	IntLit
	FloatLit
	StringLit
	CharLit
	BoolLit
	IdentExpr
	Binary
	Unary
	Call
	MethodCall
	Field
	Index
	IfExpr
	MatchExpr
	BlockExpr
	Closure
	StructLit
	ArrayLit
	TupleLit
	Assign
	Ref
	Deref
)

// ClosureParam is a parameter of a closure literal.
type ClosureParam struct {
	Name string
	Type *types.Type // optional annotation; nil means inferred
}

// StructFieldInit is one `name: value` pair in a struct literal.
type StructFieldInit struct {
	Name  string
	Value *Expr
}

// PatternKind discriminates match-arm patterns: a wildcard, a binding
// (which may also be a bare variant/const name), or a literal.
type PatternKind int

const (
	WildcardPattern PatternKind = iota
	BindingPattern
	LiteralPattern
)

// Pattern is a single match-arm pattern.
type Pattern struct {
	Kind     PatternKind
	Name     string // BindingPattern
	Lit      *Expr  // LiteralPattern
	Span     source.Span
	SymbolID int // filled by internal/resolve, for BindingPattern
}

// MatchArm is one `pattern => body` arm of a match expression.
type MatchArm struct {
	Pattern Pattern
	Body    *Expr
}

// Expr is a single expression node. Which fields are meaningful is selected
// by Kind. Type is filled in by internal/infer and cached for later stages.
type Expr struct {
	Kind ExprKind
	Span source.Span
	Type *types.Type // filled by internal/infer

	// literal payloads
	IntValue    int64
	FloatValue  float64
	StringValue string
	CharValue   rune
	BoolValue   bool

	// IdentExpr
	Name           string
	ResolvedSymbol int // filled by internal/resolve
	LifetimeVar    int // filled by internal/lifetime, when Type is a reference

	// Binary / Unary / Assign
	Op          string
	Left, Right *Expr
	Operand     *Expr

	// Ref
	Mutable bool

	// Call
	Callee *Expr
	Args   []*Expr

	// MethodCall
	Receiver *Expr
	Method   string

	// Field / Index
	Base      *Expr
	IndexExpr *Expr

	// IfExpr
	Cond *Expr
	Then *Expr // Kind == Block
	Else *Expr // optional; Kind == Block or IfExpr (else-if chain)

	// MatchExpr
	Scrutinee *Expr
	Arms      []MatchArm

	// BlockExpr
	Stmts []*Stmt
	Tail  *Expr // trailing expression, or nil for unit-valued block

	// Closure
	Params []ClosureParam
	Body   *Expr

	// StructLit
	TypeName     string
	StructFields []StructFieldInit

	// ArrayLit / TupleLit
	Elements []*Expr
}

// IsLiteral reports whether e is one of the literal expression kinds.
func (e *Expr) IsLiteral() bool {
	switch e.Kind {
	case IntLit, FloatLit, StringLit, CharLit, BoolLit:
		return true
	default:
		return false
	}
}
