package resolve

import (
	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/source"
)

// Resolver walks a file's items and bodies, building a Table and annotating
// every AST node that introduces or references a name.
type Resolver struct {
	table *Table
	diags *diag.Collector
}

// New returns a Resolver with a fresh, empty Table.
func New() *Resolver {
	return &Resolver{table: NewTable(), diags: diag.NewCollector()}
}

// Table returns the symbol table built so far.
func (r *Resolver) Table() *Table { return r.table }

// Diagnostics returns the resolution diagnostics accumulated so far.
func (r *Resolver) Diagnostics() *diag.Collector { return r.diags }

// Resolve resolves every item in f: a first pass over
// items makes every top-level name visible, then a second pass resolves
// function/const/static bodies against that scope.
func (r *Resolver) Resolve(f *ast.File) {
	root := newScope(nil)

	for _, item := range f.Items {
		r.defineItem(root, item)
	}
	for _, item := range f.Items {
		r.resolveItemBody(root, item)
	}
}

func (r *Resolver) defineItem(scope *Scope, item *ast.Item) {
	name := item.Name
	if item.Kind == ast.ImplItem {
		// impl blocks don't themselves introduce a name into scope.
		return
	}
	sym := r.table.newSymbol(name, item.Span.Start, item.Mutable, item.Kind == ast.UseItem)
	item.SymbolID = int(sym.ID)
	if !scope.define(name, sym.ID) {
		r.duplicate(item.Span.Start, name)
	}
}

func (r *Resolver) duplicate(pos source.Position, name string) {
	r.diags.Add(diag.Errorf("E0004", source.Span{Start: pos, End: pos}, "duplicate definition of %q in this scope", name))
}

func (r *Resolver) undefined(span source.Span, scope *Scope, name string) {
	d := diag.Errorf("E0003", span, "cannot find %q in this scope", name)
	if suggestion := diag.SuggestName(name, scope.visibleNames()); suggestion != "" {
		d = d.WithSuggestion("a name is defined here; did you mean `" + suggestion + "`?")
	}
	r.diags.Add(d)
}

func (r *Resolver) resolveItemBody(parent *Scope, item *ast.Item) {
	switch item.Kind {
	case ast.FnItem:
		r.resolveFn(parent, item)
	case ast.ConstItem, ast.StaticItem:
		if item.ValueExpr != nil {
			r.resolveExpr(parent, item.ValueExpr)
		}
	case ast.TraitItem:
		for _, m := range item.Methods {
			r.resolveFn(parent, m)
		}
	case ast.ImplItem:
		for _, m := range item.ImplItems {
			r.resolveFn(parent, m)
		}
	}
}

func (r *Resolver) resolveFn(parent *Scope, fn *ast.Item) {
	fnScope := newScope(parent)
	for i := range fn.Params {
		param := &fn.Params[i]
		sym := r.table.newSymbol(param.Name, param.Span.Start, param.Mutable, false)
		sym.Type = param.Type
		param.SymbolID = int(sym.ID)
		if !fnScope.define(param.Name, sym.ID) {
			r.duplicate(param.Span.Start, param.Name)
		}
	}
	if fn.Body != nil {
		r.resolveBlockIn(fnScope, fn.Body)
	}
}

// resolveBlockIn resolves a block's statements against a freshly nested
// child of scope.
func (r *Resolver) resolveBlockIn(scope *Scope, block *ast.Expr) {
	inner := newScope(scope)
	for _, stmt := range block.Stmts {
		r.resolveStmt(inner, stmt)
	}
	if block.Tail != nil {
		r.resolveExpr(inner, block.Tail)
	}
}

func (r *Resolver) resolveStmt(scope *Scope, stmt *ast.Stmt) {
	switch stmt.Kind {
	case ast.LetStmt:
		if stmt.Init != nil {
			r.resolveExpr(scope, stmt.Init)
		}
		sym := r.table.newSymbol(stmt.Name, stmt.Span.Start, stmt.Mutable, false)
		sym.Type = stmt.DeclaredType
		stmt.SymbolID = int(sym.ID)
		if !scope.define(stmt.Name, sym.ID) {
			r.duplicate(stmt.Span.Start, stmt.Name)
		}
	case ast.ExprStmt:
		r.resolveExpr(scope, stmt.Value)
	case ast.ReturnStmt, ast.BreakStmt:
		if stmt.Value != nil {
			r.resolveExpr(scope, stmt.Value)
		}
	case ast.WhileStmt:
		r.resolveExpr(scope, stmt.Cond)
		r.resolveBlockIn(scope, stmt.Body)
	case ast.ForStmt:
		r.resolveExpr(scope, stmt.IterExpr)
		loopScope := newScope(scope)
		sym := r.table.newSymbol(stmt.ForVar, stmt.Span.Start, false, false)
		stmt.ForVarSymbol = int(sym.ID)
		loopScope.define(stmt.ForVar, sym.ID)
		r.resolveBlockIn(loopScope, stmt.Body)
	case ast.LoopStmt:
		r.resolveBlockIn(scope, stmt.Body)
	case ast.ContinueStmt:
		// no names to resolve
	}
}

func (r *Resolver) resolveExpr(scope *Scope, e *ast.Expr) {
	if e == nil {
		return
	}
	switch e.Kind {
	case ast.IdentExpr:
		if id, ok := scope.lookup(e.Name); ok {
			e.ResolvedSymbol = int(id)
		} else {
			r.undefined(e.Span, scope, e.Name)
		}
	case ast.Binary, ast.Assign:
		r.resolveExpr(scope, e.Left)
		r.resolveExpr(scope, e.Right)
	case ast.Unary, ast.Ref, ast.Deref:
		r.resolveExpr(scope, e.Operand)
	case ast.Call:
		r.resolveExpr(scope, e.Callee)
		for _, a := range e.Args {
			r.resolveExpr(scope, a)
		}
	case ast.MethodCall:
		r.resolveExpr(scope, e.Receiver)
		for _, a := range e.Args {
			r.resolveExpr(scope, a)
		}
	case ast.Field:
		r.resolveExpr(scope, e.Base)
	case ast.Index:
		r.resolveExpr(scope, e.Base)
		r.resolveExpr(scope, e.IndexExpr)
	case ast.IfExpr:
		r.resolveExpr(scope, e.Cond)
		r.resolveBlockIn(scope, e.Then)
		if e.Else != nil {
			if e.Else.Kind == ast.IfExpr {
				r.resolveExpr(scope, e.Else)
			} else {
				r.resolveBlockIn(scope, e.Else)
			}
		}
	case ast.MatchExpr:
		r.resolveExpr(scope, e.Scrutinee)
		for i := range e.Arms {
			armScope := newScope(scope)
			r.resolvePattern(armScope, &e.Arms[i].Pattern)
			r.resolveExpr(armScope, e.Arms[i].Body)
		}
	case ast.BlockExpr:
		r.resolveBlockIn(scope, e)
	case ast.Closure:
		closureScope := newScope(scope)
		for i := range e.Params {
			sym := r.table.newSymbol(e.Params[i].Name, e.Span.Start, false, false)
			closureScope.define(e.Params[i].Name, sym.ID)
		}
		r.resolveExpr(closureScope, e.Body)
	case ast.StructLit:
		if id, ok := scope.lookup(e.TypeName); ok {
			e.ResolvedSymbol = int(id)
		} else {
			r.undefined(e.Span, scope, e.TypeName)
		}
		for _, field := range e.StructFields {
			r.resolveExpr(scope, field.Value)
		}
	case ast.ArrayLit, ast.TupleLit:
		for _, elem := range e.Elements {
			r.resolveExpr(scope, elem)
		}
	}
}

func (r *Resolver) resolvePattern(scope *Scope, pat *ast.Pattern) {
	switch pat.Kind {
	case ast.BindingPattern:
		sym := r.table.newSymbol(pat.Name, pat.Span.Start, false, false)
		pat.SymbolID = int(sym.ID)
		scope.define(pat.Name, sym.ID)
	case ast.LiteralPattern:
		r.resolveExpr(scope, pat.Lit)
	}
}
