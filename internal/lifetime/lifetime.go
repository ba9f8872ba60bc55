// Package lifetime implements region inference: fresh lifetime variables for
// every reference binding and borrow expression, outlives constraints
// collected into a directed graph, cycle rejection, and single-reference
// elision for function return positions.
package lifetime

import (
	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/resolve"
	"github.com/dekarrin/vela/internal/types"
)

// Checker walks one function body at a time. The core is single-threaded
// and synchronous, so a single mutable Checker is safe to reuse across a
// file's functions.
type Checker struct {
	diags *diag.Collector
	table *resolve.Table

	next VarID

	// bindingVar maps a resolve.SymbolID to the lifetime variable assigned
	// to it, for every parameter or let-binding whose type is a reference.
	bindingVar map[int]VarID

	curGraph       *Graph
	curReturnVar   VarID
	curReturnIsRef bool

	noElide bool
}

// New returns a Checker over a resolved file's symbol table.
func New(table *resolve.Table) *Checker {
	return &Checker{
		diags:      diag.NewCollector(),
		table:      table,
		bindingVar: make(map[int]VarID),
	}
}

// Diagnostics returns the lifetime diagnostics accumulated so far.
func (c *Checker) Diagnostics() *diag.Collector { return c.diags }

// DisableElision turns off single-input-reference elision; with it off,
// every returned reference needs
// an explicit annotation and is reported otherwise.
func (c *Checker) DisableElision() { c.noElide = true }

func (c *Checker) fresh() VarID {
	c.next++
	return c.next
}

// Check runs lifetime/region inference over every function body in f.
func (c *Checker) Check(f *ast.File) {
	for _, item := range f.Items {
		c.checkItem(item)
	}
}

func (c *Checker) checkItem(item *ast.Item) {
	switch item.Kind {
	case ast.FnItem:
		c.checkFn(item)
	case ast.TraitItem:
		for _, m := range item.Methods {
			c.checkFn(m)
		}
	case ast.ImplItem:
		for _, m := range item.ImplItems {
			c.checkFn(m)
		}
	}
}

func (c *Checker) checkFn(fn *ast.Item) {
	if fn.Body == nil {
		return
	}
	c.curGraph = newGraph()

	var refParams []*ast.Param
	for i := range fn.Params {
		p := &fn.Params[i]
		if p.Type != nil && p.Type.Kind == types.Reference {
			c.bindingVar[p.SymbolID] = c.fresh()
			refParams = append(refParams, p)
		}
	}

	c.curReturnIsRef = fn.ReturnType != nil && fn.ReturnType.Kind == types.Reference
	c.curReturnVar = 0
	if c.curReturnIsRef {
		if len(refParams) == 1 && !c.noElide {
			// Elision: the sole input reference's lifetime is reused for
			// the return position.
			c.curReturnVar = c.bindingVar[refParams[0].SymbolID]
		} else {
			c.diags.Add(diag.Errorf("E0106", fn.Span,
				"missing lifetime specifier: cannot infer the lifetime of the returned reference from %d input reference parameter(s)",
				len(refParams)))
			c.curReturnVar = c.fresh()
		}
	}

	c.walkBlock(fn.Body)

	if cycle, found := c.curGraph.findCycle(); found {
		c.diags.Add(diag.Errorf("E0495", fn.Span,
			"cannot infer an appropriate lifetime: constraint graph contains a cycle among %v", cycle))
	}
}

func (c *Checker) walkBlock(block *ast.Expr) VarID {
	for _, s := range block.Stmts {
		c.walkStmt(s)
	}
	if block.Tail != nil {
		return c.walkExpr(block.Tail)
	}
	return 0
}

func (c *Checker) walkStmt(s *ast.Stmt) {
	switch s.Kind {
	case ast.LetStmt:
		var initVar VarID
		if s.Init != nil {
			initVar = c.walkExpr(s.Init)
		}
		declaredRef := s.DeclaredType != nil && s.DeclaredType.Kind == types.Reference
		if declaredRef || initVar != 0 {
			v := c.fresh()
			c.bindingVar[s.SymbolID] = v
			if initVar != 0 {
				// Storing a reference of lifetime initVar into a binding of
				// declared lifetime v: initVar outlives v.
				c.curGraph.addEdge(initVar, v)
			}
		}
	case ast.ExprStmt:
		c.walkExpr(s.Value)
	case ast.ReturnStmt:
		if s.Value != nil {
			rv := c.walkExpr(s.Value)
			if c.curReturnIsRef && rv != 0 && c.curReturnVar != 0 {
				c.curGraph.addEdge(rv, c.curReturnVar)
			}
		}
	case ast.BreakStmt:
		if s.Value != nil {
			c.walkExpr(s.Value)
		}
	case ast.WhileStmt:
		c.walkExpr(s.Cond)
		c.walkBlock(s.Body)
	case ast.ForStmt:
		c.walkExpr(s.IterExpr)
		c.walkBlock(s.Body)
	case ast.LoopStmt:
		c.walkBlock(s.Body)
	}
}

// walkExpr visits e and returns the lifetime variable assigned to it, or 0
// if e's type is not a reference.
func (c *Checker) walkExpr(e *ast.Expr) VarID {
	if e == nil {
		return 0
	}
	isRefTyped := e.Type != nil && e.Type.Kind == types.Reference

	switch e.Kind {
	case ast.Ref:
		v := c.fresh()
		e.LifetimeVar = int(v)
		if inner := c.walkExpr(e.Operand); inner != 0 {
			// Re-borrow: the source reference must outlive the new one.
			c.curGraph.addEdge(inner, v)
		}
		return v

	case ast.Deref:
		c.walkExpr(e.Operand)
		if isRefTyped {
			v := c.fresh()
			e.LifetimeVar = int(v)
			return v
		}
		return 0

	case ast.IdentExpr:
		if v, ok := c.bindingVar[e.ResolvedSymbol]; ok {
			e.LifetimeVar = int(v)
			return v
		}
		return 0

	case ast.Binary:
		left := c.walkExpr(e.Left)
		right := c.walkExpr(e.Right)
		if isRefTyped {
			v := c.fresh()
			e.LifetimeVar = int(v)
			c.curGraph.addEdge(left, v)
			c.curGraph.addEdge(right, v)
			return v
		}
		return 0

	case ast.Unary:
		return c.walkExpr(e.Operand)

	case ast.Assign:
		rv := c.walkExpr(e.Right)
		lv := c.walkExpr(e.Left)
		c.curGraph.addEdge(rv, lv)
		return 0

	case ast.Call:
		c.walkExpr(e.Callee)
		for _, a := range e.Args {
			c.walkExpr(a)
		}
		if isRefTyped {
			v := c.fresh()
			e.LifetimeVar = int(v)
			return v
		}
		return 0

	case ast.MethodCall:
		c.walkExpr(e.Receiver)
		for _, a := range e.Args {
			c.walkExpr(a)
		}
		if isRefTyped {
			v := c.fresh()
			e.LifetimeVar = int(v)
			return v
		}
		return 0

	case ast.Field:
		base := c.walkExpr(e.Base)
		if isRefTyped {
			v := c.fresh()
			e.LifetimeVar = int(v)
			c.curGraph.addEdge(base, v)
			return v
		}
		return 0

	case ast.Index:
		base := c.walkExpr(e.Base)
		c.walkExpr(e.IndexExpr)
		if isRefTyped {
			v := c.fresh()
			e.LifetimeVar = int(v)
			c.curGraph.addEdge(base, v)
			return v
		}
		return 0

	case ast.IfExpr:
		c.walkExpr(e.Cond)
		thenVar := c.walkExpr(e.Then)
		var elseVar VarID
		if e.Else != nil {
			elseVar = c.walkExpr(e.Else)
		}
		if isRefTyped {
			v := c.fresh()
			e.LifetimeVar = int(v)
			c.curGraph.addEdge(thenVar, v)
			c.curGraph.addEdge(elseVar, v)
			return v
		}
		return 0

	case ast.MatchExpr:
		c.walkExpr(e.Scrutinee)
		var v VarID
		if isRefTyped {
			v = c.fresh()
			e.LifetimeVar = int(v)
		}
		for i := range e.Arms {
			armVar := c.walkExpr(e.Arms[i].Body)
			if isRefTyped {
				c.curGraph.addEdge(armVar, v)
			}
		}
		return v

	case ast.BlockExpr:
		return c.walkBlock(e)

	case ast.Closure:
		return c.walkExpr(e.Body)

	case ast.StructLit:
		for _, fi := range e.StructFields {
			c.walkExpr(fi.Value)
		}
		return 0

	case ast.ArrayLit, ast.TupleLit:
		for _, el := range e.Elements {
			c.walkExpr(el)
		}
		return 0

	default:
		return 0
	}
}
