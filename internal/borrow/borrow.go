// Package borrow implements the flow-sensitive borrow checker: loans are
// collected per basic block, a forward may-reach dataflow
// over the control-flow graph propagates them to fixpoint, and every use
// site is checked against the loan set flowing into it. Ownership states
// (owned, shared-borrowed, mutably-borrowed, moved) advance at statement
// granularity.
package borrow

import (
	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/cfg"
	"github.com/dekarrin/vela/internal/diag"
	"github.com/dekarrin/vela/internal/resolve"
	"github.com/dekarrin/vela/internal/source"
	"github.com/dekarrin/vela/internal/types"
	"github.com/dekarrin/vela/internal/util"
)

// Loan records a reference taken into scope: the place (the root binding's
// symbol id), its mutability, and where it was taken.
type Loan struct {
	ID      int
	Place   int
	Mutable bool
	Span    source.Span

	// Holder is the symbol id of the binding the reference was stored
	// into, or -1 when the reference was not bound. Reassigning or
	// redeclaring the holder ends the loan.
	Holder int
}

// Checker checks one function at a time over a shared symbol table.
type Checker struct {
	table *resolve.Table
	diags *diag.Collector
}

// New returns a Checker over a resolved file's symbol table.
func New(table *resolve.Table) *Checker {
	return &Checker{table: table, diags: diag.NewCollector()}
}

// Diagnostics returns the borrow diagnostics accumulated so far.
func (c *Checker) Diagnostics() *diag.Collector { return c.diags }

// Check borrow-checks every function body in f. Each function is an
// independent recovery unit: an error in one does not stop
// the others from being checked.
func (c *Checker) Check(f *ast.File) {
	for _, item := range f.Items {
		switch item.Kind {
		case ast.FnItem:
			c.checkFn(item)
		case ast.ImplItem:
			for _, m := range item.ImplItems {
				c.checkFn(m)
			}
		case ast.TraitItem:
			for _, m := range item.Methods {
				c.checkFn(m)
			}
		}
	}
}

type eventKind int

const (
	evBorrow eventKind = iota
	evRead
	evWrite
	evMove
)

// event is one place-affecting action, in statement order within a block.
type event struct {
	kind  eventKind
	place int
	name  string
	span  source.Span

	mutable bool // evBorrow
	loanID  int  // evBorrow

	// binds lists the loan ids this write stores into the written binding;
	// they survive the write that creates them.
	binds []int // evWrite
}

// fnChecker holds the per-function dataflow state.
type fnChecker struct {
	c     *Checker
	g     *cfg.Graph
	loans []Loan

	events map[cfg.BlockID][]event

	genLoans  map[cfg.BlockID]util.KeySet[int]
	killLoans map[cfg.BlockID]util.KeySet[int]
	loanIn    map[cfg.BlockID]util.KeySet[int]
	loanOut   map[cfg.BlockID]util.KeySet[int]

	genMoves  map[cfg.BlockID]util.KeySet[int]
	killMoves map[cfg.BlockID]util.KeySet[int]
	moveIn    map[cfg.BlockID]util.KeySet[int]
	moveOut   map[cfg.BlockID]util.KeySet[int]
}

func (c *Checker) checkFn(fn *ast.Item) {
	if fn.Body == nil {
		return
	}
	fc := &fnChecker{
		c:         c,
		g:         cfg.Build(fn.Body),
		events:    make(map[cfg.BlockID][]event),
		genLoans:  make(map[cfg.BlockID]util.KeySet[int]),
		killLoans: make(map[cfg.BlockID]util.KeySet[int]),
		loanIn:    make(map[cfg.BlockID]util.KeySet[int]),
		loanOut:   make(map[cfg.BlockID]util.KeySet[int]),
		genMoves:  make(map[cfg.BlockID]util.KeySet[int]),
		killMoves: make(map[cfg.BlockID]util.KeySet[int]),
		moveIn:    make(map[cfg.BlockID]util.KeySet[int]),
		moveOut:   make(map[cfg.BlockID]util.KeySet[int]),
	}
	fc.collectEvents()
	fc.computeGenKill()
	fc.iterate()
	fc.checkBlocks()
}

// collectEvents walks each block's statements (and its branch condition,
// tail, and returned expression) recording the ordered borrow/read/write/
// move events the dataflow and check passes both consume.
func (fc *fnChecker) collectEvents() {
	for _, b := range fc.g.Blocks {
		var evs []event
		for _, s := range b.Stmts {
			evs = fc.stmtEvents(evs, s)
		}
		if b.Cond != nil {
			evs = fc.exprEvents(evs, b.Cond)
		}
		if b.Tail != nil {
			evs = fc.exprEvents(evs, b.Tail)
		}
		if b.ReturnOf != nil {
			evs = fc.exprEvents(evs, b.ReturnOf)
		}
		fc.events[b.ID] = evs
	}
}

func (fc *fnChecker) stmtEvents(evs []event, s *ast.Stmt) []event {
	switch s.Kind {
	case ast.LetStmt:
		var bound []int
		if s.Init != nil {
			firstLoan := len(fc.loans)
			evs = fc.exprEvents(evs, s.Init)
			for i := firstLoan; i < len(fc.loans); i++ {
				fc.loans[i].Holder = s.SymbolID
				bound = append(bound, i)
			}
		}
		evs = append(evs, event{kind: evWrite, place: s.SymbolID, name: s.Name, span: s.Span, binds: bound})
	case ast.ExprStmt, ast.ReturnStmt, ast.BreakStmt:
		if s.Value != nil {
			evs = fc.exprEvents(evs, s.Value)
		}
	case ast.WhileStmt, ast.ForStmt, ast.LoopStmt:
		// loop structure became separate blocks during CFG construction;
		// nothing straight-line remains here except a for-loop's iterable,
		// which the header block's Cond already covers.
	}
	return evs
}

// rootPlace chases field access, indexing, and dereference down to the
// identifier that owns the storage. Loans on any projection of a binding
// conservatively overlap every other projection of it.
func rootPlace(e *ast.Expr) (*ast.Expr, bool) {
	for {
		switch e.Kind {
		case ast.IdentExpr:
			return e, true
		case ast.Field, ast.Index:
			e = e.Base
		case ast.Deref:
			e = e.Operand
		default:
			return nil, false
		}
	}
}

// isCopyType reports whether values of t copy on use rather than move:
// primitives (str excluded), unit, shared references, and raw pointers.
func isCopyType(t *types.Type) bool {
	if t == nil {
		return true // unresolved, be permissive
	}
	switch t.Kind {
	case types.Primitive:
		return t.Prim != types.Str
	case types.Unit:
		return true
	case types.Reference:
		return !t.Mutable
	case types.RawPointer:
		return true
	default:
		return false
	}
}

func (fc *fnChecker) exprEvents(evs []event, e *ast.Expr) []event {
	if e == nil {
		return evs
	}
	switch e.Kind {
	case ast.IdentExpr:
		// a bare identifier in value position moves a non-Copy value into
		// its new home; uses that merely chase through a dereference go
		// through readThroughEvents instead and never move the binding.
		kind := evRead
		if !isCopyType(e.Type) {
			kind = evMove
		}
		evs = append(evs, event{kind: kind, place: e.ResolvedSymbol, name: e.Name, span: e.Span})

	case ast.Ref:
		if root, ok := rootPlace(e.Operand); ok {
			loan := Loan{ID: len(fc.loans), Place: root.ResolvedSymbol, Mutable: e.Mutable, Span: e.Span, Holder: -1}
			fc.loans = append(fc.loans, loan)
			evs = append(evs, event{kind: evBorrow, place: root.ResolvedSymbol, name: root.Name,
				span: e.Span, mutable: e.Mutable, loanID: loan.ID})
			evs = fc.projectionEvents(evs, e.Operand)
		} else {
			evs = fc.exprEvents(evs, e.Operand)
		}

	case ast.Assign:
		firstLoan := len(fc.loans)
		evs = fc.exprEvents(evs, e.Right)
		var bound []int
		if e.Left.Kind == ast.IdentExpr {
			for i := firstLoan; i < len(fc.loans); i++ {
				fc.loans[i].Holder = e.Left.ResolvedSymbol
				bound = append(bound, i)
			}
		}
		switch e.Left.Kind {
		case ast.Deref:
			// writing through a reference reads the reference itself; the
			// pointee is covered by the loan that produced it.
			evs = fc.readThroughEvents(evs, e.Left.Operand)
		default:
			if root, ok := rootPlace(e.Left); ok {
				evs = fc.projectionEvents(evs, e.Left)
				evs = append(evs, event{kind: evWrite, place: root.ResolvedSymbol, name: root.Name, span: e.Span, binds: bound})
			} else {
				evs = fc.exprEvents(evs, e.Left)
			}
		}

	case ast.Deref:
		evs = fc.readThroughEvents(evs, e.Operand)

	case ast.Unary:
		evs = fc.exprEvents(evs, e.Operand)

	case ast.Binary:
		evs = fc.exprEvents(evs, e.Left)
		evs = fc.exprEvents(evs, e.Right)

	case ast.Call:
		for _, a := range e.Args {
			evs = fc.exprEvents(evs, a)
		}

	case ast.MethodCall:
		evs = fc.exprEvents(evs, e.Receiver)
		for _, a := range e.Args {
			evs = fc.exprEvents(evs, a)
		}

	case ast.Field:
		evs = fc.exprEvents(evs, e.Base)

	case ast.Index:
		evs = fc.exprEvents(evs, e.Base)
		evs = fc.exprEvents(evs, e.IndexExpr)

	case ast.IfExpr:
		// a value-position if was not split into CFG blocks; both arms
		// may run, and a may-reach analysis unions them anyway.
		evs = fc.exprEvents(evs, e.Cond)
		evs = fc.exprEvents(evs, e.Then)
		if e.Else != nil {
			evs = fc.exprEvents(evs, e.Else)
		}

	case ast.MatchExpr:
		evs = fc.exprEvents(evs, e.Scrutinee)
		for i := range e.Arms {
			evs = fc.exprEvents(evs, e.Arms[i].Body)
		}

	case ast.BlockExpr:
		for _, s := range e.Stmts {
			evs = fc.stmtEvents(evs, s)
		}
		evs = fc.exprEvents(evs, e.Tail)

	case ast.Closure:
		evs = fc.exprEvents(evs, e.Body)

	case ast.StructLit:
		for _, fi := range e.StructFields {
			evs = fc.exprEvents(evs, fi.Value)
		}

	case ast.ArrayLit, ast.TupleLit:
		for _, el := range e.Elements {
			evs = fc.exprEvents(evs, el)
		}
	}
	return evs
}

// readThroughEvents records the uses made while dereferencing a place:
// the root binding is read, never moved, no matter how many times the
// reference is chased, so `*r = 1; *r = 2;` stays legal. Non-place
// operands (a call returning a reference, say) fall back to the normal
// walk.
func (fc *fnChecker) readThroughEvents(evs []event, e *ast.Expr) []event {
	if root, ok := rootPlace(e); ok {
		evs = fc.projectionEvents(evs, e)
		evs = append(evs, event{kind: evRead, place: root.ResolvedSymbol, name: root.Name, span: root.Span})
		return evs
	}
	return fc.exprEvents(evs, e)
}

// projectionEvents records the reads performed while computing a place
// projection (index expressions), without touching the root binding.
func (fc *fnChecker) projectionEvents(evs []event, e *ast.Expr) []event {
	for {
		switch e.Kind {
		case ast.Index:
			evs = fc.exprEvents(evs, e.IndexExpr)
			e = e.Base
		case ast.Field:
			e = e.Base
		case ast.Deref:
			e = e.Operand
		default:
			return evs
		}
	}
}

// computeGenKill derives each block's gen (loans created) and kill (loans
// invalidated by reassignment of their place) sets from its event stream.
func (fc *fnChecker) computeGenKill() {
	loansOn := map[int][]int{}
	for _, l := range fc.loans {
		loansOn[l.Place] = append(loansOn[l.Place], l.ID)
		if l.Holder >= 0 && l.Holder != l.Place {
			loansOn[l.Holder] = append(loansOn[l.Holder], l.ID)
		}
	}

	for _, b := range fc.g.Blocks {
		gen := util.NewKeySet[int]()
		kill := util.NewKeySet[int]()
		moveGen := util.NewKeySet[int]()
		moveKill := util.NewKeySet[int]()
		for _, ev := range fc.events[b.ID] {
			switch ev.kind {
			case evBorrow:
				gen.Add(ev.loanID)
			case evWrite:
				for _, id := range loansOn[ev.place] {
					if boundBy(ev, id) {
						continue
					}
					if gen.Has(id) {
						gen.Remove(id)
					}
					kill.Add(id)
				}
				moveGen.Remove(ev.place)
				moveKill.Add(ev.place)
			case evMove:
				moveGen.Add(ev.place)
				moveKill.Remove(ev.place)
			}
		}
		fc.genLoans[b.ID] = gen
		fc.killLoans[b.ID] = kill
		fc.genMoves[b.ID] = moveGen
		fc.killMoves[b.ID] = moveKill
	}
}

// iterate runs the standard forward union dataflow to fixpoint:
// IN(b) = ⋃ OUT(p) for p ∈ preds(b); OUT(b) = (IN(b) \ kill(b)) ∪ gen(b).
func (fc *fnChecker) iterate() {
	for _, b := range fc.g.Blocks {
		fc.loanIn[b.ID] = util.NewKeySet[int]()
		fc.loanOut[b.ID] = fc.genLoans[b.ID].Copy().(util.KeySet[int])
		fc.moveIn[b.ID] = util.NewKeySet[int]()
		fc.moveOut[b.ID] = fc.genMoves[b.ID].Copy().(util.KeySet[int])
	}

	changed := true
	for changed {
		changed = false
		for _, b := range fc.g.Blocks {
			in := util.NewKeySet[int]()
			movedIn := util.NewKeySet[int]()
			for _, p := range b.Preds.Elements() {
				in.AddAll(fc.loanOut[p])
				movedIn.AddAll(fc.moveOut[p])
			}

			out := in.Copy().(util.KeySet[int])
			out = out.Difference(fc.killLoans[b.ID]).(util.KeySet[int])
			out.AddAll(fc.genLoans[b.ID])

			movedOut := movedIn.Copy().(util.KeySet[int])
			movedOut = movedOut.Difference(fc.killMoves[b.ID]).(util.KeySet[int])
			movedOut.AddAll(fc.genMoves[b.ID])

			if !in.Equal(fc.loanIn[b.ID]) || !out.Equal(fc.loanOut[b.ID]) ||
				!movedIn.Equal(fc.moveIn[b.ID]) || !movedOut.Equal(fc.moveOut[b.ID]) {
				changed = true
			}
			fc.loanIn[b.ID] = in
			fc.loanOut[b.ID] = out
			fc.moveIn[b.ID] = movedIn
			fc.moveOut[b.ID] = movedOut
		}
	}
}

// checkBlocks replays each block's events against the loan and moved sets
// flowing into it, reporting conflicts at the exact event that introduces
// them.
func (fc *fnChecker) checkBlocks() {
	for _, b := range fc.g.Blocks {
		live := fc.loanIn[b.ID].Copy().(util.KeySet[int])
		moved := fc.moveIn[b.ID].Copy().(util.KeySet[int])

		for _, ev := range fc.events[b.ID] {
			switch ev.kind {
			case evBorrow:
				if moved.Has(ev.place) {
					fc.c.diags.Add(diag.Errorf("E0382", ev.span, "borrow of moved value: `%s`", ev.name))
				}
				// a loan flowing around a loop back-edge to its own borrow
				// site is the previous iteration's incarnation ending, not
				// a conflict.
				live.Remove(ev.loanID)
				sharedLive, mutLive := fc.liveKinds(live, ev.place)
				if ev.mutable && (sharedLive || mutLive) {
					why := "as mutable more than once at a time"
					if sharedLive && !mutLive {
						why = "as mutable because it is also borrowed as immutable"
					}
					fc.c.diags.Add(diag.Errorf("E0502", ev.span, "cannot borrow `%s` %s", ev.name, why))
				} else if !ev.mutable && mutLive {
					fc.c.diags.Add(diag.Errorf("E0502", ev.span,
						"cannot borrow `%s` as immutable because it is also borrowed as mutable", ev.name))
				}
				live.Add(ev.loanID)

			case evWrite:
				sharedLive, mutLive := fc.liveKinds(live, ev.place)
				if sharedLive || mutLive {
					fc.c.diags.Add(diag.Errorf("E0506", ev.span, "cannot assign to `%s` because it is borrowed", ev.name))
				}
				for _, id := range live.Elements() {
					if boundBy(ev, id) {
						continue
					}
					if fc.loans[id].Place == ev.place || fc.loans[id].Holder == ev.place {
						live.Remove(id)
					}
				}
				moved.Remove(ev.place)

			case evRead:
				if moved.Has(ev.place) {
					fc.c.diags.Add(diag.Errorf("E0382", ev.span, "use of moved value: `%s`", ev.name))
				}
				if _, mutLive := fc.liveKinds(live, ev.place); mutLive {
					fc.c.diags.Add(diag.Errorf("E0503", ev.span,
						"cannot use `%s` because it is borrowed as mutable", ev.name))
				}

			case evMove:
				if moved.Has(ev.place) {
					fc.c.diags.Add(diag.Errorf("E0382", ev.span, "use of moved value: `%s`", ev.name))
				}
				sharedLive, mutLive := fc.liveKinds(live, ev.place)
				if sharedLive || mutLive {
					fc.c.diags.Add(diag.Errorf("E0505", ev.span, "cannot move out of `%s` because it is borrowed", ev.name))
				}
				moved.Add(ev.place)
			}
		}
	}
}

// boundBy reports whether the write event ev is the one that binds loan id.
func boundBy(ev event, id int) bool {
	for _, b := range ev.binds {
		if b == id {
			return true
		}
	}
	return false
}

// liveKinds reports whether any shared, and any mutable, loan on place is
// in the live set.
func (fc *fnChecker) liveKinds(live util.KeySet[int], place int) (shared, mutable bool) {
	for _, id := range live.Elements() {
		if fc.loans[id].Place != place {
			continue
		}
		if fc.loans[id].Mutable {
			mutable = true
		} else {
			shared = true
		}
	}
	return shared, mutable
}
