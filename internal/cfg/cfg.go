// Package cfg builds a control-flow graph for a single function body:
// basic blocks with successor/predecessor edges, iteratively
// computed dominators and post-dominators, and natural-loop detection via
// back-edges. internal/borrow and internal/lower both consume the Graph
// this package produces.
package cfg

import (
	"github.com/dekarrin/vela/internal/ast"
	"github.com/dekarrin/vela/internal/util"
)

// BlockID is a stable index into a Graph's Blocks slice. Integer ids
// rather than pointers avoid ownership cycles between a block and its
// successors/predecessors.
type BlockID int

// TermKind discriminates how a block ends.
type TermKind int

const (
	TermNone   TermKind = iota // fallthrough to the single successor
	TermBranch                 // conditional: Then/Else successors
	TermReturn                 // no successors
)

// Block is one basic block: a straight-line run of statements (and,
// for the entry block of an expression-valued tail, an optional tail
// expression) ending in exactly one terminator.
type Block struct {
	ID    BlockID
	Stmts []*ast.Stmt
	Tail  *ast.Expr // only meaningful on the function's final reachable block

	Term     TermKind
	Cond     *ast.Expr // TermBranch
	Next     BlockID   // TermNone
	Then     BlockID   // TermBranch
	Else     BlockID   // TermBranch
	ReturnOf *ast.Expr // TermReturn, the returned value (nil for unit return)

	Preds util.ISet[BlockID]
	Succs util.ISet[BlockID]
}

// Graph is the CFG of a single function body.
type Graph struct {
	Blocks []*Block
	Entry  BlockID

	// loopHeader that back-edge t -> h targets, keyed by the tail block t.
	// Populated by natural-loop detection once dominators are known.
	BackEdges map[BlockID]BlockID

	idom     map[BlockID]BlockID
	dom      map[BlockID]util.ISet[BlockID]
	postDom  map[BlockID]util.ISet[BlockID]
}

func newGraph() *Graph {
	return &Graph{BackEdges: make(map[BlockID]BlockID)}
}

func (g *Graph) newBlock() *Block {
	b := &Block{
		ID:    BlockID(len(g.Blocks)),
		Preds: util.NewKeySet[BlockID](),
		Succs: util.NewKeySet[BlockID](),
	}
	g.Blocks = append(g.Blocks, b)
	return b
}

func (g *Graph) Block(id BlockID) *Block { return g.Blocks[id] }

func (g *Graph) addEdge(from, to BlockID) {
	g.Blocks[from].Succs.Add(to)
	g.Blocks[to].Preds.Add(from)
}

// builder walks a function body's statements in source order, threading a
// "current block": straight-line statements
// append to it, and each control-flow statement terminates it and wires up
// new blocks.
type builder struct {
	g *Graph

	// breakTargets/continueTargets are stacks of the exit/header block a
	// break/continue inside the current loop nest should jump to.
	breakTargets    []BlockID
	continueTargets []BlockID
}

// Build constructs the CFG for fn's body.
func Build(body *ast.Expr) *Graph {
	g := newGraph()
	entry := g.newBlock()
	g.Entry = entry.ID

	b := &builder{g: g}
	cur := entry.ID
	cur = b.buildBlock(cur, body)

	if g.Blocks[cur].Term == TermNone && g.Blocks[cur].Next == 0 && cur != g.Entry {
		// Function fell through without an explicit return; mark as a
		// return terminator carrying the block's tail expression (possibly
		// nil, i.e. unit).
		g.Blocks[cur].Term = TermReturn
		g.Blocks[cur].ReturnOf = g.Blocks[cur].Tail
	} else if g.Blocks[cur].Term == TermNone {
		g.Blocks[cur].Term = TermReturn
		g.Blocks[cur].ReturnOf = g.Blocks[cur].Tail
	}

	g.computeDominators()
	g.computePostDominators()
	g.findNaturalLoops()
	return g
}

// buildBlock appends block's statements (and tail) to cur, splitting into
// new blocks for every control-flow statement encountered, and returns the
// id of the block control should continue from afterward.
func (b *builder) buildBlock(cur BlockID, block *ast.Expr) BlockID {
	for _, stmt := range block.Stmts {
		cur = b.buildStmt(cur, stmt)
		if b.g.Blocks[cur].Term != TermNone {
			// Unreachable code after a terminator (return/break/continue)
			// inside this same straight-line run; stop appending to cur,
			// remaining statements are dead and skipped.
			return cur
		}
	}
	b.g.Blocks[cur].Tail = block.Tail
	return cur
}

func (b *builder) buildStmt(cur BlockID, stmt *ast.Stmt) BlockID {
	switch stmt.Kind {
	case ast.ExprStmt:
		if stmt.Value != nil && stmt.Value.Kind == ast.IfExpr {
			return b.buildIf(cur, stmt.Value)
		}
		b.g.Blocks[cur].Stmts = append(b.g.Blocks[cur].Stmts, stmt)
		return cur

	case ast.LetStmt:
		b.g.Blocks[cur].Stmts = append(b.g.Blocks[cur].Stmts, stmt)
		return cur

	case ast.ReturnStmt:
		b.g.Blocks[cur].Term = TermReturn
		b.g.Blocks[cur].ReturnOf = stmt.Value
		return cur

	case ast.BreakStmt:
		b.g.Blocks[cur].Term = TermNone
		if len(b.breakTargets) > 0 {
			target := b.breakTargets[len(b.breakTargets)-1]
			b.g.Blocks[cur].Next = target
			b.g.addEdge(cur, target)
		}
		b.g.Blocks[cur].Term = TermReturn // sealed: no further statements append
		return cur

	case ast.ContinueStmt:
		if len(b.continueTargets) > 0 {
			target := b.continueTargets[len(b.continueTargets)-1]
			b.g.Blocks[cur].Next = target
			b.g.addEdge(cur, target)
		}
		b.g.Blocks[cur].Term = TermReturn // sealed
		return cur

	case ast.WhileStmt:
		header := b.g.newBlock()
		bodyBlk := b.g.newBlock()
		exit := b.g.newBlock()

		b.g.Blocks[cur].Term = TermNone
		b.g.Blocks[cur].Next = header.ID
		b.g.addEdge(cur, header.ID)

		header.Term = TermBranch
		header.Cond = stmt.Cond
		header.Then = bodyBlk.ID
		header.Else = exit.ID
		b.g.addEdge(header.ID, bodyBlk.ID)
		b.g.addEdge(header.ID, exit.ID)

		b.breakTargets = append(b.breakTargets, exit.ID)
		b.continueTargets = append(b.continueTargets, header.ID)
		bodyEnd := b.buildBlock(bodyBlk.ID, stmt.Body)
		b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
		b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

		if b.g.Blocks[bodyEnd].Term == TermNone {
			b.g.Blocks[bodyEnd].Next = header.ID
			b.g.addEdge(bodyEnd, header.ID)
		}
		return exit.ID

	case ast.ForStmt:
		// Desugared form: initializer (the loop-variable
		// binding, modeled as a statement in the header block) + header
		// (the per-iteration has-more-elements test) + body + step (folded
		// into the header's iterator advance) + exit.
		header := b.g.newBlock()
		bodyBlk := b.g.newBlock()
		exit := b.g.newBlock()

		b.g.Blocks[cur].Stmts = append(b.g.Blocks[cur].Stmts, stmt)
		b.g.Blocks[cur].Term = TermNone
		b.g.Blocks[cur].Next = header.ID
		b.g.addEdge(cur, header.ID)

		header.Term = TermBranch
		header.Cond = stmt.IterExpr
		header.Then = bodyBlk.ID
		header.Else = exit.ID
		b.g.addEdge(header.ID, bodyBlk.ID)
		b.g.addEdge(header.ID, exit.ID)

		b.breakTargets = append(b.breakTargets, exit.ID)
		b.continueTargets = append(b.continueTargets, header.ID)
		bodyEnd := b.buildBlock(bodyBlk.ID, stmt.Body)
		b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
		b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

		if b.g.Blocks[bodyEnd].Term == TermNone {
			b.g.Blocks[bodyEnd].Next = header.ID
			b.g.addEdge(bodyEnd, header.ID)
		}
		return exit.ID

	case ast.LoopStmt:
		header := b.g.newBlock()
		exit := b.g.newBlock() // only reachable via an inner break

		b.g.Blocks[cur].Term = TermNone
		b.g.Blocks[cur].Next = header.ID
		b.g.addEdge(cur, header.ID)

		b.breakTargets = append(b.breakTargets, exit.ID)
		b.continueTargets = append(b.continueTargets, header.ID)
		bodyEnd := b.buildBlock(header.ID, stmt.Body)
		b.breakTargets = b.breakTargets[:len(b.breakTargets)-1]
		b.continueTargets = b.continueTargets[:len(b.continueTargets)-1]

		if b.g.Blocks[bodyEnd].Term == TermNone {
			b.g.Blocks[bodyEnd].Next = header.ID
			b.g.addEdge(bodyEnd, header.ID)
		}
		return exit.ID

	default:
		return cur
	}
}

// buildIf splits a statement-position if into then-block, else-block, and a
// merge-block. An else-if chain recurses, so each arm gets
// its own block; a missing else wires the false edge straight to the merge.
func (b *builder) buildIf(cur BlockID, e *ast.Expr) BlockID {
	thenBlk := b.g.newBlock()
	merge := b.g.newBlock()

	b.g.Blocks[cur].Term = TermBranch
	b.g.Blocks[cur].Cond = e.Cond
	b.g.Blocks[cur].Then = thenBlk.ID
	b.g.addEdge(cur, thenBlk.ID)

	thenEnd := b.buildBlock(thenBlk.ID, e.Then)
	if b.g.Blocks[thenEnd].Term == TermNone {
		b.g.Blocks[thenEnd].Next = merge.ID
		b.g.addEdge(thenEnd, merge.ID)
	}

	if e.Else == nil {
		b.g.Blocks[cur].Else = merge.ID
		b.g.addEdge(cur, merge.ID)
		return merge.ID
	}

	elseBlk := b.g.newBlock()
	b.g.Blocks[cur].Else = elseBlk.ID
	b.g.addEdge(cur, elseBlk.ID)

	var elseEnd BlockID
	if e.Else.Kind == ast.IfExpr {
		elseEnd = b.buildIf(elseBlk.ID, e.Else)
	} else {
		elseEnd = b.buildBlock(elseBlk.ID, e.Else)
	}
	if b.g.Blocks[elseEnd].Term == TermNone {
		b.g.Blocks[elseEnd].Next = merge.ID
		b.g.addEdge(elseEnd, merge.ID)
	}
	return merge.ID
}
