package cfg

import (
	"github.com/dekarrin/vela/internal/util"
)

// computeDominators fills g.dom with the classic iterative fixpoint:
// every block starts dominated by all blocks (the entry only by
// itself), then each block's set is repeatedly replaced with the
// intersection of its predecessors' sets plus itself until nothing changes.
func (g *Graph) computeDominators() {
	g.dom = make(map[BlockID]util.ISet[BlockID])

	all := util.NewKeySet[BlockID]()
	for _, b := range g.Blocks {
		all.Add(b.ID)
	}

	for _, b := range g.Blocks {
		if b.ID == g.Entry {
			entryOnly := util.NewKeySet[BlockID]()
			entryOnly.Add(g.Entry)
			g.dom[b.ID] = entryOnly
		} else {
			g.dom[b.ID] = all.Copy()
		}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range g.Blocks {
			if b.ID == g.Entry {
				continue
			}
			var next util.ISet[BlockID]
			for _, p := range b.Preds.Elements() {
				if next == nil {
					next = g.dom[p].Copy()
				} else {
					next = next.Intersection(g.dom[p])
				}
			}
			if next == nil {
				next = util.NewKeySet[BlockID]()
			}
			next.Add(b.ID)
			if !next.Equal(g.dom[b.ID]) {
				g.dom[b.ID] = next
				changed = true
			}
		}
	}

	g.computeIDoms()
}

// computeIDoms derives each block's immediate dominator: the unique
// dominator (other than the block itself) that does not dominate any other
// dominator of the block.
func (g *Graph) computeIDoms() {
	g.idom = make(map[BlockID]BlockID)
	for _, b := range g.Blocks {
		if b.ID == g.Entry {
			continue
		}
		strict := g.dom[b.ID].Copy()
		strict.Remove(b.ID)
		for _, cand := range strict.Elements() {
			isImmediate := true
			for _, other := range strict.Elements() {
				if other != cand && g.dom[other].Has(cand) {
					// cand dominates other, so cand is further from b
					// than other is; not immediate.
					isImmediate = false
					break
				}
			}
			if isImmediate {
				g.idom[b.ID] = cand
				break
			}
		}
	}
}

// computePostDominators runs the same fixpoint on the reverse graph.
// Exit blocks (return terminators) are post-dominated only by themselves.
func (g *Graph) computePostDominators() {
	g.postDom = make(map[BlockID]util.ISet[BlockID])

	all := util.NewKeySet[BlockID]()
	var exits []BlockID
	for _, b := range g.Blocks {
		all.Add(b.ID)
		if b.Term == TermReturn && b.Succs.Empty() {
			exits = append(exits, b.ID)
		}
	}

	isExit := util.KeySetOf(exits)
	for _, b := range g.Blocks {
		if isExit.Has(b.ID) {
			selfOnly := util.NewKeySet[BlockID]()
			selfOnly.Add(b.ID)
			g.postDom[b.ID] = selfOnly
		} else {
			g.postDom[b.ID] = all.Copy()
		}
	}

	changed := true
	for changed {
		changed = false
		for _, b := range g.Blocks {
			if isExit.Has(b.ID) {
				continue
			}
			var next util.ISet[BlockID]
			for _, s := range b.Succs.Elements() {
				if next == nil {
					next = g.postDom[s].Copy()
				} else {
					next = next.Intersection(g.postDom[s])
				}
			}
			if next == nil {
				next = util.NewKeySet[BlockID]()
			}
			next.Add(b.ID)
			if !next.Equal(g.postDom[b.ID]) {
				g.postDom[b.ID] = next
				changed = true
			}
		}
	}
}

// findNaturalLoops records every back-edge t -> h where h dominates t;
// each one identifies a natural loop with header h.
func (g *Graph) findNaturalLoops() {
	for _, t := range g.Blocks {
		for _, h := range t.Succs.Elements() {
			if g.dom[t.ID].Has(h) {
				g.BackEdges[t.ID] = h
			}
		}
	}
}

// Dominates reports whether a dominates b.
func (g *Graph) Dominates(a, b BlockID) bool {
	return g.dom[b].Has(a)
}

// Dominators returns the full dominator set of b (including b itself).
func (g *Graph) Dominators(b BlockID) util.ISet[BlockID] {
	return g.dom[b]
}

// PostDominators returns the full post-dominator set of b.
func (g *Graph) PostDominators(b BlockID) util.ISet[BlockID] {
	return g.postDom[b]
}

// IDom returns b's immediate dominator. The entry block has none; ok is
// false for it.
func (g *Graph) IDom(b BlockID) (BlockID, bool) {
	id, ok := g.idom[b]
	return id, ok
}

// DominanceFrontier returns, for each block b, the set of blocks f such
// that b dominates some predecessor of f but does not strictly dominate f.
func (g *Graph) DominanceFrontier() map[BlockID]util.ISet[BlockID] {
	df := make(map[BlockID]util.ISet[BlockID], len(g.Blocks))
	for _, b := range g.Blocks {
		df[b.ID] = util.NewKeySet[BlockID]()
	}
	for _, f := range g.Blocks {
		if f.Preds.Len() < 2 {
			continue
		}
		fIDom, hasIDom := g.idom[f.ID]
		for _, p := range f.Preds.Elements() {
			// walk up from each predecessor until reaching f's idom; every
			// block passed through has f in its frontier.
			runner := p
			for {
				if hasIDom && runner == fIDom {
					break
				}
				df[runner].Add(f.ID)
				next, ok := g.idom[runner]
				if !ok {
					break
				}
				runner = next
			}
		}
	}
	return df
}

// NaturalLoop returns the body of the loop formed by the back-edge
// tail -> header: header itself plus every block reachable backward from
// tail through predecessors without passing through header.
func (g *Graph) NaturalLoop(tail, header BlockID) util.ISet[BlockID] {
	body := util.NewKeySet[BlockID]()
	body.Add(header)
	stack := []BlockID{tail}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if body.Has(b) {
			continue
		}
		body.Add(b)
		for _, p := range g.Blocks[b].Preds.Elements() {
			stack = append(stack, p)
		}
	}
	return body
}

// Reachable returns the set of blocks reachable from the entry by
// following successor edges.
func (g *Graph) Reachable() util.ISet[BlockID] {
	seen := util.NewKeySet[BlockID]()
	stack := []BlockID{g.Entry}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen.Has(b) {
			continue
		}
		seen.Add(b)
		for _, s := range g.Blocks[b].Succs.Elements() {
			stack = append(stack, s)
		}
	}
	return seen
}
