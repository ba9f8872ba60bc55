package ir

import (
	"github.com/dekarrin/vela/internal/util"
)

// DomInfo is the dominance information for one function's block graph,
// computed with the same iterative-intersection fixpoint internal/cfg
// uses for the AST-level CFG, but keyed by block label since IR blocks
// are labeled rather than numbered.
type DomInfo struct {
	Order []string // block labels in function order; Order[0] is the entry
	Preds map[string][]string
	Succs map[string][]string

	dom  map[string]util.StringSet
	idom map[string]string
}

// Dominance computes predecessors, successors, dominator sets, and
// immediate dominators for f.
func Dominance(f *Function) *DomInfo {
	d := &DomInfo{
		Preds: make(map[string][]string),
		Succs: make(map[string][]string),
		dom:   make(map[string]util.StringSet),
		idom:  make(map[string]string),
	}
	for _, b := range f.Blocks {
		d.Order = append(d.Order, b.Label)
		if _, ok := d.Preds[b.Label]; !ok {
			d.Preds[b.Label] = nil
		}
	}
	for _, b := range f.Blocks {
		if b.Term == nil {
			continue
		}
		for _, tgt := range b.Term.Targets() {
			d.Succs[b.Label] = append(d.Succs[b.Label], tgt)
			d.Preds[tgt] = append(d.Preds[tgt], b.Label)
		}
	}

	if len(d.Order) == 0 {
		return d
	}
	entry := d.Order[0]

	all := util.NewStringSet()
	for _, l := range d.Order {
		all.Add(l)
	}
	for _, l := range d.Order {
		if l == entry {
			d.dom[l] = util.StringSetOf([]string{entry})
		} else {
			d.dom[l] = all.Copy().(util.StringSet)
		}
	}

	changed := true
	for changed {
		changed = false
		for _, l := range d.Order {
			if l == entry {
				continue
			}
			var next util.ISet[string]
			for _, p := range d.Preds[l] {
				if next == nil {
					next = d.dom[p].Copy()
				} else {
					next = next.Intersection(d.dom[p])
				}
			}
			if next == nil {
				next = util.NewStringSet()
			}
			next.Add(l)
			if !next.Equal(d.dom[l]) {
				d.dom[l] = next.(util.StringSet)
				changed = true
			}
		}
	}

	for _, l := range d.Order {
		if l == entry {
			continue
		}
		strict := d.dom[l].Copy()
		strict.Remove(l)
		for _, cand := range strict.Elements() {
			immediate := true
			for _, other := range strict.Elements() {
				if other != cand && d.dom[other].Has(cand) {
					immediate = false
					break
				}
			}
			if immediate {
				d.idom[l] = cand
				break
			}
		}
	}
	return d
}

// Dominates reports whether block a dominates block b.
func (d *DomInfo) Dominates(a, b string) bool {
	s, ok := d.dom[b]
	return ok && s.Has(a)
}

// IDom returns b's immediate dominator; ok is false for the entry block.
func (d *DomInfo) IDom(b string) (string, bool) {
	id, ok := d.idom[b]
	return id, ok
}

// Children returns the dominator tree as a child map: for each label, the
// labels whose immediate dominator it is, in function block order.
func (d *DomInfo) Children() map[string][]string {
	kids := make(map[string][]string)
	for _, l := range d.Order {
		if id, ok := d.idom[l]; ok {
			kids[id] = append(kids[id], l)
		}
	}
	return kids
}

// Frontier returns each block's dominance frontier: blocks f such that the
// block dominates some predecessor of f but does not strictly dominate f.
func (d *DomInfo) Frontier() map[string]util.StringSet {
	df := make(map[string]util.StringSet, len(d.Order))
	for _, l := range d.Order {
		df[l] = util.NewStringSet()
	}
	for _, l := range d.Order {
		if len(d.Preds[l]) < 2 {
			continue
		}
		lIDom, hasIDom := d.idom[l]
		for _, p := range d.Preds[l] {
			runner := p
			for {
				if hasIDom && runner == lIDom {
					break
				}
				if _, ok := df[runner]; !ok {
					break
				}
				df[runner].Add(l)
				next, ok := d.idom[runner]
				if !ok {
					break
				}
				runner = next
			}
		}
	}
	return df
}

// BackEdges returns every edge t -> h where h dominates t, each identifying
// a natural loop with header h.
func (d *DomInfo) BackEdges() [][2]string {
	var edges [][2]string
	for _, t := range d.Order {
		for _, h := range d.Succs[t] {
			if d.Dominates(h, t) {
				edges = append(edges, [2]string{t, h})
			}
		}
	}
	return edges
}

// NaturalLoop returns the body of the loop formed by back-edge tail ->
// header: the header plus everything reachable backward from the tail
// without passing through the header.
func (d *DomInfo) NaturalLoop(tail, header string) util.StringSet {
	body := util.NewStringSet()
	body.Add(header)
	stack := []string{tail}
	for len(stack) > 0 {
		l := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if body.Has(l) {
			continue
		}
		body.Add(l)
		stack = append(stack, d.Preds[l]...)
	}
	return body
}

// Reachable returns the labels reachable from the entry block.
func (d *DomInfo) Reachable() util.StringSet {
	seen := util.NewStringSet()
	if len(d.Order) == 0 {
		return seen
	}
	stack := []string{d.Order[0]}
	for len(stack) > 0 {
		l := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen.Has(l) {
			continue
		}
		seen.Add(l)
		stack = append(stack, d.Succs[l]...)
	}
	return seen
}
