package lifetime

import "github.com/dekarrin/vela/internal/util"

// VarID identifies a single lifetime variable, fresh for every reference
// binding or borrow expression encountered during a function's check.
type VarID int

// Graph is the directed "outlives" constraint graph: an edge
// a -> b means "a outlives b" (a is valid for at least as long as b).
// Resolution rejects any cycle in this graph.
type Graph struct {
	edges map[VarID]util.ISet[VarID]
}

func newGraph() *Graph {
	return &Graph{edges: make(map[VarID]util.ISet[VarID])}
}

// addEdge records that a outlives b. Self-edges are never meaningful (a
// variable trivially outlives itself) and are dropped.
func (g *Graph) addEdge(a, b VarID) {
	if a == 0 || b == 0 || a == b {
		return
	}
	s, ok := g.edges[a]
	if !ok {
		s = util.NewKeySet[VarID]()
		g.edges[a] = s
	}
	s.Add(b)
}

// findCycle runs a DFS with the classic white/gray/black coloring, returning
// the first cycle found as the sequence of variables forming it. Every vertex
// mentioned by any edge is a root candidate, so a cycle disconnected from
// other constraints is still found.
func (g *Graph) findCycle() ([]VarID, bool) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[VarID]int)
	var path []VarID
	var cycle []VarID

	var visit func(v VarID) bool
	visit = func(v VarID) bool {
		color[v] = gray
		path = append(path, v)
		tos, ok := g.edges[v]
		if !ok {
			color[v] = black
			path = path[:len(path)-1]
			return false
		}
		for _, n := range tos.Elements() {
			if color[n] == gray {
				idx := 0
				for i, p := range path {
					if p == n {
						idx = i
						break
					}
				}
				cycle = append(append([]VarID{}, path[idx:]...), n)
				return true
			}
			if color[n] == white {
				if visit(n) {
					return true
				}
			}
		}
		color[v] = black
		path = path[:len(path)-1]
		return false
	}

	verts := util.NewKeySet[VarID]()
	for from, tos := range g.edges {
		verts.Add(from)
		for _, to := range tos.Elements() {
			verts.Add(to)
		}
	}
	for _, v := range verts.Elements() {
		if color[v] == white {
			if visit(v) {
				return cycle, true
			}
		}
	}
	return nil, false
}
