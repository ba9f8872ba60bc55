// Package resolve builds the scope forest for a compilation unit: it is
// populated by walking items first (so every top-level name is visible
// before any body is resolved), then walking bodies, annotating every identifier expression
// with the symbol id it resolves to.
package resolve

import (
	"github.com/dekarrin/vela/internal/source"
	"github.com/dekarrin/vela/internal/types"
)

// SymbolID is the stable identity of a resolved symbol, used as the table's
// key and cached on the AST node that introduced or referenced it.
type SymbolID int

// Symbol is a single resolved declaration: name, type, mutability,
// declaration position, and whether it came from a use import.
type Symbol struct {
	ID       SymbolID
	Name     string
	Type     *types.Type // filled in by internal/infer for most kinds
	Mutable  bool
	DeclPos  source.Position
	Imported bool
}

// Scope is one node of the scope forest: a mapping from identifier name to
// resolved symbol, linked to its parent. Invariant: no two entries share a
// name within one scope; shadowing is only permitted across parent/child.
type Scope struct {
	parent *Scope
	names  map[string]SymbolID
}

func newScope(parent *Scope) *Scope {
	return &Scope{parent: parent, names: make(map[string]SymbolID)}
}

// define records name -> id in this scope. It returns false (and leaves the
// scope unchanged) if name is already defined in this scope, since shadowing
// is only permitted across a parent/child boundary, not within one scope.
func (s *Scope) define(name string, id SymbolID) bool {
	if _, exists := s.names[name]; exists {
		return false
	}
	s.names[name] = id
	return true
}

// lookup walks s and its ancestors looking for name.
func (s *Scope) lookup(name string) (SymbolID, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if id, ok := cur.names[name]; ok {
			return id, true
		}
	}
	return 0, false
}

// visibleNames returns every name visible from s (this scope and all
// ancestors), used to build "did you mean?" candidate lists.
func (s *Scope) visibleNames() []string {
	var names []string
	seen := map[string]bool{}
	for cur := s; cur != nil; cur = cur.parent {
		for n := range cur.names {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}

// Table owns every Symbol produced during resolution. It is read-only
// after resolution finishes.
type Table struct {
	symbols []*Symbol
}

// NewTable returns an empty symbol table.
func NewTable() *Table {
	return &Table{}
}

func (t *Table) newSymbol(name string, declPos source.Position, mutable, imported bool) *Symbol {
	sym := &Symbol{ID: SymbolID(len(t.symbols)), Name: name, DeclPos: declPos, Mutable: mutable, Imported: imported}
	t.symbols = append(t.symbols, sym)
	return sym
}

// Symbol returns the symbol registered under id.
func (t *Table) Symbol(id SymbolID) *Symbol {
	if int(id) < 0 || int(id) >= len(t.symbols) {
		return nil
	}
	return t.symbols[id]
}

// Symbols returns every registered symbol, in id order.
func (t *Table) Symbols() []*Symbol {
	return t.symbols
}
