// Package scope implements the lexical symbol tables used during a single
// file's build: a stack of name-to-ID scopes plus a flat registry of all
// functions by bare name for best-effort method-call resolution.
package scope

import (
	"github.com/cpgscan/cpgscan/internal/graph"
	"github.com/cpgscan/cpgscan/internal/ident"
)

// Table is a stack of scopes, innermost last. The root scope is created at
// construction and is never discarded.
type Table struct {
	stack []map[string]graph.ID
}

// NewTable returns a table holding only the root scope.
func NewTable() *Table {
	return &Table{stack: []map[string]graph.ID{{}}}
}

// Push opens a new innermost scope.
func (t *Table) Push() {
	t.stack = append(t.stack, map[string]graph.ID{})
}

// Pop closes the innermost scope. Popping with only the root scope left is
// a no-op.
func (t *Table) Pop() {
	if len(t.stack) <= 1 {
		return
	}
	t.stack = t.stack[:len(t.stack)-1]
}

// Bind inserts or overwrites name in the current innermost scope. Names
// that normalize to the empty string are ignored.
func (t *Table) Bind(name string, id graph.ID) {
	normalized := ident.Normalize(name)
	if normalized == "" {
		return
	}
	t.stack[len(t.stack)-1][normalized] = id
}

// Resolve searches innermost-to-outermost and returns the first match.
func (t *Table) Resolve(name string) (graph.ID, bool) {
	normalized := ident.Normalize(name)
	for i := len(t.stack) - 1; i >= 0; i-- {
		if id, ok := t.stack[i][normalized]; ok {
			return id, true
		}
	}
	return "", false
}

// InnermostLookup checks only the current innermost scope. Assignment
// targets use this so repeated assignment to a name within one scope reuses
// the same node identity instead of fragmenting it.
func (t *Table) InnermostLookup(name string) (graph.ID, bool) {
	id, ok := t.stack[len(t.stack)-1][ident.Normalize(name)]
	return id, ok
}

// Root returns the root scope's bindings. The project builder reads this
// after a file's build to index the module's exported symbols.
func (t *Table) Root() map[string]graph.ID {
	return t.stack[0]
}

// Depth returns the number of open scopes, root included.
func (t *Table) Depth() int {
	return len(t.stack)
}

// Registry indexes every function binding by bare name regardless of scope
// depth. It backs attribute-call resolution (obj.method()) when lexical
// lookup fails.
//
// When multiple classes define methods with the same bare name the choice
// is ambiguous: the first registered function wins. This is a deliberate
// best-effort policy, not type-accurate resolution, and it can attribute a
// call edge to the wrong same-named method.
type Registry struct {
	byName map[string][]graph.ID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string][]graph.ID)}
}

// Register appends id under the function's bare name, skipping exact
// duplicates.
func (r *Registry) Register(name string, id graph.ID) {
	normalized := ident.Normalize(name)
	if normalized == "" {
		return
	}
	for _, existing := range r.byName[normalized] {
		if existing == id {
			return
		}
	}
	r.byName[normalized] = append(r.byName[normalized], id)
}

// FirstByName returns the first-registered function with the given bare
// name.
func (r *Registry) FirstByName(name string) (graph.ID, bool) {
	ids := r.byName[ident.Normalize(name)]
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// AllByName returns every registered ID for a bare name, in registration
// order.
func (r *Registry) AllByName(name string) []graph.ID {
	ids := r.byName[ident.Normalize(name)]
	out := make([]graph.ID, len(ids))
	copy(out, ids)
	return out
}
