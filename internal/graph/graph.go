// Package graph discovers the module graph reachable from a set of entries.
package graph

import (
	"sync"

	"github.com/wolfeidau/bundler/internal/transform"
)

// Edge is one import statement, stored on the importing module.
type Edge struct {
	Specifier string
	From      string
	To        string
}

// Module is a node of the graph keyed by its resolved id.
type Module struct {
	ID   string
	Raw  []byte
	Code []byte
	// Type is the content type after the transform chain.
	Type    string
	Imports []Edge
	// Entries lists the names of the entries reaching this module, sorted.
	Entries     []string
	Transformed bool
	// Order is the first-discovery index, a total order over the graph.
	Order  int
	Assets []transform.Asset
}

// Size is the transformed code length, the metric used by chunk thresholds.
func (m *Module) Size() int {
	return len(m.Code)
}

// EntryPoint is a named entry bound to its resolved module id.
type EntryPoint struct {
	Name string
	ID   string
}

// Graph is an arena of modules in discovery order. It is written by a
// single builder and becomes read-only after Freeze.
type Graph struct {
	mu      sync.Mutex
	modules []*Module
	byID    map[string]*Module
	entries []EntryPoint
	frozen  bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{byID: make(map[string]*Module)}
}

// insert adds a module for id unless one exists. The first writer wins and
// the returned bool reports whether this call created it.
func (g *Graph) insert(id string) (*Module, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		panic("graph: insert after Freeze")
	}

	if m, ok := g.byID[id]; ok {
		return m, false
	}

	m := &Module{ID: id, Order: len(g.modules)}
	g.modules = append(g.modules, m)
	g.byID[id] = m

	return m, true
}

func (g *Graph) addEntry(name, id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries = append(g.entries, EntryPoint{Name: name, ID: id})
}

// Module looks a module up by id.
func (g *Graph) Module(id string) (*Module, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m, ok := g.byID[id]
	return m, ok
}

// Modules returns every module in discovery order.
func (g *Graph) Modules() []*Module {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*Module, len(g.modules))
	copy(out, g.modules)
	return out
}

// Entries returns the entry points sorted by name.
func (g *Graph) Entries() []EntryPoint {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]EntryPoint, len(g.entries))
	copy(out, g.entries)
	return out
}

// Len returns the number of modules.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.modules)
}

// Frozen reports whether Freeze has run.
func (g *Graph) Frozen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.frozen
}

// Freeze records each module's owning entries and marks the graph
// immutable. Entries are walked in name order, so every module's Entries
// slice ends up sorted. Calling Freeze twice is a no-op.
func (g *Graph) Freeze() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return
	}

	for _, entry := range g.entries {
		seen := make(map[string]bool)
		stack := []string{entry.ID}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[id] {
				continue
			}
			seen[id] = true

			m := g.byID[id]
			if m == nil {
				continue
			}
			if n := len(m.Entries); n == 0 || m.Entries[n-1] != entry.Name {
				m.Entries = append(m.Entries, entry.Name)
			}
			for i := len(m.Imports) - 1; i >= 0; i-- {
				stack = append(stack, m.Imports[i].To)
			}
		}
	}

	g.frozen = true
}

// Dependents returns the ids of modules importing id, in discovery order.
func (g *Graph) Dependents(id string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []string
	for _, m := range g.modules {
		for _, e := range m.Imports {
			if e.To == id {
				out = append(out, m.ID)
				break
			}
		}
	}
	return out
}
