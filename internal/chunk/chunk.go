// Package chunk partitions a frozen module graph into entry and shared chunks.
package chunk

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/bundler/internal/graph"
	"github.com/wolfeidau/bundler/internal/telemetry"
	"github.com/wolfeidau/bundler/internal/transform"
)

const (
	DefaultMinChunks = 2
	DefaultMinSize   = 1
	DefaultName      = "shared"
)

// ErrNotFrozen indicates Split was handed a graph still being built.
var ErrNotFrozen = errors.New("graph is not frozen")

// SplitError reports a module the splitter could not place.
type SplitError struct {
	ModuleID string
	Reason   string
}

func (e *SplitError) Error() string {
	return fmt.Sprintf("cannot place module %s: %s", e.ModuleID, e.Reason)
}

// Chunk is an output unit. Modules are ids in discovery order.
type Chunk struct {
	Name    string
	Modules []string
	IsEntry bool
	// Imports names the shared chunks an entry chunk depends on.
	Imports []string
	// Type is the content type of the first module, js unless every
	// module in the chunk is css.
	Type string
	// Size is the sum of the member modules' transformed sizes.
	Size int
}

// Group promotes modules shared by at least MinChunks entries into the
// chunk called Name. Test, when set, must match the module id.
type Group struct {
	Name      string
	Test      *transform.Pattern
	Priority  int
	MinChunks int
	MinSize   int
}

func (g Group) accepts(m *graph.Module) bool {
	if len(m.Entries) < g.MinChunks || m.Size() < g.MinSize {
		return false
	}
	return g.Test == nil || g.Test.Match(m.ID)
}

// Options configures promotion. Without Groups a single group built from
// Name, MinChunks and MinSize applies.
type Options struct {
	MinChunks int
	MinSize   int
	Name      string
	Groups    []Group
}

// DefaultOptions returns the standard single shared chunk settings.
func DefaultOptions() Options {
	return Options{MinChunks: DefaultMinChunks, MinSize: DefaultMinSize, Name: DefaultName}
}

// Splitter assigns modules to chunks.
type Splitter struct {
	groups []Group
}

// NewSplitter creates a splitter, filling unset thresholds with defaults.
func NewSplitter(opts Options) *Splitter {
	groups := opts.Groups
	if len(groups) == 0 {
		groups = []Group{{Name: opts.Name, MinChunks: opts.MinChunks, MinSize: opts.MinSize}}
	}

	sorted := make([]Group, len(groups))
	for i, g := range groups {
		g.Name = cmp.Or(g.Name, DefaultName)
		if g.MinChunks <= 0 {
			g.MinChunks = DefaultMinChunks
		}
		if g.MinSize <= 0 {
			g.MinSize = DefaultMinSize
		}
		sorted[i] = g
	}
	slices.SortStableFunc(sorted, func(a, b Group) int {
		return cmp.Compare(b.Priority, a.Priority)
	})

	return &Splitter{groups: sorted}
}

// Split returns entry chunks sorted by entry name followed by the non-empty
// shared chunks in group order. Every module lands in exactly one chunk.
func (s *Splitter) Split(ctx context.Context, g *graph.Graph) ([]*Chunk, error) {
	if !g.Frozen() {
		return nil, ErrNotFrozen
	}

	entries := g.Entries()
	slices.SortStableFunc(entries, func(a, b graph.EntryPoint) int {
		return cmp.Compare(a.Name, b.Name)
	})

	entryChunks := make(map[string]*Chunk, len(entries))
	var out []*Chunk
	for _, e := range entries {
		if _, ok := entryChunks[e.Name]; ok {
			continue
		}
		c := &Chunk{Name: e.Name, IsEntry: true}
		entryChunks[e.Name] = c
		out = append(out, c)
	}

	shared := make([]*Chunk, len(s.groups))
	for i, grp := range s.groups {
		shared[i] = &Chunk{Name: grp.Name}
	}

	// needs[entry][group] marks an entry chunk depending on a shared chunk
	needs := make(map[string]map[int]bool)
	promoted := 0

	for _, m := range g.Modules() {
		if len(m.Entries) == 0 {
			return nil, &SplitError{ModuleID: m.ID, Reason: "no entry reaches it"}
		}

		if gi := s.groupFor(m); gi >= 0 {
			add(shared[gi], m)
			promoted++
			for _, name := range m.Entries {
				if needs[name] == nil {
					needs[name] = make(map[int]bool)
				}
				needs[name][gi] = true
			}
			continue
		}

		for _, name := range m.Entries {
			c, ok := entryChunks[name]
			if !ok {
				return nil, &SplitError{ModuleID: m.ID, Reason: fmt.Sprintf("unknown entry %q", name)}
			}
			add(c, m)
		}
	}

	names := make(map[string]bool, len(out))
	for _, c := range out {
		names[c.Name] = true
	}

	var sharedOut []*Chunk
	for _, c := range shared {
		if len(c.Modules) == 0 {
			continue
		}
		if names[c.Name] {
			return nil, &SplitError{ModuleID: c.Modules[0], Reason: fmt.Sprintf("shared chunk %q collides with an entry name", c.Name)}
		}
		// groups sharing a name merge into the first one
		if i := slices.IndexFunc(sharedOut, func(o *Chunk) bool { return o.Name == c.Name }); i >= 0 {
			sharedOut[i].Modules = append(sharedOut[i].Modules, c.Modules...)
			sharedOut[i].Size += c.Size
			continue
		}
		sharedOut = append(sharedOut, c)
	}

	for _, c := range out {
		for gi, grp := range s.groups {
			if needs[c.Name][gi] && !slices.Contains(c.Imports, grp.Name) {
				c.Imports = append(c.Imports, grp.Name)
			}
		}
	}

	out = append(out, sharedOut...)
	for _, c := range out {
		c.Type = chunkType(g, c)
		if !c.IsEntry {
			sortByOrder(g, c)
		}
	}

	metrics := telemetry.GetMetrics()
	metrics.ChunksTotal.Add(ctx, int64(len(out)))
	metrics.PromotedModules.Add(ctx, int64(promoted))

	zerolog.Ctx(ctx).Info().
		Int("chunks", len(out)).
		Int("shared", len(sharedOut)).
		Int("promoted", promoted).
		Msg("chunks split")

	return out, nil
}

func (s *Splitter) groupFor(m *graph.Module) int {
	for i, grp := range s.groups {
		if grp.accepts(m) {
			return i
		}
	}
	return -1
}

func add(c *Chunk, m *graph.Module) {
	c.Modules = append(c.Modules, m.ID)
	c.Size += m.Size()
}

// sortByOrder restores discovery order after shared groups were merged.
func sortByOrder(g *graph.Graph, c *Chunk) {
	slices.SortStableFunc(c.Modules, func(a, b string) int {
		ma, _ := g.Module(a)
		mb, _ := g.Module(b)
		return cmp.Compare(ma.Order, mb.Order)
	})
}

func chunkType(g *graph.Graph, c *Chunk) string {
	if len(c.Modules) == 0 {
		return transform.TypeJS
	}
	for _, id := range c.Modules {
		if m, ok := g.Module(id); ok && m.Type != transform.TypeCSS {
			return transform.TypeJS
		}
	}
	return transform.TypeCSS
}
