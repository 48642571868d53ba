package graph

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/wolfeidau/bundler/internal/telemetry"
	"github.com/wolfeidau/bundler/internal/transform"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// Entry names a starting module. Path is resolved from the builder's context
// directory like any other specifier.
type Entry struct {
	Name string
	Path string
}

// Resolver maps a specifier imported from a directory to a module id.
type Resolver interface {
	Resolve(specifier, fromDir string) (string, error)
}

// Options tunes a Builder.
type Options struct {
	// Context is the directory entry paths are resolved from.
	Context string
	// Concurrency bounds the transform workers. Zero uses runtime.NumCPU.
	Concurrency int
	// Timeout fails the build with ErrTimeout once exceeded. Zero disables it.
	Timeout time.Duration
}

// Builder discovers modules breadth first. Each level of the traversal is
// transformed concurrently and then merged in frontier order, so discovery
// order is the same as a serial traversal regardless of worker timing.
type Builder struct {
	fs       afero.Fs
	resolver Resolver
	registry *transform.Registry
	opts     Options
}

// NewBuilder creates a builder reading sources from fs.
func NewBuilder(fs afero.Fs, resolver Resolver, registry *transform.Registry, opts Options) *Builder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.NumCPU()
	}
	return &Builder{fs: fs, resolver: resolver, registry: registry, opts: opts}
}

// pending is a discovered module waiting for its transform.
type pending struct {
	module *Module
	entry  string
	chain  []string
}

// visited is a worker's output for one module.
type visited struct {
	raw    []byte
	result transform.Result
	deps   []Edge
}

// Build returns the frozen graph reachable from entries, or the first
// failure in frontier order as a *BuildError. Nothing partial is returned.
func (b *Builder) Build(ctx context.Context, entries []Entry) (*Graph, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "graph.Build")
	defer span.End()

	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, b.opts.Timeout, ErrTimeout)
		defer cancel()
	}

	started := time.Now()
	logger := zerolog.Ctx(ctx)
	metrics := telemetry.GetMetrics()

	g, err := b.build(ctx, entries)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	g.Freeze()

	edges := 0
	for _, m := range g.Modules() {
		edges += len(m.Imports)
	}
	metrics.ModulesTotal.Add(ctx, int64(g.Len()))
	metrics.EdgesTotal.Add(ctx, int64(edges))
	span.SetAttributes(
		attribute.Int("bundler.modules", g.Len()),
		attribute.Int("bundler.edges", edges),
	)

	logger.Info().
		Int("modules", g.Len()).
		Int("edges", edges).
		Int("entries", len(entries)).
		Dur("duration", time.Since(started)).
		Msg("module graph built")

	return g, nil
}

func (b *Builder) build(ctx context.Context, entries []Entry) (*Graph, error) {
	if len(entries) == 0 {
		return nil, errors.New("no entries to build")
	}

	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})

	g := New()

	var frontier []pending
	for _, entry := range sorted {
		id, err := b.resolver.Resolve(entry.Path, b.opts.Context)
		if err != nil {
			telemetry.GetMetrics().ResolveErrors.Add(ctx, 1)
			return nil, &BuildError{Entry: entry.Name, Chain: []string{entry.Path}, Err: err}
		}

		g.addEntry(entry.Name, id)
		if m, created := g.insert(id); created {
			frontier = append(frontier, pending{module: m, entry: entry.Name, chain: []string{id}})
		}
	}

	for depth := 0; len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, b.cancelled(ctx)
		}

		results, err := b.level(ctx, frontier)
		if err != nil {
			return nil, err
		}

		zerolog.Ctx(ctx).Debug().
			Int("depth", depth).
			Int("modules", len(frontier)).
			Msg("graph level transformed")

		frontier = merge(g, frontier, results)
	}

	return g, nil
}

// level transforms every module of a frontier concurrently.
func (b *Builder) level(ctx context.Context, frontier []pending) ([]visited, error) {
	results := make([]visited, len(frontier))
	failures := make([]error, len(frontier))

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(b.opts.Concurrency)

	for i, p := range frontier {
		eg.Go(func() error {
			res, err := b.visit(egctx, p.module.ID)
			if err != nil {
				failures[i] = err
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := eg.Wait(); err == nil {
		return results, nil
	}

	if ctx.Err() != nil {
		return nil, b.cancelled(ctx)
	}

	// report the earliest module in frontier order that failed on its own
	// account rather than from the group being cancelled
	for i, err := range failures {
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}

		p := frontier[i]
		chain := slices.Clone(p.chain)
		var f *failure
		if errors.As(err, &f) {
			if f.specifier != "" {
				chain = append(chain, f.specifier)
			}
			err = f.err
		}
		return nil, &BuildError{Entry: p.entry, Chain: chain, Err: err}
	}

	return nil, b.cancelled(ctx)
}

func (b *Builder) cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrTimeout) {
		return fmt.Errorf("build exceeded %s: %w", b.opts.Timeout, ErrTimeout)
	}
	if cause == nil {
		cause = context.Canceled
	}
	return fmt.Errorf("build cancelled: %w", cause)
}

// visit reads, transforms and resolves the imports of one module.
func (b *Builder) visit(ctx context.Context, id string) (visited, error) {
	// the plain cancellation error, never the cause: a sibling's failure is
	// the group's cause and must not be attributed to this module
	if err := ctx.Err(); err != nil {
		return visited{}, err
	}

	metrics := telemetry.GetMetrics()

	raw, err := afero.ReadFile(b.fs, id)
	if err != nil {
		return visited{}, &failure{err: &transform.TransformError{ModuleID: id, Step: "read", Err: err}}
	}

	steps := b.registry.RulesFor(id)

	started := time.Now()
	res, err := transform.Apply(ctx, steps, transform.Source{ID: id, Code: raw})
	metrics.TransformDuration.Record(ctx, float64(time.Since(started).Milliseconds()),
		metric.WithAttributes(attribute.Int("bundler.steps", len(steps))))
	// a transform that finished or failed after cancellation is discarded
	if ctxErr := ctx.Err(); ctxErr != nil {
		return visited{}, ctxErr
	}
	if err != nil {
		metrics.TransformErrors.Add(ctx, 1)
		return visited{}, &failure{err: err}
	}

	dir := filepath.Dir(id)
	deps := make([]Edge, 0, len(res.Imports))
	for _, spec := range res.Imports {
		to, err := b.resolver.Resolve(spec, dir)
		if err != nil {
			metrics.ResolveErrors.Add(ctx, 1)
			return visited{}, &failure{specifier: spec, err: err}
		}
		deps = append(deps, Edge{Specifier: spec, From: id, To: to})
	}

	zerolog.Ctx(ctx).Debug().
		Str("module", id).
		Int("steps", len(steps)).
		Int("imports", len(deps)).
		Str("type", res.Type).
		Msg("module transformed")

	return visited{raw: raw, result: res, deps: deps}, nil
}

// merge applies a level's results in frontier order and returns the next
// frontier made of the modules this level discovered.
func merge(g *Graph, frontier []pending, results []visited) []pending {
	var next []pending

	for i, p := range frontier {
		res := results[i]
		m := p.module

		m.Raw = res.raw
		m.Code = res.result.Code
		m.Type = res.result.Type
		m.Assets = res.result.Assets
		m.Transformed = true

		for _, edge := range res.deps {
			m.Imports = append(m.Imports, edge)

			child, created := g.insert(edge.To)
			if !created {
				continue
			}

			chain := make([]string, len(p.chain), len(p.chain)+1)
			copy(chain, p.chain)
			next = append(next, pending{module: child, entry: p.entry, chain: append(chain, child.ID)})
		}
	}

	return next
}
