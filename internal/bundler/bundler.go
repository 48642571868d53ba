// Package bundler runs a complete build described by a configuration: the
// module graph is resolved and transformed, split into chunks and emitted to
// the output directory.
package bundler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/wolfeidau/bundler/internal/chunk"
	"github.com/wolfeidau/bundler/internal/config"
	"github.com/wolfeidau/bundler/internal/emit"
	"github.com/wolfeidau/bundler/internal/graph"
	"github.com/wolfeidau/bundler/internal/logger"
	"github.com/wolfeidau/bundler/internal/resolver"
	"github.com/wolfeidau/bundler/internal/telemetry"
	"github.com/wolfeidau/bundler/internal/transform"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// Pipeline is one configured build. Sources and output share fs, which is
// addressed with absolute paths.
type Pipeline struct {
	fs  afero.Fs
	cfg *config.Config
}

// Plan is the graph and chunk partition of a build before emission.
type Plan struct {
	Graph  *graph.Graph
	Chunks []*chunk.Chunk
	// Rules are the module rules the graph was transformed with.
	Rules []transform.Rule
}

// Result describes a completed build. Previous is the manifest found in the
// output directory before emission, nil on a first build.
type Result struct {
	Plan
	Manifest *emit.Manifest
	Previous *emit.Manifest
	Duration time.Duration
}

// New creates a pipeline for a validated configuration.
func New(fs afero.Fs, cfg *config.Config) *Pipeline {
	return &Pipeline{fs: fs, cfg: cfg}
}

// Config returns the configuration the pipeline runs.
func (p *Pipeline) Config() *config.Config {
	return p.cfg
}

// Resolver returns a resolver configured like the one used by builds.
func (p *Pipeline) Resolver() (*resolver.Resolver, error) {
	return resolver.New(p.fs, p.cfg.ResolverOptions())
}

// Plan builds the module graph and splits it without writing anything.
func (p *Pipeline) Plan(ctx context.Context) (*Plan, error) {
	res, err := p.Resolver()
	if err != nil {
		return nil, err
	}

	registry, err := p.cfg.Registry()
	if err != nil {
		return nil, err
	}

	splitOpts, err := p.cfg.SplitOptions()
	if err != nil {
		return nil, err
	}

	done := logger.Phase(ctx, "graph")
	g, err := graph.NewBuilder(p.fs, res, registry, p.cfg.BuilderOptions()).Build(ctx, p.cfg.Entries())
	done(err)
	if err != nil {
		return nil, err
	}

	done = logger.Phase(ctx, "split")
	chunks, err := chunk.NewSplitter(splitOpts).Split(ctx, g)
	done(err)
	if err != nil {
		return nil, err
	}

	return &Plan{Graph: g, Chunks: chunks, Rules: registry.Rules()}, nil
}

// Build runs the whole pipeline. Output is only written once the graph and
// the split succeeded.
func (p *Pipeline) Build(ctx context.Context) (*Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "bundler.Build")
	defer span.End()

	started := time.Now()

	result, err := p.build(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result.Duration = time.Since(started)

	telemetry.GetMetrics().BuildDuration.Record(ctx, float64(result.Duration.Milliseconds()),
		metric.WithAttributes(attribute.String("mode", p.cfg.Mode)))

	zerolog.Ctx(ctx).Info().
		Int("modules", result.Graph.Len()).
		Int("chunks", len(result.Chunks)).
		Int("files", len(result.Manifest.Files())).
		Str("output", p.cfg.Output.Path).
		Dur("duration", result.Duration).
		Msg("build complete")

	return result, nil
}

func (p *Pipeline) build(ctx context.Context) (*Result, error) {
	plan, err := p.Plan(ctx)
	if err != nil {
		return nil, err
	}

	opts, err := p.cfg.EmitOptions(p.fs)
	if err != nil {
		return nil, err
	}

	out := afero.NewBasePathFs(p.fs, p.cfg.Output.Path)

	// read before emission, which may clean the output directory
	previous, err := readManifest(out, cmp.Or(opts.ManifestName, emit.DefaultManifest))
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("ignoring unreadable previous manifest")
	}

	done := logger.Phase(ctx, "emit")
	manifest, err := emit.New(out, plan.Graph, opts).Emit(ctx, plan.Chunks)
	done(err)
	if err != nil {
		return nil, err
	}

	return &Result{Plan: *plan, Manifest: manifest, Previous: previous}, nil
}

func readManifest(out afero.Fs, name string) (*emit.Manifest, error) {
	data, err := afero.ReadFile(out, "/"+name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return emit.ParseManifest(data)
}
