// Package emit turns chunks into content addressed files, runs output
// plugins over the staged result and publishes it with a manifest.
package emit

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/wolfeidau/bundler/internal/chunk"
	"github.com/wolfeidau/bundler/internal/contenthash"
	"github.com/wolfeidau/bundler/internal/graph"
	"github.com/wolfeidau/bundler/internal/telemetry"
	"github.com/wolfeidau/bundler/internal/transform"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultFilename    = "[name].[hash].js"
	DefaultCSSFilename = "[name].[hash].css"
	DefaultManifest    = "asset-manifest.json"
	DefaultRetries     = 3
)

// Options configures an Emitter.
type Options struct {
	// Filename is the template for js chunks.
	Filename string
	// CSSFilename is the template for chunks made only of css modules.
	CSSFilename string
	Hasher      contenthash.Hasher
	// Minimizer, when set, runs over every js and css module before
	// concatenation.
	Minimizer Minimizer
	Plugins   []Plugin
	// Clean empties the output directory before publishing.
	Clean bool
	// ManifestName is the manifest file written last.
	ManifestName string
	// WriteRetries bounds the retries of each failed output write.
	WriteRetries  int
	RetryInterval time.Duration
	// Source and Context are handed to plugins.
	Source  afero.Fs
	Context string
}

// Emitter writes the chunks of one graph to out, an output directory scoped
// filesystem rooted at "/".
type Emitter struct {
	out   afero.Fs
	graph *graph.Graph
	opts  Options
}

// New creates an emitter, filling unset options with defaults.
func New(out afero.Fs, g *graph.Graph, opts Options) *Emitter {
	opts.Filename = cmp.Or(opts.Filename, DefaultFilename)
	opts.CSSFilename = cmp.Or(opts.CSSFilename, DefaultCSSFilename)
	opts.ManifestName = cmp.Or(opts.ManifestName, DefaultManifest)
	if opts.Hasher.Function == "" {
		opts.Hasher = contenthash.Default()
	}
	if opts.WriteRetries < 0 {
		opts.WriteRetries = 0
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 100 * time.Millisecond
	}
	if opts.Source == nil {
		opts.Source = afero.NewMemMapFs()
	}

	return &Emitter{out: out, graph: g, opts: opts}
}

// rendered is a chunk serialised into the stage.
type rendered struct {
	chunk *chunk.Chunk
	file  string
	hash  string
	size  int
}

// Emit renders chunks, runs the plugins and publishes everything. On any
// failure no manifest is returned and, unless the failure happened while
// publishing, nothing was written to the output.
func (e *Emitter) Emit(ctx context.Context, chunks []*chunk.Chunk) (*Manifest, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "emit.Emit")
	defer span.End()

	manifest, err := e.emit(ctx, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("bundler.files", len(manifest.Files())))
	return manifest, nil
}

func (e *Emitter) emit(ctx context.Context, chunks []*chunk.Chunk) (*Manifest, error) {
	logger := zerolog.Ctx(ctx)
	stage := afero.NewMemMapFs()
	manifest := newManifest()

	files := make(map[string]string)
	claim := func(file, owner string) error {
		if prev, ok := files[file]; ok && prev != owner {
			return fmt.Errorf("%w: %s is produced by both %s and %s", ErrFileCollision, file, prev, owner)
		}
		files[file] = owner
		return nil
	}

	out := make([]rendered, 0, len(chunks))
	for _, c := range chunks {
		r, err := e.render(ctx, stage, c)
		if err != nil {
			return nil, err
		}
		if err := claim(r.file, "chunk "+c.Name); err != nil {
			return nil, err
		}
		out = append(out, r)

		logger.Debug().
			Str("chunk", c.Name).
			Str("file", r.file).
			Int("modules", len(c.Modules)).
			Int("size", r.size).
			Msg("chunk rendered")
	}

	fileOf := make(map[string]string, len(out))
	for _, r := range out {
		fileOf[r.chunk.Name] = r.file
	}

	for _, r := range out {
		var imports []string
		for _, name := range r.chunk.Imports {
			file, ok := fileOf[name]
			if !ok {
				return nil, fmt.Errorf("chunk %s imports unknown chunk %s", r.chunk.Name, name)
			}
			imports = append(imports, file)
		}

		manifest.add(r.chunk.Name, ManifestEntry{
			File:    r.file,
			Hash:    r.hash,
			IsEntry: r.chunk.IsEntry,
			Type:    r.chunk.Type,
			Imports: imports,
			Modules: r.chunk.Modules,
			Size:    r.size,
		})
	}

	// loader assets, in chunk then module order; identical content under
	// the same name is written once
	assets := make(map[string][]byte)
	for _, c := range chunks {
		for _, id := range c.Modules {
			m, ok := e.graph.Module(id)
			if !ok {
				return nil, fmt.Errorf("chunk %s references unknown module %s", c.Name, id)
			}
			for _, asset := range m.Assets {
				if prev, ok := assets[asset.Name]; ok && bytes.Equal(prev, asset.Data) {
					continue
				}
				if err := claim(asset.Name, "module "+id); err != nil {
					return nil, err
				}
				assets[asset.Name] = asset.Data
				if err := writeStage(stage, asset.Name, asset.Data); err != nil {
					return nil, err
				}
				manifest.Assets = append(manifest.Assets, asset.Name)
			}
		}
	}

	pc := NewPluginContext(manifest, stage, e.opts.Source, e.opts.Context)
	pc.namer = e.chunkFile
	pc.claimed = files
	for _, p := range e.opts.Plugins {
		started := time.Now()
		if err := p.Apply(ctx, pc); err != nil {
			return nil, &PluginError{Plugin: p.Name(), Err: err}
		}
		logger.Debug().Str("plugin", p.Name()).Dur("duration", time.Since(started)).Msg("plugin applied")
	}

	for _, name := range pc.Emitted() {
		if owner, ok := files[name]; ok && owner != "plugin" {
			return nil, fmt.Errorf("%w: plugin output %s overwrites %s", ErrFileCollision, name, owner)
		}
		files[name] = "plugin"
		manifest.Assets = append(manifest.Assets, name)
	}

	if err := e.publish(ctx, stage, manifest); err != nil {
		return nil, err
	}

	logger.Info().
		Int("chunks", len(manifest.order)).
		Int("assets", len(manifest.Assets)).
		Msg("output emitted")

	return manifest, nil
}

// render concatenates a chunk's modules in order and stages the result
// under its content addressed name.
func (e *Emitter) render(ctx context.Context, stage afero.Fs, c *chunk.Chunk) (rendered, error) {
	parts := make([][]byte, 0, len(c.Modules))
	for _, id := range c.Modules {
		m, ok := e.graph.Module(id)
		if !ok {
			return rendered{}, fmt.Errorf("chunk %s references unknown module %s", c.Name, id)
		}

		code := m.Code
		if e.opts.Minimizer != nil && m.Type == c.Type {
			minified, err := e.opts.Minimizer.Minimize(ctx, m.Type, code)
			if err != nil {
				return rendered{}, &transform.TransformError{ModuleID: id, Step: "minimize", Err: err}
			}
			code = minified
		}
		parts = append(parts, code)
	}

	content := bytes.Join(parts, []byte("\n"))
	file, hash := e.chunkFile(c.Name, c.Type, content)

	if err := writeStage(stage, file, content); err != nil {
		return rendered{}, err
	}

	return rendered{chunk: c, file: file, hash: hash, size: len(content)}, nil
}

// chunkFile names a chunk from its content with the template of its type.
func (e *Emitter) chunkFile(name, typ string, content []byte) (file, hash string) {
	template := e.opts.Filename
	if typ == transform.TypeCSS {
		template = e.opts.CSSFilename
	}

	hash = e.opts.Hasher.Sum(content)
	file = contenthash.Render(template, contenthash.Vars{Name: name, Hash: hash, Ext: "." + typ})
	return path.Clean(file), hash
}

func writeStage(stage afero.Fs, name string, data []byte) error {
	p := "/" + name
	if err := stage.MkdirAll(path.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	if err := afero.WriteFile(stage, p, data, 0o644); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	return nil
}
