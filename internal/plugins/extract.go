package plugins

import (
	"bytes"
	"cmp"
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/bundler/internal/contenthash"
	"github.com/wolfeidau/bundler/internal/emit"
	"github.com/wolfeidau/bundler/internal/transform"
)

// ExtractCSSOptions configures the extract-css plugin. A Filename with
// [name] produces one stylesheet per chunk, otherwise all styles are
// combined into a single file named "bundle".
type ExtractCSSOptions struct {
	Filename     string `mapstructure:"filename"`
	HashFunction string `mapstructure:"hashFunction"`
	HashDigest   string `mapstructure:"hashDigest"`
	HashLength   int    `mapstructure:"hashLength"`
}

// ExtractCSSPlugin moves style payloads injected by the style loader out of
// js chunks and into stylesheets.
type ExtractCSSPlugin struct {
	opts   ExtractCSSOptions
	hasher contenthash.Hasher
}

func init() {
	Register("extract-css", newExtractCSSPlugin)
}

func newExtractCSSPlugin(options map[string]any) (emit.Plugin, error) {
	var opts ExtractCSSOptions
	if err := transform.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return NewExtractCSS(opts)
}

// NewExtractCSS creates the extract-css plugin.
func NewExtractCSS(opts ExtractCSSOptions) (*ExtractCSSPlugin, error) {
	opts.Filename = cmp.Or(opts.Filename, "bundle.[hash].css")

	hasher := contenthash.Default()
	hasher.Function = cmp.Or(opts.HashFunction, hasher.Function)
	hasher.Digest = cmp.Or(opts.HashDigest, hasher.Digest)
	if opts.HashLength > 0 {
		hasher.Length = opts.HashLength
	}
	if err := hasher.Validate(); err != nil {
		return nil, err
	}

	return &ExtractCSSPlugin{opts: opts, hasher: hasher}, nil
}

func (p *ExtractCSSPlugin) Name() string { return "extract-css" }

func (p *ExtractCSSPlugin) Apply(ctx context.Context, pc *emit.PluginContext) error {
	manifest := pc.Manifest()
	perChunk := contenthash.HasPlaceholder(p.opts.Filename, "name")

	var combined [][]byte
	for _, name := range manifest.Names() {
		c := manifest.Chunks[name]
		if c.Type != transform.TypeJS {
			continue
		}

		js, err := pc.ReadFile(c.File)
		if err != nil {
			return err
		}

		stripped, styles, err := transform.ExtractStyles(js)
		if err != nil {
			return fmt.Errorf("failed to extract styles from %s: %w", c.File, err)
		}
		if len(styles) == 0 {
			continue
		}

		// the js chunk is renamed after its stripped content
		if _, err := pc.ReplaceChunk(name, stripped); err != nil {
			return fmt.Errorf("failed to rewrite %s: %w", c.File, err)
		}

		if perChunk {
			if err := p.emit(pc, name, bytes.Join(styles, []byte("\n"))); err != nil {
				return err
			}
			continue
		}
		combined = append(combined, styles...)
	}

	if len(combined) > 0 {
		if err := p.emit(pc, "bundle", bytes.Join(combined, []byte("\n"))); err != nil {
			return err
		}
	}

	zerolog.Ctx(ctx).Debug().Bool("per_chunk", perChunk).Msg("styles extracted")
	return nil
}

func (p *ExtractCSSPlugin) emit(pc *emit.PluginContext, name string, css []byte) error {
	file := contenthash.Render(p.opts.Filename, contenthash.Vars{
		Name: name,
		Hash: p.hasher.Sum(css),
		Ext:  ".css",
	})
	return pc.Emit(file, css)
}
