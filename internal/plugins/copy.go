package plugins

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/wolfeidau/bundler/internal/emit"
	"github.com/wolfeidau/bundler/internal/transform"
)

// CopyPattern copies the files matching From, relative to the project
// context, into the output directory To.
type CopyPattern struct {
	From             string `mapstructure:"from"`
	To               string `mapstructure:"to"`
	NoErrorOnMissing bool   `mapstructure:"noErrorOnMissing"`
}

// CopyOptions configures the copy plugin.
type CopyOptions struct {
	Patterns []CopyPattern `mapstructure:"patterns"`
}

// CopyPlugin copies static files into the output unchanged.
type CopyPlugin struct {
	opts CopyOptions
}

func init() {
	Register("copy", newCopyPlugin)
}

func newCopyPlugin(options map[string]any) (emit.Plugin, error) {
	var opts CopyOptions
	if err := transform.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return NewCopy(opts)
}

// NewCopy creates the copy plugin.
func NewCopy(opts CopyOptions) (*CopyPlugin, error) {
	if len(opts.Patterns) == 0 {
		return nil, errors.New("at least one pattern is required")
	}
	for i, p := range opts.Patterns {
		if p.From == "" {
			return nil, fmt.Errorf("pattern %d has no from", i)
		}
		if filepath.IsAbs(p.From) || strings.Contains(p.To, "..") || path.IsAbs(p.To) {
			return nil, fmt.Errorf("pattern %d must use paths relative to the project and output", i)
		}
		if !doublestar.ValidatePattern(filepath.ToSlash(p.From)) {
			return nil, fmt.Errorf("pattern %d: %w", i, doublestar.ErrBadPattern)
		}
	}
	return &CopyPlugin{opts: opts}, nil
}

func (p *CopyPlugin) Name() string { return "copy" }

func (p *CopyPlugin) Apply(ctx context.Context, pc *emit.PluginContext) error {
	project := afero.NewBasePathFs(pc.Source(), pc.Context())
	fsys := afero.NewIOFS(project)

	copied := 0
	for _, pattern := range p.opts.Patterns {
		from := path.Clean(filepath.ToSlash(pattern.From))

		matches, err := doublestar.Glob(fsys, from, doublestar.WithFilesOnly())
		if err != nil {
			return fmt.Errorf("failed to match %s: %w", pattern.From, err)
		}
		if len(matches) == 0 {
			if pattern.NoErrorOnMissing {
				continue
			}
			return fmt.Errorf("unable to locate %s in %s", pattern.From, pc.Context())
		}

		base, _ := doublestar.SplitPattern(from)
		for _, match := range matches {
			rel := path.Base(match)
			if base != "." && strings.HasPrefix(match, base+"/") {
				rel = strings.TrimPrefix(match, base+"/")
			}

			data, err := afero.ReadFile(project, match)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", match, err)
			}
			if err := pc.Emit(path.Join(pattern.To, rel), data); err != nil {
				return err
			}
			copied++
		}
	}

	zerolog.Ctx(ctx).Debug().Int("files", copied).Msg("static files copied")
	return nil
}
