package config

import (
	"cmp"
	"fmt"
	"maps"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/wolfeidau/bundler/internal/chunk"
	"github.com/wolfeidau/bundler/internal/contenthash"
	"github.com/wolfeidau/bundler/internal/emit"
	"github.com/wolfeidau/bundler/internal/graph"
	"github.com/wolfeidau/bundler/internal/plugins"
	"github.com/wolfeidau/bundler/internal/resolver"
	"github.com/wolfeidau/bundler/internal/transform"
)

const defaultWriteRetries = 3

// loaderName accepts webpack style names such as "babel-loader".
func loaderName(name string) string {
	return strings.TrimSuffix(name, "-loader")
}

func (r RuleSpec) uses() UseList {
	if len(r.Use) > 0 {
		return r.Use
	}
	if r.Loader != "" {
		return UseList{{Loader: r.Loader, Options: r.Options}}
	}
	return nil
}

// Entries returns the entries with paths made absolute, sorted by name.
func (c *Config) Entries() []graph.Entry {
	entries := make([]graph.Entry, 0, len(c.Entry))
	for _, name := range sortedKeys(c.Entry) {
		entries = append(entries, graph.Entry{Name: name, Path: absolute(c.Context, c.Entry[name])})
	}
	return entries
}

// ResolverOptions returns the resolver settings with alias targets made
// absolute against the context.
func (c *Config) ResolverOptions() resolver.Options {
	opts := resolver.DefaultOptions()
	if len(c.Resolve.Extensions) > 0 {
		opts.Extensions = c.Resolve.Extensions
	}
	if len(c.Resolve.Modules) > 0 {
		opts.Modules = c.Resolve.Modules
	}
	if len(c.Resolve.MainFields) > 0 {
		opts.MainFields = c.Resolve.MainFields
	}

	for _, a := range c.Resolve.Alias {
		opts.Aliases = append(opts.Aliases, resolver.Alias{Prefix: a.Prefix, Target: absolute(c.Context, a.Target)})
	}

	return opts
}

// Registry builds the transform registry from the module rules.
func (c *Config) Registry() (*transform.Registry, error) {
	direction, err := transform.ParseDirection(c.Module.Direction)
	if err != nil {
		return nil, err
	}

	rules := make([]transform.Rule, 0, len(c.Module.Rules))
	for i, spec := range c.Module.Rules {
		rule := transform.Rule{Name: cmp.Or(spec.Name, fmt.Sprintf("rule-%d", i)), Exclusive: spec.Exclusive}

		if rule.Test, err = optionalPattern(spec.Test); err != nil {
			return nil, fmt.Errorf("rule %d test: %w", i, err)
		}
		if rule.Include, err = optionalPattern(spec.Include); err != nil {
			return nil, fmt.Errorf("rule %d include: %w", i, err)
		}
		if rule.Exclude, err = optionalPattern(spec.Exclude); err != nil {
			return nil, fmt.Errorf("rule %d exclude: %w", i, err)
		}

		for _, u := range spec.uses() {
			name := loaderName(u.Loader)
			t, err := transform.NewLoader(name, u.Options)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", i, err)
			}
			rule.Use = append(rule.Use, transform.Step{Name: name, Transformer: t})
		}

		rules = append(rules, rule)
	}

	return transform.NewRegistry(direction, rules...), nil
}

func optionalPattern(expr string) (*transform.Pattern, error) {
	if expr == "" {
		return nil, nil
	}
	return transform.CompilePattern(expr)
}

// SplitOptions returns the chunk splitter settings.
func (c *Config) SplitOptions() (chunk.Options, error) {
	sc := c.Optimization.SplitChunks
	opts := chunk.DefaultOptions()
	opts.Name = cmp.Or(sc.Name, opts.Name)
	opts.MinChunks = deref(sc.MinChunks, opts.MinChunks)
	opts.MinSize = deref(sc.MinSize, opts.MinSize)

	for i, g := range sc.Groups {
		test, err := optionalPattern(g.Test)
		if err != nil {
			return chunk.Options{}, fmt.Errorf("group %d test: %w", i, err)
		}
		opts.Groups = append(opts.Groups, chunk.Group{
			Name:      cmp.Or(g.Name, opts.Name),
			Test:      test,
			Priority:  g.Priority,
			MinChunks: deref(g.MinChunks, opts.MinChunks),
			MinSize:   deref(g.MinSize, opts.MinSize),
		})
	}

	return opts, nil
}

func deref(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}

// Hasher returns the content hash settings of the output.
func (c *Config) Hasher() contenthash.Hasher {
	h := contenthash.Default()
	h.Function = cmp.Or(c.Output.HashFunction, h.Function)
	h.Digest = cmp.Or(c.Output.HashDigest, h.Digest)
	if c.Output.HashLength > 0 {
		h.Length = c.Output.HashLength
	}
	return h
}

// BuilderOptions returns the graph builder settings.
func (c *Config) BuilderOptions() graph.Options {
	return graph.Options{
		Context:     c.Context,
		Concurrency: c.Build.Concurrency,
		Timeout:     c.Build.Timeout,
	}
}

// OutputPlugins instantiates the configured plugins in declaration order.
func (c *Config) OutputPlugins() ([]emit.Plugin, error) {
	out := make([]emit.Plugin, 0, len(c.Plugins))
	for _, spec := range c.Plugins {
		options := spec.Options
		if spec.Name == "copy" {
			options = c.relativeCopyPatterns(options)
		}

		p, err := plugins.New(spec.Name, options)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// relativeCopyPatterns rewrites absolute from and to paths of copy patterns
// relative to the context and the output directory.
func (c *Config) relativeCopyPatterns(options map[string]any) map[string]any {
	patterns, ok := options["patterns"].([]any)
	if !ok {
		return options
	}

	rewritten := make([]any, len(patterns))
	for i, p := range patterns {
		m, ok := p.(map[string]any)
		if !ok {
			rewritten[i] = p
			continue
		}
		m = maps.Clone(m)
		if from, ok := m["from"].(string); ok && filepath.IsAbs(from) {
			if rel, err := filepath.Rel(c.Context, from); err == nil {
				m["from"] = filepath.ToSlash(rel)
			}
		}
		if to, ok := m["to"].(string); ok && filepath.IsAbs(to) {
			if rel, err := filepath.Rel(c.Output.Path, to); err == nil {
				if rel == "." {
					rel = ""
				}
				m["to"] = filepath.ToSlash(rel)
			}
		}
		rewritten[i] = m
	}

	options = maps.Clone(options)
	options["patterns"] = rewritten
	return options
}

// EmitOptions returns the emitter settings, reading plugin inputs from source.
func (c *Config) EmitOptions(source afero.Fs) (emit.Options, error) {
	outputPlugins, err := c.OutputPlugins()
	if err != nil {
		return emit.Options{}, err
	}

	opts := emit.Options{
		Filename:     c.Output.Filename,
		CSSFilename:  c.Output.CSSFilename,
		Hasher:       c.Hasher(),
		Plugins:      outputPlugins,
		Clean:        c.Output.Clean,
		ManifestName: c.Output.Manifest,
		WriteRetries: deref(c.Build.WriteRetries, defaultWriteRetries),
		Source:       source,
		Context:      c.Context,
	}
	if c.Minimize() {
		opts.Minimizer = emit.NewMinimizer()
	}

	return opts, nil
}
