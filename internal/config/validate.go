package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/wolfeidau/bundler/internal/contenthash"
	"github.com/wolfeidau/bundler/internal/transform"
)

// Validate reports every problem at once as a *ConfigError.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Mode {
	case ModeProduction, ModeDevelopment:
	default:
		add("mode must be %q or %q, got %q", ModeProduction, ModeDevelopment, c.Mode)
	}

	if len(c.Entry) == 0 {
		add("at least one entry is required")
	}
	for _, name := range sortedKeys(c.Entry) {
		if name == "" {
			add("entry names must not be empty")
		}
		if strings.TrimSpace(c.Entry[name]) == "" {
			add("entry %q has an empty path", name)
		}
	}

	for _, ext := range c.Resolve.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			add("extension %q must start with a dot", ext)
		}
	}

	seen := make(map[string]string)
	for _, a := range c.Resolve.Alias {
		if a.Prefix == "" || a.Target == "" {
			add("alias entries need a prefix and a target")
			continue
		}
		if prev, ok := seen[a.Prefix]; ok && prev != a.Target {
			add("alias %q is declared with conflicting targets %q and %q", a.Prefix, prev, a.Target)
			continue
		}
		seen[a.Prefix] = a.Target
	}

	if _, err := transform.ParseDirection(c.Module.Direction); err != nil {
		add("module.direction: %v", err)
	}

	for i, r := range c.Module.Rules {
		for _, f := range [][2]string{{"test", r.Test}, {"include", r.Include}, {"exclude", r.Exclude}} {
			if f[1] == "" {
				continue
			}
			if _, err := transform.CompilePattern(f[1]); err != nil {
				add("rule %d %s: %v", i, f[0], err)
			}
		}
		uses := r.uses()
		if len(uses) == 0 {
			add("rule %d has no loaders", i)
		}
		for _, u := range uses {
			if _, err := transform.NewLoader(loaderName(u.Loader), u.Options); err != nil {
				add("rule %d: %v", i, err)
			}
		}
	}

	for _, f := range [][2]string{{"output.filename", c.Output.Filename}, {"output.cssFilename", c.Output.CSSFilename}} {
		if !contenthash.HasPlaceholder(f[1], "name") {
			add("%s %q must contain [name]", f[0], f[1])
		}
	}
	if c.Output.HashLength < 0 {
		add("output.hashLength must not be negative")
	}
	if err := c.Hasher().Validate(); err != nil {
		add("output: %v", err)
	}

	sc := c.Optimization.SplitChunks
	checkPositive := func(field string, v *int) {
		if v != nil && *v <= 0 {
			add("%s must be positive, got %d", field, *v)
		}
	}
	checkPositive("splitChunks.minChunks", sc.MinChunks)
	checkPositive("splitChunks.minSize", sc.MinSize)
	for i, g := range sc.Groups {
		checkPositive(fmt.Sprintf("splitChunks.groups[%d].minChunks", i), g.MinChunks)
		checkPositive(fmt.Sprintf("splitChunks.groups[%d].minSize", i), g.MinSize)
		if g.Test != "" {
			if _, err := transform.CompilePattern(g.Test); err != nil {
				add("splitChunks.groups[%d].test: %v", i, err)
			}
		}
	}
	for _, name := range c.splitNames() {
		if _, ok := c.Entry[name]; ok {
			add("shared chunk name %q collides with an entry", name)
		}
	}

	if c.Build.Concurrency < 0 {
		add("build.concurrency must not be negative")
	}
	if c.Build.Timeout < 0 {
		add("build.timeout must not be negative")
	}
	if c.Build.WriteRetries != nil && *c.Build.WriteRetries < 0 {
		add("build.writeRetries must not be negative")
	}

	if _, err := c.OutputPlugins(); err != nil {
		add("%v", err)
	}

	if len(problems) > 0 {
		return &ConfigError{Path: c.path, Problems: problems}
	}
	return nil
}

func (c *Config) splitNames() []string {
	sc := c.Optimization.SplitChunks
	if len(sc.Groups) == 0 {
		if sc.Name == "" {
			return []string{"shared"}
		}
		return []string{sc.Name}
	}

	var names []string
	for _, g := range sc.Groups {
		name := g.Name
		if name == "" {
			name = "shared"
		}
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
