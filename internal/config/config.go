// Package config loads the bundler configuration file and turns it into the
// options of each pipeline component.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Config mirrors the configuration file.
type Config struct {
	Context      string            `yaml:"context" json:"context"`
	Mode         string            `yaml:"mode" json:"mode"`
	Entry        map[string]string `yaml:"entry" json:"entry"`
	Output       Output            `yaml:"output" json:"output"`
	Resolve      Resolve           `yaml:"resolve" json:"resolve"`
	Module       Module            `yaml:"module" json:"module"`
	Optimization Optimization      `yaml:"optimization" json:"optimization"`
	Plugins      []PluginSpec      `yaml:"plugins" json:"plugins"`
	Build        Build             `yaml:"build" json:"build"`

	// path is the file the configuration was loaded from.
	path string
}

type Output struct {
	Path         string `yaml:"path" json:"path"`
	Filename     string `yaml:"filename" json:"filename"`
	CSSFilename  string `yaml:"cssFilename" json:"cssFilename"`
	HashLength   int    `yaml:"hashLength" json:"hashLength"`
	HashFunction string `yaml:"hashFunction" json:"hashFunction"`
	HashDigest   string `yaml:"hashDigest" json:"hashDigest"`
	Clean        bool   `yaml:"clean" json:"clean"`
	Manifest     string `yaml:"manifest" json:"manifest"`
}

type Resolve struct {
	Extensions []string  `yaml:"extensions" json:"extensions"`
	Alias      AliasList `yaml:"alias" json:"alias"`
	Modules    []string  `yaml:"modules" json:"modules"`
	MainFields []string  `yaml:"mainFields" json:"mainFields"`
}

type Module struct {
	Direction string     `yaml:"direction" json:"direction"`
	Rules     []RuleSpec `yaml:"rules" json:"rules"`
}

// RuleSpec is one module rule. Loader and Options are the single loader
// shorthand for Use.
type RuleSpec struct {
	Name      string         `yaml:"name" json:"name"`
	Test      string         `yaml:"test" json:"test"`
	Include   string         `yaml:"include" json:"include"`
	Exclude   string         `yaml:"exclude" json:"exclude"`
	Use       UseList        `yaml:"use" json:"use"`
	Loader    string         `yaml:"loader" json:"loader"`
	Options   map[string]any `yaml:"options" json:"options"`
	Exclusive bool           `yaml:"exclusive" json:"exclusive"`
}

type Optimization struct {
	Minimize    *bool       `yaml:"minimize" json:"minimize"`
	SplitChunks SplitChunks `yaml:"splitChunks" json:"splitChunks"`
}

type SplitChunks struct {
	MinChunks *int        `yaml:"minChunks" json:"minChunks"`
	MinSize   *int        `yaml:"minSize" json:"minSize"`
	Name      string      `yaml:"name" json:"name"`
	Groups    []GroupSpec `yaml:"groups" json:"groups"`
}

type GroupSpec struct {
	Name      string `yaml:"name" json:"name"`
	Test      string `yaml:"test" json:"test"`
	Priority  int    `yaml:"priority" json:"priority"`
	MinChunks *int   `yaml:"minChunks" json:"minChunks"`
	MinSize   *int   `yaml:"minSize" json:"minSize"`
}

type Build struct {
	Concurrency  int           `yaml:"concurrency" json:"concurrency"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	WriteRetries *int          `yaml:"writeRetries" json:"writeRetries"`
}

// Overrides are command line settings applied over the file before
// defaults and validation.
type Overrides struct {
	Mode        string
	OutputPath  string
	Concurrency int
	Timeout     time.Duration
}

// Load reads, defaults and validates the configuration at path. Files ending
// in .json must be JSON, anything else is read as YAML.
func Load(fs afero.Fs, path string, overrides Overrides) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, strings.HasSuffix(strings.ToLower(path), ".json"))
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg.path = abs

	cfg.apply(overrides)
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes a configuration document without defaults or validation.
func Parse(data []byte, isJSON bool) (*Config, error) {
	var cfg Config

	if isJSON && !json.Valid(data) {
		var syntax any
		err := json.Unmarshal(data, &syntax)
		return nil, &ConfigError{Problems: []string{fmt.Sprintf("invalid JSON: %v", err)}}
	}

	// YAML is a superset of JSON, so both share the ordered decoding of
	// aliases, loader lists and plugins
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{Problems: []string{fmt.Sprintf("failed to parse config: %v", err)}}
	}

	return &cfg, nil
}

// Path returns the absolute path the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Development reports whether the build runs in development mode.
func (c *Config) Development() bool {
	return c.Mode == ModeDevelopment
}

func (c *Config) apply(o Overrides) {
	if o.Mode != "" {
		c.Mode = o.Mode
	}
	if o.OutputPath != "" {
		c.Output.Path = o.OutputPath
	}
	if o.Concurrency > 0 {
		c.Build.Concurrency = o.Concurrency
	}
	if o.Timeout > 0 {
		c.Build.Timeout = o.Timeout
	}
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = ModeProduction
	}

	base := filepath.Dir(c.path)
	c.Context = absolute(base, c.Context)
	if c.Output.Path == "" {
		c.Output.Path = "dist"
	}
	c.Output.Path = absolute(c.Context, c.Output.Path)

	if c.Output.Filename == "" {
		c.Output.Filename = "[name].[hash].js"
		if c.Development() {
			c.Output.Filename = "[name].js"
		}
	}
	if c.Output.CSSFilename == "" {
		c.Output.CSSFilename = "[name].[hash].css"
		if c.Development() {
			c.Output.CSSFilename = "[name].css"
		}
	}

	if c.Optimization.Minimize == nil {
		minimize := !c.Development()
		c.Optimization.Minimize = &minimize
	}
}

// Minimize reports whether chunk modules are minified.
func (c *Config) Minimize() bool {
	return c.Optimization.Minimize != nil && *c.Optimization.Minimize
}

func absolute(base, p string) string {
	if p == "" {
		return base
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// ErrInvalidConfig is wrapped by every ConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError lists every problem found in a configuration.
type ConfigError struct {
	Path     string
	Problems []string
}

func (e *ConfigError) Error() string {
	msg := strings.Join(e.Problems, "; ")
	if e.Path != "" {
		return fmt.Sprintf("invalid configuration %s: %s", e.Path, msg)
	}
	return "invalid configuration: " + msg
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
