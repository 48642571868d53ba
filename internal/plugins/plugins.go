// Package plugins holds the built-in output plugins.
package plugins

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/wolfeidau/bundler/internal/emit"
)

// ErrUnknownPlugin indicates a configuration names a plugin that is not registered
var ErrUnknownPlugin = errors.New("unknown plugin")

// Factory builds a plugin from its decoded configuration options.
type Factory func(options map[string]any) (emit.Plugin, error)

var (
	mu      sync.RWMutex
	plugins = map[string]Factory{}
)

// Register adds or replaces a named plugin factory. The built-in plugins
// register themselves on init.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	plugins[name] = factory
}

// New builds the named plugin.
func New(name string, options map[string]any) (emit.Plugin, error) {
	mu.RLock()
	factory, ok := plugins[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q, available: %s", ErrUnknownPlugin, name, strings.Join(Names(), ", "))
	}

	p, err := factory(options)
	if err != nil {
		return nil, fmt.Errorf("invalid options for plugin %s: %w", name, err)
	}
	return p, nil
}

// Names returns the registered plugin names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(plugins))
	for name := range plugins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
