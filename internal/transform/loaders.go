package transform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Factory builds a transformer from the options of a rule's use entry.
type Factory func(options map[string]any) (Transformer, error)

var (
	loadersMu sync.RWMutex
	loaders   = map[string]Factory{
		"esbuild": newESBuildLoader,
		"babel":   newESBuildLoader,
		"ts":      newESBuildLoader,
		"css":     newCSSLoader,
		"style":   newStyleLoader,
		"file":    newFileLoader,
		"raw":     newRawLoader,
		"exec":    newExecLoader,
		"sass":    newSassLoader,
	}
)

// RegisterLoader makes a loader available to configuration by name,
// replacing any loader of the same name.
func RegisterLoader(name string, factory Factory) {
	loadersMu.Lock()
	defer loadersMu.Unlock()
	loaders[name] = factory
}

// NewLoader instantiates the named loader.
func NewLoader(name string, options map[string]any) (Transformer, error) {
	loadersMu.RLock()
	factory, ok := loaders[name]
	loadersMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLoader, name)
	}

	t, err := factory(options)
	if err != nil {
		return nil, fmt.Errorf("invalid options for loader %q: %w", name, err)
	}
	return t, nil
}

// Loaders lists registered loader names, sorted.
func Loaders() []string {
	loadersMu.RLock()
	defer loadersMu.RUnlock()

	names := make([]string, 0, len(loaders))
	for name := range loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeOptions decodes loosely typed configuration options into out,
// rejecting unknown keys.
func DecodeOptions(options map[string]any, out any) error {
	if len(options) == 0 {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(options)
}
