// Package transform holds the loader side of the bundler: the Transformer
// contract, rules binding file patterns to ordered transformer chains, and
// the built-in loaders.
package transform

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Module content types. The type decides which import scanner runs after the
// chain and is updated by steps that change the language, e.g. style → js.
const (
	TypeJS    = "js"
	TypeCSS   = "css"
	TypeAsset = "asset"
)

var (
	// ErrUnknownLoader indicates a rule names a loader that is not registered
	ErrUnknownLoader = errors.New("unknown loader")
	// ErrInvalidPattern indicates a rule pattern failed to compile
	ErrInvalidPattern = errors.New("invalid pattern")
)

// Source is the input of one transform step.
type Source struct {
	ID   string
	Code []byte
}

// Asset is a file a loader asks the emitter to write next to the chunks.
type Asset struct {
	Name string
	Data []byte
}

// Result is the output of a step or a whole chain.
type Result struct {
	Code []byte
	// Type is the content type after the step. Empty keeps the input type.
	Type    string
	Imports []string
	Assets  []Asset
}

// Transformer converts a module's source. Implementations must be safe for
// concurrent use and deterministic for a given input.
type Transformer interface {
	Transform(ctx context.Context, src Source) (Result, error)
}

// TransformerFunc adapts a function to the Transformer interface.
type TransformerFunc func(ctx context.Context, src Source) (Result, error)

func (f TransformerFunc) Transform(ctx context.Context, src Source) (Result, error) {
	return f(ctx, src)
}

// Step is a named transformer within a rule's chain.
type Step struct {
	Name        string
	Transformer Transformer
}

// TransformError reports a step rejecting a module.
type TransformError struct {
	ModuleID string
	Step     string
	Err      error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s failed for %s: %v", e.Step, e.ModuleID, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// TypeOf infers a module's initial content type from its extension.
func TypeOf(id string) string {
	switch strings.ToLower(filepath.Ext(id)) {
	case ".js", ".mjs", ".cjs", ".jsx", ".ts", ".mts", ".cts", ".tsx", ".json":
		return TypeJS
	case ".css", ".scss", ".sass", ".less":
		return TypeCSS
	default:
		return TypeAsset
	}
}

// Apply runs steps in the given order, threading the code through each one.
// Imports and assets are unioned across steps in first-seen order, then the
// scanner for the final content type adds the statically visible imports.
func Apply(ctx context.Context, steps []Step, src Source) (Result, error) {
	out := Result{Code: src.Code, Type: TypeOf(src.ID)}

	for _, step := range steps {
		res, err := step.Transformer.Transform(ctx, Source{ID: src.ID, Code: out.Code})
		if err != nil {
			return Result{}, &TransformError{ModuleID: src.ID, Step: step.Name, Err: err}
		}

		out.Code = res.Code
		if res.Type != "" {
			out.Type = res.Type
		}
		out.Imports = appendUnique(out.Imports, res.Imports...)
		out.Assets = append(out.Assets, res.Assets...)
	}

	out.Imports = appendUnique(out.Imports, Scan(out.Type, out.Code)...)

	return out, nil
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
