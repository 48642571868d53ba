package transform

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// ESBuildOptions configures the esbuild loader.
type ESBuildOptions struct {
	// Loader overrides the extension based choice (js, jsx, ts, tsx, css, json).
	Loader          string            `mapstructure:"loader"`
	Target          string            `mapstructure:"target"`
	JSX             string            `mapstructure:"jsx"`
	JSXImportSource string            `mapstructure:"jsxImportSource"`
	Define          map[string]string `mapstructure:"define"`
	Minify          bool              `mapstructure:"minify"`
	// Presets is accepted so babel-loader style options still load. esbuild
	// covers the env and react presets on its own.
	Presets []string `mapstructure:"presets"`
}

type esbuildLoader struct {
	opts ESBuildOptions
}

func newESBuildLoader(options map[string]any) (Transformer, error) {
	var opts ESBuildOptions
	if err := DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	if _, err := parseTarget(opts.Target); err != nil {
		return nil, err
	}
	if opts.Loader != "" {
		if _, ok := esbuildLoaders["."+opts.Loader]; !ok {
			return nil, fmt.Errorf("unsupported esbuild loader %q", opts.Loader)
		}
	}
	return &esbuildLoader{opts: opts}, nil
}

// NewESBuild returns the esbuild loader, which transpiles TypeScript and JSX
// into ES modules without bundling so imports survive for the graph.
func NewESBuild(opts ESBuildOptions) Transformer {
	return &esbuildLoader{opts: opts}
}

var esbuildLoaders = map[string]api.Loader{
	".js":   api.LoaderJS,
	".mjs":  api.LoaderJS,
	".cjs":  api.LoaderJS,
	".jsx":  api.LoaderJSX,
	".ts":   api.LoaderTS,
	".mts":  api.LoaderTS,
	".cts":  api.LoaderTS,
	".tsx":  api.LoaderTSX,
	".css":  api.LoaderCSS,
	".json": api.LoaderJSON,
}

func (l *esbuildLoader) Transform(ctx context.Context, src Source) (Result, error) {
	ext := strings.ToLower(filepath.Ext(src.ID))
	if l.opts.Loader != "" {
		ext = "." + l.opts.Loader
	}

	loader, ok := esbuildLoaders[ext]
	if !ok {
		return Result{}, fmt.Errorf("esbuild cannot handle %q files", ext)
	}

	target, _ := parseTarget(l.opts.Target)

	jsx := api.JSXAutomatic
	switch l.opts.JSX {
	case "transform":
		jsx = api.JSXTransform
	case "preserve":
		jsx = api.JSXPreserve
	}

	format := api.FormatESModule
	if loader == api.LoaderCSS {
		format = api.FormatDefault
	}

	result := api.Transform(string(src.Code), api.TransformOptions{
		Loader:            loader,
		Format:            format,
		Target:            target,
		JSX:               jsx,
		JSXImportSource:   l.opts.JSXImportSource,
		Define:            l.opts.Define,
		Sourcefile:        src.ID,
		LegalComments:     api.LegalCommentsInline,
		MinifyWhitespace:  l.opts.Minify,
		MinifyIdentifiers: l.opts.Minify,
		MinifySyntax:      l.opts.Minify,
	})

	if len(result.Errors) > 0 {
		return Result{}, MessagesError(result.Errors)
	}

	typ := TypeJS
	if loader == api.LoaderCSS {
		typ = TypeCSS
	}

	return Result{Code: result.Code, Type: typ}, nil
}

// MessagesError joins esbuild diagnostics into one error.
func MessagesError(msgs []api.Message) error {
	errs := make([]error, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Location != nil {
			errs = append(errs, fmt.Errorf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
			continue
		}
		errs = append(errs, errors.New(msg.Text))
	}
	return errors.Join(errs...)
}

func parseTarget(s string) (api.Target, error) {
	switch strings.ToLower(s) {
	case "", "esnext":
		return api.ESNext, nil
	case "es2015", "es6":
		return api.ES2015, nil
	case "es2016":
		return api.ES2016, nil
	case "es2017":
		return api.ES2017, nil
	case "es2018":
		return api.ES2018, nil
	case "es2019":
		return api.ES2019, nil
	case "es2020":
		return api.ES2020, nil
	case "es2021":
		return api.ES2021, nil
	case "es2022":
		return api.ES2022, nil
	default:
		return api.ESNext, fmt.Errorf("unsupported esbuild target %q", s)
	}
}
