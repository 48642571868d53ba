package transform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/evanw/esbuild/pkg/api"
)

type cssLoader struct{}

func newCSSLoader(options map[string]any) (Transformer, error) {
	if err := DecodeOptions(options, &struct{}{}); err != nil {
		return nil, err
	}
	return cssLoader{}, nil
}

// Transform validates the stylesheet with esbuild and turns local @import
// rules into module imports, removing them from the output so each
// stylesheet is included once by the chunk that owns it.
func (cssLoader) Transform(ctx context.Context, src Source) (Result, error) {
	result := api.Transform(string(src.Code), api.TransformOptions{
		Loader:        api.LoaderCSS,
		Sourcefile:    src.ID,
		LegalComments: api.LegalCommentsInline,
	})
	if len(result.Errors) > 0 {
		return Result{}, MessagesError(result.Errors)
	}

	return Result{
		Code:    stripCSSImports(result.Code),
		Type:    TypeCSS,
		Imports: ScanCSS(result.Code),
	}, nil
}

const (
	styleBegin = "/*! bundler:style "
	styleEnd   = "/*! bundler:style-end */"
)

var styleBlock = regexp.MustCompile(`(?s)/\*! bundler:style ([A-Za-z0-9+/=]*) \*/.*?/\*! bundler:style-end \*/\n?`)

type styleLoader struct{}

func newStyleLoader(options map[string]any) (Transformer, error) {
	if err := DecodeOptions(options, &struct{}{}); err != nil {
		return nil, err
	}
	return styleLoader{}, nil
}

// Transform wraps a stylesheet in a module that injects it into the document
// at runtime. The payload is framed by legal comments, which minifiers keep,
// so ExtractStyles can move it into a standalone stylesheet after emission.
func (styleLoader) Transform(ctx context.Context, src Source) (Result, error) {
	return Result{Code: StyleModule(src.Code), Type: TypeJS}, nil
}

// StyleModule renders the injecting module for css.
func StyleModule(css []byte) []byte {
	literal, _ := json.Marshal(string(css))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s%s */\n", styleBegin, base64.StdEncoding.EncodeToString(css))
	buf.WriteString("(function () {\n")
	fmt.Fprintf(&buf, "  var css = %s;\n", literal)
	buf.WriteString("  if (typeof document === \"undefined\") return;\n")
	buf.WriteString("  var el = document.createElement(\"style\");\n")
	buf.WriteString("  el.appendChild(document.createTextNode(css));\n")
	buf.WriteString("  document.head.appendChild(el);\n")
	buf.WriteString("})();\n")
	buf.WriteString(styleEnd + "\n")

	return buf.Bytes()
}

// ExtractStyles removes every injected style block from js and returns the
// stylesheets in order of appearance.
func ExtractStyles(js []byte) ([]byte, [][]byte, error) {
	var (
		styles [][]byte
		decErr error
	)

	stripped := styleBlock.ReplaceAllFunc(js, func(block []byte) []byte {
		m := styleBlock.FindSubmatch(block)
		css, err := base64.StdEncoding.DecodeString(string(m[1]))
		if err != nil && decErr == nil {
			decErr = fmt.Errorf("corrupt style payload: %w", err)
		}
		styles = append(styles, css)
		return nil
	})
	if decErr != nil {
		return nil, nil, decErr
	}

	return stripped, styles, nil
}
