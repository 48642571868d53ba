package emit

import (
	"context"
	"fmt"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/wolfeidau/bundler/internal/transform"
)

// Minimizer shrinks a module's code before it is concatenated into a chunk.
type Minimizer interface {
	Minimize(ctx context.Context, typ string, code []byte) ([]byte, error)
}

// ESBuildMinimizer minifies js and css with esbuild. Legal comments are kept
// inline so style payload markers survive for extraction.
type ESBuildMinimizer struct{}

func NewMinimizer() *ESBuildMinimizer {
	return &ESBuildMinimizer{}
}

func (ESBuildMinimizer) Minimize(ctx context.Context, typ string, code []byte) ([]byte, error) {
	loader := api.LoaderJS
	switch typ {
	case transform.TypeJS:
	case transform.TypeCSS:
		loader = api.LoaderCSS
	default:
		return code, nil
	}

	result := api.Transform(string(code), api.TransformOptions{
		Loader:            loader,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		LegalComments:     api.LegalCommentsInline,
	})
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("minify failed: %w", transform.MessagesError(result.Errors))
	}

	return result.Code, nil
}
