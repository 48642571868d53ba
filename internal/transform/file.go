package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/wolfeidau/bundler/internal/contenthash"
)

// FileOptions configures the file loader.
type FileOptions struct {
	// Name is the output name template, e.g. "assets/[hash].[ext]".
	Name string `mapstructure:"name"`
	// PublicPath prefixes the exported URL.
	PublicPath string `mapstructure:"publicPath"`
	HashLength int    `mapstructure:"hashLength"`
}

type fileLoader struct {
	opts   FileOptions
	hasher contenthash.Hasher
}

func newFileLoader(options map[string]any) (Transformer, error) {
	opts := FileOptions{Name: "[hash].[ext]", PublicPath: "/"}
	if err := DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return NewFile(opts), nil
}

// NewFile returns the file loader: the module's bytes are emitted as an asset
// under a content hashed name and the module becomes a URL export.
func NewFile(opts FileOptions) Transformer {
	hasher := contenthash.Default()
	if opts.HashLength > 0 {
		hasher.Length = opts.HashLength
	}
	return &fileLoader{opts: opts, hasher: hasher}
}

func (l *fileLoader) Transform(ctx context.Context, src Source) (Result, error) {
	ext := filepath.Ext(src.ID)
	name := contenthash.Render(l.opts.Name, contenthash.Vars{
		Name: strings.TrimSuffix(filepath.Base(src.ID), ext),
		Hash: l.hasher.Sum(src.Code),
		Ext:  ext,
	})

	url, err := json.Marshal(path.Join(l.opts.PublicPath, name))
	if err != nil {
		return Result{}, err
	}

	return Result{
		Code:   []byte(fmt.Sprintf("export default %s;\n", url)),
		Type:   TypeJS,
		Assets: []Asset{{Name: name, Data: src.Code}},
	}, nil
}

type rawLoader struct{}

func newRawLoader(options map[string]any) (Transformer, error) {
	if err := DecodeOptions(options, &struct{}{}); err != nil {
		return nil, err
	}
	return rawLoader{}, nil
}

// Transform exports the module's content as a string.
func (rawLoader) Transform(ctx context.Context, src Source) (Result, error) {
	literal, err := json.Marshal(string(src.Code))
	if err != nil {
		return Result{}, err
	}
	return Result{Code: []byte(fmt.Sprintf("export default %s;\n", literal)), Type: TypeJS}, nil
}
