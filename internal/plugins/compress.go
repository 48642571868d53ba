package plugins

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/bundler/internal/emit"
	"github.com/wolfeidau/bundler/internal/transform"
)

const (
	AlgorithmGzip = "gzip"
	AlgorithmZstd = "zstd"
)

// CompressOptions configures the compress plugin.
type CompressOptions struct {
	Algorithms []string `mapstructure:"algorithms"`
	// Threshold skips files smaller than this many bytes.
	Threshold int    `mapstructure:"threshold"`
	Test      string `mapstructure:"test"`
}

// CompressPlugin writes precompressed siblings of text outputs so a static
// file server can serve them directly.
type CompressPlugin struct {
	opts CompressOptions
	test *transform.Pattern
}

func init() {
	Register("compress", newCompressPlugin)
}

func newCompressPlugin(options map[string]any) (emit.Plugin, error) {
	var opts CompressOptions
	if err := transform.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return NewCompress(opts)
}

// NewCompress creates the compress plugin.
func NewCompress(opts CompressOptions) (*CompressPlugin, error) {
	if len(opts.Algorithms) == 0 {
		opts.Algorithms = []string{AlgorithmGzip, AlgorithmZstd}
	}
	for _, a := range opts.Algorithms {
		if a != AlgorithmGzip && a != AlgorithmZstd {
			return nil, fmt.Errorf("unknown compression algorithm %q", a)
		}
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 1024
	}
	if opts.Test == "" {
		opts.Test = `\.(js|css|html|svg|json|txt)$`
	}

	test, err := transform.CompilePattern(opts.Test)
	if err != nil {
		return nil, err
	}

	return &CompressPlugin{opts: opts, test: test}, nil
}

func (p *CompressPlugin) Name() string { return "compress" }

func (p *CompressPlugin) Apply(ctx context.Context, pc *emit.PluginContext) error {
	files := pc.Manifest().Files()
	for _, f := range pc.Emitted() {
		if !slices.Contains(files, f) {
			files = append(files, f)
		}
	}

	var enc *zstd.Encoder
	if slices.Contains(p.opts.Algorithms, AlgorithmZstd) {
		var err error
		enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		defer enc.Close()
	}

	compressed := 0
	for _, f := range files {
		if !p.test.Match(f) {
			continue
		}

		data, err := pc.ReadFile(f)
		if err != nil {
			return err
		}
		if len(data) < p.opts.Threshold {
			continue
		}

		for _, algorithm := range p.opts.Algorithms {
			switch algorithm {
			case AlgorithmGzip:
				gz, err := gzipBytes(data)
				if err != nil {
					return fmt.Errorf("failed to gzip %s: %w", f, err)
				}
				if err := pc.Emit(f+".gz", gz); err != nil {
					return err
				}
			case AlgorithmZstd:
				if err := pc.Emit(f+".zst", enc.EncodeAll(data, nil)); err != nil {
					return err
				}
			}
		}
		compressed++
	}

	zerolog.Ctx(ctx).Debug().Int("files", compressed).Msg("outputs compressed")
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
