package emit

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/wolfeidau/bundler/internal/telemetry"
)

// publish copies the stage into the output directory and writes the
// manifest last, so a manifest on disk always describes complete output.
func (e *Emitter) publish(ctx context.Context, stage afero.Fs, manifest *Manifest) error {
	if e.opts.Clean {
		if err := e.clean(); err != nil {
			return err
		}
	}

	var files []string
	err := afero.Walk(stage, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return &IOError{Op: "walk", Path: "stage", Err: err}
	}

	metrics := telemetry.GetMetrics()
	for _, p := range files {
		data, err := afero.ReadFile(stage, p)
		if err != nil {
			return &IOError{Op: "read", Path: p, Err: err}
		}
		if err := e.write(ctx, p, data); err != nil {
			return err
		}
		metrics.BytesEmitted.Add(ctx, int64(len(data)))
		metrics.FilesEmitted.Add(ctx, 1)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return &IOError{Op: "encode", Path: e.opts.ManifestName, Err: err}
	}

	return e.write(ctx, "/"+e.opts.ManifestName, append(data, '\n'))
}

func (e *Emitter) clean() error {
	entries, err := afero.ReadDir(e.out, "/")
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &IOError{Op: "clean", Path: "/", Err: err}
	}

	for _, entry := range entries {
		if err := e.out.RemoveAll("/" + entry.Name()); err != nil {
			return &IOError{Op: "clean", Path: entry.Name(), Err: err}
		}
	}
	return nil
}

// write stores one file, retrying transient failures with exponential backoff.
func (e *Emitter) write(ctx context.Context, name string, data []byte) error {
	logger := zerolog.Ctx(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.RetryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := e.out.MkdirAll(path.Dir(name), 0o755); err != nil {
			return struct{}{}, classify(err)
		}
		if err := afero.WriteFile(e.out, name, data, 0o644); err != nil {
			return struct{}{}, classify(err)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.opts.WriteRetries)+1), //nolint:gosec // negative values are clamped in New
		backoff.WithMaxElapsedTime(time.Minute),
		backoff.WithNotify(func(err error, next time.Duration) {
			telemetry.GetMetrics().WriteRetries.Add(ctx, 1)
			logger.Warn().Err(err).Str("file", name).Dur("next", next).Msg("retrying output write")
		}),
	)
	if err != nil {
		return &IOError{Op: "write", Path: name, Err: err}
	}
	return nil
}

// classify marks failures a retry cannot fix as permanent.
func classify(err error) error {
	if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrInvalid) || errors.Is(err, fs.ErrExist) {
		return backoff.Permanent(err)
	}
	return err
}
