package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/bundler/internal/bundler"
	"github.com/wolfeidau/bundler/internal/config"
	"github.com/wolfeidau/bundler/internal/emit"
	"github.com/wolfeidau/bundler/internal/logger"
	"github.com/wolfeidau/bundler/internal/telemetry"
	"github.com/wolfeidau/bundler/internal/util"
)

type BuildCmd struct {
	ConfigFlags
	Out         string        `help:"Output directory, overrides output.path" type:"path"`
	Concurrency int           `help:"Transform workers, zero uses the CPU count" env:"BUNDLER_CONCURRENCY"`
	Timeout     time.Duration `help:"Fail the module graph build after this long" env:"BUNDLER_TIMEOUT"`
	Telemetry   bool          `help:"Export traces and metrics over OTLP" env:"BUNDLER_TELEMETRY"`
}

func (b *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	if b.Telemetry {
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{ServiceName: "bundler", Version: globals.Version})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without it")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	p, err := b.pipeline(config.Overrides{
		OutputPath:  b.Out,
		Concurrency: b.Concurrency,
		Timeout:     b.Timeout,
	})
	if err != nil {
		return err
	}
	cfg := p.Config()

	buildID := uuid.NewString()
	ctx = logger.WithBuild(ctx, log, buildID, cfg.Mode)

	log.Info().
		Str("version", globals.Version).
		Str("build_id", buildID).
		Str("config", cfg.Path()).
		Msg("Starting build")

	result, err := p.Build(ctx)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	printResult(cfg, result)
	return nil
}

func printResult(cfg *config.Config, result *bundler.Result) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHUNK\tFILE\tTYPE\tMODULES\tSIZE\tENTRY\tSTATUS")

	for _, name := range result.Manifest.Names() {
		c, _ := result.Manifest.Chunk(name)
		entry := ""
		if c.IsEntry {
			entry = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n", name, c.File, c.Type, len(c.Modules), util.HumanBytes(c.Size), entry,
			chunkStatus(result.Previous, name, c.Hash))
	}
	w.Flush()

	for _, asset := range result.Manifest.Assets {
		fmt.Fprintf(stdout, "asset %s\n", asset)
	}

	out := util.RelPath(cfg.Context, cfg.Output.Path)
	fmt.Fprintf(stdout, "\n%d modules bundled into %s in %s\n",
		result.Graph.Len(), filepath.FromSlash(out), result.Duration.Round(time.Millisecond))
}

// chunkStatus compares a chunk against the manifest of the previous build.
func chunkStatus(previous *emit.Manifest, name, hash string) string {
	if previous == nil {
		return "new"
	}
	prev, ok := previous.Chunk(name)
	switch {
	case !ok:
		return "new"
	case prev.Hash != hash:
		return "changed"
	default:
		return "unchanged"
	}
}
