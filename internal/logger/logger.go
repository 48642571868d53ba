package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	return SetupWriter(os.Stderr, dev)
}

// SetupWriter builds the process logger writing to out. Dev mode switches to
// the human readable console writer at debug level.
func SetupWriter(out io.Writer, dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// WithBuild attaches a child of logger carrying the build id and mode to ctx,
// so every component reached through zerolog.Ctx logs with them.
func WithBuild(ctx context.Context, logger zerolog.Logger, buildID, mode string) context.Context {
	return logger.With().
		Str("build_id", buildID).
		Str("mode", mode).
		Logger().WithContext(ctx)
}

// Phase logs the duration of a named build phase when the returned func is called.
func Phase(ctx context.Context, name string) func(err error) {
	started := time.Now()

	return func(err error) {
		if err != nil {
			zerolog.Ctx(ctx).Error().
				Err(err).
				Str("phase", name).
				Dur("duration", time.Since(started)).
				Msg("build phase failed")
			return
		}

		zerolog.Ctx(ctx).Info().
			Str("phase", name).
			Dur("duration", time.Since(started)).
			Msg("build phase")
	}
}
