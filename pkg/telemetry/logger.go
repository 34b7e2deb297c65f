package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is a zerolog.Logger that also owns its output file, if any.
//
// The embedded logger's WithContext stores it in a context; LoggerFrom reads
// it back.
type Logger struct {
	zerolog.Logger
	out io.Closer
}

// NewLogger builds a logger from cfg. When Output names a file it is opened
// for appending and closed by Close.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	var (
		w      io.Writer
		closer io.Closer
	)
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05", NoColor: closer != nil}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	lc := zerolog.New(w).Level(level).With().Timestamp()
	if cfg.Caller {
		lc = lc.Caller()
	}
	return &Logger{Logger: lc.Logger(), out: closer}, nil
}

// NopLogger discards everything.
func NopLogger() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// Zerolog returns a copy of the underlying logger for packages that take a
// plain zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.Logger
}

// NewComponentLogger returns a child tagged with component=name.
func (l *Logger) NewComponentLogger(name string) *Logger {
	return &Logger{Logger: l.With().Str("component", name).Logger()}
}

// Close closes the log file, if the logger opened one.
func (l *Logger) Close() error {
	if l.out == nil {
		return nil
	}
	return l.out.Close()
}

// LoggerFrom returns the logger stored in ctx, or a disabled logger.
func LoggerFrom(ctx context.Context) *Logger {
	return &Logger{Logger: *zerolog.Ctx(ctx)}
}
