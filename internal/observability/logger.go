package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aidd/paper-tracker/internal/config"
)

// NewLogger builds the process logger from configuration. It also sets the
// zerolog global level and time format, so call it once from main.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	output, openErr := openOutput(cfg.Output)

	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	if format := strings.ToLower(cfg.Format); format == "console" || format == "pretty" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: zerolog.TimeFieldFormat}
	}

	builder := zerolog.New(output).With().Timestamp().Str("service", "paper-tracker")
	if cfg.AddSource {
		builder = builder.Caller()
	}

	level := ParseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	logger := builder.Logger().Level(level)

	if openErr != nil {
		logger.Warn().Err(openErr).Str("output", cfg.Output).Msg("cannot open log file, logging to stderr")
	}
	return logger
}

// openOutput resolves stdout, stderr or a file path. A file that cannot be
// opened falls back to stderr.
func openOutput(dest string) (io.Writer, error) {
	switch strings.ToLower(dest) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stderr, err
	}
	return f, nil
}

// ParseLevel converts a configured level name. Unknown names yield info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent tags a logger with the component emitting it.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithSource tags a logger with a paper source.
func WithSource(logger zerolog.Logger, source string) zerolog.Logger {
	return logger.With().Str("source", source).Logger()
}

// WithPollIDField tags a logger with the poll identifier.
func WithPollIDField(logger zerolog.Logger, pollID string) zerolog.Logger {
	return logger.With().Str("poll_id", pollID).Logger()
}

// WithRequestIDField tags a logger with an HTTP request id.
func WithRequestIDField(logger zerolog.Logger, requestID string) zerolog.Logger {
	return logger.With().Str("request_id", requestID).Logger()
}
