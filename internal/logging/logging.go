// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	// Filter, when set, wraps every destination. Used to redact secrets.
	Filter func(io.Writer) io.Writer
}

// DefaultLogConfig returns console and file logging at info, with the file
// in dir/logs rotated at 50 MB and kept for two weeks.
func DefaultLogConfig(dir string) LogConfig {
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(dir, "logs", "investdesk.log"),
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
	}
}

// NewLoggerWithConfig builds a logger writing to stderr, to a rotated file,
// to both, or nowhere.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	filter := cfg.Filter
	if filter == nil {
		filter = func(w io.Writer) io.Writer { return w }
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, filter(consoleWriter(os.Stderr)))
	}
	if cfg.File && cfg.FilePath != "" {
		if w, err := fileWriter(cfg); err == nil {
			writers = append(writers, filter(w))
		} else {
			fmt.Fprintf(os.Stderr, "log file disabled: %v\n", err)
		}
	}

	var out io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		out = writers[0]
	default:
		out = zerolog.MultiLevelWriter(writers...)
	}

	return zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

var levelLabels = map[string]string{
	zerolog.LevelDebugValue: "\033[36mDBG\033[0m",
	zerolog.LevelInfoValue:  "\033[32mINF\033[0m",
	zerolog.LevelWarnValue:  "\033[33mWRN\033[0m",
	zerolog.LevelErrorValue: "\033[31mERR\033[0m",
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.Kitchen,
		FormatLevel: func(i interface{}) string {
			level, _ := i.(string)
			if label, ok := levelLabels[level]; ok {
				return label
			}
			return strings.ToUpper(level)
		},
	}
}

func fileWriter(cfg LogConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}, nil
}

// ParseLevel maps a config string onto a zerolog level. Unknown or empty
// strings mean info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

type loggerKey struct{}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored by WithLogger, or a no-op logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithComponent adds a component name to the logger context.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithStream adds a stream name to the logger context.
func WithStream(logger zerolog.Logger, stream string) zerolog.Logger {
	return logger.With().Str("stream", stream).Logger()
}

// LogAPICall logs an API call.
func LogAPICall(logger zerolog.Logger, requestID, method, endpoint string, status int, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "api_call").
		Str("request_id", requestID).
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", status).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("API call failed")
	} else {
		event.Msg("API call completed")
	}
}

// LogSessionTransition logs a session state change.
func LogSessionTransition(logger zerolog.Logger, from, to, cause string) {
	logger.Info().
		Str("event", "session").
		Str("from", from).
		Str("to", to).
		Str("cause", cause).
		Msg("Session state changed")
}

// LogStreamEvent logs a push channel lifecycle event.
func LogStreamEvent(logger zerolog.Logger, stream, event string, err error) {
	e := logger.Info()
	if err != nil {
		e = logger.Warn().Err(err)
	}
	e.Str("event", "stream").
		Str("stream", stream).
		Str("state", event).
		Msg("Stream " + event)
}
