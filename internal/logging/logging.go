// Package logging wraps a process-wide zerolog logger.
//
// Packages log through the helpers (Info, Warn, ...) or a Component logger;
// the cobra root command calls Init once flags and config are known.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

// Logger is the process-wide logger.
var Logger zerolog.Logger

// Level is a zerolog level.
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config controls where and how logs are written.
type Config struct {
	Level Level
	// Output defaults to os.Stderr. Ignored when File is set.
	Output io.Writer
	// Pretty switches to zerolog's console writer.
	Pretty     bool
	TimeFormat string
	File       string
}

// DefaultConfig logs JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// FromConfig maps the "log" section of the service config.
func FromConfig(cfg types.LogConfig) Config {
	c := DefaultConfig()
	c.Level = ParseLevel(cfg.Level)
	c.Pretty = cfg.Pretty
	return c
}

// Init replaces the global logger. The returned closer releases the log
// file when one was opened; it is always non-nil.
func Init(cfg Config) (io.Closer, error) {
	out, closer, err := openOutput(cfg)
	if err != nil {
		return closer, err
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = timeFormat
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: timeFormat}
	}

	Logger = zerolog.New(out).Level(cfg.Level).With().Timestamp().Logger()
	return closer, nil
}

func openOutput(cfg Config) (io.Writer, io.Closer, error) {
	if cfg.File == "" {
		if cfg.Output == nil {
			return os.Stderr, nopCloser{}, nil
		}
		return cfg.Output, nopCloser{}, nil
	}
	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nopCloser{}, fmt.Errorf("open log file: %w", err)
	}
	return f, f, nil
}

// ParseLevel accepts zerolog level names in any case, plus "warning".
// Unknown or empty input yields InfoLevel.
func ParseLevel(level string) Level {
	s := strings.ToLower(strings.TrimSpace(level))
	if s == "warning" {
		return WarnLevel
	}
	l, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return InfoLevel
	}
	return l
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

func Debug() *zerolog.Event { return Logger.Debug() }
func Info() *zerolog.Event  { return Logger.Info() }
func Warn() *zerolog.Event  { return Logger.Warn() }
func Error() *zerolog.Event { return Logger.Error() }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func init() {
	_, _ = Init(DefaultConfig())
}
