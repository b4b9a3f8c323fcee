// ============================================================================
// tempo-go - Go client for Tempo simulation services
// ============================================================================
//
// Package:     logging
// Description: Root logger setup and the named logger facade
// License:     MIT
// ============================================================================

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// root is shared by every named logger so Setup also reconfigures the
// package-level loggers created before it ran.
var root atomic.Pointer[zerolog.Logger]

func init() {
	l := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	root.Store(&l)
}

// LoggerConfig holds configuration for the root logger
type LoggerConfig struct {
	// Service name, attached to every entry as "service"
	ServiceName string

	// Log level (trace, debug, info, warn, error)
	Level string

	// Output format: "json" or "text" (default: json)
	Format string

	// Output defaults to os.Stderr
	Output io.Writer

	// Additional outputs besides Output
	AdditionalOutputs []io.Writer
}

// DefaultLoggerConfig returns a default configuration
func DefaultLoggerConfig(serviceName string) LoggerConfig {
	return LoggerConfig{
		ServiceName: serviceName,
		Level:       "info",
		Format:      "json",
	}
}

// NewLogger builds a zerolog logger from cfg
func NewLogger(cfg LoggerConfig) (zerolog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return zerolog.Logger{}, err
	}

	var output io.Writer = os.Stderr
	if cfg.Output != nil {
		output = cfg.Output
	}
	if strings.EqualFold(cfg.Format, "text") {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	writers := append([]io.Writer{output}, cfg.AdditionalOutputs...)
	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	return ctx.Logger().Level(level), nil
}

// Setup replaces the root logger used by every named logger
func Setup(cfg LoggerConfig) error {
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	root.Store(&l)
	return nil
}

// Root returns the current root logger
func Root() zerolog.Logger {
	return *root.Load()
}

func parseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	if strings.EqualFold(level, "warning") {
		return zerolog.WarnLevel, nil
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log level: %w", err)
	}
	return parsed, nil
}

// Logger is a named logger with key/value logging methods
type Logger struct {
	name     string
	minLevel zerolog.Level
}

// New creates a named logger
func New(name string) *Logger {
	return &Logger{name: name, minLevel: zerolog.TraceLevel}
}

// Name returns the logger name
func (l *Logger) Name() string {
	return l.name
}

// WithLevel returns a copy that drops entries below level
func (l *Logger) WithLevel(level Level) *Logger {
	return &Logger{name: l.name, minLevel: level.zerolog()}
}

// Debug logs a debug message with key/value pairs
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.log(zerolog.DebugLevel, msg, keysAndValues)
}

// Info logs an info message with key/value pairs
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.log(zerolog.InfoLevel, msg, keysAndValues)
}

// Warn logs a warning message with key/value pairs
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.log(zerolog.WarnLevel, msg, keysAndValues)
}

// Error logs an error message with key/value pairs
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.log(zerolog.ErrorLevel, msg, keysAndValues)
}

func (l *Logger) log(level zerolog.Level, msg string, keysAndValues []interface{}) {
	if level < l.minLevel {
		return
	}
	base := root.Load()
	event := base.WithLevel(level)
	if event == nil {
		return
	}
	event = event.Str("logger", l.name)
	if fields := toFields(keysAndValues...); fields != nil {
		event = event.Fields(fields)
	}
	event.Msg(msg)
}

// toFields converts key-value pairs to a field map. Non-string keys and a
// trailing orphan value are dropped.
func toFields(keysAndValues ...interface{}) map[string]interface{} {
	if len(keysAndValues) == 0 {
		return nil
	}

	fields := make(map[string]interface{})
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
