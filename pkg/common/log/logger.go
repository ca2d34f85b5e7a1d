// Package log provides the logging interface shared by xylem components.
package log

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the logging level.
type Level int

const (
	// LevelDebug level for detailed troubleshooting information
	LevelDebug Level = iota
	// LevelInfo level for general operational information
	LevelInfo
	// LevelWarn level for potentially harmful situations
	LevelWarn
	// LevelError level for error events
	LevelError
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", l)
	}
}

// Logger is implemented by anything the storage layer can log through.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	// WithField returns a new logger with the given field added to the context.
	WithField(key string, value interface{}) Logger
	// SetLevel sets the logging level.
	SetLevel(level Level)
}

// StandardLogger writes timestamped, leveled lines to a single writer.
type StandardLogger struct {
	mu     sync.Mutex
	level  Level
	out    io.Writer
	fields map[string]interface{}
}

// LoggerOption configures a StandardLogger.
type LoggerOption func(*StandardLogger)

// WithLevel sets the logging level.
func WithLevel(level Level) LoggerOption {
	return func(l *StandardLogger) {
		l.level = level
	}
}

// WithOutput sets the output writer.
func WithOutput(out io.Writer) LoggerOption {
	return func(l *StandardLogger) {
		l.out = out
	}
}

// NewStandardLogger creates a new StandardLogger with the given options.
func NewStandardLogger(options ...LoggerOption) *StandardLogger {
	logger := &StandardLogger{
		level:  LevelInfo,
		out:    os.Stdout,
		fields: make(map[string]interface{}),
	}
	for _, option := range options {
		option(logger)
	}
	return logger
}

func (l *StandardLogger) log(level Level, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")

	// Fields are rendered sorted so that log output is stable.
	var fieldsStr string
	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, l.fields[k])
		}
		fieldsStr = sb.String()
	}

	fmt.Fprintf(l.out, "[%s] [%s]%s %s\n", timestamp, level.String(), fieldsStr, msg)
}

// Debug logs a debug-level message.
func (l *StandardLogger) Debug(msg string, args ...interface{}) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info-level message.
func (l *StandardLogger) Info(msg string, args ...interface{}) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning-level message.
func (l *StandardLogger) Warn(msg string, args ...interface{}) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error-level message.
func (l *StandardLogger) Error(msg string, args ...interface{}) {
	l.log(LevelError, msg, args...)
}

// WithField returns a new logger with the given field added to the context.
func (l *StandardLogger) WithField(key string, value interface{}) Logger {
	fields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &StandardLogger{
		level:  l.level,
		out:    l.out,
		fields: fields,
	}
}

// SetLevel sets the logging level.
func (l *StandardLogger) SetLevel(level Level) {
	l.level = level
}

var defaultLogger Logger = NewStandardLogger(WithLevel(LevelWarn))

// SetDefaultLogger replaces the process-wide default logger.
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the process-wide default logger.
func GetDefaultLogger() Logger {
	return defaultLogger
}
