package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps a config value such as "debug" to a LogLevel, defaulting to INFO
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger is a levelled printf-style logger on top of zerolog
type Logger struct {
	zl    zerolog.Logger
	level LogLevel
}

// NewLogger creates a console logger with the specified level
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithWriter(consoleWriter(os.Stdout), level)
}

// NewLoggerWithWriter creates a logger writing to w (JSON lines unless w is a ConsoleWriter)
func NewLoggerWithWriter(w io.Writer, level LogLevel) *Logger {
	return &Logger{
		zl:    zerolog.New(w).With().Timestamp().Logger().Level(level.zerolog()),
		level: level,
	}
}

// Configure replaces the global logger according to the environment
func Configure(environment string, level LogLevel) {
	ConfigureOutput(os.Stdout, environment, level)
}

// ConfigureOutput is Configure writing to w. Production logs JSON lines,
// everything else the human readable console format.
func ConfigureOutput(w io.Writer, environment string, level LogLevel) {
	if environment == "production" {
		Log = NewLoggerWithWriter(w, level)
		return
	}
	Log = NewLoggerWithWriter(consoleWriter(w), level)
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.zl.Debug().Msg(fmt.Sprintf(format, v...))
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.zl.Info().Msg(fmt.Sprintf(format, v...))
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.zl.Warn().Msg(fmt.Sprintf(format, v...))
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.zl.Error().Msg(fmt.Sprintf(format, v...))
}

// WithFields returns a new logger with the specified fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{
		zl:    l.zl.With().Fields(fields).Logger(),
		level: l.level,
	}
}

// WithField returns a new logger with a single field added
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		zl:    l.zl.With().Interface(key, value).Logger(),
		level: l.level,
	}
}

// SetLevel changes the log level
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
	l.zl = l.zl.Level(level.zerolog())
}

// Global logger instance
var Log = NewLogger(INFO)
