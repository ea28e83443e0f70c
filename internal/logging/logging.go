package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger provides a consistent logging interface with debug support
type Logger struct {
	entry   *logrus.Entry
	console io.Writer
}

// NewLogger creates a new logger instance tagged with the given component
func NewLogger(debug bool, component string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		base.SetLevel(logrus.DebugLevel)
	}
	return &Logger{
		entry:   base.WithField("component", component),
		console: os.Stdout,
	}
}

// New wraps an existing logrus entry, mainly for tests that capture output
func New(entry *logrus.Entry, console io.Writer) *Logger {
	if console == nil {
		console = io.Discard
	}
	return &Logger{entry: entry, console: console}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	base := logrus.New()
	base.SetOutput(io.Discard)
	return New(logrus.NewEntry(base), io.Discard)
}

// WithComponent returns a child logger sharing the same backend
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		entry:   l.entry.WithField("component", component),
		console: l.console,
	}
}

// WithField returns a child logger carrying an extra structured field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{
		entry:   l.entry.WithField(key, value),
		console: l.console,
	}
}

// Debug logs a message only when debug mode is enabled
func (l *Logger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

// Console prints a message to stdout (for user-facing output)
func (l *Logger) Console(format string, args ...interface{}) {
	fmt.Fprintf(l.console, format+"\n", args...)
}

// SetDebug enables or disables debug logging
func (l *Logger) SetDebug(debug bool) {
	if debug {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
		return
	}
	l.entry.Logger.SetLevel(logrus.InfoLevel)
}

// IsDebug returns whether debug logging is enabled
func (l *Logger) IsDebug() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
