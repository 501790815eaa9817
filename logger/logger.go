// Package logger provides the leveled console logger used throughout the
// SDK, grounded on Runner.log's activity-callback pattern: an injectable
// sink suppresses the stdout/stderr fallback when the embedding process
// wants its own activity stream (spec.md's error-handling design).
package logger

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

// Sink receives every logged message instead of the colorized
// stdout/stderr fallback. nil disables the callback path.
type Sink func(level, message string)

// Logger is a leveled, colorized console logger. Every Logger carries a
// correlation id, generated once at construction, that every log line
// (and every outgoing credential-service HTTP call made with this
// process's logger) is tagged with, so a single worker process's
// activity can be traced across its own log stream and the services it
// calls.
type Logger struct {
	sink          Sink
	correlationID string
}

// New constructs a Logger. sink may be nil, in which case every message
// falls back to stdout (info) or stderr (warning/error).
func New(sink Sink) *Logger {
	return &Logger{sink: sink, correlationID: uuid.NewString()}
}

// CorrelationID returns this Logger's process-scoped correlation id, for
// callers (e.g. credential.Client) that want to tag outgoing HTTP
// requests with the same id that tags this process's log lines.
func (l *Logger) CorrelationID() string { return l.correlationID }

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

func (l *Logger) log(level, format string, args ...interface{}) {
	msg := fmt.Sprintf("[%s] %s", l.correlationID, fmt.Sprintf(format, args...))
	if l.sink != nil {
		l.sink(level, msg)
		return
	}
	switch level {
	case "error":
		fmt.Fprintln(os.Stderr, errorColor.Sprint("✗ ")+msg)
	case "warning":
		fmt.Fprintln(os.Stderr, warningColor.Sprint("⚠ ")+msg)
	default:
		fmt.Fprintln(os.Stdout, infoColor.Sprint("▸ ")+msg)
	}
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) { l.log("info", format, args...) }

// Warning logs a recoverable-condition message.
func (l *Logger) Warning(format string, args ...interface{}) { l.log("warning", format, args...) }

// Error logs a failure.
func (l *Logger) Error(format string, args ...interface{}) { l.log("error", format, args...) }
