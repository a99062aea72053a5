// Package clog is the module's ambient logger. It mirrors hcat's
// bracketed-severity convention (log.Printf("[DEBUG] (watcher) ...")) rather
// than pulling in a structured-logging library neither gux nor hcat's
// non-test code actually imports (see DESIGN.md).
package clog

import (
	"log"
	"os"
)

// Logger wraps the standard library logger with hcat-style severity tags.
type Logger struct {
	std    *log.Logger
	prefix string // e.g. "(cache)", "(query foo)"
}

// New creates a Logger that tags every line with prefix, e.g. "(cache)".
func New(prefix string) *Logger {
	return &Logger{
		std:    log.New(os.Stderr, "", log.LstdFlags),
		prefix: prefix,
	}
}

func (l *Logger) With(prefix string) *Logger {
	return &Logger{std: l.std, prefix: l.prefix + " " + prefix}
}

func (l *Logger) Trace(format string, args ...any) { l.logf("TRACE", format, args...) }
func (l *Logger) Debug(format string, args ...any) { l.logf("DEBUG", format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.logf("WARN", format, args...) }
func (l *Logger) Error(format string, args ...any) { l.logf("ERROR", format, args...) }

func (l *Logger) logf(level, format string, args ...any) {
	if l == nil || l.std == nil {
		return
	}
	l.std.Printf("["+level+"] "+l.prefix+" "+format, args...)
}

// Discard is a Logger that drops everything; used as the default so library
// consumers opt into diagnostics rather than being forced to see them.
var Discard = &Logger{}
