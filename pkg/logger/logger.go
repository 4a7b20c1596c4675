// Package logger provides structured logging for biorecorder.
//
// Every acquisition worker logs through a Logger scoped to its session and
// modality, so interleaved output from concurrent channels stays
// attributable.
//
// Example usage:
//
//	log := logger.New(logger.Config{Level: "info", Output: "stderr", Format: "text"})
//	sessLog := logger.ForSession(log, "20240101_120000", "S1")
//	hrLog := logger.ForChannel(sessLog, "hr")
//	hrLog.Warn("transient read error", "error", err)
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Attribute keys shared by every component.
const (
	KeySession  = "session_id"
	KeySubject  = "subject"
	KeyModality = "modality"
)

// Logger provides structured logging with levels and fields.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an informational message with optional key-value pairs.
	Info(msg string, keysAndValues ...interface{})

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs.
	Error(msg string, keysAndValues ...interface{})

	// With returns a new logger with additional context fields.
	With(keysAndValues ...interface{}) Logger
}

// Config contains logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string

	// Output is stdout, stderr, or a file path opened for appending.
	Output string

	// Format is text or json.
	Format string
}

// slogLogger implements Logger on top of slog. It remembers the session
// and channel it is scoped to so scoping twice adds nothing.
type slogLogger struct {
	slogger  *slog.Logger
	session  string
	modality string
}

// New creates a logger from cfg. If the output cannot be opened the
// logger writes to stderr.
func New(cfg Config) Logger {
	w, err := openOutput(cfg.Output)
	if err != nil {
		w = os.Stderr
	}
	return NewWithWriter(w, cfg)
}

// NewWithWriter creates a logger that writes to w, ignoring cfg.Output.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}
	return &slogLogger{slogger: slog.New(h)}
}

// ForSession scopes l to one recording session.
func ForSession(l Logger, sessionID, subject string) Logger {
	if s, ok := l.(*slogLogger); ok && s.session == sessionID {
		return l
	}
	scoped := l.With(KeySession, sessionID, KeySubject, subject)
	if s, ok := scoped.(*slogLogger); ok {
		s.session = sessionID
	}
	return scoped
}

// ForChannel scopes l to one channel. Scoping an already scoped logger
// to the same modality returns it unchanged.
func ForChannel(l Logger, modality string) Logger {
	if s, ok := l.(*slogLogger); ok && s.modality == modality {
		return l
	}
	scoped := l.With(KeyModality, modality)
	if s, ok := scoped.(*slogLogger); ok {
		s.modality = modality
	}
	return scoped
}

// Debug implements Logger.Debug.
func (l *slogLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.slogger.Debug(msg, keysAndValues...)
}

// Info implements Logger.Info.
func (l *slogLogger) Info(msg string, keysAndValues ...interface{}) {
	l.slogger.Info(msg, keysAndValues...)
}

// Warn implements Logger.Warn.
func (l *slogLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.slogger.Warn(msg, keysAndValues...)
}

// Error implements Logger.Error.
func (l *slogLogger) Error(msg string, keysAndValues ...interface{}) {
	l.slogger.Error(msg, keysAndValues...)
}

// With implements Logger.With.
func (l *slogLogger) With(keysAndValues ...interface{}) Logger {
	return &slogLogger{
		slogger:  l.slogger.With(keysAndValues...),
		session:  l.session,
		modality: l.modality,
	}
}

// parseLevel maps a level name to slog.Level; unknown names mean info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// openOutput resolves a log destination. File paths are opened for
// appending and their parent directories created.
func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(output), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	// #nosec G304: output path comes from trusted config
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
	}
	return f, nil
}

// Default returns an info-level text logger on stderr.
func Default() Logger {
	return New(Config{Level: "info", Output: "stderr", Format: "text"})
}

// Noop returns a logger that discards everything.
func Noop() Logger {
	return &slogLogger{slogger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
