// Package logging provides the structured logger used across the panel.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Logger is a structured logger for panel components
type Logger struct {
	*slog.Logger
}

// Options configures a Logger.
type Options struct {
	Format Format
	Writer io.Writer
}

// NewLogger creates a new structured JSON logger writing to stdout
func NewLogger(component string, level slog.Level) *Logger {
	return NewLoggerWithOptions(component, level, Options{})
}

// NewLoggerWithOptions creates a logger with an explicit format and writer.
func NewLoggerWithOptions(component string, level slog.Level, opts Options) *Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch opts.Format {
	case FormatText:
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		handler = slog.NewJSONHandler(w, handlerOpts)
	}

	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "panel"),
	)

	return &Logger{Logger: logger}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Component returns a child logger tagged with a different component name.
func (l *Logger) Component(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("subcomponent", component),
		),
	}
}

// WithPanel returns a logger with panel instance fields
func (l *Logger) WithPanel(instanceID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("panel_id", instanceID),
		),
	}
}

// WithMessage returns a logger with inbound message fields
func (l *Logger) WithMessage(kind, componentID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("message_kind", kind),
			slog.String("component_id", componentID),
		),
	}
}

// CommandApplied logs a successfully reconciled inbound command
func (l *Logger) CommandApplied(kind, componentID string, contentSize int) {
	l.Debug("command applied",
		slog.String("message_kind", kind),
		slog.String("component_id", componentID),
		slog.Int("content_size", contentSize),
	)
}

// CommandRejected logs an inbound command that produced no change
func (l *Logger) CommandRejected(kind, code string, err error) {
	l.Warn("command rejected",
		slog.String("message_kind", kind),
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
}

// EventPublished logs an outbound event
func (l *Logger) EventPublished(subject, componentID, view string) {
	l.Info("event published",
		slog.String("subject", subject),
		slog.String("component_id", componentID),
		slog.String("set_view", view),
	)
}

// LayoutLoaded logs the initial layout build
func (l *Logger) LayoutLoaded(path, page string, roots, nodes int) {
	l.Info("layout loaded",
		slog.String("path", path),
		slog.String("page", page),
		slog.Int("roots", roots),
		slog.Int("nodes", nodes),
	)
}

// LayoutReloaded logs a layout swap after a file change
func (l *Logger) LayoutReloaded(path string, nodes int) {
	l.Info("layout reloaded",
		slog.String("path", path),
		slog.Int("nodes", nodes),
	)
}
