// Package tracing carries the per-operation id described in spec.md 4.12/5
// ("a tracing substrate that holds per-task operation ids") across every
// asynchronous call of a single tool-call operation, and provides a logger
// that tags log lines with it as an opid attribute.
package tracing

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

type opIDKey struct{}

// NewOperationID allocates an 8-hex-char operation id, the first 8
// characters of a fresh UUIDv4 (spec.md 4.12 step 1).
func NewOperationID() string {
	return uuid.New().String()[:8]
}

// WithOperationID installs id into ctx, replacing any id ctx already
// carries. EnsureOperationID is the call that keeps an inherited id.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, opIDKey{}, id)
}

// OperationID returns the operation id carried by ctx, or "" if none.
func OperationID(ctx context.Context) string {
	id, _ := ctx.Value(opIDKey{}).(string)
	return id
}

// EnsureOperationID returns ctx unchanged if it already carries an
// operation id, or a derived context with a freshly allocated one.
// Returns the context and the id in effect.
func EnsureOperationID(ctx context.Context) (context.Context, string) {
	if id := OperationID(ctx); id != "" {
		return ctx, id
	}
	id := NewOperationID()
	return WithOperationID(ctx, id), id
}

// Logger is a context-aware wrapper over log/slog that adds the operation
// id in effect to every record as an `opid=<id>` attribute. The id is not
// written as a textual prefix of the message; records logged without an id
// in ctx carry no opid attribute.
type Logger struct {
	base *slog.Logger
}

// New builds a Logger at the given level, writing structured text to
// stderr. level is one of "debug", "info", "warn", "error" (the
// log_level configuration key, spec.md 6).
func New(level string) *Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return &Logger{base: slog.New(h)}
}

func (l *Logger) with(ctx context.Context) *slog.Logger {
	if id := OperationID(ctx); id != "" {
		return l.base.With("opid", id)
	}
	return l.base
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.with(ctx).Debug(msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.with(ctx).Info(msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.with(ctx).Warn(msg, args...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.with(ctx).Error(msg, args...)
}
