// Package debug is the structured-logging sink used by every package in
// this module. It is silent by default; callers opt in with SetHandler.
package debug

import (
	"context"
	"log/slog"
)

var logger = slog.New(noOp{})

// SetHandler installs h as the destination for all library log output.
// Call once during process startup; it is not safe to call concurrently
// with logging calls.
func SetHandler(h slog.Handler) {
	logger = slog.New(h)
}

// Log writes msg at level through the configured handler.
func Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	logger.Log(ctx, level, msg, args...)
}

// Debugf is a convenience wrapper for connection/channel state-transition
// tracing (connection open, channel open).
func Debugf(ctx context.Context, msg string, args ...any) {
	logger.Log(ctx, slog.LevelDebug, msg, args...)
}

// Warnf logs unexpected-but-recoverable conditions, e.g. a malformed or
// unexpected frame, or a failed reconnect step.
func Warnf(ctx context.Context, msg string, args ...any) {
	logger.Log(ctx, slog.LevelWarn, msg, args...)
}

// Assert logs an error-level message if condition is false. It never
// panics: protocol violations are surfaced as typed errors to the
// caller, not process crashes.
func Assert(ctx context.Context, condition bool, args ...any) {
	if !condition {
		logger.Log(ctx, slog.LevelError, "assertion failed", args...)
	}
}
