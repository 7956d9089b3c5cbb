// Package observability provides structured logging, metrics, and tracing
// for eventhub.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
// None of them sit on the plain Registry.Publish path.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// EnrichLogger adds session context to a logger.
// Returns a new logger with session_id and event_type fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "sess-1", "game.Damaged")
//	enriched.Info("handler attached") // includes session_id, event_type
func EnrichLogger(logger *slog.Logger, sessionID, eventType string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("session_id", sessionID),
		slog.String("event_type", eventType),
	)
}

// LogClearAll logs a completed clear-all pass.
func LogClearAll(logger *slog.Logger, registries, failures int) {
	if logger == nil {
		return
	}
	logger.Debug("registries cleared",
		slog.Int("registries", registries),
		slog.Int("failures", failures),
	)
}

// LogResetFailure logs a registry reset that panicked (non-fatal).
func LogResetFailure(logger *slog.Logger, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("registry reset failed",
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogBindingDisposed logs the release of a binding's subscriptions.
func LogBindingDisposed(logger *slog.Logger, bindingID, eventType string, released int) {
	if logger == nil {
		return
	}
	logger.Debug("binding disposed",
		slog.String("binding_id", bindingID),
		slog.String("event_type", eventType),
		slog.Int("released", released),
	)
}

// LogTeardown logs a lifecycle teardown.
func LogTeardown(logger *slog.Logger, sessionID, reason string, leaked int, durationMs float64) {
	if logger == nil {
		return
	}
	level := slog.LevelInfo
	if leaked > 0 {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "session teardown",
		slog.String("session_id", sessionID),
		slog.String("reason", reason),
		slog.Int("leaked_handlers", leaked),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogLeak logs one registry that still had handlers at teardown.
func LogLeak(logger *slog.Logger, sessionID, eventType string, remaining int) {
	if logger == nil {
		return
	}
	EnrichLogger(logger, sessionID, eventType).Warn("handlers still registered at teardown",
		slog.Int("remaining", remaining),
	)
}

// LogTeardownError logs a teardown step that failed (non-fatal).
func LogTeardownError(logger *slog.Logger, sessionID, op string, err error) {
	if logger == nil {
		return
	}
	logger.Error("teardown step failed",
		slog.String("session_id", sessionID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
