package logging

import (
	"io"
	"log/slog"
	"os"
)

// InitStructured replaces the operational logger with one writing to stderr
// in format ("json", anything else is text) at level. Sessions, pools and
// repositories pick it up on their next log call.
func InitStructured(format, level string) {
	SetLevelFromString(level)
	opLogger.Store(slog.New(NewHandler(os.Stderr, format)))
}

// NewHandler builds the slog handler used for operational logs. Its level
// follows SetLevel.
func NewHandler(w io.Writer, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// OpWithTrace returns the operational logger tagged with the span running
// a statement, so statement failures can be matched with their trace.
func OpWithTrace(traceID, spanID string) *slog.Logger {
	l := opLogger.Load()
	if traceID == "" {
		return l
	}
	if spanID == "" {
		return l.With("trace_id", traceID)
	}
	return l.With("trace_id", traceID, "span_id", spanID)
}
