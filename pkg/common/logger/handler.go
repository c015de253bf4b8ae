package logger

import (
	"context"
	"log/slog"
)

// logHandler provides a wrapper around the slog handler to capture which
// log level is being logged for event handling.
type logHandler struct {
	handler slog.Handler
	events  Events
}

func newLogHandler(handler slog.Handler, events Events) *logHandler {
	return &logHandler{
		handler: handler,
		events:  events,
	}
}

// Enabled reports whether the handler handles records at the given level.
func (h *logHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// WithAttrs returns a new handler whose attributes consist of
// both the receiver's attributes and the arguments.
func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logHandler{handler: h.handler.WithAttrs(attrs), events: h.events}
}

// WithGroup returns a new Handler with the given group appended to
// the receiver's existing groups.
func (h *logHandler) WithGroup(name string) slog.Handler {
	return &logHandler{handler: h.handler.WithGroup(name), events: h.events}
}

// Handle looks to see if an event function needs to be executed for a given
// log level and then formats and writes the record.
func (h *logHandler) Handle(ctx context.Context, r slog.Record) error {
	var fn EventFn
	switch level := Level(r.Level); {
	case level >= LevelCritical:
		fn = h.events.Critical
	case level >= LevelError:
		fn = h.events.Error
	case level >= LevelWarn:
		fn = h.events.Warn
	case level >= LevelInfo:
		fn = h.events.Info
	default:
		fn = h.events.Debug
	}

	if fn != nil {
		fn(ctx, toRecord(r))
	}

	return h.handler.Handle(ctx, r)
}
