package gohost

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
)

// SlogHandler wraps inner so that Warn and Error records are reported as
// recoverable runtime errors. Records still reach inner unless an error
// observer handled them.
func (rt *Runtime) SlogHandler(inner slog.Handler) slog.Handler {
	return &slogHandler{rt: rt, inner: inner}
}

type slogHandler struct {
	rt    *Runtime
	inner slog.Handler
}

func (h *slogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelWarn || h.inner.Enabled(ctx, level)
}

func (h *slogHandler) Handle(ctx context.Context, rec slog.Record) error {
	if sev, ok := severityOf(rec.Level); ok {
		file, line := recordSource(rec)
		if h.rt.raise(ctx, sev, rec.Message, file, line) {
			return nil
		}
	}
	if !h.inner.Enabled(ctx, rec.Level) {
		return nil
	}
	return h.inner.Handle(ctx, rec)
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &slogHandler{rt: h.rt, inner: h.inner.WithAttrs(attrs)}
}

func (h *slogHandler) WithGroup(name string) slog.Handler {
	return &slogHandler{rt: h.rt, inner: h.inner.WithGroup(name)}
}

func severityOf(level slog.Level) (devpulse.Severity, bool) {
	switch {
	case level >= slog.LevelError:
		return devpulse.SeverityError, true
	case level >= slog.LevelWarn:
		return devpulse.SeverityUserWarning, true
	default:
		return 0, false
	}
}

func recordSource(rec slog.Record) (string, int) {
	if rec.PC == 0 {
		return "", 0
	}
	frame, _ := runtime.CallersFrames([]uintptr{rec.PC}).Next()
	return frame.File, frame.Line
}
