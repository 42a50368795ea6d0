// dispatcher.go holds the capture entry points registered with the host.

package devpulse

import (
	"context"
	"errors"
	"fmt"
)

// Message prefixes and context keys used by the non-exception captures.
const (
	DiePrefix      = "wp_die: "
	DieDefault     = "wp_die called"
	KeyDieTitle    = "wp_die_title"
	DatabasePrefix = "Database error: "
	KeyLastQuery   = "last_query"
	KeyDatabaseErr = "db_error"
)

// CaptureException reports an uncaught failure. Errors without a captured
// stack are annotated with the caller's stack first. It reports whether the
// event was handed to the transport.
func (a *Agent) CaptureException(ctx context.Context, err error) bool {
	if err == nil || !a.booted.Load() {
		return false
	}
	var t Throwable
	if !errors.As(err, &t) {
		err = newTracedError(err, 2)
	}
	return a.dispatch("exception", func() bool {
		return a.send(ctx, a.builder.FromException(ctx, err))
	})
}

// CaptureError reports a recoverable runtime error when its severity is in the
// report mask. It always returns false so the host's own reporting still runs.
func (a *Agent) CaptureError(ctx context.Context, sev Severity, message, file string, line int) bool {
	if !a.booted.Load() || !sev.In(a.cfg.reportMask) {
		return false
	}
	rerr := newRuntimeError(sev, message, file, line, 2)
	a.dispatch("error", func() bool {
		return a.send(ctx, a.builder.FromException(ctx, rerr))
	})
	return false
}

// CaptureShutdown reports the last runtime error if it is fatal. It is
// registered as a shutdown observer.
func (a *Agent) CaptureShutdown(ctx context.Context) {
	if !a.booted.Load() {
		return
	}
	for _, src := range a.cfg.lastErrors {
		var last *RuntimeError
		guard(func() { last = src.LastError() })
		if last == nil || !last.Severity.IsFatal() {
			continue
		}
		a.dispatch("shutdown", func() bool {
			return a.send(ctx, a.builder.FromException(ctx, last))
		})
	}
}

// CaptureDependencyErrors reports the last error recorded by each dependency
// layer. It is registered both as a request-end observer, where it sees the
// request's own queries, and as a shutdown observer.
func (a *Agent) CaptureDependencyErrors(ctx context.Context) {
	if !a.booted.Load() {
		return
	}
	for _, dep := range a.cfg.dependencies {
		var query, lastErr string
		guard(func() {
			lastErr = dep.LastError(ctx)
			query = dep.LastQuery(ctx)
		})
		if lastErr == "" {
			continue
		}
		a.dispatch("dependency", func() bool {
			event := a.builder.Message(ctx, LevelError, DatabasePrefix+lastErr,
				KeyLastQuery, query,
				KeyDatabaseErr, lastErr)
			return a.send(ctx, event)
		})
	}
}

// DieHandler wraps next so that every framework-initiated abort is reported
// before next runs. The returned handler always delegates to next.
func (a *Agent) DieHandler(next DieHandler) DieHandler {
	return func(ctx context.Context, reason any, title string, args map[string]any) {
		if a.booted.Load() {
			a.dispatch("die", func() bool {
				event := a.builder.Message(ctx, LevelError, DiePrefix+dieMessage(reason),
					KeyDieTitle, title)
				return a.send(ctx, event)
			})
		}
		if next != nil {
			next(ctx, reason, title, args)
		}
	}
}

func dieMessage(reason any) string {
	switch v := reason.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return DieDefault
	}
}

// dispatch runs a capture and absorbs any panic it raises.
func (a *Agent) dispatch(kind string, fn func() bool) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("msg", "DevPulse capture failed",
				"component", "dispatcher",
				"kind", kind,
				"error", fmt.Sprint(r))
			sent = false
		}
	}()
	return fn()
}
