// Package gohost adapts a plain Go process to devpulse.Hooks.
//
// A Runtime owns the process's native failure surfaces. Panics are recovered
// by Middleware, Go and Main. Recoverable errors arrive as slog records at
// Warn or Error level or through ReportError. Middleware also marks where each
// request ends. Process end runs through Main, Exit or Fatal, and Die aborts
// the current request.
package gohost

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
)

// DefaultShutdownTimeout bounds shutdown observers and exit hooks run by Exit.
const DefaultShutdownTimeout = 5 * time.Second

var osExit = os.Exit

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the log used for failures that have no other outlet.
func WithLogger(l devpulse.Logger) Option {
	return func(rt *Runtime) {
		if l != nil {
			rt.logger = l
		}
	}
}

// WithExitFunc replaces os.Exit.
func WithExitFunc(fn func(code int)) Option {
	return func(rt *Runtime) {
		if fn != nil {
			rt.exit = fn
		}
	}
}

// WithDieRenderer replaces the handler at the end of the die chain.
func WithDieRenderer(h devpulse.DieHandler) Option {
	return func(rt *Runtime) {
		if h != nil {
			rt.renderer = h
		}
	}
}

// Runtime implements devpulse.Hooks for a Go process.
type Runtime struct {
	*devpulse.Registry

	logger   devpulse.Logger
	exit     func(code int)
	renderer devpulse.DieHandler

	mu     sync.Mutex
	last   *devpulse.RuntimeError
	atExit []func(ctx context.Context) error

	shutdownOnce sync.Once
}

// New creates a Runtime with an empty hook registry.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		Registry: devpulse.NewRegistry(),
		logger:   devpulse.DefaultLogger(),
		exit:     osExit,
	}
	rt.renderer = rt.renderDie
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

type writerKey struct{}

// dieAbort unwinds a handler after Die has rendered the response.
type dieAbort struct{}

// Middleware attaches the request and a fresh request scope to the context
// and reports panics that escape next. The client receives a 500 response.
// Request-end observers run after next returns or panics.
func (rt *Runtime) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := devpulse.WithRequest(r.Context(), r)
		ctx = devpulse.WithScope(ctx)
		ctx = context.WithValue(ctx, writerKey{}, w)
		r = r.WithContext(ctx)

		defer rt.FireRequestEnd(ctx)
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			if _, ok := rec.(dieAbort); ok {
				return
			}
			rt.FireException(ctx, devpulse.NewPanicError(rec))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}

// AdminEndpoint serves registered admin actions, selected by the "action"
// query or form value.
func (rt *Runtime) AdminEndpoint() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := rt.AdminHandler(r.FormValue("action"))
		if !ok {
			http.Error(w, "unknown action", http.StatusBadRequest)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// Go runs fn in a new goroutine. A panic in fn is reported and does not
// crash the process. The returned channel is closed when fn returns.
func (rt *Runtime) Go(ctx context.Context, fn func(ctx context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if rec := recover(); rec != nil {
				rt.FireException(ctx, devpulse.NewPanicError(rec))
				rt.logger.Error("msg", "Goroutine panicked",
					"component", "gohost",
					"panic", fmt.Sprint(rec))
			}
		}()
		fn(ctx)
	}()
	return done
}

// ReportError reports a recoverable error at the caller's location and
// records it as the last error.
func (rt *Runtime) ReportError(ctx context.Context, sev devpulse.Severity, message string) bool {
	_, file, line, _ := runtime.Caller(1)
	return rt.raise(ctx, sev, message, file, line)
}

func (rt *Runtime) raise(ctx context.Context, sev devpulse.Severity, message, file string, line int) bool {
	rt.setLast(devpulse.NewRuntimeError(sev, message, file, line))
	return rt.FireError(ctx, sev, message, file, line)
}

func (rt *Runtime) setLast(e *devpulse.RuntimeError) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.last = e
}

// LastError returns the most recently recorded runtime error, or nil.
func (rt *Runtime) LastError() *devpulse.RuntimeError {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.last
}

// Die renders reason through the die chain. Inside a request served by
// Middleware it then aborts the handler; elsewhere it returns.
func (rt *Runtime) Die(ctx context.Context, reason any, title string, args map[string]any) {
	rt.DieChain(rt.renderer)(ctx, reason, title, args)
	if _, ok := ctx.Value(writerKey{}).(http.ResponseWriter); ok {
		panic(dieAbort{})
	}
}

// renderDie writes an HTML error page, or logs when there is no response.
func (rt *Runtime) renderDie(ctx context.Context, reason any, title string, args map[string]any) {
	message := fmt.Sprint(reason)
	if err, ok := reason.(error); ok {
		message = err.Error()
	}

	w, ok := ctx.Value(writerKey{}).(http.ResponseWriter)
	if !ok {
		rt.logger.Error("msg", "Request aborted",
			"component", "gohost",
			"title", title,
			"reason", message)
		return
	}

	status := http.StatusInternalServerError
	if code, ok := args["response"].(int); ok && code >= 400 && code < 600 {
		status = code
	}
	if title == "" {
		title = "Error"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>\n",
		html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
}

// AtExit registers fn to run after the shutdown observers, e.g. agent.Flush.
func (rt *Runtime) AtExit(fn func(ctx context.Context) error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.atExit = append(rt.atExit, fn)
}

// Shutdown runs the shutdown observers and then the exit hooks. Only the
// first call has any effect.
func (rt *Runtime) Shutdown(ctx context.Context) {
	rt.shutdownOnce.Do(func() {
		rt.FireShutdown(ctx)

		rt.mu.Lock()
		hooks := append([]func(context.Context) error(nil), rt.atExit...)
		rt.mu.Unlock()

		for _, fn := range hooks {
			if err := fn(ctx); err != nil {
				rt.logger.Warn("msg", "Exit hook failed",
					"component", "gohost",
					"error", err)
			}
		}
	})
}

// Exit shuts down and terminates the process with code.
func (rt *Runtime) Exit(code int) {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	rt.Shutdown(ctx)
	cancel()
	rt.exit(code)
}

// Fatal records message as a fatal error at the caller's location and exits
// with status 1.
func (rt *Runtime) Fatal(message string) {
	_, file, line, _ := runtime.Caller(1)
	rt.setLast(devpulse.NewRuntimeError(devpulse.SeverityFatal, message, file, line))
	rt.Exit(1)
}

// Main runs fn and then shuts down. A panic in fn is recorded as a fatal last
// error instead of crashing. It returns the process exit code.
//
//	os.Exit(rt.Main(ctx, run))
func (rt *Runtime) Main(ctx context.Context, fn func(ctx context.Context) error) (code int) {
	defer func() {
		if rec := recover(); rec != nil {
			perr := devpulse.NewPanicError(rec)
			file, line := perr.Origin()
			rt.setLast(devpulse.NewRuntimeError(devpulse.SeverityFatal, "Uncaught panic: "+perr.Error(), file, line).
				WithTrace(perr.Trace()))
			code = 2
		}
		rt.Shutdown(ctx)
	}()

	if err := fn(ctx); err != nil {
		rt.logger.Error("msg", "Run failed",
			"component", "gohost",
			"error", err)
		return 1
	}
	return 0
}
