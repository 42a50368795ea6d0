// hooks.go defines the observer registration interface between the agent and a
// host runtime. A host adapter translates its native hook API into calls on
// a Registry.

package devpulse

import (
	"context"
	"net/http"
	"sync"
)

// ExceptionObserver is notified of failures that escaped the host's own handling.
type ExceptionObserver func(ctx context.Context, err error)

// ErrorObserver is notified of recoverable runtime errors. It returns true if
// it handled the error and native reporting should be suppressed.
type ErrorObserver func(ctx context.Context, sev Severity, message, file string, line int) (handled bool)

// ShutdownObserver runs once when the process ends.
type ShutdownObserver func(ctx context.Context)

// RequestObserver runs when the host finishes serving a request. ctx is the
// request's context.
type RequestObserver func(ctx context.Context)

// DieHandler aborts the current operation and renders reason to the client.
type DieHandler func(ctx context.Context, reason any, title string, args map[string]any)

// DieFilter wraps the die handler chain.
type DieFilter func(next DieHandler) DieHandler

// Hooks is the registration surface a host runtime exposes to the agent.
type Hooks interface {
	OnException(fn ExceptionObserver)
	OnError(fn ErrorObserver)
	OnShutdown(fn ShutdownObserver)
	OnRequestEnd(fn RequestObserver)
	FilterDie(fn DieFilter)
	HandleAdmin(action string, h http.Handler)
}

// Registry is an in-memory Hooks implementation. Host adapters embed it and
// call the Fire methods from their native hooks. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	exceptions []ExceptionObserver
	errors     []ErrorObserver
	shutdown   []ShutdownObserver
	requestEnd []RequestObserver
	die        []DieFilter
	admin      map[string]http.Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{admin: make(map[string]http.Handler)}
}

func (r *Registry) OnException(fn ExceptionObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exceptions = append(r.exceptions, fn)
}

func (r *Registry) OnError(fn ErrorObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, fn)
}

func (r *Registry) OnShutdown(fn ShutdownObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = append(r.shutdown, fn)
}

func (r *Registry) OnRequestEnd(fn RequestObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestEnd = append(r.requestEnd, fn)
}

func (r *Registry) FilterDie(fn DieFilter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.die = append(r.die, fn)
}

func (r *Registry) HandleAdmin(action string, h http.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.admin == nil {
		r.admin = make(map[string]http.Handler)
	}
	r.admin[action] = h
}

// Len returns the total number of registered observers, filters and handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.exceptions) + len(r.errors) + len(r.shutdown) + len(r.requestEnd) + len(r.die) + len(r.admin)
}

// FireException notifies every exception observer.
func (r *Registry) FireException(ctx context.Context, err error) {
	r.mu.RLock()
	observers := append([]ExceptionObserver(nil), r.exceptions...)
	r.mu.RUnlock()

	for _, fn := range observers {
		guard(func() { fn(ctx, err) })
	}
}

// FireError notifies every error observer and reports whether any handled it.
func (r *Registry) FireError(ctx context.Context, sev Severity, message, file string, line int) bool {
	r.mu.RLock()
	observers := append([]ErrorObserver(nil), r.errors...)
	r.mu.RUnlock()

	handled := false
	for _, fn := range observers {
		guard(func() {
			if fn(ctx, sev, message, file, line) {
				handled = true
			}
		})
	}
	return handled
}

// FireShutdown runs every shutdown observer in registration order.
func (r *Registry) FireShutdown(ctx context.Context) {
	r.mu.RLock()
	observers := append([]ShutdownObserver(nil), r.shutdown...)
	r.mu.RUnlock()

	for _, fn := range observers {
		guard(func() { fn(ctx) })
	}
}

// FireRequestEnd runs every request-end observer in registration order.
func (r *Registry) FireRequestEnd(ctx context.Context) {
	r.mu.RLock()
	observers := append([]RequestObserver(nil), r.requestEnd...)
	r.mu.RUnlock()

	for _, fn := range observers {
		guard(func() { fn(ctx) })
	}
}

// DieChain wraps base with every registered filter. The first registered
// filter is closest to base.
func (r *Registry) DieChain(base DieHandler) DieHandler {
	r.mu.RLock()
	filters := append([]DieFilter(nil), r.die...)
	r.mu.RUnlock()

	h := base
	for _, f := range filters {
		h = f(h)
	}
	return h
}

// AdminHandler returns the handler registered for action.
func (r *Registry) AdminHandler(action string) (http.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.admin[action]
	return h, ok
}

// guard runs fn and discards any panic so one observer cannot break the others.
func guard(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
