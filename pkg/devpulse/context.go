// context.go provides utilities for propagating request-scoped capture state
// through Go context.Context.

package devpulse

import (
	"context"
	"net/http"
	"sync"
)

// Context key types (unexported to avoid collisions)
type requestKey struct{}
type adminKey struct{}
type scopeKey struct{}

// WithRequest returns a context with the inbound request attached.
// Events built from this context carry a request record.
func WithRequest(ctx context.Context, r *http.Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFromContext extracts the inbound request from ctx.
// Returns nil when the code is not serving a request (e.g. a CLI run).
func RequestFromContext(ctx context.Context) *http.Request {
	if ctx == nil {
		return nil
	}
	r, _ := ctx.Value(requestKey{}).(*http.Request)
	return r
}

// WithAdmin marks ctx as an administrative context.
func WithAdmin(ctx context.Context) context.Context {
	return context.WithValue(ctx, adminKey{}, true)
}

// IsAdminContext reports whether ctx was marked by WithAdmin.
func IsAdminContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(adminKey{}).(bool)
	return v
}

// Scope holds values recorded while serving one request, such as a database
// handle's last query. It is safe for concurrent use.
type Scope struct {
	mu     sync.Mutex
	values map[any]any
}

// WithScope returns a context carrying a new, empty Scope.
func WithScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &Scope{values: make(map[any]any)})
}

// ScopeFromContext returns the Scope attached by WithScope, or nil.
func ScopeFromContext(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}

// Load returns the value stored under key.
func (s *Scope) Load(key any) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Store sets the value for key.
func (s *Scope) Store(key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}
