// admin.go serves the administrator-only connection test.

package devpulse

import (
	"context"
	"encoding/json"
	"net/http"
)

// TestAction names the connection-test action for nonces and host routing.
const TestAction = "devpulse_test"

// TestMessage is the message of the event sent by the connection test.
const TestMessage = "DevPulse connection test"

// Connection-test response texts.
const (
	MsgEventSent       = "Event sent!"
	MsgForbidden       = "Insufficient permissions"
	MsgInvalidNonce    = "Invalid nonce"
	MsgNotConfigured   = "DSN is not configured"
	MsgSendFailed      = "Could not connect to DevPulse server — check DSN and network"
	MsgTooManyRequests = "Too many requests"
	MsgBadMethod       = "Method not allowed"
)

// Authorizer decides whether a request may run administrative actions.
// It returns the caller's identity, which nonces are bound to.
type Authorizer interface {
	Authorize(r *http.Request) (subject string, ok bool)
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(r *http.Request) (string, bool)

func (f AuthorizerFunc) Authorize(r *http.Request) (string, bool) { return f(r) }

// Response is the JSON envelope returned by administrative handlers.
type Response struct {
	Success bool   `json:"success"`
	Data    string `json:"data"`
}

// NonceHeader carries the connection-test nonce for non-form clients.
const NonceHeader = "X-DevPulse-Nonce"

// TestHandler returns the connection-test handler. It expects a POST with a
// "nonce" form value (or NonceHeader) issued for TestAction to the
// authorized subject.
func (a *Agent) TestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeResponse(w, http.StatusMethodNotAllowed, false, MsgBadMethod)
			return
		}

		subject, ok := a.authorize(r)
		if !ok {
			writeResponse(w, http.StatusForbidden, false, MsgForbidden)
			return
		}
		if !a.cfg.nonces.Verify(nonceFrom(r), TestAction, subject) {
			writeResponse(w, http.StatusForbidden, false, MsgInvalidNonce)
			return
		}

		if a.Endpoint() == "" {
			writeResponse(w, http.StatusOK, false, MsgNotConfigured)
			return
		}
		if !a.cfg.testLimiter.Allow() {
			writeResponse(w, http.StatusTooManyRequests, false, MsgTooManyRequests)
			return
		}

		if !a.SendTest(WithAdmin(r.Context())) {
			writeResponse(w, http.StatusOK, false, MsgSendFailed)
			return
		}
		writeResponse(w, http.StatusOK, true, MsgEventSent)
	})
}

// SendTest sends an info-level connection-test event and reports whether it
// was handed off.
func (a *Agent) SendTest(ctx context.Context) bool {
	if !a.booted.Load() {
		return false
	}
	return a.dispatch("test", func() bool {
		return a.send(ctx, a.builder.Message(ctx, LevelInfo, TestMessage))
	})
}

// NonceHandler returns a handler that issues a connection-test nonce to an
// authorized caller. The settings page fetches one before posting the test.
func (a *Agent) NonceHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := a.authorize(r)
		if !ok {
			writeResponse(w, http.StatusForbidden, false, MsgForbidden)
			return
		}
		if a.cfg.nonces == nil {
			writeResponse(w, http.StatusServiceUnavailable, false, "Nonces are not configured")
			return
		}
		token, err := a.cfg.nonces.Create(TestAction, subject)
		if err != nil {
			a.logger.Error("msg", "Failed to issue nonce",
				"component", "admin",
				"error", err)
			writeResponse(w, http.StatusInternalServerError, false, "Could not issue nonce")
			return
		}
		writeResponse(w, http.StatusOK, true, token)
	})
}

// authorize denies every request when no Authorizer is configured.
func (a *Agent) authorize(r *http.Request) (string, bool) {
	if a.cfg.authorizer == nil {
		return "", false
	}
	return a.cfg.authorizer.Authorize(r)
}

func nonceFrom(r *http.Request) string {
	if v := r.Header.Get(NonceHeader); v != "" {
		return v
	}
	return r.FormValue("nonce")
}

func writeResponse(w http.ResponseWriter, status int, success bool, data string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Success: success, Data: data})
}
