package devpulse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticLastError struct {
	err *RuntimeError
}

func (s staticLastError) LastError() *RuntimeError { return s.err }

type fakeDependency struct {
	query string
	err   string
}

func (d fakeDependency) LastQuery(ctx context.Context) string { return d.query }
func (d fakeDependency) LastError(ctx context.Context) string { return d.err }

func TestCaptureException_SendsErrorEvent(t *testing.T) {
	p := newRecordingPoster()
	agent, _ := newTestAgent(t, p, nil)

	assert.True(t, agent.CaptureException(context.Background(), errors.New("payment gateway timeout")))

	events := p.events(t)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, LevelError, e.Level)
	require.NotNil(t, e.Exception)
	assert.Equal(t, "*errors.errorString", e.Exception.Type)
	assert.Equal(t, "payment gateway timeout", e.Exception.Message)
	assert.Equal(t, "staging", e.Context.Environment)
	assert.Equal(t, "go", e.Context.Platform)

	// The origin frame is the caller of CaptureException.
	require.GreaterOrEqual(t, len(e.Exception.Stacktrace), 2)
	require.NotNil(t, e.Exception.Stacktrace[1].Function)
	assert.Equal(t, "github.com/strongdm/devpulse-go/pkg/devpulse.TestCaptureException_SendsErrorEvent",
		*e.Exception.Stacktrace[1].Function)
}

func TestCaptureException_Nil(t *testing.T) {
	p := newRecordingPoster()
	agent, _ := newTestAgent(t, p, nil)

	assert.False(t, agent.CaptureException(context.Background(), nil))
	assert.Zero(t, p.count())
}

func TestCaptureError_Mask(t *testing.T) {
	p := newRecordingPoster()
	agent, _ := newTestAgent(t, p, nil, WithReportMask(SeverityError|SeverityWarning))

	handled := agent.CaptureError(context.Background(), SeverityNotice, "Undefined variable", "/app/x.go", 3)
	assert.False(t, handled)
	assert.Zero(t, p.count(), "masked severities never reach the transport")

	handled = agent.CaptureError(context.Background(), SeverityWarning, "Division by zero", "/app/calc.go", 17)
	assert.False(t, handled, "native reporting always continues")

	events := p.events(t)
	require.Len(t, events, 1)
	frames := events[0].Exception.Stacktrace
	assert.Equal(t, "Division by zero", events[0].Exception.Message)
	assert.Equal(t, "/app/calc.go", *frames[0].File)
	assert.Equal(t, 17, *frames[0].Line)
	assert.Nil(t, frames[0].Function)
}

func TestCaptureShutdown_FatalLastError(t *testing.T) {
	p := newRecordingPoster()
	fatal := NewRuntimeError(SeverityFatal, "Allowed memory size exhausted", "/app/import.go", 88)
	agent, _ := newTestAgent(t, p, nil, WithLastErrorSource(staticLastError{fatal}))

	agent.CaptureShutdown(context.Background())

	events := p.events(t)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, LevelError, e.Level)
	assert.Equal(t, "Allowed memory size exhausted", e.Exception.Message)
	assert.Equal(t, "/app/import.go", *e.Exception.Stacktrace[0].File)
	assert.Equal(t, 88, *e.Exception.Stacktrace[0].Line)
}

func TestCaptureShutdown_IgnoresNonFatal(t *testing.T) {
	p := newRecordingPoster()
	warning := NewRuntimeError(SeverityWarning, "deprecated call", "/app/a.go", 1)
	agent, _ := newTestAgent(t, p, nil,
		WithLastErrorSource(staticLastError{warning}),
		WithLastErrorSource(staticLastError{nil}))

	agent.CaptureShutdown(context.Background())

	assert.Zero(t, p.count())
}

func TestCaptureDependencyErrors(t *testing.T) {
	p := newRecordingPoster()
	agent, _ := newTestAgent(t, p, nil,
		WithDependency(fakeDependency{query: "SELECT * FROM wp_missing", err: "no such table: wp_missing"}),
		WithDependency(fakeDependency{query: "SELECT 1"}))

	agent.CaptureDependencyErrors(context.Background())

	events := p.events(t)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, LevelError, e.Level)
	assert.Nil(t, e.Exception)
	assert.Equal(t, "Database error: no such table: wp_missing", e.Message)
	assert.Equal(t, "SELECT * FROM wp_missing", e.Context.Extra[KeyLastQuery])
	assert.Equal(t, "no such table: wp_missing", e.Context.Extra[KeyDatabaseErr])
}

func TestShutdownObserversThroughRegistry(t *testing.T) {
	reg := NewRegistry()
	p := newRecordingPoster()
	fatal := NewRuntimeError(SeverityCoreError, "startup failed", "/app/boot.go", 5)
	newTestAgent(t, p, reg,
		WithLastErrorSource(staticLastError{fatal}),
		WithDependency(fakeDependency{query: "INSERT", err: "disk full"}))

	reg.FireShutdown(context.Background())

	events := p.events(t)
	require.Len(t, events, 2)
	assert.Equal(t, "startup failed", events[0].Exception.Message)
	assert.Equal(t, "Database error: disk full", events[1].Message)
}

func TestDieHandler_ReportsThenDelegates(t *testing.T) {
	reg := NewRegistry()
	p := newRecordingPoster()
	newTestAgent(t, p, reg)

	type call struct {
		reason any
		title  string
		args   map[string]any
	}
	var calls []call
	base := func(ctx context.Context, reason any, title string, args map[string]any) {
		// The event is sent before the original handler runs.
		assert.Equal(t, len(calls)+1, p.count())
		calls = append(calls, call{reason, title, args})
	}
	die := reg.DieChain(base)

	die(context.Background(), "Sorry, you are not allowed to access this page.", "Forbidden", map[string]any{"response": 403})
	die(context.Background(), errors.New("nonce expired"), "", nil)
	die(context.Background(), 42, "Odd", nil)

	require.Len(t, calls, 3)
	assert.Equal(t, "Forbidden", calls[0].title)
	assert.Equal(t, 403, calls[0].args["response"])

	events := p.events(t)
	require.Len(t, events, 3)
	assert.Equal(t, "wp_die: Sorry, you are not allowed to access this page.", events[0].Message)
	assert.Equal(t, "Forbidden", events[0].Context.Extra[KeyDieTitle])
	assert.Equal(t, "wp_die: nonce expired", events[1].Message)
	assert.Equal(t, "", events[1].Context.Extra[KeyDieTitle])
	assert.Equal(t, "wp_die: wp_die called", events[2].Message)
}

func TestDieHandler_DelegatesWhenSendFails(t *testing.T) {
	p := newRecordingPoster()
	p.err = errors.New("unreachable")
	agent, _ := newTestAgent(t, p, nil)

	called := false
	agent.DieHandler(func(ctx context.Context, reason any, title string, args map[string]any) {
		called = true
	})(context.Background(), "bye", "", nil)

	assert.True(t, called)
}

type explodingError struct{}

func (explodingError) Error() string { panic("Error() exploded") }

func TestCaptureException_PanickingErrorIsContained(t *testing.T) {
	p := newRecordingPoster()
	agent, logger := newTestAgent(t, p, nil)

	var sent bool
	assert.NotPanics(t, func() {
		sent = agent.CaptureException(context.Background(), explodingError{})
	})
	assert.False(t, sent)
	assert.Zero(t, p.count())
	assert.Equal(t, 1, logger.count())
}
