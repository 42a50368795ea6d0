// throwable.go provides errors that remember where they were raised.

package devpulse

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// maxTraceDepth bounds the number of frames captured per error.
const maxTraceDepth = 64

// TraceFrame is a raw call-chain entry as reported by the Go runtime.
type TraceFrame struct {
	// Function is the fully qualified symbol, e.g. "example.com/pkg.(*T).Method".
	Function string
	File     string
	Line     int
}

// Throwable is an error that carries its origin and captured call chain.
type Throwable interface {
	error

	// Origin returns the location where the failure was raised.
	Origin() (file string, line int)

	// Trace returns the captured call chain, innermost first.
	Trace() []TraceFrame
}

// typeNamer lets a Throwable report the type name of the failure it wraps.
type typeNamer interface {
	TypeName() string
}

// WithStack annotates err with the caller's stack.
// It returns nil for a nil error and err itself if it already carries a trace.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	var t Throwable
	if errors.As(err, &t) {
		return err
	}
	return newTracedError(err, 2)
}

type tracedError struct {
	err   error
	trace []TraceFrame
}

func newTracedError(err error, skip int) *tracedError {
	return &tracedError{err: err, trace: captureTrace(skip + 1)}
}

func (e *tracedError) Error() string { return e.err.Error() }

func (e *tracedError) Unwrap() error { return e.err }

func (e *tracedError) Origin() (string, int) { return originOf(e.trace) }

func (e *tracedError) Trace() []TraceFrame { return e.trace }

func (e *tracedError) TypeName() string { return fmt.Sprintf("%T", e.err) }

// RuntimeError is a runtime-reported failure with an explicit severity and location.
// Recoverable errors and fatal errors found at shutdown are wrapped in it.
type RuntimeError struct {
	Severity Severity
	Message  string
	File     string
	Line     int

	trace []TraceFrame
}

// NewRuntimeError creates a RuntimeError and captures the caller's stack.
func NewRuntimeError(sev Severity, message, file string, line int) *RuntimeError {
	return newRuntimeError(sev, message, file, line, 2)
}

func newRuntimeError(sev Severity, message, file string, line, skip int) *RuntimeError {
	return &RuntimeError{
		Severity: sev,
		Message:  message,
		File:     file,
		Line:     line,
		trace:    captureTrace(skip + 1),
	}
}

func (e *RuntimeError) Error() string { return e.Message }

func (e *RuntimeError) Origin() (string, int) { return e.File, e.Line }

func (e *RuntimeError) Trace() []TraceFrame { return e.trace }

// WithTrace replaces the captured call chain.
func (e *RuntimeError) WithTrace(trace []TraceFrame) *RuntimeError {
	e.trace = trace
	return e
}

// PanicError is a recovered panic value together with the panicking goroutine's stack.
type PanicError struct {
	Value any

	trace []TraceFrame
}

// NewPanicError wraps a recovered value. It must be called from the deferred
// function that recovered the panic so that the panic site is still on the stack.
func NewPanicError(recovered any) *PanicError {
	return &PanicError{
		Value: recovered,
		trace: trimPanicFrames(captureTrace(2)),
	}
}

func (e *PanicError) Error() string { return formatRecovered(e.Value) }

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func (e *PanicError) Origin() (string, int) { return originOf(e.trace) }

func (e *PanicError) Trace() []TraceFrame { return e.trace }

// TypeName reports the panic value's type for error values and "panic" otherwise.
func (e *PanicError) TypeName() string {
	if err, ok := e.Value.(error); ok {
		return fmt.Sprintf("%T", err)
	}
	return "panic"
}

// captureTrace returns the stack of the caller skip frames above captureTrace.
func captureTrace(skip int) []TraceFrame {
	pcs := make([]uintptr, maxTraceDepth)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	trace := make([]TraceFrame, 0, n)
	for {
		frame, more := frames.Next()
		trace = append(trace, TraceFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more {
			break
		}
	}
	return trace
}

// trimPanicFrames drops the recovery machinery above the panic site.
func trimPanicFrames(trace []TraceFrame) []TraceFrame {
	for i, f := range trace {
		if f.Function != "runtime.gopanic" {
			continue
		}
		rest := trace[i+1:]
		for len(rest) > 0 && strings.HasPrefix(rest[0].Function, "runtime.") {
			rest = rest[1:]
		}
		return rest
	}
	return trace
}

func originOf(trace []TraceFrame) (string, int) {
	if len(trace) == 0 {
		return "", 0
	}
	return trace[0].File, trace[0].Line
}

// formatRecovered formats a recovered panic value as a string.
func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}
