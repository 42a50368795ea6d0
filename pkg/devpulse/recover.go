// recover.go provides deferred panic capture for goroutines and handlers that
// the host adapter does not wrap.

package devpulse

import "context"

// Recover captures a panic, reports it and returns the recovered value.
// It does not re-panic.
//
//	func worker(ctx context.Context) {
//	    defer agent.Recover(ctx)
//	    // code that might panic
//	}
func (a *Agent) Recover(ctx context.Context) any {
	r := recover()
	if r == nil {
		return nil
	}
	a.CaptureException(ctx, NewPanicError(r))
	return r
}

// RecoverAndRepanic reports a panic and then re-raises it, leaving the
// process's crash behavior unchanged.
func (a *Agent) RecoverAndRepanic(ctx context.Context) {
	r := recover()
	if r == nil {
		return
	}
	a.CaptureException(ctx, NewPanicError(r))
	panic(r)
}
