// Package devpulse reports unhandled failures from a running Go service to a
// remote DevPulse ingest endpoint.
//
// The agent observes five kinds of failure through a host adapter: panics
// that escape a handler, recoverable runtime errors, fatal errors found at
// shutdown, framework-initiated aborts and errors recorded by a database layer.
// Each failure is turned into an Event with a context snapshot of the host
// and sent without delaying the host.
//
// # Core Components
//
//   - Event: the wire payload with an exception, context and request block
//   - Builder: converts errors and messages into events; performs no I/O
//   - Collector: snapshots the runtime and host, and sanitizes request metadata
//   - Transport: encodes events and delivers them fire-and-forget, falling back
//     to a bounded blocking request
//   - Agent: the initialize-once context object that registers the capture
//     entry points with a Hooks implementation
//
// # Quick Start
//
//	rt := gohost.New()
//	agent := devpulse.Start(devpulse.Config{
//	    Endpoint: os.Getenv("DEVPULSE_DSN"),
//	    Enabled:  true,
//	}, rt, devpulse.WithDefaultScrubbing(), devpulse.WithLastErrorSource(rt))
//	if agent != nil {
//	    rt.AtExit(agent.Flush)
//	}
//	defer rt.Shutdown(ctx)
//	http.ListenAndServe(":8080", rt.Middleware(mux))
//
// # Design Principles
//
//   - Capture never fails the host: every error inside the pipeline is logged
//     locally and reported as not sent
//   - A failing transport never triggers another send
//   - Initialization happens at most once per Agent
package devpulse
