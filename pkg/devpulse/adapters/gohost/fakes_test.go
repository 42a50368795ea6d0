package gohost

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
)

const testEndpoint = "https://collector.example/ingest/abc"

type recordingPoster struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (p *recordingPoster) Post(ctx context.Context, endpoint string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bodies = append(p.bodies, append([]byte(nil), body...))
	return nil
}

func (p *recordingPoster) Available() bool { return true }

func (p *recordingPoster) events(t *testing.T) []devpulse.Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]devpulse.Event, 0, len(p.bodies))
	for _, b := range p.bodies {
		var e devpulse.Event
		if err := json.Unmarshal(b, &e); err != nil {
			t.Fatalf("posted body is not an event: %v", err)
		}
		events = append(events, e)
	}
	return events
}

type discardLogger struct{}

func (discardLogger) Debug(args ...any) {}
func (discardLogger) Info(args ...any)  {}
func (discardLogger) Warn(args ...any)  {}
func (discardLogger) Error(args ...any) {}

// newTestRuntime returns a Runtime wired to an initialized agent that posts
// into the returned recorder.
func newTestRuntime(t *testing.T, opts ...Option) (*Runtime, *devpulse.Agent, *recordingPoster) {
	t.Helper()
	p := &recordingPoster{}
	rt := New(append([]Option{WithLogger(discardLogger{})}, opts...)...)
	agent := devpulse.New(
		devpulse.WithLogger(discardLogger{}),
		devpulse.WithAsync(p),
		devpulse.WithFallback(p),
		devpulse.WithLastErrorSource(rt),
	)
	if !agent.Init(testEndpoint, "test", rt) {
		t.Fatal("agent did not initialize")
	}
	return rt, agent, p
}
