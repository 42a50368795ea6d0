package devpulse

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
)

// recordingPoster captures posted bodies.
type recordingPoster struct {
	mu        sync.Mutex
	bodies    [][]byte
	endpoints []string
	err       error
	available bool
	onPost    func()
}

func newRecordingPoster() *recordingPoster {
	return &recordingPoster{available: true}
}

func (p *recordingPoster) Post(ctx context.Context, endpoint string, body []byte) error {
	if p.onPost != nil {
		p.onPost()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.bodies = append(p.bodies, append([]byte(nil), body...))
	p.endpoints = append(p.endpoints, endpoint)
	return nil
}

func (p *recordingPoster) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

func (p *recordingPoster) setAvailable(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = v
}

func (p *recordingPoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bodies)
}

func (p *recordingPoster) events(t *testing.T) []Event {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]Event, 0, len(p.bodies))
	for _, b := range p.bodies {
		var e Event
		if err := json.Unmarshal(b, &e); err != nil {
			t.Fatalf("posted body is not an event: %v\n%s", err, b)
		}
		events = append(events, e)
	}
	return events
}

// countingLogger records log lines by level.
type countingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *countingLogger) record(level string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprint(args...))
}

func (l *countingLogger) Debug(args ...any) { l.record("DEBUG", args...) }
func (l *countingLogger) Info(args ...any)  { l.record("INFO", args...) }
func (l *countingLogger) Warn(args ...any)  { l.record("WARN", args...) }
func (l *countingLogger) Error(args ...any) { l.record("ERROR", args...) }

func (l *countingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

func (l *countingLogger) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// stubHost is a HostInfo with fixed answers.
type stubHost struct {
	framework  string
	extensions []string
	theme      string
	admin      bool
	multisite  bool
}

func (h stubHost) FrameworkVersion() string         { return h.framework }
func (h stubHost) ActiveExtensions() []string       { return h.extensions }
func (h stubHost) Theme() string                    { return h.theme }
func (h stubHost) IsAdmin(ctx context.Context) bool { return h.admin }
func (h stubHost) IsMultisite() bool                { return h.multisite }

// panickingHost fails every lookup.
type panickingHost struct{}

func (panickingHost) FrameworkVersion() string         { panic("framework unavailable") }
func (panickingHost) ActiveExtensions() []string       { panic("extensions unavailable") }
func (panickingHost) Theme() string                    { panic("theme unavailable") }
func (panickingHost) IsAdmin(ctx context.Context) bool { panic("admin unavailable") }
func (panickingHost) IsMultisite() bool                { panic("multisite unavailable") }

const testEndpoint = "https://ingest.example.com/api/v1/projects/abc/events"

// newTestAgent returns an initialized agent whose preferred poster is p.
func newTestAgent(t *testing.T, p *recordingPoster, hooks Hooks, opts ...Option) (*Agent, *countingLogger) {
	t.Helper()
	logger := &countingLogger{}
	base := []Option{
		WithLogger(logger),
		WithAsync(p),
		WithFallback(p),
		WithHost(stubHost{framework: "example.com/app@v1.2.3", theme: "default"}),
	}
	a := New(append(base, opts...)...)
	if !a.Init(testEndpoint, "staging", hooks) {
		t.Fatal("Init returned false on first call")
	}
	return a, logger
}
