// transport.go serializes events and delivers them to the ingest endpoint.

package devpulse

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/strongdm/devpulse-go/pkg/devpulse/transports/blocking"
)

// DefaultTimeout bounds connection setup for the preferred transport and the
// whole request for the fallback transport.
const DefaultTimeout = 2 * time.Second

// Poster delivers an encoded event to an endpoint.
type Poster interface {
	Post(ctx context.Context, endpoint string, body []byte) error
}

// AsyncPoster dispatches a request without waiting for the response.
// A nil error means the request was accepted for dispatch.
type AsyncPoster interface {
	Poster

	// Available reports whether the poster can still dispatch requests.
	// It returns false before start-up completes and after Close.
	Available() bool
}

// Transport sends events to a single endpoint. Send never panics and never
// returns an error: every failure is logged and reported as false.
type Transport struct {
	endpoint      string
	async         AsyncPoster
	sync          Poster
	allowOutbound bool
	scrubber      *Scrubber
	logger        Logger
	marshal       func(Event) ([]byte, error)
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithAsyncPoster sets the preferred fire-and-forget poster.
func WithAsyncPoster(p AsyncPoster) TransportOption {
	return func(t *Transport) {
		t.async = p
	}
}

// WithSyncPoster replaces the fallback poster (default: blocking poster with DefaultTimeout).
func WithSyncPoster(p Poster) TransportOption {
	return func(t *Transport) {
		if p != nil {
			t.sync = p
		}
	}
}

// WithOutbound enables or disables outbound requests on the fallback path.
func WithOutbound(allowed bool) TransportOption {
	return func(t *Transport) {
		t.allowOutbound = allowed
	}
}

// WithTransportScrubber applies s to every event before it is encoded.
func WithTransportScrubber(s *Scrubber) TransportOption {
	return func(t *Transport) {
		t.scrubber = s
	}
}

// WithTransportLogger sets the local diagnostic log.
func WithTransportLogger(l Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTransport creates a Transport for endpoint.
func NewTransport(endpoint string, opts ...TransportOption) *Transport {
	t := &Transport{
		endpoint:      endpoint,
		sync:          blocking.New(blocking.WithTimeout(DefaultTimeout)),
		allowOutbound: true,
		marshal:       EncodeEvent,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = DefaultLogger()
	}
	return t
}

// Endpoint returns the ingest URL events are sent to.
func (t *Transport) Endpoint() string {
	return t.endpoint
}

// Send encodes event and delivers it. It returns true when the event was
// accepted for dispatch (preferred path) or exchanged with the endpoint
// (fallback path), regardless of the HTTP status.
func (t *Transport) Send(ctx context.Context, event Event) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("msg", "DevPulse send failed",
				"component", "transport",
				"error", formatRecovered(r))
			sent = false
		}
	}()

	if t.scrubber != nil {
		event = t.scrubber.ScrubEvent(event)
	}

	body, err := t.marshal(event)
	if err != nil {
		t.logger.Error("msg", "DevPulse failed to encode event",
			"component", "transport",
			"error", err)
		return false
	}

	if t.async != nil && t.async.Available() {
		if err := t.async.Post(ctx, t.endpoint, body); err != nil {
			t.logger.Error("msg", "DevPulse dispatch failed",
				"component", "transport",
				"error", err)
			return false
		}
		return true
	}

	if !t.allowOutbound {
		t.logger.Error("msg", "DevPulse outbound requests are disabled; cannot send event via fallback transport",
			"component", "transport")
		return false
	}

	if err := t.sync.Post(ctx, t.endpoint, body); err != nil {
		t.logger.Error("msg", "DevPulse fallback request failed",
			"component", "transport",
			"error", err)
		return false
	}
	return true
}

// EncodeEvent encodes an event as UTF-8 JSON without HTML escaping, so
// slashes and non-ASCII text appear verbatim.
func EncodeEvent(event Event) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(event); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
