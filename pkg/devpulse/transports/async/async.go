// Package async provides a fire-and-forget poster.
//
// Post connects, writes the request and returns without waiting for the
// response. Connection setup and the write are bounded by a short timeout so
// that dispatch errors (unresolvable host, refused connection) are still
// reported to the caller. Responses are read and discarded by background
// workers; when too many responses are outstanding the oldest connections are
// not waited for.
package async

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrClosed is returned by Post after Close.
var ErrClosed = errors.New("async poster is closed")

// Option configures the poster.
type Option func(*asyncConfig)

type asyncConfig struct {
	queueSize       int
	workers         int
	dialTimeout     time.Duration
	responseTimeout time.Duration
	userAgent       string
	tlsConfig       *tls.Config
	onDropped       func(count int)
	dial            func(addr string, timeout time.Duration) (net.Conn, error)
}

// WithQueueSize sets the maximum number of responses awaited at once (default: 64).
func WithQueueSize(size int) Option {
	return func(c *asyncConfig) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithWorkers sets the number of background response readers (default: 2).
func WithWorkers(n int) Option {
	return func(c *asyncConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithDialTimeout bounds connection setup and the request write (default: 2s).
func WithDialTimeout(d time.Duration) Option {
	return func(c *asyncConfig) {
		if d > 0 {
			c.dialTimeout = d
		}
	}
}

// WithResponseTimeout bounds how long a background worker waits for a response (default: 2s).
func WithResponseTimeout(d time.Duration) Option {
	return func(c *asyncConfig) {
		if d > 0 {
			c.responseTimeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header (default: "devpulse-go").
func WithUserAgent(ua string) Option {
	return func(c *asyncConfig) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTLSConfig sets the TLS configuration for https endpoints.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *asyncConfig) {
		c.tlsConfig = cfg
	}
}

// WithOnDropped sets a callback invoked when a response is not awaited because
// the queue is full. The request itself has already been sent.
func WithOnDropped(fn func(count int)) Option {
	return func(c *asyncConfig) {
		c.onDropped = fn
	}
}

// Poster dispatches requests without waiting for their responses.
type Poster struct {
	cfg       asyncConfig
	queue     chan net.Conn
	done      chan struct{}
	closeOnce sync.Once
	closeMu   sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	inflight  atomic.Int64
}

// New creates a poster and starts its background workers.
func New(opts ...Option) *Poster {
	cfg := asyncConfig{
		queueSize:       64,
		workers:         2,
		dialTimeout:     2 * time.Second,
		responseTimeout: 2 * time.Second,
		userAgent:       "devpulse-go",
		dial:            fasthttp.DialTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Poster{
		cfg:   cfg,
		queue: make(chan net.Conn, cfg.queueSize),
		done:  make(chan struct{}),
	}

	p.wg.Add(cfg.workers)
	for i := 0; i < cfg.workers; i++ {
		go p.processLoop()
	}
	return p
}

// Available reports whether the poster accepts new requests.
func (p *Poster) Available() bool {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()
	return !p.closed
}

// Post dispatches a JSON POST to endpoint and returns once the request has
// been written. A nil error does not imply a successful response.
func (p *Poster) Post(ctx context.Context, endpoint string, body []byte) error {
	if !p.Available() {
		return ErrClosed
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)

	req.SetRequestURI(endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.SetUserAgent(p.cfg.userAgent)
	req.SetBody(body)

	uri := req.URI()
	host := string(uri.Host())
	if host == "" {
		return errors.New("endpoint has no host")
	}
	isTLS := string(uri.Scheme()) == "https"
	addr := fasthttp.AddMissingPort(host, isTLS)

	deadline := time.Now().Add(p.cfg.dialTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn, err := p.cfg.dial(addr, time.Until(deadline))
	if err != nil {
		return fmt.Errorf("dial %s: %w", host, err)
	}

	if isTLS {
		conn, err = p.handshake(ctx, conn, addr, deadline)
		if err != nil {
			return fmt.Errorf("tls handshake with %s: %w", host, err)
		}
	}

	_ = conn.SetWriteDeadline(deadline)
	bw := bufio.NewWriter(conn)
	err = req.Write(bw)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		conn.Close()
		return fmt.Errorf("write request to %s: %w", host, err)
	}

	p.track(conn)
	return nil
}

func (p *Poster) handshake(ctx context.Context, conn net.Conn, addr string, deadline time.Time) (net.Conn, error) {
	cfg := &tls.Config{}
	if p.cfg.tlsConfig != nil {
		cfg = p.cfg.tlsConfig.Clone()
	}
	if cfg.ServerName == "" {
		if h, _, err := net.SplitHostPort(addr); err == nil {
			cfg.ServerName = h
		}
	}

	tc := tls.Client(conn, cfg)
	_ = tc.SetDeadline(deadline)
	if err := tc.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tc, nil
}

// track hands the connection to the workers, or closes it if the queue is full.
func (p *Poster) track(conn net.Conn) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		conn.Close()
		return
	}

	p.inflight.Add(1)
	select {
	case p.queue <- conn:
	default:
		conn.Close()
		p.inflight.Add(-1)
		if p.cfg.onDropped != nil {
			p.cfg.onDropped(1)
		}
	}
}

// processLoop reads and discards responses.
func (p *Poster) processLoop() {
	defer p.wg.Done()
	for {
		select {
		case conn := <-p.queue:
			p.drain(conn)
		case <-p.done:
			// Requests are already sent; stop waiting for their responses.
			for {
				select {
				case conn := <-p.queue:
					conn.Close()
					p.inflight.Add(-1)
				default:
					return
				}
			}
		}
	}
}

func (p *Poster) drain(conn net.Conn) {
	defer p.inflight.Add(-1)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(p.cfg.responseTimeout))
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)
	_ = resp.Read(bufio.NewReader(conn))
}

// Flush blocks until every dispatched request has been answered, timed out
// or dropped, or until ctx is done.
func (p *Poster) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.inflight.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close stops the workers. Outstanding responses are no longer awaited and
// Available reports false afterwards.
func (p *Poster) Close() error {
	p.closeOnce.Do(func() {
		p.closeMu.Lock()
		p.closed = true
		p.closeMu.Unlock()

		close(p.done)
		p.wg.Wait()
	})
	return nil
}
