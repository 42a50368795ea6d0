// Package blocking provides a synchronous poster with a bounded timeout.
// It is the fallback used when fire-and-forget dispatch is unavailable.
package blocking

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// Option configures the poster.
type Option func(*config)

type config struct {
	timeout   time.Duration
	userAgent string
	client    *fasthttp.Client
}

// WithTimeout bounds the whole request (default: 2s).
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header (default: "devpulse-go").
func WithUserAgent(ua string) Option {
	return func(c *config) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithClient replaces the underlying fasthttp client.
func WithClient(client *fasthttp.Client) Option {
	return func(c *config) {
		c.client = client
	}
}

// Poster performs one synchronous POST per call. It never retries.
type Poster struct {
	client    *fasthttp.Client
	timeout   time.Duration
	userAgent string
}

// New creates a blocking poster.
func New(opts ...Option) *Poster {
	cfg := &config{
		timeout:   2 * time.Second,
		userAgent: "devpulse-go",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.client == nil {
		cfg.client = &fasthttp.Client{
			MaxConnsPerHost:               4,
			MaxIdleConnDuration:           10 * time.Second,
			ReadTimeout:                   cfg.timeout,
			WriteTimeout:                  cfg.timeout,
			DisableHeaderNamesNormalizing: true,
		}
	}
	return &Poster{
		client:    cfg.client,
		timeout:   cfg.timeout,
		userAgent: cfg.userAgent,
	}
}

// Post sends body as JSON and waits for the response. Any HTTP status counts
// as delivered; only transport-level failures are returned.
func (p *Poster) Post(ctx context.Context, endpoint string, body []byte) error {
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.SetUserAgent(p.userAgent)
	req.SetBody(body)

	if err := p.client.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("post to %s: %w", string(req.URI().Host()), err)
	}
	return nil
}
