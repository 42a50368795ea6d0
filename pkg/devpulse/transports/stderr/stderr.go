// Package stderr provides a poster that prints events to stderr instead of
// sending them. Useful for dry runs and local debugging.
package stderr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"
)

// Option configures the stderr poster.
type Option func(*stderrConfig)

type stderrConfig struct {
	verbose bool
	out     io.Writer
}

// WithVerbose prints the full indented payload instead of a single line.
func WithVerbose() Option {
	return func(c *stderrConfig) {
		c.verbose = true
	}
}

// WithWriter redirects output (default: os.Stderr).
func WithWriter(w io.Writer) Option {
	return func(c *stderrConfig) {
		if w != nil {
			c.out = w
		}
	}
}

// Poster writes each payload to stderr. It is always available.
type Poster struct {
	verbose bool
	out     io.Writer
}

// New creates a stderr poster.
func New(opts ...Option) *Poster {
	cfg := &stderrConfig{out: os.Stderr}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Poster{verbose: cfg.verbose, out: cfg.out}
}

// Post prints the request line and body.
// Format: [DEVPULSE] <timestamp> POST <scheme>://<host>/... (<n> bytes)
func (p *Poster) Post(ctx context.Context, endpoint string, body []byte) error {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	fmt.Fprintf(p.out, "[DEVPULSE] %s POST %s (%d bytes)\n", timestamp, maskEndpoint(endpoint), len(body))

	if !p.verbose {
		fmt.Fprintf(p.out, "        %s\n", body)
		return nil
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, body, "        ", "  "); err != nil {
		fmt.Fprintf(p.out, "        %s\n", body)
		return nil
	}
	fmt.Fprintf(p.out, "        %s\n", indented.Bytes())
	return nil
}

// Available always reports true.
func (p *Poster) Available() bool {
	return true
}

// maskEndpoint keeps the scheme and host. The path and query carry the
// project key and are replaced with "/...".
func maskEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "[invalid endpoint]"
	}
	masked := u.Scheme + "://" + u.Host
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
		masked += "/..."
	}
	return masked
}
