// collector.go gathers ambient host and runtime facts at capture time.

package devpulse

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
)

// HostInfo exposes the host framework's introspection surface.
// Any method may panic or return zero values; the collector tolerates both.
type HostInfo interface {
	FrameworkVersion() string
	ActiveExtensions() []string
	Theme() string
	IsAdmin(ctx context.Context) bool
	IsMultisite() bool
}

// Collector takes Context snapshots and extracts request metadata.
type Collector struct {
	host        HostInfo
	environment string
	homeURL     string
}

// CollectorOption configures a Collector.
type CollectorOption func(*Collector)

// WithHostInfo sets the host introspection surface (default: BuildInfoHost).
func WithHostInfo(host HostInfo) CollectorOption {
	return func(c *Collector) {
		if host != nil {
			c.host = host
		}
	}
}

// WithEnvironment sets the environment label reported in every context.
func WithEnvironment(env string) CollectorOption {
	return func(c *Collector) {
		c.environment = env
	}
}

// WithBaseURL sets the site URL against which request paths are resolved.
func WithBaseURL(homeURL string) CollectorOption {
	return func(c *Collector) {
		c.homeURL = homeURL
	}
}

// NewCollector creates a Collector with the given options.
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		host:        BuildInfoHost{},
		environment: DefaultEnvironment,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect returns the current context snapshot. It never fails: a lookup that
// panics leaves its field at the zero value.
func (c *Collector) Collect(ctx context.Context) Context {
	snap := Context{
		Runtime:     runtime.Version(),
		Platform:    Platform,
		Environment: c.environment,
	}

	guard(func() { snap.Framework = c.host.FrameworkVersion() })
	guard(func() { snap.ActiveExtensions = c.host.ActiveExtensions() })
	guard(func() { snap.Theme = c.host.Theme() })
	guard(func() { snap.Memory = peakMemoryBytes() })
	guard(func() { snap.IsAdmin = c.host.IsAdmin(ctx) || IsAdminContext(ctx) })
	guard(func() { snap.Multisite = c.host.IsMultisite() })

	if snap.ActiveExtensions == nil {
		snap.ActiveExtensions = []string{}
	}
	return snap
}

// Request returns sanitized metadata for the request attached to ctx, or nil.
func (c *Collector) Request(ctx context.Context) *Request {
	r := RequestFromContext(ctx)
	if r == nil {
		return nil
	}
	return sanitizeRequest(r, c.homeURL)
}

// BuildInfoHost reports the main module as the framework and its module
// dependencies as active extensions.
type BuildInfoHost struct {
	// ThemeName is reported as the active theme.
	ThemeName string

	// Multisite marks a multi-tenant deployment.
	Multisite bool
}

func (h BuildInfoHost) FrameworkVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	return info.Main.Path + "@" + info.Main.Version
}

func (h BuildInfoHost) ActiveExtensions() []string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	exts := make([]string, 0, len(info.Deps))
	for _, dep := range info.Deps {
		if dep.Replace != nil {
			dep = dep.Replace
		}
		exts = append(exts, dep.Path+"@"+dep.Version)
	}
	sort.Strings(exts)
	return exts
}

func (h BuildInfoHost) Theme() string { return h.ThemeName }

func (h BuildInfoHost) IsAdmin(ctx context.Context) bool { return false }

func (h BuildInfoHost) IsMultisite() bool { return h.Multisite }
