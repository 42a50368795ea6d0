// agent.go holds the process-wide capture state: the initialize-once latch,
// the latched configuration and the transport re-entrancy flag.

package devpulse

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/strongdm/devpulse-go/pkg/devpulse/transports/async"
	"github.com/strongdm/devpulse-go/pkg/devpulse/transports/blocking"
)

// Version is the agent version reported in the User-Agent header.
const Version = "0.3.0"

// DefaultEnvironment is the environment label used when none is configured.
const DefaultEnvironment = "production"

// UserAgent returns the User-Agent sent with every request.
func UserAgent() string {
	return "devpulse-go/" + Version
}

// Config is the activation configuration supplied by the host.
type Config struct {
	// Endpoint is the ingest URL. It embeds the project key.
	Endpoint string

	// Environment labels every event (default: "production").
	Environment string

	// Enabled switches capture on. Capture also requires a non-empty Endpoint.
	Enabled bool
}

// Active reports whether c allows capture to start.
func (c Config) Active() bool {
	return c.Enabled && strings.TrimSpace(c.Endpoint) != ""
}

// LastErrorSource reports the most recent runtime error, or nil if none.
type LastErrorSource interface {
	LastError() *RuntimeError
}

// DependencySource is a downstream layer, typically a database handle, that
// records its last query and last error. Inside a request scope (WithScope)
// it reports what that request did; elsewhere it reports work done outside
// any request.
type DependencySource interface {
	LastQuery(ctx context.Context) string
	LastError(ctx context.Context) string
}

// Option configures an Agent.
type Option func(*agentConfig)

type agentConfig struct {
	logger        Logger
	host          HostInfo
	homeURL       string
	reportMask    Severity
	scrubber      *Scrubber
	asyncPoster   AsyncPoster
	disableAsync  bool
	syncPoster    Poster
	allowOutbound bool
	lastErrors    []LastErrorSource
	dependencies  []DependencySource
	authorizer    Authorizer
	nonces        *NonceManager
	testLimiter   *rate.Limiter
}

// WithLogger sets the local diagnostic log (default: DefaultLogger()).
func WithLogger(l Logger) Option {
	return func(c *agentConfig) {
		c.logger = l
	}
}

// WithHost sets the host introspection surface used for context snapshots.
func WithHost(h HostInfo) Option {
	return func(c *agentConfig) {
		c.host = h
	}
}

// WithHomeURL sets the site URL request paths are resolved against.
func WithHomeURL(u string) Option {
	return func(c *agentConfig) {
		c.homeURL = u
	}
}

// WithReportMask sets the severities reported by CaptureError (default: SeverityAll).
func WithReportMask(mask Severity) Option {
	return func(c *agentConfig) {
		c.reportMask = mask
	}
}

// WithScrubbing redacts secrets from events before encoding.
func WithScrubbing(cfg ScrubberConfig) Option {
	return func(c *agentConfig) {
		c.scrubber = NewScrubber(cfg)
	}
}

// WithDefaultScrubbing enables scrubbing with production-safe defaults.
func WithDefaultScrubbing() Option {
	return WithScrubbing(DefaultScrubberConfig())
}

// WithAsync replaces the preferred fire-and-forget poster. The agent does not
// close a poster supplied this way.
func WithAsync(p AsyncPoster) Option {
	return func(c *agentConfig) {
		c.asyncPoster = p
	}
}

// WithoutAsync disables the preferred poster so every event uses the fallback.
func WithoutAsync() Option {
	return func(c *agentConfig) {
		c.disableAsync = true
	}
}

// WithFallback replaces the synchronous fallback poster.
func WithFallback(p Poster) Option {
	return func(c *agentConfig) {
		c.syncPoster = p
	}
}

// WithOutboundRequests allows or forbids fallback requests (default: allowed).
func WithOutboundRequests(allowed bool) Option {
	return func(c *agentConfig) {
		c.allowOutbound = allowed
	}
}

// WithLastErrorSource adds a source consulted by the shutdown fatal-error check.
func WithLastErrorSource(src LastErrorSource) Option {
	return func(c *agentConfig) {
		if src != nil {
			c.lastErrors = append(c.lastErrors, src)
		}
	}
}

// WithDependency adds a dependency layer checked for errors when a request
// ends and at shutdown.
func WithDependency(dep DependencySource) Option {
	return func(c *agentConfig) {
		if dep != nil {
			c.dependencies = append(c.dependencies, dep)
		}
	}
}

// WithAuthorizer sets who may trigger the connection test.
func WithAuthorizer(a Authorizer) Option {
	return func(c *agentConfig) {
		c.authorizer = a
	}
}

// WithNonces sets the anti-forgery token manager for the connection test.
func WithNonces(m *NonceManager) Option {
	return func(c *agentConfig) {
		c.nonces = m
	}
}

// WithTestRateLimit throttles connection tests (default: 1/s, burst 3).
func WithTestRateLimit(l *rate.Limiter) Option {
	return func(c *agentConfig) {
		c.testLimiter = l
	}
}

// Agent is the capture context object. One Agent is created per process by
// the entry point and injected into the host adapter.
type Agent struct {
	cfg agentConfig

	once   sync.Once
	booted atomic.Bool

	endpoint    string
	environment string

	// sending is set while the transport runs. A send attempted while it is
	// set fails immediately, so a failing transport cannot recurse.
	sending atomic.Bool
	skipped atomic.Uint64

	logger    Logger
	builder   *Builder
	transport *Transport
	ownAsync  *async.Poster
}

// New creates an uninitialized Agent.
func New(opts ...Option) *Agent {
	cfg := agentConfig{
		reportMask:    SeverityAll,
		allowOutbound: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = DefaultLogger()
	}
	if cfg.testLimiter == nil {
		cfg.testLimiter = rate.NewLimiter(rate.Limit(1), 3)
	}
	return &Agent{cfg: cfg, logger: cfg.logger}
}

// Start creates and initializes an Agent when cfg is active. It returns nil,
// registering nothing, when capture is disabled or no endpoint is set.
func Start(cfg Config, hooks Hooks, opts ...Option) *Agent {
	if !cfg.Active() {
		return nil
	}
	a := New(opts...)
	a.Init(cfg.Endpoint, cfg.Environment, hooks)
	return a
}

// Init latches the configuration and registers every capture entry point with
// hooks. Only the first call has any effect; it returns false for later calls
// and logs a warning when they carry a different configuration.
func (a *Agent) Init(endpoint, environment string, hooks Hooks) bool {
	if environment == "" {
		environment = DefaultEnvironment
	}

	first := false
	a.once.Do(func() {
		first = true
		a.endpoint = endpoint
		a.environment = environment
		a.setup()
		a.register(hooks)
		a.booted.Store(true)
	})

	if !first && (endpoint != a.endpoint || environment != a.environment) {
		a.logger.Warn("msg", "DevPulse already initialized; ignoring conflicting configuration",
			"component", "agent",
			"environment", environment)
	}
	return first
}

func (a *Agent) setup() {
	collector := NewCollector(
		WithHostInfo(a.cfg.host),
		WithEnvironment(a.environment),
		WithBaseURL(a.cfg.homeURL),
	)
	a.builder = NewBuilder(collector)

	fallback := a.cfg.syncPoster
	if fallback == nil {
		fallback = blocking.New(
			blocking.WithTimeout(DefaultTimeout),
			blocking.WithUserAgent(UserAgent()),
		)
	}
	topts := []TransportOption{
		WithOutbound(a.cfg.allowOutbound),
		WithTransportLogger(a.logger),
		WithTransportScrubber(a.cfg.scrubber),
		WithSyncPoster(fallback),
	}
	switch {
	case a.cfg.disableAsync:
	case a.cfg.asyncPoster != nil:
		topts = append(topts, WithAsyncPoster(a.cfg.asyncPoster))
	default:
		a.ownAsync = async.New(
			async.WithDialTimeout(DefaultTimeout),
			async.WithResponseTimeout(DefaultTimeout),
			async.WithUserAgent(UserAgent()),
		)
		topts = append(topts, WithAsyncPoster(a.ownAsync))
	}
	a.transport = NewTransport(a.endpoint, topts...)
}

func (a *Agent) register(hooks Hooks) {
	if hooks == nil {
		return
	}
	hooks.OnException(func(ctx context.Context, err error) {
		a.CaptureException(ctx, err)
	})
	hooks.OnError(a.CaptureError)
	hooks.OnShutdown(a.CaptureShutdown)
	hooks.OnShutdown(a.CaptureDependencyErrors)
	hooks.OnRequestEnd(a.CaptureDependencyErrors)
	hooks.FilterDie(a.DieHandler)
	hooks.HandleAdmin(TestAction, a.TestHandler())
}

// Initialized reports whether Init has run.
func (a *Agent) Initialized() bool {
	return a.booted.Load()
}

// Endpoint returns the latched ingest URL.
func (a *Agent) Endpoint() string {
	if !a.booted.Load() {
		return ""
	}
	return a.endpoint
}

// Environment returns the latched environment label.
func (a *Agent) Environment() string {
	if !a.booted.Load() {
		return ""
	}
	return a.environment
}

// send runs the transport unless a send is already in progress.
func (a *Agent) send(ctx context.Context, event Event) bool {
	if !a.sending.CompareAndSwap(false, true) {
		n := a.skipped.Add(1)
		a.logger.Debug("msg", "DevPulse send skipped; another send is in progress",
			"component", "agent",
			"level", string(event.Level),
			"skipped_total", n)
		return false
	}
	defer a.sending.Store(false)

	if a.transport == nil {
		return false
	}
	return a.transport.Send(ctx, event)
}

// Skipped returns the number of events dropped because another send was in
// progress, either nested inside the transport or from a concurrent goroutine.
func (a *Agent) Skipped() uint64 {
	return a.skipped.Load()
}

// Flush waits for dispatched requests to be answered or until ctx is done.
func (a *Agent) Flush(ctx context.Context) error {
	if a.ownAsync == nil {
		return nil
	}
	return a.ownAsync.Flush(ctx)
}

// Close stops the preferred poster. Events captured afterwards use the
// synchronous fallback.
func (a *Agent) Close() error {
	if a.ownAsync == nil {
		return nil
	}
	return a.ownAsync.Close()
}
