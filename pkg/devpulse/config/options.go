package config

import (
	"fmt"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
	"github.com/strongdm/devpulse-go/pkg/devpulse/adapters/gohost"
	"github.com/strongdm/devpulse-go/pkg/devpulse/transports/blocking"
)

// AgentOptions translates c into agent options. logger may be nil.
func (c *Config) AgentOptions(logger devpulse.Logger) ([]devpulse.Option, error) {
	mask, err := c.ReportMask()
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	opts := []devpulse.Option{
		devpulse.WithReportMask(mask),
		devpulse.WithHomeURL(c.HomeURL),
		devpulse.WithOutboundRequests(c.AllowOutbound),
		devpulse.WithFallback(blocking.New(
			blocking.WithTimeout(c.Timeout()),
			blocking.WithUserAgent(devpulse.UserAgent()),
		)),
	}
	if logger != nil {
		opts = append(opts, devpulse.WithLogger(logger))
	}
	if c.Scrub {
		opts = append(opts, devpulse.WithDefaultScrubbing())
	}
	if c.CrashDir != "" {
		opts = append(opts, devpulse.WithLastErrorSource(gohost.PreviousCrash(c.CrashDir)))
	}
	if c.NonceSecret != "" {
		nonces, err := devpulse.NewNonceManager([]byte(c.NonceSecret), 0)
		if err != nil {
			return nil, fmt.Errorf("nonce_secret: %w", err)
		}
		opts = append(opts, devpulse.WithNonces(nonces))
	}
	return opts, nil
}

// EnableCrashCapture directs this process's runtime crash report into
// CrashDir and returns the file path. It does nothing when CrashDir is empty.
func (c *Config) EnableCrashCapture() (string, error) {
	if c.CrashDir == "" {
		return "", nil
	}
	path, err := gohost.EnableCrashOutput(c.CrashDir)
	if err != nil {
		return "", fmt.Errorf("crash_dir: %w", err)
	}
	return path, nil
}
