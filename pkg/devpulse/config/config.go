// Package config loads agent settings from defaults, a TOML settings file and
// DEVPULSE_* environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/strongdm/devpulse-go/pkg/devpulse"
)

// Config is the complete agent configuration.
type Config struct {
	// DSN is the ingest endpoint URL. It embeds the project key.
	DSN string `toml:"dsn"`

	// Env labels every event (default: "production").
	Env string `toml:"env"`

	// Enabled switches capture on.
	Enabled bool `toml:"enabled"`

	// Report is a comma separated list of reported severities, or "all".
	Report string `toml:"report"`

	// HomeURL is the public site URL request paths are resolved against.
	HomeURL string `toml:"home_url"`

	// AllowOutbound permits blocking fallback requests.
	AllowOutbound bool `toml:"allow_outbound"`

	// TimeoutMs bounds the fallback request.
	TimeoutMs int64 `toml:"timeout_ms"`

	// NonceSecret signs connection-test nonces.
	NonceSecret string `toml:"nonce_secret"`

	// CrashDir receives runtime crash reports (EnableCrashCapture). Crashes of
	// earlier runs found there are reported at shutdown, and it is the default
	// directory of "devpulse crashwatch". Empty disables crash capture.
	CrashDir string `toml:"crash_dir"`

	// Scrub redacts secrets from events before they leave the process.
	Scrub bool `toml:"scrub"`

	Log LogConfig `toml:"log"`
}

// LogConfig selects the local diagnostic log.
type LogConfig struct {
	// Level: "debug", "info", "warn", "error"
	Level string `toml:"level"`

	// Output: "stderr", "stdout", "none"
	Output string `toml:"output"`
}

func defaults() *Config {
	return &Config{
		Env:           devpulse.DefaultEnvironment,
		Enabled:       false,
		Report:        "all",
		AllowOutbound: true,
		TimeoutMs:     devpulse.DefaultTimeout.Milliseconds(),
		Scrub:         true,
		Log: LogConfig{
			Level:  "warn",
			Output: "stderr",
		},
	}
}

// Timeout returns the fallback request timeout.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return devpulse.DefaultTimeout
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ReportMask parses Report.
func (c *Config) ReportMask() (devpulse.Severity, error) {
	return devpulse.ParseSeverityMask(c.Report)
}

// ToAgentConfig returns the activation part of c.
func (c *Config) ToAgentConfig() devpulse.Config {
	return devpulse.Config{
		Endpoint:    strings.TrimSpace(c.DSN),
		Environment: c.Env,
		Enabled:     c.Enabled,
	}
}

func (c *Config) validate() error {
	if dsn := strings.TrimSpace(c.DSN); dsn != "" {
		u, err := url.Parse(dsn)
		if err != nil {
			return fmt.Errorf("dsn: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("dsn: unsupported scheme %q", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("dsn: missing host")
		}
	}
	if _, err := c.ReportMask(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if c.TimeoutMs < 0 {
		return fmt.Errorf("timeout_ms: must not be negative")
	}
	if _, err := parseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Output {
	case "stderr", "stdout", "none":
	default:
		return fmt.Errorf("log.output: invalid mode %q", c.Log.Output)
	}
	return nil
}
