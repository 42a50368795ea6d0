// event.go defines the event payload transmitted to the DevPulse ingest endpoint.

package devpulse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Level indicates the severity classification of an event.
type Level string

const (
	// LevelInfo is used for informational events such as connection tests.
	LevelInfo Level = "info"

	// LevelError is used for every captured failure.
	LevelError Level = "error"
)

// Event is the unit transmitted to the ingest endpoint.
// Either Message or Exception is populated.
type Event struct {
	Level     Level      `json:"level"`
	Message   string     `json:"message,omitempty"`
	Exception *Exception `json:"exception,omitempty"`
	Context   Context    `json:"context"`
	Request   *Request   `json:"request,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Exception describes an error-derived event.
type Exception struct {
	// Type is the runtime type name of the originating error.
	Type string `json:"type"`

	Message string `json:"message"`

	// Stacktrace is ordered innermost-first, starting with the origin frame.
	Stacktrace []Frame `json:"stacktrace"`
}

// Frame is one stack entry. Absent values are encoded as JSON null.
type Frame struct {
	File     *string `json:"file"`
	Line     *int    `json:"line"`
	Function *string `json:"function"`
}

// Request describes the inbound request being served when the event was built.
type Request struct {
	URL    string  `json:"url"`
	Method string  `json:"method"`
	IP     *string `json:"ip"`
}

// Context is the ambient snapshot taken at capture time.
type Context struct {
	// Runtime is the Go runtime version.
	Runtime string

	// Platform is always Platform.
	Platform string

	// Framework is the host framework (main module) version.
	Framework string

	// ActiveExtensions lists the host's active extensions.
	ActiveExtensions []string

	Theme       string
	Environment string

	// Memory is the peak memory usage of the process in bytes.
	Memory uint64

	IsAdmin   bool
	Multisite bool

	// Extra holds signal-specific diagnostics such as last_query.
	// Keys colliding with the fixed keys are dropped on encode.
	Extra map[string]string
}

// Platform is the fixed platform identifier reported in every context.
const Platform = "go"

// Fixed context keys.
const (
	keyRuntime    = "go"
	keyPlatform   = "platform"
	keyFramework  = "framework"
	keyExtensions = "active_extensions"
	keyTheme      = "theme"
	keyEnv        = "environment"
	keyMemory     = "memory"
	keyIsAdmin    = "is_admin"
	keyMultisite  = "multisite"
)

func isReservedContextKey(key string) bool {
	switch key {
	case keyRuntime, keyPlatform, keyFramework, keyExtensions, keyTheme,
		keyEnv, keyMemory, keyIsAdmin, keyMultisite:
		return true
	}
	return false
}

// With returns a copy of c with the given extra key-value pairs merged in.
func (c Context) With(kv ...string) Context {
	extra := make(map[string]string, len(c.Extra)+len(kv)/2)
	for k, v := range c.Extra {
		extra[k] = v
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if isReservedContextKey(kv[i]) {
			continue
		}
		extra[kv[i]] = kv[i+1]
	}
	c.Extra = extra
	return c
}

// MarshalJSON flattens the fixed fields and Extra into a single object.
func (c Context) MarshalJSON() ([]byte, error) {
	extensions := c.ActiveExtensions
	if extensions == nil {
		extensions = []string{}
	}

	m := make(map[string]any, 9+len(c.Extra))
	for k, v := range c.Extra {
		if !isReservedContextKey(k) {
			m[k] = v
		}
	}
	m[keyRuntime] = c.Runtime
	m[keyPlatform] = c.Platform
	m[keyFramework] = c.Framework
	m[keyExtensions] = extensions
	m[keyTheme] = c.Theme
	m[keyEnv] = c.Environment
	m[keyMemory] = c.Memory
	m[keyIsAdmin] = c.IsAdmin
	m[keyMultisite] = c.Multisite

	// EncodeEvent cannot undo escaping done here; extras stay verbatim.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (c *Context) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = Context{}
	fields := map[string]any{
		keyRuntime:    &c.Runtime,
		keyPlatform:   &c.Platform,
		keyFramework:  &c.Framework,
		keyExtensions: &c.ActiveExtensions,
		keyTheme:      &c.Theme,
		keyEnv:        &c.Environment,
		keyMemory:     &c.Memory,
		keyIsAdmin:    &c.IsAdmin,
		keyMultisite:  &c.Multisite,
	}

	for key, value := range raw {
		if dst, ok := fields[key]; ok {
			if err := json.Unmarshal(value, dst); err != nil {
				return fmt.Errorf("context field %q: %w", key, err)
			}
			continue
		}

		if c.Extra == nil {
			c.Extra = make(map[string]string)
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			// Non-string extras are kept in their encoded form.
			s = string(value)
		}
		c.Extra[key] = s
	}
	return nil
}

func stringPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
