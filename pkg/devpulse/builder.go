// builder.go turns failures into events. It performs no I/O.

package devpulse

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Call-type separators used when a frame belongs to a method. They tell the
// viewer whether the method was invoked on a pointer or on a value receiver.
const (
	CallValue   = "."
	CallPointer = "->"
)

// Builder assembles events from failures and ambient context.
type Builder struct {
	collector *Collector
	now       func() time.Time
}

// NewBuilder creates a Builder that snapshots context with collector.
func NewBuilder(collector *Collector) *Builder {
	if collector == nil {
		collector = NewCollector()
	}
	return &Builder{collector: collector, now: time.Now}
}

// FromException builds an error-level event from err.
//
// The stack trace starts with a synthetic frame at the failure's origin
// (function null), followed by the captured call chain innermost first.
// The trace comes from the first Throwable in err's chain; errors without one
// produce only the origin frame.
func (b *Builder) FromException(ctx context.Context, err error) Event {
	if err == nil {
		err = errors.New("<nil>")
	}

	var file string
	var line int
	var trace []TraceFrame
	var t Throwable
	if errors.As(err, &t) {
		file, line = t.Origin()
		trace = t.Trace()
	}

	return Event{
		Level: LevelError,
		Exception: &Exception{
			Type:       typeName(err),
			Message:    err.Error(),
			Stacktrace: buildStacktrace(file, line, trace),
		},
		Context:   b.collector.Collect(ctx),
		Request:   b.collector.Request(ctx),
		Timestamp: b.timestamp(),
	}
}

// Message builds a non-exception event. kv are extra context pairs merged
// into the snapshot, e.g. "last_query", q.
func (b *Builder) Message(ctx context.Context, level Level, message string, kv ...string) Event {
	return Event{
		Level:     level,
		Message:   message,
		Context:   b.collector.Collect(ctx).With(kv...),
		Timestamp: b.timestamp(),
	}
}

func (b *Builder) timestamp() time.Time {
	return b.now().UTC().Truncate(time.Second)
}

func typeName(err error) string {
	if n, ok := err.(typeNamer); ok {
		return n.TypeName()
	}
	return fmt.Sprintf("%T", err)
}

func buildStacktrace(file string, line int, trace []TraceFrame) []Frame {
	frames := make([]Frame, 0, len(trace)+1)
	frames = append(frames, Frame{
		File: optionalString(file),
		Line: optionalLine(line),
	})
	for _, tf := range trace {
		frames = append(frames, Frame{
			File:     optionalString(tf.File),
			Line:     optionalLine(tf.Line),
			Function: FunctionName(tf.Function),
		})
	}
	return frames
}

var anonymousFuncPattern = regexp.MustCompile(`(^|\.)(func|gowrap|deferwrap)\d+(\.|$)|\.glob\.`)

// FunctionName converts a Go symbol into the display form used in frames.
//
//	example.com/pkg.(*Server).Serve  -> example.com/pkg.Server->Serve
//	example.com/pkg.Config.Validate  -> example.com/pkg.Config.Validate
//	example.com/pkg.Run              -> example.com/pkg.Run
//	example.com/pkg.Run.func1        -> nil
//	gopkg.in/yaml%2ev3.(*decoder).unmarshal -> gopkg.in/yaml.v3.decoder->unmarshal
func FunctionName(symbol string) *string {
	if symbol == "" {
		return nil
	}

	slash := strings.LastIndex(symbol, "/")
	pkgPath, rest := symbol[:slash+1], symbol[slash+1:]

	dot := strings.Index(rest, ".")
	if dot < 0 {
		return stringPtr(symbol)
	}
	// The runtime escapes dots in the last path element, e.g. "yaml%2ev3".
	pkg := pkgPath + strings.ReplaceAll(rest[:dot], "%2e", ".")
	name := rest[dot+1:]

	if anonymousFuncPattern.MatchString("." + name) {
		return nil
	}

	if strings.HasPrefix(name, "(*") {
		if end := strings.Index(name, ")."); end > 2 {
			return stringPtr(pkg + "." + name[2:end] + CallPointer + name[end+2:])
		}
	}

	if typ, method, ok := strings.Cut(name, "."); ok && typ != "init" {
		return stringPtr(pkg + "." + typ + CallValue + method)
	}
	return stringPtr(pkg + "." + name)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return stringPtr(s)
}

func optionalLine(line int) *int {
	if line <= 0 {
		return nil
	}
	return intPtr(line)
}
