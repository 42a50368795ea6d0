// logger.go defines the local diagnostic log used by the capture pipeline.

package devpulse

import (
	"sync"

	"github.com/lixenwraith/log"
)

// Logger receives local diagnostics as key-value pairs, conventionally
// starting with "msg". *log.Logger from github.com/lixenwraith/log satisfies it.
type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
}

var (
	defaultLoggerOnce sync.Once
	defaultLogger     Logger
)

// DefaultLogger returns a process-wide logger writing to stderr. If the
// logger cannot be initialized, diagnostics are discarded.
func DefaultLogger() Logger {
	defaultLoggerOnce.Do(func() {
		l := log.NewLogger()
		err := l.InitWithDefaults(
			"disable_file=true",
			"enable_stdout=true",
			"stdout_target=stderr",
		)
		if err != nil {
			defaultLogger = nopLogger{}
			return
		}
		defaultLogger = l
	})
	return defaultLogger
}

type nopLogger struct{}

func (nopLogger) Debug(args ...any) {}
func (nopLogger) Info(args ...any)  {}
func (nopLogger) Warn(args ...any)  {}
func (nopLogger) Error(args ...any) {}
