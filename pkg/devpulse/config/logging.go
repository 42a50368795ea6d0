package config

import (
	"fmt"
	"strings"

	"github.com/lixenwraith/log"
)

// NewLogger builds the local diagnostic log described by c.
// The caller owns it and should call Shutdown before exit.
func (c LogConfig) NewLogger() (*log.Logger, error) {
	level, err := parseLogLevel(c.Level)
	if err != nil {
		return nil, err
	}

	args := []string{fmt.Sprintf("level=%d", level), "disable_file=true"}
	switch c.Output {
	case "none":
		args = append(args, "enable_stdout=false")
	case "stdout":
		args = append(args, "enable_stdout=true", "stdout_target=stdout")
	case "stderr", "":
		args = append(args, "enable_stdout=true", "stdout_target=stderr")
	default:
		return nil, fmt.Errorf("invalid log output mode: %s", c.Output)
	}

	logger := log.NewLogger()
	if err := logger.InitWithDefaults(args...); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func parseLogLevel(level string) (int, error) {
	switch strings.ToLower(level) {
	case "debug":
		return int(log.LevelDebug), nil
	case "info":
		return int(log.LevelInfo), nil
	case "warn", "warning", "":
		return int(log.LevelWarn), nil
	case "error":
		return int(log.LevelError), nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}
