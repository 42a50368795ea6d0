package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lconfig "github.com/lixenwraith/config"
)

const envPrefix = "DEVPULSE_"

// Load reads the settings file at path (see Path) and the environment.
// A missing settings file is not an error.
func Load(path string) (*Config, error) {
	cfg, err := lconfig.NewBuilder().
		WithDefaults(defaults()).
		WithEnvPrefix(envPrefix).
		WithFile(path).
		WithEnvTransform(envTransform).
		WithSources(
			lconfig.SourceEnv,
			lconfig.SourceFile,
			lconfig.SourceDefault,
		).
		Build()

	if err != nil {
		if !strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	final := &Config{}
	if err := cfg.Scan("", final); err != nil {
		return nil, fmt.Errorf("failed to scan config: %w", err)
	}
	return final, final.validate()
}

// envTransform maps "log.level" to DEVPULSE_LOG_LEVEL.
func envTransform(path string) string {
	env := strings.ReplaceAll(path, ".", "_")
	return envPrefix + strings.ToUpper(env)
}

// Path returns the settings file location: DEVPULSE_CONFIG_FILE, then
// DEVPULSE_CONFIG_DIR/devpulse.toml, then ~/.config/devpulse.toml.
func Path() string {
	if file := os.Getenv("DEVPULSE_CONFIG_FILE"); file != "" {
		if filepath.IsAbs(file) {
			return file
		}
		if dir := os.Getenv("DEVPULSE_CONFIG_DIR"); dir != "" {
			return filepath.Join(dir, file)
		}
		return file
	}

	if dir := os.Getenv("DEVPULSE_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "devpulse.toml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "devpulse.toml")
	}
	return "devpulse.toml"
}
