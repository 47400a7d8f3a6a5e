// Package config loads the invocation settings of a DAG program using koanf.
// Values are layered with priority: environment variables > config file
// (path in NAUTIKUS_CONFIG) > defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"

	"github.com/kination/nautikus/pkg/sdk/go/processing"
)

const (
	// EnvPrefix is shared by every variable this package reads.
	EnvPrefix = "NAUTIKUS_"
	// EnvConfigPath names an optional YAML file with the same keys.
	EnvConfigPath = EnvPrefix + "CONFIG"
)

// Config holds the settings of one process invocation.
type Config struct {
	// TaskName is set by the orchestrator inside a worker (NAUTIKUS_TASK_NAME).
	// Empty means compile mode.
	TaskName string `koanf:"task_name"`
	// SelectedBranch is the branch reported by an upstream selector (NAUTIKUS_SELECTED_BRANCH).
	SelectedBranch string `koanf:"selected_branch"`
	// OutputFormat is the manifest serialization: json or yaml. Empty keeps
	// the format chosen in code.
	OutputFormat string `koanf:"output_format"`
	// LogLevel is a zap level name (debug, info, warn, error).
	LogLevel    string `koanf:"log_level"`
	Development bool   `koanf:"development"`
}

// Defaults returns the default configuration values keyed by koanf path.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"task_name":       "",
		"selected_branch": "",
		"output_format":   "",
		"log_level":       "info",
		"development":     false,
	}
}

// Load reads defaults, the optional config file and then the environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	switch processing.Format(c.OutputFormat) {
	case "", processing.FormatJSON, processing.FormatYAML:
	default:
		return fmt.Errorf("output_format must be json or yaml, got %q", c.OutputFormat)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Format returns the manifest format.
func (c *Config) Format() processing.Format {
	return processing.Format(c.OutputFormat)
}

// Invocation maps the loaded signals to a compile or dispatch invocation.
func (c *Config) Invocation() processing.Invocation {
	if c.TaskName == "" {
		return processing.CompileInvocation()
	}
	return processing.DispatchInvocation(c.TaskName, c.SelectedBranch)
}

// envTransform converts environment variable names to config keys
// Example: NAUTIKUS_TASK_NAME -> task_name
func envTransform(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}
