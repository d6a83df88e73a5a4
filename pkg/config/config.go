// Package config loads engine settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding a config file path.
const EnvVar = "SKUA_CONFIG"

// Config holds every tunable of an engine instance.
type Config struct {
	GC      GCConfig      `yaml:"gc"`
	VM      VMConfig      `yaml:"vm"`
	Modules ModulesConfig `yaml:"modules"`
	Log     LogConfig     `yaml:"log"`

	// Path is the file the config was read from, empty for defaults.
	Path string `yaml:"-"`
}

type GCConfig struct {
	// Threshold is the number of allocations between implicit collections.
	Threshold int `yaml:"threshold"`
	// Stress collects at every safe point.
	Stress bool `yaml:"stress"`
}

type VMConfig struct {
	MaxCallDepth int `yaml:"max_call_depth"`
	// Strict treats scripts as strict mode code.
	Strict bool `yaml:"strict"`
}

type ModulesConfig struct {
	Root    string `yaml:"root"`
	Workers int    `yaml:"workers"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		GC:      GCConfig{Threshold: 65536},
		VM:      VMConfig{MaxCallDepth: 2000},
		Modules: ModulesConfig{Root: ".", Workers: 4},
		Log:     LogConfig{Level: "warn"},
	}
}

// ValidationError aggregates config validation failures.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("config")
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	b.WriteString(": invalid configuration:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// Load reads a YAML file over the defaults. Keys missing from the file
// keep their default values; unknown keys are an error.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", absPath, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", absPath, err)
	}
	cfg.Path = absPath
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML text over the defaults without validating it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// Resolve picks the configuration for a run: the file named by flagPath
// if set, else the file named by $SKUA_CONFIG, else the defaults.
func Resolve(flagPath string) (*Config, error) {
	if flagPath != "" {
		return Load(flagPath)
	}
	if env := os.Getenv(EnvVar); env != "" {
		return Load(env)
	}
	return Default(), nil
}

// Validate reports every out-of-range setting.
func (c *Config) Validate() error {
	var issues []string
	if c.GC.Threshold <= 0 {
		issues = append(issues, fmt.Sprintf("gc.threshold must be positive, got %d", c.GC.Threshold))
	}
	if c.VM.MaxCallDepth <= 0 {
		issues = append(issues, fmt.Sprintf("vm.max_call_depth must be positive, got %d", c.VM.MaxCallDepth))
	}
	if c.Modules.Workers <= 0 {
		issues = append(issues, fmt.Sprintf("modules.workers must be positive, got %d", c.Modules.Workers))
	}
	if c.Modules.Root == "" {
		issues = append(issues, "modules.root must not be empty")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		issues = append(issues, err.Error())
	}
	if len(issues) > 0 {
		return &ValidationError{Path: c.Path, Issues: issues}
	}
	return nil
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
	}
	return level, nil
}

// LogLevel returns the configured slog level, warn when unparsable.
func (c *Config) LogLevel() slog.Level {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelWarn
	}
	return level
}
