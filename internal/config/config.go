// Package config provides unified configuration loading for autoscene.
// It supports loading from YAML files and environment variables.
package config

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config contains all autoscene configuration settings.
type Config struct {
	// Store selects where scene content lives while a scenario is open.
	Store StoreConfig `json:"store" yaml:"store"`

	// Container configures the composite .kbs codec.
	Container ContainerConfig `json:"container" yaml:"container"`

	// Viewer configures the local visualization server.
	Viewer ViewerConfig `json:"viewer" yaml:"viewer"`

	// Logging contains settings for operational logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Tracing configures OpenTelemetry spans for container and extraction work.
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// StoreConfig configures the per-scene stores.
type StoreConfig struct {
	// Backend is "memory" (default) or "sqlite".
	Backend string `json:"backend" yaml:"backend"`

	// Dir holds one SQLite database per scene. Supports ${VAR} syntax.
	// Only used by the sqlite backend; defaults to a temporary directory.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// ContainerConfig configures the container codec.
type ContainerConfig struct {
	// CompressionLevel is a gzip level from -2 (huffman only) to 9.
	// 0 selects the default level.
	CompressionLevel int `json:"compression_level" yaml:"compression_level"`

	// Backups is how many copies of an overwritten container are kept in
	// ~/.autoscene/backups. 0 disables backups.
	Backups int `json:"backups" yaml:"backups"`

	// BackupMaxAge additionally keeps every backup younger than this,
	// e.g. "72h". 0 keeps by count only.
	BackupMaxAge time.Duration `json:"backup_max_age" yaml:"backup_max_age"`
}

// ViewerConfig configures the viewer server.
type ViewerConfig struct {
	// Addr is the listen address; empty picks a free localhost port.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`

	// Open launches the default browser when the viewer starts.
	Open bool `json:"open" yaml:"open"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" additionally appends container events to events.jsonl in the store dir.
	Level string `json:"level" yaml:"level"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	// Enabled writes finished spans as JSON to stderr.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// SampleRatio is the fraction of root spans recorded, 0 to 1.
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		Container: ContainerConfig{
			Backups: 3,
		},
		Viewer: ViewerConfig{
			Open: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// Path returns the default config file location, ~/.autoscene/config.yaml.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".autoscene", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.autoscene/config.yaml -> environment variables
func Load() (*Config, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Dir = expandEnvVars(config.Store.Dir)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendSQLite:
	default:
		return fmt.Errorf("invalid store backend: %s (valid: memory, sqlite)", c.Store.Backend)
	}

	if l := c.Container.CompressionLevel; l < gzip.HuffmanOnly || l > gzip.BestCompression {
		return fmt.Errorf("compression_level must be between %d and %d, got %d", gzip.HuffmanOnly, gzip.BestCompression, l)
	}

	if c.Container.Backups < 0 {
		return fmt.Errorf("backups must not be negative, got %d", c.Container.Backups)
	}

	if c.Container.BackupMaxAge < 0 {
		return fmt.Errorf("backup_max_age must not be negative, got %s", c.Container.BackupMaxAge)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if r := c.Tracing.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("sample_ratio must be between 0 and 1, got %g", r)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("AUTOSCENE_STORE_BACKEND"); v != "" {
		config.Store.Backend = strings.ToLower(v)
	}

	if v := os.Getenv("AUTOSCENE_STORE_DIR"); v != "" {
		config.Store.Dir = v
	}

	if v := os.Getenv("AUTOSCENE_COMPRESSION_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Container.CompressionLevel = n
		}
	}

	if v := os.Getenv("AUTOSCENE_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Container.Backups = n
		}
	}

	if v := os.Getenv("AUTOSCENE_BACKUP_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Container.BackupMaxAge = d
		}
	}

	if v := os.Getenv("AUTOSCENE_VIEWER_ADDR"); v != "" {
		config.Viewer.Addr = v
	}

	if v := os.Getenv("AUTOSCENE_VIEWER_OPEN"); v != "" {
		config.Viewer.Open = v == "true" || v == "1"
	}

	if v := os.Getenv("AUTOSCENE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("AUTOSCENE_TRACING"); v != "" {
		config.Tracing.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("AUTOSCENE_TRACING_SAMPLE_RATIO"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			config.Tracing.SampleRatio = r
		}
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
