package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/autoscene/autoscene/internal/config"
)

// configKeys lists the settable keys in display order.
var configKeys = []string{
	"store.backend",
	"store.dir",
	"container.compression_level",
	"container.backups",
	"container.backup_max_age",
	"viewer.addr",
	"viewer.open",
	"logging.level",
	"tracing.enabled",
	"tracing.sample_ratio",
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage autoscene configuration",
		Long: `View and modify autoscene configuration settings.

Configuration is stored in ~/.autoscene/config.yaml. Environment variables
(AUTOSCENE_STORE_BACKEND, AUTOSCENE_LOG_LEVEL, ...) override the file.

Examples:
  autoscene config list                          # Show all settings
  autoscene config get store.backend             # Get a specific setting
  autoscene config set store.backend sqlite      # Set a setting
  autoscene config set store.dir '${HOME}/scenes'`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(cfg)
			}

			path, _ := config.Path()
			fmt.Fprintf(out, "Configuration (%s):\n", valueOrDefault(path, "unknown location"))
			for _, key := range configKeys {
				value, _ := getConfigValue(cfg, key)
				fmt.Fprintf(out, "  %-28s %v\n", key+":", value)
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]
			value := args[1]

			// Environment overrides are not persisted.
			cfg, err := loadConfigFile()
			if err != nil {
				return err
			}
			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			if err := saveConfig(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// loadConfigFile reads ~/.autoscene/config.yaml without environment
// overrides, falling back to defaults when the file does not exist.
func loadConfigFile() (*config.Config, error) {
	path, err := config.Path()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (interface{}, bool) {
	switch key {
	case "store.backend":
		return cfg.Store.Backend, true
	case "store.dir":
		return valueOrDefault(cfg.Store.Dir, "(temporary)"), true
	case "container.compression_level":
		return cfg.Container.CompressionLevel, true
	case "container.backups":
		return cfg.Container.Backups, true
	case "container.backup_max_age":
		return cfg.Container.BackupMaxAge.String(), true
	case "viewer.addr":
		return valueOrDefault(cfg.Viewer.Addr, "(any free port)"), true
	case "viewer.open":
		return cfg.Viewer.Open, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "tracing.enabled":
		return cfg.Tracing.Enabled, true
	case "tracing.sample_ratio":
		return cfg.Tracing.SampleRatio, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "store.backend":
		cfg.Store.Backend = value
	case "store.dir":
		cfg.Store.Dir = value
	case "container.compression_level":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid compression level: %s (must be an integer)", value)
		}
		cfg.Container.CompressionLevel = n
	case "container.backups":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid backup count: %s (must be an integer)", value)
		}
		cfg.Container.Backups = n
	case "container.backup_max_age":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid backup max age: %s (must be a duration like 72h)", value)
		}
		cfg.Container.BackupMaxAge = d
	case "viewer.addr":
		cfg.Viewer.Addr = value
	case "viewer.open":
		cfg.Viewer.Open = value == "true" || value == "1"
	case "logging.level":
		cfg.Logging.Level = value
	case "tracing.enabled":
		cfg.Tracing.Enabled = value == "true" || value == "1"
	case "tracing.sample_ratio":
		r, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid sample ratio: %s (must be a number)", value)
		}
		cfg.Tracing.SampleRatio = r
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// saveConfig writes the configuration to ~/.autoscene/config.yaml.
func saveConfig(cfg *config.Config) error {
	path, err := config.Path()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
