// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/jmylchreest/shellnotifyd/internal/model"
)

// AppName is used for directory names and self-notifications.
const AppName = "shellnotifyd"

// Config is the configuration for shellnotifyd.
// Loaded from ~/.config/shellnotifyd/config.toml
type Config struct {
	Server   ServerConfig  `toml:"server"`
	Timeouts TimeoutConfig `toml:"timeouts"`
	History  HistoryConfig `toml:"history"`
	Log      LogConfig     `toml:"log"`
}

// ServerConfig controls bus name ownership and GetServerInformation.
type ServerConfig struct {
	Name             string `toml:"name"`
	Vendor           string `toml:"vendor"`
	Version          string `toml:"version"`
	SpecVersion      string `toml:"spec_version"`
	Replace          bool   `toml:"replace"`           // Take the name over from a running daemon
	AllowReplacement bool   `toml:"allow_replacement"` // Let a later daemon take the name from us
	NotifyOnReload   bool   `toml:"notify_on_reload"`  // Post a notification when the config is reloaded
}

// TimeoutConfig contains timeout settings per urgency level, applied when a
// client asks for the server default. A value of "0" or 0 means never expire.
type TimeoutConfig struct {
	Low      Duration `toml:"low"`      // e.g., "5s", "1m", or 5000
	Normal   Duration `toml:"normal"`   // e.g., "10s", "1m", or 10000
	Critical Duration `toml:"critical"` // e.g., "0" for never expire
}

// HistoryConfig controls the journal of closed notifications.
type HistoryConfig struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`        // Empty = $XDG_DATA_HOME/shellnotifyd/history.jsonl
	MaxEntries int    `toml:"max_entries"` // 0 = unlimited
}

// LogConfig controls daemon logging.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:             "ShellNotificationServer",
			Vendor:           "Shell",
			Version:          "1.0",
			SpecVersion:      "1.2",
			Replace:          false,
			AllowReplacement: true,
			NotifyOnReload:   true,
		},
		Timeouts: TimeoutConfig{
			Low:      Duration(5 * time.Second),
			Normal:   Duration(10 * time.Second),
			Critical: Duration(0), // Never expires
		},
		History: HistoryConfig{
			Enabled:    true,
			MaxEntries: 1000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, AppName, "config.toml")
}

// DataPath returns the path to the data directory.
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func DataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, AppName)
}

// HistoryPath returns the history journal location, honouring history.path.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return expandPath(c.History.Path)
	}
	return filepath.Join(DataPath(), "history.jsonl")
}

// Load loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then overlay with file contents
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name must not be empty")
	}
	if c.Server.SpecVersion == "" {
		return errors.New("server.spec_version must not be empty")
	}

	for name, d := range map[string]Duration{
		"low":      c.Timeouts.Low,
		"normal":   c.Timeouts.Normal,
		"critical": c.Timeouts.Critical,
	} {
		if d < 0 {
			return fmt.Errorf("timeouts.%s must not be negative, got %s", name, d.Duration())
		}
	}

	if c.History.MaxEntries < 0 {
		return fmt.Errorf("history.max_entries must not be negative, got %d", c.History.MaxEntries)
	}

	if _, err := c.LogLevel(); err != nil {
		return err
	}

	return nil
}

// TimeoutFor returns the default expiry for the given urgency level.
func (c *Config) TimeoutFor(u model.Urgency) time.Duration {
	switch u {
	case model.UrgencyLow:
		return c.Timeouts.Low.Duration()
	case model.UrgencyCritical:
		return c.Timeouts.Critical.Duration()
	default: // Normal or unknown
		return c.Timeouts.Normal.Duration()
	}
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log.level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
