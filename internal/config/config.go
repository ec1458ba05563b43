// ABOUTME: Configuration loading and parsing for treesync
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/treesync/internal/backend"
	"github.com/2389/treesync/internal/tree"
)

// Config represents the complete treesync configuration
type Config struct {
	Database  backend.Config  `yaml:"database" toml:"database"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	Lifecycle LifecycleConfig `yaml:"lifecycle" toml:"lifecycle"`
	Pending   PendingConfig   `yaml:"pending" toml:"pending"`
	Journal   JournalConfig   `yaml:"journal" toml:"journal"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// CacheConfig declares the cached subtrees
type CacheConfig struct {
	DefaultOffset string          `yaml:"default_offset" toml:"default_offset"`
	Subtrees      []SubtreeConfig `yaml:"subtrees" toml:"subtrees"`
}

// SubtreeConfig declares how one subtree is classified
type SubtreeConfig struct {
	Name   string `yaml:"name" toml:"name"`
	Offset string `yaml:"offset" toml:"offset"`
	Shape  string `yaml:"shape" toml:"shape"` // auto, record or list
}

// LifecycleConfig holds lifecycle milestone switches
type LifecycleConfig struct {
	RouteChange bool `yaml:"route_change" toml:"route_change"`
}

// PendingConfig bounds the tracker of unconfirmed local changes
type PendingConfig struct {
	TTL           time.Duration `yaml:"-" toml:"-"`
	SweepInterval time.Duration `yaml:"-" toml:"-"`
	MaxSize       int           `yaml:"max_size" toml:"max_size"`

	// Raw string values for unmarshaling
	TTLRaw           string `yaml:"ttl" toml:"ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval" toml:"sweep_interval"`
}

// JournalConfig holds the SQLite journal location. An empty path disables it.
type JournalConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() *Config {
	return &Config{
		Database: backend.Config{Name: "default"},
		Cache:    CacheConfig{DefaultOffset: tree.DefaultOffset},
		Pending: PendingConfig{
			TTL:           5 * time.Minute,
			SweepInterval: time.Minute,
			MaxSize:       1000,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are read as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}

	seen := make(map[string]bool, len(c.Cache.Subtrees))
	for i, s := range c.Cache.Subtrees {
		if s.Name == "" {
			return fmt.Errorf("cache.subtrees[%d].name is required", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("cache.subtrees[%d]: duplicate subtree %q", i, s.Name)
		}
		seen[s.Name] = true
		if _, err := tree.ParseShape(s.Shape); err != nil {
			return fmt.Errorf("cache.subtrees[%d]: %w", i, err)
		}
	}

	if c.Pending.MaxSize < 0 {
		return fmt.Errorf("pending.max_size must not be negative")
	}
	if c.Pending.TTL < 0 {
		return fmt.Errorf("pending.ttl must not be negative")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// SubtreeOptions returns the classification options of every declared
// subtree. Subtrees without an offset use cache.default_offset.
func (c *Config) SubtreeOptions() map[string]tree.Options {
	out := make(map[string]tree.Options, len(c.Cache.Subtrees))
	for _, s := range c.Cache.Subtrees {
		shape, _ := tree.ParseShape(s.Shape)
		offset := s.Offset
		if offset == "" {
			offset = c.Cache.DefaultOffset
		}
		out[s.Name] = tree.Options{Offset: offset, Shape: shape}
	}
	return out
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Pending.TTLRaw != "" {
		cfg.Pending.TTL, err = time.ParseDuration(cfg.Pending.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing ttl %q: %w", cfg.Pending.TTLRaw, err)
		}
	}

	if cfg.Pending.SweepIntervalRaw != "" {
		cfg.Pending.SweepInterval, err = time.ParseDuration(cfg.Pending.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Pending.SweepIntervalRaw, err)
		}
	}

	return nil
}
