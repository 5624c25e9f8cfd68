// Package config loads portal configuration: built-in defaults, an optional
// YAML file overlay, then environment variables on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default overlay file name.
const ConfigFileName = "portal.yaml"

// Config holds every runtime setting of the portal.
type Config struct {
	// Database configures the event store backend.
	Database DatabaseConfig `yaml:"database"`

	// Log configures logging output.
	Log LogConfig `yaml:"log"`

	// Serializer selects the event encoding: json or msgpack.
	Serializer string `yaml:"serializer" envconfig:"SERIALIZER"`

	// DefaultLocale seeds the portal configuration on first initialization.
	DefaultLocale string `yaml:"default_locale" envconfig:"DEFAULT_LOCALE"`
}

// DatabaseConfig holds event store backend settings.
type DatabaseConfig struct {
	// Driver is postgres or memory.
	Driver string `yaml:"driver" envconfig:"DB_DRIVER"`

	// URL is the connection string; required for postgres.
	URL string `yaml:"url" envconfig:"DATABASE_URL"`

	// Schema is the PostgreSQL schema holding the event tables.
	Schema string `yaml:"schema" envconfig:"DB_SCHEMA"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`

	// Format is text or json.
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "memory",
			Schema: "portal",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Serializer:    "json",
		DefaultLocale: "en-US",
	}
}

// Load builds the configuration for a directory. Settings not present in the
// overlay file or the environment keep their defaults.
func Load(dir string) (*Config, error) {
	cfg := Default()

	path := filepath.Join(dir, ConfigFileName)
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := envconfig.Process("PORTAL", cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("config: database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	switch c.Serializer {
	case "json", "msgpack":
	default:
		return fmt.Errorf("config: unknown serializer %q", c.Serializer)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// Save writes the configuration as a YAML overlay file.
func (c *Config) Save(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ConfigFileName), data, 0o644)
}
