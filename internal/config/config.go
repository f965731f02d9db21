// Package config loads server configuration from defaults, an optional
// YAML file, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Port      int     `yaml:"port"`
	DBPath    string  `yaml:"db_path"`
	JWTSecret string  `yaml:"jwt_secret"`
	LogLevel  string  `yaml:"log_level"`
	Catalog   Catalog `yaml:"catalog"`
}

// Catalog configures the connection to the open-data catalog.
type Catalog struct {
	URL string `yaml:"url"`
	// APIKey is the sysadmin key. Every privileged action (creating users,
	// adding members) runs under it; per-user sessions are derived at
	// runtime from the keys on catalog user records.
	APIKey string `yaml:"api_key"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:     8080,
		DBPath:   "data/studentfolio.db",
		LogLevel: "info",
	}
}

// Load builds the effective configuration: defaults, overlaid by the YAML
// file at path (if path is non-empty the file must exist), overlaid by
// environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		c.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CATALOG_URL"); v != "" {
		c.Catalog.URL = v
	}
	if v := os.Getenv("CATALOG_API_KEY"); v != "" {
		c.Catalog.APIKey = v
	}
	return nil
}

// Validate checks the fields the server cannot run without.
func (c Config) Validate() error {
	if c.Catalog.URL == "" {
		return fmt.Errorf("config: catalog URL is required (catalog.url or CATALOG_URL)")
	}
	if c.Catalog.APIKey == "" {
		return fmt.Errorf("config: catalog API key is required (catalog.api_key or CATALOG_API_KEY)")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT secret is required (jwt_secret or JWT_SECRET)")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	return nil
}

// SlogLevel translates the configured log level. Unknown values fall back
// to info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
