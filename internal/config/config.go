package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Config is the application configuration, merged from (lowest to highest
// precedence) defaults, a YAML file, LEXISCHED_* environment variables, and
// command-line flags.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Sync     SyncConfig     `koanf:"sync"`
	Session  SessionConfig  `koanf:"session"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// SyncConfig controls deck-source synchronization.
type SyncConfig struct {
	// Repos is the directory git deck sources are cloned into.
	Repos string `koanf:"repos" validate:"required"`
}

// SessionConfig controls learning-session behavior.
type SessionConfig struct {
	// Timeout bounds each store call made on behalf of a session.
	Timeout time.Duration `koanf:"timeout" validate:"required"`
	// Window is how far back a session summary looks.
	Window time.Duration `koanf:"window" validate:"required"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "lexisched.db"},
		Sync:     SyncConfig{Repos: "repos"},
		Session: SessionConfig{
			Timeout: 5 * time.Second,
			Window:  24 * time.Hour,
		},
	}
}

const envPrefix = "LEXISCHED_"

// Load builds the configuration. path may be empty (no file); flags may be
// nil. Flag names use the same dotted keys as the file, e.g. database.path.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// LEXISCHED_DATABASE_PATH becomes database.path.
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flag config: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
