// Package userconfig reads user-adjustable settings from
// ~/.embedpg/config.toml. Missing files yield defaults; only parse
// failures are errors.
package userconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/embedpg/embedpg/internal/config"
)

// Config represents user-configurable settings.
type Config struct {
	// Registry is the GitHub repository publishing the PostgreSQL
	// binary releases, in "owner/repo" form.
	Registry string `toml:"registry"`

	// CacheEnabled controls whether verified archives are kept on disk
	// across runs.
	CacheEnabled bool `toml:"cache_enabled"`
}

// DefaultRegistry is the release registry used when no override is set.
const DefaultRegistry = "theseus-rs/postgresql-binaries"

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Registry:     DefaultRegistry,
		CacheEnabled: true,
	}
}

// Load reads the config file from the standard location. Returns
// defaults if the file does not exist.
func Load() (*Config, error) {
	cfg, err := config.Default()
	if err != nil {
		return DefaultConfig(), nil
	}
	return loadFromPath(cfg.ConfigFile)
}

func loadFromPath(path string) (*Config, error) {
	userCfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return userCfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if _, err := toml.Decode(string(data), userCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if userCfg.Registry == "" {
		userCfg.Registry = DefaultRegistry
	}

	return userCfg, nil
}

// Save writes the configuration to the standard location.
func (c *Config) Save() error {
	cfg, err := config.Default()
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	return c.saveToPath(cfg.ConfigFile)
}

func (c *Config) saveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
