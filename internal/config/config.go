// Package config resolves filesystem locations and tunables for
// embedpg from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// EnvHome overrides the default embedpg home directory.
	EnvHome = "EMBEDPG_HOME"

	// EnvAPITimeout configures the timeout for registry and download
	// requests. Accepts duration strings like "30s" or "2m".
	EnvAPITimeout = "EMBEDPG_API_TIMEOUT"

	// EnvGitHubToken is the standard GitHub token variable, used for
	// authenticated registry requests to raise rate limits.
	EnvGitHubToken = "GITHUB_TOKEN"

	// DefaultAPITimeout bounds individual registry API calls.
	DefaultAPITimeout = 30 * time.Second

	// DefaultDownloadTimeout bounds a whole archive download. Archives
	// are tens of megabytes, so this is much larger than the API timeout.
	DefaultDownloadTimeout = 10 * time.Minute
)

// Config holds resolved filesystem locations.
type Config struct {
	// Home is the embedpg root directory (default ~/.embedpg).
	Home string

	// CacheDir is where verified archives are kept across runs.
	CacheDir string

	// ConfigFile is the path to the user's TOML configuration.
	ConfigFile string
}

// Default resolves the configuration from the environment.
func Default() (*Config, error) {
	home := os.Getenv(EnvHome)
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot determine home directory: %w", err)
		}
		home = filepath.Join(userHome, ".embedpg")
	}

	return &Config{
		Home:       home,
		CacheDir:   filepath.Join(home, "cache"),
		ConfigFile: filepath.Join(home, "config.toml"),
	}, nil
}

// APITimeout returns the configured API timeout, clamped to a sane
// range. Invalid values fall back to the default with a warning.
func APITimeout() time.Duration {
	raw := os.Getenv(EnvAPITimeout)
	if raw == "" {
		return DefaultAPITimeout
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid %s value %q, using default %v\n",
			EnvAPITimeout, raw, DefaultAPITimeout)
		return DefaultAPITimeout
	}

	if d < time.Second {
		return time.Second
	}
	if d > 10*time.Minute {
		return 10 * time.Minute
	}
	return d
}

// GitHubToken returns the token for authenticated registry requests,
// or empty when unset.
func GitHubToken() string {
	return os.Getenv(EnvGitHubToken)
}
