// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/hookchain/internal/constants"
	"github.com/coral-mesh/hookchain/internal/safe"
)

// Loader handles loading and saving configuration files.
type Loader struct {
	homeDir string
}

// NewLoader creates a new config loader.
// The base directory is resolved in this order:
//  1. HOOKCHAIN_CONFIG environment variable.
//  2. User home directory (~/).
//  3. constants.FallbackDir, for environments without a home directory.
func NewLoader() *Loader {
	if baseDir := os.Getenv(constants.ConfigEnv); baseDir != "" {
		return &Loader{homeDir: baseDir}
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		return &Loader{homeDir: homeDir}
	}

	// Config files won't exist here, so Load returns defaults + env overrides.
	return &Loader{homeDir: constants.FallbackDir}
}

// GlobalConfigPath returns the path to the global config file.
func (l *Loader) GlobalConfigPath() string {
	return filepath.Join(l.homeDir, constants.DefaultDir, constants.ConfigFile)
}

// LoadGlobalConfig loads the global configuration.
// Returns default config if file doesn't exist. Values from the file are
// layered over the defaults, then environment variable overrides apply.
func (l *Loader) LoadGlobalConfig() (*GlobalConfig, error) {
	path := l.GlobalConfigPath()

	config := DefaultGlobalConfig()
	if _, err := os.Stat(path); err == nil {
		// Dotfile managers commonly symlink config files.
		data, err := safe.ReadFile(path, &safe.ReadOptions{AllowSymlinks: true})
		if err != nil {
			return nil, fmt.Errorf("failed to read global config: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse global config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat global config: %w", err)
	}

	if err := MergeFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid global config %s: %w", path, err)
	}

	return config, nil
}

// SaveGlobalConfig saves the global configuration.
func (l *Loader) SaveGlobalConfig(config *GlobalConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	path := l.GlobalConfigPath()

	//nolint:gosec // G301: Directory needs standard permissions for traversal
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal global config: %w", err)
	}

	//nolint:gosec // G306: Global config file is not sensitive
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write global config: %w", err)
	}

	return nil
}
