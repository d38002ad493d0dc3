package config

import (
	"fmt"
	"os"

	"github.com/zhubert/agentmux/paths"
)

// Load reads and parses config.yaml from the config directory.
// Returns nil, nil if the file does not exist.
func Load() (*Config, error) {
	fp, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(fp)
}

// LoadFrom reads and parses the config file at path.
// Returns nil, nil if the file does not exist.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// LoadAndMerge loads the config and merges it with defaults.
// If no config file exists, returns the default config.
func LoadAndMerge() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	defaults := DefaultConfig()
	if cfg == nil {
		return defaults, nil
	}
	return Merge(cfg, defaults), nil
}
