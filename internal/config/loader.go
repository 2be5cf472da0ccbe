// Package config loads and watches the opendian.jsonc configuration file.
//
// loader.go - File discovery and JSONC loading
//
// This file contains:
// - FindConfigPath with its lookup precedence
// - Load, parsing a JSONC file over the defaults

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const configFileName = "opendian.jsonc"

// FindConfigPath returns the path to opendian.jsonc using precedence:
// 1. configDir + /opendian.jsonc (if configDir specified)
// 2. ./config/opendian.jsonc (project-local)
// 3. ~/.opendian/config/opendian.jsonc (user global)
func FindConfigPath(configDir string) (string, error) {
	if configDir != "" {
		path := filepath.Join(configDir, configFileName)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%s not found in %s", configFileName, configDir)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path, nil
		}
		return abs, nil
	}

	candidates := []string{
		filepath.Join("config", configFileName),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".opendian", "config", configFileName))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("%s not found; tried: %v", configFileName, candidates)
}

// Load parses the given JSONC config file over the defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}

	jsonData := StripJSONComments(data)

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration when a file is found, falling back to
// the defaults when none exists
func LoadOrDefault(configDir string) (*Config, error) {
	path, err := FindConfigPath(configDir)
	if err != nil {
		if configDir != "" {
			return nil, err
		}
		return Default(), nil
	}
	return Load(path)
}
