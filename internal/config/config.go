// Package config loads and watches the opendian.jsonc configuration file.
//
// config.go - Configuration schema and defaults
//
// This file contains:
// - Config and its sections
// - Default values applied over a partial file

package config

import (
	"fmt"

	"github.com/aotsukiqx/opendian/internal/agent"
)

// Config holds all settings loaded from opendian.jsonc
type Config struct {
	// Backend selects the agent backend (currently "opencode")
	Backend string `json:"backend"`

	Server    ServerConfig    `json:"server"`
	Model     string          `json:"model"`
	Tools     []string        `json:"tools"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Cleanup   CleanupConfig   `json:"cleanup"`

	DataDir string `json:"data_dir"`
	LogDir  string `json:"log_dir"`
	LogJSON bool   `json:"log_json"`

	// MetricsAddr exposes Prometheus metrics when non-empty
	// (e.g. "127.0.0.1:9090")
	MetricsAddr string `json:"metrics_addr"`
}

// ServerConfig holds backend server settings
type ServerConfig struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`

	// Binary is the backend server executable, resolved via PATH
	Binary string `json:"binary"`

	// Autostart launches the backend server when it is not already
	// running
	Autostart bool `json:"autostart"`
}

// RateLimitConfig bounds prompt submissions per tab
type RateLimitConfig struct {
	PerSecond float64 `json:"per_second"`
	Burst     int     `json:"burst"`
}

// CleanupConfig drives the periodic janitor
type CleanupConfig struct {
	// Schedule is a cron expression (e.g. "@hourly")
	Schedule string `json:"schedule"`

	// RetentionDays prunes tab bindings not touched within this window
	RetentionDays int `json:"retention_days"`
}

// Default returns the built-in configuration
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Backend == "" {
		cfg.Backend = string(agent.BackendOpenCode)
	}
	if cfg.Server.Hostname == "" {
		cfg.Server.Hostname = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4096
	}
	if cfg.Server.Binary == "" {
		cfg.Server.Binary = "opencode"
	}
	if cfg.RateLimit.PerSecond == 0 {
		cfg.RateLimit.PerSecond = 1
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 5
	}
	if cfg.Cleanup.Schedule == "" {
		cfg.Cleanup.Schedule = "@hourly"
	}
	if cfg.Cleanup.RetentionDays == 0 {
		cfg.Cleanup.RetentionDays = 30
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "logs"
	}
}

// BaseURL returns the backend server's HTTP endpoint
func (c *Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Server.Hostname, c.Server.Port)
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.Model != "" {
		if _, _, ok := agent.SplitModelKey(c.Model); !ok {
			return fmt.Errorf("model %q is not a provider:model key", c.Model)
		}
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	return nil
}
