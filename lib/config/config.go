// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Slate services.
//
// Configuration is loaded from a single YAML file specified by the
// SLATE_CONFIG environment variable or a --config flag. There are no
// fallbacks or automatic discovery; this keeps configuration
// deterministic and auditable. The file may contain per-environment
// sections (development, staging, production) that override base
// values when the environment matches.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the master configuration for the Slate control plane.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Listen is the TCP address the public API binds to.
	Listen string `yaml:"listen"`

	// OpsSocket is the Unix socket path for operational commands.
	OpsSocket string `yaml:"ops_socket"`

	// StateDir holds runtime state: the database and the token
	// signing keypair.
	StateDir string `yaml:"state_dir"`

	// Region is attached to sessions created by this control plane.
	Region string `yaml:"region"`

	// Database configures the SQLite store.
	Database DatabaseConfig `yaml:"database"`

	// Sandbox configures the external execution service client.
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Scheduler configures the due-schedule sweep.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Per-environment overrides, applied after the base config.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields that can be overridden per
// environment.
type Overrides struct {
	Listen    string           `yaml:"listen,omitempty"`
	OpsSocket string           `yaml:"ops_socket,omitempty"`
	StateDir  string           `yaml:"state_dir,omitempty"`
	Region    string           `yaml:"region,omitempty"`
	Database  *DatabaseConfig  `yaml:"database,omitempty"`
	Sandbox   *SandboxConfig   `yaml:"sandbox,omitempty"`
	Scheduler *SchedulerConfig `yaml:"scheduler,omitempty"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the database file path. Empty means
	// <state_dir>/slate.db.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size. Zero uses the store
	// default.
	PoolSize int `yaml:"pool_size"`
}

// SandboxConfig configures the external execution service client.
type SandboxConfig struct {
	// URL is the base URL of the execution service. Required for
	// session and agent features.
	URL string `yaml:"url"`

	// Token is the bearer token presented to the execution service.
	Token string `yaml:"token"`

	// Timeout bounds each RPC to the execution service.
	// Default: 8s.
	Timeout time.Duration `yaml:"timeout"`
}

// SchedulerConfig configures the due-schedule sweep.
type SchedulerConfig struct {
	// Interval is the sweep period. Default: 30s.
	Interval time.Duration `yaml:"interval"`
}

// Default returns the default configuration. The defaults give every
// field a sensible zero state; the config file remains the source of
// truth.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	stateDir := filepath.Join(homeDir, ".local", "state", "slate")

	return &Config{
		Environment: Development,
		Listen:      "127.0.0.1:8080",
		OpsSocket:   "/run/slate/slated.sock",
		StateDir:    stateDir,
		Region:      "local",
		Database: DatabaseConfig{
			Path: "",
		},
		Sandbox: SandboxConfig{
			Timeout: 8 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Interval: 30 * time.Second,
		},
	}
}

// DatabasePath resolves the effective database file path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.StateDir, "slate.db")
}

// Load loads configuration from the path in SLATE_CONFIG. Fails if
// the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv("SLATE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SLATE_CONFIG environment variable not set; " +
			"set it to the path of your slate.yaml config file, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applies
// environment-specific overrides, and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Listen != "" {
		c.Listen = overrides.Listen
	}
	if overrides.OpsSocket != "" {
		c.OpsSocket = overrides.OpsSocket
	}
	if overrides.StateDir != "" {
		c.StateDir = overrides.StateDir
	}
	if overrides.Region != "" {
		c.Region = overrides.Region
	}
	if overrides.Database != nil {
		if overrides.Database.Path != "" {
			c.Database.Path = overrides.Database.Path
		}
		if overrides.Database.PoolSize != 0 {
			c.Database.PoolSize = overrides.Database.PoolSize
		}
	}
	if overrides.Sandbox != nil {
		if overrides.Sandbox.URL != "" {
			c.Sandbox.URL = overrides.Sandbox.URL
		}
		if overrides.Sandbox.Token != "" {
			c.Sandbox.Token = overrides.Sandbox.Token
		}
		if overrides.Sandbox.Timeout != 0 {
			c.Sandbox.Timeout = overrides.Sandbox.Timeout
		}
	}
	if overrides.Scheduler != nil {
		if overrides.Scheduler.Interval != 0 {
			c.Scheduler.Interval = overrides.Scheduler.Interval
		}
	}
}

func (c *Config) validate() error {
	switch c.Environment {
	case Development, Staging, Production:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if c.Scheduler.Interval < 0 {
		return fmt.Errorf("scheduler interval must be positive")
	}
	return nil
}
