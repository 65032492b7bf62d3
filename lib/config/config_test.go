// Copyright 2026 The Slate Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("environment = %s, want development", cfg.Environment)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("listen = %s", cfg.Listen)
	}
	if cfg.Sandbox.Timeout != 8*time.Second {
		t.Errorf("sandbox timeout = %s, want 8s", cfg.Sandbox.Timeout)
	}
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("scheduler interval = %s, want 30s", cfg.Scheduler.Interval)
	}
}

func TestLoadRequiresSlateConfig(t *testing.T) {
	original := os.Getenv("SLATE_CONFIG")
	defer os.Setenv("SLATE_CONFIG", original)
	os.Unsetenv("SLATE_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when SLATE_CONFIG not set")
	}
	if !strings.Contains(err.Error(), "SLATE_CONFIG") {
		t.Errorf("error = %q", err)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slate.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
environment: staging
listen: ":9090"
region: eu-west
sandbox:
  url: https://sandbox.internal
  token: secret
  timeout: 15s
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("environment = %s", cfg.Environment)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen = %s", cfg.Listen)
	}
	if cfg.Sandbox.URL != "https://sandbox.internal" || cfg.Sandbox.Timeout != 15*time.Second {
		t.Errorf("sandbox = %+v", cfg.Sandbox)
	}
	// Unset fields keep defaults.
	if cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("scheduler interval = %s, want default 30s", cfg.Scheduler.Interval)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production
listen: ":8080"
state_dir: /var/lib/slate
production:
  listen: ":443"
  database:
    pool_size: 16
staging:
  listen: ":8443"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	// Production overrides apply; staging overrides do not.
	if cfg.Listen != ":443" {
		t.Errorf("listen = %s, want :443", cfg.Listen)
	}
	if cfg.Database.PoolSize != 16 {
		t.Errorf("pool size = %d, want 16", cfg.Database.PoolSize)
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := Default()
	cfg.StateDir = "/var/lib/slate"
	if got := cfg.DatabasePath(); got != "/var/lib/slate/slate.db" {
		t.Errorf("DatabasePath = %s", got)
	}

	cfg.Database.Path = "/data/custom.db"
	if got := cfg.DatabasePath(); got != "/data/custom.db" {
		t.Errorf("DatabasePath = %s", got)
	}
}

func TestLoadFileRejectsUnknownEnvironment(t *testing.T) {
	path := writeConfig(t, `environment: sandbox`)
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}
