package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, ``)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Queue.LivenessWindow != 30*time.Second {
		t.Errorf("expected default liveness window 30s, got %v", cfg.Queue.LivenessWindow)
	}
	if cfg.Queue.SweepInterval != 5*time.Second {
		t.Errorf("expected default sweep interval 5s, got %v", cfg.Queue.SweepInterval)
	}
	if cfg.Server.StopGrace != 5*time.Second {
		t.Errorf("expected default stop grace 5s, got %v", cfg.Server.StopGrace)
	}
	if cfg.Server.LogHistory != 200 {
		t.Errorf("expected default log history 200, got %d", cfg.Server.LogHistory)
	}
	if cfg.Boot.NgrokAPIAddr != "http://localhost:4040" {
		t.Errorf("unexpected default ngrok api addr: %s", cfg.Boot.NgrokAPIAddr)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfigFile(t, `
verbose = 2

queue {
  liveness_window = "45s"
  sweep_interval  = "10s"
}

server {
  stop_grace  = "3s"
  log_history = 500
}

boot {
  settle_delay = "1s"
  tunnel_wait  = "30s"
}
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Verbose != 2 {
		t.Errorf("expected verbose 2, got %d", cfg.Verbose)
	}
	if cfg.Queue.LivenessWindow != 45*time.Second {
		t.Errorf("expected liveness window 45s, got %v", cfg.Queue.LivenessWindow)
	}
	if cfg.Queue.SweepInterval != 10*time.Second {
		t.Errorf("expected sweep interval 10s, got %v", cfg.Queue.SweepInterval)
	}
	if cfg.Server.StopGrace != 3*time.Second {
		t.Errorf("expected stop grace 3s, got %v", cfg.Server.StopGrace)
	}
	if cfg.Server.LogHistory != 500 {
		t.Errorf("expected log history 500, got %d", cfg.Server.LogHistory)
	}
	if cfg.Boot.SettleDelay != time.Second {
		t.Errorf("expected settle delay 1s, got %v", cfg.Boot.SettleDelay)
	}
	if cfg.Boot.TunnelWait != 30*time.Second {
		t.Errorf("expected tunnel wait 30s, got %v", cfg.Boot.TunnelWait)
	}
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := writeConfigFile(t, `
queue {
  liveness_window = "not-a-duration"
}
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
}

func TestInitializeConfigMissingFile(t *testing.T) {
	dir := t.TempDir()

	if err := InitializeConfig(dir, 1); err != nil {
		t.Fatalf("InitializeConfig failed: %v", err)
	}

	if Config == nil {
		t.Fatal("Config not set")
	}
	if Config.ConfigPath != dir {
		t.Errorf("expected config path %s, got %s", dir, Config.ConfigPath)
	}
	if Config.Verbose != 1 {
		t.Errorf("expected verbose 1, got %d", Config.Verbose)
	}
	if got := GetSocketPath(); got != filepath.Join(dir, SocketName) {
		t.Errorf("unexpected socket path: %s", got)
	}
	if got := GetDatabasePath(); got != filepath.Join(dir, DatabaseName) {
		t.Errorf("unexpected database path: %s", got)
	}
}
