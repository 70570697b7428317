package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServerConfigDefaults(t *testing.T) {
	path := writeConfig(t, "", 0o600)

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}

	def := DefaultServerConfig()
	if cfg.ListenAddress != def.ListenAddress {
		t.Errorf("ListenAddress = %q, want %q", cfg.ListenAddress, def.ListenAddress)
	}
	if cfg.PairingTTL != 5*time.Minute {
		t.Errorf("PairingTTL = %v, want 5m", cfg.PairingTTL)
	}
	if cfg.SessionTTL != 30*time.Minute {
		t.Errorf("SessionTTL = %v, want 30m", cfg.SessionTTL)
	}
	if cfg.ReplayWindow != 5*time.Minute {
		t.Errorf("ReplayWindow = %v, want 5m", cfg.ReplayWindow)
	}
	if cfg.Vault.CLIPath != "bw" {
		t.Errorf("Vault.CLIPath = %q, want bw", cfg.Vault.CLIPath)
	}
	if !cfg.Audit.Enabled || cfg.Audit.File != "credential_audit.log" {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
}

func TestLoadServerConfigOverrides(t *testing.T) {
	content := `
listen_address: "127.0.0.1:7700"
pairing_ttl: "2m"
session_ttl: "1h"
replay_window: "30s"
cleanup_interval: "10s"
vault:
  cli_path: "/usr/local/bin/bw"
telemetry:
  metrics_enabled: false
audit:
  enabled: false
  file: "/tmp/audit.log"
`
	cfg, err := LoadServerConfig(writeConfig(t, content, 0o600))
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:7700" {
		t.Errorf("ListenAddress = %q", cfg.ListenAddress)
	}
	if cfg.PairingTTL != 2*time.Minute || cfg.SessionTTL != time.Hour {
		t.Errorf("TTLs = %v / %v", cfg.PairingTTL, cfg.SessionTTL)
	}
	if cfg.ReplayWindow != 30*time.Second || cfg.CleanupInterval != 10*time.Second {
		t.Errorf("windows = %v / %v", cfg.ReplayWindow, cfg.CleanupInterval)
	}
	if cfg.Vault.CLIPath != "/usr/local/bin/bw" {
		t.Errorf("CLIPath = %q", cfg.Vault.CLIPath)
	}
	if cfg.Telemetry.MetricsEnabled {
		t.Error("MetricsEnabled should be false")
	}
	if cfg.Audit.Enabled || cfg.Audit.File != "/tmp/audit.log" {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
}

func TestLoadServerConfigBadDuration(t *testing.T) {
	_, err := LoadServerConfig(writeConfig(t, "pairing_ttl: \"soon\"\n", 0o600))
	if err == nil || !strings.Contains(err.Error(), "pairing_ttl") {
		t.Fatalf("got %v, want pairing_ttl parse error", err)
	}

	_, err = LoadServerConfig(writeConfig(t, "session_ttl: \"-5m\"\n", 0o600))
	if err == nil || !strings.Contains(err.Error(), "session_ttl") {
		t.Fatalf("got %v, want session_ttl positivity error", err)
	}
}

func TestLoadServerConfigPermissionCheck(t *testing.T) {
	path := writeConfig(t, "", 0o644)
	_, err := LoadServerConfig(path)
	if err == nil || !strings.Contains(err.Error(), "overly permissive") {
		t.Fatalf("got %v, want permission error", err)
	}
}

func TestLoadServerConfigMissing(t *testing.T) {
	_, err := LoadServerConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("got %v, want ErrConfigNotFound", err)
	}
}

func TestLoadAgentConfig(t *testing.T) {
	content := `
server_url: "http://127.0.0.1:7700"
poll_interval: "500ms"
pair_timeout: "3m"
request_timeout: "4m"
`
	cfg, err := LoadAgentConfig(writeConfig(t, content, 0o600))
	if err != nil {
		t.Fatalf("LoadAgentConfig: %v", err)
	}
	if cfg.ServerURL != "http://127.0.0.1:7700" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.PairTimeout != 3*time.Minute || cfg.RequestTimeout != 4*time.Minute {
		t.Errorf("timeouts = %v / %v", cfg.PairTimeout, cfg.RequestTimeout)
	}
}

func TestLoadAgentConfigDefaults(t *testing.T) {
	cfg, err := LoadAgentConfig(writeConfig(t, "", 0o600))
	if err != nil {
		t.Fatalf("LoadAgentConfig: %v", err)
	}
	def := DefaultAgentConfig()
	if cfg.ServerURL != def.ServerURL || cfg.PollInterval != def.PollInterval {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}
