package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// checkConfigFilePermissions rejects group/world readable config files.
// Config files name the audit log path and vault CLI; on multi-user
// systems they must be private to the approver.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600, fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// rawServerConfig carries durations as strings so YAML stays human-editable
// ("5m", "30m").
type rawServerConfig struct {
	ListenAddress   string `yaml:"listen_address"`
	PairingTTL      string `yaml:"pairing_ttl"`
	SessionTTL      string `yaml:"session_ttl"`
	ReplayWindow    string `yaml:"replay_window"`
	CleanupInterval string `yaml:"cleanup_interval"`
	Vault           struct {
		CLIPath string `yaml:"cli_path"`
	} `yaml:"vault"`
	Telemetry struct {
		MetricsEnabled *bool `yaml:"metrics_enabled"`
	} `yaml:"telemetry"`
	Audit struct {
		Enabled *bool  `yaml:"enabled"`
		File    string `yaml:"file"`
	} `yaml:"audit"`
}

type rawAgentConfig struct {
	ServerURL      string `yaml:"server_url"`
	PollInterval   string `yaml:"poll_interval"`
	PairTimeout    string `yaml:"pair_timeout"`
	RequestTimeout string `yaml:"request_timeout"`
}

// LoadServerConfig loads the approval-service configuration. A missing or
// empty field keeps its default.
func LoadServerConfig(path string) (*ServerConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw rawServerConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := DefaultServerConfig()
	if raw.ListenAddress != "" {
		cfg.ListenAddress = raw.ListenAddress
	}
	if err := setDuration(&cfg.PairingTTL, raw.PairingTTL, "pairing_ttl"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.SessionTTL, raw.SessionTTL, "session_ttl"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.ReplayWindow, raw.ReplayWindow, "replay_window"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.CleanupInterval, raw.CleanupInterval, "cleanup_interval"); err != nil {
		return nil, err
	}
	if raw.Vault.CLIPath != "" {
		cfg.Vault.CLIPath = raw.Vault.CLIPath
	}
	if raw.Telemetry.MetricsEnabled != nil {
		cfg.Telemetry.MetricsEnabled = *raw.Telemetry.MetricsEnabled
	}
	if raw.Audit.Enabled != nil {
		cfg.Audit.Enabled = *raw.Audit.Enabled
	}
	if raw.Audit.File != "" {
		cfg.Audit.File = raw.Audit.File
	}
	return cfg, nil
}

// LoadAgentConfig loads the agent CLI configuration. A missing or empty
// field keeps its default.
func LoadAgentConfig(path string) (*AgentConfig, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw rawAgentConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := DefaultAgentConfig()
	if raw.ServerURL != "" {
		cfg.ServerURL = raw.ServerURL
	}
	if err := setDuration(&cfg.PollInterval, raw.PollInterval, "poll_interval"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.PairTimeout, raw.PairTimeout, "pair_timeout"); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.RequestTimeout, raw.RequestTimeout, "request_timeout"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDuration(dst *time.Duration, raw, field string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("invalid %s: must be positive", field)
	}
	*dst = d
	return nil
}
