// Package config defines the YAML configuration for the approval service
// and the agent CLI, with defaults that work out of the box on loopback.
package config

import (
	"errors"
	"time"
)

// ErrConfigNotFound is returned when no config file exists at the given path.
var ErrConfigNotFound = errors.New("config file not found")

// ServerConfig configures the approval service.
type ServerConfig struct {
	// ListenAddress is the bind address for the HTTP surface. Loopback
	// only; a non-loopback address is rejected at startup.
	ListenAddress string

	// PairingTTL bounds how long a pairing code stays redeemable.
	PairingTTL time.Duration

	// SessionTTL is the absolute session lifetime ceiling.
	SessionTTL time.Duration

	// ReplayWindow bounds accepted request timestamp skew in both
	// directions.
	ReplayWindow time.Duration

	// CleanupInterval is the janitor sweep cadence.
	CleanupInterval time.Duration

	Vault     VaultConfig
	Telemetry TelemetryConfig
	Audit     AuditConfig
}

// VaultConfig selects and configures the vault CLI driver.
type VaultConfig struct {
	// CLIPath is the vault executable, resolved via PATH when bare.
	CLIPath string
}

// TelemetryConfig toggles the Prometheus endpoint.
type TelemetryConfig struct {
	MetricsEnabled bool
}

// AuditConfig configures the append-only audit trail.
type AuditConfig struct {
	Enabled bool
	File    string
}

// AgentConfig configures the requesting-agent CLI.
type AgentConfig struct {
	// ServerURL is the approval service base URL.
	ServerURL string

	// PollInterval is the cadence of exchange polls while waiting for the
	// human to enter the pairing code.
	PollInterval time.Duration

	// PairTimeout bounds the whole pairing flow, poll loop included.
	PairTimeout time.Duration

	// RequestTimeout bounds a credential request. Generous because a
	// human sits in the approval path.
	RequestTimeout time.Duration
}

// DefaultServerConfig returns the server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddress:   "127.0.0.1:5000",
		PairingTTL:      5 * time.Minute,
		SessionTTL:      30 * time.Minute,
		ReplayWindow:    5 * time.Minute,
		CleanupInterval: time.Minute,
		Vault: VaultConfig{
			CLIPath: "bw",
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: true,
		},
		Audit: AuditConfig{
			Enabled: true,
			File:    "credential_audit.log",
		},
	}
}

// DefaultAgentConfig returns the agent defaults.
func DefaultAgentConfig() *AgentConfig {
	return &AgentConfig{
		ServerURL:      "http://127.0.0.1:5000",
		PollInterval:   2 * time.Second,
		PairTimeout:    120 * time.Second,
		RequestTimeout: 120 * time.Second,
	}
}
