package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vaultpair/vaultpair/internal/approval"
	"github.com/vaultpair/vaultpair/internal/config"
	"github.com/vaultpair/vaultpair/internal/termcolor"
)

// loadAgentOptions resolves the agent configuration shared by the pair,
// request, status and revoke commands: config file first, then flags.
func loadAgentOptions(configPath, server string) *config.AgentConfig {
	cfg := config.DefaultAgentConfig()
	if configPath != "" {
		loaded, err := config.LoadAgentConfig(configPath)
		if err != nil {
			fatal("%v", err)
		}
		cfg = loaded
	}
	if server != "" {
		cfg.ServerURL = server
	}
	return cfg
}

func newAgentClient(cfg *config.AgentConfig) *approval.Client {
	return approval.NewClient(cfg.ServerURL, approval.ClientOptions{
		PollInterval:   cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
		OnPairingCode:  showPairingCode,
	})
}

// showPairingCode displays the code the human must type into the approval
// service console.
func showPairingCode(code, expiresAt string) {
	fmt.Println()
	termcolor.Banner("PAIRING CODE")
	termcolor.Green("    %s", code)
	termcolor.Yellow("Enter this code in the approval service console.")
	termcolor.Faint("Code expires at %s\n\n", expiresAt)
}

func defaultAgentID() string {
	host, err := os.Hostname()
	if err != nil {
		return "agent"
	}
	return "agent@" + host
}

func runPair(args []string) {
	fs := flag.NewFlagSet("pair", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	server := fs.String("server", "", "approval service base URL")
	agentID := fs.String("agent-id", defaultAgentID(), "stable agent identifier")
	agentName := fs.String("agent-name", "vaultpair agent", "human-readable agent name")
	fs.Parse(args)

	cfg := loadAgentOptions(*configPath, *server)
	client := newAgentClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PairTimeout)
	defer cancel()

	termcolor.Cyan("Pairing with %s ...", cfg.ServerURL)
	if _, err := client.Pair(ctx, *agentID, *agentName); err != nil {
		fatal("pair: %v", err)
	}

	termcolor.Green("Paired. Session established.")
	fmt.Printf("session_id: %s\n", client.SessionID())
	termcolor.Faint("The session key lives only in this process. Use 'vaultpair request' to pair and fetch a credential in one run.\n")
}
