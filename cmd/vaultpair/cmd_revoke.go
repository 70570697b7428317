package main

import (
	"context"
	"flag"

	"github.com/vaultpair/vaultpair/internal/termcolor"
)

func runRevoke(args []string) {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	server := fs.String("server", "", "approval service base URL")
	sessionID := fs.String("session-id", "", "session to revoke (required)")
	fs.Parse(args)

	if *sessionID == "" {
		fatal("revoke: --session-id is required")
	}

	cfg := loadAgentOptions(*configPath, *server)
	client := newAgentClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	if err := client.RevokeSession(ctx, *sessionID); err != nil {
		fatal("revoke: %v", err)
	}
	termcolor.Green("Session %s revoked. Vault locked.", *sessionID)
}
