package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/vaultpair/vaultpair/internal/termcolor"
)

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	server := fs.String("server", "", "approval service base URL")
	sessionID := fs.String("session-id", "", "session to inspect (required)")
	fs.Parse(args)

	if *sessionID == "" {
		fatal("status: --session-id is required")
	}

	cfg := loadAgentOptions(*configPath, *server)
	client := newAgentClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	st, err := client.SessionStatus(ctx, *sessionID)
	if err != nil {
		fatal("status: %v", err)
	}
	if st == nil {
		termcolor.Yellow("Session %s is unknown or expired.", *sessionID)
		osExit(1)
		return
	}

	termcolor.Green("Session %s is active.", *sessionID)
	fmt.Printf("agent_name:  %s\n", st.AgentName)
	fmt.Printf("last_access: %s\n", st.LastAccess)
	fmt.Printf("expires_at:  %s\n", st.ExpiresAt)
}
