package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/vaultpair/vaultpair/internal/approval"
	"github.com/vaultpair/vaultpair/internal/termcolor"
)

func runRequest(args []string) {
	fs := flag.NewFlagSet("request", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	server := fs.String("server", "", "approval service base URL")
	agentID := fs.String("agent-id", defaultAgentID(), "stable agent identifier")
	agentName := fs.String("agent-name", "vaultpair agent", "human-readable agent name")
	domain := fs.String("domain", "", "domain to fetch the credential for (required)")
	reason := fs.String("reason", "", "reason shown to the approver (required)")
	showPassword := fs.Bool("show-password", false, "print the password to stdout instead of masking it")
	revokeAfter := fs.Bool("revoke", true, "revoke the session after the credential is retrieved")
	fs.Parse(args)

	if *domain == "" || *reason == "" {
		fatal("request: --domain and --reason are required")
	}

	cfg := loadAgentOptions(*configPath, *server)
	client := newAgentClient(cfg)

	pairCtx, cancelPair := context.WithTimeout(context.Background(), cfg.PairTimeout)
	defer cancelPair()

	termcolor.Cyan("Pairing with %s ...", cfg.ServerURL)
	if _, err := client.Pair(pairCtx, *agentID, *agentName); err != nil {
		fatal("request: %v", err)
	}
	termcolor.Green("Paired. Requesting credential for %s ...", *domain)
	termcolor.Faint("Waiting for the approver to decide.\n")

	reqCtx, cancelReq := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancelReq()

	cred, err := client.RequestCredential(reqCtx, *domain, *reason)
	if err != nil {
		if errors.Is(err, approval.ErrDenied) {
			fatal("request: the approver denied the request")
		}
		fatal("request: %v", err)
	}
	defer cred.Clear()

	username, err := cred.Username()
	if err != nil {
		fatal("request: %v", err)
	}
	password, err := cred.Password()
	if err != nil {
		fatal("request: %v", err)
	}

	termcolor.Green("Credential released for %s", *domain)
	fmt.Printf("username: %s\n", username)
	if *showPassword {
		fmt.Printf("password: %s\n", password)
	} else {
		fmt.Printf("password: ******** (%d chars, re-run with --show-password to print)\n", len(password))
	}

	if *revokeAfter {
		if err := client.RevokeSession(reqCtx, ""); err != nil {
			termcolor.Yellow("Session revoke failed: %v", err)
		} else {
			termcolor.Faint("Session revoked, vault locked.\n")
		}
	}
}
