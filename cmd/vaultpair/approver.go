package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/vaultpair/vaultpair/internal/pairing"
	"github.com/vaultpair/vaultpair/internal/termcolor"
)

// terminalApprover is the human approval surface: it owns stdin and runs
// every prompt through one serialized loop so concurrent pairings and
// credential requests cannot interleave their console input.
type terminalApprover struct {
	manager *pairing.Manager
	stdin   *bufio.Reader
	prompts chan func()
	done    chan struct{}
}

func newTerminalApprover(m *pairing.Manager) *terminalApprover {
	return &terminalApprover{
		manager: m,
		stdin:   bufio.NewReader(os.Stdin),
		prompts: make(chan func(), 16),
		done:    make(chan struct{}),
	}
}

// Run executes queued prompts until the context ends. Must run before any
// pairing or credential traffic arrives.
func (a *terminalApprover) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-a.prompts:
			f()
		}
	}
}

// PairingCreated queues the code-entry prompt. The pairing proceeds only if
// the human types the code the agent displays, plus the master password.
func (a *terminalApprover) PairingCreated(p *pairing.Pairing) {
	select {
	case a.prompts <- func() { a.promptPairing(p) }:
	case <-a.done:
	}
}

// CredentialRequest blocks until the human answers the release prompt.
func (a *terminalApprover) CredentialRequest(info pairing.SessionInfo, domain, reason string) pairing.Decision {
	result := make(chan pairing.Decision, 1)
	prompt := func() {
		result <- a.promptCredential(info, domain, reason)
	}

	select {
	case a.prompts <- prompt:
	case <-a.done:
		return pairing.Decision{Reason: "approver unavailable"}
	}
	select {
	case d := <-result:
		return d
	case <-a.done:
		return pairing.Decision{Reason: "approver unavailable"}
	}
}

func (a *terminalApprover) promptPairing(p *pairing.Pairing) {
	termcolor.Banner("PAIRING REQUEST")
	termcolor.Cyan("Agent:   %s (%s)", p.AgentName, p.AgentID)
	termcolor.Yellow("Expires: %s", p.ExpiresAt.Local().Format(time.Stamp))
	fmt.Println()

	termcolor.Faint("Enter the 6-digit code shown by the agent (blank to ignore): ")
	code, err := a.readLine()
	if err != nil || code == "" {
		termcolor.Yellow("Pairing ignored.")
		return
	}

	termcolor.Faint("Vault master password: ")
	password, err := a.readPassword()
	if err != nil {
		termcolor.Red("Could not read master password: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	// MarkUserEnteredCode zeroizes the password buffer before returning.
	if a.manager.MarkUserEnteredCode(ctx, code, password) {
		termcolor.Green("Vault unlocked. Waiting for the agent to finish the key exchange.")
	} else {
		termcolor.Red("Pairing failed: wrong or expired code, or the vault rejected the password.")
	}
}

func (a *terminalApprover) promptCredential(info pairing.SessionInfo, domain, reason string) pairing.Decision {
	termcolor.Banner("CREDENTIAL REQUEST")
	termcolor.Cyan("Agent:  %s (%s)", info.AgentName, info.AgentID)
	termcolor.Cyan("Domain: %s", domain)
	termcolor.Cyan("Reason: %s", reason)
	fmt.Println()

	termcolor.Faint("Release this credential? [y/N]: ")
	line, err := a.readLine()
	if err != nil {
		termcolor.Red("Could not read answer, denying.")
		return pairing.Decision{Reason: "approver input unavailable"}
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		termcolor.Green("Approved.")
		return pairing.Decision{Approved: true}
	default:
		termcolor.Yellow("Denied.")
		return pairing.Decision{}
	}
}

func (a *terminalApprover) readLine() (string, error) {
	line, err := a.stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readPassword reads without echo on a terminal and falls back to a plain
// line read when stdin is a pipe.
func (a *terminalApprover) readPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		fmt.Println()
		return pw, err
	}
	line, err := a.readLine()
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}
