// Package vaultcli drives a password-manager vault through its command-line
// tool. The Driver interface is what the pairing manager consumes; the only
// shipped implementation wraps the Bitwarden CLI (`bw`).
package vaultcli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrNotInstalled is returned when the CLI binary cannot be executed.
	ErrNotInstalled = errors.New("vault CLI not found")

	// ErrNotLoggedIn is returned when the CLI reports an unauthenticated
	// account. Unlocking requires a prior `bw login`.
	ErrNotLoggedIn = errors.New("not logged into vault CLI")

	// ErrInvalidPassword is returned when the master password is rejected.
	ErrInvalidPassword = errors.New("invalid master password")

	// ErrTimeout is returned when a CLI command exceeds its deadline.
	ErrTimeout = errors.New("vault CLI command timed out")
)

// TypeLogin is the Bitwarden item type for login entries.
const TypeLogin = 1

// Per-command deadlines. Unlock can hit the network to sync key material;
// status and lock are local.
const (
	versionTimeout = 5 * time.Second
	statusTimeout  = 5 * time.Second
	unlockTimeout  = 30 * time.Second
	listTimeout    = 30 * time.Second
	lockTimeout    = 10 * time.Second
)

// Login is the credential portion of a vault item.
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Item is a single vault entry as emitted by `bw list items`.
type Item struct {
	ID    string `json:"id"`
	Type  int    `json:"type"`
	Name  string `json:"name"`
	Login *Login `json:"login,omitempty"`
}

// Status mirrors the `bw status` JSON document.
type Status struct {
	Status    string `json:"status"`
	UserEmail string `json:"userEmail,omitempty"`
}

// Driver is the vault abstraction the pairing manager works against.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Unlock opens the vault with the master password and returns a
	// session token for subsequent operations. The password slice is not
	// retained.
	Unlock(ctx context.Context, masterPassword []byte) (string, error)

	// ListItems searches the vault for items matching the search term.
	ListItems(ctx context.Context, search, sessionToken string) ([]Item, error)

	// Lock closes the vault, invalidating all session tokens.
	Lock(ctx context.Context) error

	// Status reports the CLI's current lock/login state.
	Status(ctx context.Context) (*Status, error)
}

// FirstLogin returns the first login-type item with a non-nil Login block,
// or nil when none match.
func FirstLogin(items []Item) *Item {
	for i := range items {
		if items[i].Type == TypeLogin && items[i].Login != nil {
			return &items[i]
		}
	}
	return nil
}

// BitwardenCLI implements Driver over the `bw` executable.
type BitwardenCLI struct {
	path string
}

// NewBitwardenCLI creates a driver for the given executable path ("bw" to
// use PATH lookup).
func NewBitwardenCLI(path string) *BitwardenCLI {
	if path == "" {
		path = "bw"
	}
	return &BitwardenCLI{path: path}
}

// ValidateInstalled verifies the CLI runs and the account is logged in.
// Call once at startup before accepting pairings.
func (b *BitwardenCLI) ValidateInstalled(ctx context.Context) error {
	out, _, err := b.run(ctx, versionTimeout, b.path, "--version")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w at %q, install from https://bitwarden.com/help/cli/", ErrNotInstalled, b.path)
		}
		return fmt.Errorf("vault CLI version check failed: %w", err)
	}
	_ = out

	st, err := b.Status(ctx)
	if err != nil {
		return err
	}
	if st.Status == "unauthenticated" {
		return fmt.Errorf("%w, run `bw login` first", ErrNotLoggedIn)
	}
	return nil
}

// Unlock runs `bw unlock <password> --raw` and returns the session token.
func (b *BitwardenCLI) Unlock(ctx context.Context, masterPassword []byte) (string, error) {
	stdout, stderr, err := b.run(ctx, unlockTimeout, b.path, "unlock", string(masterPassword), "--raw")
	if err != nil {
		if strings.Contains(stderr, "Invalid master password") {
			return "", ErrInvalidPassword
		}
		return "", fmt.Errorf("vault unlock failed: %w", err)
	}

	token := strings.TrimSpace(stdout)
	if token == "" {
		return "", errors.New("vault unlock returned empty session token")
	}
	return token, nil
}

// ListItems runs `bw list items --search <term> --session <token>`.
func (b *BitwardenCLI) ListItems(ctx context.Context, search, sessionToken string) ([]Item, error) {
	stdout, _, err := b.run(ctx, listTimeout, b.path,
		"list", "items", "--search", search, "--session", sessionToken)
	if err != nil {
		return nil, fmt.Errorf("vault item search failed: %w", err)
	}

	var items []Item
	if err := json.Unmarshal([]byte(stdout), &items); err != nil {
		return nil, fmt.Errorf("failed to parse vault item list: %w", err)
	}
	return items, nil
}

// Lock runs `bw lock`.
func (b *BitwardenCLI) Lock(ctx context.Context) error {
	if _, _, err := b.run(ctx, lockTimeout, b.path, "lock"); err != nil {
		return fmt.Errorf("vault lock failed: %w", err)
	}
	return nil
}

// Status runs `bw status` and parses its JSON document.
func (b *BitwardenCLI) Status(ctx context.Context) (*Status, error) {
	stdout, _, err := b.run(ctx, statusTimeout, b.path, "status")
	if err != nil {
		return nil, fmt.Errorf("vault status check failed: %w", err)
	}

	var st Status
	if err := json.Unmarshal([]byte(stdout), &st); err != nil {
		return nil, fmt.Errorf("failed to parse vault status: %w", err)
	}
	return &st, nil
}

// run executes the command with a deadline and returns stdout and stderr.
// The returned error preserves exec.ErrNotFound and maps deadline expiry to
// ErrTimeout.
func (b *BitwardenCLI) run(ctx context.Context, timeout time.Duration, name string, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return stdout.String(), stderr.String(), ErrTimeout
	}
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return stdout.String(), stderr.String(), fmt.Errorf("%w: %s", exec.ErrNotFound, name)
		}
		return stdout.String(), stderr.String(), fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), stderr.String(), nil
}
