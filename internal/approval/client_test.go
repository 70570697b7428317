package approval

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vaultpair/vaultpair/internal/pairing"
	"github.com/vaultpair/vaultpair/internal/vaultcli"
)

// startStack brings up a manager, an auto-entering approver, and an
// httptest server, and returns a fast-polling client against it.
func startStack(t *testing.T, vault vaultcli.Driver, approve bool) (*Client, *pairing.Manager) {
	t.Helper()

	m := pairing.NewManager(vault, pairing.Config{})
	m.SetHandler(&autoApprover{m: m, approve: approve})
	srv := NewServer(m, ServerOptions{})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL, ClientOptions{
		PollInterval:   10 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	})
	return c, m
}

func TestClientPairAndRequest(t *testing.T) {
	vault := &stubVault{
		items: []vaultcli.Item{
			{Type: vaultcli.TypeLogin, Name: "united.com", Login: &vaultcli.Login{Username: "flyer", Password: "pw123"}},
		},
	}
	c, m := startStack(t, vault, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	code, err := c.Pair(ctx, "agent-1", "Test Agent")
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("pairing code = %q", code)
	}
	if c.SessionID() == "" {
		t.Fatal("no session id after pairing")
	}
	if m.ActiveSessionCount() != 1 {
		t.Fatalf("server session count = %d", m.ActiveSessionCount())
	}

	cred, err := c.RequestCredential(ctx, "united.com", "booking a flight")
	if err != nil {
		t.Fatalf("RequestCredential: %v", err)
	}
	defer cred.Clear()

	u, err := cred.Username()
	if err != nil {
		t.Fatalf("Username: %v", err)
	}
	p, err := cred.Password()
	if err != nil {
		t.Fatalf("Password: %v", err)
	}
	if u != "flyer" || p != "pw123" {
		t.Fatalf("credential = %q / %q", u, p)
	}
}

func TestClientPairingCodeCallback(t *testing.T) {
	m := pairing.NewManager(&stubVault{}, pairing.Config{})
	m.SetHandler(&autoApprover{m: m, approve: true})
	srv := NewServer(m, ServerOptions{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	var gotCode, gotExpires string
	c := NewClient(ts.URL, ClientOptions{
		PollInterval: 10 * time.Millisecond,
		OnPairingCode: func(code, expiresAt string) {
			gotCode, gotExpires = code, expiresAt
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	code, err := c.Pair(ctx, "agent-1", "Test Agent")
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if gotCode != code {
		t.Fatalf("callback code = %q, returned code = %q", gotCode, code)
	}
	if gotExpires == "" {
		t.Fatal("callback never saw an expiry")
	}
}

func TestClientRequestDenied(t *testing.T) {
	c, _ := startStack(t, &stubVault{}, false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := c.Pair(ctx, "agent-1", "Test Agent"); err != nil {
		t.Fatalf("Pair: %v", err)
	}

	_, err := c.RequestCredential(ctx, "united.com", "booking a flight")
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("got %v, want ErrDenied", err)
	}
}

func TestClientRequestWithoutSession(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", ClientOptions{})
	_, err := c.RequestCredential(context.Background(), "united.com", "x")
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("got %v, want ErrNoSession", err)
	}
}

func TestClientPairTimeout(t *testing.T) {
	// No approver: the human never enters the code and the context
	// deadline ends the poll loop.
	m := pairing.NewManager(&stubVault{}, pairing.Config{})
	srv := NewServer(m, ServerOptions{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c := NewClient(ts.URL, ClientOptions{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Pair(ctx, "agent-1", "Test Agent")
	if !errors.Is(err, ErrPairingTimeout) {
		t.Fatalf("got %v, want ErrPairingTimeout", err)
	}
}

func TestClientRevokeAndStatus(t *testing.T) {
	vault := &stubVault{}
	c, _ := startStack(t, vault, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := c.Pair(ctx, "agent-1", "Test Agent"); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	sessionID := c.SessionID()

	st, err := c.SessionStatus(ctx, sessionID)
	if err != nil {
		t.Fatalf("SessionStatus: %v", err)
	}
	if st == nil || !st.Active || st.AgentName != "Test Agent" {
		t.Fatalf("status = %+v", st)
	}

	if err := c.RevokeSession(ctx, sessionID); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if c.SessionID() != "" {
		t.Fatal("local session survived revoke")
	}

	vault.mu.Lock()
	locks := vault.lockCalls
	vault.mu.Unlock()
	if locks != 1 {
		t.Fatalf("vault locked %d times", locks)
	}

	st, err = c.SessionStatus(ctx, sessionID)
	if err != nil {
		t.Fatalf("SessionStatus after revoke: %v", err)
	}
	if st != nil {
		t.Fatalf("revoked session still resolvable: %+v", st)
	}
}

func TestClientHealth(t *testing.T) {
	c, _ := startStack(t, &stubVault{}, true)

	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "ok" {
		t.Fatalf("health = %+v", h)
	}
}
