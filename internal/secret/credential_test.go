package secret

import (
	"errors"
	"testing"
)

func TestCredentialAccessors(t *testing.T) {
	c := New("user@example.com", "hunter2")

	u, err := c.Username()
	if err != nil {
		t.Fatalf("Username: %v", err)
	}
	if u != "user@example.com" {
		t.Fatalf("Username = %q", u)
	}

	p, err := c.Password()
	if err != nil {
		t.Fatalf("Password: %v", err)
	}
	if p != "hunter2" {
		t.Fatalf("Password = %q", p)
	}
	if c.Cleared() {
		t.Fatal("fresh credential reports cleared")
	}
}

func TestCredentialClear(t *testing.T) {
	c := New("user@example.com", "hunter2")
	c.Clear()

	if !c.Cleared() {
		t.Fatal("Cleared() = false after Clear")
	}
	if _, err := c.Username(); !errors.Is(err, ErrCleared) {
		t.Fatalf("Username after Clear: got %v, want ErrCleared", err)
	}
	if _, err := c.Password(); !errors.Is(err, ErrCleared) {
		t.Fatalf("Password after Clear: got %v, want ErrCleared", err)
	}

	// Idempotent.
	c.Clear()
	if !c.Cleared() {
		t.Fatal("second Clear undid the first")
	}
}

func TestZeroBytes(t *testing.T) {
	b := []byte("sensitive")
	zeroBytes(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %x", i, v)
		}
	}
	zeroBytes(nil)
}
