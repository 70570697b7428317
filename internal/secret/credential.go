// Package secret holds retrieved credentials in a container that can be
// wiped on demand. Callers are expected to Clear a credential as soon as
// they have used it; a finalizer wipes anything that escapes.
package secret

import (
	"crypto/subtle"
	"errors"
	"runtime"
	"sync"
)

// ErrCleared is returned by accessors after the credential has been wiped.
var ErrCleared = errors.New("credential has been cleared")

// Credential is a username/password pair held as byte slices so the memory
// can be zeroized. Safe for concurrent use.
type Credential struct {
	mu       sync.Mutex
	username []byte
	password []byte
	cleared  bool
}

// New copies the given values into a fresh container. The finalizer is a
// backstop only; callers should Clear explicitly.
func New(username, password string) *Credential {
	c := &Credential{
		username: []byte(username),
		password: []byte(password),
	}
	runtime.SetFinalizer(c, func(c *Credential) { c.Clear() })
	return c
}

// Username returns the stored username, or ErrCleared after Clear.
func (c *Credential) Username() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleared {
		return "", ErrCleared
	}
	return string(c.username), nil
}

// Password returns the stored password, or ErrCleared after Clear.
func (c *Credential) Password() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleared {
		return "", ErrCleared
	}
	return string(c.password), nil
}

// Clear zeroizes both fields. Idempotent.
func (c *Credential) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cleared {
		return
	}
	zeroBytes(c.username)
	zeroBytes(c.password)
	c.username = nil
	c.password = nil
	c.cleared = true
	runtime.SetFinalizer(c, nil)
}

// Cleared reports whether the credential has been wiped.
func (c *Credential) Cleared() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleared
}

// zeroBytes overwrites b with zeros.
func zeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.XORBytes(b, b, b)
}
