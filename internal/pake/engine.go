// Package pake wraps a password-authenticated key exchange and the
// authenticated encryption derived from it.
//
// Two engines sharing a weak password (the 6-digit pairing code) derive a
// strong 32-byte shared secret without the password or the secret ever
// crossing the wire. The secret is expanded through HKDF-SHA256 into an
// XChaCha20-Poly1305 key; every message carries a fresh random nonce and an
// authentication tag, so equal plaintexts produce distinct ciphertexts and
// any bit flip or truncation is rejected.
//
// An engine moves through a strict linear state machine:
//
//	NEW --Start--> STARTED --Finish--> READY --(Encrypt|Decrypt)*
//
// Start and Finish may each be called exactly once.
package pake

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/schollz/pake/v3"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("pake: exchange already started")

	// ErrNotStarted is returned when Finish is called before Start.
	ErrNotStarted = errors.New("pake: exchange not started")

	// ErrAlreadyFinished is returned when Finish is called twice.
	ErrAlreadyFinished = errors.New("pake: exchange already completed")

	// ErrNotReady is returned when Encrypt or Decrypt is called before the
	// exchange has completed.
	ErrNotReady = errors.New("pake: exchange not completed")

	// ErrExchangeFailed covers every completion failure. Whether the peer
	// used a wrong password or sent a malformed element is deliberately
	// not distinguished.
	ErrExchangeFailed = errors.New("PAKE exchange failed")

	// ErrDecryptFailed covers every decryption failure: bad encoding,
	// truncation, tag mismatch, wrong key.
	ErrDecryptFailed = errors.New("decryption failed")
)

// Role selects which half of the exchange an engine runs.
type Role int

const (
	// Initiator is the requesting agent (SPAKE2 "A").
	Initiator Role = iota
	// Responder is the approval service (SPAKE2 "B").
	Responder
)

func (r Role) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

const (
	// curveName selects P-256 for the exchange group.
	curveName = "p256"

	// kdfInfo is the HKDF info string binding derived keys to this protocol.
	kdfInfo = "vaultpair-session-v1"
)

type state int

const (
	stateNew state = iota
	stateStarted
	stateReady
)

// Engine is one side of a PAKE exchange. A freshly constructed engine holds
// no secret material. Engines are not safe for concurrent use during the
// exchange; once READY, Encrypt and Decrypt touch no mutable state beyond
// the AEAD and may be called from multiple goroutines.
type Engine struct {
	role  Role
	state state
	p     *pake.Pake
	aead  cipher.AEAD
}

// NewEngine creates an engine for the given role in state NEW.
func NewEngine(role Role) *Engine {
	return &Engine{role: role}
}

// Role returns the engine's role.
func (e *Engine) Role() Role {
	return e.role
}

// Start begins the exchange with the shared password. For the initiator it
// returns the outbound protocol element to send to the peer. The responder's
// outbound element depends on the initiator element and is returned by
// Finish instead; for a responder Start returns a nil message.
//
// The password never appears, in any encoding, in an outbound element.
func (e *Engine) Start(password string) ([]byte, error) {
	if e.state != stateNew {
		return nil, ErrAlreadyStarted
	}

	p, err := pake.InitCurve([]byte(password), int(e.role), curveName)
	if err != nil {
		return nil, fmt.Errorf("pake init: %w", err)
	}
	e.p = p
	e.state = stateStarted

	if e.role == Initiator {
		return p.Bytes(), nil
	}
	return nil, nil
}

// Finish consumes the peer's protocol element, derives the shared secret,
// and readies the engine for Encrypt/Decrypt. For the responder it returns
// the outbound element the initiator still needs; for the initiator it
// returns nil.
func (e *Engine) Finish(peerMessage []byte) ([]byte, error) {
	switch e.state {
	case stateNew:
		return nil, ErrNotStarted
	case stateReady:
		return nil, ErrAlreadyFinished
	}

	if err := e.p.Update(peerMessage); err != nil {
		return nil, ErrExchangeFailed
	}

	secret, err := e.p.SessionKey()
	if err != nil || len(secret) < 32 {
		return nil, ErrExchangeFailed
	}

	aead, err := deriveAEAD(secret[:32])
	if err != nil {
		return nil, ErrExchangeFailed
	}
	e.aead = aead
	e.state = stateReady

	if e.role == Responder {
		return e.p.Bytes(), nil
	}
	return nil, nil
}

// Ready reports whether the exchange has completed and Encrypt/Decrypt are
// available.
func (e *Engine) Ready() bool {
	return e.state == stateReady
}

// Encrypt seals plaintext under the session key and returns
// base64(nonce || ciphertext || tag). A fresh random 24-byte nonce is drawn
// per call, so identical plaintexts yield distinct ciphertexts.
func (e *Engine) Encrypt(plaintext string) (string, error) {
	if e.state != stateReady {
		return "", ErrNotReady
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by the peer's Encrypt. Every failure
// mode (bad base64, truncation, tag mismatch, wrong key) surfaces as
// ErrDecryptFailed.
func (e *Engine) Decrypt(ciphertext string) (string, error) {
	if e.state != stateReady {
		return "", ErrNotReady
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptFailed
	}
	if len(raw) < e.aead.NonceSize()+e.aead.Overhead() {
		return "", ErrDecryptFailed
	}

	nonce := raw[:e.aead.NonceSize()]
	plaintext, err := e.aead.Open(nil, nonce, raw[e.aead.NonceSize():], nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plaintext), nil
}

// deriveAEAD expands the raw shared secret into an XChaCha20-Poly1305 AEAD.
func deriveAEAD(secret []byte) (cipher.AEAD, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(kdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return chacha20poly1305.NewX(key)
}
