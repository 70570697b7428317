// Package pairing owns the pairing and session state machine: issuing
// pairing codes, completing the key exchange, enforcing replay defenses,
// coordinating the human approver, and holding the unlocked-vault token for
// the lifetime of a session.
package pairing

import (
	"time"

	"github.com/vaultpair/vaultpair/internal/pake"
)

// wireTimeFormat renders timestamps as ISO-8601 UTC with microseconds and a
// trailing Z. Inbound timestamps are parsed with time.RFC3339Nano, which
// accepts any sub-second precision.
const wireTimeFormat = "2006-01-02T15:04:05.000000Z07:00"

// WireTime formats t for the wire.
func WireTime(t time.Time) string {
	return t.UTC().Format(wireTimeFormat)
}

// Pairing is a pending pairing keyed by its 6-digit code. It exists only
// until expiry or promotion to a Session.
type Pairing struct {
	AgentID   string
	AgentName string
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time

	// agentPAKEMessage is the initiator element, present once the agent
	// has posted it. Polls may overwrite it with identical content; it is
	// consumed only at promotion.
	agentPAKEMessage []byte

	// userEntered latches when the human supplies the code and a valid
	// master password. vaultToken is set at the same moment and is never
	// a password.
	userEntered bool
	vaultToken  string
}

// Session is an established encrypted channel bound to a vault token.
// The absolute expiry ceiling is fixed at creation; LastAccess is
// observability only and never extends the lifetime.
type Session struct {
	ID         string
	AgentID    string
	AgentName  string
	engine     *pake.Engine
	vaultToken string
	CreatedAt  time.Time
	LastAccess time.Time
	ExpiresAt  time.Time

	// seenNonces rejects duplicate request nonces inside the replay
	// window. Entries older than the window are pruned on insert.
	seenNonces map[string]time.Time
}

// SessionInfo is the read-only view of a session handed to the approver
// callback and the status endpoint.
type SessionInfo struct {
	ID         string
	AgentID    string
	AgentName  string
	LastAccess time.Time
	ExpiresAt  time.Time
}

// Decision is the approver's answer to a credential request.
type Decision struct {
	Approved bool
	Reason   string
}

// ApprovalHandler is the approver UI surface. PairingCreated must be
// side-effect only. CredentialRequest blocks until the human answers and
// must never prompt for a password.
type ApprovalHandler interface {
	PairingCreated(p *Pairing)
	CredentialRequest(session SessionInfo, domain, reason string) Decision
}

// Exchange statuses and request statuses as they appear on the wire.
const (
	StatusWaiting  = "waiting"
	StatusSuccess  = "success"
	StatusApproved = "approved"
	StatusDenied   = "denied"
	StatusError    = "error"
)

// ExchangeResult is the outcome of one exchange poll.
type ExchangeResult struct {
	Status      string
	SessionID   string
	PAKEMessage []byte // responder element, set on success
	AgentID     string
	Err         string // stable category string, set on error
}

// RequestResult is the outcome of one credential request.
type RequestResult struct {
	Status           string
	EncryptedPayload string // base64 AEAD output, set on approved
	Err              string // stable category string, set on denied/error
}

// requestPayload is the decrypted credential-request schema.
type requestPayload struct {
	Domain    string `json:"domain"`
	Reason    string `json:"reason"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Timestamp string `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

// credentialPayload is the plaintext credential response schema.
type credentialPayload struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Timestamp string `json:"timestamp"`
	Nonce     string `json:"nonce"`
}
