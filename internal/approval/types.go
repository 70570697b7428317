package approval

// Wire types for the approval service HTTP surface. All timestamps are
// ISO-8601 UTC with a trailing Z; pake_message and encrypted_payload fields
// are base64-standard.

// ErrorResponse is the error envelope for every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
}

// InitiateRequest starts a pairing.
type InitiateRequest struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
}

// InitiateResponse carries the pairing code shown to the human.
type InitiateResponse struct {
	PairingCode string `json:"pairing_code"`
	ExpiresAt   string `json:"expires_at"`
}

// ExchangeRequest is one poll of the key exchange.
type ExchangeRequest struct {
	PairingCode string `json:"pairing_code"`
	PAKEMessage string `json:"pake_message"`
}

// ExchangeWaiting is the 202 body while the human has not entered the code.
type ExchangeWaiting struct {
	Status string `json:"status"`
}

// ExchangeSuccess is the 200 body completing the exchange.
type ExchangeSuccess struct {
	SessionID   string `json:"session_id"`
	PAKEMessage string `json:"pake_message"`
	AgentID     string `json:"agent_id"`
}

// CredentialRequest carries an encrypted credential request.
type CredentialRequest struct {
	SessionID        string `json:"session_id"`
	EncryptedPayload string `json:"encrypted_payload"`
}

// CredentialResponse is always returned with HTTP 200; the outcome lives in
// Status (approved, denied, error).
type CredentialResponse struct {
	Status           string `json:"status"`
	EncryptedPayload string `json:"encrypted_payload,omitempty"`
	Error            string `json:"error,omitempty"`
}

// RevokeRequest tears down a session.
type RevokeRequest struct {
	SessionID string `json:"session_id"`
}

// RevokeResponse confirms the teardown.
type RevokeResponse struct {
	Revoked   bool   `json:"revoked"`
	SessionID string `json:"session_id"`
}

// StatusResponse answers GET /session/status.
type StatusResponse struct {
	Active     bool   `json:"active"`
	AgentName  string `json:"agent_name"`
	LastAccess string `json:"last_access"`
	ExpiresAt  string `json:"expires_at"`
}
