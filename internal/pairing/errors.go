package pairing

// Peer-visible error strings. These are wire-stable categories: internal
// causes are logged, never sent. Decryption and payload-parse failures share
// one string so a peer cannot probe payload structure.
const (
	ErrMsgInvalidPairing  = "Invalid pairing code"
	ErrMsgExpiredPairing  = "Pairing code expired"
	ErrMsgPAKEFailed      = "PAKE exchange failed"
	ErrMsgInvalidSession  = "Invalid or expired session"
	ErrMsgExpiredSession  = "Session expired"
	ErrMsgDecryptFailed   = "Decryption failed"
	ErrMsgReplayRejected  = "Request too old (possible replay attack)"
	ErrMsgIncompleteCred  = "Incomplete credential (missing username or password)"
	ErrMsgUserDenied      = "User denied"
	ErrMsgNoHandler       = "No approval handler registered"
	errMsgNotFoundPrefix  = "No credential found for "
	errMsgVaultFailPrefix = "Vault access failed: "
)
