package pairing

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/vaultpair/vaultpair/internal/audit"
	"github.com/vaultpair/vaultpair/internal/pake"
	"github.com/vaultpair/vaultpair/internal/vaultcli"
)

// Default lifetimes. Pairing codes are redeemable for five minutes;
// sessions have an absolute thirty-minute ceiling; request timestamps are
// accepted within five minutes of skew in either direction.
const (
	DefaultPairingTTL   = 5 * time.Minute
	DefaultSessionTTL   = 30 * time.Minute
	DefaultReplayWindow = 5 * time.Minute
)

// Config tunes manager lifetimes. Zero values take the defaults.
type Config struct {
	PairingTTL   time.Duration
	SessionTTL   time.Duration
	ReplayWindow time.Duration
}

// Manager is the sole owner of the pairing and session tables. All
// mutations are serialized under one mutex; the vault driver and the
// approver callback are invoked with the mutex released, and the affected
// entry is re-validated after reacquire.
type Manager struct {
	mu       sync.Mutex
	pairings map[string]*Pairing
	sessions map[string]*Session

	vault   vaultcli.Driver
	handler ApprovalHandler
	auditor *audit.Logger
	logger  *slog.Logger

	pairingTTL   time.Duration
	sessionTTL   time.Duration
	replayWindow time.Duration

	// now is swappable so expiry tests can move the clock.
	now func() time.Time
}

// NewManager creates a manager over the given vault driver.
func NewManager(vault vaultcli.Driver, cfg Config) *Manager {
	if cfg.PairingTTL == 0 {
		cfg.PairingTTL = DefaultPairingTTL
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.ReplayWindow == 0 {
		cfg.ReplayWindow = DefaultReplayWindow
	}
	return &Manager{
		pairings:     make(map[string]*Pairing),
		sessions:     make(map[string]*Session),
		vault:        vault,
		logger:       slog.Default(),
		pairingTTL:   cfg.PairingTTL,
		sessionTTL:   cfg.SessionTTL,
		replayWindow: cfg.ReplayWindow,
		now:          time.Now,
	}
}

// SetHandler registers the approver callback surface.
func (m *Manager) SetHandler(h ApprovalHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// SetAudit registers the audit trail. A nil logger disables auditing.
func (m *Manager) SetAudit(a *audit.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditor = a
}

// SetLogger replaces the operational logger.
func (m *Manager) SetLogger(l *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = l
}

// CreatePairing issues a fresh 6-digit code for the agent and notifies the
// approver. The code is one-time use and expires after the pairing TTL.
func (m *Manager) CreatePairing(agentID, agentName string) (string, time.Time, error) {
	m.mu.Lock()

	var code string
	for {
		c, err := randomCode()
		if err != nil {
			m.mu.Unlock()
			return "", time.Time{}, fmt.Errorf("pairing code generation failed: %w", err)
		}
		if _, taken := m.pairings[c]; !taken {
			code = c
			break
		}
	}

	now := m.now()
	p := &Pairing{
		AgentID:   agentID,
		AgentName: agentName,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(m.pairingTTL),
	}
	m.pairings[code] = p
	handler := m.handler
	m.mu.Unlock()

	m.logger.Info("pairing created",
		"agent_id", agentID,
		"agent_name", agentName,
		"expires_at", p.ExpiresAt,
	)
	m.auditor.PairingCreated(agentID, agentName)

	// Side-effect only; the handler's return is ignored.
	if handler != nil {
		handler.PairingCreated(p)
	}
	return code, p.ExpiresAt, nil
}

// MarkUserEnteredCode records that the human entered the pairing code and
// unlocks the vault with the master password. This is the single point the
// master password enters the process; the buffer is zeroized before return
// and only the vault token is stored.
//
// Returns false for an unknown or expired code, a failed unlock, or a code
// that was promoted while the unlock was in flight.
func (m *Manager) MarkUserEnteredCode(ctx context.Context, code string, masterPassword []byte) bool {
	defer zeroBytes(masterPassword)

	m.mu.Lock()
	p, ok := m.pairings[code]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("unknown pairing code entered")
		return false
	}
	if m.now().After(p.ExpiresAt) {
		delete(m.pairings, code)
		m.mu.Unlock()
		m.logger.Warn("expired pairing code entered")
		return false
	}
	m.mu.Unlock()

	// The unlock shells out and may block for seconds; run it unlocked.
	token, err := m.vault.Unlock(ctx, masterPassword)
	if err != nil {
		m.logger.Error("vault unlock failed", "error", err.Error())
		return false
	}

	m.mu.Lock()
	cur, ok := m.pairings[code]
	if !ok || cur != p || m.now().After(cur.ExpiresAt) {
		m.mu.Unlock()
		// The pairing expired or was promoted while unlocking. Do not
		// leave a stray unlock behind.
		m.logger.Warn("pairing vanished during vault unlock, re-locking vault")
		if err := m.vault.Lock(ctx); err != nil {
			m.logger.Warn("vault lock failed", "error", err.Error())
		}
		return false
	}
	cur.vaultToken = token
	cur.userEntered = true
	m.mu.Unlock()

	m.logger.Info("vault unlocked for pairing", "agent_id", p.AgentID)
	return true
}

// ExchangePAKEMessage handles one exchange poll from the agent. Before the
// human has entered the code the result is waiting; afterwards the pairing
// is promoted to a session exactly once.
func (m *Manager) ExchangePAKEMessage(ctx context.Context, code string, initiatorMsg []byte) ExchangeResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pairings[code]
	if !ok {
		m.logger.Warn("exchange for unknown pairing code")
		return ExchangeResult{Status: StatusError, Err: ErrMsgInvalidPairing}
	}
	if m.now().After(p.ExpiresAt) {
		delete(m.pairings, code)
		m.logger.Warn("exchange for expired pairing code")
		return ExchangeResult{Status: StatusError, Err: ErrMsgExpiredPairing}
	}

	// Polls may resend the same element; it is consumed only here, at
	// promotion.
	p.agentPAKEMessage = initiatorMsg

	if !p.userEntered {
		return ExchangeResult{Status: StatusWaiting}
	}

	responder := pake.NewEngine(pake.Responder)
	if _, err := responder.Start(code); err != nil {
		m.logger.Error("responder start failed", "error", err.Error())
		return m.failPromotion(ctx, code)
	}
	responderMsg, err := responder.Finish(p.agentPAKEMessage)
	if err != nil {
		m.logger.Warn("key exchange completion failed", "agent_id", p.AgentID)
		return m.failPromotion(ctx, code)
	}

	sessionID, err := newSessionID()
	if err != nil {
		m.logger.Error("session id generation failed", "error", err.Error())
		return m.failPromotion(ctx, code)
	}

	now := m.now()
	s := &Session{
		ID:         sessionID,
		AgentID:    p.AgentID,
		AgentName:  p.AgentName,
		engine:     responder,
		vaultToken: p.vaultToken,
		CreatedAt:  now,
		LastAccess: now,
		ExpiresAt:  now.Add(m.sessionTTL),
		seenNonces: make(map[string]time.Time),
	}
	m.sessions[sessionID] = s
	delete(m.pairings, code)

	m.logger.Info("session established",
		"session_id", sessionID,
		"agent_id", p.AgentID,
		"expires_at", s.ExpiresAt,
	)
	m.auditor.SessionEstablished(p.AgentID, sessionID)

	return ExchangeResult{
		Status:      StatusSuccess,
		SessionID:   sessionID,
		PAKEMessage: responderMsg,
		AgentID:     p.AgentID,
	}
}

// failPromotion is the strict failure path for a promotion that cannot
// complete after the human already unlocked the vault: the unlock is
// revoked and the pairing is discarded. Called with the mutex held.
func (m *Manager) failPromotion(ctx context.Context, code string) ExchangeResult {
	delete(m.pairings, code)
	if err := m.vault.Lock(ctx); err != nil {
		m.logger.Warn("vault lock after failed promotion", "error", err.Error())
	}
	return ExchangeResult{Status: StatusError, Err: ErrMsgPAKEFailed}
}

// HandleCredentialRequest decrypts and validates an encrypted credential
// request, blocks on the human approval callback, fetches the credential
// with the session's vault token, and returns it encrypted under the
// session key.
func (m *Manager) HandleCredentialRequest(ctx context.Context, sessionID, encryptedPayload string) RequestResult {
	m.mu.Lock()

	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn("credential request for unknown session")
		return RequestResult{Status: StatusError, Err: ErrMsgInvalidSession}
	}
	now := m.now()
	if now.After(s.ExpiresAt) {
		delete(m.sessions, sessionID)
		m.mu.Unlock()
		m.expireSession(ctx, s)
		return RequestResult{Status: StatusError, Err: ErrMsgExpiredSession}
	}
	s.LastAccess = now

	plaintext, err := s.engine.Decrypt(encryptedPayload)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("credential request decryption failed", "session_id", sessionID)
		return RequestResult{Status: StatusError, Err: ErrMsgDecryptFailed}
	}

	var req requestPayload
	if err := json.Unmarshal([]byte(plaintext), &req); err != nil ||
		req.Domain == "" || req.Reason == "" || req.AgentID == "" ||
		req.AgentName == "" || req.Timestamp == "" || req.Nonce == "" {
		m.mu.Unlock()
		m.logger.Warn("credential request payload malformed", "session_id", sessionID)
		return RequestResult{Status: StatusError, Err: ErrMsgDecryptFailed}
	}

	ts, err := time.Parse(time.RFC3339Nano, req.Timestamp)
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn("credential request timestamp unparseable", "session_id", sessionID)
		return RequestResult{Status: StatusError, Err: ErrMsgDecryptFailed}
	}
	if age := now.Sub(ts); age > m.replayWindow || age < -m.replayWindow {
		m.mu.Unlock()
		m.logger.Warn("credential request outside replay window",
			"session_id", sessionID,
			"age", now.Sub(ts).String(),
		)
		return RequestResult{Status: StatusError, Err: ErrMsgReplayRejected}
	}
	if !s.recordNonce(req.Nonce, now, m.replayWindow) {
		m.mu.Unlock()
		m.logger.Warn("credential request nonce replayed", "session_id", sessionID)
		return RequestResult{Status: StatusError, Err: ErrMsgReplayRejected}
	}

	handler := m.handler
	info := s.info()
	m.mu.Unlock()

	m.auditor.Request(req.AgentID, req.Domain, req.Reason)

	if handler == nil {
		m.logger.Error("no approval handler registered")
		return RequestResult{Status: StatusError, Err: ErrMsgNoHandler}
	}

	// Blocks on the human, possibly for minutes. Mutex is released; the
	// session is re-validated before its vault token is used.
	decision := handler.CredentialRequest(info, req.Domain, req.Reason)

	m.mu.Lock()
	s, ok = m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return RequestResult{Status: StatusError, Err: ErrMsgInvalidSession}
	}
	if m.now().After(s.ExpiresAt) {
		delete(m.sessions, sessionID)
		m.mu.Unlock()
		m.expireSession(ctx, s)
		return RequestResult{Status: StatusError, Err: ErrMsgExpiredSession}
	}
	token := s.vaultToken
	engine := s.engine
	m.mu.Unlock()

	if !decision.Approved {
		m.logger.Info("credential request denied", "domain", req.Domain, "agent_id", req.AgentID)
		m.auditor.Denied(req.AgentID, req.Domain)
		msg := decision.Reason
		if msg == "" {
			msg = ErrMsgUserDenied
		}
		return RequestResult{Status: StatusDenied, Err: msg}
	}

	items, err := m.vault.ListItems(ctx, req.Domain, token)
	if err != nil {
		m.logger.Error("vault item search failed", "domain", req.Domain, "error", err.Error())
		m.auditor.Error(req.AgentID, req.Domain, err.Error())
		return RequestResult{Status: StatusError, Err: errMsgVaultFailPrefix + sanitizeVaultError(err)}
	}

	item := vaultcli.FirstLogin(items)
	if item == nil {
		m.logger.Warn("no vault item for domain", "domain", req.Domain)
		m.auditor.NotFound(req.AgentID, req.Domain)
		return RequestResult{Status: StatusError, Err: errMsgNotFoundPrefix + req.Domain}
	}
	if item.Login.Username == "" || item.Login.Password == "" {
		m.logger.Warn("incomplete vault item for domain", "domain", req.Domain)
		m.auditor.Error(req.AgentID, req.Domain, "incomplete credential record")
		return RequestResult{Status: StatusError, Err: ErrMsgIncompleteCred}
	}

	nonce, err := randomHex(8)
	if err != nil {
		m.auditor.Error(req.AgentID, req.Domain, "nonce generation failed")
		return RequestResult{Status: StatusError, Err: errMsgVaultFailPrefix + "internal error"}
	}
	payload, err := json.Marshal(credentialPayload{
		Username:  item.Login.Username,
		Password:  item.Login.Password,
		Timestamp: WireTime(m.now()),
		Nonce:     nonce,
	})
	if err != nil {
		m.auditor.Error(req.AgentID, req.Domain, "payload encoding failed")
		return RequestResult{Status: StatusError, Err: errMsgVaultFailPrefix + "internal error"}
	}
	ciphertext, err := engine.Encrypt(string(payload))
	zeroBytes(payload)
	if err != nil {
		m.auditor.Error(req.AgentID, req.Domain, "payload encryption failed")
		return RequestResult{Status: StatusError, Err: errMsgVaultFailPrefix + "internal error"}
	}

	m.logger.Info("credential released", "domain", req.Domain, "agent_id", req.AgentID)
	m.auditor.Success(req.AgentID, req.Domain)
	return RequestResult{Status: StatusApproved, EncryptedPayload: ciphertext}
}

// RevokeSession removes the session and locks the vault. The vault lock is
// best effort; a driver failure is logged, not returned. No-op for an
// unknown id.
func (m *Manager) RevokeSession(ctx context.Context, sessionID string) {
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	if err := m.vault.Lock(ctx); err != nil {
		m.logger.Warn("vault lock on revoke failed", "error", err.Error())
	}
	m.logger.Info("session revoked", "session_id", sessionID)
	m.auditor.SessionRevoked(sessionID, "revoked")
}

// expireSession runs the teardown side of an expiry discovered in-line.
// The entry is already removed; only the vault lock and audit remain.
func (m *Manager) expireSession(ctx context.Context, s *Session) {
	if err := m.vault.Lock(ctx); err != nil {
		m.logger.Warn("vault lock on expiry failed", "error", err.Error())
	}
	m.logger.Info("session expired", "session_id", s.ID)
	m.auditor.SessionRevoked(s.ID, "expired")
}

// SessionStatus returns a read-only snapshot, or nil when the session is
// unknown or already past its ceiling.
func (m *Manager) SessionStatus(sessionID string) *SessionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || m.now().After(s.ExpiresAt) {
		return nil
	}
	info := s.info()
	return &info
}

// ActiveSessionCount reports the session table size, expired entries not
// yet swept included.
func (m *Manager) ActiveSessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CleanupExpired sweeps expired pairings silently and expired sessions via
// the revoke path. Idempotent.
func (m *Manager) CleanupExpired(ctx context.Context) {
	m.mu.Lock()
	now := m.now()
	for code, p := range m.pairings {
		if now.After(p.ExpiresAt) {
			delete(m.pairings, code)
			m.logger.Debug("expired pairing swept", "agent_id", p.AgentID)
		}
	}
	var expired []*Session
	for id, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.expireSession(ctx, s)
	}
}

// Janitor runs CleanupExpired on a ticker until the context ends.
func (m *Manager) Janitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CleanupExpired(ctx)
		}
	}
}

// Shutdown revokes every active session, locking the vault on the way out.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.RevokeSession(ctx, id)
	}
}

// recordNonce registers a request nonce, pruning entries older than the
// replay window. Returns false when the nonce was already seen.
func (s *Session) recordNonce(nonce string, now time.Time, window time.Duration) bool {
	for n, seen := range s.seenNonces {
		if now.Sub(seen) > window {
			delete(s.seenNonces, n)
		}
	}
	if _, dup := s.seenNonces[nonce]; dup {
		return false
	}
	s.seenNonces[nonce] = now
	return true
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:         s.ID,
		AgentID:    s.AgentID,
		AgentName:  s.AgentName,
		LastAccess: s.LastAccess,
		ExpiresAt:  s.ExpiresAt,
	}
}

// randomCode draws a uniform 6-digit code in [100000, 999999].
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// newSessionID returns "sess_" plus 32 hex chars from the CSPRNG.
func newSessionID() (string, error) {
	suffix, err := randomHex(16)
	if err != nil {
		return "", err
	}
	return "sess_" + suffix, nil
}

func randomHex(nbytes int) (string, error) {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// sanitizeVaultError keeps driver error text short enough that a CLI dump
// cannot flood the wire. Credential material never appears in driver errors.
func sanitizeVaultError(err error) string {
	msg := err.Error()
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return msg
}

func zeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.XORBytes(b, b, b)
}
