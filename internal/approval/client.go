package approval

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vaultpair/vaultpair/internal/pairing"
	"github.com/vaultpair/vaultpair/internal/pake"
	"github.com/vaultpair/vaultpair/internal/secret"
)

var (
	// ErrDenied is returned when the human denies a credential request.
	ErrDenied = errors.New("credential request denied")

	// ErrNoSession is returned when RequestCredential runs before Pair.
	ErrNoSession = errors.New("no established session")

	// ErrPairingTimeout is returned when the poll loop ends without the
	// human entering the code.
	ErrPairingTimeout = errors.New("pairing timed out waiting for code entry")
)

// Client is the requesting agent's SDK: it drives pairing, holds the
// initiator key material, and wraps credential requests in the encrypted
// envelope. A Client serves one session at a time and is not safe for
// concurrent use.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration

	agentID    string
	agentName  string
	engine     *pake.Engine
	sessionID  string
	onPairCode func(code, expiresAt string)
}

// ClientOptions tunes the client. Zero values take defaults.
type ClientOptions struct {
	// PollInterval is the exchange poll cadence (default 2s).
	PollInterval time.Duration

	// RequestTimeout bounds a single HTTP request (default 120s, sized
	// for the human in the approval path).
	RequestTimeout time.Duration

	// OnPairingCode, when set, is called with the pairing code as soon
	// as it is issued, before the poll loop starts. Callers use it to
	// show the code to the human while pairing is still pending.
	OnPairingCode func(code, expiresAt string)
}

// NewClient creates a client for the approval service at baseURL.
func NewClient(baseURL string, opts ClientOptions) *Client {
	if opts.PollInterval == 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 120 * time.Second
	}
	return &Client{
		baseURL:      baseURL,
		pollInterval: opts.PollInterval,
		httpClient:   &http.Client{Timeout: opts.RequestTimeout},
		onPairCode:   opts.OnPairingCode,
	}
}

// SessionID returns the established session id, or "" before Pair.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Pair runs the full pairing flow: initiate, start the initiator exchange,
// poll until the human enters the code, finish the exchange. The pairing
// code is surfaced through OnPairingCode while polling and returned once
// the session is established. The context deadline is the overall pairing
// timeout.
func (c *Client) Pair(ctx context.Context, agentID, agentName string) (string, error) {
	var initResp InitiateResponse
	status, err := c.postJSON(ctx, "/pairing/initiate", InitiateRequest{
		AgentID:   agentID,
		AgentName: agentName,
	}, &initResp)
	if err != nil {
		return "", fmt.Errorf("pairing initiate failed: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("pairing initiate failed: HTTP %d", status)
	}
	code := initResp.PairingCode
	if c.onPairCode != nil {
		c.onPairCode(code, initResp.ExpiresAt)
	}

	engine := pake.NewEngine(pake.Initiator)
	initMsg, err := engine.Start(code)
	if err != nil {
		return "", fmt.Errorf("key exchange start failed: %w", err)
	}

	exchangeReq := ExchangeRequest{
		PairingCode: code,
		PAKEMessage: base64.StdEncoding.EncodeToString(initMsg),
	}

	for {
		var success ExchangeSuccess
		status, body, err := c.post(ctx, "/pairing/exchange", exchangeReq)
		if err != nil {
			return "", fmt.Errorf("pairing exchange failed: %w", err)
		}

		switch status {
		case http.StatusAccepted:
			// Human has not entered the code yet.
		case http.StatusOK:
			if err := json.Unmarshal(body, &success); err != nil {
				return "", fmt.Errorf("pairing exchange response malformed: %w", err)
			}
			responderMsg, err := base64.StdEncoding.DecodeString(success.PAKEMessage)
			if err != nil {
				return "", fmt.Errorf("pairing exchange response malformed: %w", err)
			}
			if _, err := engine.Finish(responderMsg); err != nil {
				return "", fmt.Errorf("key exchange completion failed: %w", err)
			}
			c.agentID = agentID
			c.agentName = agentName
			c.engine = engine
			c.sessionID = success.SessionID
			return code, nil
		default:
			return "", fmt.Errorf("pairing exchange rejected: %s", errorText(body, status))
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", ErrPairingTimeout, ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}

// RequestCredential asks the approver to release the credential for domain.
// Blocks until the human decides. On approval the credential arrives in a
// scoped container the caller must Clear after use; on denial the error
// wraps ErrDenied.
func (c *Client) RequestCredential(ctx context.Context, domain, reason string) (*secret.Credential, error) {
	if c.engine == nil || c.sessionID == "" {
		return nil, ErrNoSession
	}

	nonce, err := randomNonce()
	if err != nil {
		return nil, fmt.Errorf("nonce generation failed: %w", err)
	}
	payload, err := json.Marshal(struct {
		Domain    string `json:"domain"`
		Reason    string `json:"reason"`
		AgentID   string `json:"agent_id"`
		AgentName string `json:"agent_name"`
		Timestamp string `json:"timestamp"`
		Nonce     string `json:"nonce"`
	}{
		Domain:    domain,
		Reason:    reason,
		AgentID:   c.agentID,
		AgentName: c.agentName,
		Timestamp: pairing.WireTime(time.Now()),
		Nonce:     nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("request encoding failed: %w", err)
	}
	encrypted, err := c.engine.Encrypt(string(payload))
	if err != nil {
		return nil, fmt.Errorf("request encryption failed: %w", err)
	}

	var resp CredentialResponse
	status, err := c.postJSON(ctx, "/credential/request", CredentialRequest{
		SessionID:        c.sessionID,
		EncryptedPayload: encrypted,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("credential request failed: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("credential request failed: HTTP %d", status)
	}

	switch resp.Status {
	case pairing.StatusApproved:
		plaintext, err := c.engine.Decrypt(resp.EncryptedPayload)
		if err != nil {
			return nil, fmt.Errorf("credential decryption failed: %w", err)
		}
		var cred struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.Unmarshal([]byte(plaintext), &cred); err != nil {
			return nil, fmt.Errorf("credential payload malformed: %w", err)
		}
		if cred.Username == "" || cred.Password == "" {
			return nil, errors.New("credential payload incomplete")
		}
		return secret.New(cred.Username, cred.Password), nil
	case pairing.StatusDenied:
		return nil, fmt.Errorf("%w: %s", ErrDenied, resp.Error)
	default:
		return nil, fmt.Errorf("credential request error: %s", resp.Error)
	}
}

// RevokeSession tears down the session on the server. The local session
// state is cleared regardless of the server answer.
func (c *Client) RevokeSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = c.sessionID
	}
	defer func() {
		if sessionID == c.sessionID {
			c.sessionID = ""
			c.engine = nil
		}
	}()

	var resp RevokeResponse
	status, err := c.postJSON(ctx, "/session/revoke", RevokeRequest{SessionID: sessionID}, &resp)
	if err != nil {
		return fmt.Errorf("session revoke failed: %w", err)
	}
	if status != http.StatusOK || !resp.Revoked {
		return fmt.Errorf("session revoke failed: HTTP %d", status)
	}
	return nil
}

// SessionStatus fetches the server-side view of a session. Returns nil
// without error when the session is unknown.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*StatusResponse, error) {
	if sessionID == "" {
		sessionID = c.sessionID
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/session/status?session_id="+sessionID, nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxRequestBodySize))
	if err != nil {
		return nil, err
	}
	switch httpResp.StatusCode {
	case http.StatusOK:
		var resp StatusResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("status response malformed: %w", err)
		}
		return &resp, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("status request failed: %s", errorText(body, httpResp.StatusCode))
	}
}

// Health fetches the server health document.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	defer httpResp.Body.Close()

	var resp HealthResponse
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxRequestBodySize)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("health response malformed: %w", err)
	}
	return &resp, nil
}

// post sends a JSON body and returns the status and raw response body.
func (c *Client) post(ctx context.Context, path string, body any) (int, []byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRequestBodySize))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// postJSON sends a JSON body and decodes the response into target.
func (c *Client) postJSON(ctx context.Context, path string, body, target any) (int, error) {
	status, data, err := c.post(ctx, path, body)
	if err != nil {
		return status, err
	}
	if status >= 400 {
		return status, errors.New(errorText(data, status))
	}
	if target != nil {
		if err := json.Unmarshal(data, target); err != nil {
			return status, fmt.Errorf("response malformed: %w", err)
		}
	}
	return status, nil
}

// errorText extracts the error envelope, falling back to the status code.
func errorText(body []byte, status int) string {
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return errResp.Error
	}
	return fmt.Sprintf("HTTP %d", status)
}

// randomNonce returns 16 hex chars from the CSPRNG.
func randomNonce() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
