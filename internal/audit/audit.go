// Package audit writes structured audit events for credential access and
// session lifecycle. Events record identities and decisions only; credential
// values and vault tokens never appear in an audit record.
package audit

import (
	"fmt"
	"log/slog"
	"os"
)

// maxErrorLen caps error text in audit records so a wrapped CLI dump cannot
// flood the log.
const maxErrorLen = 200

// Logger writes audit events under the "audit" group.
// All methods are nil-safe: calling any method on a nil *Logger is a no-op,
// so callers can skip nil checks at every call site.
type Logger struct {
	logger *slog.Logger
}

// New creates a Logger that writes to the given handler.
func New(handler slog.Handler) *Logger {
	return &Logger{
		logger: slog.New(handler).WithGroup("audit"),
	}
}

// NewFileLogger creates a Logger appending text records to path (0600).
// The returned close function releases the file.
func NewFileLogger(path string) (*Logger, func() error, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo})
	return New(handler), f.Close, nil
}

// Request logs an incoming credential request before the approval decision.
func (a *Logger) Request(agentID, domain, reason string) {
	if a == nil {
		return
	}
	a.logger.Info("credential_request",
		"agent", agentID,
		"domain", domain,
		"reason", reason,
	)
}

// Denied logs a user denial.
func (a *Logger) Denied(agentID, domain string) {
	if a == nil {
		return
	}
	a.logger.Info("credential_denied",
		"agent", agentID,
		"domain", domain,
	)
}

// Success logs a credential released to an agent.
func (a *Logger) Success(agentID, domain string) {
	if a == nil {
		return
	}
	a.logger.Info("credential_success",
		"agent", agentID,
		"domain", domain,
	)
}

// NotFound logs a vault miss for the requested domain.
func (a *Logger) NotFound(agentID, domain string) {
	if a == nil {
		return
	}
	a.logger.Warn("credential_not_found",
		"agent", agentID,
		"domain", domain,
	)
}

// Error logs a failure during credential retrieval. The message is
// truncated; callers must pass sanitized text with no credential material.
func (a *Logger) Error(agentID, domain, errMsg string) {
	if a == nil {
		return
	}
	if len(errMsg) > maxErrorLen {
		errMsg = errMsg[:maxErrorLen]
	}
	a.logger.Error("credential_error",
		"agent", agentID,
		"domain", domain,
		"error", errMsg,
	)
}

// PairingCreated logs a new pairing request. The code is shown on the
// approver's terminal anyway and is not secret once displayed.
func (a *Logger) PairingCreated(agentID, agentName string) {
	if a == nil {
		return
	}
	a.logger.Info("pairing_created",
		"agent", agentID,
		"agent_name", agentName,
	)
}

// SessionEstablished logs a pairing promoted to an active session.
func (a *Logger) SessionEstablished(agentID, sessionID string) {
	if a == nil {
		return
	}
	a.logger.Info("session_established",
		"agent", agentID,
		"session", sessionID,
	)
}

// SessionRevoked logs a session teardown.
func (a *Logger) SessionRevoked(sessionID, cause string) {
	if a == nil {
		return
	}
	a.logger.Info("session_revoked",
		"session", sessionID,
		"cause", cause,
	)
}

// APIAccess logs one HTTP request against the approval surface.
func (a *Logger) APIAccess(method, path string, status int, requestID string) {
	if a == nil {
		return
	}
	a.logger.Info("api_access",
		"method", method,
		"path", path,
		"status", status,
		"request_id", requestID,
	)
}
