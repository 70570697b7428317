package approval

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/vaultpair/vaultpair/internal/pairing"
)

// maxRequestBodySize caps JSON request bodies. The largest legitimate body
// is an encrypted credential request, well under a kilobyte.
const maxRequestBodySize = 1 << 20 // 1 MB

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /pairing/initiate", s.handleInitiate)
	mux.HandleFunc("POST /pairing/exchange", s.handleExchange)
	mux.HandleFunc("POST /credential/request", s.handleCredentialRequest)
	mux.HandleFunc("POST /session/revoke", s.handleRevoke)
	mux.HandleFunc("GET /session/status", s.handleStatus)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes a JSON error response.
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, ErrorResponse{Error: msg})
}

// decodeBody decodes a bounded JSON request body into target.
func decodeBody(r *http.Request, target any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize)).Decode(target)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:         "ok",
		ActiveSessions: s.manager.ActiveSessionCount(),
	})
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		respondError(w, http.StatusTooManyRequests, "Too many pairing attempts")
		return
	}

	var req InitiateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Missing request body")
		return
	}
	if req.AgentID == "" || req.AgentName == "" {
		respondError(w, http.StatusBadRequest, "Missing agent_id or agent_name")
		return
	}

	code, expiresAt, err := s.manager.CreatePairing(req.AgentID, req.AgentName)
	if err != nil {
		s.logger.Error("pairing creation failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "Pairing creation failed")
		return
	}
	if s.metrics != nil {
		s.metrics.PairingsCreatedTotal.Inc()
	}

	respondJSON(w, http.StatusOK, InitiateResponse{
		PairingCode: code,
		ExpiresAt:   pairing.WireTime(expiresAt),
	})
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Missing request body")
		return
	}
	if req.PairingCode == "" || req.PAKEMessage == "" {
		respondError(w, http.StatusBadRequest, "Missing pairing_code or pake_message")
		return
	}
	initiatorMsg, err := base64.StdEncoding.DecodeString(req.PAKEMessage)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid pake_message encoding")
		return
	}

	res := s.manager.ExchangePAKEMessage(r.Context(), req.PairingCode, initiatorMsg)
	switch res.Status {
	case pairing.StatusWaiting:
		respondJSON(w, http.StatusAccepted, ExchangeWaiting{Status: "waiting"})
	case pairing.StatusSuccess:
		respondJSON(w, http.StatusOK, ExchangeSuccess{
			SessionID:   res.SessionID,
			PAKEMessage: base64.StdEncoding.EncodeToString(res.PAKEMessage),
			AgentID:     res.AgentID,
		})
	default:
		respondError(w, http.StatusBadRequest, res.Err)
	}
}

func (s *Server) handleCredentialRequest(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Missing request body")
		return
	}
	if req.SessionID == "" || req.EncryptedPayload == "" {
		respondError(w, http.StatusBadRequest, "Missing session_id or encrypted_payload")
		return
	}

	// Blocks on the human approver; the outcome travels in the body with
	// HTTP 200 regardless of approval, denial, or manager error.
	res := s.manager.HandleCredentialRequest(r.Context(), req.SessionID, req.EncryptedPayload)
	if s.metrics != nil {
		s.metrics.CredentialDecisionsTotal.WithLabelValues(res.Status).Inc()
	}

	respondJSON(w, http.StatusOK, CredentialResponse{
		Status:           res.Status,
		EncryptedPayload: res.EncryptedPayload,
		Error:            res.Err,
	})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req RevokeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Missing request body")
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "Missing session_id")
		return
	}

	s.manager.RevokeSession(r.Context(), req.SessionID)
	respondJSON(w, http.StatusOK, RevokeResponse{Revoked: true, SessionID: req.SessionID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "Missing session_id parameter")
		return
	}

	info := s.manager.SessionStatus(sessionID)
	if info == nil {
		respondError(w, http.StatusNotFound, "Session not found")
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Active:     true,
		AgentName:  info.AgentName,
		LastAccess: pairing.WireTime(info.LastAccess),
		ExpiresAt:  pairing.WireTime(info.ExpiresAt),
	})
}
