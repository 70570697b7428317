// Package approval serves the loopback HTTP surface of the broker and the
// matching client SDK. Handlers are thin: decode, route to the pairing
// manager, encode. Internal error text never crosses the wire.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vaultpair/vaultpair/internal/audit"
	"github.com/vaultpair/vaultpair/internal/pairing"
)

// ErrNotLoopback is returned when the listen address is not a loopback
// interface. The surface carries secrets with no TLS; loopback is the trust
// boundary.
var ErrNotLoopback = errors.New("listen address is not loopback")

// initiateRate throttles pairing initiation. Grinding the 6-digit code
// space requires many pairings; one per second with a small burst is far
// more than legitimate agents need.
var initiateRate = rate.Limit(1)

const initiateBurst = 5

// Server is the approval service HTTP front end.
type Server struct {
	manager *pairing.Manager
	logger  *slog.Logger
	auditor *audit.Logger
	metrics *Metrics

	limiter    *rate.Limiter
	httpServer *http.Server
}

// ServerOptions configures optional server collaborators.
type ServerOptions struct {
	Logger  *slog.Logger
	Auditor *audit.Logger
	Metrics *Metrics
}

// NewServer builds a server over the manager.
func NewServer(manager *pairing.Manager, opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		manager: manager,
		logger:  logger,
		auditor: opts.Auditor,
		metrics: opts.Metrics,
		limiter: rate.NewLimiter(initiateRate, initiateBurst),
	}
}

// Handler returns the instrumented root handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return instrumentHandler(mux, s.metrics, s.auditor)
}

// ListenAndServe binds addr and serves until Shutdown or listener failure.
// Non-loopback addresses are rejected.
func (s *Server) ListenAndServe(addr string) error {
	if err := requireLoopback(addr); err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Credential requests block on a human; the write deadline must
		// outlast the slowest plausible approval.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	s.logger.Info("approval service listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requireLoopback verifies addr resolves to a loopback IP.
func requireLoopback(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("%w: %s", ErrNotLoopback, addr)
	}
	return nil
}
