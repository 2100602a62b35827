// Package harness provides the scenario engine: disposable HTTP server
// lifecycles with OS-assigned ports, the Scenario contract, and the
// registry used for suite selection.
package harness

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// ServerLifecycle binds an ephemeral HTTP listener and exposes a
// lazily-resolved base-URL accessor. Two interdependent servers each need
// the other's final address before either is fully configured, so
// cross-references must go through BaseURL (a deferred lookup), never a
// captured string.
type ServerLifecycle struct {
	name    string
	handler http.Handler
	logger  *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	started  bool
	stopped  bool
}

// NewServerLifecycle creates an unbound lifecycle. The handler may itself
// call BaseURL once Start has returned.
func NewServerLifecycle(name string, handler http.Handler, logger *zap.Logger) *ServerLifecycle {
	return &ServerLifecycle{
		name:    name,
		handler: handler,
		logger:  logger.Named(name),
	}
}

// Start binds a listener on an OS-assigned loopback port and begins
// serving. Starting twice is an error; use a fresh lifecycle per scenario
// instance.
func (s *ServerLifecycle) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("server %q already started", s.name)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to bind %q: %w", s.name, err)
	}

	s.listener = ln
	s.server = &http.Server{Handler: s.handler}
	s.started = true

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("server error", zap.Error(err))
		}
	}()

	s.logger.Debug("listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// BaseURL returns the externally reachable base URL. It must only be
// called after Start; handlers are guaranteed that ordering because no
// request can arrive before the listener is bound.
func (s *ServerLifecycle) BaseURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		panic(fmt.Sprintf("BaseURL called before Start on server %q", s.name))
	}
	return "http://" + s.listener.Addr().String()
}

// Bound reports whether the listener has been bound.
func (s *ServerLifecycle) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil
}

// Stop shuts the server down and releases the socket. It is idempotent and
// safe to call after a partial or failed Start, so sequential scenario runs
// can reuse ports.
func (s *ServerLifecycle) Stop() error {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	server := s.server
	listener := s.listener
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := server.Shutdown(ctx)
	// Shutdown closes the listener, but close again in case Shutdown
	// returned early on context expiry.
	_ = listener.Close()

	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to stop %q: %w", s.name, err)
	}
	return nil
}
