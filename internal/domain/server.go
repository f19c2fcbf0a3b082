package domain

import (
	"context"
	"sync"

	"github.com/xiaoli123/robomongo/config"
	"github.com/xiaoli123/robomongo/internal/events"
)

// Connector performs the actual database connection attempt.  The
// mongo-driver implementation lives in internal/driver; tests inject
// stubs.
type Connector interface {
	Connect(ctx context.Context, settings *config.ConnectionSettings) error
}

// Server represents one logical database connection.  It owns a cloned
// ConnectionSettings and is held exclusively by the orchestrator's
// server collection until explicitly closed.
type Server struct {
	handle    ServerHandle
	settings  *config.ConnectionSettings
	connType  ConnectionType
	bus       *events.Bus
	connector Connector

	mu      sync.Mutex
	state   ConnState
	lastErr error
	cancel  context.CancelFunc
}

// NewServer creates a server in Connecting state.  settings must
// already be a clone owned by the server.
func NewServer(handle ServerHandle, settings *config.ConnectionSettings, connType ConnectionType,
	bus *events.Bus, connector Connector) *Server {
	return &Server{
		handle:    handle,
		settings:  settings,
		connType:  connType,
		bus:       bus,
		connector: connector,
		state:     StateConnecting,
	}
}

// Handle returns the server's correlation handle.
func (s *Server) Handle() ServerHandle { return s.handle }

// Type returns the connection type.
func (s *Server) Type() ConnectionType { return s.connType }

// Settings returns the server's owned settings.  Callers must not
// mutate the result.
func (s *Server) Settings() *config.ConnectionSettings { return s.settings }

// State returns the current connection state.
func (s *Server) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error of a failed connection attempt, if any.
func (s *Server) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// StartConnecting launches the connection attempt on its own worker
// goroutine and returns immediately.  The outcome is reported via
// ConnectionEstablishedEvent / ConnectionFailedEvent and reflected in
// [Server.State].  A server stays registered in Failed state until it
// is explicitly closed; there is no automatic retry.
func (s *Server) StartConnecting() {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultConnTimeout)

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		err := s.connector.Connect(ctx, s.settings)

		s.mu.Lock()
		if err != nil {
			s.state = StateFailed
			s.lastErr = err
		} else {
			s.state = StateConnected
		}
		s.mu.Unlock()

		if err != nil {
			s.bus.Publish(ConnectionFailedEvent{
				Handle:  s.handle,
				Type:    s.connType,
				Message: err.Error(),
				Reason:  ReasonGeneric,
			})
			return
		}
		s.bus.Publish(ConnectionEstablishedEvent{Handle: s.handle, Type: s.connType})
	}()
}

// Close abandons any in-flight connection attempt and releases the
// server's resources.  Safe to call more than once.
func (s *Server) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
