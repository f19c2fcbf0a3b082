package domain

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/xiaoli123/robomongo/config"
	"github.com/xiaoli123/robomongo/internal/events"
)

// ServerResolver looks a live server up by handle.  The orchestrator's
// server collection is the authoritative owner; shells hold handles
// and re-resolve instead of caching a pointer that could dangle after
// CloseServer.
type ServerResolver interface {
	ServerByHandle(ServerHandle) *Server
}

// Executor runs a shell script against a server.  The mongo-driver
// implementation lives in internal/driver; a nil Executor makes
// Execute a no-op (load-only shells).
type Executor interface {
	Execute(ctx context.Context, settings *config.ConnectionSettings, script ScriptInfo) error
}

// Shell is a script execution context bound to exactly one
// Secondary-type server that it exclusively owns.  Closing the shell
// closes the bound server.
type Shell struct {
	id           string
	serverHandle ServerHandle
	resolver     ServerResolver
	script       ScriptInfo
	executor     Executor
	bus          *events.Bus

	topology atomic.Int64 // bumped on replica-set refresh of the origin server

	mu      sync.Mutex
	lastErr error
}

// NewShell binds a shell to the server identified by serverHandle.
func NewShell(serverHandle ServerHandle, resolver ServerResolver, script ScriptInfo,
	executor Executor, bus *events.Bus) *Shell {
	return &Shell{
		id:           uuid.NewString(),
		serverHandle: serverHandle,
		resolver:     resolver,
		script:       script,
		executor:     executor,
		bus:          bus,
	}
}

// ID returns the shell's unique identifier.
func (sh *Shell) ID() string { return sh.id }

// ServerHandle returns the handle of the bound Secondary server.
func (sh *Shell) ServerHandle() ServerHandle { return sh.serverHandle }

// Server resolves the bound server through the owning collection.
// Returns nil once the server has been closed.
func (sh *Shell) Server() *Server {
	return sh.resolver.ServerByHandle(sh.serverHandle)
}

// Script returns the shell's script description.
func (sh *Shell) Script() ScriptInfo { return sh.script }

// TopologyVersion counts replica-set refreshes observed for the server
// this shell was spawned from.  UI layers poll it to re-render.
func (sh *Shell) TopologyVersion() int64 { return sh.topology.Load() }

// LastError returns the error of the most recent execution, if any.
func (sh *Shell) LastError() error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.lastErr
}

// Execute runs the shell's script on its own worker goroutine when the
// script is flagged for execution.  Load-only scripts (Execute=false)
// and shells without an executor do nothing.
func (sh *Shell) Execute() {
	if sh.executor == nil || !sh.script.Execute {
		return
	}
	srv := sh.Server()
	if srv == nil {
		return
	}
	settings := srv.Settings()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.DefaultConnTimeout)
		defer cancel()

		err := sh.executor.Execute(ctx, settings, sh.script)

		sh.mu.Lock()
		sh.lastErr = err
		sh.mu.Unlock()

		if err != nil && sh.bus != nil {
			sh.bus.Publish(LogMessage{
				Severity: SeverityError,
				Message:  "shell execution: " + err.Error(),
			})
		}
	}()
}

// HandleEvent receives ReplicaSetRefreshedEvent notifications the
// orchestrator subscribed this shell to.
func (sh *Shell) HandleEvent(e events.Event) {
	if _, ok := e.(ReplicaSetRefreshedEvent); ok {
		sh.topology.Add(1)
	}
}
