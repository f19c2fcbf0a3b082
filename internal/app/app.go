// Package app contains the orchestrator that owns the live server and
// shell collections and drives the open/close lifecycle, including the
// asynchronous SSH tunnel handshake.
package app

import (
	"fmt"
	"sync"

	"github.com/xiaoli123/robomongo/config"
	"github.com/xiaoli123/robomongo/internal/credentials"
	"github.com/xiaoli123/robomongo/internal/domain"
	"github.com/xiaoli123/robomongo/internal/events"
	"github.com/xiaoli123/robomongo/internal/metrics"
	"github.com/xiaoli123/robomongo/util"
)

// Options wires the orchestrator's collaborators.
type Options struct {
	Bus         *events.Bus
	Logger      *util.Logger
	Credentials credentials.Provider // may be nil when no settings use ask-mode
	Connector   domain.Connector
	Executor    domain.Executor // may be nil (load-only shells)
	// TunnelWorker receives establish/listen requests via Bus.Send.
	TunnelWorker events.Handler
	Metrics      *metrics.Collector // may be nil

	// TunnelClosedSeverity grades the "SSH tunnel closed" message
	// published when a listen loop ends cleanly.  Defaults to
	// SeverityInfo.
	TunnelClosedSeverity *domain.Severity

	// Notify is invoked for log messages flagged as must-interrupt.
	Notify func(severity domain.Severity, message string)
}

// App orchestrates server and shell sessions.  It is an explicit,
// constructed context object: collaborators receive it by reference,
// there is no ambient singleton.
//
// The bus delivers events to the App one at a time; the mutex
// additionally covers the caller-facing methods, which run on the
// caller's goroutine rather than the dispatch path.
type App struct {
	bus          *events.Bus
	logger       *util.Logger
	creds        credentials.Provider
	connector    domain.Connector
	executor     domain.Executor
	tunnelWorker events.Handler
	metrics      *metrics.Collector
	closedSev    domain.Severity
	notify       func(domain.Severity, string)

	mu         sync.Mutex
	lastHandle domain.ServerHandle
	servers    []*domain.Server
	shells     []*domain.Shell
}

// New constructs an App and subscribes its handlers on the bus.
func New(opts Options) *App {
	a := &App{
		bus:          opts.Bus,
		logger:       opts.Logger,
		creds:        opts.Credentials,
		connector:    opts.Connector,
		executor:     opts.Executor,
		tunnelWorker: opts.TunnelWorker,
		metrics:      opts.Metrics,
		closedSev:    domain.SeverityInfo,
		notify:       opts.Notify,
	}
	if opts.TunnelClosedSeverity != nil {
		a.closedSev = *opts.TunnelClosedSeverity
	}

	a.bus.Subscribe(domain.TypeEstablishSshConnectionOK, a)
	a.bus.Subscribe(domain.TypeListenSshConnectionOK, a)
	a.bus.Subscribe(domain.TypeLogMessage, a)
	return a
}

// ── Accessors ────────────────────────────────────────────────────────

// Servers returns a copy of the live server collection.
func (a *App) Servers() []*domain.Server {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*domain.Server(nil), a.servers...)
}

// Shells returns a copy of the live shell collection.
func (a *App) Shells() []*domain.Shell {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*domain.Shell(nil), a.shells...)
}

// ServerByHandle resolves a live server by handle; nil when absent.
// This is the resolver shells use instead of caching server pointers.
func (a *App) ServerByHandle(h domain.ServerHandle) *domain.Server {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.servers {
		if s.Handle() == h {
			return s
		}
	}
	return nil
}

// ── Open / close lifecycle ───────────────────────────────────────────

// OpenServer creates and opens a new server connection.  The returned
// bool means "request accepted", not "connected": for tunnelled opens
// no server exists yet when OpenServer returns — it is registered once
// the tunnel worker reports success.  A false return means a required
// credential was declined; no state was mutated and no event emitted.
func (a *App) OpenServer(settings *config.ConnectionSettings, connType domain.ConnectionType) bool {
	if settings == nil {
		return false
	}

	work, ok := a.resolveCredentials(settings, connType)
	if !ok {
		return false
	}

	a.openServerInternal(work, connType)
	return true
}

// resolveCredentials applies the credential preconditions for
// Primary/Test opens and returns a working clone with any asked
// secrets filled in.  ok=false means the user declined.
func (a *App) resolveCredentials(settings *config.ConnectionSettings, connType domain.ConnectionType) (*config.ConnectionSettings, bool) {
	work := settings.Clone()
	interactive := connType == domain.ConnectionPrimary || connType == domain.ConnectionTest

	ssh := &work.SSH
	if interactive && !work.IsReplicaSet() && ssh.Enabled && ssh.AskPassword {
		kind := credentials.SSHPassword
		if ssh.AuthMethod == config.SshAuthPublicKey {
			kind = credentials.SSHPassphrase
		}
		secret, ok := a.ask(credentials.Request{
			Kind:    kind,
			Host:    ssh.Host,
			User:    ssh.UserName,
			KeyFile: ssh.PrivateKeyFile,
		})
		if !ok {
			return nil, false
		}
		ssh.AskedPassword = secret
	}

	ssl := &work.SSL
	if interactive && ssl.Enabled && ssl.UsePemFile && ssl.AskPassphrase {
		secret, ok := a.ask(credentials.Request{
			Kind:    credentials.PEMPassphrase,
			Host:    work.FullAddress(),
			KeyFile: ssl.PemKeyFile,
		})
		if !ok {
			return nil, false
		}
		ssl.PemPassPhrase = secret
	}

	return work, true
}

func (a *App) ask(req credentials.Request) (string, bool) {
	if a.creds == nil {
		return "", false
	}
	return a.creds.Ask(req)
}

// openServerInternal allocates the handle and either connects right
// away or kicks off the tunnel handshake.  It returns the new server
// for the synchronous path and nil for the tunnel path; the caller on
// the synchronous path must not register the result itself — this
// method already did.
func (a *App) openServerInternal(settings *config.ConnectionSettings, connType domain.ConnectionType) *domain.Server {
	a.mu.Lock()
	a.lastHandle++
	handle := a.lastHandle
	a.mu.Unlock()

	if connType == domain.ConnectionPrimary {
		a.bus.Publish(domain.ConnectingEvent{})
	}

	// Secondary connections, replica sets, and SSH-less settings
	// connect without a tunnel.
	if connType == domain.ConnectionSecondary || !settings.SSH.Enabled || settings.IsReplicaSet() {
		srv := a.continueOpenServer(handle, settings, connType, 0)
		a.register(srv)
		return srv
	}

	a.bus.Publish(domain.LogMessage{
		Severity: domain.SeverityInfo,
		Message: fmt.Sprintf("Creating SSH tunnel to %s...",
			util.FormatAddr(settings.SSH.Host, settings.SSH.EffectivePort())),
	})

	a.bus.Send(a.tunnelWorker, domain.EstablishSshConnectionRequest{
		Handle:   handle,
		Settings: settings.Clone(),
		Type:     connType,
	})
	return nil
}

// continueOpenServer builds the server and starts its connection
// attempt.  Invoked directly on the no-tunnel path and from the
// establish-response handler on the tunnel path, in which case the
// effective target is rewritten to the loopback forwarding endpoint.
// The caller is responsible for registering the returned server.
func (a *App) continueOpenServer(handle domain.ServerHandle, settings *config.ConnectionSettings,
	connType domain.ConnectionType, localPort int) *domain.Server {

	clone := settings.Clone()

	// The rewrite mirrors the tunnel decision rule exactly.
	if (connType == domain.ConnectionPrimary || connType == domain.ConnectionTest) &&
		!clone.IsReplicaSet() && clone.SSH.Enabled {
		clone.Host = util.LoopbackHost
		clone.Port = localPort
	}

	a.bus.Publish(domain.LogMessage{
		Severity: domain.SeverityInfo,
		Message:  fmt.Sprintf("Connecting to %s...", settings.TargetLabel()),
	})

	srv := domain.NewServer(handle, clone, connType, a.bus, a.connector)
	srv.StartConnecting()
	return srv
}

// register appends srv to the live collection.
func (a *App) register(srv *domain.Server) {
	a.mu.Lock()
	a.servers = append(a.servers, srv)
	a.mu.Unlock()
	a.metrics.ServerOpened()
}

// CloseServer removes the server (matched by identity) from the live
// collection and releases its resources.  No-op when the server is not
// tracked.
func (a *App) CloseServer(server *domain.Server) {
	if server == nil {
		return
	}

	a.mu.Lock()
	removed := false
	kept := a.servers[:0]
	for _, s := range a.servers {
		if s == server {
			removed = true
			continue
		}
		kept = append(kept, s)
	}
	a.servers = kept
	a.mu.Unlock()

	if removed {
		server.Close()
	}
}

// CloseShell closes the shell's bound server first, then removes the
// shell.  No-op when the shell is not tracked by this App.
func (a *App) CloseShell(shell *domain.Shell) {
	if shell == nil {
		return
	}

	a.mu.Lock()
	found := false
	for _, sh := range a.shells {
		if sh == shell {
			found = true
			break
		}
	}
	a.mu.Unlock()
	if !found {
		return
	}

	// Server teardown before shell removal, so there is no window
	// where an open shell references a server missing from the live
	// collection.
	a.CloseServer(shell.Server())

	a.mu.Lock()
	kept := a.shells[:0]
	for _, sh := range a.shells {
		if sh != shell {
			kept = append(kept, sh)
		}
	}
	a.shells = kept
	a.mu.Unlock()

	a.bus.Unsubscribe(domain.TypeReplicaSetRefreshed, shell)
}

// ── Shell opening ────────────────────────────────────────────────────

// OpenShellForCollection opens a shell pre-loaded with the default
// "list documents" query for the collection.
func (a *App) OpenShellForCollection(coll *domain.Collection, filePathToSave string) *domain.Shell {
	if coll == nil || coll.Database == nil || coll.Database.Server == nil {
		return nil
	}
	server := coll.Database.Server
	dbName := coll.Database.Name

	settings := server.Settings().Clone()
	settings.DefaultDatabase = dbName

	script := domain.CollectionQuery(coll.Name, "find({})")
	return a.OpenShell(server, settings, domain.NewScriptInfo(
		script, true, dbName, domain.CursorPosition{Line: 0, Column: -2}, dbName, filePathToSave))
}

// OpenShellForDatabase opens a shell with the given script targeting
// the database.
func (a *App) OpenShellForDatabase(db *domain.Database, script string, execute bool,
	title string, cursor domain.CursorPosition, filePathToSave string) *domain.Shell {
	if db == nil || db.Server == nil {
		return nil
	}
	settings := db.Server.Settings().Clone()
	settings.DefaultDatabase = db.Name
	return a.OpenShell(db.Server, settings,
		domain.NewScriptInfo(script, execute, db.Name, cursor, title, filePathToSave))
}

// OpenShellWithScript opens a shell on the server with an arbitrary
// script, optionally switching the default database.
func (a *App) OpenShellWithScript(server *domain.Server, script, dbName string, execute bool,
	title string, cursor domain.CursorPosition, filePathToSave string) *domain.Shell {
	if server == nil {
		return nil
	}
	settings := server.Settings().Clone()
	if dbName != "" {
		settings.DefaultDatabase = dbName
	}
	return a.OpenShell(server, settings,
		domain.NewScriptInfo(script, execute, dbName, cursor, title, filePathToSave))
}

// OpenShell is the primitive the other entry points funnel into.  It
// opens a fresh Secondary server from a clone of settings, binds a new
// shell to it, and subscribes the shell to replica-set topology
// refreshes of the *originating* server.  Aborts silently when either
// the originating server or the new secondary is missing.
func (a *App) OpenShell(server *domain.Server, settings *config.ConnectionSettings,
	scriptInfo domain.ScriptInfo) *domain.Shell {
	if server == nil || settings == nil {
		return nil
	}

	secondary := a.openServerInternal(settings.Clone(), domain.ConnectionSecondary)
	if secondary == nil {
		return nil
	}

	shell := domain.NewShell(secondary.Handle(), a, scriptInfo, a.executor, a.bus)

	// Shells reflect topology changes of the server they were spawned
	// from, not their own tunnel-local connection.
	origin := server.Handle()
	a.bus.SubscribeFiltered(domain.TypeReplicaSetRefreshed, shell, func(e events.Event) bool {
		r, ok := e.(domain.ReplicaSetRefreshedEvent)
		return ok && r.Handle == origin
	})

	a.mu.Lock()
	a.shells = append(a.shells, shell)
	a.mu.Unlock()

	a.bus.Publish(domain.OpeningShellEvent{Shell: shell})
	shell.Execute()
	return shell
}

// ── Event handlers ───────────────────────────────────────────────────

// HandleEvent dispatches bus events this App subscribed to.
func (a *App) HandleEvent(e events.Event) {
	switch ev := e.(type) {
	case domain.EstablishSshConnectionResponse:
		a.handleEstablishResponse(ev)
	case domain.ListenSshConnectionResponse:
		a.handleListenResponse(ev)
	case domain.LogMessage:
		a.handleLogMessage(ev)
	}
}

// handleEstablishResponse completes or abandons a pending tunnelled
// open.  On failure the handle is simply dropped — it is never reused
// and no server is ever created for it.
func (a *App) handleEstablishResponse(e domain.EstablishSshConnectionResponse) {
	if e.Err != nil {
		a.metrics.ServerFailed()
		a.bus.Publish(domain.ConnectionFailedEvent{
			Handle:  e.Handle,
			Type:    e.Type,
			Message: e.Err.Error(),
			Reason:  domain.ReasonSshConnection,
		})
		return
	}

	a.bus.Publish(domain.LogMessage{
		Severity: domain.SeverityInfo,
		Message:  "SSH tunnel created successfully",
	})

	srv := a.continueOpenServer(e.Handle, e.Settings, e.Type, e.LocalPort)
	a.register(srv)

	// Keep the tunnel served and monitored.
	a.bus.Send(a.tunnelWorker, domain.ListenSshConnectionRequest{
		Handle: e.Handle,
		Type:   e.Type,
	})
}

// handleListenResponse reports the end of a tunnel's forwarding loop.
// A clean end is informational only — the earlier establish success is
// not undone and no connection logic re-triggers.  Any server already
// registered for the handle stays; its own connection state governs
// its fate.
func (a *App) handleListenResponse(e domain.ListenSshConnectionResponse) {
	if e.Err != nil {
		a.bus.Publish(domain.ConnectionFailedEvent{
			Handle:  e.Handle,
			Type:    e.Type,
			Message: e.Err.Error(),
			Reason:  domain.ReasonSshChannel,
		})
		return
	}

	a.bus.Publish(domain.LogMessage{
		Severity: a.closedSev,
		Message:  "SSH tunnel closed.",
	})
}

// handleLogMessage renders semantic log intents through the logger and
// forwards must-interrupt messages to the notifier.
func (a *App) handleLogMessage(e domain.LogMessage) {
	switch e.Severity {
	case domain.SeverityError:
		a.logger.Error("%s", e.Message)
	case domain.SeverityWarning:
		a.logger.Warn("%s", e.Message)
	default:
		a.logger.Info("%s", e.Message)
	}

	if e.InformUser && a.notify != nil {
		a.notify(e.Severity, e.Message)
	}
}
