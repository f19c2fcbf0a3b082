package app

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaoli123/robomongo/config"
	"github.com/xiaoli123/robomongo/internal/credentials"
	"github.com/xiaoli123/robomongo/internal/domain"
	"github.com/xiaoli123/robomongo/internal/events"
	"github.com/xiaoli123/robomongo/util"
)

// blockingConnector never finishes, so no connection outcome events
// interfere with orchestration assertions.
type blockingConnector struct{}

func (blockingConnector) Connect(ctx context.Context, _ *config.ConnectionSettings) error {
	<-ctx.Done()
	return ctx.Err()
}

// recordingWorker captures tunnel requests instead of opening tunnels.
type recordingWorker struct {
	establish chan domain.EstablishSshConnectionRequest
	listen    chan domain.ListenSshConnectionRequest
}

func newRecordingWorker() *recordingWorker {
	return &recordingWorker{
		establish: make(chan domain.EstablishSshConnectionRequest, 16),
		listen:    make(chan domain.ListenSshConnectionRequest, 16),
	}
}

func (w *recordingWorker) HandleEvent(e events.Event) {
	switch req := e.(type) {
	case domain.EstablishSshConnectionRequest:
		w.establish <- req
	case domain.ListenSshConnectionRequest:
		w.listen <- req
	}
}

func (w *recordingWorker) waitEstablish(t *testing.T) domain.EstablishSshConnectionRequest {
	t.Helper()
	select {
	case req := <-w.establish:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no establish request dispatched")
		return domain.EstablishSshConnectionRequest{}
	}
}

func (w *recordingWorker) waitListen(t *testing.T) domain.ListenSshConnectionRequest {
	t.Helper()
	select {
	case req := <-w.listen:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no listen request dispatched")
		return domain.ListenSshConnectionRequest{}
	}
}

func (w *recordingWorker) noEstablish() bool {
	select {
	case <-w.establish:
		return false
	case <-time.After(50 * time.Millisecond):
		return true
	}
}

// recorder collects published notification events.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) HandleEvent(e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recorder) failures() []domain.ConnectionFailedEvent {
	var out []domain.ConnectionFailedEvent
	for _, e := range r.all() {
		if f, ok := e.(domain.ConnectionFailedEvent); ok {
			out = append(out, f)
		}
	}
	return out
}

func (r *recorder) connecting() int {
	n := 0
	for _, e := range r.all() {
		if _, ok := e.(domain.ConnectingEvent); ok {
			n++
		}
	}
	return n
}

func (r *recorder) logs() []domain.LogMessage {
	var out []domain.LogMessage
	for _, e := range r.all() {
		if m, ok := e.(domain.LogMessage); ok {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	app    *App
	bus    *events.Bus
	worker *recordingWorker
	rec    *recorder
}

func newFixture(t *testing.T, provider credentials.Provider) *fixture {
	t.Helper()

	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)

	bus := events.New()
	rec := &recorder{}
	for _, typ := range []string{
		domain.TypeConnecting, domain.TypeOpeningShell, domain.TypeConnectionFailed,
		domain.TypeLogMessage, domain.TypeConnectionEstablished,
	} {
		bus.Subscribe(typ, rec)
	}

	worker := newRecordingWorker()
	a := New(Options{
		Bus:          bus,
		Logger:       logger,
		Credentials:  provider,
		Connector:    blockingConnector{},
		TunnelWorker: worker,
	})
	return &fixture{app: a, bus: bus, worker: worker, rec: rec}
}

func plainSettings() *config.ConnectionSettings {
	return &config.ConnectionSettings{Name: "local", Host: "db.internal", Port: 27017}
}

func sshSettings() *config.ConnectionSettings {
	s := plainSettings()
	s.SSH = config.SshSettings{
		Enabled:    true,
		Host:       "bastion.example.com",
		UserName:   "admin",
		AuthMethod: config.SshAuthPassword,
		Password:   "hunter2",
	}
	return s
}

func replicaSettings() *config.ConnectionSettings {
	s := sshSettings()
	s.ReplicaSet = config.ReplicaSetSettings{
		SetName: "rs0",
		Members: []string{"rs1:27017", "rs2:27017"},
	}
	return s
}

// ── Tunnel decision ──────────────────────────────────────────────────

func TestOpenServer_TunnelDecisionMatrix(t *testing.T) {
	tests := []struct {
		name       string
		connType   domain.ConnectionType
		replicaSet bool
		sshEnabled bool
		wantTunnel bool
	}{
		{"primary ssh", domain.ConnectionPrimary, false, true, true},
		{"primary ssh replica-set", domain.ConnectionPrimary, true, true, false},
		{"test ssh", domain.ConnectionTest, false, true, true},
		{"test ssh replica-set", domain.ConnectionTest, true, true, false},
		{"secondary ssh", domain.ConnectionSecondary, false, true, false},
		{"secondary ssh replica-set", domain.ConnectionSecondary, true, true, false},
		{"primary no ssh", domain.ConnectionPrimary, false, false, false},
		{"test no ssh", domain.ConnectionTest, false, false, false},
		{"secondary no ssh", domain.ConnectionSecondary, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)

			var s *config.ConnectionSettings
			switch {
			case tt.replicaSet:
				s = replicaSettings()
			case tt.sshEnabled:
				s = sshSettings()
			default:
				s = plainSettings()
			}
			s.SSH.Enabled = tt.sshEnabled

			require.True(t, f.app.OpenServer(s, tt.connType))

			if tt.wantTunnel {
				req := f.worker.waitEstablish(t)
				assert.Equal(t, tt.connType, req.Type)
				assert.Empty(t, f.app.Servers(), "tunnelled open must not register a server yet")
			} else {
				assert.Len(t, f.app.Servers(), 1)
				assert.True(t, f.worker.noEstablish(), "no tunnel request expected")
			}
		})
	}
}

func TestOpenServer_ConnectingEventOnlyForPrimary(t *testing.T) {
	f := newFixture(t, nil)

	f.app.OpenServer(plainSettings(), domain.ConnectionPrimary)
	f.app.OpenServer(plainSettings(), domain.ConnectionSecondary)
	f.app.OpenServer(plainSettings(), domain.ConnectionTest)

	assert.Equal(t, 1, f.rec.connecting())
}

// ── Handles ──────────────────────────────────────────────────────────

func TestOpenServer_HandleMonotonicity(t *testing.T) {
	f := newFixture(t, nil)

	var handles []domain.ServerHandle

	// Mix synchronous and tunnelled opens.
	f.app.OpenServer(plainSettings(), domain.ConnectionSecondary)
	handles = append(handles, f.app.Servers()[0].Handle())

	f.app.OpenServer(sshSettings(), domain.ConnectionPrimary)
	handles = append(handles, f.worker.waitEstablish(t).Handle)

	f.app.OpenServer(plainSettings(), domain.ConnectionSecondary)
	handles = append(handles, f.app.Servers()[1].Handle())

	f.app.OpenServer(sshSettings(), domain.ConnectionTest)
	handles = append(handles, f.worker.waitEstablish(t).Handle)

	require.Len(t, handles, 4)
	for i := 1; i < len(handles); i++ {
		assert.Greater(t, handles[i], handles[i-1], "handles must be strictly increasing")
	}
}

func TestOpenServer_HandleNotReusedAfterFailure(t *testing.T) {
	f := newFixture(t, nil)

	f.app.OpenServer(sshSettings(), domain.ConnectionPrimary)
	first := f.worker.waitEstablish(t)

	// Abandon the first open.
	f.bus.Publish(domain.EstablishSshConnectionResponse{
		Handle: first.Handle, Settings: first.Settings, Type: first.Type,
		Err: assert.AnError,
	})

	f.app.OpenServer(sshSettings(), domain.ConnectionPrimary)
	second := f.worker.waitEstablish(t)

	assert.Greater(t, second.Handle, first.Handle)
}

// ── Credentials ──────────────────────────────────────────────────────

func TestOpenServer_CredentialDeclined(t *testing.T) {
	f := newFixture(t, credentials.Static{Confirmed: false})

	s := sshSettings()
	s.SSH.AskPassword = true

	assert.False(t, f.app.OpenServer(s, domain.ConnectionPrimary))
	assert.Empty(t, f.app.Servers())
	assert.Empty(t, f.rec.all(), "declined open must not emit events")
	assert.True(t, f.worker.noEstablish())
}

func TestOpenServer_CredentialAccepted(t *testing.T) {
	f := newFixture(t, credentials.Static{Secret: "s3cret", Confirmed: true})

	s := sshSettings()
	s.SSH.AskPassword = true

	require.True(t, f.app.OpenServer(s, domain.ConnectionPrimary))
	req := f.worker.waitEstablish(t)

	assert.Equal(t, "s3cret", req.Settings.SSH.AskedPassword)
	assert.Empty(t, s.SSH.AskedPassword, "caller's settings must stay untouched")
}

func TestOpenServer_NoCredentialPromptForSecondary(t *testing.T) {
	// A provider that would fail the test if consulted.
	f := newFixture(t, credentials.Static{Confirmed: false})

	s := sshSettings()
	s.SSH.AskPassword = true
	s.SSH.Enabled = false // secondary with ssh disabled connects directly

	assert.True(t, f.app.OpenServer(s, domain.ConnectionSecondary))
	assert.Len(t, f.app.Servers(), 1)
}

// ── Handshake state machine ──────────────────────────────────────────

func TestHandshake_EstablishSuccessRegistersServer(t *testing.T) {
	f := newFixture(t, nil)
	original := sshSettings()

	require.True(t, f.app.OpenServer(original, domain.ConnectionPrimary))
	req := f.worker.waitEstablish(t)
	require.Empty(t, f.app.Servers())

	f.bus.Publish(domain.EstablishSshConnectionResponse{
		Handle: req.Handle, Settings: req.Settings, Type: req.Type, LocalPort: 12345,
	})

	servers := f.app.Servers()
	require.Len(t, servers, 1)
	srv := servers[0]
	assert.Equal(t, req.Handle, srv.Handle())
	assert.Equal(t, util.LoopbackHost, srv.Settings().Host)
	assert.Equal(t, 12345, srv.Settings().Port)

	// The original target is untouched; the rewrite happened on a clone.
	assert.Equal(t, "db.internal", original.Host)
	assert.Equal(t, 27017, original.Port)

	listen := f.worker.waitListen(t)
	assert.Equal(t, req.Handle, listen.Handle)
	assert.Equal(t, req.Type, listen.Type)
}

func TestHandshake_EstablishFailure(t *testing.T) {
	f := newFixture(t, nil)

	require.True(t, f.app.OpenServer(sshSettings(), domain.ConnectionPrimary))
	req := f.worker.waitEstablish(t)

	f.bus.Publish(domain.EstablishSshConnectionResponse{
		Handle: req.Handle, Settings: req.Settings, Type: req.Type,
		Err: assert.AnError,
	})

	assert.Empty(t, f.app.Servers(), "no server may appear for a failed establish")

	failures := f.rec.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, req.Handle, failures[0].Handle)
	assert.Equal(t, domain.ReasonSshConnection, failures[0].Reason)
}

func TestHandshake_ListenFailureKeepsServer(t *testing.T) {
	f := newFixture(t, nil)

	require.True(t, f.app.OpenServer(sshSettings(), domain.ConnectionPrimary))
	req := f.worker.waitEstablish(t)

	f.bus.Publish(domain.EstablishSshConnectionResponse{
		Handle: req.Handle, Settings: req.Settings, Type: req.Type, LocalPort: 2000,
	})
	require.Len(t, f.app.Servers(), 1)

	f.bus.Publish(domain.ListenSshConnectionResponse{
		Handle: req.Handle, Type: req.Type, Err: assert.AnError,
	})

	// The earlier success is not undone.
	assert.Len(t, f.app.Servers(), 1)

	failures := f.rec.failures()
	require.Len(t, failures, 1)
	assert.Equal(t, domain.ReasonSshChannel, failures[0].Reason)
}

func TestHandshake_CleanTunnelCloseIsInformational(t *testing.T) {
	f := newFixture(t, nil)

	f.bus.Publish(domain.ListenSshConnectionResponse{Handle: 42, Type: domain.ConnectionPrimary})

	assert.Empty(t, f.rec.failures())
	logs := f.rec.logs()
	require.NotEmpty(t, logs)
	last := logs[len(logs)-1]
	assert.Equal(t, "SSH tunnel closed.", last.Message)
	assert.Equal(t, domain.SeverityInfo, last.Severity)
}

func TestHandshake_TunnelClosedSeverityConfigurable(t *testing.T) {
	logger := util.NewLogger(0)
	logger.SetOutput(io.Discard)

	bus := events.New()
	rec := &recorder{}
	bus.Subscribe(domain.TypeLogMessage, rec)

	sev := domain.SeverityError
	New(Options{
		Bus:                  bus,
		Logger:               logger,
		Connector:            blockingConnector{},
		TunnelWorker:         newRecordingWorker(),
		TunnelClosedSeverity: &sev,
	})

	bus.Publish(domain.ListenSshConnectionResponse{Handle: 1, Type: domain.ConnectionPrimary})

	logs := rec.logs()
	require.NotEmpty(t, logs)
	assert.Equal(t, domain.SeverityError, logs[len(logs)-1].Severity)
}

// ── Close ────────────────────────────────────────────────────────────

func TestCloseServer_Idempotent(t *testing.T) {
	f := newFixture(t, nil)

	f.app.OpenServer(plainSettings(), domain.ConnectionSecondary)
	require.Len(t, f.app.Servers(), 1)
	srv := f.app.Servers()[0]

	f.app.CloseServer(srv)
	assert.Empty(t, f.app.Servers())

	// Closing again, or closing nil, changes nothing.
	f.app.CloseServer(srv)
	f.app.CloseServer(nil)
	assert.Empty(t, f.app.Servers())
}

func TestCloseShell_NotTracked(t *testing.T) {
	f := newFixture(t, nil)

	f.app.CloseShell(nil)
	f.app.CloseShell(&domain.Shell{})
	assert.Empty(t, f.app.Shells())
	assert.Empty(t, f.app.Servers())
}

// ── Shells ───────────────────────────────────────────────────────────

func openPrimary(t *testing.T, f *fixture) *domain.Server {
	t.Helper()
	require.True(t, f.app.OpenServer(plainSettings(), domain.ConnectionPrimary))
	servers := f.app.Servers()
	require.Len(t, servers, 1)
	return servers[0]
}

func TestOpenShell_BindsSecondaryServer(t *testing.T) {
	f := newFixture(t, nil)
	primary := openPrimary(t, f)

	script := domain.NewScriptInfo("db.stats()", false, "shop", domain.CursorPosition{}, "shop", "")
	shell := f.app.OpenShell(primary, primary.Settings(), script)
	require.NotNil(t, shell)

	require.Len(t, f.app.Shells(), 1)
	require.Len(t, f.app.Servers(), 2)

	bound := shell.Server()
	require.NotNil(t, bound)
	assert.Equal(t, domain.ConnectionSecondary, bound.Type())
	assert.NotEqual(t, primary.Handle(), bound.Handle())

	// The shell announcement went out.
	var opened int
	for _, e := range f.rec.all() {
		if ev, ok := e.(domain.OpeningShellEvent); ok {
			opened++
			assert.Same(t, shell, ev.Shell)
		}
	}
	assert.Equal(t, 1, opened)
}

func TestOpenShell_NilOriginAborts(t *testing.T) {
	f := newFixture(t, nil)

	shell := f.app.OpenShell(nil, plainSettings(), domain.ScriptInfo{})
	assert.Nil(t, shell)
	assert.Empty(t, f.app.Shells())
	assert.Empty(t, f.app.Servers())
}

func TestCloseShell_RemovesShellAndServer(t *testing.T) {
	f := newFixture(t, nil)
	primary := openPrimary(t, f)

	shell := f.app.OpenShell(primary, primary.Settings(), domain.ScriptInfo{})
	require.NotNil(t, shell)
	require.Len(t, f.app.Servers(), 2)

	f.app.CloseShell(shell)

	assert.Empty(t, f.app.Shells())
	assert.Len(t, f.app.Servers(), 1, "only the shell's server is closed")
	assert.Nil(t, shell.Server(), "the bound server is gone from the collection")

	// Redundant close is a no-op and cannot close the server twice.
	f.app.CloseShell(shell)
	assert.Len(t, f.app.Servers(), 1)
}

func TestOpenShell_TopologyRefreshScopedToOrigin(t *testing.T) {
	f := newFixture(t, nil)
	primary := openPrimary(t, f)

	shell := f.app.OpenShell(primary, primary.Settings(), domain.ScriptInfo{})
	require.NotNil(t, shell)

	f.bus.Publish(domain.ReplicaSetRefreshedEvent{Handle: primary.Handle()})
	assert.Equal(t, int64(1), shell.TopologyVersion())

	// Refreshes of unrelated servers are not delivered to this shell.
	f.bus.Publish(domain.ReplicaSetRefreshedEvent{Handle: primary.Handle() + 100})
	assert.Equal(t, int64(1), shell.TopologyVersion())

	// After closing, the subscription is dropped.
	f.app.CloseShell(shell)
	f.bus.Publish(domain.ReplicaSetRefreshedEvent{Handle: primary.Handle()})
	assert.Equal(t, int64(1), shell.TopologyVersion())
}

func TestOpenShellForCollection_BuildsDefaultQuery(t *testing.T) {
	f := newFixture(t, nil)
	primary := openPrimary(t, f)

	db := &domain.Database{Server: primary, Name: "shop"}
	coll := &domain.Collection{Database: db, Name: "orders"}

	shell := f.app.OpenShellForCollection(coll, "/tmp/orders.js")
	require.NotNil(t, shell)

	script := shell.Script()
	assert.Equal(t, "db.getCollection('orders').find({})", script.Script)
	assert.True(t, script.Execute)
	assert.Equal(t, "shop", script.Database)
	assert.Equal(t, domain.CursorPosition{Line: 0, Column: -2}, script.Cursor)
	assert.Equal(t, "/tmp/orders.js", script.FilePath)

	// The shell's own connection targets the right default database.
	assert.Equal(t, "shop", shell.Server().Settings().DefaultDatabase)
}

func TestOpenShellWithScript_NilServer(t *testing.T) {
	f := newFixture(t, nil)

	shell := f.app.OpenShellWithScript(nil, "db.stats()", "", true, "t", domain.CursorPosition{}, "")
	assert.Nil(t, shell)
}
