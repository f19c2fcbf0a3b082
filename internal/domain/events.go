package domain

import (
	"github.com/xiaoli123/robomongo/config"
)

// Event type keys, one per concrete event struct.
const (
	TypeConnecting               = "connecting"
	TypeOpeningShell             = "opening-shell"
	TypeConnectionEstablished    = "connection-established"
	TypeConnectionFailed         = "connection-failed"
	TypeReplicaSetRefreshed      = "replica-set-refreshed"
	TypeLogMessage               = "log-message"
	TypeEstablishSshConnection   = "establish-ssh-connection-request"
	TypeEstablishSshConnectionOK = "establish-ssh-connection-response"
	TypeListenSshConnection      = "listen-ssh-connection-request"
	TypeListenSshConnectionOK    = "listen-ssh-connection-response"
)

// Severity grades log/notify intents emitted by the orchestration
// layer.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// FailureReason categorises a ConnectionFailedEvent.
type FailureReason int

const (
	// ReasonGeneric is a database-level connection failure.
	ReasonGeneric FailureReason = iota
	// ReasonSshConnection is a failure to establish the SSH tunnel.
	ReasonSshConnection
	// ReasonSshChannel is a failure of an established tunnel's channel.
	ReasonSshChannel
)

func (r FailureReason) String() string {
	switch r {
	case ReasonSshConnection:
		return "ssh-connection"
	case ReasonSshChannel:
		return "ssh-channel"
	}
	return "generic"
}

// ── Notifications ────────────────────────────────────────────────────

// ConnectingEvent announces that a primary open has begun.
type ConnectingEvent struct{}

func (ConnectingEvent) EventType() string { return TypeConnecting }

// OpeningShellEvent announces a new shell session ready for display.
type OpeningShellEvent struct {
	Shell *Shell
}

func (OpeningShellEvent) EventType() string { return TypeOpeningShell }

// ConnectionEstablishedEvent reports that a server finished its
// connection attempt successfully.
type ConnectionEstablishedEvent struct {
	Handle ServerHandle
	Type   ConnectionType
}

func (ConnectionEstablishedEvent) EventType() string { return TypeConnectionEstablished }

// ConnectionFailedEvent reports a failed open or a broken tunnel.
type ConnectionFailedEvent struct {
	Handle  ServerHandle
	Type    ConnectionType
	Message string
	Reason  FailureReason
}

func (ConnectionFailedEvent) EventType() string { return TypeConnectionFailed }

// ReplicaSetRefreshedEvent signals that the topology of the server
// identified by Handle changed.  Shells subscribe to this scoped to
// the server they were spawned from.
type ReplicaSetRefreshedEvent struct {
	Handle ServerHandle
}

func (ReplicaSetRefreshedEvent) EventType() string { return TypeReplicaSetRefreshed }

// LogMessage is a semantic log/notify intent.  InformUser asks the
// subscriber to interrupt the user with the message rather than just
// record it.
type LogMessage struct {
	Severity   Severity
	Message    string
	InformUser bool
}

func (LogMessage) EventType() string { return TypeLogMessage }

// ── Tunnel worker request/response ───────────────────────────────────

// EstablishSshConnectionRequest asks the tunnel worker to establish an
// SSH connection and open a local forwarding endpoint.  Settings is a
// clone owned by the request.
type EstablishSshConnectionRequest struct {
	Handle   ServerHandle
	Settings *config.ConnectionSettings
	Type     ConnectionType
}

func (EstablishSshConnectionRequest) EventType() string { return TypeEstablishSshConnection }

// EstablishSshConnectionResponse reports the outcome of tunnel
// establishment.  On success LocalPort is the loopback port the
// database connection should be routed through.
type EstablishSshConnectionResponse struct {
	Handle    ServerHandle
	Settings  *config.ConnectionSettings
	Type      ConnectionType
	LocalPort int
	Err       error
}

func (EstablishSshConnectionResponse) EventType() string { return TypeEstablishSshConnectionOK }

// ListenSshConnectionRequest asks the tunnel worker to start serving
// the forwarding loop for an established tunnel.
type ListenSshConnectionRequest struct {
	Handle ServerHandle
	Type   ConnectionType
}

func (ListenSshConnectionRequest) EventType() string { return TypeListenSshConnection }

// ListenSshConnectionResponse reports that the forwarding loop ended.
// A nil Err means the tunnel was closed deliberately; it is
// informational only and never re-triggers connection logic.
type ListenSshConnectionResponse struct {
	Handle ServerHandle
	Type   ConnectionType
	Err    error
}

func (ListenSshConnectionResponse) EventType() string { return TypeListenSshConnectionOK }
