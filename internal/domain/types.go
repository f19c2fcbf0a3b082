// Package domain holds the session entities managed by the
// orchestrator — servers and shells — together with the typed events
// exchanged over the bus.
package domain

// ServerHandle correlates an open request with its eventual
// asynchronous outcome.  Handles are issued once, strictly
// increasing, and never reused even when an open fails.
type ServerHandle int

// ConnectionType classifies a server connection.
type ConnectionType int

const (
	// ConnectionPrimary is the explorer-visible main connection.
	ConnectionPrimary ConnectionType = iota
	// ConnectionSecondary is an ad-hoc background connection, e.g.
	// the one backing a shell.
	ConnectionSecondary
	// ConnectionTest is a connectivity check that is never persisted
	// to the live set until the caller confirms success.
	ConnectionTest
)

func (t ConnectionType) String() string {
	switch t {
	case ConnectionPrimary:
		return "primary"
	case ConnectionSecondary:
		return "secondary"
	case ConnectionTest:
		return "test"
	}
	return "unknown"
}

// ConnState tracks a server's connection lifecycle.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateConnected
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}
