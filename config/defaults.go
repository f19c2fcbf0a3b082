package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultServerPort is the standard MongoDB port.
	DefaultServerPort = 27017

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout bounds a single database connect attempt.
	DefaultConnTimeout = 30 * time.Second

	// DefaultEstablishTimeout bounds the SSH dial + handshake when a
	// tunnel is being created.
	DefaultEstablishTimeout = 30 * time.Second

	// DefaultAcceptRetries is how many times the tunnel listen loop
	// retries a temporary accept error before giving up.
	DefaultAcceptRetries = 5

	// DefaultAcceptBackoff is the initial delay between accept
	// retries.
	DefaultAcceptBackoff = 100 * time.Millisecond
)
