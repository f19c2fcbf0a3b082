// Package config defines the connection settings consumed by the
// orchestration engine: the target server, optional replica set
// members, and the SSH / TLS sub-settings.
package config

import (
	"strings"

	"github.com/xiaoli123/robomongo/internal/errors"
	"github.com/xiaoli123/robomongo/util"
)

// ConnectionSettings describes one saved database connection.  The
// orchestrator treats a ConnectionSettings as owned data: it clones
// before mutating, so callers keep their original untouched.
type ConnectionSettings struct {
	// ── Target ───────────────────────────────────────────────────────
	Name            string // display name of the connection
	Host            string
	Port            int
	DefaultDatabase string

	// ── Auth (database, not SSH) ─────────────────────────────────────
	UserName string
	Password string

	// ── Sub-settings ─────────────────────────────────────────────────
	ReplicaSet ReplicaSetSettings
	SSH        SshSettings
	SSL        SslSettings
}

// ReplicaSetSettings lists the member addresses of a replica set.  A
// connection with at least one member is treated as a replica-set
// connection and is never routed through an SSH tunnel directly.
type ReplicaSetSettings struct {
	SetName string
	Members []string // "host:port" per member
}

// Clone returns a deep copy.  Slices in sub-settings are copied so the
// clone can be mutated (host/port rewriting for tunnels) without
// affecting the original.
func (s *ConnectionSettings) Clone() *ConnectionSettings {
	c := *s
	c.ReplicaSet.Members = append([]string(nil), s.ReplicaSet.Members...)
	return &c
}

// IsReplicaSet reports whether this connection targets a replica set.
func (s *ConnectionSettings) IsReplicaSet() bool {
	return len(s.ReplicaSet.Members) > 0
}

// FullAddress returns "host:port" of the primary target.
func (s *ConnectionSettings) FullAddress() string {
	return util.FormatAddr(s.Host, s.Port)
}

// ConnectionName returns the display name, falling back to the address
// when the connection was never named.
func (s *ConnectionSettings) ConnectionName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.FullAddress()
}

// TargetLabel returns the human-readable label used in log and notify
// messages.  For replica sets: `<name> [Replica Set]<first member>`;
// otherwise the full address.  Purely cosmetic, never used for
// identity.
func (s *ConnectionSettings) TargetLabel() string {
	if !s.IsReplicaSet() {
		return s.FullAddress()
	}
	label := s.ConnectionName() + " [Replica Set]"
	if len(s.ReplicaSet.Members) > 0 {
		label += s.ReplicaSet.Members[0]
	}
	return label
}

// Validate checks the settings for internal consistency.  It returns a
// *errors.ConfigError describing the first problem found.
func (s *ConnectionSettings) Validate() error {
	if s.Host == "" && !s.IsReplicaSet() {
		return &errors.ConfigError{
			Field:   "host",
			Message: "required",
			Hint:    "set a server host or add replica set members",
		}
	}
	if s.Port < 0 || s.Port > 65535 {
		return &errors.ConfigError{
			Field:   "port",
			Value:   s.Port,
			Message: "out of range 0-65535",
		}
	}
	for _, m := range s.ReplicaSet.Members {
		if !strings.Contains(m, ":") {
			return &errors.ConfigError{
				Field:   "replica-set member",
				Value:   m,
				Message: "expected host:port",
			}
		}
	}
	if err := s.SSH.validate(); err != nil {
		return err
	}
	return s.SSL.validate()
}
