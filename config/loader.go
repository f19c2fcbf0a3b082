package config

// loader.go - settings loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the ROBOMONGO_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto s.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(s *ConnectionSettings) {
	if v := os.Getenv("ROBOMONGO_HOST"); v != "" {
		s.Host = v
	}
	if v := envInt("ROBOMONGO_PORT"); v > 0 {
		s.Port = v
	}
	if v := os.Getenv("ROBOMONGO_DATABASE"); v != "" {
		s.DefaultDatabase = v
	}
	if v := os.Getenv("ROBOMONGO_USER"); v != "" {
		s.UserName = v
	}
	if v := os.Getenv("ROBOMONGO_PASSWORD"); v != "" {
		s.Password = v
	}
	if v := os.Getenv("ROBOMONGO_REPLICA_SET"); v != "" {
		s.ReplicaSet.SetName = v
	}
	if v := os.Getenv("ROBOMONGO_REPLICA_MEMBERS"); v != "" {
		s.ReplicaSet.Members = splitList(v)
	}

	// SSH tunnel
	if envBool("ROBOMONGO_SSH") {
		s.SSH.Enabled = true
	}
	if v := os.Getenv("ROBOMONGO_SSH_HOST"); v != "" {
		s.SSH.Host = v
	}
	if v := envInt("ROBOMONGO_SSH_PORT"); v > 0 {
		s.SSH.Port = v
	}
	if v := os.Getenv("ROBOMONGO_SSH_USER"); v != "" {
		s.SSH.UserName = v
	}
	if v := os.Getenv("ROBOMONGO_SSH_KEY"); v != "" {
		s.SSH.PrivateKeyFile = v
		s.SSH.AuthMethod = SshAuthPublicKey
	}
	if envBool("ROBOMONGO_SSH_ASK_PASSWORD") {
		s.SSH.AskPassword = true
	}
	if envBool("ROBOMONGO_SSH_STRICT_HOSTKEY") {
		s.SSH.StrictHostKey = true
	}
	if v := os.Getenv("ROBOMONGO_SSH_KNOWN_HOSTS"); v != "" {
		s.SSH.KnownHostsFile = v
	}

	// TLS
	if envBool("ROBOMONGO_SSL") {
		s.SSL.Enabled = true
	}
	if v := os.Getenv("ROBOMONGO_SSL_PEM"); v != "" {
		s.SSL.UsePemFile = true
		s.SSL.PemKeyFile = v
	}
	if envBool("ROBOMONGO_SSL_ASK_PASSPHRASE") {
		s.SSL.AskPassphrase = true
	}
	if envBool("ROBOMONGO_SSL_ALLOW_INVALID") {
		s.SSL.AllowInvalidCertificates = true
	}
	if v := os.Getenv("ROBOMONGO_SSL_CA"); v != "" {
		s.SSL.CAFile = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envBool(name string) bool {
	v := strings.ToLower(os.Getenv(name))
	return v == "1" || v == "true" || v == "yes"
}

func envInt(name string) int {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
