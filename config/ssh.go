package config

import "github.com/xiaoli123/robomongo/internal/errors"

// SshAuthMethod selects how the SSH tunnel authenticates.
type SshAuthMethod string

const (
	// SshAuthPublicKey authenticates with a private key file, possibly
	// protected by a passphrase.
	SshAuthPublicKey SshAuthMethod = "publickey"
	// SshAuthPassword authenticates with the user's password.
	SshAuthPassword SshAuthMethod = "password"
)

// SshSettings configures the optional SSH tunnel in front of a
// connection.
type SshSettings struct {
	Enabled bool

	Host     string
	Port     int // 0 → DefaultSSHPort
	UserName string

	AuthMethod     SshAuthMethod
	PrivateKeyFile string
	Passphrase     string // key passphrase (publickey method)
	Password       string // user password (password method)

	// AskPassword requests the secret interactively at open time
	// instead of reading it from the stored settings.  The prompted
	// value lands in AskedPassword and is never persisted.
	AskPassword   bool
	AskedPassword string

	// Host-key verification policy.
	StrictHostKey  bool
	KnownHostsFile string
}

// EffectivePort returns the configured port or the SSH default.
func (s *SshSettings) EffectivePort() int {
	if s.Port == 0 {
		return DefaultSSHPort
	}
	return s.Port
}

// Secret returns the credential to present for the configured auth
// method, preferring an interactively asked one.
func (s *SshSettings) Secret() string {
	if s.AskedPassword != "" {
		return s.AskedPassword
	}
	if s.AuthMethod == SshAuthPublicKey {
		return s.Passphrase
	}
	return s.Password
}

func (s *SshSettings) validate() error {
	if !s.Enabled {
		return nil
	}
	if s.Host == "" {
		return &errors.ConfigError{Field: "ssh.host", Message: "required when SSH is enabled"}
	}
	if s.UserName == "" {
		return &errors.ConfigError{Field: "ssh.user", Message: "required when SSH is enabled"}
	}
	if s.AuthMethod == SshAuthPublicKey && s.PrivateKeyFile == "" {
		return &errors.ConfigError{
			Field:   "ssh.private-key",
			Message: "required for publickey authentication",
			Hint:    "set a key file or switch to password authentication",
		}
	}
	return nil
}
