package config

import "github.com/xiaoli123/robomongo/internal/errors"

// SslSettings configures TLS for the database connection itself
// (independent of any SSH tunnel in front of it).
type SslSettings struct {
	Enabled bool

	// UsePemFile presents a client certificate from PemKeyFile.
	UsePemFile bool
	PemKeyFile string

	// AskPassphrase requests the PEM key passphrase interactively at
	// open time; the answer lands in PemPassPhrase and is never
	// persisted.
	AskPassphrase bool
	PemPassPhrase string

	// AllowInvalidCertificates skips server certificate verification.
	AllowInvalidCertificates bool
	CAFile                   string
}

func (s *SslSettings) validate() error {
	if !s.Enabled {
		return nil
	}
	if s.UsePemFile && s.PemKeyFile == "" {
		return &errors.ConfigError{
			Field:   "ssl.pem-file",
			Message: "required when a client certificate is enabled",
		}
	}
	return nil
}
