// Package driver implements the database-facing collaborators of the
// orchestration engine on top of the official MongoDB driver: the
// connector that performs connection attempts and the executor that
// runs generated collection queries.
package driver

import (
	"net/url"
	"strings"

	"github.com/xiaoli123/robomongo/config"
)

// BuildURI renders settings as a mongodb:// connection string.  For
// replica sets every member is listed and the set name is passed as an
// option; otherwise the single host:port target is used (which, after
// tunnel rewriting, points at the local forwarding endpoint).
func BuildURI(s *config.ConnectionSettings) string {
	var b strings.Builder
	b.WriteString("mongodb://")

	if s.UserName != "" {
		b.WriteString(url.QueryEscape(s.UserName))
		if s.Password != "" {
			b.WriteString(":")
			b.WriteString(url.QueryEscape(s.Password))
		}
		b.WriteString("@")
	}

	if s.IsReplicaSet() {
		b.WriteString(strings.Join(s.ReplicaSet.Members, ","))
	} else {
		b.WriteString(s.FullAddress())
	}

	b.WriteString("/")
	if s.DefaultDatabase != "" {
		b.WriteString(url.PathEscape(s.DefaultDatabase))
	}

	opts := buildOptions(s)
	if len(opts) > 0 {
		b.WriteString("?")
		b.WriteString(strings.Join(opts, "&"))
	}
	return b.String()
}

func buildOptions(s *config.ConnectionSettings) []string {
	var opts []string

	if s.IsReplicaSet() && s.ReplicaSet.SetName != "" {
		opts = append(opts, "replicaSet="+url.QueryEscape(s.ReplicaSet.SetName))
	}

	if s.SSL.Enabled {
		opts = append(opts, "tls=true")
		if s.SSL.AllowInvalidCertificates {
			opts = append(opts, "tlsInsecure=true")
		}
		if s.SSL.CAFile != "" {
			opts = append(opts, "tlsCAFile="+url.QueryEscape(s.SSL.CAFile))
		}
		if s.SSL.UsePemFile {
			opts = append(opts, "tlsCertificateKeyFile="+url.QueryEscape(s.SSL.PemKeyFile))
			if s.SSL.PemPassPhrase != "" {
				opts = append(opts, "tlsCertificateKeyFilePassword="+url.QueryEscape(s.SSL.PemPassPhrase))
			}
		}
	}
	return opts
}
