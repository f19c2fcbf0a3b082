// Package credentials separates secret prompting from orchestration.
// The orchestrator asks an injected Provider when a connection's
// settings require an interactive password or passphrase; it never
// owns blocking UI concerns itself.
package credentials

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Kind identifies which secret is being requested.
type Kind int

const (
	// SSHPassword is the SSH user's login password.
	SSHPassword Kind = iota
	// SSHPassphrase unlocks an SSH private key file.
	SSHPassphrase
	// PEMPassphrase unlocks a TLS client certificate key.
	PEMPassphrase
)

// Request describes the secret being asked for, with enough context
// for the user to recognise what they are unlocking.
type Request struct {
	Kind    Kind
	Host    string // SSH gateway or database server address
	User    string
	KeyFile string // private key / PEM file path, when relevant
}

// Prompt renders the request as user-facing text, mirroring what a
// dialog would display.
func (r Request) Prompt() string {
	var b strings.Builder

	switch r.Kind {
	case SSHPassphrase:
		b.WriteString("In order to continue, please provide the passphrase for the key file.\n\n")
		b.WriteString("Private Key:  " + r.KeyFile + "\n")
	case PEMPassphrase:
		b.WriteString("In order to continue, please provide the passphrase.\n\n")
		b.WriteString("PEM file: " + r.KeyFile + "\n")
	default:
		b.WriteString("In order to continue, please provide the password.\n\n")
	}

	b.WriteString("Server: " + r.Host + "\n")
	if r.User != "" {
		b.WriteString("User: " + r.User + "\n")
	}

	what := "password"
	if r.Kind != SSHPassword {
		what = "passphrase"
	}
	b.WriteString("\nEnter your " + what + " that will never be stored: ")
	return b.String()
}

// Provider supplies secrets on demand.  ok=false means the user
// declined; the orchestrator must then abort the open without mutating
// any state.
type Provider interface {
	Ask(Request) (secret string, ok bool)
}

// ── Terminal provider ────────────────────────────────────────────────

// Terminal prompts on the controlling terminal with echo disabled.
type Terminal struct {
	// Out receives the prompt text (default os.Stderr).
	Out io.Writer
}

// Ask prints the prompt and reads a secret without echo.  Declining is
// expressed by the read failing (EOF, closed terminal).
func (t *Terminal) Ask(r Request) (string, bool) {
	out := t.Out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprint(out, r.Prompt())
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", false
	}
	return string(secret), true
}

// ── Static provider ──────────────────────────────────────────────────

// Static returns a fixed answer; used in tests and for non-interactive
// automation.
type Static struct {
	Secret    string
	Confirmed bool
}

// Ask returns the configured answer regardless of the request.
func (s Static) Ask(Request) (string, bool) { return s.Secret, s.Confirmed }
