// Package tunnel implements the SSH tunnel worker: it establishes SSH
// connections on request, opens a loopback forwarding endpoint, and
// relays database traffic through the encrypted channel.  Requests and
// responses travel over the event bus, so the orchestrator never
// blocks on tunnel work.
package tunnel

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/xiaoli123/robomongo/config"
	rmerr "github.com/xiaoli123/robomongo/internal/errors"
	"github.com/xiaoli123/robomongo/util"
)

// SSHTunnel wraps one ssh.Client dialed from SshSettings.  Traffic is
// forwarded with ssh.Client.Dial.
type SSHTunnel struct {
	settings config.SshSettings
	logger   *util.Logger

	mu     sync.RWMutex
	client *ssh.Client
	alive  bool
}

// NewSSHTunnel creates a tunnel that is ready to [Connect].
func NewSSHTunnel(settings config.SshSettings, logger *util.Logger) *SSHTunnel {
	return &SSHTunnel{settings: settings, logger: logger}
}

// Connect dials the SSH gateway and completes the handshake.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	host := t.settings.Host
	port := t.settings.EffectivePort()

	authMethods, err := BuildAuthMethods(&t.settings)
	if err != nil {
		return rmerr.WrapSSH("auth", host, port, err)
	}

	hkCallback, err := hostKeyCallback(&t.settings)
	if err != nil {
		return rmerr.WrapSSH("hostkey", host, port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            t.settings.UserName,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         config.DefaultEstablishTimeout,
	}

	addr := util.FormatAddr(host, port)
	t.logger.Debug("SSH: dialing %s as %s", addr, t.settings.UserName)

	// Use a context-aware TCP dial so callers can cancel.
	var dialer net.Dialer
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return rmerr.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return rmerr.WrapSSH("handshake", host, port, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	t.mu.Lock()
	t.client = client
	t.alive = true
	t.mu.Unlock()

	go t.monitor()

	return nil
}

// Dial forwards a connection to address through the tunnel.
func (t *SSHTunnel) Dial(network, address string) (net.Conn, error) {
	t.mu.RLock()
	client := t.client
	alive := t.alive
	t.mu.RUnlock()

	if !alive || client == nil {
		return nil, rmerr.ErrNotConnected
	}

	t.logger.Debug("tunnel: dialing %s %s", network, address)
	conn, err := client.Dial(network, address)
	if err != nil {
		return nil, fmt.Errorf("tunnel dial %s: %w", address, err)
	}
	return conn, nil
}

// Close shuts down the SSH connection.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (t *SSHTunnel) monitor() {
	t.mu.RLock()
	client := t.client
	t.mu.RUnlock()
	if client == nil {
		return
	}

	err := client.Wait()

	t.mu.Lock()
	t.alive = false
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("SSH tunnel closed: %v", err)
	} else {
		t.logger.Debug("SSH tunnel closed")
	}
}
