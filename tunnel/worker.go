package tunnel

import (
	"context"
	"net"
	"sync"

	"github.com/xiaoli123/robomongo/config"
	"github.com/xiaoli123/robomongo/internal/domain"
	rmerr "github.com/xiaoli123/robomongo/internal/errors"
	"github.com/xiaoli123/robomongo/internal/events"
	"github.com/xiaoli123/robomongo/internal/metrics"
	"github.com/xiaoli123/robomongo/internal/retry"
	"github.com/xiaoli123/robomongo/util"
)

// forwarding tracks one established tunnel: the SSH client, the
// loopback listener the database connection is routed through, and the
// real remote address behind the gateway.
type forwarding struct {
	tun        *SSHTunnel
	listener   net.Listener
	remoteAddr string

	mu     sync.Mutex
	closed bool // listener shut down deliberately
}

func (f *forwarding) markClosed() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *forwarding) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Worker establishes and serves SSH tunnels on behalf of the
// orchestrator.  It receives EstablishSshConnectionRequest /
// ListenSshConnectionRequest events via [events.Bus.Send] and replies
// by publishing the corresponding response events.
type Worker struct {
	bus     *events.Bus
	logger  *util.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	tunnels  map[domain.ServerHandle]*forwarding
	shutdown bool
}

// NewWorker creates a tunnel worker publishing responses on bus.
// metrics may be nil.
func NewWorker(bus *events.Bus, logger *util.Logger, collector *metrics.Collector) *Worker {
	return &Worker{
		bus:     bus,
		logger:  logger,
		metrics: collector,
		tunnels: make(map[domain.ServerHandle]*forwarding),
	}
}

// HandleEvent dispatches bus requests addressed to this worker.  Each
// request arrives on its own goroutine (see events.Bus.Send), so a
// slow establish never delays another tunnel.
func (w *Worker) HandleEvent(e events.Event) {
	switch req := e.(type) {
	case domain.EstablishSshConnectionRequest:
		w.establish(req)
	case domain.ListenSshConnectionRequest:
		w.listen(req)
	}
}

// establish dials the SSH gateway, opens the loopback endpoint and
// reports the allocated local port.
func (w *Worker) establish(req domain.EstablishSshConnectionRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultEstablishTimeout)
	defer cancel()

	tun := NewSSHTunnel(req.Settings.SSH, w.logger)
	if err := tun.Connect(ctx); err != nil {
		w.respondEstablish(req, 0, err)
		return
	}

	listener, err := net.Listen("tcp", util.LoopbackHost+":0")
	if err != nil {
		tun.Close()
		w.respondEstablish(req, 0, rmerr.Wrap("listen", util.LoopbackHost+":0", err))
		return
	}

	fw := &forwarding{
		tun:        tun,
		listener:   listener,
		remoteAddr: req.Settings.FullAddress(),
	}

	w.mu.Lock()
	if w.shutdown {
		w.mu.Unlock()
		listener.Close()
		tun.Close()
		w.respondEstablish(req, 0, rmerr.ErrTunnelClosed)
		return
	}
	w.tunnels[req.Handle] = fw
	w.mu.Unlock()

	w.metrics.TunnelOpened()

	port := listener.Addr().(*net.TCPAddr).Port
	w.logger.Verbose("tunnel: %s ready on local port %d (handle %d)",
		req.Settings.SSH.Host, port, req.Handle)
	w.respondEstablish(req, port, nil)
}

// listen serves the accept/forward loop for an established tunnel and
// publishes ListenSshConnectionResponse when the loop ends.  A nil
// error in the response means the tunnel was closed deliberately.
func (w *Worker) listen(req domain.ListenSshConnectionRequest) {
	w.mu.Lock()
	fw := w.tunnels[req.Handle]
	w.mu.Unlock()

	if fw == nil {
		w.respondListen(req, rmerr.ErrNotConnected)
		return
	}

	err := w.acceptLoop(fw)

	w.mu.Lock()
	delete(w.tunnels, req.Handle)
	w.mu.Unlock()

	fw.listener.Close()
	fw.tun.Close()
	w.metrics.TunnelClosed()

	if fw.isClosed() {
		// Deliberate shutdown is not a channel failure.
		err = nil
	}
	w.respondListen(req, err)
}

// acceptLoop accepts local connections and forwards each through the
// tunnel.  Temporary accept errors are retried with backoff; anything
// else ends the loop.
func (w *Worker) acceptLoop(fw *forwarding) error {
	backoff := &retry.Backoff{
		InitialDelay: config.DefaultAcceptBackoff,
		MaxAttempts:  config.DefaultAcceptRetries,
		Multiplier:   2.0,
		Jitter:       true,
	}

	for {
		var conn net.Conn
		err := backoff.Do(context.Background(), func(int) error {
			var acceptErr error
			conn, acceptErr = fw.listener.Accept()
			if acceptErr == nil {
				return nil
			}
			if fw.isClosed() || !rmerr.IsRetryable(acceptErr) {
				return retry.Permanent(acceptErr)
			}
			w.logger.Debug("tunnel: temporary accept error: %v", acceptErr)
			return acceptErr
		})
		if err != nil {
			return err
		}
		go w.forward(fw, conn)
	}
}

// forward relays one local connection to the remote database address
// through the SSH channel.
func (w *Worker) forward(fw *forwarding, local net.Conn) {
	remote, err := fw.tun.Dial("tcp", fw.remoteAddr)
	if err != nil {
		w.logger.Error("tunnel: forwarding to %s: %v", fw.remoteAddr, err)
		w.metrics.RecordError(err.Error())
		local.Close()
		return
	}

	sent, received, err := util.Relay(local, remote)
	w.metrics.BytesSent(sent)
	w.metrics.BytesReceived(received)
	if err != nil {
		w.logger.Debug("tunnel: relay ended: %v", err)
	}
}

// CloseTunnel shuts one tunnel down deliberately.  The serving listen
// loop observes the closed listener and reports a clean end.
func (w *Worker) CloseTunnel(handle domain.ServerHandle) {
	w.mu.Lock()
	fw := w.tunnels[handle]
	w.mu.Unlock()
	if fw == nil {
		return
	}
	fw.markClosed()
	fw.listener.Close()
}

// Close tears down every tunnel.  Establish requests arriving after
// Close are rejected.
func (w *Worker) Close() {
	w.mu.Lock()
	w.shutdown = true
	tunnels := make([]*forwarding, 0, len(w.tunnels))
	for _, fw := range w.tunnels {
		tunnels = append(tunnels, fw)
	}
	w.mu.Unlock()

	for _, fw := range tunnels {
		fw.markClosed()
		fw.listener.Close()
		fw.tun.Close()
	}
}

// ── responses ────────────────────────────────────────────────────────

func (w *Worker) respondEstablish(req domain.EstablishSshConnectionRequest, port int, err error) {
	if err != nil {
		w.metrics.RecordError(err.Error())
	}
	w.bus.Publish(domain.EstablishSshConnectionResponse{
		Handle:    req.Handle,
		Settings:  req.Settings,
		Type:      req.Type,
		LocalPort: port,
		Err:       err,
	})
}

func (w *Worker) respondListen(req domain.ListenSshConnectionRequest, err error) {
	if err != nil {
		w.metrics.RecordError(err.Error())
	}
	w.bus.Publish(domain.ListenSshConnectionResponse{
		Handle: req.Handle,
		Type:   req.Type,
		Err:    err,
	})
}
