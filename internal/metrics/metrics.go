// Package metrics provides lightweight counters for tracking runtime
// statistics of the orchestration engine: servers opened, tunnels
// established, and bytes relayed through tunnel channels.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one orchestrator instance.
// A nil Collector is safe to use — all methods become no-ops.
type Collector struct {
	serversOpened atomic.Int64
	serversFailed atomic.Int64
	tunnelsActive atomic.Int64
	tunnelsTotal  atomic.Int64
	bytesIn       atomic.Int64
	bytesOut      atomic.Int64
	errorsTotal   atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Server metrics ───────────────────────────────────────────────────

// ServerOpened records a server registered in the live collection.
func (c *Collector) ServerOpened() {
	if c == nil {
		return
	}
	c.serversOpened.Add(1)
}

// ServerFailed records a connection attempt that ended in failure.
func (c *Collector) ServerFailed() {
	if c == nil {
		return
	}
	c.serversFailed.Add(1)
}

// ServersOpened returns the lifetime count of registered servers.
func (c *Collector) ServersOpened() int64 {
	if c == nil {
		return 0
	}
	return c.serversOpened.Load()
}

// ServersFailed returns the lifetime count of failed opens.
func (c *Collector) ServersFailed() int64 {
	if c == nil {
		return 0
	}
	return c.serversFailed.Load()
}

// ── Tunnel metrics ───────────────────────────────────────────────────

// TunnelOpened increments both the active and total tunnel counters.
func (c *Collector) TunnelOpened() {
	if c == nil {
		return
	}
	c.tunnelsActive.Add(1)
	c.tunnelsTotal.Add(1)
}

// TunnelClosed decrements the active tunnel counter.
func (c *Collector) TunnelClosed() {
	if c == nil {
		return
	}
	c.tunnelsActive.Add(-1)
}

// ActiveTunnels returns the number of currently established tunnels.
func (c *Collector) ActiveTunnels() int64 {
	if c == nil {
		return 0
	}
	return c.tunnelsActive.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes relayed from the tunnel toward the
// local client.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes relayed from the local client into the
// tunnel.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	ServersOpened    int64  `json:"servers_opened"`
	ServersFailed    int64  `json:"servers_failed"`
	TunnelsActive    int64  `json:"tunnels_active"`
	TunnelsTotal     int64  `json:"tunnels_total"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:        time.Since(c.startTime).Truncate(time.Second).String(),
		ServersOpened: c.serversOpened.Load(),
		ServersFailed: c.serversFailed.Load(),
		TunnelsActive: c.tunnelsActive.Load(),
		TunnelsTotal:  c.tunnelsTotal.Load(),
		BytesIn:       c.bytesIn.Load(),
		BytesOut:      c.bytesOut.Load(),
		ErrorsTotal:   c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON renders the snapshot as indented JSON.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
