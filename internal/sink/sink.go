// Package sink implements a multi-subscriber unix domain socket
// publisher: a non-blocking accept loop feeding up to MaxClients
// concurrent readers, each governed by an idle timeout, a bounded write
// retry, and an optional allow-drops backpressure policy.
package sink

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/chainflux/capturesvc/internal/perr"
)

// MaxClients bounds concurrent subscriber connections per sink.
const MaxClients = 8

// WriteTimeout bounds how long a single payload write may take before
// the client is dropped.
const WriteTimeout = 100 * time.Millisecond

// IdleTimeout closes a client that has not received a successful
// payload in this long.
const IdleTimeout = 3 * time.Second

type client struct {
	conn       *net.UnixConn
	lastTime   time.Time
	lastSize   int
	frameCount uint64
	dropCount  uint64
}

// Options configure per-sink behavior.
type Options struct {
	// OneFrame closes a client immediately after its first successful
	// delivery — used for snapshot-style sinks.
	OneFrame bool
	// AllowDrops skips a payload for a client whose kernel send queue
	// still holds data from the previous payload, instead of blocking
	// the whole sink on a slow reader.
	AllowDrops bool
}

// Sink is one listening unix socket with its attached subscribers.
type Sink struct {
	log  zerolog.Logger
	path string
	opts Options

	ln *net.UnixListener

	mu           sync.Mutex
	clients      [MaxClients]*client
	numClients   int
	needKeyframe bool
}

// Open unlinks any stale entry at path, creates a listening unix socket,
// makes it world-accessible, and sets it non-blocking.
func Open(log zerolog.Logger, path string, opts Options) (*Sink, error) {
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %v", perr.ErrEndpointBindFailed, path, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", perr.ErrEndpointBindFailed, path, err)
	}
	if err := os.Chmod(path, 0o777); err != nil {
		ln.Close()
		return nil, fmt.Errorf("%w: chmod %s: %v", perr.ErrEndpointBindFailed, path, err)
	}
	// Close() also unlinks path explicitly; SetUnlinkOnClose is left at
	// its default so an early process crash doesn't remove the node out
	// from under a still-listening peer.
	return &Sink{
		log:  log.With().Str("sink", path).Logger(),
		path: path,
		opts: opts,
		ln:   ln,
	}, nil
}

// AcceptAll accepts every pending subscriber in a tight non-blocking
// loop, assigning each the first free slot and marking needKeyframe.
// Connections beyond MaxClients are rejected and closed immediately.
func (s *Sink) AcceptAll() {
	if err := s.ln.SetDeadline(time.Now()); err != nil {
		return
	}
	for {
		conn, err := s.ln.AcceptUnix()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return
			}
			return
		}

		s.mu.Lock()
		slot := -1
		for i, c := range s.clients {
			if c == nil {
				slot = i
				break
			}
		}
		if slot < 0 {
			s.mu.Unlock()
			conn.Close()
			s.log.Warn().Str("reason", "max clients reached").Msg("rejected subscriber")
			continue
		}
		s.clients[slot] = &client{conn: conn}
		s.numClients++
		s.needKeyframe = true
		n := s.numClients
		s.mu.Unlock()
		s.log.Info().Int("slot", slot).Int("clients", n).Msg("subscriber connected")
	}
}

// NeedKeyframe reports whether a subscriber has joined since the flag
// was last cleared.
func (s *Sink) NeedKeyframe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needKeyframe
}

// ClearNeedKeyframe resets the flag after the pipeline has honored it
// for the next encoded unit.
func (s *Sink) ClearNeedKeyframe() {
	s.mu.Lock()
	s.needKeyframe = false
	s.mu.Unlock()
}

// NumClients returns the current live subscriber count.
func (s *Sink) NumClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numClients
}

// Active reports whether the sink has any subscriber worth encoding
// for; the pipeline may skip encode work entirely when this is false.
func (s *Sink) Active() bool {
	return s.NumClients() > 0
}

// Write delivers payload to every live subscriber per the per-client
// policy: idle clients are dropped, slow clients under AllowDrops skip
// a payload instead of blocking, and all others get a bounded retried
// write.
func (s *Sink) Write(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for i, c := range s.clients {
		if c == nil {
			continue
		}

		if !c.lastTime.IsZero() && now.Sub(c.lastTime) > IdleTimeout {
			s.closeSlot(i, "idle timeout")
			continue
		}

		if s.opts.AllowDrops && c.lastSize > 0 && outstandingBytes(c.conn) >= c.lastSize {
			c.dropCount++
			continue
		}

		if err := writeWithRetry(c.conn, payload, WriteTimeout); err != nil {
			reason := "write error"
			if errors.Is(err, perr.ErrClientWriteTimeout) {
				reason = "write timeout"
			}
			s.closeSlot(i, reason)
			continue
		}

		c.lastTime = now
		c.lastSize = len(payload)
		c.frameCount++

		if s.opts.OneFrame {
			s.closeSlot(i, "one-frame delivery complete")
		}
	}
}

// closeSlot must be called with mu held.
func (s *Sink) closeSlot(i int, reason string) {
	c := s.clients[i]
	if c == nil {
		return
	}
	c.conn.Close()
	s.clients[i] = nil
	s.numClients--
	s.log.Info().Int("slot", i).Str("reason", reason).Msg("subscriber closed")
}

// Close closes every subscriber and the listener, and unlinks path.
func (s *Sink) Close() error {
	s.mu.Lock()
	for i, c := range s.clients {
		if c != nil {
			c.conn.Close()
			s.clients[i] = nil
		}
	}
	s.numClients = 0
	s.mu.Unlock()

	err := s.ln.Close()
	_ = os.Remove(s.path)
	return err
}

// writeWithRetry attempts to send all of payload within timeout,
// returning ErrClientWriteTimeout if the deadline is hit mid-write.
func writeWithRetry(conn *net.UnixConn, payload []byte, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", perr.ErrClientWriteError, err)
	}

	written := 0
	for written < len(payload) {
		n, err := conn.Write(payload[written:])
		written += n
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return perr.ErrClientWriteTimeout
		}
		return fmt.Errorf("%w: %v", perr.ErrClientWriteError, err)
	}
	return nil
}

// outstandingBytes queries the kernel's outgoing queue depth for conn's
// underlying descriptor via SIOCOUTQ, used by the allow-drops policy to
// detect a subscriber that hasn't drained the previous payload yet.
func outstandingBytes(conn *net.UnixConn) int {
	sc, err := conn.SyscallConn()
	if err != nil {
		return 0
	}
	var outq int
	_ = sc.Control(func(fd uintptr) {
		v, err := unix.IoctlGetInt(int(fd), unix.SIOCOUTQ)
		if err == nil {
			outq = v
		}
	})
	return outq
}
