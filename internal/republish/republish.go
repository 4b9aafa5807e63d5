// Package republish implements a shared in-process frame-source adapter:
// a set of live stream sources, each with at most one pending shared byte
// buffer, filled by Publish and drained by WantNext. The RTSP and WebRTC
// republishers in this module do not use it; they feed their tracks
// directly.
//
// Only the reactor goroutine that owns a Hub may call into it, including
// from within a callback it invoked itself (e.g. a "want next" callback
// that immediately publishes another unit). That single-goroutine
// reentrancy contract is what lets a plain sync.Mutex plus an
// already-held flag stand in for a recursive mutex, instead of pulling in
// goroutine-id tracking.
package republish

import "sync"

// Unit is one immutable access unit shared across every source that has
// not yet drained it.
type Unit struct {
	data   []byte
	offset int
	refs   int
}

func newUnit(data []byte) *Unit {
	return &Unit{data: data}
}

func (u *Unit) remaining() int { return len(u.data) - u.offset }

// Source is one attached stream consumer. It is created by Hub.Attach and
// must be detached exactly once via Hub.Detach.
type Source struct {
	id      int
	pending *Unit
	// drops counts access units that arrived while this source still had
	// a pending buffer.
	drops int
}

// DropCount returns the number of access units skipped for this source
// because it had not drained the previous one yet.
func (s *Source) DropCount() int { return s.drops }

// Hub owns the active source set and the recursive-locking contract
// described in the package doc.
type Hub struct {
	mu      sync.Mutex
	held    bool
	nextID  int
	sources map[int]*Source
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{sources: make(map[int]*Source)}
}

func (h *Hub) lock() (unlock func()) {
	if h.held {
		return func() {}
	}
	h.mu.Lock()
	h.held = true
	return func() {
		h.held = false
		h.mu.Unlock()
	}
}

// Attach registers a new source and returns its handle.
func (h *Hub) Attach() *Source {
	defer h.lock()()
	h.nextID++
	s := &Source{id: h.nextID}
	h.sources[s.id] = s
	return s
}

// Detach removes a source from the active set. Any pending buffer it held
// is released once its own reference is dropped.
func (h *Hub) Detach(s *Source) {
	defer h.lock()()
	delete(h.sources, s.id)
}

// Publish constructs a shared buffer from data and offers it to every
// attached source. A source that already has a pending buffer is skipped
// and its drop counter is incremented.
func (h *Hub) Publish(data []byte) {
	defer h.lock()()
	unit := newUnit(data)
	for _, s := range h.sources {
		if s.pending != nil {
			s.drops++
			continue
		}
		unit.refs++
		s.pending = unit
	}
}

// WantNext copies as many bytes as fit into dst from s's pending buffer,
// advancing the internal offset. It returns the number of bytes copied,
// the number of bytes that didn't fit (they stay pending for the next
// call), and whether the buffer was fully drained (and thus released) by
// this call.
// If s has no pending buffer, it returns (0, 0, false).
func (h *Hub) WantNext(s *Source, dst []byte) (n int, truncated int, drained bool) {
	defer h.lock()()
	u := s.pending
	if u == nil {
		return 0, 0, false
	}

	avail := u.remaining()
	n = avail
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst[:n], u.data[u.offset:u.offset+n])
	u.offset += n
	truncated = avail - n

	if u.remaining() == 0 {
		s.pending = nil
		u.refs--
		drained = true
	}
	return n, truncated, drained
}

// Pending reports whether s currently has an undrained buffer.
func (h *Hub) Pending(s *Source) bool {
	defer h.lock()()
	return s.pending != nil
}

// Count returns the number of attached sources.
func (h *Hub) Count() int {
	defer h.lock()()
	return len(h.sources)
}
