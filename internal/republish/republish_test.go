package republish

import "testing"

func TestPublishAndWantNext(t *testing.T) {
	h := NewHub()
	s := h.Attach()
	defer h.Detach(s)

	h.Publish([]byte("hello world"))

	buf := make([]byte, 5)
	n, truncated, drained := h.WantNext(s, buf)
	if n != 5 || truncated != 6 || drained {
		t.Fatalf("got n=%d truncated=%d drained=%v, want 5,6,false", n, truncated, drained)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q", buf)
	}

	buf2 := make([]byte, 16)
	n, truncated, drained = h.WantNext(s, buf2)
	if n != 6 || truncated != 0 || !drained {
		t.Fatalf("got n=%d truncated=%d drained=%v, want 6,0,true", n, truncated, drained)
	}
	if string(buf2[:n]) != " world" {
		t.Fatalf("got %q", buf2[:n])
	}
}

func TestPublishSkipsSourceWithPendingBuffer(t *testing.T) {
	h := NewHub()
	s := h.Attach()
	defer h.Detach(s)

	h.Publish([]byte("first"))
	h.Publish([]byte("second"))

	if s.DropCount() != 1 {
		t.Fatalf("DropCount() = %d, want 1", s.DropCount())
	}

	buf := make([]byte, 16)
	n, _, drained := h.WantNext(s, buf)
	if string(buf[:n]) != "first" || !drained {
		t.Fatalf("got %q drained=%v, want %q drained=true", buf[:n], drained, "first")
	}
}

func TestWantNextWithNoPendingBuffer(t *testing.T) {
	h := NewHub()
	s := h.Attach()
	defer h.Detach(s)

	n, truncated, drained := h.WantNext(s, make([]byte, 4))
	if n != 0 || truncated != 0 || drained {
		t.Fatalf("got n=%d truncated=%d drained=%v, want all zero/false", n, truncated, drained)
	}
}

func TestDetachRemovesFromActiveSet(t *testing.T) {
	h := NewHub()
	s1 := h.Attach()
	s2 := h.Attach()
	if h.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", h.Count())
	}
	h.Detach(s1)
	if h.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", h.Count())
	}
	h.Detach(s2)
	if h.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", h.Count())
	}
}
