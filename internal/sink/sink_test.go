package sink

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAcceptAndWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sock")
	s, err := Open(zerolog.Nop(), path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// Give the connection time to land in the kernel's accept queue.
	time.Sleep(20 * time.Millisecond)
	s.AcceptAll()

	if n := s.NumClients(); n != 1 {
		t.Fatalf("NumClients() = %d, want 1", n)
	}
	if !s.NeedKeyframe() {
		t.Fatal("NeedKeyframe() = false after accept, want true")
	}

	payload := []byte("hello")
	s.Write(payload)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, len(payload))
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("got %q, want %q", buf, payload)
	}
}

func TestOneFrameClosesAfterDelivery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sock")
	s, err := Open(zerolog.Nop(), path, Options{OneFrame: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(20 * time.Millisecond)
	s.AcceptAll()
	s.Write([]byte("x"))

	time.Sleep(20 * time.Millisecond)
	if n := s.NumClients(); n != 0 {
		t.Fatalf("NumClients() = %d after one_frame delivery, want 0", n)
	}
}

func TestRejectsBeyondMaxClients(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sock")
	s, err := Open(zerolog.Nop(), path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	conns := make([]net.Conn, 0, MaxClients+1)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for i := 0; i < MaxClients+1; i++ {
		c, err := net.Dial("unix", path)
		if err != nil {
			t.Fatalf("Dial %d: %v", i, err)
		}
		conns = append(conns, c)
	}

	time.Sleep(20 * time.Millisecond)
	s.AcceptAll()

	if n := s.NumClients(); n != MaxClients {
		t.Fatalf("NumClients() = %d, want %d", n, MaxClients)
	}
}
