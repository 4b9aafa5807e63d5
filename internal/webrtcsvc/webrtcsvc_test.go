package webrtcsvc

import (
	"testing"

	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(zerolog.Nop(), Config{MaxClients: 1})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func TestHandleRequestUnknownType(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest([]byte(`{"type":"bogus"}`))
	if resp["error"] != "unknown type" {
		t.Fatalf("got %v, want unknown type error", resp)
	}
}

func TestHandleAnswerMissingFields(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest([]byte(`{"type":"answer"}`))
	if resp["error"] != "missing id or sdp" {
		t.Fatalf("got %v", resp)
	}
}

func TestHandleRemoteCandidateMissingID(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest([]byte(`{"type":"remote_candidate"}`))
	if resp["error"] != "missing id" {
		t.Fatalf("got %v", resp)
	}
}

func TestHandleAnswerClientNotFound(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest([]byte(`{"type":"answer","id":"nope","sdp":"x"}`))
	if resp["error"] != "client not found" {
		t.Fatalf("got %v", resp)
	}
}

func TestHandleOfferRequestRejectsBeyondMaxClients(t *testing.T) {
	s := newTestServer(t)
	first := s.handleRequest([]byte(`{"type":"request"}`))
	if _, ok := first["id"]; !ok {
		t.Fatalf("first request should succeed, got %v", first)
	}
	second := s.handleRequest([]byte(`{"type":"request"}`))
	if second["error"] != "max clients reached" {
		t.Fatalf("got %v, want max clients reached", second)
	}
}
