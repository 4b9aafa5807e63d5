package rtspsvc

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewServerBuildsStreamAndEncoder(t *testing.T) {
	s, err := NewServer(zerolog.Nop(), 8554, 300000)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if s.stream == nil {
		t.Fatal("stream not initialized")
	}
	if s.rtpEnc == nil {
		t.Fatal("rtp encoder not initialized")
	}
}

func TestPublishUnitSkipsInvalidAccessUnit(t *testing.T) {
	s, err := NewServer(zerolog.Nop(), 8554, 300000)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	// Not a valid Annex-B unit; publishUnit must not panic, just drop it.
	s.publishUnit([]byte{0x00, 0x01, 0x02})
}
