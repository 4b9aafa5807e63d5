package framer

import (
	"bytes"
	"testing"
)

func startCode() []byte { return []byte{0x00, 0x00, 0x00, 0x01} }

// nal builds a minimal NAL unit: start code + header byte (forbidden
// zero bit=0, nal_ref_idc in bits 6-5, type in low 5 bits) + payload.
func nal(nalType byte, payload ...byte) []byte {
	buf := append([]byte{}, startCode()...)
	buf = append(buf, nalType&0x1F)
	buf = append(buf, payload...)
	return buf
}

func TestProcessEmitsTwoSlicesSeparatedByAUD(t *testing.T) {
	f := New()

	var units [][]byte
	emit := func(u []byte) {
		cp := append([]byte{}, u...)
		units = append(units, cp)
	}

	// slice 1 (IDR, first_mb_in_slice high bit set) + AUD + slice 2 + trailing data
	stream := append([]byte{}, nal(5, 0x80, 0xAA, 0xBB)...)
	stream = append(stream, nal(9, 0xF0)...)
	stream = append(stream, nal(1, 0x80, 0xCC)...)
	stream = append(stream, nal(1, 0x80, 0xDD)...) // terminates slice 2's unit

	if err := f.Process(stream, emit); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(units) != 2 {
		t.Fatalf("got %d units, want 2 (slice 1 closed by the AUD, slice 2 closed by the following slice)", len(units))
	}
	if !bytes.HasPrefix(units[0], startCode()) {
		t.Fatalf("unit does not start with a start code: %x", units[0])
	}
}

func TestProcessParksTrailingPartialStartCode(t *testing.T) {
	f := New()
	emit := func(u []byte) { t.Fatalf("unexpected emit: %x", u) }

	// Only a truncated trailing start code, nothing else.
	if err := f.Process([]byte{0x00, 0x00, 0x00}, emit); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(f.buf) != 3 {
		t.Fatalf("buffer length = %d, want 3 (nothing consumed)", len(f.buf))
	}
}

func TestProcessOverflowResetsBuffer(t *testing.T) {
	f := New()
	emit := func(u []byte) {}

	// One access unit that starts with a slice and is never terminated,
	// larger than the cap.
	huge := make([]byte, MaxFrameSize+1)
	copy(huge, nal(5, 0x80))
	err := f.Process(huge, emit)
	if err == nil {
		t.Fatal("expected overflow error")
	}
	if len(f.buf) != 0 {
		t.Fatalf("buffer length = %d after overflow, want 0", len(f.buf))
	}
}
