// Package framer splits a byte-oriented H.264 NAL stream into whole
// access units, buffering partial trailing data across calls.
package framer

import (
	"sync/atomic"

	"github.com/chainflux/capturesvc/internal/perr"
)

// MinFrameSize is the internal buffer's low-water mark: the capacity it
// is allocated with and shrinks back toward after a large access unit.
const MinFrameSize = 65536

// MaxFrameSize is the hard cap on buffered bytes before a partial unit
// is discarded as unrecoverable.
const MaxFrameSize = 2097152

// AccessUnitFunc receives one complete access unit. The slice is only
// valid for the duration of the call.
type AccessUnitFunc func(unit []byte)

// Framer accumulates H.264 elementary-stream bytes and emits whole
// access units as boundaries are found.
type Framer struct {
	buf []byte

	unitsFramed  atomic.Int64
	bytesDropped atomic.Int64
}

// New returns a Framer with its buffer pre-sized to MinFrameSize.
func New() *Framer {
	return &Framer{buf: make([]byte, 0, MinFrameSize)}
}

// Process appends data to the internal buffer and invokes emit for
// every complete access unit found. Any trailing partial unit is kept
// for the next call. If the buffer would exceed MaxFrameSize without a
// boundary being found, the partial unit is discarded and
// perr.ErrParseOverflow is returned; the caller should log and continue.
func (f *Framer) Process(data []byte, emit AccessUnitFunc) error {
	f.buf = append(f.buf, data...)

	consumed := f.drain(emit)
	if consumed > 0 {
		remaining := len(f.buf) - consumed
		copy(f.buf, f.buf[consumed:])
		f.buf = f.buf[:remaining]
		if cap(f.buf) > remaining+MinFrameSize {
			shrunk := make([]byte, remaining, remaining+MinFrameSize)
			copy(shrunk, f.buf)
			f.buf = shrunk
		}
	}

	if len(f.buf) > MaxFrameSize {
		f.bytesDropped.Add(int64(len(f.buf)))
		f.buf = f.buf[:0]
		return perr.ErrParseOverflow
	}
	return nil
}

// UnitsFramed returns the running count of access units emitted.
func (f *Framer) UnitsFramed() int64 { return f.unitsFramed.Load() }

// BytesDropped returns the running count of bytes discarded on overflow.
func (f *Framer) BytesDropped() int64 { return f.bytesDropped.Load() }

// drain scans the buffer from the start, emitting every complete access
// unit it can find, and returns how many leading bytes were consumed.
func (f *Framer) drain(emit AccessUnitFunc) int {
	pos := 0
	for {
		start := findStartCode(f.buf, pos)
		if start < 0 {
			if len(f.buf)-pos >= 5 {
				return len(f.buf) - 4 // trailing bytes might begin a truncated start code
			}
			return pos
		}

		next, ok := boundaryAfter(f.buf, start)
		if !ok {
			return pos
		}

		emit(f.buf[start:next])
		f.unitsFramed.Add(1)
		pos = next
	}
}

// boundaryAfter scans forward from a NAL start code at position start,
// looking for the next start code that terminates the access unit: an
// access-unit-delimiter NAL closes immediately, a new-frame-start NAL
// closes only if a slice NAL was already seen in this unit.
func boundaryAfter(buf []byte, start int) (next int, ok bool) {
	cursor := start
	sliceSeen := false
	for {
		n := findStartCode(buf, cursor+4)
		if n < 0 {
			return 0, false
		}
		switch {
		case isAUDNAL(buf, n):
			return n, true
		case isNewFrameStart(buf, n):
			if sliceSeen {
				return n, true
			}
			sliceSeen = true
		}
		cursor = n
	}
}

// findStartCode returns the position of the next 00 00 00 01 start code
// at or after from, requiring at least one byte past it so the NAL type
// byte is always addressable, or -1 if none is found.
func findStartCode(buf []byte, from int) int {
	n := len(buf)
	for i := from; i >= 0 && i+4 < n; i++ {
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 0 && buf[i+3] == 1 {
			return i
		}
	}
	return -1
}

// isNewFrameStart reports whether the NAL at nalStart is a non-IDR (1)
// or IDR (5) slice whose first slice-header byte has the high bit set,
// meaning first_mb_in_slice == 0.
func isNewFrameStart(buf []byte, nalStart int) bool {
	remaining := len(buf) - nalStart
	if remaining < 5 {
		return false
	}
	nalType := buf[nalStart+4] & 0x1F
	if nalType != 1 && nalType != 5 {
		return false
	}
	if remaining < 6 {
		return true
	}
	return buf[nalStart+5]&0x80 != 0
}

// isAUDNAL reports whether the NAL at nalStart is a minimal
// access-unit-delimiter: type 9, exactly one payload byte, high bit set.
func isAUDNAL(buf []byte, nalStart int) bool {
	remaining := len(buf) - nalStart
	if remaining < 6 {
		return false
	}
	if remaining > 6 && findStartCode(buf, nalStart+6) != nalStart+6 {
		return false
	}
	nalType := buf[nalStart+4] & 0x1F
	return nalType == 9 && buf[nalStart+5]&0x80 != 0
}
