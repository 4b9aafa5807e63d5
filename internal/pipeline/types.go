// Package pipeline drives one capture→encode→sink iteration loop, shared
// by the raw-sensor and USB-MJPEG binaries.
package pipeline

import "github.com/chainflux/capturesvc/internal/mpp"

// Mode selects how an H.264 access unit is produced for one captured frame.
type Mode int

const (
	// ModeRawCapture feeds the raw captured frame straight to the H.264
	// encoder.
	ModeRawCapture Mode = iota
	// ModeUSBMJPEG decodes the captured MJPEG frame to a codec-owned
	// frame handle and feeds that to the H.264 encoder with no extra copy.
	ModeUSBMJPEG
)

// Frame is one dequeued capture buffer, abstracted away from the concrete
// device so the loop can be driven by a fake in tests.
type Frame struct {
	Bytes   []byte
	Release func() error
}

// CaptureSource is the narrow slice of internal/capture.Device the loop
// depends on.
type CaptureSource interface {
	WaitReadable(timeoutMS int64) error
	ReadFrame() (Frame, bool, error)
	Width() uint32
	Height() uint32
}

// Sink is the narrow slice of internal/sink.Sink the loop depends on.
type Sink interface {
	AcceptAll()
	NumClients() int
	Active() bool
	NeedKeyframe() bool
	ClearNeedKeyframe()
	Write(payload []byte)
}

// JPEGEncoder is satisfied by *mpp.Encoder configured for JPEG.
type JPEGEncoder interface {
	Encode(data []byte, forceIDR bool) (*mpp.Packet, error)
}

// H264Encoder is satisfied by *mpp.Encoder configured for H.264.
type H264Encoder interface {
	Encode(data []byte, forceIDR bool) (*mpp.Packet, error)
	EncodeFrameHandle(fh mpp.FrameHandle, forceIDR bool) (*mpp.Packet, error)
}

// JPEGDecoder is satisfied by *mpp.Decoder, used only in ModeUSBMJPEG.
type JPEGDecoder interface {
	Decode(data []byte) (mpp.FrameHandle, error)
}

// Status is the per-second snapshot reported to StatusFunc.
type Status struct {
	Captured     uint64
	JPEGEncoded  uint64
	H264Encoded  uint64
	JPEGClients  int
	MJPEGClients int
	H264Clients  int
}

// StatusFunc receives one Status at every one-second boundary.
type StatusFunc func(Status)

// AUDSentinel is appended to the h264 sink after every access unit, per
// the fixed access-unit-delimiter byte sequence.
var AUDSentinel = []byte{0x00, 0x00, 0x00, 0x01, 0x09, 0xF0}

// disabledSink is the Sink a caller wires in for a conventional sink
// whose socket path was left unconfigured: it accepts no connections and
// is never active, so the fan-out that depends on it is skipped.
type disabledSink struct{}

// Disabled returns a Sink standing in for one that was not configured.
func Disabled() Sink { return disabledSink{} }

func (disabledSink) AcceptAll()          {}
func (disabledSink) NumClients() int     { return 0 }
func (disabledSink) Active() bool        { return false }
func (disabledSink) NeedKeyframe() bool  { return false }
func (disabledSink) ClearNeedKeyframe()  {}
func (disabledSink) Write(payload []byte) {}
