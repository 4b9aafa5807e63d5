// Package perr defines the sentinel errors shared across the capture,
// codec, sink and pipeline layers. Callers use errors.Is against these
// values; wrapped context (device paths, client addresses, ioctl detail)
// travels alongside via fmt.Errorf("...: %w", ...) at the call site.
package perr

import "errors"

var (
	// ErrDeviceUnavailable is returned when a capture device cannot be
	// opened (missing node, permission denied, already claimed).
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrCapabilityMissing is returned when an opened device lacks a
	// capability required by the requested configuration (streaming,
	// single- or multi-planar video capture).
	ErrCapabilityMissing = errors.New("required device capability missing")

	// ErrFormatRejected is returned when the driver cannot negotiate the
	// requested pixel format, resolution, or plane count.
	ErrFormatRejected = errors.New("pixel format rejected by device")

	// ErrCaptureTimeout is returned when no buffer becomes available
	// within the bounded wait at the top of the pipeline loop.
	ErrCaptureTimeout = errors.New("capture wait timed out")

	// ErrFrameDrop indicates a captured frame was discarded rather than
	// forwarded, because no destination could accept it in time.
	ErrFrameDrop = errors.New("frame dropped")

	// ErrCodecInitFailed is returned when a hardware codec session fails
	// to initialize (context create, config commit, buffer group setup).
	ErrCodecInitFailed = errors.New("codec session init failed")

	// ErrCodecBufferExhausted is returned when the codec's internal
	// buffer group has no free buffer to hand out.
	ErrCodecBufferExhausted = errors.New("codec buffer group exhausted")

	// ErrCodecSubmitFailed is returned when submitting a frame or packet
	// to the codec's task queue fails.
	ErrCodecSubmitFailed = errors.New("codec submit failed")

	// ErrCodecPacketMissing is returned when retrieving an encoded packet
	// or decoded frame fails or yields nothing.
	ErrCodecPacketMissing = errors.New("codec packet not ready")

	// ErrEndpointBindFailed is returned when a sink's listening socket
	// cannot bind to its configured path.
	ErrEndpointBindFailed = errors.New("endpoint bind failed")

	// ErrEndpointListenFailed is returned when a sink's listening socket
	// cannot be placed into the listening state.
	ErrEndpointListenFailed = errors.New("endpoint listen failed")

	// ErrClientWriteTimeout is returned when a per-client write retry
	// loop exceeds its configured deadline.
	ErrClientWriteTimeout = errors.New("client write timed out")

	// ErrClientWriteError is returned when a write to a client socket
	// fails for a reason other than would-block (broken pipe, reset).
	ErrClientWriteError = errors.New("client write error")

	// ErrClientIdleTimeout is returned when a connected client has not
	// been writable long enough to exceed the configured idle bound.
	ErrClientIdleTimeout = errors.New("client idle timeout")

	// ErrClientSlotExhausted is returned when a new client connects but
	// the sink has reached its maximum concurrent client count.
	ErrClientSlotExhausted = errors.New("client slot exhausted")

	// ErrParseOverflow is returned when an access-unit framer's internal
	// buffer fills without finding a frame boundary.
	ErrParseOverflow = errors.New("frame parse buffer overflow")

	// ErrShortReadEOF is returned when a frame source closes mid-unit.
	ErrShortReadEOF = errors.New("short read before end of unit")
)
