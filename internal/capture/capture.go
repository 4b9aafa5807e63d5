// Package capture wraps internal/v4l2 in the synchronous open/start/
// read/release/stop/close contract the pipeline loop drives directly,
// hiding capability negotiation, format fallback, and buffer mmap/unmap
// bookkeeping behind a single Device handle.
package capture

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainflux/capturesvc/internal/perr"
	"github.com/chainflux/capturesvc/internal/v4l2"
)

// DefaultBufferCount is the number of buffers requested from the driver
// when the caller does not override it. Four gives the capture loop
// enough slack to have one buffer held by the application (encoding or
// in flight to a sink) while the driver keeps the rest filling.
const DefaultBufferCount = 4

// FrameRef references one dequeued buffer. It stays valid until passed
// to Release; the memory it points into must not be reused for capture
// until then.
type FrameRef struct {
	Index     uint32
	Plane0    []byte
	BytesUsed uint32
}

type mappedBuffer struct {
	planes []byte
}

// Device is an opened, configured V4L2 capture device.
type Device struct {
	log zerolog.Logger

	fd         uintptr
	bufType    v4l2.BufType
	multiplane bool
	numPlanes  uint32

	width, height uint32
	pixelFormat   v4l2.FourCCType

	buffers  []mappedBuffer
	started  bool
	outFrame bool // true while exactly one FrameRef is outstanding
}

// Open negotiates capability, pixel format, framerate and buffer ring for
// devicePath, preferring multi-planar capture when the driver advertises
// it. requestedPlanes bounds how many planes per buffer capture will map
// (1-4); it is only consulted when the device is multi-planar.
func Open(log zerolog.Logger, devicePath string, width, height uint32, pixelFormat v4l2.FourCCType, fps uint32, requestedPlanes int, bufferCount uint32) (*Device, error) {
	if bufferCount == 0 {
		bufferCount = DefaultBufferCount
	}
	if requestedPlanes <= 0 || requestedPlanes > int(v4l2.MaxPlanes) {
		requestedPlanes = 1
	}

	fd, err := v4l2.OpenDevice(devicePath, syscall.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", perr.ErrDeviceUnavailable, devicePath, err)
	}

	cap, err := v4l2.GetCapability(fd)
	if err != nil {
		v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("%w: query capability: %v", perr.ErrDeviceUnavailable, err)
	}
	log.Info().Str("capability", cap.String()).Msg("opened capture device")
	if !cap.IsStreamingSupported() {
		v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("%w: no streaming I/O", perr.ErrCapabilityMissing)
	}

	multiplane := cap.IsVideoCaptureMultiplanarSupported()
	if !multiplane && !cap.IsVideoCaptureSupported() {
		v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("%w: no video capture", perr.ErrCapabilityMissing)
	}

	d := &Device{
		log:         log.With().Str("device", devicePath).Logger(),
		fd:          fd,
		multiplane:  multiplane,
		pixelFormat: pixelFormat,
	}

	if multiplane {
		d.bufType = v4l2.BufTypeVideoCaptureMPlane
		fmt, err := v4l2.SetPixFormatMPlane(fd, d.bufType, v4l2.PixFormatMPlane{
			Width:       width,
			Height:      height,
			PixelFormat: pixelFormat,
			Field:       v4l2.FieldNone,
			NumPlanes:   uint32(requestedPlanes),
		})
		if err != nil {
			v4l2.CloseDevice(fd)
			return nil, fmt.Errorf("%w: %v", perr.ErrFormatRejected, err)
		}
		d.width, d.height, d.numPlanes = fmt.Width, fmt.Height, fmt.NumPlanes
	} else {
		d.bufType = v4l2.BufTypeVideoCapture
		if err := v4l2.SetPixFormat(fd, v4l2.PixFormat{
			Width:       width,
			Height:      height,
			PixelFormat: pixelFormat,
			Field:       v4l2.FieldNone,
		}); err != nil {
			v4l2.CloseDevice(fd)
			return nil, fmt.Errorf("%w: %v", perr.ErrFormatRejected, err)
		}
		applied, err := v4l2.GetPixFormat(fd)
		if err != nil {
			v4l2.CloseDevice(fd)
			return nil, fmt.Errorf("%w: %v", perr.ErrFormatRejected, err)
		}
		d.width, d.height, d.numPlanes = applied.Width, applied.Height, 1
	}

	if fps > 0 {
		param, err := v4l2.GetStreamCaptureParam(fd)
		if err == nil {
			param.CaptureMode = v4l2.StreamParamTimePerFrame
			param.TimePerFrame = v4l2.Fract{Numerator: 1, Denominator: fps}
			if _, err := v4l2.SetStreamCaptureParam(fd, param); err != nil {
				d.log.Warn().Err(err).Uint32("fps", fps).Msg("framerate not accepted, continuing at driver default")
			}
		} else {
			d.log.Warn().Err(err).Msg("framerate query unsupported, continuing at driver default")
		}
	}

	if err := d.requestAndMapBuffers(bufferCount); err != nil {
		v4l2.CloseDevice(fd)
		return nil, err
	}

	d.log.Info().
		Uint32("width", d.width).Uint32("height", d.height).
		Bool("multiplane", multiplane).Uint32("planes", d.numPlanes).
		Int("buffers", len(d.buffers)).
		Msg("capture device opened")

	return d, nil
}

func (d *Device) requestAndMapBuffers(count uint32) error {
	req, err := v4l2.InitBuffers(d.fd, d.bufType, count)
	if err != nil {
		return fmt.Errorf("%w: request buffers: %v", perr.ErrFormatRejected, err)
	}

	d.buffers = make([]mappedBuffer, req.Count)
	for i := uint32(0); i < req.Count; i++ {
		if d.multiplane {
			_, planes, err := v4l2.GetBufferPlanes(d.fd, d.bufType, i, d.numPlanes)
			if err != nil {
				d.unmapAll()
				return fmt.Errorf("%w: query buffer %d: %v", perr.ErrDeviceUnavailable, i, err)
			}
			mapped, err := v4l2.MapMemoryBuffer(d.fd, int64(planes[0].Info.MemOffset), int(planes[0].Length))
			if err != nil {
				d.unmapAll()
				return fmt.Errorf("%w: mmap buffer %d: %v", perr.ErrDeviceUnavailable, i, err)
			}
			d.buffers[i] = mappedBuffer{planes: mapped}
		} else {
			buf, err := v4l2.GetBuffer(d.fd, d.bufType, i)
			if err != nil {
				d.unmapAll()
				return fmt.Errorf("%w: query buffer %d: %v", perr.ErrDeviceUnavailable, i, err)
			}
			mapped, err := v4l2.MapMemoryBuffer(d.fd, int64(buf.Info.Offset), int(buf.Length))
			if err != nil {
				d.unmapAll()
				return fmt.Errorf("%w: mmap buffer %d: %v", perr.ErrDeviceUnavailable, i, err)
			}
			d.buffers[i] = mappedBuffer{planes: mapped}
		}
	}
	return nil
}

// wouldBlock reports whether err represents EAGAIN/EWOULDBLOCK from a
// non-blocking dequeue attempt with no buffer ready yet.
func wouldBlock(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) ||
		errors.Is(err, v4l2.ErrorTemporary) || errors.Is(err, v4l2.ErrorInterrupted)
}

func (d *Device) unmapAll() {
	for _, b := range d.buffers {
		if b.planes != nil {
			_ = v4l2.UnmapMemoryBuffer(b.planes)
		}
	}
}

// Start enqueues every mapped buffer and enables streaming.
func (d *Device) Start() error {
	for i := range d.buffers {
		var err error
		if d.multiplane {
			_, err = v4l2.QueueBufferPlanes(d.fd, d.bufType, uint32(i), d.numPlanes)
		} else {
			_, err = v4l2.QueueBuffer(d.fd, d.bufType, uint32(i))
		}
		if err != nil {
			return fmt.Errorf("%w: queue buffer %d: %v", perr.ErrDeviceUnavailable, i, err)
		}
	}
	if err := v4l2.StreamOn(d.fd); err != nil {
		return fmt.Errorf("%w: stream on: %v", perr.ErrDeviceUnavailable, err)
	}
	d.started = true
	return nil
}

// Stop disables streaming. Errors are logged, not returned, matching the
// contract that teardown must proceed regardless of driver state.
func (d *Device) Stop() {
	if !d.started {
		return
	}
	if err := v4l2.StreamOff(d.fd); err != nil {
		d.log.Warn().Err(err).Msg("stream off failed")
	}
	d.started = false
}

// ReadFrame dequeues one buffer. ok is false when the call would have
// blocked (no frame ready yet); err is non-nil only for a genuine I/O
// failure. Exactly one FrameRef may be outstanding at a time — callers
// must Release before calling ReadFrame again.
func (d *Device) ReadFrame() (FrameRef, bool, error) {
	if d.outFrame {
		return FrameRef{}, false, fmt.Errorf("capture: read_frame called with a frame still outstanding")
	}

	if d.multiplane {
		buf, planes, err := v4l2.DequeueBufferPlanes(d.fd, d.bufType, d.numPlanes)
		if err != nil {
			if wouldBlock(err) {
				return FrameRef{}, false, nil
			}
			return FrameRef{}, false, fmt.Errorf("capture: dequeue: %w", err)
		}
		d.outFrame = true
		return FrameRef{
			Index:     buf.Index,
			Plane0:    d.buffers[buf.Index].planes,
			BytesUsed: planes[0].BytesUsed,
		}, true, nil
	}

	buf, err := v4l2.DequeueBuffer(d.fd, d.bufType)
	if err != nil {
		if wouldBlock(err) {
			return FrameRef{}, false, nil
		}
		return FrameRef{}, false, fmt.Errorf("capture: dequeue: %w", err)
	}
	d.outFrame = true
	return FrameRef{
		Index:     buf.Index,
		Plane0:    d.buffers[buf.Index].planes,
		BytesUsed: buf.BytesUsed,
	}, true, nil
}

// Release re-enqueues the buffer referenced by fr back to the driver.
func (d *Device) Release(fr FrameRef) error {
	var err error
	if d.multiplane {
		_, err = v4l2.QueueBufferPlanes(d.fd, d.bufType, fr.Index, d.numPlanes)
	} else {
		_, err = v4l2.QueueBuffer(d.fd, d.bufType, fr.Index)
	}
	d.outFrame = false
	if err != nil {
		return fmt.Errorf("capture: release buffer %d: %w", fr.Index, err)
	}
	return nil
}

// WaitReadable blocks until the device has a buffer ready or the
// timeout elapses. Returns perr.ErrCaptureTimeout on timeout.
func (d *Device) WaitReadable(timeoutMS int64) error {
	err := v4l2.WaitForDeviceRead(d.fd, time.Duration(timeoutMS)*time.Millisecond)
	if err == v4l2.ErrorTimeout {
		return perr.ErrCaptureTimeout
	}
	return err
}

// Width reports the authoritative width after driver negotiation.
func (d *Device) Width() uint32 { return d.width }

// Height reports the authoritative height after driver negotiation.
func (d *Device) Height() uint32 { return d.height }

// Close unmaps all buffers and closes the device descriptor.
func (d *Device) Close() error {
	d.Stop()
	d.unmapAll()
	return v4l2.CloseDevice(d.fd)
}
