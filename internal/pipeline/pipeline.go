package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/chainflux/capturesvc/internal/mpp"
)

// Config holds the per-run tunables that aren't tied to a specific
// collaborator object.
type Config struct {
	Mode         Mode
	FPS          uint32
	FrameCount   uint64 // 0 = unlimited
	SnapshotPath string
	IdleMS       int64
}

// Loop wires a capture source, the codec sessions it needs, and the three
// conventional sinks into one cooperative iteration loop.
type Loop struct {
	log zerolog.Logger
	cfg Config

	capture CaptureSource

	jpegEncoder JPEGEncoder
	h264Encoder H264Encoder
	jpegDecoder JPEGDecoder // only used in ModeUSBMJPEG

	jpegSink  Sink
	mjpegSink Sink
	h264Sink  Sink

	onStatus StatusFunc
}

// New builds a Loop. jpegDecoder may be nil unless cfg.Mode is
// ModeUSBMJPEG.
func New(log zerolog.Logger, cfg Config, capture CaptureSource, jpegEncoder JPEGEncoder, h264Encoder H264Encoder, jpegDecoder JPEGDecoder, jpegSink, mjpegSink, h264Sink Sink, onStatus StatusFunc) *Loop {
	return &Loop{
		log:         log,
		cfg:         cfg,
		capture:     capture,
		jpegEncoder: jpegEncoder,
		h264Encoder: h264Encoder,
		jpegDecoder: jpegDecoder,
		jpegSink:    jpegSink,
		mjpegSink:   mjpegSink,
		h264Sink:    h264Sink,
		onStatus:    onStatus,
	}
}

// Run drives the loop until ctx is canceled, frameCount frames have been
// captured, or a session-scoped error occurs (capture timeout or an
// unrecoverable read error). Client-scoped and codec-scoped errors are
// logged and the loop continues.
func (p *Loop) Run(ctx context.Context) error {
	frameInterval := time.Second
	if p.cfg.FPS > 0 {
		frameInterval = time.Second / time.Duration(p.cfg.FPS)
	}

	framesLeft := p.cfg.FrameCount
	var status Status

	statusTicker := time.NewTicker(time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		iterStart := time.Now()

		if err := p.capture.WaitReadable(2000); err != nil {
			return fmt.Errorf("capture wait: %w", err)
		}

		frame, ok, err := p.capture.ReadFrame()
		if err != nil {
			return fmt.Errorf("capture read: %w", err)
		}
		if !ok {
			continue
		}
		status.Captured++

		p.jpegSink.AcceptAll()
		p.mjpegSink.AcceptAll()
		p.h264Sink.AcceptAll()

		p.runJPEGFanout(frame, &status)
		p.runH264Fanout(frame, &status)

		if err := frame.Release(); err != nil {
			p.log.Error().Err(err).Msg("release capture buffer failed")
		}

		select {
		case <-statusTicker.C:
			status.JPEGClients = p.jpegSink.NumClients()
			status.MJPEGClients = p.mjpegSink.NumClients()
			status.H264Clients = p.h264Sink.NumClients()
			if p.onStatus != nil {
				p.onStatus(status)
			}
		default:
		}

		if framesLeft > 0 {
			framesLeft--
			if framesLeft == 0 {
				return nil
			}
		}

		if sleep := frameInterval - time.Since(iterStart); sleep > 0 {
			time.Sleep(sleep)
		}

		if !p.jpegSink.Active() && !p.mjpegSink.Active() && !p.h264Sink.Active() {
			p.idleWait(ctx)
		}
	}
}

// runJPEGFanout builds and dispatches the JPEG chain: snapshot file,
// snapshot sink, mjpeg sink. The chain is skipped entirely when none of
// its three entries is enabled.
func (p *Loop) runJPEGFanout(frame Frame, status *Status) {
	active := p.jpegSink.Active() || p.mjpegSink.Active() || p.cfg.SnapshotPath != ""
	if !active {
		return
	}

	var jpegBytes []byte
	if p.cfg.Mode == ModeUSBMJPEG {
		// The capture device already produced a JPEG access unit; the
		// JPEG chain republishes it as-is instead of running it back
		// through the hardware encoder.
		jpegBytes = frame.Bytes
	} else {
		pkt, err := p.jpegEncoder.Encode(frame.Bytes, false)
		if err != nil {
			p.log.Error().Err(err).Msg("jpeg encode failed")
			return
		}
		defer pkt.Release()
		jpegBytes = pkt.Bytes()
	}
	status.JPEGEncoded++

	if p.cfg.SnapshotPath != "" {
		if err := writeSnapshotAtomic(p.cfg.SnapshotPath, jpegBytes); err != nil {
			p.log.Error().Err(err).Msg("snapshot write failed")
		}
	}
	if p.jpegSink.Active() {
		p.jpegSink.Write(jpegBytes)
	}
	if p.mjpegSink.Active() {
		p.mjpegSink.Write(jpegBytes)
	}
}

// runH264Fanout produces one H.264 access unit for the current frame, when
// the h264 sink has at least one subscriber, and forwards it followed by
// the access-unit-delimiter sentinel.
func (p *Loop) runH264Fanout(frame Frame, status *Status) {
	if !p.h264Sink.Active() {
		return
	}
	forceIDR := p.h264Sink.NeedKeyframe()
	defer p.h264Sink.ClearNeedKeyframe()

	var pkt *mpp.Packet
	var err error
	switch p.cfg.Mode {
	case ModeUSBMJPEG:
		pkt, err = p.encodeViaDecode(frame, forceIDR)
	default:
		pkt, err = p.h264Encoder.Encode(frame.Bytes, forceIDR)
	}
	if err != nil {
		p.log.Error().Err(err).Msg("h264 encode failed")
		return
	}
	if pkt == nil {
		return
	}
	defer pkt.Release()

	status.H264Encoded++
	p.h264Sink.Write(pkt.Bytes())
	p.h264Sink.Write(AUDSentinel)
}

func (p *Loop) encodeViaDecode(frame Frame, forceIDR bool) (*mpp.Packet, error) {
	fh, err := p.jpegDecoder.Decode(frame.Bytes)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	defer fh.Release()

	pkt, err := p.h264Encoder.EncodeFrameHandle(fh, forceIDR)
	if err != nil {
		return nil, fmt.Errorf("encode frame handle: %w", err)
	}
	return pkt, nil
}

func (p *Loop) idleWait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(p.cfg.IdleMS) * time.Millisecond):
	}
}
