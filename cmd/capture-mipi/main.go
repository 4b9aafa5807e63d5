// Command capture-mipi drives a raw-sensor V4L2 capture device through
// the hardware JPEG/H.264 encoder and fans the result out to up to three
// local sinks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainflux/capturesvc/internal/capture"
	"github.com/chainflux/capturesvc/internal/config"
	"github.com/chainflux/capturesvc/internal/logging"
	"github.com/chainflux/capturesvc/internal/mpp"
	"github.com/chainflux/capturesvc/internal/pipeline"
	"github.com/chainflux/capturesvc/internal/sink"
	"github.com/chainflux/capturesvc/internal/supervisor"
	"github.com/chainflux/capturesvc/internal/v4l2"
	"github.com/rs/zerolog"
)

func main() {
	cmd := config.NewCaptureCommand("capture-mipi", "Capture raw frames from a MIPI/CSI sensor and fan out JPEG/H.264", run)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Capture) error {
	log := logging.New("capture-mipi", cfg.Debug)

	fourcc, err := v4l2.ParseFourCC(cfg.PixelFormat)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attempt := func(ctx context.Context, attempt int) error {
		return runOnce(ctx, log, cfg, fourcc)
	}

	if cfg.Supervise {
		return supervisor.Run(ctx, log, "capture-mipi", 2*time.Second, attempt)
	}
	return attempt(ctx, 1)
}

func runOnce(ctx context.Context, log zerolog.Logger, cfg *config.Capture, fourcc v4l2.FourCCType) error {
	dev, err := capture.Open(log, cfg.Device, cfg.Width, cfg.Height, fourcc, cfg.FPS, cfg.Planes, 0)
	if err != nil {
		return fmt.Errorf("open capture device: %w", err)
	}
	defer dev.Close()

	if err := dev.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	mppFormat, err := pipeline.MPPFormatFor(fourcc)
	if err != nil {
		return err
	}

	jpegEnc, err := mpp.NewJPEGEncoder(dev.Width(), dev.Height(), mppFormat, cfg.JPEGQuality)
	if err != nil {
		return fmt.Errorf("init jpeg encoder: %w", err)
	}
	defer jpegEnc.Close()

	h264Enc, err := mpp.NewH264Encoder(dev.Width(), dev.Height(), mppFormat, mpp.H264Params{
		BitrateKbps: cfg.H264BitrateKbps,
		FPS:         cfg.FPS,
		Profile:     100,
		Level:       41,
		CABAC:       true,
	})
	if err != nil {
		return fmt.Errorf("init h264 encoder: %w", err)
	}
	defer h264Enc.Close()

	jpegSink, mjpegSink, h264Sink := pipeline.Disabled(), pipeline.Disabled(), pipeline.Disabled()
	if cfg.SockJPEG != "" {
		s, err := sink.Open(log, cfg.SockJPEG, sink.Options{OneFrame: true})
		if err != nil {
			return fmt.Errorf("open jpeg sink: %w", err)
		}
		defer s.Close()
		jpegSink = s
	}
	if cfg.SockMJPEG != "" {
		s, err := sink.Open(log, cfg.SockMJPEG, sink.Options{AllowDrops: true})
		if err != nil {
			return fmt.Errorf("open mjpeg sink: %w", err)
		}
		defer s.Close()
		mjpegSink = s
	}
	if cfg.SockH264 != "" {
		s, err := sink.Open(log, cfg.SockH264, sink.Options{AllowDrops: true})
		if err != nil {
			return fmt.Errorf("open h264 sink: %w", err)
		}
		defer s.Close()
		h264Sink = s
	}

	loop := pipeline.New(log, pipeline.Config{
		Mode:         pipeline.ModeRawCapture,
		FPS:          cfg.FPS,
		FrameCount:   cfg.FrameCount,
		SnapshotPath: cfg.SnapshotFile,
		IdleMS:       cfg.IdleMS,
	}, pipeline.NewDeviceSource(dev), jpegEnc, h264Enc, nil, jpegSink, mjpegSink, h264Sink, func(st pipeline.Status) {
		log.Debug().
			Uint64("captured", st.Captured).
			Uint64("jpeg_encoded", st.JPEGEncoded).
			Uint64("h264_encoded", st.H264Encoded).
			Int("h264_clients", st.H264Clients).
			Msg("status")
	})

	return loop.Run(ctx)
}
