// Command capture-usb drives a USB UVC webcam that emits MJPEG directly,
// decoding each frame through the hardware JPEG decoder before handing it
// to the H.264 encoder, and fans the result out to up to three local
// sinks.
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
	cmd := config.NewCaptureCommand("capture-usb", "Capture MJPEG frames from a USB UVC webcam and fan out JPEG/H.264", run)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Capture) error {
	log := logging.New("capture-usb", cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	attempt := func(ctx context.Context, attempt int) error {
		return runOnce(ctx, log, cfg)
	}

	if cfg.Supervise {
		return supervisor.Run(ctx, log, "capture-usb", 2*time.Second, attempt)
	}
	return attempt(ctx, 1)
}

func openMJPEGDevice(log zerolog.Logger, cfg *config.Capture) (*capture.Device, error) {
	dev, err := capture.Open(log, cfg.Device, cfg.Width, cfg.Height, v4l2.PixelFmtMJPEG, cfg.FPS, cfg.Planes, 0)
	if err != nil {
		log.Warn().Err(err).Msg("MJPEG format rejected, falling back to JPEG")
		return capture.Open(log, cfg.Device, cfg.Width, cfg.Height, v4l2.PixelFmtJPEG, cfg.FPS, cfg.Planes, 0)
	}
	return dev, nil
}

func runOnce(ctx context.Context, log zerolog.Logger, cfg *config.Capture) error {
	dev, err := openMJPEGDevice(log, cfg)
	if err != nil {
		return fmt.Errorf("open capture device: %w", err)
	}
	defer dev.Close()

	if err := dev.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	decodedFormat := mpp.FrameFormatYUV420SP
	decoder, err := mpp.NewJPEGDecoder(dev.Width(), dev.Height(), decodedFormat)
	if err != nil {
		return fmt.Errorf("init jpeg decoder: %w", err)
	}
	defer decoder.Close()

	h264Enc, err := mpp.NewH264Encoder(dev.Width(), dev.Height(), decodedFormat, mpp.H264Params{
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
		Mode:         pipeline.ModeUSBMJPEG,
		FPS:          cfg.FPS,
		FrameCount:   cfg.FrameCount,
		SnapshotPath: cfg.SnapshotFile,
		IdleMS:       cfg.IdleMS,
	}, pipeline.NewDeviceSource(dev), nil, h264Enc, decoder, jpegSink, mjpegSink, h264Sink, func(st pipeline.Status) {
		log.Debug().
			Uint64("captured", st.Captured).
			Uint64("jpeg_encoded", st.JPEGEncoded).
			Uint64("h264_encoded", st.H264Encoded).
			Int("h264_clients", st.H264Clients).
			Msg("status")
	})

	return loop.Run(ctx)
}
