// Package config defines the cobra.Command surface for each binary and the
// flag-backed Config structs they validate before running.
package config

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Capture holds every flag shared by cmd/capture-mipi and cmd/capture-usb.
type Capture struct {
	Device          string
	Width           uint32
	Height          uint32
	PixelFormat     string
	FPS             uint32
	FrameCount      uint64
	JPEGQuality     uint32
	H264BitrateKbps uint32
	SnapshotFile    string
	SockJPEG        string
	SockMJPEG       string
	SockH264        string
	IdleMS          int64
	Planes          int
	Debug           bool
	Supervise       bool
}

// Validate enforces the invariants a startup failure (exit code 1) is
// reported for: an unusable device path or dimensions, or no configured
// output at all.
func (c *Capture) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("--device is required")
	}
	if c.Width == 0 || c.Height == 0 {
		return fmt.Errorf("--width and --height must be positive")
	}
	if c.FPS == 0 {
		return fmt.Errorf("--fps must be positive")
	}
	if c.JPEGQuality > 100 {
		return fmt.Errorf("--jpeg-quality must be in [0,100]")
	}
	if c.SnapshotFile == "" && c.SockJPEG == "" && c.SockMJPEG == "" && c.SockH264 == "" {
		return fmt.Errorf("at least one of --snapshot-file, --sock-jpeg, --sock-mjpeg, --sock-h264 must be set")
	}
	return nil
}

// NewCaptureCommand builds a cobra.Command named use that validates its
// bound Capture config and invokes run.
func NewCaptureCommand(use, short string, run func(*Capture) error) *cobra.Command {
	cfg := &Capture{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Device, "device", "/dev/video0", "capture device path")
	f.Uint32Var(&cfg.Width, "width", 1920, "capture width")
	f.Uint32Var(&cfg.Height, "height", 1080, "capture height")
	f.StringVar(&cfg.PixelFormat, "pixel-format", "NV12", "requested capture pixel format")
	f.Uint32Var(&cfg.FPS, "fps", 30, "target capture framerate")
	f.Uint64Var(&cfg.FrameCount, "frame-count", 0, "frames to capture before exiting, 0 = unlimited")
	f.Uint32Var(&cfg.JPEGQuality, "jpeg-quality", 80, "JPEG encode quality, 0-100")
	f.Uint32Var(&cfg.H264BitrateKbps, "h264-bitrate-kbps", 4096, "H.264 target bitrate in kbps")
	f.StringVar(&cfg.SnapshotFile, "snapshot-file", "", "write-and-rename JPEG snapshot path")
	f.StringVar(&cfg.SockJPEG, "sock-jpeg", "", "unix socket path for the one-frame JPEG sink")
	f.StringVar(&cfg.SockMJPEG, "sock-mjpeg", "", "unix socket path for the MJPEG sink")
	f.StringVar(&cfg.SockH264, "sock-h264", "", "unix socket path for the H.264 sink")
	f.Int64Var(&cfg.IdleMS, "idle-ms", 1000, "idle wait between iterations when no sink is active")
	f.IntVar(&cfg.Planes, "planes", 0, "override the number of planes requested, 0 = auto")
	f.BoolVar(&cfg.Debug, "debug", false, "enable console logging and debug level")
	f.BoolVar(&cfg.Supervise, "supervise", false, "restart the capture loop in-process after a non-fatal error")

	return cmd
}

// Republisher holds the flags shared by cmd/stream-rtsp and
// cmd/stream-webrtc.
type Republisher struct {
	SockH264          string
	PacketBufferBytes int
	Debug             bool

	RTSPPort          int
	WebRTCControlSock string
	MaxClients        int
}

// Validate enforces that a source socket is configured.
func (r *Republisher) Validate() error {
	if r.SockH264 == "" {
		return fmt.Errorf("--sock-h264 is required")
	}
	if r.PacketBufferBytes <= 0 {
		return fmt.Errorf("--packet-buffer-bytes must be positive")
	}
	return nil
}

// NewRTSPCommand builds the cmd/stream-rtsp command.
func NewRTSPCommand(run func(*Republisher) error) *cobra.Command {
	cfg := &Republisher{}
	cmd := &cobra.Command{
		Use:   "stream-rtsp",
		Short: "Republish an h264 sink over RTSP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.RTSPPort == 0 {
				return fmt.Errorf("--rtsp-port must be positive")
			}
			return run(cfg)
		},
	}
	bindRepublisherFlags(cmd, cfg)
	cmd.Flags().IntVar(&cfg.RTSPPort, "rtsp-port", 8554, "RTSP server port")
	return cmd
}

// NewWebRTCCommand builds the cmd/stream-webrtc command.
func NewWebRTCCommand(run func(*Republisher) error) *cobra.Command {
	cfg := &Republisher{}
	cmd := &cobra.Command{
		Use:   "stream-webrtc",
		Short: "Republish an h264 sink over WebRTC",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.WebRTCControlSock == "" {
				return fmt.Errorf("--webrtc-control-sock is required")
			}
			return run(cfg)
		},
	}
	bindRepublisherFlags(cmd, cfg)
	cmd.Flags().StringVar(&cfg.WebRTCControlSock, "webrtc-control-sock", "", "unix socket path for the signaling control surface")
	cmd.Flags().IntVar(&cfg.MaxClients, "max-clients", 8, "maximum concurrent peer connections, 0 = unlimited")
	return cmd
}

func bindRepublisherFlags(cmd *cobra.Command, cfg *Republisher) {
	f := cmd.Flags()
	f.StringVar(&cfg.SockH264, "sock-h264", "", "unix socket path of the upstream h264 sink")
	f.IntVar(&cfg.PacketBufferBytes, "packet-buffer-bytes", 300000, "output packet buffer cap")
	f.BoolVar(&cfg.Debug, "debug", false, "enable console logging and debug level")
}
