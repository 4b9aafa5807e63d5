package config

import "testing"

func TestCaptureValidateRequiresOutput(t *testing.T) {
	c := &Capture{Device: "/dev/video0", Width: 1920, Height: 1080, FPS: 30}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error with no configured output")
	}
	c.SockH264 = "/tmp/h264.sock"
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCaptureValidateRejectsBadJPEGQuality(t *testing.T) {
	c := &Capture{Device: "/dev/video0", Width: 1920, Height: 1080, FPS: 30, JPEGQuality: 101, SockH264: "/tmp/h264.sock"}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for jpeg-quality > 100")
	}
}

func TestRepublisherValidateRequiresSourceSocket(t *testing.T) {
	r := &Republisher{PacketBufferBytes: 300000}
	if err := r.Validate(); err == nil {
		t.Fatal("expected error with no --sock-h264")
	}
	r.SockH264 = "/tmp/h264.sock"
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
