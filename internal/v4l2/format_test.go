package v4l2

import "testing"

func TestParseFourCC(t *testing.T) {
	cases := []struct {
		name string
		want FourCCType
	}{
		{"YUYV", PixelFmtYUYV},
		{"yuyv", PixelFmtYUYV},
		{"UYVY", PixelFmtUYVY},
		{"NV12", PixelFmtNV12},
		{"NV21", PixelFmtNV21},
		{"YUV420", PixelFmtYUV420},
		{"RGB24", PixelFmtRGB24},
		{"BGR24", PixelFmtBGR24},
		{"MJPEG", PixelFmtMJPEG},
		{"JPEG", PixelFmtJPEG},
	}
	for _, c := range cases {
		got, err := ParseFourCC(c.name)
		if err != nil {
			t.Errorf("ParseFourCC(%q): %v", c.name, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseFourCC(%q) = %#x, want %#x", c.name, got, c.want)
		}
	}
}

func TestParseFourCCUnknown(t *testing.T) {
	if _, err := ParseFourCC("NOT_A_FORMAT"); err == nil {
		t.Fatal("expected error for unknown pixel format name")
	}
}
