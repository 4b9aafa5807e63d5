package pipeline

import (
	"fmt"

	"github.com/chainflux/capturesvc/internal/mpp"
	"github.com/chainflux/capturesvc/internal/v4l2"
)

// MPPFormatFor maps a negotiated V4L2 capture pixel format to the MPP
// frame format the hardware codec session must be configured with.
func MPPFormatFor(fourcc v4l2.FourCCType) (mpp.FrameFormat, error) {
	switch fourcc {
	case v4l2.PixelFmtNV12:
		return mpp.FrameFormatYUV420SP, nil
	case v4l2.PixelFmtNV21:
		return mpp.FrameFormatYUV420SP, nil
	case v4l2.PixelFmtYUV420:
		return mpp.FrameFormatYUV420P, nil
	case v4l2.PixelFmtUYVY, v4l2.PixelFmtYUYV:
		return mpp.FrameFormatYUV422SP, nil
	case v4l2.PixelFmtRGB24, v4l2.PixelFmtBGR24:
		return mpp.FrameFormatRGB888, nil
	default:
		return 0, fmt.Errorf("pipeline: no MPP frame format for pixel format %#x", fourcc)
	}
}
