package mpp

// #include <rockchip/mpp_frame.h>
import "C"

// FrameFormat identifies the pixel layout MPP expects on encoder input or
// produces on decoder output.
type FrameFormat = uint32

const (
	FrameFormatYUV420SP FrameFormat = C.MPP_FMT_YUV420SP
	FrameFormatYUV420P  FrameFormat = C.MPP_FMT_YUV420P
	FrameFormatYUV422SP FrameFormat = C.MPP_FMT_YUV422SP
	FrameFormatRGB888   FrameFormat = C.MPP_FMT_RGB888
)

// alignUp rounds value up to the next multiple of align, matching the
// stride alignment MPP requires for decoder output buffers.
func alignUp(value, align uint32) uint32 {
	return (value + align - 1) &^ (align - 1)
}
