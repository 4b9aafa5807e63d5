package v4l2

/*
#cgo linux CFLAGS: -I ${SRCDIR}/../include/
#include <linux/videodev2.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Capability constants this package negotiates against. Only the flags
// Open actually tests are defined; see
// https://elixir.bootlin.com/linux/latest/source/include/uapi/linux/videodev2.h#L451
// for the full V4L2_CAP_* set if a future device mode needs more of it.
const (
	// CapVideoCapture indicates the device supports video capture via the single-planar API.
	CapVideoCapture uint32 = C.V4L2_CAP_VIDEO_CAPTURE

	// CapVideoCaptureMPlane indicates video capture support via the multi-planar API.
	CapVideoCaptureMPlane uint32 = C.V4L2_CAP_VIDEO_CAPTURE_MPLANE

	// CapStreaming indicates support for streaming I/O using memory mapping or user pointers.
	CapStreaming uint32 = C.V4L2_CAP_STREAMING

	// CapDeviceCapabilities indicates the device provides device-specific capabilities.
	// When set, DeviceCapabilities should be used instead of Capabilities.
	CapDeviceCapabilities uint32 = C.V4L2_CAP_DEVICE_CAPS
)

// Capability represents the capabilities and identification information of a V4L2 device.
// Corresponds to the v4l2_capability structure in the V4L2 API.
//
// References:
//   - https://elixir.bootlin.com/linux/latest/source/include/uapi/linux/videodev2.h#L440
//   - https://www.kernel.org/doc/html/latest/userspace-api/media/v4l/vidioc-querycap.html#c.V4L.v4l2_capability
type Capability struct {
	Driver  string
	Card    string
	BusInfo string
	Version uint32

	// Capabilities is a bitmask of all capabilities supported by the physical device.
	Capabilities uint32

	// DeviceCapabilities is a bitmask of capabilities for this specific opened device node.
	// Only valid when CapDeviceCapabilities is set in Capabilities.
	DeviceCapabilities uint32
}

// GetCapability issues VIDIOC_QUERYCAP to retrieve device capabilities and
// identification for fd.
func GetCapability(fd uintptr) (Capability, error) {
	var v4l2Cap C.struct_v4l2_capability
	if err := send(fd, C.VIDIOC_QUERYCAP, uintptr(unsafe.Pointer(&v4l2Cap))); err != nil {
		return Capability{}, fmt.Errorf("capability: %w", err)
	}
	return Capability{
		Driver:             C.GoString((*C.char)(unsafe.Pointer(&v4l2Cap.driver[0]))),
		Card:               C.GoString((*C.char)(unsafe.Pointer(&v4l2Cap.card[0]))),
		BusInfo:            C.GoString((*C.char)(unsafe.Pointer(&v4l2Cap.bus_info[0]))),
		Version:            uint32(v4l2Cap.version),
		Capabilities:       uint32(v4l2Cap.capabilities),
		DeviceCapabilities: uint32(v4l2Cap.device_caps),
	}, nil
}

// GetCapabilities returns DeviceCapabilities when the driver provides
// device-specific capabilities, falling back to Capabilities for older
// drivers that don't set CapDeviceCapabilities.
func (c Capability) GetCapabilities() uint32 {
	if c.IsDeviceCapabilitiesProvided() {
		return c.DeviceCapabilities
	}
	return c.Capabilities
}

// IsVideoCaptureSupported reports whether the resolved capability set
// includes single-planar video capture.
func (c Capability) IsVideoCaptureSupported() bool {
	return c.GetCapabilities()&CapVideoCapture != 0
}

// IsVideoCaptureMultiplanarSupported reports whether the resolved
// capability set includes multi-planar video capture.
func (c Capability) IsVideoCaptureMultiplanarSupported() bool {
	return c.GetCapabilities()&CapVideoCaptureMPlane != 0
}

// IsStreamingSupported reports whether the resolved capability set
// includes streaming I/O (mmap or user pointers).
func (c Capability) IsStreamingSupported() bool {
	return c.GetCapabilities()&CapStreaming != 0
}

// IsDeviceCapabilitiesProvided reports whether the driver set
// CapDeviceCapabilities, meaning DeviceCapabilities should be preferred
// over Capabilities.
func (c Capability) IsDeviceCapabilitiesProvided() bool {
	return c.Capabilities&CapDeviceCapabilities != 0
}

// String returns a formatted device identification line, logged once at
// open time.
//
// Example: "driver: uvcvideo; card: HD Webcam C920; bus info: usb-0000:00:14.0-1"
func (c Capability) String() string {
	return fmt.Sprintf("driver: %s; card: %s; bus info: %s", c.Driver, c.Card, c.BusInfo)
}
