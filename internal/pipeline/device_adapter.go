package pipeline

import "github.com/chainflux/capturesvc/internal/capture"

// DeviceSource adapts *capture.Device to CaptureSource.
type DeviceSource struct {
	dev *capture.Device
}

// NewDeviceSource wraps an opened capture device for use by a Loop.
func NewDeviceSource(dev *capture.Device) *DeviceSource {
	return &DeviceSource{dev: dev}
}

func (d *DeviceSource) WaitReadable(timeoutMS int64) error { return d.dev.WaitReadable(timeoutMS) }
func (d *DeviceSource) Width() uint32                      { return d.dev.Width() }
func (d *DeviceSource) Height() uint32                     { return d.dev.Height() }

func (d *DeviceSource) ReadFrame() (Frame, bool, error) {
	fr, ok, err := d.dev.ReadFrame()
	if err != nil || !ok {
		return Frame{}, ok, err
	}
	return Frame{
		Bytes:   fr.Plane0[:fr.BytesUsed],
		Release: func() error { return d.dev.Release(fr) },
	}, true, nil
}
