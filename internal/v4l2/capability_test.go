package v4l2

import "testing"

func TestCapabilityGetCapabilitiesPrefersDeviceCapabilities(t *testing.T) {
	c := Capability{
		Capabilities:       CapVideoCapture | CapDeviceCapabilities,
		DeviceCapabilities: CapVideoCaptureMPlane | CapStreaming,
	}
	if got := c.GetCapabilities(); got != c.DeviceCapabilities {
		t.Errorf("GetCapabilities() = %#x, want device_caps %#x", got, c.DeviceCapabilities)
	}
}

func TestCapabilityGetCapabilitiesFallsBackWithoutDeviceCapabilities(t *testing.T) {
	c := Capability{Capabilities: CapVideoCapture | CapStreaming}
	if got := c.GetCapabilities(); got != c.Capabilities {
		t.Errorf("GetCapabilities() = %#x, want capabilities %#x", got, c.Capabilities)
	}
}

func TestCapabilityPredicates(t *testing.T) {
	c := Capability{
		Capabilities: CapVideoCapture | CapVideoCaptureMPlane | CapStreaming,
	}
	if !c.IsVideoCaptureSupported() {
		t.Error("IsVideoCaptureSupported() = false, want true")
	}
	if !c.IsVideoCaptureMultiplanarSupported() {
		t.Error("IsVideoCaptureMultiplanarSupported() = false, want true")
	}
	if !c.IsStreamingSupported() {
		t.Error("IsStreamingSupported() = false, want true")
	}
}

func TestCapabilityIsDeviceCapabilitiesProvided(t *testing.T) {
	withFlag := Capability{Capabilities: CapDeviceCapabilities}
	if !withFlag.IsDeviceCapabilitiesProvided() {
		t.Error("expected IsDeviceCapabilitiesProvided true when flag set")
	}
	withoutFlag := Capability{Capabilities: CapVideoCapture}
	if withoutFlag.IsDeviceCapabilitiesProvided() {
		t.Error("expected IsDeviceCapabilitiesProvided false when flag unset")
	}
}

func TestCapabilityString(t *testing.T) {
	c := Capability{Driver: "rkisp1", Card: "rockchip,isp1", BusInfo: "platform:rkisp1"}
	want := "driver: rkisp1; card: rockchip,isp1; bus info: platform:rkisp1"
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
