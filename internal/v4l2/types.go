//go:build linux

package v4l2

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Index      int    // Kernel device index from sysfs
	Caps       uint32
}

// IsCapture reports whether the device can capture video.
func (d DeviceInfo) IsCapture() bool {
	return d.Caps&v4l2CapVideoCapture != 0
}

// IsOutput reports whether the device accepts video output.
// v4l2loopback virtual devices report this capability.
func (d DeviceInfo) IsOutput() bool {
	return d.Caps&v4l2CapVideoOutput != 0
}

// Capability flags.
const (
	v4l2CapVideoCapture = 0x00000001
	v4l2CapVideoOutput  = 0x00000002
	v4l2CapDeviceCaps   = 0x80000000
)
