//go:build linux

package v4l2

import "testing"

func TestCstr(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"null terminated", []byte{'E', 'l', 'g', 'a', 't', 'o', 0, 'x', 'x'}, "Elgato"},
		{"no null", []byte{'c', 'a', 'm'}, "cam"},
		{"empty", []byte{0}, ""},
		{"leading null", []byte{0, 'a', 'b'}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cstr(tt.input); got != tt.expected {
				t.Errorf("cstr(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDeviceIndex(t *testing.T) {
	tests := []struct {
		node     string
		expected int
	}{
		{"video0", 0},
		{"video10", 10},
		{"video42", 42},
	}

	for _, tt := range tests {
		if got := deviceIndex(tt.node); got != tt.expected {
			t.Errorf("deviceIndex(%q) = %d, want %d", tt.node, got, tt.expected)
		}
	}
}

func TestDeviceInfoCapabilities(t *testing.T) {
	capture := DeviceInfo{Caps: v4l2CapVideoCapture}
	if !capture.IsCapture() || capture.IsOutput() {
		t.Errorf("capture device misreported: IsCapture=%v IsOutput=%v", capture.IsCapture(), capture.IsOutput())
	}

	loopback := DeviceInfo{Caps: v4l2CapVideoOutput}
	if loopback.IsCapture() || !loopback.IsOutput() {
		t.Errorf("output device misreported: IsCapture=%v IsOutput=%v", loopback.IsCapture(), loopback.IsOutput())
	}

	both := DeviceInfo{Caps: v4l2CapVideoCapture | v4l2CapVideoOutput}
	if !both.IsCapture() || !both.IsOutput() {
		t.Error("dual-capability device misreported")
	}
}

func TestFindDevicesDoesNotError(t *testing.T) {
	// On machines without video devices this returns an empty slice.
	devices, err := FindDevices()
	if err != nil {
		t.Fatalf("FindDevices failed: %v", err)
	}

	for i := 1; i < len(devices); i++ {
		if devices[i-1].Index > devices[i].Index {
			t.Errorf("devices not sorted by index: %d before %d", devices[i-1].Index, devices[i].Index)
		}
	}
}
