//go:build linux

package devices

import "testing"

func TestParseUEvent(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected *UEvent
	}{
		{
			name:     "empty input",
			input:    []byte{},
			expected: nil,
		},
		{
			name:     "nil input",
			input:    nil,
			expected: nil,
		},
		{
			name:     "no @ separator",
			input:    []byte("invalid"),
			expected: nil,
		},
		{
			name:     "missing action",
			input:    []byte("@/devices/foo"),
			expected: nil,
		},
		{
			name:  "video device add",
			input: []byte("add@/devices/pci0000:00/usb1/video4linux/video0\x00SUBSYSTEM=video4linux\x00DEVNAME=video0\x00"),
			expected: &UEvent{
				Action:    "add",
				KObj:      "/devices/pci0000:00/usb1/video4linux/video0",
				Subsystem: "video4linux",
				DevName:   "video0",
			},
		},
		{
			name:  "video device remove",
			input: []byte("remove@/devices/virtual/video4linux/video10\x00SUBSYSTEM=video4linux\x00DEVNAME=video10\x00MAJOR=81\x00"),
			expected: &UEvent{
				Action:    "remove",
				KObj:      "/devices/virtual/video4linux/video10",
				Subsystem: "video4linux",
				DevName:   "video10",
			},
		},
		{
			name:  "non-video subsystem",
			input: []byte("add@/devices/usb/1-1\x00SUBSYSTEM=usb\x00DEVTYPE=usb_device\x00"),
			expected: &UEvent{
				Action:    "add",
				KObj:      "/devices/usb/1-1",
				Subsystem: "usb",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseUEvent(tt.input)

			if tt.expected == nil {
				if got != nil {
					t.Fatalf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected event, got nil")
			}
			if got.Action != tt.expected.Action {
				t.Errorf("Action = %q, want %q", got.Action, tt.expected.Action)
			}
			if got.KObj != tt.expected.KObj {
				t.Errorf("KObj = %q, want %q", got.KObj, tt.expected.KObj)
			}
			if got.Subsystem != tt.expected.Subsystem {
				t.Errorf("Subsystem = %q, want %q", got.Subsystem, tt.expected.Subsystem)
			}
			if got.DevName != tt.expected.DevName {
				t.Errorf("DevName = %q, want %q", got.DevName, tt.expected.DevName)
			}
		})
	}
}

func TestParseUEventSkipsLibudevHeader(t *testing.T) {
	data := append([]byte("libudev\x00\x01\x02\x03\x00"), []byte("add@/devices/virtual/video4linux/video10\x00SUBSYSTEM=video4linux\x00DEVNAME=video10\x00")...)

	got := ParseUEvent(data)
	if got == nil {
		t.Fatal("expected event, got nil")
	}
	if got.Action != "add" || got.DevName != "video10" {
		t.Errorf("parsed %+v, want add/video10", got)
	}
}
