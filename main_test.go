package main

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"vcamd/internal/devices"
	"vcamd/internal/loopback"
	"vcamd/internal/pipeline"
)

func TestRelayParamsFromOptions(t *testing.T) {
	opts := &Options{
		InputFormat:  "uyvy422",
		Resolution:   "1280x720",
		Framerate:    30,
		OutputPixFmt: "yuv420p",
	}

	p := relayParams(opts)
	if p.Framerate != "30" {
		t.Errorf("framerate = %q, want \"30\"", p.Framerate)
	}
	if p.InputFormat != "uyvy422" || p.Resolution != "1280x720" || p.OutputPixFmt != "yuv420p" {
		t.Errorf("params = %+v", p)
	}
}

func TestSplitCandidates(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Elgato Facecam", []string{"Elgato Facecam"}},
		{"Elgato Facecam, HD Pro Webcam", []string{"Elgato Facecam", "HD Pro Webcam"}},
		{" a ,, b ", []string{"a", "b"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := splitCandidates(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitCandidates(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFatalStartError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"device claimed", pipeline.ErrAlreadyRunning, true},
		{"no modprobe privilege", fmt.Errorf("load: %w", loopback.ErrPermissionDenied), true},
		{"camera unplugged", devices.ErrDeviceNotFound, false},
		{"spawn failure", pipeline.ErrProcessSpawnFailed, false},
		{"unknown", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fatalStartError(tt.err); got != tt.fatal {
				t.Errorf("fatalStartError = %v, want %v", got, tt.fatal)
			}
		})
	}
}
