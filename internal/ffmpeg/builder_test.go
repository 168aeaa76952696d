package ffmpeg

import (
	"strings"
	"testing"
)

func TestBuildArgsRelayCommand(t *testing.T) {
	p := NewParams("/dev/video0", "/dev/video10")

	got := strings.Join(BuildArgs(p), " ")
	want := "-hide_banner -loglevel level+info" +
		" -f v4l2 -framerate 30 -input_format uyvy422 -video_size 1280x720 -i /dev/video0" +
		" -f v4l2 -pix_fmt yuv420p /dev/video10"
	if got != want {
		t.Errorf("BuildArgs:\n got %q\nwant %q", got, want)
	}
}

func TestBuildArgsOmitsEmptyFields(t *testing.T) {
	p := Params{InputPath: "/dev/video0", OutputPath: "/dev/video10"}

	got := strings.Join(BuildArgs(p), " ")
	for _, flag := range []string{"-framerate", "-input_format", "-video_size", "-pix_fmt"} {
		if strings.Contains(got, flag) {
			t.Errorf("BuildArgs includes %s for empty field: %q", flag, got)
		}
	}
	if !strings.HasSuffix(got, "-i /dev/video0 -f v4l2 /dev/video10") {
		t.Errorf("unexpected arg ordering: %q", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantLevel string
		wantMsg   string
	}{
		{
			name:      "plain level prefix",
			line:      "[error] Cannot open video device /dev/video0",
			wantLevel: "error",
			wantMsg:   "Cannot open video device /dev/video0",
		},
		{
			name:      "component then level",
			line:      "[video4linux2,v4l2 @ 0x55d] [warning] The driver changed the time per frame",
			wantLevel: "warning",
			wantMsg:   "[video4linux2,v4l2 @ 0x55d] The driver changed the time per frame",
		},
		{
			name:      "no brackets",
			line:      "frame=  300 fps= 30",
			wantLevel: "info",
			wantMsg:   "frame=  300 fps= 30",
		},
		{
			name:      "component without level",
			line:      "[v4l2 @ 0x1] some message",
			wantLevel: "info",
			wantMsg:   "[v4l2 @ 0x1] some message",
		},
		{
			name:      "fatal",
			line:      "[fatal] Device or resource busy",
			wantLevel: "fatal",
			wantMsg:   "Device or resource busy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, msg := ParseLogLevel(tt.line)
			if level != tt.wantLevel {
				t.Errorf("level = %q, want %q", level, tt.wantLevel)
			}
			if msg != tt.wantMsg {
				t.Errorf("msg = %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}
