// Package ffmpeg builds and interprets the FFmpeg invocation that relays
// frames from the capture camera into the virtual output device.
package ffmpeg

// Binary is the executable name resolved through PATH.
const Binary = "ffmpeg"

// BuildArgs builds the argument list for the relay process. The stream is
// copied raw from the V4L2 input to the V4L2 output with only a pixel
// format conversion, no encoder in the path.
func BuildArgs(p Params) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "level+info",
		"-f", "v4l2",
	}

	if p.Framerate != "" {
		args = append(args, "-framerate", p.Framerate)
	}
	if p.InputFormat != "" {
		args = append(args, "-input_format", p.InputFormat)
	}
	if p.Resolution != "" {
		args = append(args, "-video_size", p.Resolution)
	}
	args = append(args, "-i", p.InputPath)

	args = append(args, "-f", "v4l2")
	if p.OutputPixFmt != "" {
		args = append(args, "-pix_fmt", p.OutputPixFmt)
	}
	args = append(args, p.OutputPath)

	return args
}
