package ffmpeg

// Params represents all parameters needed to build the relay command.
// Strongly typed fields instead of a map keep defaults in one place.
type Params struct {
	// Input Configuration
	InputPath   string // /dev/video0
	InputFormat string // uyvy422, yuyv422, mjpeg, etc.
	Resolution  string // 1280x720
	Framerate   string // 30, 60, etc.

	// Output Configuration
	OutputPath   string // /dev/video10
	OutputPixFmt string // yuv420p
}

// Defaults for the camera relay. uyvy422 matches what UVC cameras deliver
// uncompressed; yuv420p is what downstream consumers of the virtual device
// expect.
const (
	DefaultInputFormat  = "uyvy422"
	DefaultResolution   = "1280x720"
	DefaultFramerate    = "30"
	DefaultOutputPixFmt = "yuv420p"
)

// NewParams builds Params for relaying input to output with defaults filled.
func NewParams(inputPath, outputPath string) Params {
	return Params{
		InputPath:    inputPath,
		InputFormat:  DefaultInputFormat,
		Resolution:   DefaultResolution,
		Framerate:    DefaultFramerate,
		OutputPath:   outputPath,
		OutputPixFmt: DefaultOutputPixFmt,
	}
}
