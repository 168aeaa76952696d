package events

// Event type constants for kelindar/event.
const (
	TypePipelineStateChanged uint32 = iota + 1
	TypePipelineCrashed
	TypeDeviceHotplug
	TypeStatusChanged
	TypeLogEntry
	TypeDeviceRecovery
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// PipelineStateChangedEvent is published whenever the pipeline supervisor
// transitions between lifecycle states.
type PipelineStateChangedEvent struct {
	State     string `json:"state" example:"running" doc:"New pipeline state"`
	Previous  string `json:"previous" example:"not_started" doc:"Previous pipeline state"`
	PID       int    `json:"pid,omitempty" example:"12345" doc:"FFmpeg process ID, when running"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Transition timestamp"`
}

// Type returns the event type identifier for PipelineStateChangedEvent.
func (e PipelineStateChangedEvent) Type() uint32 { return TypePipelineStateChanged }

// PipelineCrashedEvent is published when the FFmpeg child exits
// unexpectedly. SSE clients surface it; recovery itself runs off the
// status poll loop.
type PipelineCrashedEvent struct {
	ExitCode  int    `json:"exit_code" example:"1" doc:"FFmpeg exit code"`
	Error     string `json:"error,omitempty" doc:"Last error line captured from FFmpeg stderr"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Crash timestamp"`
}

// Type returns the event type identifier for PipelineCrashedEvent.
func (e PipelineCrashedEvent) Type() uint32 { return TypePipelineCrashed }

// DeviceHotplugEvent represents a video4linux device appearing or disappearing.
type DeviceHotplugEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Path to the video device"`
	DeviceName string `json:"device_name,omitempty" example:"Elgato Facecam" doc:"Device card label"`
	Action     string `json:"action" example:"add" doc:"Action type: add, remove"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceHotplugEvent.
func (e DeviceHotplugEvent) Type() uint32 { return TypeDeviceHotplug }

// StatusChangedEvent is published when the reported status category changes.
type StatusChangedEvent struct {
	Category  string `json:"category" example:"active" doc:"Status category: active, idle, degraded, unavailable"`
	Previous  string `json:"previous" example:"idle" doc:"Previous status category"`
	Detail    string `json:"detail,omitempty" doc:"Human-readable detail"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StatusChangedEvent.
func (e StatusChangedEvent) Type() uint32 { return TypeStatusChanged }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"supervisor" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }

// DeviceRecoveryEvent is published when the loopback module is reset
// in an attempt to clear a stuck virtual device.
type DeviceRecoveryEvent struct {
	DevicePath string `json:"device_path" example:"/dev/video10" doc:"Virtual device being recovered"`
	Reason     string `json:"reason" doc:"Why recovery was attempted"`
	Success    bool   `json:"success" doc:"Whether the module reset succeeded"`
	Timestamp  string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for DeviceRecoveryEvent.
func (e DeviceRecoveryEvent) Type() uint32 { return TypeDeviceRecovery }
