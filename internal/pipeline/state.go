package pipeline

import "time"

// State represents the current state of the relay pipeline.
type State string

// Pipeline states.
const (
	StateNotStarted    State = "not_started"   // Never started
	StateStarting      State = "starting"      // Spawn in progress
	StateRunning       State = "running"       // Relay process alive
	StateStopping      State = "stopping"      // Graceful stop in progress
	StateStopped       State = "stopped"       // Stopped on request
	StateFailed        State = "failed"        // Process died unexpectedly
	StateUnrecoverable State = "unrecoverable" // Restart ceiling reached
)

// Info is a point-in-time snapshot of the pipeline.
type Info struct {
	State        State
	PID          int
	InputPath    string
	OutputPath   string
	StartedAt    time.Time
	RestartCount int
	LastError    string
}

// Alive reports whether the state describes a live process.
func (s State) Alive() bool {
	return s == StateStarting || s == StateRunning
}
