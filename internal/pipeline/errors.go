package pipeline

import "errors"

// Sentinel errors for pipeline lifecycle failures.
var (
	// ErrAlreadyRunning indicates a start was requested while the relay
	// process is alive, or another writer holds the virtual device.
	ErrAlreadyRunning = errors.New("pipeline already running")

	// ErrProcessSpawnFailed indicates the relay process could not be
	// started or died during the startup grace period.
	ErrProcessSpawnFailed = errors.New("failed to spawn relay process")

	// ErrUnrecoverable indicates the restart ceiling was reached and the
	// supervisor gave up. Manual intervention is required.
	ErrUnrecoverable = errors.New("pipeline unrecoverable")
)
