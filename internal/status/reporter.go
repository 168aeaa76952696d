// Package status derives the externally visible health category of the
// virtual camera from polled facts: relay process liveness and device
// presence. Nothing here caches health; every poll re-derives it.
package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vcamd/internal/events"
	"vcamd/internal/pipeline"
	"vcamd/internal/v4l2"
)

// DefaultPollInterval matches how often consumers expect status updates.
const DefaultPollInterval = 5 * time.Second

// consecutiveErrorLimit is how many failed polls in a row trigger a
// virtual device reset.
const consecutiveErrorLimit = 3

// Category is the coarse health classification.
type Category string

// Health categories.
const (
	CategoryActive      Category = "active"      // Relay running, frames flowing
	CategoryIdle        Category = "idle"        // Devices present, relay stopped
	CategoryDegraded    Category = "degraded"    // Relay died or camera missing, recovery in progress
	CategoryUnavailable Category = "unavailable" // Virtual device cannot be provided, recovery exhausted
)

// Snapshot is a point-in-time health report.
type Snapshot struct {
	Category      Category       `json:"category" example:"active" doc:"Health category"`
	PipelineState pipeline.State `json:"pipeline_state" example:"running" doc:"Relay process state"`
	PID           int            `json:"pid,omitempty" example:"12345" doc:"Relay process ID"`
	CapturePath   string         `json:"capture_path,omitempty" example:"/dev/video0" doc:"Resolved capture device"`
	CaptureName   string         `json:"capture_name,omitempty" example:"Elgato Facecam" doc:"Capture device label"`
	OutputPath    string         `json:"output_path,omitempty" example:"/dev/video10" doc:"Virtual device path"`
	RestartCount  int            `json:"restart_count" example:"0" doc:"Automatic restarts since last stable run"`
	LastError     string         `json:"last_error,omitempty" doc:"Most recent relay error"`
	Timestamp     string         `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Snapshot time"`
}

// PipelineController is the slice of the supervisor the reporter needs.
type PipelineController interface {
	Status() pipeline.Info
	EnsureRunning(ctx context.Context) error
}

// CaptureResolver locates the physical camera.
type CaptureResolver interface {
	ResolveCapture() (v4l2.DeviceInfo, error)
}

// ModuleResetter clears a stuck virtual device.
type ModuleResetter interface {
	Reset(ctx context.Context) error
}

// Reporter polls pipeline and device state on a fixed interval.
type Reporter struct {
	supervisor PipelineController
	resolver   CaptureResolver
	loader     ModuleResetter
	bus        *events.Bus
	metrics    *Metrics
	logger     *slog.Logger

	interval    time.Duration
	autoRecover bool
	watchdog    func() // poked after every successful poll

	// mu serializes polls; the ticker loop and API requests both call Poll.
	mu           sync.Mutex
	lastCategory Category
	errorStreak  int
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) ReporterOption {
	return func(r *Reporter) { r.interval = d }
}

// WithAutoRecover enables restart attempts for a failed relay.
func WithAutoRecover(enabled bool) ReporterOption {
	return func(r *Reporter) { r.autoRecover = enabled }
}

// WithWatchdog sets a callback poked after each successful poll,
// typically sd_notify WATCHDOG=1.
func WithWatchdog(fn func()) ReporterOption {
	return func(r *Reporter) { r.watchdog = fn }
}

// NewReporter creates a status reporter.
func NewReporter(
	supervisor PipelineController,
	resolver CaptureResolver,
	loader ModuleResetter,
	bus *events.Bus,
	metrics *Metrics,
	logger *slog.Logger,
	opts ...ReporterOption,
) *Reporter {
	r := &Reporter{
		supervisor:  supervisor,
		resolver:    resolver,
		loader:      loader,
		bus:         bus,
		metrics:     metrics,
		logger:      logger,
		interval:    DefaultPollInterval,
		autoRecover: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Poll derives one snapshot and reacts to it: publishes category changes,
// updates metrics, and kicks recovery when the relay has died.
func (r *Reporter) Poll(ctx context.Context) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := r.supervisor.Status()

	snap := Snapshot{
		PipelineState: info.State,
		PID:           info.PID,
		OutputPath:    info.OutputPath,
		RestartCount:  info.RestartCount,
		LastError:     info.LastError,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	capture, captureErr := r.resolver.ResolveCapture()
	if captureErr == nil {
		snap.CapturePath = capture.DevicePath
		snap.CaptureName = capture.DeviceName
	}

	snap.Category = categorize(info.State, captureErr)

	if r.autoRecover && snap.Category == CategoryDegraded {
		if err := r.supervisor.EnsureRunning(ctx); err != nil {
			r.logger.Warn("pipeline recovery attempt failed", "error", err)
			r.noteErrorLocked(ctx, err)
		} else {
			r.errorStreak = 0
		}
	} else if captureErr != nil && info.State.Alive() {
		// Camera vanished under a live relay; the crash will follow.
		r.logger.Warn("capture device missing while relay alive", "error", captureErr)
	} else {
		r.errorStreak = 0
	}

	if snap.Category != r.lastCategory {
		r.logger.Info("status changed", "category", snap.Category, "previous", r.lastCategory)
		r.bus.Publish(events.StatusChangedEvent{
			Category:  string(snap.Category),
			Previous:  string(r.lastCategory),
			Detail:    snap.LastError,
			Timestamp: snap.Timestamp,
		})
		r.lastCategory = snap.Category
	}

	if r.metrics != nil {
		r.metrics.Observe(snap)
	}
	if r.watchdog != nil {
		r.watchdog()
	}

	return snap
}

// Run polls until the context is cancelled. One poll runs immediately so
// status is available right after startup, and a device hotplug event
// forces a poll instead of waiting out the interval.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	hotplug := make(chan any, 8)
	unsubscribe := events.SubscribeToChannel[events.DeviceHotplugEvent](r.bus, hotplug)
	defer unsubscribe()

	r.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-hotplug:
			if ev, ok := e.(events.DeviceHotplugEvent); ok {
				r.logger.Info("device hotplug, re-polling",
					"path", ev.DevicePath, "action", ev.Action)
			}
			r.Poll(ctx)
		case <-ticker.C:
			r.Poll(ctx)
		}
	}
}

// noteErrorLocked tracks consecutive recovery failures. After the limit
// the loopback module is reset once, clearing a virtual device that no
// restart can reclaim. Callers hold r.mu.
func (r *Reporter) noteErrorLocked(ctx context.Context, cause error) {
	r.errorStreak++
	if r.errorStreak < consecutiveErrorLimit {
		return
	}
	r.errorStreak = 0

	r.logger.Warn("repeated recovery failures, resetting virtual device", "cause", cause)
	err := r.loader.Reset(ctx)
	r.bus.Publish(events.DeviceRecoveryEvent{
		Reason:    cause.Error(),
		Success:   err == nil,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		r.logger.Error("virtual device reset failed", "error", err)
	}
}

// categorize maps raw facts to a health category.
func categorize(state pipeline.State, captureErr error) Category {
	switch {
	case state == pipeline.StateUnrecoverable:
		return CategoryUnavailable
	case state.Alive():
		return CategoryActive
	case state == pipeline.StateFailed:
		return CategoryDegraded
	case captureErr != nil:
		return CategoryDegraded
	default:
		return CategoryIdle
	}
}
