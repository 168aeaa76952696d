// Package pipeline supervises the FFmpeg relay process that feeds the
// virtual camera. There is at most one relay process; every lifecycle
// operation is serialized and liveness is always derived from the kernel,
// never from a cached flag.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"vcamd/internal/devices"
	"vcamd/internal/events"
	"vcamd/internal/ffmpeg"
	"vcamd/internal/loopback"
)

// Defaults for supervisor timing and recovery.
const (
	DefaultStartupGrace    = 2 * time.Second
	DefaultGracefulTimeout = 5 * time.Second
	DefaultKillTimeout     = 5 * time.Second
	DefaultMaxRestarts     = 3

	// stableRunThreshold is how long the relay must stay up before a
	// later crash is treated as fresh rather than part of a crash loop.
	stableRunThreshold = time.Minute
)

// Supervisor owns the single relay process. All exported methods are safe
// for concurrent use; they serialize on an internal mutex.
type Supervisor struct {
	logger        *slog.Logger
	processLogger *slog.Logger
	bus           *events.Bus
	resolver      *devices.Resolver
	loader        *loopback.Loader

	binary    string
	buildArgs func(inputPath, outputPath string) []string
	logParser LogParser

	startupGrace    time.Duration
	gracefulTimeout time.Duration
	killTimeout     time.Duration
	maxRestarts     int

	mu           sync.Mutex
	child        *child
	state        State
	inputPath    string
	outputPath   string
	startedAt    time.Time
	restartCount int
	lastError    string
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithCommand overrides the relay binary and argument builder, used by
// tests to substitute a shell script for FFmpeg.
func WithCommand(binary string, buildArgs func(inputPath, outputPath string) []string) SupervisorOption {
	return func(s *Supervisor) {
		s.binary = binary
		s.buildArgs = buildArgs
	}
}

// WithTimeouts overrides startup grace and shutdown timeouts.
func WithTimeouts(startupGrace, graceful, kill time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		s.startupGrace = startupGrace
		s.gracefulTimeout = graceful
		s.killTimeout = kill
	}
}

// WithMaxRestarts sets the automatic restart ceiling.
func WithMaxRestarts(n int) SupervisorOption {
	return func(s *Supervisor) { s.maxRestarts = n }
}

// NewSupervisor creates a Supervisor. params carries the relay format
// settings; device paths are resolved fresh on every start.
func NewSupervisor(
	resolver *devices.Resolver,
	loader *loopback.Loader,
	bus *events.Bus,
	params ffmpeg.Params,
	logger, processLogger *slog.Logger,
	opts ...SupervisorOption,
) *Supervisor {
	s := &Supervisor{
		logger:        logger,
		processLogger: processLogger,
		bus:           bus,
		resolver:      resolver,
		loader:        loader,
		binary:        ffmpeg.Binary,
		buildArgs: func(inputPath, outputPath string) []string {
			p := params
			p.InputPath = inputPath
			p.OutputPath = outputPath
			return ffmpeg.BuildArgs(p)
		},
		logParser:       ffmpeg.ParseLogLevel,
		startupGrace:    DefaultStartupGrace,
		gracefulTimeout: DefaultGracefulTimeout,
		killTimeout:     DefaultKillTimeout,
		maxRestarts:     DefaultMaxRestarts,
		state:           StateNotStarted,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start resolves devices and launches the relay process. Starting an
// already-running pipeline returns ErrAlreadyRunning. A successful
// explicit start resets the automatic restart budget.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.startLocked(ctx); err != nil {
		return err
	}
	s.restartCount = 0
	return nil
}

// startLocked performs the start sequence. Callers hold s.mu.
func (s *Supervisor) startLocked(ctx context.Context) error {
	s.refreshLocked()
	if s.state.Alive() {
		return ErrAlreadyRunning
	}

	s.setStateLocked(StateStarting)

	capture, err := s.resolver.ResolveCapture()
	if err != nil {
		s.failLocked(err.Error())
		return err
	}

	virtual, err := s.resolver.ResolveVirtual(ctx)
	if err != nil {
		s.failLocked(err.Error())
		return err
	}

	s.inputPath = capture.DevicePath
	s.outputPath = virtual.DevicePath

	// Another writer already feeding the virtual device is not a fault
	// we may clear; resetting the module would yank it out from under
	// them. Refuse before spawning anything.
	if pid, held := deviceInUse(virtual.DevicePath); held {
		err := fmt.Errorf("%w: %s held by pid %d", ErrAlreadyRunning, virtual.DevicePath, pid)
		s.lastError = err.Error()
		s.setStateLocked(StateStopped)
		return err
	}

	c, err := s.spawnLocked()
	if err == nil {
		err = s.awaitStartupLocked(ctx, c)
	}
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			s.lastError = err.Error()
			s.setStateLocked(StateStopped)
			return err
		}
		// A crash inside the grace window is usually a stuck virtual
		// device; reset the module and try once more.
		s.logger.Warn("relay failed during startup, resetting virtual device", "error", err)
		s.resetVirtualLocked(ctx, err.Error())

		c, err = s.spawnLocked()
		if err == nil {
			err = s.awaitStartupLocked(ctx, c)
		}
		if err != nil {
			s.failLocked(err.Error())
			return err
		}
	}

	s.child = c
	s.startedAt = time.Now()
	s.setStateLocked(StateRunning)
	go s.monitor(c)

	s.logger.Info("pipeline started", "pid", c.pid(), "input", s.inputPath, "output", s.outputPath)
	return nil
}

// spawnLocked launches a relay child process.
func (s *Supervisor) spawnLocked() (*child, error) {
	args := s.buildArgs(s.inputPath, s.outputPath)
	s.logger.Debug("spawning relay", "binary", s.binary, "args", strings.Join(args, " "))

	c := newChild(s.binary, args, s.logger, s.processLogger, s.logParser)
	if err := c.start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProcessSpawnFailed, err)
	}
	return c, nil
}

// awaitStartupLocked gives the process a grace window to prove it can
// stream. An exit inside the window is a spawn failure; a busy output
// device means another writer holds it.
func (s *Supervisor) awaitStartupLocked(ctx context.Context, c *child) error {
	select {
	case <-c.exited:
		c.waitOutput()
		detail := c.lastErrorLine()
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", c.exitCode())
		}
		if strings.Contains(strings.ToLower(detail), "busy") {
			return fmt.Errorf("%w: %s", ErrAlreadyRunning, detail)
		}
		return fmt.Errorf("%w: %s", ErrProcessSpawnFailed, detail)
	case <-ctx.Done():
		c.stop(s.gracefulTimeout, s.killTimeout)
		return ctx.Err()
	case <-time.After(s.startupGrace):
		return nil
	}
}

// resetVirtualLocked reloads the loopback module to clear a stuck device.
func (s *Supervisor) resetVirtualLocked(ctx context.Context, reason string) {
	err := s.loader.Reset(ctx)
	s.bus.Publish(events.DeviceRecoveryEvent{
		DevicePath: s.outputPath,
		Reason:     reason,
		Success:    err == nil,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Error("virtual device reset failed", "error", err)
	}
}

// Stop gracefully stops the relay process. Stopping an idle pipeline is
// a no-op.
func (s *Supervisor) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked()
	c := s.child
	if c == nil || !s.state.Alive() {
		if s.state.Alive() {
			s.setStateLocked(StateStopped)
		}
		s.child = nil
		return nil
	}

	s.setStateLocked(StateStopping)
	exitCode := c.stop(s.gracefulTimeout, s.killTimeout)
	s.logger.Info("pipeline stopped", "exit_code", exitCode)

	s.child = nil
	s.setStateLocked(StateStopped)
	return nil
}

// Status returns a snapshot of the pipeline. Liveness is probed against
// the kernel, so a process that died since the last check is reported as
// failed even before the exit monitor has run.
func (s *Supervisor) Status() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked()
	info := Info{
		State:        s.state,
		InputPath:    s.inputPath,
		OutputPath:   s.outputPath,
		StartedAt:    s.startedAt,
		RestartCount: s.restartCount,
		LastError:    s.lastError,
	}
	if s.child != nil && s.state.Alive() {
		info.PID = s.child.pid()
	}
	return info
}

// EnsureRunning restarts the relay if it is not alive, giving up with
// ErrUnrecoverable once the restart ceiling is reached. A healthy
// pipeline is left untouched.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refreshLocked()
	if s.state.Alive() {
		return nil
	}
	if s.state == StateUnrecoverable {
		return ErrUnrecoverable
	}
	// Respect an explicit stop; recovery only applies to crashes.
	if s.state == StateStopped || s.state == StateNotStarted {
		return nil
	}

	if s.restartCount >= s.maxRestarts {
		s.setStateLocked(StateUnrecoverable)
		s.logger.Error("restart ceiling reached, giving up", "restarts", s.restartCount)
		return fmt.Errorf("%w: %d consecutive restarts failed", ErrUnrecoverable, s.restartCount)
	}

	s.restartCount++
	s.logger.Info("attempting pipeline recovery", "attempt", s.restartCount, "max", s.maxRestarts)
	err := s.startLocked(ctx)
	if errors.Is(err, devices.ErrDeviceNotFound) || errors.Is(err, ErrAlreadyRunning) {
		// Waiting for a camera to be plugged back in, or for another
		// writer to release the device, is not a crash loop. It costs
		// no restart budget.
		s.restartCount--
	}
	return err
}

// Shutdown stops the relay as part of daemon teardown.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	return s.Stop(ctx)
}

// monitor watches for unexpected process exit. Requested stops are
// handled synchronously by Stop; anything else observed here is a crash.
func (s *Supervisor) monitor(c *child) {
	exitCode := c.wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Superseded by a stop or a newer child.
	if s.child != c || !s.state.Alive() {
		return
	}

	if time.Since(s.startedAt) >= stableRunThreshold {
		s.restartCount = 0
	}

	detail := c.lastErrorLine()
	s.logger.Error("relay process died", "exit_code", exitCode, "error", detail)
	s.child = nil
	s.failLocked(detail)

	s.bus.Publish(events.PipelineCrashedEvent{
		ExitCode:  exitCode,
		Error:     detail,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// refreshLocked reconciles recorded state with actual process liveness.
func (s *Supervisor) refreshLocked() {
	if !s.state.Alive() {
		return
	}
	if s.child == nil || !s.child.alive() {
		if s.child != nil {
			s.lastError = s.child.lastErrorLine()
		}
		s.child = nil
		s.setStateLocked(StateFailed)
	}
}

// failLocked records a failure without touching the restart budget.
func (s *Supervisor) failLocked(detail string) {
	s.lastError = detail
	s.setStateLocked(StateFailed)
}

// setStateLocked transitions state and publishes the change.
func (s *Supervisor) setStateLocked(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next

	ev := events.PipelineStateChangedEvent{
		State:     string(next),
		Previous:  string(prev),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.child != nil && next.Alive() {
		ev.PID = s.child.pid()
	}
	s.bus.Publish(ev)
}
