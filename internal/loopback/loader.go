// Package loopback manages the v4l2loopback kernel module that backs the
// virtual camera device. Loading, unloading, and resetting go through
// modprobe; the module is parameterized with a fixed slot number and card
// label so the virtual device node is predictable across reboots.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

const moduleName = "v4l2loopback"

// Sentinel errors for module management failures.
var (
	// ErrPermissionDenied indicates the caller lacks privileges to run
	// modprobe, typically a missing sudoers entry.
	ErrPermissionDenied = errors.New("permission denied loading kernel module")

	// ErrModuleLoadFailed indicates modprobe ran but the module did not
	// load, e.g. the module is not installed for the running kernel.
	ErrModuleLoadFailed = errors.New("kernel module load failed")
)

// Runner executes an external command and returns its combined output.
// The default implementation shells out; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Loader loads and unloads the v4l2loopback module with fixed parameters.
type Loader struct {
	runner Runner
	logger *slog.Logger

	slot    int
	label   string
	useSudo bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithRunner substitutes the command runner, used by tests.
func WithRunner(r Runner) Option {
	return func(l *Loader) { l.runner = r }
}

// WithoutSudo runs modprobe directly, for root sessions and containers.
func WithoutSudo() Option {
	return func(l *Loader) { l.useSudo = false }
}

// NewLoader creates a Loader for the given virtual device slot and label.
func NewLoader(slot int, label string, logger *slog.Logger, opts ...Option) *Loader {
	l := &Loader{
		runner:  execRunner{},
		logger:  logger,
		slot:    slot,
		label:   label,
		useSudo: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsLoaded reports whether the v4l2loopback module is currently loaded.
func (l *Loader) IsLoaded() bool {
	_, err := os.Stat("/sys/module/" + moduleName)
	return err == nil
}

// Load loads the v4l2loopback module with the configured slot and label.
// exclusive_caps=1 makes the device report capture capability only while
// a producer is attached, which browsers require to list it as a camera.
func (l *Loader) Load(ctx context.Context) error {
	args := []string{
		moduleName,
		fmt.Sprintf("video_nr=%d", l.slot),
		fmt.Sprintf("card_label=%s", l.label),
		"exclusive_caps=1",
	}

	l.logger.Info("loading kernel module", "module", moduleName, "slot", l.slot, "label", l.label)
	if err := l.modprobe(ctx, args...); err != nil {
		return err
	}
	return nil
}

// Unload removes the v4l2loopback module. It is not an error if the
// module is already absent.
func (l *Loader) Unload(ctx context.Context) error {
	if !l.IsLoaded() {
		return nil
	}

	l.logger.Info("unloading kernel module", "module", moduleName)
	return l.modprobe(ctx, "-r", moduleName)
}

// Reset unloads and reloads the module. Used to clear a stuck virtual
// device, e.g. after a writer crashed without releasing it.
func (l *Loader) Reset(ctx context.Context) error {
	if err := l.Unload(ctx); err != nil {
		l.logger.Warn("module unload during reset failed", "error", err)
	}
	return l.Load(ctx)
}

func (l *Loader) modprobe(ctx context.Context, args ...string) error {
	name := "modprobe"
	if l.useSudo {
		name = "sudo"
		args = append([]string{"-n", "modprobe"}, args...)
	}

	output, err := l.runner.Run(ctx, name, args...)
	if err == nil {
		return nil
	}

	text := strings.ToLower(string(output))
	l.logger.Error("modprobe failed", "args", args, "output", strings.TrimSpace(string(output)), "error", err)

	if isPermissionFailure(text, err) {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, firstLine(output))
	}
	return fmt.Errorf("%w: %s", ErrModuleLoadFailed, firstLine(output))
}

// isPermissionFailure distinguishes privilege problems from genuine module
// failures so callers can surface the right remediation.
func isPermissionFailure(output string, err error) bool {
	for _, marker := range []string{
		"permission denied",
		"operation not permitted",
		"a password is required",
		"not allowed to execute",
		"not in the sudoers",
	} {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return errors.Is(err, os.ErrPermission)
}

func firstLine(output []byte) string {
	text := strings.TrimSpace(string(output))
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	if text == "" {
		return "no output"
	}
	return text
}
