// Package devices resolves the physical capture camera and the virtual
// output device the pipeline writes to. Resolution is label-driven: the
// capture camera is matched against an ordered list of name candidates,
// and the virtual device lives at a fixed slot with a fixed card label.
package devices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"vcamd/internal/loopback"
	"vcamd/internal/v4l2"
)

// ErrDeviceNotFound indicates no enumerated device matched the resolution
// criteria.
var ErrDeviceNotFound = errors.New("device not found")

// errWrongLabel marks a slot occupied by a device with an unexpected label.
// It wraps ErrDeviceNotFound so callers classify it the same way.
var errWrongLabel = fmt.Errorf("%w: unexpected card label", ErrDeviceNotFound)

// Enumerator lists V4L2 devices. The production implementation wraps
// v4l2.FindDevices; tests substitute a fixed list.
type Enumerator interface {
	Enumerate() ([]v4l2.DeviceInfo, error)
}

// EnumeratorFunc adapts a function to the Enumerator interface.
type EnumeratorFunc func() ([]v4l2.DeviceInfo, error)

// Enumerate calls f.
func (f EnumeratorFunc) Enumerate() ([]v4l2.DeviceInfo, error) { return f() }

// SystemEnumerator enumerates devices through the kernel.
func SystemEnumerator() Enumerator {
	return EnumeratorFunc(v4l2.FindDevices)
}

// Resolver locates the capture camera and ensures the virtual device.
type Resolver struct {
	enum   Enumerator
	loader *loopback.Loader
	logger *slog.Logger

	captureMatches []string
	capturePath    string
	virtualSlot    int
	virtualLabel   string
}

// ResolverConfig carries the resolution criteria.
type ResolverConfig struct {
	// CaptureMatches are label substrings tried in order, first match wins.
	CaptureMatches []string
	// CapturePath, when set, bypasses label matching and pins an exact node.
	CapturePath string
	// VirtualSlot is the v4l2loopback video_nr, producing /dev/video<slot>.
	VirtualSlot int
	// VirtualLabel is the card label the virtual device must carry.
	VirtualLabel string
}

// NewResolver creates a Resolver using the given enumerator and module loader.
func NewResolver(enum Enumerator, loader *loopback.Loader, cfg ResolverConfig, logger *slog.Logger) *Resolver {
	return &Resolver{
		enum:           enum,
		loader:         loader,
		logger:         logger,
		captureMatches: cfg.CaptureMatches,
		capturePath:    cfg.CapturePath,
		virtualSlot:    cfg.VirtualSlot,
		virtualLabel:   cfg.VirtualLabel,
	}
}

// ResolveCapture finds the physical camera to read from. Candidates are
// tried in configuration order so a preferred camera wins over fallbacks
// regardless of device index ordering.
func (r *Resolver) ResolveCapture() (v4l2.DeviceInfo, error) {
	devices, err := r.enum.Enumerate()
	if err != nil {
		return v4l2.DeviceInfo{}, fmt.Errorf("enumerating devices: %w", err)
	}

	if r.capturePath != "" {
		for _, dev := range devices {
			if dev.DevicePath == r.capturePath && dev.IsCapture() {
				return dev, nil
			}
		}
		return v4l2.DeviceInfo{}, fmt.Errorf("%w: no capture device at %s", ErrDeviceNotFound, r.capturePath)
	}

	for _, candidate := range r.captureMatches {
		for _, dev := range devices {
			if !dev.IsCapture() {
				continue
			}
			// The virtual device must never be selected as its own source.
			if dev.Index == r.virtualSlot || strings.EqualFold(dev.DeviceName, r.virtualLabel) {
				continue
			}
			if strings.Contains(strings.ToLower(dev.DeviceName), strings.ToLower(candidate)) {
				r.logger.Debug("capture device matched", "candidate", candidate, "path", dev.DevicePath, "name", dev.DeviceName)
				return dev, nil
			}
		}
	}

	return v4l2.DeviceInfo{}, fmt.Errorf("%w: no camera matching %v", ErrDeviceNotFound, r.captureMatches)
}

// ResolveVirtual ensures the virtual output device exists and returns it.
// When the device node is missing the loopback module is loaded and the
// check retried, since the node can take a moment to appear after modprobe.
func (r *Resolver) ResolveVirtual(ctx context.Context) (v4l2.DeviceInfo, error) {
	dev, err := r.findVirtual()
	if err == nil {
		return dev, nil
	}

	if errors.Is(err, errWrongLabel) {
		// Another module instance claimed the slot; reload with our params.
		r.logger.Warn("virtual device slot has wrong label, resetting module", "error", err)
		if err := r.loader.Reset(ctx); err != nil {
			return v4l2.DeviceInfo{}, err
		}
	} else if err := r.loader.Load(ctx); err != nil {
		return v4l2.DeviceInfo{}, err
	}

	check := func() error {
		var err error
		dev, err = r.findVirtual()
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(300*time.Millisecond), 3),
		ctx,
	)
	if err := backoff.Retry(check, policy); err != nil {
		return v4l2.DeviceInfo{}, err
	}

	r.logger.Info("virtual device ready", "path", dev.DevicePath, "label", dev.DeviceName)
	return dev, nil
}

// findVirtual looks for the output device at the configured slot. A node at
// the right slot with the wrong label means something else claimed the slot.
func (r *Resolver) findVirtual() (v4l2.DeviceInfo, error) {
	devices, err := r.enum.Enumerate()
	if err != nil {
		return v4l2.DeviceInfo{}, fmt.Errorf("enumerating devices: %w", err)
	}

	for _, dev := range devices {
		if dev.Index != r.virtualSlot {
			continue
		}
		if !strings.EqualFold(dev.DeviceName, r.virtualLabel) {
			return v4l2.DeviceInfo{}, fmt.Errorf("%w: %s is %q, expected %q",
				errWrongLabel, dev.DevicePath, dev.DeviceName, r.virtualLabel)
		}
		return dev, nil
	}

	return v4l2.DeviceInfo{}, fmt.Errorf("%w: /dev/video%d", ErrDeviceNotFound, r.virtualSlot)
}
