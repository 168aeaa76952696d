//go:build linux

package devices

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"vcamd/internal/events"
)

// Monitor watches kernel uevents for video4linux devices appearing and
// disappearing, publishing each as a DeviceHotplugEvent.
type Monitor struct {
	bus    *events.Bus
	logger *slog.Logger
}

// NewMonitor creates a hotplug monitor publishing to the given bus.
func NewMonitor(bus *events.Bus, logger *slog.Logger) *Monitor {
	return &Monitor{bus: bus, logger: logger}
}

// Run listens for device events until the context is cancelled. It blocks,
// so callers run it in its own goroutine.
func (m *Monitor) Run(ctx context.Context) error {
	sock, err := newUEventSocket()
	if err != nil {
		return err
	}
	defer sock.close()

	m.logger.Info("device hotplug monitor started")

	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, err := sock.receive(buf)
		if err != nil {
			return err
		}
		if event == nil {
			continue
		}
		if event.Subsystem != "video4linux" || event.DevName == "" {
			continue
		}
		if event.Action != "add" && event.Action != "remove" {
			continue
		}

		devicePath := "/dev/" + event.DevName
		m.logger.Info("video device hotplug", "action", event.Action, "path", devicePath)
		m.bus.Publish(events.DeviceHotplugEvent{
			DevicePath: devicePath,
			DeviceName: cardLabel(devicePath, event),
			Action:     event.Action,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// cardLabel tries to recover the device's card label for add events. The
// uevent itself only carries the node name; the label comes from sysfs via
// enumeration, which can race with node creation, so failures are fine.
func cardLabel(devicePath string, event *UEvent) string {
	if event.Action != "add" {
		return ""
	}
	devices, err := SystemEnumerator().Enumerate()
	if err != nil {
		return ""
	}
	for _, dev := range devices {
		if strings.EqualFold(dev.DevicePath, devicePath) {
			return dev.DeviceName
		}
	}
	return ""
}
