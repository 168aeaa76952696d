//go:build linux

package v4l2

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unsafe"
)

// FindDevices finds all V4L2 video devices on the system, sorted by
// kernel device index so repeated calls return a stable order.
func FindDevices() ([]DeviceInfo, error) {
	entries, err := os.ReadDir("/sys/class/video4linux")
	if err != nil {
		if os.IsNotExist(err) {
			return []DeviceInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read video4linux directory: %w", err)
	}

	var devices []DeviceInfo

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		devicePath := "/dev/" + entry.Name()

		fd, err := open(devicePath)
		if err != nil {
			slog.With("component", "v4l2").Debug("failed to open video device", "path", devicePath, "error", err)
			continue
		}

		capability := v4l2Capability{}
		if err := ioctl(fd, vidiocQuerycap, unsafe.Pointer(&capability)); err != nil {
			slog.With("component", "v4l2").Debug("failed to query device capabilities", "path", devicePath, "error", err)
			close(fd)
			continue
		}
		close(fd)

		// Get the effective capabilities
		caps := capability.capabilities
		if caps&v4l2CapDeviceCaps != 0 {
			caps = capability.deviceCaps
		}

		// Skip nodes that are neither capture nor output (metadata nodes etc.)
		if caps&(v4l2CapVideoCapture|v4l2CapVideoOutput) == 0 {
			continue
		}

		index := deviceIndex(entry.Name())

		// Find stable ID from /dev/v4l/by-id/
		stableID := findStableID(entry.Name(), index)
		if stableID == "" {
			// Fallback: synthetic ID from bus_info + index
			busInfo := cstr(capability.busInfo[:])
			if strings.HasPrefix(busInfo, "usb-") {
				stableID = fmt.Sprintf("%s-video-index%d", busInfo, index)
			} else {
				stableID = fmt.Sprintf("platform-%s-video-index%d", busInfo, index)
			}
		}

		devices = append(devices, DeviceInfo{
			DevicePath: devicePath,
			DeviceName: cstr(capability.card[:]),
			DeviceID:   stableID,
			Index:      index,
			Caps:       caps,
		})
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Index != devices[j].Index {
			return devices[i].Index < devices[j].Index
		}
		return devices[i].DevicePath < devices[j].DevicePath
	})

	return devices, nil
}

// deviceIndex extracts the numeric index from a node name like "video10".
// Falls back to the sysfs index attribute for non-video node names.
func deviceIndex(nodeName string) int {
	if n, err := strconv.Atoi(strings.TrimPrefix(nodeName, "video")); err == nil {
		return n
	}
	return readSysfsInt(filepath.Join("/sys/class/video4linux", nodeName, "index"))
}

// findStableID looks for a stable ID symlink in /dev/v4l/by-id/
func findStableID(deviceName string, indexValue int) string {
	byIDDir := "/dev/v4l/by-id"
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}

	expectedSuffix := fmt.Sprintf("-video-index%d", indexValue)

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		linkPath := filepath.Join(byIDDir, entry.Name())
		target, err := os.Readlink(linkPath)
		if err != nil {
			continue
		}

		targetBase := filepath.Base(target)
		if targetBase == deviceName && strings.HasSuffix(entry.Name(), expectedSuffix) {
			return entry.Name()
		}
	}

	return ""
}

// readSysfsInt reads an integer value from a sysfs file.
func readSysfsInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	val, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return val
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
