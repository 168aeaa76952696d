//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration and capability queries.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// Use FindDevices to discover all V4L2 video devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// Both capture and output devices are returned. Output-capable nodes are
// how v4l2loopback virtual devices present themselves, so callers that
// only want real cameras should filter with IsCapture.
package v4l2
