package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vcamd/internal/devices"
	"vcamd/internal/logging"
	"vcamd/internal/loopback"
	"vcamd/internal/pipeline"
)

// CreateDetectCmd creates the test-device-detection command. It runs the
// same resolution logic as the daemon and prints what it found, without
// starting a relay.
func CreateDetectCmd() *cobra.Command {
	var captureMatch []string
	var capturePath string
	var virtualSlot int
	var virtualLabel string
	var skipModule bool
	var debug bool

	cmd := &cobra.Command{
		Use:   "test-device-detection",
		Short: "Probe camera and virtual device resolution",
		Long: `Enumerates video4linux devices, resolves the capture camera against the ` +
			`configured label candidates, and verifies the loopback virtual device. ` +
			`Prints the results and exits without starting a relay.`,
		Run: func(_ *cobra.Command, _ []string) {
			level := "info"
			if debug {
				level = "debug"
			}
			logging.Initialize(logging.Config{Level: level, Format: "text"})
			logger := logging.GetLogger("detect")

			loader := loopback.NewLoader(virtualSlot, virtualLabel, logging.GetLogger("loopback"))
			resolver := devices.NewResolver(devices.SystemEnumerator(), loader, devices.ResolverConfig{
				CaptureMatches: captureMatch,
				CapturePath:    capturePath,
				VirtualSlot:    virtualSlot,
				VirtualLabel:   virtualLabel,
			}, logger)

			all, err := devices.SystemEnumerator().Enumerate()
			if err != nil {
				logger.Error("Device enumeration failed", "error", err)
				os.Exit(ExitCode(err))
			}
			fmt.Printf("Found %d video4linux device(s):\n", len(all))
			for _, dev := range all {
				role := "other"
				switch {
				case dev.IsCapture():
					role = "capture"
				case dev.IsOutput():
					role = "output"
				}
				fmt.Printf("  %-14s %-8s %q\n", dev.DevicePath, role, dev.DeviceName)
			}

			capture, err := resolver.ResolveCapture()
			if err != nil {
				logger.Error("Capture camera not resolved", "error", err, "candidates", captureMatch)
				fmt.Printf("\nCapture camera: NOT FOUND (candidates %v)\n", captureMatch)
				os.Exit(ExitCode(err))
			}
			fmt.Printf("\nCapture camera: %s (%q)\n", capture.DevicePath, capture.DeviceName)

			if skipModule {
				fmt.Println("Virtual device: skipped (--skip-module)")
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			virtual, err := resolver.ResolveVirtual(ctx)
			if err != nil {
				logger.Error("Virtual device not resolved", "error", err, "slot", virtualSlot)
				fmt.Printf("Virtual device: NOT AVAILABLE (%v)\n", err)
				os.Exit(ExitCode(err))
			}
			fmt.Printf("Virtual device: %s (%q)\n", virtual.DevicePath, virtual.DeviceName)
		},
	}

	cmd.Flags().StringSliceVar(&captureMatch, "capture-match", []string{"Elgato Facecam"}, "Camera label candidates in priority order")
	cmd.Flags().StringVar(&capturePath, "capture-path", "", "Explicit capture device path, bypasses label matching")
	cmd.Flags().IntVar(&virtualSlot, "virtual-slot", 10, "Loopback device number")
	cmd.Flags().StringVar(&virtualLabel, "virtual-label", "VirtualCam", "Loopback card label")
	cmd.Flags().BoolVar(&skipModule, "skip-module", false, "Only resolve the capture camera, do not touch the kernel module")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	return cmd
}

// ExitCode maps resolution and lifecycle errors to process exit codes.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, devices.ErrDeviceNotFound):
		return 1
	case errors.Is(err, loopback.ErrPermissionDenied):
		return 2
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		return 3
	default:
		return 1
	}
}
