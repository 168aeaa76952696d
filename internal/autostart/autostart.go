// Package autostart installs login-time startup for the daemon. The
// preferred mechanism is a systemd user unit; desktop sessions without a
// user manager get an XDG autostart entry instead.
package autostart

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"vcamd/internal/systemd"
)

// UnitName is the systemd user unit installed by Install.
const UnitName = "vcamd.service"

const unitTemplate = `[Unit]
Description=Virtual camera supervisor
After=graphical-session.target

[Service]
Type=notify
ExecStart=%s
Restart=on-failure
RestartSec=5
WatchdogSec=30

[Install]
WantedBy=default.target
`

const desktopTemplate = `[Desktop Entry]
Type=Application
Name=Virtual Camera
Comment=Feeds the physical camera into a virtual video device
Exec=%s
Hidden=false
NoDisplay=false
X-GNOME-Autostart-enabled=true
`

// WriteSystemdUnit writes the user unit file into dir and returns its path.
func WriteSystemdUnit(dir, execPath string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating unit directory: %w", err)
	}
	path := filepath.Join(dir, UnitName)
	content := fmt.Sprintf(unitTemplate, execPath)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing unit file: %w", err)
	}
	return path, nil
}

// WriteDesktopEntry writes an XDG autostart entry into dir and returns
// its path.
func WriteDesktopEntry(dir, execPath string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating autostart directory: %w", err)
	}
	path := filepath.Join(dir, "vcamd.desktop")
	content := fmt.Sprintf(desktopTemplate, execPath)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing desktop entry: %w", err)
	}
	return path, nil
}

// configHome resolves XDG_CONFIG_HOME with the ~/.config fallback.
func configHome() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config"), nil
}

// Install sets up autostart for the given executable. It writes and
// enables a systemd user unit when a user manager is reachable, and
// falls back to an XDG autostart entry otherwise.
func Install(ctx context.Context, execPath string, logger *slog.Logger) error {
	cfg, err := configHome()
	if err != nil {
		return err
	}

	unitDir := filepath.Join(cfg, "systemd", "user")
	unitPath, err := WriteSystemdUnit(unitDir, execPath)
	if err != nil {
		return err
	}
	logger.Info("wrote systemd user unit", "path", unitPath)

	mgr, err := systemd.NewManager(ctx)
	if err != nil {
		logger.Warn("user service manager unreachable, falling back to XDG autostart", "error", err)
		desktopPath, err := WriteDesktopEntry(filepath.Join(cfg, "autostart"), execPath)
		if err != nil {
			return err
		}
		logger.Info("wrote autostart entry", "path", desktopPath)
		return nil
	}
	defer mgr.Close()

	if err := mgr.Reload(ctx); err != nil {
		return fmt.Errorf("reloading unit files: %w", err)
	}
	if err := mgr.EnableService(ctx, unitPath); err != nil {
		return fmt.Errorf("enabling %s: %w", UnitName, err)
	}
	logger.Info("enabled systemd user unit", "unit", UnitName)
	return nil
}
