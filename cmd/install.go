package cmd

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vcamd/internal/autostart"
	"vcamd/internal/logging"
)

// CreateInstallCmd creates the install-autostart command.
func CreateInstallCmd() *cobra.Command {
	var execPath string

	cmd := &cobra.Command{
		Use:   "install-autostart",
		Short: "Register the daemon to start on login",
		Long: `Writes a user systemd unit and enables it via the user session bus. ` +
			`Falls back to an XDG autostart desktop entry when the user manager is not reachable.`,
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("install")

			if execPath == "" {
				var err error
				execPath, err = os.Executable()
				if err != nil {
					logger.Error("Cannot determine executable path", "error", err)
					os.Exit(1)
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := autostart.Install(ctx, execPath, logger); err != nil {
				logger.Error("Autostart installation failed", "error", err)
				os.Exit(1)
			}
			logger.Info("Autostart installed", "exec", execPath)
		},
	}

	cmd.Flags().StringVar(&execPath, "exec", "", "Binary path to launch at login (defaults to the current executable)")

	return cmd
}
