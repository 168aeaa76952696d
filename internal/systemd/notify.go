package systemd

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady tells the service manager startup is complete. Outside of
// systemd this is a silent no-op.
func NotifyReady() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
}

// NotifyStopping tells the service manager shutdown has begun.
func NotifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// WatchdogPoke resets the systemd watchdog timer.
func WatchdogPoke() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
}

// WatchdogEnabled reports whether a watchdog is configured and returns
// the configured interval.
func WatchdogEnabled() (time.Duration, bool) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return 0, false
	}
	return interval, true
}
