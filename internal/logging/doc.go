// Package logging provides module-scoped structured logging for vcamd.
//
// Loggers are slog.Loggers tagged with a module name. Each module has its
// own LevelVar so verbosity can be tuned per subsystem (supervisor, devices,
// loopback, ffmpeg, status, api, config) without recreating loggers.
//
// Output fan-out:
//   - stdout (text or json), when stdout is connected to something useful
//   - systemd journal, when running under systemd (SYSLOG_IDENTIFIER=vcamd)
//   - an in-memory ring buffer backing the /api/logs endpoint
//
// Journal queries:
//
//	journalctl -t vcamd               # all vcamd logs
//	journalctl -t vcamd -f            # follow live
//	journalctl -t vcamd -p err        # errors only
//	journalctl -t vcamd MODULE=supervisor
package logging
