package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vcamd/cmd"
	"vcamd/internal/api"
	"vcamd/internal/config"
	"vcamd/internal/devices"
	"vcamd/internal/events"
	"vcamd/internal/ffmpeg"
	"vcamd/internal/logging"
	"vcamd/internal/loopback"
	"vcamd/internal/pipeline"
	"vcamd/internal/status"
	"vcamd/internal/systemd"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"vcamd.toml"`

	// Server settings
	Port string `help:"Address to listen on" short:"p" default:":8080" toml:"server.port" env:"SERVER_PORT"`

	// Device settings
	CaptureMatch string `help:"Comma-separated camera label candidates in priority order" default:"Elgato Facecam" toml:"devices.capture_match" env:"DEVICES_CAPTURE_MATCH"`
	CapturePath  string   `help:"Explicit capture device path, bypasses label matching" toml:"devices.capture_path" env:"DEVICES_CAPTURE_PATH"`
	VirtualSlot  int      `help:"Loopback device number" default:"10" toml:"devices.virtual_slot" env:"DEVICES_VIRTUAL_SLOT"`
	VirtualLabel string   `help:"Loopback card label" default:"VirtualCam" toml:"devices.virtual_label" env:"DEVICES_VIRTUAL_LABEL"`

	// Relay settings
	InputFormat  string `help:"Capture pixel format" default:"uyvy422" toml:"relay.input_format" env:"RELAY_INPUT_FORMAT"`
	Resolution   string `help:"Capture resolution" default:"1280x720" toml:"relay.resolution" env:"RELAY_RESOLUTION"`
	Framerate    int    `help:"Capture framerate" default:"30" toml:"relay.framerate" env:"RELAY_FRAMERATE"`
	OutputPixFmt string `help:"Output pixel format" default:"yuv420p" toml:"relay.output_pix_fmt" env:"RELAY_OUTPUT_PIX_FMT"`
	MaxRestarts  int    `help:"Automatic restarts before giving up" default:"3" toml:"relay.max_restarts" env:"RELAY_MAX_RESTARTS"`

	// Status settings
	PollInterval string `help:"Health poll interval" default:"5s" toml:"status.poll_interval" env:"STATUS_POLL_INTERVAL"`
	AutoRecover  bool   `help:"Restart the relay when the poller finds it dead" default:"true" toml:"status.auto_recover" env:"STATUS_AUTO_RECOVER"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingDevices    string `help:"Devices logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingFFmpeg     string `help:"Relay process output level" default:"info" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
	LoggingStatus     string `help:"Status reporter logging level" default:"info" toml:"logging.status" env:"LOGGING_STATUS"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`

	Debug bool `help:"Force debug logging everywhere" default:"false"`
}

// fatalStartError reports whether an initial start failure should take
// the daemon down. A missing camera is not fatal: the daemon stays up
// serving its API and the poller restarts the relay once the device
// appears.
func fatalStartError(err error) bool {
	return errors.Is(err, pipeline.ErrAlreadyRunning) ||
		errors.Is(err, loopback.ErrPermissionDenied)
}

func splitCandidates(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func relayParams(opts *Options) ffmpeg.Params {
	p := ffmpeg.NewParams("", "")
	p.InputFormat = opts.InputFormat
	p.Resolution = opts.Resolution
	p.Framerate = strconv.Itoa(opts.Framerate)
	p.OutputPixFmt = opts.OutputPixFmt
	return p
}

func loggingConfig(opts *Options) logging.Config {
	cfg := logging.Config{
		Level:  opts.LoggingLevel,
		Format: opts.LoggingFormat,
		Modules: map[string]string{
			"supervisor": opts.LoggingSupervisor,
			"devices":    opts.LoggingDevices,
			"ffmpeg":     opts.LoggingFFmpeg,
			"status":     opts.LoggingStatus,
			"api":        opts.LoggingAPI,
		},
	}
	if opts.Debug {
		cfg.Level = "debug"
		for k := range cfg.Modules {
			cfg.Modules[k] = "debug"
		}
	}
	return cfg
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.Load(opts, nil); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(loggingConfig(opts))
		logger := logging.GetLogger("main")

		eventBus := events.New()

		// Bridge log entries onto the event bus so SSE clients can tail them
		var logSeq atomic.Uint64
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        logSeq.Add(1),
				Timestamp:  entry.Timestamp.UTC().Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		loader := loopback.NewLoader(opts.VirtualSlot, opts.VirtualLabel, logging.GetLogger("loopback"))
		resolver := devices.NewResolver(devices.SystemEnumerator(), loader, devices.ResolverConfig{
			CaptureMatches: splitCandidates(opts.CaptureMatch),
			CapturePath:    opts.CapturePath,
			VirtualSlot:    opts.VirtualSlot,
			VirtualLabel:   opts.VirtualLabel,
		}, logging.GetLogger("devices"))

		// Relay params are swappable so a config reload takes effect on
		// the next (re)start without rebuilding the supervisor.
		var paramsMu sync.Mutex
		params := relayParams(opts)
		buildArgs := func(inputPath, outputPath string) []string {
			paramsMu.Lock()
			p := params
			paramsMu.Unlock()
			p.InputPath = inputPath
			p.OutputPath = outputPath
			return ffmpeg.BuildArgs(p)
		}

		supervisor := pipeline.NewSupervisor(
			resolver, loader, eventBus, params,
			logging.GetLogger("supervisor"), logging.GetLogger("ffmpeg"),
			pipeline.WithCommand(ffmpeg.Binary, buildArgs),
			pipeline.WithMaxRestarts(opts.MaxRestarts),
		)

		pollInterval, err := time.ParseDuration(opts.PollInterval)
		if err != nil || pollInterval <= 0 {
			pollInterval = status.DefaultPollInterval
		}
		reporterOpts := []status.ReporterOption{
			status.WithInterval(pollInterval),
			status.WithAutoRecover(opts.AutoRecover),
		}
		if wd, ok := systemd.WatchdogEnabled(); ok {
			if half := wd / 2; half < pollInterval {
				reporterOpts[0] = status.WithInterval(half)
			}
			reporterOpts = append(reporterOpts, status.WithWatchdog(systemd.WatchdogPoke))
			logger.Info("Systemd watchdog enabled", "interval", wd)
		}
		metrics := status.NewMetrics()
		reporter := status.NewReporter(supervisor, resolver, loader, eventBus, metrics,
			logging.GetLogger("status"), reporterOpts...)

		hotplug := devices.NewMonitor(eventBus, logging.GetLogger("devices"))

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Pipeline:          supervisor,
			Status:            reporter,
			Devices:           devices.SystemEnumerator(),
			EventBus:          eventBus,
			PrometheusHandler: promhttp.Handler(),
		})

		// Reload the config file on change. Relay and logging settings
		// apply live, device settings need a daemon restart.
		watcher := config.NewWatcher(opts.Config, func(path string) (Options, error) {
			fresh := *opts
			fresh.Config = path
			err := config.Load(&fresh, nil)
			return fresh, err
		}, logger)
		watcher.OnReload(func(fresh Options) {
			logging.SetModuleLevel("supervisor", fresh.LoggingSupervisor)
			logging.SetModuleLevel("devices", fresh.LoggingDevices)
			logging.SetModuleLevel("ffmpeg", fresh.LoggingFFmpeg)
			logging.SetModuleLevel("status", fresh.LoggingStatus)
			logging.SetModuleLevel("api", fresh.LoggingAPI)

			next := relayParams(&fresh)
			paramsMu.Lock()
			changed := next != params
			params = next
			paramsMu.Unlock()
			if !changed {
				return
			}
			logger.Info("Relay settings changed, restarting pipeline")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if stopErr := supervisor.Stop(ctx); stopErr != nil {
				logger.Error("Stop for reload failed", "error", stopErr)
				return
			}
			if startErr := supervisor.Start(ctx); startErr != nil {
				logger.Error("Restart after reload failed", "error", startErr)
			}
		})

		runCtx, cancelRun := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			startCtx, cancel := context.WithTimeout(runCtx, 30*time.Second)
			startErr := supervisor.Start(startCtx)
			cancel()
			if startErr != nil {
				if fatalStartError(startErr) {
					logger.Error("Initial pipeline start failed", "error", startErr)
					os.Exit(cmd.ExitCode(startErr))
				}
				logger.Warn("Pipeline not started, poller keeps retrying", "error", startErr)
			}

			go reporter.Run(runCtx)
			go func() {
				if hpErr := hotplug.Run(runCtx); hpErr != nil && !errors.Is(hpErr, context.Canceled) {
					logger.Warn("Hotplug monitor stopped", "error", hpErr)
				}
			}()
			if watchErr := watcher.Start(); watchErr != nil {
				logger.Warn("Config watcher not started", "error", watchErr)
			}

			systemd.NotifyReady()
			logger.Info("Starting HTTP server", "port", opts.Port)
			if srvErr := server.Start(opts.Port); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", srvErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			systemd.NotifyStopping()
			logger.Info("Shutting down")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if stopErr := watcher.Stop(); stopErr != nil {
				logger.Error("Error stopping config watcher", "error", stopErr)
			}
			cancelRun()

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if stopErr := supervisor.Shutdown(ctx); stopErr != nil {
				logger.Error("Error stopping pipeline", "error", stopErr)
			}
		})
	})

	cli.Root().Use = "vcamd"
	cli.Root().AddCommand(cmd.CreateDetectCmd())
	cli.Root().AddCommand(cmd.CreateInstallCmd())

	cli.Run()
}
