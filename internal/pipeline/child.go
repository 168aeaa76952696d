package pipeline

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// LogParser parses a process output line and returns the log level and
// message. Used to extract structured log info from FFmpeg stderr.
type LogParser func(line string) (level, msg string)

// child wraps a single relay subprocess. It streams output into the
// process logger and remembers the last error line for diagnostics.
type child struct {
	cmd           *exec.Cmd
	logger        *slog.Logger
	processLogger *slog.Logger
	logParser     LogParser

	exited     chan struct{} // closed when Wait returns
	exitErr    error         // valid after exited is closed
	outputDone chan struct{}
	drainOnce  sync.Once

	mu        sync.Mutex
	lastError string
}

// newChild prepares a subprocess for the given argument vector.
// The process gets its own process group so signals sent to the
// supervisor do not propagate to it directly.
func newChild(name string, args []string, logger, processLogger *slog.Logger, parser LogParser) *child {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return &child{
		cmd:           cmd,
		logger:        logger,
		processLogger: processLogger,
		logParser:     parser,
		exited:        make(chan struct{}),
		outputDone:    make(chan struct{}, 2),
	}
}

// start launches the subprocess and begins streaming its output.
func (c *child) start() error {
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := c.cmd.Start(); err != nil {
		return err
	}

	c.logger.Info("process started", "pid", c.cmd.Process.Pid)

	go func() {
		c.streamOutput(stdout, "stdout")
		c.outputDone <- struct{}{}
	}()
	go func() {
		c.streamOutput(stderr, "stderr")
		c.outputDone <- struct{}{}
	}()

	go func() {
		c.exitErr = c.cmd.Wait()
		close(c.exited)
	}()

	return nil
}

// pid returns the subprocess PID, or 0 if not started.
func (c *child) pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// alive probes the process with signal 0, asking the kernel rather than
// trusting any cached state.
func (c *child) alive() bool {
	if c.cmd.Process == nil {
		return false
	}
	select {
	case <-c.exited:
		return false
	default:
	}
	return c.cmd.Process.Signal(syscall.Signal(0)) == nil
}

// exitCode returns the exit code. Only valid after the process exited.
func (c *child) exitCode() int {
	return exitCodeFromError(c.exitErr)
}

// lastErrorLine returns the most recent error-level output line.
func (c *child) lastErrorLine() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// stop sends SIGINT and waits up to gracefulTimeout for exit, then
// force-kills. Returns the exit code, 137 when killed.
func (c *child) stop(gracefulTimeout, killTimeout time.Duration) int {
	if c.cmd.Process == nil {
		return 0
	}

	c.logger.Info("sending SIGINT to process", "pid", c.cmd.Process.Pid)
	if err := c.cmd.Process.Signal(syscall.SIGINT); err != nil {
		if !errors.Is(err, os.ErrProcessDone) {
			c.logger.Warn("failed to send SIGINT", "error", err)
		}
	}

	select {
	case <-c.exited:
		c.waitOutput()
		return c.exitCode()
	case <-time.After(gracefulTimeout):
		c.logger.Warn("graceful shutdown timeout, forcing kill", "timeout", gracefulTimeout)
		if err := c.cmd.Process.Kill(); err != nil {
			// "os: process already finished" is OK here
			if !errors.Is(err, os.ErrProcessDone) {
				c.logger.Error("failed to kill process", "error", err)
			}
		}
		select {
		case <-c.exited:
		case <-time.After(killTimeout):
			c.logger.Error("process did not exit after kill signal")
		}
		c.waitOutput()
		return 137
	}
}

// wait blocks until the process exits and returns its exit code.
func (c *child) wait() int {
	<-c.exited
	c.waitOutput()
	return c.exitCode()
}

// waitOutput waits for both output streams to drain. Safe to call from
// both stop and wait paths.
func (c *child) waitOutput() {
	c.drainOnce.Do(func() {
		<-c.outputDone
		<-c.outputDone
	})
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// streamOutput streams subprocess output through the process logger,
// classifying each line with the configured parser.
func (c *child) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := c.processLogger
	if logger == nil {
		logger = c.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		level, msg := "info", line
		if c.logParser != nil {
			level, msg = c.logParser(line)
		}

		switch level {
		case "fatal", "error", "panic":
			c.mu.Lock()
			c.lastError = msg
			c.mu.Unlock()
			logger.Error(msg)
		case "warning":
			logger.Warn(msg)
		case "debug", "trace", "verbose":
			logger.Debug(msg)
		default:
			logger.Info(msg)
		}
	}

	if err := scanner.Err(); err != nil {
		c.logger.Warn("error reading output", "source", source, "error", err)
	}
}
