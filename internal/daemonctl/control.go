package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"sloppy/internal/api"
	"sloppy/internal/config"
	"sloppy/internal/daemonrun"
)

// DaemonBinary is the executable name of the daemon.
const DaemonBinary = "sloppyd"

const pollInterval = 200 * time.Millisecond

// StatusClient is the slice of the API client used to observe the daemon.
type StatusClient interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
}

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
	Bind       string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

type StopState string

const (
	StopStateStopped    StopState = "stopped"
	StopStateNotRunning StopState = "not_running"
)

// StopResult captures daemon stop orchestration state.
type StopResult struct {
	State StopState
	PID   int
}

// ResolveExecutable finds sloppyd next to the running binary, then on PATH.
func ResolveExecutable() (string, error) {
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), DaemonBinary)
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(DaemonBinary)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", DaemonBinary, err)
	}
	return path, nil
}

// Launch starts a detached daemon process. Its output goes to the configured
// log file, so stdio is left unattached.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	var args []string
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	if bind := strings.TrimSpace(opts.Bind); bind != "" {
		args = append(args, "--bind", bind)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForReady polls the status endpoint until the daemon reports it is serving.
func WaitForReady(ctx context.Context, client StatusClient, timeout time.Duration) (*api.StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		status, err := client.Status(ctx)
		if err == nil && status != nil && status.Running {
			return status, nil
		}
		if err != nil {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
		case <-ticker.C:
		}
	}
}

// EnsureStarted launches the daemon unless one already answers on the API.
func EnsureStarted(ctx context.Context, client StatusClient, executablePath string, opts LaunchOptions, timeout time.Duration) (StartResult, error) {
	if status, err := client.Status(ctx); err == nil && status != nil && status.Running {
		return StartResult{State: StartStateAlreadyRunning, PID: status.PID}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	status, err := WaitForReady(ctx, client, timeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: status.PID}, nil
}

// Stop sends SIGTERM to the daemon and waits for its API to go away. A daemon
// that does not answer is reported as not running.
func Stop(ctx context.Context, cfg *config.Config, client StatusClient, timeout time.Duration) (StopResult, error) {
	status, err := client.Status(ctx)
	if err != nil {
		var apiErr *api.Error
		if !errors.As(err, &apiErr) {
			return StopResult{State: StopStateNotRunning}, nil
		}
	}

	pid := 0
	if status != nil {
		pid = status.PID
	}
	if pid <= 0 {
		if pid, err = daemonrun.ReadPID(cfg); err != nil {
			return StopResult{}, fmt.Errorf("determine daemon pid: %w", err)
		}
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return StopResult{State: StopStateNotRunning, PID: pid}, nil
		}
		return StopResult{}, fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	if err := WaitForShutdown(ctx, client, timeout); err != nil {
		return StopResult{}, err
	}
	return StopResult{State: StopStateStopped, PID: pid}, nil
}

// WaitForShutdown waits until the API stops accepting connections.
func WaitForShutdown(ctx context.Context, client StatusClient, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		_, err := client.Status(ctx)
		if err != nil && ctx.Err() == nil {
			var apiErr *api.Error
			if !errors.As(err, &apiErr) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon did not stop within %s", timeout)
		case <-ticker.C:
		}
	}
}
