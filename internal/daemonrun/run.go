package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"sloppy/internal/config"
	"sloppy/internal/content"
	"sloppy/internal/daemon"
	"sloppy/internal/logging"
	"sloppy/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
	Bind     string
}

// Run starts the sloppy daemon and blocks until a signal arrives or the
// daemon fails.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runCfg := *cfg
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		runCfg.Logging.Level = level
	}
	if bind := strings.TrimSpace(opts.Bind); bind != "" {
		runCfg.Paths.APIBind = bind
	}
	if err := runCfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewFromConfig(&runCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logStageSnapshot(logger, &runCfg)

	pidPath := PIDPath(&runCfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := content.Open(&runCfg)
	if err != nil {
		logger.Error("open content store", logging.Error(err))
		return err
	}
	defer store.Close()

	d, err := daemon.New(&runCfg, store, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Run(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon stopped with error", "daemon_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the api bind address and that no other sloppyd is running"),
		)
		return err
	}
	logger.Info("sloppy daemon shutting down")
	return nil
}

// PIDPath returns where a running daemon records its process id.
func PIDPath(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	return filepath.Join(cfg.Paths.DataDir, "sloppyd.pid")
}

// ReadPID returns the process id recorded by a running daemon.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

// logStageSnapshot records which stage collaborators the local executor can
// reach so a misconfigured host shows up in the first lines of the log.
func logStageSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_snapshot"),
		logging.String("executor", cfg.Jobs.Executor),
	}
	if cfg.Jobs.Executor == config.ExecutorRemote {
		attrs = append(attrs,
			logging.String("remote_base_url", cfg.Remote.BaseURL),
			logging.String("callback_url", cfg.Remote.CallbackURL),
		)
		logger.Info("stage snapshot", logging.Args(attrs...)...)
		return
	}
	for _, status := range preflight.CheckStageCommands(cfg) {
		stage := strings.TrimSuffix(status.Name, " command")
		attrs = append(attrs,
			logging.String(stage+"_command", status.Command),
			logging.Bool(stage+"_available", status.Available),
		)
	}
	logger.Info("stage snapshot", logging.Args(attrs...)...)
}
