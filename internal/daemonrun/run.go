package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"cmdlauncher/internal/config"
	"cmdlauncher/internal/daemon"
	"cmdlauncher/internal/daemonctl"
	"cmdlauncher/internal/journal"
	"cmdlauncher/internal/logging"
	"cmdlauncher/internal/logs"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the launcher daemon and blocks until SIGINT, SIGTERM or the
// cancellation of cmdCtx. Every resource the daemon created is removed before
// Run returns.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runCfg := *cfg
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		runCfg.Logging.Level = level
	}

	var logPath string
	if runCfg.Logging.Dir != "" {
		runID := time.Now().UTC().Format("20060102T150405.000Z")
		logPath = filepath.Join(runCfg.Logging.Dir, fmt.Sprintf("launcherd-%s.log", runID))
	}
	logger, err := logging.NewFromConfig(&runCfg, logPath)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if logPath != "" {
		logging.CleanupOldLogs(logger, runCfg.Logging.RetentionDays, runCfg.Logging.Dir, logs.RunLogPattern, logPath)
	}

	var store *journal.Store
	if runCfg.Daemon.JournalEnabled {
		store, err = journal.Open(&runCfg)
		if err != nil {
			logger.Error("open journal", logging.Error(err))
			return err
		}
		defer store.Close()
	}

	d, err := daemon.New(&runCfg, logger, store)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, startHint(err)),
		)
		return err
	}

	if err := daemonctl.WritePIDFile(&runCfg); err != nil {
		logging.WarnWithContext(logger, "pid file not written", "pid_file_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "launcher stop cannot locate the daemon"),
		)
	} else {
		defer removePIDFile(logger, runCfg.PIDPath())
	}

	serveErr := d.Serve(signalCtx)
	logger.Info("launcher daemon shutting down")
	return errors.Join(serveErr, d.Stop())
}

func startHint(err error) string {
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		return "stop the running daemon with 'launcher stop' first"
	}
	return "run 'launcher cleanup' to remove leftover resources and check permissions on the ipc paths"
}

func removePIDFile(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove pid file", logging.Error(err))
	}
}
