package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"cmdlauncher/internal/channel"
	"cmdlauncher/internal/config"
	"cmdlauncher/internal/logging"
)

// Request pairs one dequeued command with the envelope received for it.
type Request struct {
	ID        string
	Command   string
	Result    channel.Envelope
	ClientPID int
}

// Result describes what happened to a Request.
type Result struct {
	Skipped  bool
	Started  time.Time
	Finished time.Time
	ExitCode int
	// SpawnError is set when the shell could not be started or the result
	// FIFOs could not be opened.
	SpawnError error
}

// Duration is the wall time between spawn and exit.
func (r Result) Duration() time.Duration {
	if r.Started.IsZero() || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Executor spawns commands one at a time.
type Executor struct {
	shell       string
	killGrace   time.Duration
	reportSpawn bool
	logger      *slog.Logger
}

// New builds an Executor from the executor config section.
func New(cfg *config.Config, logger *slog.Logger) *Executor {
	return &Executor{
		shell:       cfg.Executor.Shell,
		killGrace:   cfg.KillGrace(),
		reportSpawn: cfg.Executor.ReportSpawnErrors,
		logger:      logging.NewComponentLogger(logger, "executor"),
	}
}

// Execute runs req to completion. A non-zero exit status is reported in the
// Result, not as an error. The returned error is non-nil when nothing could be
// run; it wraps channel.ErrNoReader when the client has gone away.
//
// Cancelling ctx sends SIGTERM to the child and SIGKILL after the configured
// grace period.
func (e *Executor) Execute(ctx context.Context, req Request) (Result, error) {
	logger := logging.WithContext(ctx, e.logger).With(logging.Int(logging.FieldClientPID, req.ClientPID))

	command := strings.TrimSpace(req.Command)
	if command == "" {
		logger.Debug("empty command skipped")
		return Result{Skipped: true}, nil
	}

	stdout, stderr, err := channel.OpenResultWriters(req.Result)
	if err != nil {
		err = fmt.Errorf("open result channel: %w", err)
		return Result{SpawnError: err, ExitCode: -1}, err
	}
	defer stdout.Close()
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, e.shell, "-c", command)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = e.killGrace

	result := Result{Started: time.Now()}
	if err := cmd.Start(); err != nil {
		result.Finished = time.Now()
		result.ExitCode = -1
		result.SpawnError = err
		logging.WarnWithContext(logger, "command spawn failed", "spawn_failed",
			logging.String("shell", e.shell),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check executor.shell in the config"),
			logging.String(logging.FieldImpact, "client receives no output for this command"),
		)
		if e.reportSpawn {
			_, _ = fmt.Fprintf(stderr, "cmdlauncher: %v\n", err)
		}
		return result, fmt.Errorf("spawn %s: %w", e.shell, err)
	}
	logger.Debug("command started", logging.Int("pid", cmd.Process.Pid))

	waitErr := cmd.Wait()
	result.Finished = time.Now()
	result.ExitCode = cmd.ProcessState.ExitCode()

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		logger.Info("command interrupted by shutdown", logging.Int("exit_code", result.ExitCode))
	case waitErr == nil, errors.As(waitErr, &exitErr):
	default:
		return result, fmt.Errorf("wait for command: %w", waitErr)
	}
	return result, nil
}

// Shell returns the shell commands are run with.
func (e *Executor) Shell() string { return e.shell }
