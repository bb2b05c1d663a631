package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"cmdlauncher/internal/channel"
	"cmdlauncher/internal/config"
	"cmdlauncher/internal/executor"
	"cmdlauncher/internal/journal"
	"cmdlauncher/internal/logging"
)

// EnvelopeSource yields request envelopes in arrival order.
type EnvelopeSource interface {
	Receive(ctx context.Context) (channel.Envelope, error)
}

// MessageSource yields queued command text in arrival order. Ack marks the
// oldest dequeued message as handled so its producer can stop waiting.
type MessageSource interface {
	Dequeue(ctx context.Context) ([]byte, error)
	Ack() error
}

// Runner executes one request to completion.
type Runner interface {
	Execute(ctx context.Context, req executor.Request) (executor.Result, error)
}

// Dispatcher pairs the N-th envelope with the N-th queued message and runs
// them one at a time.
type Dispatcher struct {
	cfg      *config.Config
	control  EnvelopeSource
	queue    MessageSource
	runner   Runner
	journal  *journal.Store
	logger   *slog.Logger
	executed atomic.Int64
}

// NewDispatcher wires a dispatch loop. store may be nil.
func NewDispatcher(cfg *config.Config, control EnvelopeSource, queue MessageSource, runner Runner, store *journal.Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:     cfg,
		control: control,
		queue:   queue,
		runner:  runner,
		journal: store,
		logger:  logging.NewComponentLogger(logger, "dispatcher"),
	}
}

// Run loops until ctx is cancelled, which is a clean exit. Any other error
// from the queue is returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		env, envErr := d.control.Receive(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if envErr != nil && !errors.Is(envErr, channel.ErrMalformedEnvelope) {
			return envErr
		}

		msg, err := d.queue.Dequeue(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}

		if envErr != nil {
			// The message still has to be consumed to keep the two channels paired.
			logging.WarnWithContext(d.logger, "malformed envelope; command dropped", "envelope_malformed",
				logging.Error(envErr),
				logging.String("command", string(msg)),
				logging.String(logging.FieldImpact, "command was not executed"),
			)
		} else {
			d.dispatch(ctx, env, string(msg))
		}
		if err := d.queue.Ack(); err != nil {
			return fmt.Errorf("acknowledge command: %w", err)
		}
	}
}

// Executed returns how many commands have been run.
func (d *Dispatcher) Executed() int64 { return d.executed.Load() }

func (d *Dispatcher) dispatch(ctx context.Context, env channel.Envelope, command string) {
	if strings.TrimSpace(command) == "" {
		d.logger.Debug("blank command skipped", logging.String("output_path", env.OutputPath))
		return
	}

	requestID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, requestID)
	pid, _ := d.cfg.ClientPID(env.OutputPath)
	logger := logging.WithContext(ctx, d.logger).With(logging.Int(logging.FieldClientPID, pid))

	req := executor.Request{ID: requestID, Command: command, Result: env, ClientPID: pid}
	logger.Info("command received", logging.String("command", command))

	var rowID int64
	if d.journal != nil {
		id, err := d.journal.Begin(ctx, journal.Entry{
			RequestID:  requestID,
			ClientPID:  pid,
			Command:    command,
			OutputPath: env.OutputPath,
			ErrorPath:  env.ErrorPath,
		})
		if err != nil {
			logging.WarnWithContext(logger, "journal write failed", "journal_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "command missing from history"),
			)
		}
		rowID = id
	}

	result, err := d.runner.Execute(ctx, req)
	d.executed.Add(1)

	status := journal.StatusSucceeded
	var errMsg string
	switch {
	case errors.Is(err, channel.ErrNoReader):
		status, errMsg = journal.StatusSpawnFailed, err.Error()
		logging.WarnWithContext(logger, "client result channel has no reader", "client_gone",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the client exited before its command ran"),
			logging.String(logging.FieldImpact, "command was not executed"),
		)
	case err != nil:
		status, errMsg = journal.StatusSpawnFailed, err.Error()
		logging.ErrorWithContext(logger, "command failed to run", "command_failed", logging.Error(err))
	case ctx.Err() != nil:
		status = journal.StatusInterrupted
	case result.ExitCode != 0:
		status = journal.StatusFailed
	}
	if err == nil {
		logger.Info("command finished",
			logging.String(logging.FieldEventType, "command_finished"),
			logging.Int("exit_code", result.ExitCode),
			logging.Duration("duration", result.Duration()),
		)
	}

	if d.journal != nil && rowID != 0 {
		// Record the outcome even when shutdown cancelled the command.
		if jerr := d.journal.Finish(context.WithoutCancel(ctx), rowID, status, result.ExitCode, errMsg); jerr != nil {
			logging.WarnWithContext(logger, "journal update failed", "journal_write_failed",
				logging.Error(jerr),
				logging.String(logging.FieldImpact, "history shows the command as running"),
			)
		}
	}
}
