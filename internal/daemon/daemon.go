package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"cmdlauncher/internal/channel"
	"cmdlauncher/internal/config"
	"cmdlauncher/internal/executor"
	"cmdlauncher/internal/journal"
	"cmdlauncher/internal/logging"
	"cmdlauncher/internal/shmqueue"
)

// ErrAlreadyRunning is returned when another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("another launcher daemon instance is already running")

// Daemon owns the shared segment, the control FIFO and the dispatch loop.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	journal *journal.Store

	lockPath string
	lock     *flock.Flock

	mu         sync.Mutex
	queue      *shmqueue.Queue
	control    *channel.ControlReader
	dispatcher *Dispatcher
	running    atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running     bool
	Queue       shmqueue.Stats
	Executed    int64
	SegmentPath string
	RequestPipe string
	LockPath    string
}

// New constructs a daemon. store may be nil when the journal is disabled.
func New(cfg *config.Config, logger *slog.Logger, store *journal.Store) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		journal:  store,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the instance lock and creates the shared segment and the
// control FIFO. On failure everything already created is removed again.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already started")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, d.lockPath)
	}

	q, err := shmqueue.Create(d.cfg.SegmentPath())
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("create shared queue: %w", err)
	}
	control, err := channel.ListenControl(d.cfg.IPC.RequestPipe)
	if err != nil {
		_ = q.Destroy()
		_ = d.lock.Unlock()
		return fmt.Errorf("create control fifo: %w", err)
	}

	if d.journal != nil {
		if n, err := d.journal.MarkInterrupted(ctx); err != nil {
			logging.WarnWithContext(d.logger, "journal recovery failed", "journal_recovery_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale running rows remain in history"),
			)
		} else if n > 0 {
			d.logger.Info("journal rows marked interrupted", logging.Int64("count", n))
		}
	}

	d.queue = q
	d.control = control
	d.dispatcher = NewDispatcher(d.cfg, control, q, executor.New(d.cfg, d.logger), d.journal, d.logger)
	d.running.Store(true)
	d.logger.Info("launcher daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("segment", q.Path()),
		logging.String("request_pipe", control.Path()),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Run starts the daemon, dispatches requests until ctx is cancelled, then
// tears everything down.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	return errors.Join(d.Serve(ctx), d.Stop())
}

// Serve runs the dispatch loop of a started daemon until ctx is cancelled.
func (d *Daemon) Serve(ctx context.Context) error {
	d.mu.Lock()
	dispatcher := d.dispatcher
	d.mu.Unlock()
	if dispatcher == nil || !d.running.Load() {
		return errors.New("daemon not started")
	}
	if err := dispatcher.Run(ctx); err != nil {
		logging.ErrorWithContext(d.logger, "dispatcher stopped", "dispatcher_failed", logging.Error(err))
		return err
	}
	return nil
}

// Stop removes the control FIFO, destroys the shared segment and releases the
// instance lock. Every step is attempted; failures are joined.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return nil
	}

	var errs []error
	if d.control != nil {
		errs = append(errs, d.control.Close())
		d.control = nil
	}
	if d.queue != nil {
		errs = append(errs, d.queue.Destroy())
		d.queue = nil
	}
	if err := d.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}
	d.running.Store(false)

	err := errors.Join(errs...)
	if err != nil {
		logging.ErrorWithContext(d.logger, "daemon teardown incomplete", "daemon_teardown_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'launcher cleanup' to remove leftover resources"),
		)
		return err
	}
	d.logger.Info("launcher daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := Status{
		Running:     d.running.Load(),
		SegmentPath: d.cfg.SegmentPath(),
		RequestPipe: d.cfg.IPC.RequestPipe,
		LockPath:    d.lockPath,
	}
	if d.queue != nil {
		if stats, err := d.queue.Stats(); err == nil {
			status.Queue = stats
		}
	}
	if d.dispatcher != nil {
		status.Executed = d.dispatcher.Executed()
	}
	return status
}
