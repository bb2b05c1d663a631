package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"cmdlauncher/internal/channel"
	"cmdlauncher/internal/collector"
	"cmdlauncher/internal/config"
	"cmdlauncher/internal/daemonctl"
	"cmdlauncher/internal/logging"
	"cmdlauncher/internal/shmqueue"
)

const (
	submitLockRetry     = 10 * time.Millisecond
	envelopeSendTimeout = 5 * time.Second
	waitPollInterval    = 20 * time.Millisecond
)

// Options customises a Session. Zero values use the configured file sinks and
// the current process id.
type Options struct {
	OutputSink collector.Sink
	ErrorSink  collector.Sink
	PID        int
}

// Session is one client's connection to the daemon.
type Session struct {
	cfg    *config.Config
	logger *slog.Logger
	env    channel.Envelope

	queue      *shmqueue.Queue
	control    *channel.ControlWriter
	submitLock *flock.Flock
	submitMu   sync.Mutex
	lastTicket atomic.Uint64

	closers    []io.Closer
	collectors []*collector.Collector
	stop       context.CancelFunc
	closeOnce  sync.Once
	closeErr   error
}

// Open connects to the daemon and starts collecting results. It returns an
// error wrapping daemonctl.ErrDaemonNotRunning when the shared segment or the
// control FIFO has no daemon behind it. Anything created before a failure is
// removed again.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (_ *Session, err error) {
	pid := opts.PID
	if pid == 0 {
		pid = os.Getpid()
	}
	s := &Session{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "client").With(logging.Int(logging.FieldClientPID, pid)),
		env: channel.Envelope{
			OutputPath: cfg.OutputPipe(pid),
			ErrorPath:  cfg.ErrorPipe(pid),
		},
		submitLock: flock.New(cfg.IPC.SubmitLockPath, flock.SetPermissions(0o666)),
	}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	s.queue, err = shmqueue.Open(cfg.SegmentPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", daemonctl.ErrDaemonNotRunning, err)
		}
		return nil, err
	}
	s.control, err = channel.DialControl(cfg.IPC.RequestPipe)
	if err != nil {
		if errors.Is(err, channel.ErrNoReader) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", daemonctl.ErrDaemonNotRunning, err)
		}
		return nil, err
	}

	if err = channel.CreateResultPair(s.env); err != nil {
		return nil, fmt.Errorf("create result fifos: %w", err)
	}
	s.closers = append(s.closers, closerFunc(func() error { return channel.RemoveResultPair(s.env) }))

	outSink, errSink := opts.OutputSink, opts.ErrorSink
	if outSink == nil {
		fs, err := collector.OpenFileSink(cfg.Client.OutputLog, cfg.Client.SyncSink)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, fs)
		outSink = fs
	}
	if errSink == nil {
		fs, err := collector.OpenFileSink(cfg.Client.ErrorLog, cfg.Client.SyncSink)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, fs)
		errSink = fs
	}

	collectCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s.stop = stop
	for _, c := range []*collector.Collector{
		collector.New("output", s.env.OutputPath, outSink, logger),
		collector.New("error", s.env.ErrorPath, errSink, logger),
	} {
		if err = c.Start(collectCtx); err != nil {
			return nil, fmt.Errorf("start collector: %w", err)
		}
		s.collectors = append(s.collectors, c)
	}

	s.logger.Debug("client session opened",
		logging.String("output_pipe", s.env.OutputPath),
		logging.String("error_pipe", s.env.ErrorPath),
	)
	return s, nil
}

// Envelope returns the result channel this session receives output on.
func (s *Session) Envelope() channel.Envelope { return s.env }

// Submit sends one command. Blank commands are ignored. The queue push and
// the envelope write happen under the submit lock.
func (s *Session) Submit(ctx context.Context, command string) error {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	if len(command) > shmqueue.MessageSize {
		return fmt.Errorf("%d bytes: %w", len(command), shmqueue.ErrMessageTooLong)
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	locked, err := s.submitLock.TryLockContext(ctx, submitLockRetry)
	if err != nil {
		return fmt.Errorf("acquire submit lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquire submit lock %s: not acquired", s.cfg.IPC.SubmitLockPath)
	}
	defer func() {
		if err := s.submitLock.Unlock(); err != nil {
			s.logger.Warn("submit lock release failed", logging.Error(err))
		}
	}()

	ticket, err := s.queue.Enqueue(ctx, []byte(command))
	if err != nil {
		return fmt.Errorf("enqueue command: %w", err)
	}
	s.lastTicket.Store(ticket)
	// The message is queued, so the envelope must follow it even if ctx ends
	// now. Only a stalled daemon can hold the write past the timeout.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), envelopeSendTimeout)
	defer cancel()
	if err := s.control.Send(sendCtx, s.env); err != nil {
		// The queue now holds a message with no envelope; the daemon pairs it
		// with whichever envelope arrives next.
		logging.ErrorWithContext(s.logger, "envelope write failed after enqueue", "envelope_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "restart the daemon to resynchronise the queue"),
		)
		return fmt.Errorf("send envelope: %w", err)
	}
	s.logger.Debug("command submitted", logging.Int("bytes", len(command)))
	return nil
}

// SubmitAndWait sends one command and returns once Wait does.
func (s *Session) SubmitAndWait(ctx context.Context, command string, settle time.Duration) error {
	if err := s.Submit(ctx, command); err != nil {
		return err
	}
	return s.Wait(ctx, settle)
}

// Run submits every line from src until src is exhausted or ctx ends. Both
// are clean exits. Oversized lines are reported and skipped.
func (s *Session) Run(ctx context.Context, src LineSource) error {
	for {
		line, err := src.ReadLine(ctx)
		if ctx.Err() != nil || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		err = s.Submit(ctx, line)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, shmqueue.ErrMessageTooLong):
			logging.WarnWithContext(s.logger, "command too long; not sent", "command_too_long",
				logging.Int("bytes", len(line)),
				logging.Int("limit", shmqueue.MessageSize),
				logging.String(logging.FieldImpact, "command was not submitted"),
			)
		default:
			return err
		}
	}
}

// Wait blocks until the daemon has finished every command submitted so far
// and their output has reached the sinks, then until no output has arrived
// for settle. Output written later by background processes a command left
// behind is only caught within settle. Wait returns early with ctx.Err() or
// when the daemon's shared segment disappears.
func (s *Session) Wait(ctx context.Context, settle time.Duration) error {
	ticket := s.lastTicket.Load()
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	var finishedAt time.Time
	for {
		if finishedAt.IsZero() {
			done, err := s.caughtUp(ticket)
			if err != nil {
				return err
			}
			if done {
				finishedAt = time.Now()
			}
		}
		if !finishedAt.IsZero() {
			last := finishedAt
			for _, c := range s.collectors {
				if t := c.LastActivity(); t.After(last) {
					last = t
				}
			}
			if time.Since(last) >= settle {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Session) caughtUp(ticket uint64) (bool, error) {
	if ticket == 0 {
		return true, nil
	}
	done, err := s.queue.Finished(ticket)
	if err != nil {
		return false, err
	}
	if !done {
		if _, err := os.Stat(s.cfg.SegmentPath()); errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("%w: shared segment removed while waiting", daemonctl.ErrDaemonNotRunning)
		}
		return false, nil
	}
	for _, c := range s.collectors {
		if !c.Drained() {
			return false, nil
		}
	}
	return true, nil
}

// Close stops the collectors, removes the result FIFOs, closes the sinks it
// opened and unmaps the queue. The shared segment itself is left to the
// daemon. Every step is attempted; failures are joined.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.stop != nil {
			s.stop()
		}
		for _, c := range s.collectors {
			errs = append(errs, c.Wait())
		}
		for i := len(s.closers) - 1; i >= 0; i-- {
			errs = append(errs, s.closers[i].Close())
		}
		if s.control != nil {
			errs = append(errs, s.control.Close())
		}
		if s.queue != nil {
			errs = append(errs, s.queue.Close())
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			logging.WarnWithContext(s.logger, "client teardown incomplete", "client_teardown_failed",
				logging.Error(s.closeErr),
				logging.String(logging.FieldErrorHint, "run 'launcher cleanup' to remove leftover fifos"),
			)
		} else {
			s.logger.Debug("client session closed")
		}
	})
	return s.closeErr
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
