package daemon_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cmdlauncher/internal/channel"
	"cmdlauncher/internal/daemon"
	"cmdlauncher/internal/executor"
	"cmdlauncher/internal/journal"
	"cmdlauncher/internal/logging"
	"cmdlauncher/internal/testsupport"
)

type fakeControl struct {
	ch chan envelopeOrErr
}

type envelopeOrErr struct {
	env channel.Envelope
	err error
}

func (f *fakeControl) Receive(ctx context.Context) (channel.Envelope, error) {
	select {
	case item := <-f.ch:
		return item.env, item.err
	case <-ctx.Done():
		return channel.Envelope{}, ctx.Err()
	}
}

type fakeQueue struct {
	ch    chan string
	acked atomic.Int64
}

func (f *fakeQueue) Ack() error {
	f.acked.Add(1)
	return nil
}

func (f *fakeQueue) Dequeue(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-f.ch:
		return []byte(msg), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type recordingRunner struct {
	mu        sync.Mutex
	requests  []executor.Request
	active    int
	maxActive int
	result    executor.Result
	err       error
	delay     time.Duration
}

func (r *recordingRunner) Execute(_ context.Context, req executor.Request) (executor.Result, error) {
	r.mu.Lock()
	r.active++
	r.maxActive = max(r.maxActive, r.active)
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	time.Sleep(r.delay)

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	res := r.result
	res.Started = time.Now().Add(-r.delay)
	res.Finished = time.Now()
	return res, r.err
}

func (r *recordingRunner) snapshot() ([]executor.Request, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]executor.Request(nil), r.requests...), r.maxActive
}

type dispatchHarness struct {
	control *fakeControl
	queue   *fakeQueue
	runner  *recordingRunner
	disp    *daemon.Dispatcher
	cancel  context.CancelFunc
	done    chan error

	stopOnce sync.Once
	stopErr  error
}

func (h *dispatchHarness) stop() error {
	h.stopOnce.Do(func() {
		h.cancel()
		h.stopErr = <-h.done
	})
	return h.stopErr
}

func startDispatcher(t *testing.T, runner *recordingRunner, store *journal.Store) *dispatchHarness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &dispatchHarness{
		control: &fakeControl{ch: make(chan envelopeOrErr, 16)},
		queue:   &fakeQueue{ch: make(chan string, 16)},
		runner:  runner,
		done:    make(chan error, 1),
	}
	h.disp = daemon.NewDispatcher(cfg, h.control, h.queue, runner, store, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.disp.Run(ctx) }()
	t.Cleanup(func() { _ = h.stop() })
	return h
}

func (h *dispatchHarness) submit(pid int, command string) {
	h.queue.ch <- command
	h.control.ch <- envelopeOrErr{env: channel.Envelope{
		OutputPath: "/tmp/test_output_" + strconv.Itoa(pid),
		ErrorPath:  "/tmp/test_error_" + strconv.Itoa(pid),
	}}
}

func TestDispatcherPairsInOrderAndSerializes(t *testing.T) {
	runner := &recordingRunner{delay: 20 * time.Millisecond}
	h := startDispatcher(t, runner, nil)

	commands := []string{"echo one", "echo two", "echo three"}
	for i, cmd := range commands {
		h.submit(i+1, cmd)
	}

	testsupport.WaitFor(t, testsupport.DefaultWait, func() bool { return h.disp.Executed() == int64(len(commands)) })
	reqs, maxActive := runner.snapshot()
	if maxActive != 1 {
		t.Fatalf("expected serialized execution, saw %d concurrent", maxActive)
	}
	for i, req := range reqs {
		if req.Command != commands[i] {
			t.Fatalf("request %d command %q, want %q", i, req.Command, commands[i])
		}
		if req.Result.OutputPath != "/tmp/test_output_"+strconv.Itoa(i+1) {
			t.Fatalf("request %d paired with %q", i, req.Result.OutputPath)
		}
		if req.ID == "" {
			t.Fatalf("request %d has no id", i)
		}
	}
}

func TestDispatcherSkipsBlankAndDropsMalformed(t *testing.T) {
	runner := &recordingRunner{}
	h := startDispatcher(t, runner, nil)

	h.submit(1, "   ")
	h.queue.ch <- "lost"
	h.control.ch <- envelopeOrErr{err: channel.ErrMalformedEnvelope}
	h.submit(2, "echo kept")

	testsupport.WaitFor(t, testsupport.DefaultWait, func() bool { return h.disp.Executed() == 1 })
	reqs, _ := runner.snapshot()
	if len(reqs) != 1 || reqs[0].Command != "echo kept" {
		t.Fatalf("unexpected requests %+v", reqs)
	}
	// Skipped and dropped messages are acknowledged too.
	testsupport.WaitFor(t, testsupport.DefaultWait, func() bool { return h.queue.acked.Load() == 3 })
}

func TestDispatcherStopsOnCancel(t *testing.T) {
	h := startDispatcher(t, &recordingRunner{}, nil)
	stopped := make(chan error, 1)
	go func() { stopped <- h.stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Run returned %v on cancel", err)
		}
	case <-time.After(testsupport.DefaultWait):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcherJournalsOutcomes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)

	tests := []struct {
		name   string
		runner *recordingRunner
		want   journal.Status
	}{
		{"success", &recordingRunner{}, journal.StatusSucceeded},
		{"non-zero exit", &recordingRunner{result: executor.Result{ExitCode: 2}}, journal.StatusFailed},
		{"client gone", &recordingRunner{err: channel.ErrNoReader, result: executor.Result{ExitCode: -1}}, journal.StatusSpawnFailed},
		{"spawn error", &recordingRunner{err: errors.New("exec: not found"), result: executor.Result{ExitCode: -1}}, journal.StatusSpawnFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startDispatcher(t, tt.runner, store)
			h.submit(5, "cmd "+tt.name)
			testsupport.WaitFor(t, testsupport.DefaultWait, func() bool {
				entries, err := store.Recent(context.Background(), 1)
				return err == nil && len(entries) == 1 && entries[0].Command == "cmd "+tt.name && entries[0].Status != journal.StatusRunning
			})
			entries, _ := store.Recent(context.Background(), 1)
			if entries[0].Status != tt.want {
				t.Fatalf("status %q, want %q", entries[0].Status, tt.want)
			}
		})
	}
}
