package client_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cmdlauncher/internal/channel"
	"cmdlauncher/internal/client"
	"cmdlauncher/internal/config"
	"cmdlauncher/internal/daemonctl"
	"cmdlauncher/internal/journal"
	"cmdlauncher/internal/logging"
	"cmdlauncher/internal/shmqueue"
	"cmdlauncher/internal/testsupport"
)

func openSession(t *testing.T, cfg *config.Config, opts client.Options) *client.Session {
	t.Helper()
	s, err := client.Open(context.Background(), cfg, logging.NewNop(), opts)
	if err != nil {
		t.Fatalf("client.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

const banner = "Command result :\n"

func TestEchoReachesOutputSinkOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StartDaemon(t, cfg, nil)
	s := openSession(t, cfg, client.Options{})

	if err := s.Submit(context.Background(), "echo hi"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := testsupport.WaitForContent(t, cfg.Client.OutputLog, testsupport.DefaultWait, testsupport.Contains("hi"))
	if got != banner+"hi\n\n" {
		t.Fatalf("output sink %q, want %q", got, banner+"hi\n\n")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	data, err := os.ReadFile(cfg.Client.ErrorLog)
	if err != nil {
		t.Fatalf("read error sink: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("error sink should be empty, got %q", data)
	}
}

func TestStderrReachesErrorSinkOnly(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StartDaemon(t, cfg, nil)
	s := openSession(t, cfg, client.Options{})

	if err := s.Submit(context.Background(), "echo oops 1>&2"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	got := testsupport.WaitForContent(t, cfg.Client.ErrorLog, testsupport.DefaultWait, testsupport.Contains("oops"))
	if got != banner+"oops\n\n" {
		t.Fatalf("error sink %q", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if data, _ := os.ReadFile(cfg.Client.OutputLog); len(data) != 0 {
		t.Fatalf("output sink should be empty, got %q", data)
	}
}

func TestBackToBackCommandsRunOneAtATime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StartDaemon(t, cfg, nil)
	s := openSession(t, cfg, client.Options{})

	marker := filepath.Join(testsupport.BaseDir(cfg), "marker")
	ctx := context.Background()
	if err := s.Submit(ctx, "echo start1 >> "+marker+"; sleep 0.3; echo end1 >> "+marker); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := s.Submit(ctx, "echo start2 >> "+marker+"; echo done"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	testsupport.WaitForContent(t, cfg.Client.OutputLog, testsupport.DefaultWait, testsupport.Contains("done"))

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("read marker: %v", err)
	}
	if got := strings.Fields(string(data)); strings.Join(got, ",") != "start1,end1,start2" {
		t.Fatalf("commands overlapped: %v", got)
	}
}

func TestRunSubmitsEveryLine(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	testsupport.StartDaemon(t, cfg, store)
	s := openSession(t, cfg, client.Options{})

	input := "echo one\n\n   \necho two\n" + strings.Repeat("x", shmqueue.MessageSize+1) + "\necho three\n"
	var prompts strings.Builder
	src := client.NewReaderSource(strings.NewReader(input), &prompts)
	if err := s.Run(context.Background(), src); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := testsupport.WaitForContent(t, cfg.Client.OutputLog, testsupport.DefaultWait, testsupport.Contains("three"))
	for _, want := range []string{"one", "two", "three"} {
		if !strings.Contains(got, banner+want+"\n") {
			t.Fatalf("output sink missing %q: %q", want, got)
		}
	}
	if strings.Index(got, "one") > strings.Index(got, "two") || strings.Index(got, "two") > strings.Index(got, "three") {
		t.Fatalf("output out of order: %q", got)
	}
	if !strings.HasPrefix(prompts.String(), client.Prompt) {
		t.Fatalf("expected prompts, got %q", prompts.String())
	}

	testsupport.WaitFor(t, testsupport.DefaultWait, func() bool {
		stats, err := store.Stats(context.Background())
		return err == nil && stats[journal.StatusSucceeded] == 3
	})
}

func TestSubmitRejectsOversizedCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := testsupport.StartDaemon(t, cfg, nil)
	s := openSession(t, cfg, client.Options{})

	err := s.Submit(context.Background(), strings.Repeat("y", shmqueue.MessageSize+1))
	if !errors.Is(err, shmqueue.ErrMessageTooLong) {
		t.Fatalf("expected ErrMessageTooLong, got %v", err)
	}
	stats := d.Status().Queue
	if stats.Full != 0 || stats.Empty != stats.Capacity {
		t.Fatalf("queue touched by rejected command: %+v", stats)
	}
}

func TestOpenWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := client.Open(context.Background(), cfg, logging.NewNop(), client.Options{})
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}

	// A segment without a daemon reading the control fifo is also not running.
	q, err := shmqueue.Create(cfg.SegmentPath())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer q.Destroy()
	if err := channel.Make(cfg.IPC.RequestPipe); err != nil {
		t.Fatalf("Make: %v", err)
	}
	_, err = client.Open(context.Background(), cfg, logging.NewNop(), client.Options{})
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning with no reader, got %v", err)
	}
	if channel.IsFIFO(cfg.OutputPipe(os.Getpid())) {
		t.Fatal("failed Open must not leave result fifos behind")
	}
}

func TestCloseRemovesResultFIFOs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StartDaemon(t, cfg, nil)
	s := openSession(t, cfg, client.Options{})
	env := s.Envelope()
	if !channel.IsFIFO(env.OutputPath) || !channel.IsFIFO(env.ErrorPath) {
		t.Fatal("expected result fifos while the session is open")
	}

	done := make(chan error, 1)
	go func() { done <- s.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(testsupport.DefaultWait):
		t.Fatal("Close blocked on collectors")
	}
	if channel.IsFIFO(env.OutputPath) || channel.IsFIFO(env.ErrorPath) {
		t.Fatal("result fifos should be removed")
	}
	if _, err := os.Stat(cfg.SegmentPath()); err != nil {
		t.Fatalf("client must not destroy the shared segment: %v", err)
	}
}

type memorySink struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (m *memorySink) Append(chunk []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf.Write(chunk)
	return nil
}

func (m *memorySink) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.String()
}

func TestConcurrentClientsReceiveOwnOutput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StartDaemon(t, cfg, nil)

	const clients, perClient = 3, 5
	sinks := make([]*memorySink, clients)
	sessions := make([]*client.Session, clients)
	for i := range sessions {
		sinks[i] = &memorySink{}
		sessions[i] = openSession(t, cfg, client.Options{
			PID:        900000 + i,
			OutputSink: sinks[i],
			ErrorSink:  &memorySink{},
		})
	}

	var wg sync.WaitGroup
	for i, s := range sessions {
		wg.Add(1)
		go func(i int, s *client.Session) {
			defer wg.Done()
			for n := 0; n < perClient; n++ {
				if err := s.Submit(context.Background(), "echo c"+string(rune('a'+i))); err != nil {
					t.Errorf("Submit: %v", err)
					return
				}
			}
		}(i, s)
	}
	wg.Wait()

	for i, sink := range sinks {
		want := strings.Repeat("c"+string(rune('a'+i))+"\n", perClient)
		testsupport.WaitFor(t, testsupport.DefaultWait, func() bool { return len(sink.String()) >= len(want) })
		if got := sink.String(); got != want {
			t.Fatalf("client %d received %q, want %q", i, got, want)
		}
	}
}

func TestSubmitAndWaitSettles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StartDaemon(t, cfg, nil)
	out := &memorySink{}
	s := openSession(t, cfg, client.Options{OutputSink: out, ErrorSink: &memorySink{}})

	if err := s.SubmitAndWait(context.Background(), "echo a; sleep 0.1; echo b", 500*time.Millisecond); err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	if got := out.String(); got != "a\nb\n" {
		t.Fatalf("expected all output before settle returned, got %q", got)
	}
}

func TestSubmitAndWaitOutlastsSettle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StartDaemon(t, cfg, nil)
	out := &memorySink{}
	s := openSession(t, cfg, client.Options{OutputSink: out, ErrorSink: &memorySink{}})

	if err := s.SubmitAndWait(context.Background(), "sleep 0.6; echo late", 200*time.Millisecond); err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	if got := out.String(); got != "late\n" {
		t.Fatalf("expected output of a command slower than settle, got %q", got)
	}

	// A command that prints nothing still completes.
	start := time.Now()
	if err := s.SubmitAndWait(context.Background(), "sleep 0.3", 0); err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 300*time.Millisecond {
		t.Fatalf("returned after %s, before the command finished", elapsed)
	}
}

func TestWaitCoversEveryQueuedCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StartDaemon(t, cfg, nil)
	out := &memorySink{}
	s := openSession(t, cfg, client.Options{OutputSink: out, ErrorSink: &memorySink{}})

	ctx := context.Background()
	for _, cmd := range []string{"echo one", "true", "sleep 0.4; echo two", "echo three"} {
		if err := s.Submit(ctx, cmd); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := s.Wait(ctx, 0); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := out.String(); got != "one\ntwo\nthree\n" {
		t.Fatalf("Wait returned before every command's output arrived: %q", got)
	}
}

func TestWaitStopsWhenSegmentGoes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StartDaemon(t, cfg, nil)
	s := openSession(t, cfg, client.Options{OutputSink: &memorySink{}, ErrorSink: &memorySink{}})

	if err := s.Submit(context.Background(), "sleep 5"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// A stopping daemon removes its segment; the mappings stay valid.
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = shmqueue.Remove(cfg.SegmentPath())
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()
	if err := s.Wait(ctx, 0); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

// cancelAfterLock reports no error on its first Err call and
// context.Canceled afterwards. Submit's first check happens while taking the
// submit lock, so the context is cancelled once the command is queued.
type cancelAfterLock struct {
	context.Context
	calls atomic.Int32
}

func (c *cancelAfterLock) Err() error {
	if c.calls.Add(1) > 1 {
		return context.Canceled
	}
	return nil
}

func TestCancelAfterEnqueueKeepsClientsPaired(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.StartDaemon(t, cfg, nil)
	outA, outB := &memorySink{}, &memorySink{}
	a := openSession(t, cfg, client.Options{PID: 111, OutputSink: outA, ErrorSink: &memorySink{}})
	b := openSession(t, cfg, client.Options{PID: 222, OutputSink: outB, ErrorSink: &memorySink{}})

	ctx := &cancelAfterLock{Context: context.Background()}
	if err := a.Submit(ctx, "echo FROM_A"); err != nil {
		t.Fatalf("Submit cancelled after enqueue: %v", err)
	}
	if ctx.calls.Load() < 1 {
		t.Fatal("Submit never consulted its context")
	}
	if err := b.Submit(context.Background(), "echo FROM_B"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	testsupport.WaitFor(t, testsupport.DefaultWait, func() bool {
		return outA.String() != "" && outB.String() != ""
	})
	if got := outA.String(); got != "FROM_A\n" {
		t.Fatalf("client 111 received %q", got)
	}
	if got := outB.String(); got != "FROM_B\n" {
		t.Fatalf("client 222 received %q", got)
	}
}
