package collector_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cmdlauncher/internal/channel"
	"cmdlauncher/internal/collector"
	"cmdlauncher/internal/logging"
)

type memorySink struct {
	mu     sync.Mutex
	chunks []string
}

func (s *memorySink) Append(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, string(chunk))
	return nil
}

func (s *memorySink) joined() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.chunks, "")
}

func TestFileSinkWritesBanner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "output.txt")
	sink, err := collector.OpenFileSink(path, true)
	if err != nil {
		t.Fatalf("OpenFileSink: %v", err)
	}
	if err := sink.Append([]byte("hi\n")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := sink.Append([]byte("second")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sink: %v", err)
	}
	want := "Command result :\nhi\n\nCommand result :\nsecond\n"
	if string(got) != want {
		t.Fatalf("sink contents %q, want %q", got, want)
	}

	// Reopening appends rather than truncating.
	again, err := collector.OpenFileSink(path, false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = again.Append([]byte("x"))
	_ = again.Close()
	got, _ = os.ReadFile(path)
	if string(got) != want+"Command result :\nx\n" {
		t.Fatalf("reopened sink contents %q", got)
	}
}

type gatedSink struct {
	release chan struct{}
	memorySink
}

func (s *gatedSink) Append(chunk []byte) error {
	<-s.release
	return s.memorySink.Append(chunk)
}

func (s *gatedSink) got() string { return s.joined() }

type failingSink struct{}

func (failingSink) Append([]byte) error { return errors.New("disk full") }

func TestTeeAppendsToEverySink(t *testing.T) {
	var buf bytes.Buffer
	mem := &memorySink{}
	tee := collector.Tee(failingSink{}, collector.NewWriterSink(&buf), mem)

	err := tee.Append([]byte("chunk"))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if buf.String() != "chunk" {
		t.Fatalf("writer sink got %q, want raw chunk", buf.String())
	}
	if mem.joined() != "chunk" {
		t.Fatalf("memory sink got %q", mem.joined())
	}
}

func TestCollectorCopiesAcrossWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output_pipe_1")
	if err := channel.Make(path); err != nil {
		t.Fatalf("Make: %v", err)
	}
	sink := &memorySink{}
	c := collector.New("output", path, sink, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for _, text := range []string{"first\n", "second\n"} {
		w, err := channel.OpenWriter(path)
		if err != nil {
			t.Fatalf("OpenWriter: %v", err)
		}
		if _, err := w.WriteString(text); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = w.Close()
		waitFor(t, func() bool { return strings.HasSuffix(sink.joined(), text) })
	}

	if got := sink.joined(); got != "first\nsecond\n" {
		t.Fatalf("collected %q", got)
	}
	if c.Chunks() < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", c.Chunks())
	}
	if c.LastActivity().IsZero() {
		t.Fatal("expected LastActivity to be set")
	}
	waitFor(t, c.Drained)

	// Bytes still in the fifo are not drained until the sink has them.
	slow := &gatedSink{release: make(chan struct{})}
	gated := collector.New("error", path+"_gated", slow, logging.NewNop())
	if err := channel.Make(path + "_gated"); err != nil {
		t.Fatalf("Make: %v", err)
	}
	if err := gated.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	w, err := channel.OpenWriter(path + "_gated")
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	_, _ = w.WriteString("held\n")
	_ = w.Close()
	time.Sleep(50 * time.Millisecond)
	if gated.Drained() {
		t.Fatal("collector reported drained while the sink was still appending")
	}
	close(slow.release)
	waitFor(t, gated.Drained)
	if slow.got() != "held\n" {
		t.Fatalf("gated sink got %q", slow.got())
	}

	cancel()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop after cancellation")
	}
	if err := c.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestCollectorStartFailsWithoutFIFO(t *testing.T) {
	c := collector.New("error", filepath.Join(t.TempDir(), "missing"), &memorySink{}, nil)
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail for a missing fifo")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
