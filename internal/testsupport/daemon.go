package testsupport

import (
	"context"
	"testing"

	"cmdlauncher/internal/config"
	"cmdlauncher/internal/daemon"
	"cmdlauncher/internal/journal"
	"cmdlauncher/internal/logging"
)

// StartDaemon runs a daemon for cfg in the background until the test ends.
// It returns once the control FIFO is being read.
func StartDaemon(t testing.TB, cfg *config.Config, store *journal.Store) *daemon.Daemon {
	t.Helper()

	d, err := daemon.New(cfg, logging.NewNop(), store)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("daemon Serve: %v", err)
		}
		if err := d.Stop(); err != nil {
			t.Errorf("daemon Stop: %v", err)
		}
	})
	return d
}
