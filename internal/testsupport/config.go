package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"cmdlauncher/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose named IPC resources, state and sinks all
// live in a per-test temp directory, so tests never touch /dev/shm or /tmp
// defaults and can run in parallel.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.IPC.ShmDir = filepath.Join(base, "shm")
	cfgVal.IPC.RequestPipe = filepath.Join(base, "request_pipe")
	cfgVal.IPC.OutputPipePrefix = filepath.Join(base, "output_pipe_")
	cfgVal.IPC.ErrorPipePrefix = filepath.Join(base, "error_pipe_")
	cfgVal.IPC.SubmitLockPath = filepath.Join(base, "submit.lock")
	cfgVal.Daemon.StateDir = filepath.Join(base, "state")
	cfgVal.Logging.Dir = filepath.Join(base, "logs")
	cfgVal.Client.OutputLog = filepath.Join(base, "output.txt")
	cfgVal.Client.ErrorLog = filepath.Join(base, "error.txt")
	cfgVal.Client.SettleMillis = 200
	cfgVal.Executor.KillGraceSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{cfgVal.IPC.ShmDir, cfgVal.Daemon.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return builder.cfg
}

// WithShell overrides the shell commands run under.
func WithShell(shell string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Executor.Shell = shell
	}
}

// WithSpawnErrorReports toggles writing spawn failures to the error channel.
func WithSpawnErrorReports(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Executor.ReportSpawnErrors = enabled
	}
}

// WithJournal toggles the execution journal.
func WithJournal(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.JournalEnabled = enabled
	}
}

// WithScript writes an executable shell script named name into the test
// directory and stores its path in dest.
func WithScript(name, body string, dest *string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, name)
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
			b.t.Fatalf("write script %s: %v", name, err)
		}
		if dest != nil {
			*dest = target
		}
	}
}

// BaseDir returns the temp directory NewConfig placed everything under.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.IPC.RequestPipe)
}
