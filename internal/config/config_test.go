package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"cmdlauncher/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("CMDLAUNCHER_SHELL", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "cmdlauncher")
	if cfg.Daemon.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Daemon.StateDir, wantState)
	}
	if cfg.SegmentPath() != "/dev/shm/cmdlauncher_queue" {
		t.Fatalf("unexpected segment path: %q", cfg.SegmentPath())
	}
	if cfg.IPC.RequestPipe != "/tmp/request_pipe" {
		t.Fatalf("unexpected request pipe: %q", cfg.IPC.RequestPipe)
	}
	if got := cfg.OutputPipe(42); got != "/tmp/output_pipe_42" {
		t.Fatalf("unexpected output pipe: %q", got)
	}
	if got := cfg.ErrorPipe(42); got != "/tmp/error_pipe_42" {
		t.Fatalf("unexpected error pipe: %q", got)
	}
	if cfg.Executor.Shell != "sh" {
		t.Fatalf("unexpected shell: %q", cfg.Executor.Shell)
	}
	if !filepath.IsAbs(cfg.Client.OutputLog) || filepath.Base(cfg.Client.OutputLog) != "output.txt" {
		t.Fatalf("expected absolute output.txt sink, got %q", cfg.Client.OutputLog)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Daemon.StateDir, cfg.Logging.Dir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "cmdlauncher.toml")

	type payload struct {
		IPC struct {
			ShmDir      string `toml:"shm_dir"`
			ShmName     string `toml:"shm_name"`
			RequestPipe string `toml:"request_pipe"`
		} `toml:"ipc"`
		Executor struct {
			Shell            string `toml:"shell"`
			KillGraceSeconds int    `toml:"kill_grace_seconds"`
		} `toml:"executor"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.IPC.ShmDir = tempDir
	custom.IPC.ShmName = "/custom_queue"
	custom.IPC.RequestPipe = filepath.Join(tempDir, "req")
	custom.Executor.Shell = "bash"
	custom.Executor.KillGraceSeconds = 9
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CMDLAUNCHER_SHELL", "")
	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got resolved=%q exists=%v", resolved, exists)
	}
	if cfg.SegmentPath() != filepath.Join(tempDir, "custom_queue") {
		t.Fatalf("leading slash should be stripped from shm name, got %q", cfg.SegmentPath())
	}
	if cfg.Executor.Shell != "bash" {
		t.Fatalf("unexpected shell: %q", cfg.Executor.Shell)
	}
	if cfg.KillGrace().Seconds() != 9 {
		t.Fatalf("unexpected kill grace: %v", cfg.KillGrace())
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized log format, got %q", cfg.Logging.Format)
	}
	if cfg.IPC.OutputPipePrefix != "/tmp/output_pipe_" {
		t.Fatalf("expected default output prefix to survive normalization, got %q", cfg.IPC.OutputPipePrefix)
	}
}

func TestShellEnvironmentOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CMDLAUNCHER_SHELL", "/bin/dash")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Executor.Shell != "/bin/dash" {
		t.Fatalf("expected env shell override, got %q", cfg.Executor.Shell)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"same prefixes", func(c *config.Config) { c.IPC.ErrorPipePrefix = c.IPC.OutputPipePrefix }, "must differ"},
		{"slash in shm name", func(c *config.Config) { c.IPC.ShmName = "a/b" }, "must not contain"},
		{"long prefix", func(c *config.Config) { c.IPC.OutputPipePrefix = "/" + strings.Repeat("x", 250) }, "too long"},
		{"negative grace", func(c *config.Config) { c.Executor.KillGraceSeconds = -1 }, "kill_grace_seconds"},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"missing request pipe", func(c *config.Config) { c.IPC.RequestPipe = "" }, "request_pipe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Daemon.StateDir = t.TempDir()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	if _, _, exists, err := config.Load(target); err != nil || !exists {
		t.Fatalf("sample config should load cleanly: exists=%v err=%v", exists, err)
	}
}
