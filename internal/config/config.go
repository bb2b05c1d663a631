package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// IPC names the OS-global resources shared between the daemon and its clients.
type IPC struct {
	ShmDir           string `toml:"shm_dir"`
	ShmName          string `toml:"shm_name"`
	RequestPipe      string `toml:"request_pipe"`
	OutputPipePrefix string `toml:"output_pipe_prefix"`
	ErrorPipePrefix  string `toml:"error_pipe_prefix"`
	SubmitLockPath   string `toml:"submit_lock_path"`
}

// Daemon contains daemon-private state locations.
type Daemon struct {
	StateDir       string `toml:"state_dir"`
	JournalEnabled bool   `toml:"journal_enabled"`
}

// Executor contains settings for spawned subshells.
type Executor struct {
	Shell             string `toml:"shell"`
	KillGraceSeconds  int    `toml:"kill_grace_seconds"`
	ReportSpawnErrors bool   `toml:"report_spawn_errors"`
}

// Client contains settings for client sessions and their sinks.
type Client struct {
	OutputLog    string `toml:"output_log"`
	ErrorLog     string `toml:"error_log"`
	SyncSink     bool   `toml:"sync_sink"`
	SettleMillis int    `toml:"settle_millis"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	Dir           string `toml:"dir"`
}

// Config encapsulates all configuration values for cmdlauncher.
//
// Configuration sections by subsystem:
//   - IPC: shared memory segment, control FIFO, result FIFO naming, submit lock
//   - Daemon: pid file, single-instance lock and execution journal location
//   - Executor: shell and child termination settings
//   - Client: sink destinations and one-shot settle delay
//   - Logging: log format, level, directory and retention
type Config struct {
	IPC      IPC      `toml:"ipc"`
	Daemon   Daemon   `toml:"daemon"`
	Executor Executor `toml:"executor"`
	Client   Client   `toml:"client"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cmdlauncher/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cmdlauncher.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Daemon.StateDir, c.Logging.Dir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SegmentPath returns the file backing the shared memory segment. With the
// default shm_dir this is the same object shm_open("/<shm_name>") resolves to.
func (c *Config) SegmentPath() string {
	return filepath.Join(c.IPC.ShmDir, c.IPC.ShmName)
}

// OutputPipe returns the output result FIFO path for the given client pid.
func (c *Config) OutputPipe(pid int) string {
	return c.IPC.OutputPipePrefix + strconv.Itoa(pid)
}

// ErrorPipe returns the error result FIFO path for the given client pid.
func (c *Config) ErrorPipe(pid int) string {
	return c.IPC.ErrorPipePrefix + strconv.Itoa(pid)
}

// ClientPID extracts the client pid from an output result FIFO path. It
// reports false for paths not built by OutputPipe.
func (c *Config) ClientPID(outputPath string) (int, bool) {
	suffix, ok := strings.CutPrefix(outputPath, c.IPC.OutputPipePrefix)
	if !ok || suffix == "" {
		return 0, false
	}
	pid, err := strconv.Atoi(suffix)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Daemon.StateDir, "launcherd.pid")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Daemon.StateDir, "launcherd.lock")
}

// JournalPath returns the execution journal database location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.Daemon.StateDir, "journal.db")
}

// KillGrace is how long a cancelled child gets between SIGTERM and SIGKILL.
func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.Executor.KillGraceSeconds) * time.Second
}

// Settle is how long a client keeps collecting after its commands finish.
func (c *Config) Settle() time.Duration {
	return time.Duration(c.Client.SettleMillis) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
