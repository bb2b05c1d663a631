package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeIPC(); err != nil {
		return err
	}
	if err := c.normalizeDaemon(); err != nil {
		return err
	}
	c.normalizeExecutor()
	if err := c.normalizeClient(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

func (c *Config) normalizeIPC() error {
	var err error
	if c.IPC.ShmDir, err = expandPath(strings.TrimSpace(c.IPC.ShmDir)); err != nil {
		return fmt.Errorf("ipc.shm_dir: %w", err)
	}
	c.IPC.ShmName = strings.TrimPrefix(strings.TrimSpace(c.IPC.ShmName), "/")
	if c.IPC.RequestPipe, err = expandPath(strings.TrimSpace(c.IPC.RequestPipe)); err != nil {
		return fmt.Errorf("ipc.request_pipe: %w", err)
	}
	if c.IPC.OutputPipePrefix, err = expandPrefix(c.IPC.OutputPipePrefix); err != nil {
		return fmt.Errorf("ipc.output_pipe_prefix: %w", err)
	}
	if c.IPC.ErrorPipePrefix, err = expandPrefix(c.IPC.ErrorPipePrefix); err != nil {
		return fmt.Errorf("ipc.error_pipe_prefix: %w", err)
	}
	if c.IPC.SubmitLockPath, err = expandPath(strings.TrimSpace(c.IPC.SubmitLockPath)); err != nil {
		return fmt.Errorf("ipc.submit_lock_path: %w", err)
	}
	return nil
}

// expandPrefix expands a path prefix without losing a trailing separator or
// underscore that filepath.Clean would otherwise normalize away.
func expandPrefix(prefix string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", nil
	}
	suffix := ""
	if strings.HasSuffix(prefix, "/") {
		suffix = "/"
	}
	expanded, err := expandPath(prefix)
	if err != nil {
		return "", err
	}
	return expanded + suffix, nil
}

func (c *Config) normalizeDaemon() error {
	var err error
	if c.Daemon.StateDir, err = expandPath(strings.TrimSpace(c.Daemon.StateDir)); err != nil {
		return fmt.Errorf("daemon.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeExecutor() {
	if value, ok := os.LookupEnv("CMDLAUNCHER_SHELL"); ok && strings.TrimSpace(value) != "" {
		c.Executor.Shell = value
	}
	c.Executor.Shell = strings.TrimSpace(c.Executor.Shell)
	if c.Executor.Shell == "" {
		c.Executor.Shell = defaultShell
	}
}

func (c *Config) normalizeClient() error {
	var err error
	if c.Client.OutputLog, err = expandPath(strings.TrimSpace(c.Client.OutputLog)); err != nil {
		return fmt.Errorf("client.output_log: %w", err)
	}
	if c.Client.ErrorLog, err = expandPath(strings.TrimSpace(c.Client.ErrorLog)); err != nil {
		return fmt.Errorf("client.error_log: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	var err error
	if c.Logging.Dir, err = expandPath(strings.TrimSpace(c.Logging.Dir)); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}
