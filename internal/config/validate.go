package config

import (
	"errors"
	"fmt"
	"strings"
)

// MaxPipeName bounds a result FIFO path including its NUL terminator, matching
// the fixed-width fields of the control-channel envelope.
const MaxPipeName = 256

// maxPIDDigits covers the largest pid_max Linux accepts (4194304).
const maxPIDDigits = 7

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateIPC(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateExecutor(); err != nil {
		return err
	}
	if err := c.validateClient(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateIPC() error {
	if c.IPC.ShmDir == "" {
		return errors.New("ipc.shm_dir must be set")
	}
	if c.IPC.ShmName == "" {
		return errors.New("ipc.shm_name must be set")
	}
	if strings.Contains(c.IPC.ShmName, "/") {
		return fmt.Errorf("ipc.shm_name %q must not contain '/'", c.IPC.ShmName)
	}
	if c.IPC.RequestPipe == "" {
		return errors.New("ipc.request_pipe must be set")
	}
	if c.IPC.OutputPipePrefix == "" || c.IPC.ErrorPipePrefix == "" {
		return errors.New("ipc.output_pipe_prefix and ipc.error_pipe_prefix must be set")
	}
	if c.IPC.OutputPipePrefix == c.IPC.ErrorPipePrefix {
		return errors.New("ipc.output_pipe_prefix and ipc.error_pipe_prefix must differ")
	}
	for _, prefix := range []string{c.IPC.OutputPipePrefix, c.IPC.ErrorPipePrefix} {
		if len(prefix)+maxPIDDigits >= MaxPipeName {
			return fmt.Errorf("result pipe prefix %q is too long (limit %d bytes with pid)", prefix, MaxPipeName-1)
		}
	}
	if c.IPC.SubmitLockPath == "" {
		return errors.New("ipc.submit_lock_path must be set")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.StateDir == "" {
		return errors.New("daemon.state_dir must be set")
	}
	return nil
}

func (c *Config) validateExecutor() error {
	if c.Executor.KillGraceSeconds < 0 {
		return errors.New("executor.kill_grace_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateClient() error {
	if c.Client.OutputLog == "" || c.Client.ErrorLog == "" {
		return errors.New("client.output_log and client.error_log must be set")
	}
	if c.Client.SettleMillis < 0 {
		return errors.New("client.settle_millis must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}
