package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"cmdlauncher/internal/channel"
	"cmdlauncher/internal/config"
)

// ErrDaemonNotRunning indicates no daemon is serving the configured resources.
var ErrDaemonNotRunning = errors.New("daemon not running")

// ProcessAlive reports whether pid names a live process.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// ReadPID returns the pid recorded in the daemon pid file, or 0 when there is
// none.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(cfg.PIDPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", cfg.PIDPath(), err)
	}
	pidStr := strings.TrimSpace(string(data))
	if pidStr == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("parse daemon pid file %q: invalid pid %q", cfg.PIDPath(), pidStr)
	}
	return pid, nil
}

// WritePIDFile records the current process as the daemon.
func WritePIDFile(cfg *config.Config) error {
	value := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(cfg.PIDPath(), []byte(value), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// ProcessInfo reports whether a daemon currently holds the instance lock and
// its pid when the pid file names a live process.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	held, err := lockHeld(cfg.LockPath())
	if err != nil {
		return false, 0, err
	}
	pid, err := ReadPID(cfg)
	if err != nil {
		return held, 0, err
	}
	if !ProcessAlive(pid) {
		pid = 0
	}
	return held, pid, nil
}

// lockHeld probes the daemon lock without keeping it.
func lockHeld(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe daemon lock %s: %w", path, err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

// Launch starts a detached daemon process running executablePath.
func Launch(executablePath, configPath string) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}
	args := []string{"daemon"}
	if cfg := strings.TrimSpace(configPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForReady waits until a daemon holds the control FIFO open for reading.
func WaitForReady(cfg *config.Config, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		w, err := channel.DialControl(cfg.IPC.RequestPipe)
		if err == nil {
			return w.Close()
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return fmt.Errorf("daemon failed to start: %w", lastErr)
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Stop sends SIGTERM to the running daemon and waits up to gracePeriod for it
// to release its lock. A daemon still alive after that is killed.
func Stop(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == 0 {
		return StopResult{}, fmt.Errorf("daemon lock is held but pid file %s names no live process", cfg.PIDPath())
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return StopResult{}, fmt.Errorf("signal daemon %d: %w", pid, err)
	}

	result := StopResult{PID: pid}
	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if held, _ := lockHeld(cfg.LockPath()); !held {
			return result, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon %d: %w", pid, err)
	}
	result.ForcedKill = true
	if err := os.Remove(cfg.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file: %w", err)
	}
	return result, nil
}
