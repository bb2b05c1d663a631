package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cmdlauncher/internal/channel"
	"cmdlauncher/internal/config"
	"cmdlauncher/internal/shmqueue"
)

// ResultFIFO is a client result FIFO found on disk.
type ResultFIFO struct {
	Path  string
	PID   int
	Alive bool
}

// CleanupReport lists what Cleanup removed.
type CleanupReport struct {
	ResultFIFOs   []string
	ControlFIFO   bool
	Segment       bool
	PIDFile       bool
	DaemonRunning bool
	SkippedInUse  int
}

// ListResultFIFOs finds every output and error FIFO matching the configured
// prefixes.
func ListResultFIFOs(cfg *config.Config) ([]ResultFIFO, error) {
	var found []ResultFIFO
	for _, prefix := range []string{cfg.IPC.OutputPipePrefix, cfg.IPC.ErrorPipePrefix} {
		matches, err := filepath.Glob(prefix + "*")
		if err != nil {
			return nil, fmt.Errorf("glob %s*: %w", prefix, err)
		}
		for _, path := range matches {
			pid, err := strconv.Atoi(strings.TrimPrefix(path, prefix))
			if err != nil || pid <= 0 || !channel.IsFIFO(path) {
				continue
			}
			found = append(found, ResultFIFO{Path: path, PID: pid, Alive: ProcessAlive(pid)})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	return found, nil
}

// Cleanup removes result FIFOs whose client is dead. When no daemon holds the
// instance lock it also removes the control FIFO, the shared segment and the
// pid file.
func Cleanup(cfg *config.Config) (CleanupReport, error) {
	var report CleanupReport
	var errs []error

	fifos, err := ListResultFIFOs(cfg)
	if err != nil {
		return report, err
	}
	for _, f := range fifos {
		if f.Alive {
			report.SkippedInUse++
			continue
		}
		if err := channel.Remove(f.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		report.ResultFIFOs = append(report.ResultFIFOs, f.Path)
	}

	running, _, err := ProcessInfo(cfg)
	if err != nil {
		return report, errors.Join(append(errs, err)...)
	}
	report.DaemonRunning = running
	if running {
		return report, errors.Join(errs...)
	}

	if exists(cfg.IPC.RequestPipe) {
		if err := channel.Remove(cfg.IPC.RequestPipe); err != nil {
			errs = append(errs, err)
		} else {
			report.ControlFIFO = true
		}
	}
	if exists(cfg.SegmentPath()) {
		if err := shmqueue.Remove(cfg.SegmentPath()); err != nil {
			errs = append(errs, err)
		} else {
			report.Segment = true
		}
	}
	if exists(cfg.PIDPath()) {
		if err := os.Remove(cfg.PIDPath()); err != nil {
			errs = append(errs, fmt.Errorf("remove pid file: %w", err))
		} else {
			report.PIDFile = true
		}
	}
	return report, errors.Join(errs...)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
