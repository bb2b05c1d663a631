package daemonctl

import (
	"context"
	"errors"
	"os"

	"cmdlauncher/internal/channel"
	"cmdlauncher/internal/config"
	"cmdlauncher/internal/journal"
	"cmdlauncher/internal/shmqueue"
)

// Snapshot is an offline view of the daemon and its named resources.
type Snapshot struct {
	Running        bool
	PID            int
	ControlFIFO    bool
	SegmentPresent bool
	Queue          *shmqueue.Stats
	QueueError     string
	Journal        map[journal.Status]int
	JournalPath    string
	ResultFIFOs    []ResultFIFO
}

// BuildStatusSnapshot gathers status without talking to the daemon. Queue
// counters are read by mapping the segment; journal totals are read when a
// journal exists.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Running:     running,
		PID:         pid,
		ControlFIFO: channel.IsFIFO(cfg.IPC.RequestPipe),
		JournalPath: cfg.JournalPath(),
	}

	if _, err := os.Stat(cfg.SegmentPath()); err == nil {
		snap.SegmentPresent = true
		if q, err := shmqueue.Open(cfg.SegmentPath()); err != nil {
			snap.QueueError = err.Error()
		} else {
			if stats, err := q.Stats(); err == nil {
				snap.Queue = &stats
			}
			_ = q.Close()
		}
	}

	if cfg.Daemon.JournalEnabled {
		if _, err := os.Stat(cfg.JournalPath()); err == nil {
			store, err := journal.Open(cfg)
			if err != nil {
				return snap, err
			}
			defer store.Close()
			stats, err := store.Stats(ctx)
			if err != nil {
				return snap, err
			}
			snap.Journal = stats
		}
	}

	fifos, err := ListResultFIFOs(cfg)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return snap, err
	}
	snap.ResultFIFOs = fifos
	return snap, nil
}
