//go:build !linux

package shmqueue

import "time"

const pollInterval = 2 * time.Millisecond

// Without futexes waiters poll the counter.
func futexSleep(_ *int32, _ int32, timeout time.Duration) error {
	time.Sleep(min(timeout, pollInterval))
	return nil
}

func futexWakeOne(*int32) error { return nil }
