package shmqueue

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// waitSlice bounds each futex sleep so cancellation is noticed promptly.
const waitSlice = 100 * time.Millisecond

func (s *semaphore) init(value int32) {
	atomic.StoreInt32(&s.waiters, 0)
	atomic.StoreInt32(&s.value, value)
}

func (s *semaphore) tryWait() bool {
	for {
		v := atomic.LoadInt32(&s.value)
		if v <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt32(&s.value, v, v-1) {
			return true
		}
	}
}

func (s *semaphore) wait(ctx context.Context) error {
	for {
		if s.tryWait() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		atomic.AddInt32(&s.waiters, 1)
		err := futexSleep(&s.value, 0, waitSlice)
		atomic.AddInt32(&s.waiters, -1)
		if err != nil {
			return fmt.Errorf("futex wait: %w", err)
		}
	}
}

func (s *semaphore) post() error {
	atomic.AddInt32(&s.value, 1)
	if atomic.LoadInt32(&s.waiters) > 0 {
		if err := futexWakeOne(&s.value); err != nil {
			return fmt.Errorf("futex wake: %w", err)
		}
	}
	return nil
}

func (s *semaphore) load() int {
	return int(atomic.LoadInt32(&s.value))
}
