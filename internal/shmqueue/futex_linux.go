//go:build linux

package shmqueue

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Shared (non-private) futex operations so waiters in other processes mapping
// the same segment are woken.
const (
	futexWait = 0
	futexWake = 1
)

func futexSleep(addr *int32, expected int32, timeout time.Duration) error {
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWait,
		uintptr(uint32(expected)),
		uintptr(unsafe.Pointer(&ts)),
		0, 0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.ETIMEDOUT, unix.EINTR:
		return nil
	default:
		return errno
	}
}

func futexWakeOne(addr *int32) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		futexWake,
		1,
		0, 0, 0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}
