package shmqueue

import "errors"

var (
	// ErrMessageTooLong is returned by Enqueue when a message exceeds MessageSize.
	ErrMessageTooLong = errors.New("message exceeds queue slot size")
	// ErrSegmentMismatch reports a segment whose size or header does not match
	// this build's queue layout.
	ErrSegmentMismatch = errors.New("shared segment layout mismatch")
	// ErrClosed is returned when operating on an unmapped queue.
	ErrClosed = errors.New("queue is closed")
)
