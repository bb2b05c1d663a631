package shmqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Queue is a mapped view of a shared bounded queue. Multiple processes (and
// goroutines) may enqueue and dequeue concurrently; messages come out in the
// order they went in.
type Queue struct {
	path string

	mu   sync.RWMutex // guards data against Close
	data []byte
	hdr  *layout
}

// Stats is a point-in-time view of the queue counters.
type Stats struct {
	Front    int
	Rear     int
	Empty    int
	Full     int
	Capacity int
	// Enqueued and Finished are the totals since the segment was created.
	Enqueued uint64
	Finished uint64
}

// Enqueue appends msg, blocking while the queue is full. It returns the
// message's sequence number; the first message of a segment is 1.
func (q *Queue) Enqueue(ctx context.Context, msg []byte) (uint64, error) {
	if len(msg) > MessageSize {
		return 0, fmt.Errorf("%d bytes: %w", len(msg), ErrMessageTooLong)
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	h := q.hdr
	if h == nil {
		return 0, ErrClosed
	}

	if err := h.empty.wait(ctx); err != nil {
		return 0, err
	}
	if err := h.mutex.wait(ctx); err != nil {
		_ = h.empty.post()
		return 0, err
	}
	s := &h.slots[h.rear]
	n := copy(s.data[:MessageSize], msg)
	s.data[n] = 0
	s.length = uint32(n)
	h.rear = (h.rear + 1) % Capacity
	seq := atomic.AddUint64(&h.enqueued, 1)
	if err := h.mutex.post(); err != nil {
		return 0, err
	}
	return seq, h.full.post()
}

// Dequeue removes the oldest message, blocking while the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) ([]byte, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h := q.hdr
	if h == nil {
		return nil, ErrClosed
	}

	if err := h.full.wait(ctx); err != nil {
		return nil, err
	}
	if err := h.mutex.wait(ctx); err != nil {
		_ = h.full.post()
		return nil, err
	}
	s := &h.slots[h.front]
	n := min(int(s.length), MessageSize)
	msg := make([]byte, n)
	copy(msg, s.data[:n])
	h.front = (h.front + 1) % Capacity
	if err := h.mutex.post(); err != nil {
		return nil, err
	}
	if err := h.empty.post(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Ack records that the consumer has finished with the oldest unacknowledged
// message. Consumers call it once per Dequeue, in order.
func (q *Queue) Ack() error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h := q.hdr
	if h == nil {
		return ErrClosed
	}
	atomic.AddUint64(&h.finished, 1)
	return nil
}

// Finished reports whether the message numbered seq has been acknowledged.
func (q *Queue) Finished(seq uint64) (bool, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h := q.hdr
	if h == nil {
		return false, ErrClosed
	}
	return atomic.LoadUint64(&h.finished) >= seq, nil
}

// Stats reads the counters without taking the queue lock, so the values may
// be mid-update while producers or consumers are active.
func (q *Queue) Stats() (Stats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	h := q.hdr
	if h == nil {
		return Stats{}, ErrClosed
	}
	return Stats{
		Front:    int(h.front),
		Rear:     int(h.rear),
		Empty:    h.empty.load(),
		Full:     h.full.load(),
		Capacity: int(h.capacity),
		Enqueued: atomic.LoadUint64(&h.enqueued),
		Finished: atomic.LoadUint64(&h.finished),
	}, nil
}
