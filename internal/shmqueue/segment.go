package shmqueue

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mode is the permission applied to a newly created segment.
const Mode = 0o666

// Create creates a fresh, initialised segment at path and maps it. A stale
// segment left by a crashed daemon is unlinked first; processes still mapping
// it keep their old view.
func Create(path string) (*Queue, error) {
	if err := Remove(path); err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, Mode)
	if err != nil {
		return nil, fmt.Errorf("create segment %s: %w", path, err)
	}
	defer unix.Close(fd)

	// umask may have narrowed the mode.
	if err := unix.Fchmod(fd, Mode); err != nil {
		_ = unix.Unlink(path)
		return nil, fmt.Errorf("chmod segment %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, int64(SegmentSize)); err != nil {
		_ = unix.Unlink(path)
		return nil, fmt.Errorf("size segment %s: %w", path, err)
	}
	q, err := mapSegment(fd, path)
	if err != nil {
		_ = unix.Unlink(path)
		return nil, err
	}
	q.initialize()
	return q, nil
}

// Open maps an existing segment created by Create.
func Open(path string) (*Queue, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open segment %s: %w", path, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("stat segment %s: %w", path, err)
	}
	if st.Size != int64(SegmentSize) {
		return nil, fmt.Errorf("segment %s is %d bytes, want %d: %w", path, st.Size, SegmentSize, ErrSegmentMismatch)
	}
	q, err := mapSegment(fd, path)
	if err != nil {
		return nil, err
	}
	if err := q.verify(); err != nil {
		_ = q.Close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}
	return q, nil
}

func mapSegment(fd int, path string) (*Queue, error) {
	data, err := unix.Mmap(fd, 0, SegmentSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("map segment %s: %w", path, err)
	}
	return &Queue{
		path: path,
		data: data,
		hdr:  (*layout)(unsafe.Pointer(&data[0])),
	}, nil
}

func (q *Queue) initialize() {
	h := q.hdr
	h.version = layoutVersion
	h.capacity = Capacity
	h.slotSize = SlotSize
	h.front = 0
	h.rear = 0
	h.enqueued = 0
	h.finished = 0
	h.mutex.init(1)
	h.empty.init(Capacity)
	h.full.init(0)
	atomic.StoreUint32(&h.magic, layoutMagic)
}

func (q *Queue) verify() error {
	h := q.hdr
	if atomic.LoadUint32(&h.magic) != layoutMagic {
		return fmt.Errorf("bad magic: %w", ErrSegmentMismatch)
	}
	if h.version != layoutVersion || h.capacity != Capacity || h.slotSize != SlotSize {
		return fmt.Errorf("version %d capacity %d slot %d: %w", h.version, h.capacity, h.slotSize, ErrSegmentMismatch)
	}
	return nil
}

// Path returns the file backing the segment.
func (q *Queue) Path() string { return q.path }

// Close unmaps the segment, waiting for in-flight operations to return. The
// backing file is left in place.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.data == nil {
		return nil
	}
	err := unix.Munmap(q.data)
	q.data = nil
	q.hdr = nil
	if err != nil {
		return fmt.Errorf("unmap segment %s: %w", q.path, err)
	}
	return nil
}

// Destroy unmaps the segment and removes its backing file.
func (q *Queue) Destroy() error {
	return errors.Join(q.Close(), Remove(q.path))
}

// Remove deletes a segment file. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove segment %s: %w", path, err)
	}
	return nil
}
