package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// pollSliceMillis bounds how long ResultReader.Read sleeps before checking
// its context again.
const pollSliceMillis = 100

// CreateResultPair creates both FIFOs named by env. If the second cannot be
// created the first is removed again.
func CreateResultPair(env Envelope) error {
	if err := Make(env.OutputPath); err != nil {
		return err
	}
	if err := Make(env.ErrorPath); err != nil {
		return errors.Join(err, Remove(env.OutputPath))
	}
	return nil
}

// RemoveResultPair removes both FIFOs named by env, attempting each once.
func RemoveResultPair(env Envelope) error {
	return errors.Join(Remove(env.OutputPath), Remove(env.ErrorPath))
}

// OpenResultWriters opens both halves of a client's result channel for
// writing. Both files must be closed by the caller.
func OpenResultWriters(env Envelope) (stdout, stderr *os.File, err error) {
	stdout, err = OpenWriter(env.OutputPath)
	if err != nil {
		return nil, nil, err
	}
	stderr, err = OpenWriter(env.ErrorPath)
	if err != nil {
		_ = stdout.Close()
		return nil, nil, err
	}
	return stdout, stderr, nil
}

// ResultReader reads a result FIFO across many commands. The daemon opens
// the FIFO once per command and closes it when the command exits; Read
// returns io.EOF when every writer has gone and then waits for the next one.
// Two commands that run back to back may share a single io.EOF. The FIFO
// always has a reader while a ResultReader is open.
type ResultReader struct {
	path string

	mu sync.Mutex // guards fd against Pending and Close
	fd int
	// holding is set while bytes taken from the FIFO have not yet been
	// handed back by the caller, which it does by calling Read again.
	holding atomic.Bool
}

// OpenResultReader opens path for reading without waiting for a writer.
func OpenResultReader(path string) (*ResultReader, error) {
	fd, err := openReadOnly(path)
	if err != nil {
		return nil, err
	}
	return &ResultReader{path: path, fd: fd}, nil
}

// Read fills p with the next available bytes. It returns io.EOF when the
// last writer of the current command has closed and everything it wrote
// has been read, and ctx.Err() if ctx ends first. Read must not be called
// concurrently.
func (r *ResultReader) Read(ctx context.Context, p []byte) (int, error) {
	r.holding.Store(false)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		fds := []unix.PollFd{{Fd: int32(r.fd), Events: unix.POLLIN}}
		ready, err := unix.Poll(fds, pollSliceMillis)
		if errors.Is(err, unix.EINTR) || (err == nil && ready == 0) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("poll fifo %s: %w", r.path, err)
		}
		if fds[0].Revents&(unix.POLLIN|unix.POLLHUP) == 0 {
			return 0, fmt.Errorf("poll fifo %s: unexpected events %#x", r.path, fds[0].Revents)
		}

		r.holding.Store(true)
		n, err := unix.Read(r.fd, p)
		switch {
		case n > 0:
			return n, nil
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.EAGAIN):
			r.holding.Store(false)
			continue
		case err != nil:
			r.holding.Store(false)
			return 0, fmt.Errorf("read fifo %s: %w", r.path, err)
		}
		r.holding.Store(false)

		// Every writer has gone. A fresh descriptor only reports hang-up for
		// writers that connect after it was opened, so swap to one. The new
		// descriptor is opened first so the FIFO never lacks a reader.
		fd, err := openReadOnly(r.path)
		if err != nil {
			return 0, err
		}
		r.mu.Lock()
		old := r.fd
		r.fd = fd
		r.mu.Unlock()
		_ = unix.Close(old)
		return 0, io.EOF
	}
}

// Pending reports whether output is still on its way to the caller: bytes
// buffered in the FIFO, or bytes returned by the last Read that the caller
// has not finished with.
func (r *ResultReader) Pending() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fd < 0 {
		return false, nil
	}
	n, err := unix.IoctlGetInt(r.fd, unix.FIONREAD)
	if err != nil {
		return false, fmt.Errorf("query fifo %s: %w", r.path, err)
	}
	return n > 0 || r.holding.Load(), nil
}

// Close releases the read side.
func (r *ResultReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fd := r.fd
	r.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close fifo %s: %w", r.path, err)
	}
	return nil
}

func openReadOnly(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("open fifo %s for reading: %w", path, err)
	}
	return fd, nil
}
