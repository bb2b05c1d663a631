package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Mode is the permission applied to every FIFO this package creates.
const Mode = 0o666

// ErrNoReader is returned when opening a FIFO for writing while nobody holds
// it open for reading.
var ErrNoReader = errors.New("no reader on fifo")

// Make creates a FIFO at path, replacing any stale file left there.
func Make(path string) error {
	if err := Remove(path); err != nil {
		return err
	}
	if err := unix.Mkfifo(path, Mode); err != nil {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}
	// umask may have narrowed the mode.
	if err := os.Chmod(path, Mode); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("chmod fifo %s: %w", path, err)
	}
	return nil
}

// Remove deletes the FIFO at path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove fifo %s: %w", path, err)
	}
	return nil
}

// IsFIFO reports whether path exists and is a named pipe.
func IsFIFO(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeNamedPipe != 0
}

// OpenReader opens path read-write. Holding the write side too means reads
// block across writer disconnects instead of returning io.EOF. The returned
// file is poller-backed so ReadContext can cancel it.
func OpenReader(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open fifo %s for reading: %w", path, err)
	}
	return f, nil
}

// OpenWriter opens path for writing without waiting for a reader and returns
// a blocking descriptor suitable for handing to a child process.
func OpenWriter(path string) (*os.File, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) {
			return nil, fmt.Errorf("open fifo %s: %w", path, ErrNoReader)
		}
		return nil, fmt.Errorf("open fifo %s for writing: %w", path, err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("set blocking on %s: %w", path, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}

// ReadContext reads into p, returning ctx.Err() if ctx ends first.
func ReadContext(ctx context.Context, f *os.File, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stop := context.AfterFunc(ctx, func() { _ = f.SetReadDeadline(time.Now()) })
	defer stop()
	n, err := f.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() != nil {
		return n, ctx.Err()
	}
	return n, err
}

// ReadFullContext reads exactly len(p) bytes unless ctx ends or the stream
// fails.
func ReadFullContext(ctx context.Context, f *os.File, p []byte) error {
	for off := 0; off < len(p); {
		n, err := ReadContext(ctx, f, p[off:])
		off += n
		if err != nil {
			if errors.Is(err, io.EOF) && off > 0 && off < len(p) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}
