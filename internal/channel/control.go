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

// ControlReader is the daemon end of the control FIFO.
type ControlReader struct {
	path string
	file *os.File
}

// ListenControl creates the control FIFO at path and opens it for reading.
func ListenControl(path string) (*ControlReader, error) {
	if err := Make(path); err != nil {
		return nil, err
	}
	f, err := OpenReader(path)
	if err != nil {
		_ = Remove(path)
		return nil, err
	}
	return &ControlReader{path: path, file: f}, nil
}

// Receive blocks until one whole envelope has arrived.
func (r *ControlReader) Receive(ctx context.Context) (Envelope, error) {
	buf := make([]byte, EnvelopeSize)
	if err := ReadFullContext(ctx, r.file, buf); err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := env.UnmarshalBinary(buf); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// Path returns the FIFO path.
func (r *ControlReader) Path() string { return r.path }

// Close closes the descriptor and removes the FIFO.
func (r *ControlReader) Close() error {
	return errors.Join(r.file.Close(), Remove(r.path))
}

// ControlWriter is a client's handle on the control FIFO.
type ControlWriter struct {
	file *os.File
}

// DialControl opens the control FIFO for writing. ErrNoReader means no daemon
// currently holds it open.
func DialControl(path string) (*ControlWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.ENXIO) {
			return nil, fmt.Errorf("control fifo %s: %w", path, ErrNoReader)
		}
		return nil, fmt.Errorf("open control fifo %s: %w", path, err)
	}
	return &ControlWriter{file: f}, nil
}

// Send writes env in a single write.
func (w *ControlWriter) Send(ctx context.Context, env Envelope) error {
	buf, err := env.MarshalBinary()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = w.file.SetWriteDeadline(time.Now()) })
	defer stop()

	n, err := w.file.Write(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) && ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("write envelope: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("write envelope: %w", io.ErrShortWrite)
	}
	return nil
}

// Close closes the descriptor. The FIFO itself belongs to the daemon.
func (w *ControlWriter) Close() error {
	return w.file.Close()
}
