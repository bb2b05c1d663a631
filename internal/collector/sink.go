package collector

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Banner prefixes every chunk written to a sink.
const Banner = "Command result :\n"

// Sink consumes raw result chunks.
type Sink interface {
	Append(chunk []byte) error
}

// FileSink appends banner-wrapped chunks to a file.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	sync bool
}

// OpenFileSink opens path for appending, creating it and its parent directory
// when missing. With syncEach every chunk is fsynced before Append returns.
func OpenFileSink(path string, syncEach bool) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sink directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sink %s: %w", path, err)
	}
	return &FileSink{file: f, sync: syncEach}, nil
}

// Append writes one banner-wrapped record in a single write.
func (s *FileSink) Append(chunk []byte) error {
	record := make([]byte, 0, len(Banner)+len(chunk)+1)
	record = append(record, Banner...)
	record = append(record, chunk...)
	record = append(record, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(record); err != nil {
		return fmt.Errorf("append to %s: %w", s.file.Name(), err)
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", s.file.Name(), err)
		}
	}
	return nil
}

// Path returns the sink file name.
func (s *FileSink) Path() string { return s.file.Name() }

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// WriterSink copies raw chunks to an io.Writer without the banner.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Append writes chunk as is.
func (s *WriterSink) Append(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(chunk)
	return err
}

type teeSink []Sink

// Tee returns a sink appending every chunk to each of sinks in order. All
// sinks receive the chunk even when an earlier one fails.
func Tee(sinks ...Sink) Sink {
	return teeSink(sinks)
}

func (t teeSink) Append(chunk []byte) error {
	var errs []error
	for _, s := range t {
		if err := s.Append(chunk); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
