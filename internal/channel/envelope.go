package channel

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxPipeName is the fixed width of each envelope field, NUL terminator
	// included.
	MaxPipeName = 256
	// EnvelopeSize is the wire size of one request envelope. It stays below
	// PIPE_BUF so a single write is atomic.
	EnvelopeSize = 2 * MaxPipeName
)

var (
	// ErrPathTooLong reports a result path that does not fit an envelope field.
	ErrPathTooLong = errors.New("pipe path exceeds envelope field")
	// ErrMalformedEnvelope reports an envelope with a missing path.
	ErrMalformedEnvelope = errors.New("malformed request envelope")
)

// Envelope names the result channel a request's output should go to. It never
// carries the command text.
type Envelope struct {
	OutputPath string
	ErrorPath  string
}

// MarshalBinary encodes e as two NUL-padded MaxPipeName fields.
func (e Envelope) MarshalBinary() ([]byte, error) {
	buf := make([]byte, EnvelopeSize)
	for i, path := range []string{e.OutputPath, e.ErrorPath} {
		if path == "" || strings.IndexByte(path, 0) >= 0 {
			return nil, fmt.Errorf("path %q: %w", path, ErrMalformedEnvelope)
		}
		if len(path) > MaxPipeName-1 {
			return nil, fmt.Errorf("%d bytes: %w", len(path), ErrPathTooLong)
		}
		copy(buf[i*MaxPipeName:], path)
	}
	return buf, nil
}

// UnmarshalBinary decodes an envelope produced by MarshalBinary.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	if len(data) != EnvelopeSize {
		return fmt.Errorf("%d bytes, want %d: %w", len(data), EnvelopeSize, ErrMalformedEnvelope)
	}
	out := field(data[:MaxPipeName])
	errPath := field(data[MaxPipeName:])
	if out == "" || errPath == "" {
		return fmt.Errorf("empty path: %w", ErrMalformedEnvelope)
	}
	e.OutputPath, e.ErrorPath = out, errPath
	return nil
}

func field(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
