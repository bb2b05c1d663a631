package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Prompt is printed before each line when input is interactive.
const Prompt = "Enter command:\n"

// LineSource yields one line of user input at a time. It returns io.EOF when
// input is exhausted.
type LineSource interface {
	ReadLine(ctx context.Context) (string, error)
}

type lineResult struct {
	line string
	err  error
}

// ReaderSource reads newline-terminated lines from an io.Reader. A read
// blocked in the underlying reader is abandoned, not interrupted, when ctx
// ends.
type ReaderSource struct {
	prompt  io.Writer
	scanner *bufio.Scanner

	once  sync.Once
	lines chan lineResult
}

// NewReaderSource reads lines from r. When prompt is non-nil Prompt is written
// to it before every line.
func NewReaderSource(r io.Reader, prompt io.Writer) *ReaderSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	return &ReaderSource{
		prompt:  prompt,
		scanner: scanner,
		lines:   make(chan lineResult),
	}
}

// NewConsoleSource reads from stdin, prompting on stdout only when stdin is a
// terminal.
func NewConsoleSource() *ReaderSource {
	var prompt io.Writer
	if fd := os.Stdin.Fd(); isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		prompt = os.Stdout
	}
	return NewReaderSource(os.Stdin, prompt)
}

// ReadLine returns the next line without its trailing newline.
func (s *ReaderSource) ReadLine(ctx context.Context) (string, error) {
	s.once.Do(func() { go s.pump() })
	if s.prompt != nil {
		_, _ = fmt.Fprint(s.prompt, Prompt)
	}
	select {
	case res, ok := <-s.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *ReaderSource) pump() {
	defer close(s.lines)
	for s.scanner.Scan() {
		s.lines <- lineResult{line: strings.TrimRight(s.scanner.Text(), "\r")}
	}
	if err := s.scanner.Err(); err != nil {
		s.lines <- lineResult{err: err}
	}
}
