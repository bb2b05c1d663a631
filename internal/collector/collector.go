package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"cmdlauncher/internal/channel"
	"cmdlauncher/internal/logging"
)

// ChunkSize bounds a single read from the FIFO and therefore the largest
// record a sink receives.
const ChunkSize = 1024

// Collector copies one FIFO into one sink until its context ends.
type Collector struct {
	name   string
	path   string
	sink   Sink
	logger *slog.Logger

	reader   *channel.ResultReader
	done     chan struct{}
	err      error
	chunks   atomic.Int64
	lastRead atomic.Int64
}

// New prepares a collector for the FIFO at path. name labels log lines
// ("output" or "error").
func New(name, path string, sink Sink, logger *slog.Logger) *Collector {
	return &Collector{
		name:   name,
		path:   path,
		sink:   sink,
		logger: logging.NewComponentLogger(logger, "collector").With(logging.String("stream", name)),
		done:   make(chan struct{}),
	}
}

// Start opens the FIFO and begins copying in the background. Open failures
// are returned directly; later failures are reported by Wait.
func (c *Collector) Start(ctx context.Context) error {
	r, err := channel.OpenResultReader(c.path)
	if err != nil {
		return err
	}
	c.reader = r
	go c.run(ctx)
	return nil
}

// Wait blocks until the copy loop ends. A loop ended by cancellation returns
// nil.
func (c *Collector) Wait() error {
	<-c.done
	return c.err
}

// Done is closed when the copy loop has ended.
func (c *Collector) Done() <-chan struct{} { return c.done }

// Chunks returns how many chunks have been appended so far.
func (c *Collector) Chunks() int64 { return c.chunks.Load() }

// Drained reports whether everything written to the FIFO so far has reached
// the sink. A stopped collector is drained.
func (c *Collector) Drained() bool {
	select {
	case <-c.done:
		return true
	default:
	}
	pending, err := c.reader.Pending()
	if err != nil {
		c.logger.Debug("pending check failed", logging.Error(err))
		return false
	}
	return !pending
}

// LastActivity returns when the most recent chunk arrived, or the zero time.
func (c *Collector) LastActivity() time.Time {
	ns := c.lastRead.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	defer c.reader.Close()

	buf := make([]byte, ChunkSize)
	for {
		n, err := c.reader.Read(ctx, buf)
		if n > 0 {
			c.lastRead.Store(time.Now().UnixNano())
			if appendErr := c.sink.Append(buf[:n]); appendErr != nil {
				c.err = fmt.Errorf("%s collector: %w", c.name, appendErr)
				logging.ErrorWithContext(c.logger, "sink append failed", "sink_append_failed",
					logging.Error(appendErr),
					logging.String(logging.FieldErrorHint, "check free space and permissions on the result log"),
				)
				return
			}
			c.chunks.Add(1)
		}
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			c.logger.Debug("collector stopped", logging.Int64("chunks", c.chunks.Load()))
			return
		case errors.Is(err, io.EOF):
			c.logger.Debug("result writers closed", logging.Int64("chunks", c.chunks.Load()))
		default:
			c.err = fmt.Errorf("%s collector read %s: %w", c.name, c.path, err)
			return
		}
	}
}
