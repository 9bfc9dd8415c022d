// Package sink appends captured sample chunks to a raw PCM file.
package sink

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// ErrIO marks failures opening, writing or closing the raw file.
var ErrIO = errors.New("raw sink i/o failure")

const defaultBufferSize = 16 * 1024

// Sink is an append-only raw sample file. WriteChunk and Close may be called
// from different goroutines.
type Sink struct {
	path string

	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	closed bool

	written  atomic.Int64
	failures atomic.Int64
}

type Option func(*options)

type options struct {
	bufferSize int
}

// WithBufferSize sets the write buffer size. Zero writes straight through.
func WithBufferSize(n int) Option {
	return func(o *options) { o.bufferSize = n }
}

// Open creates or truncates the file at path.
func Open(path string, opts ...Option) (*Sink, error) {
	o := options{bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&o)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrIO, path, err)
	}

	s := &Sink{path: path, file: f}
	if o.bufferSize > 0 {
		s.w = bufio.NewWriterSize(f, o.bufferSize)
	}
	slog.Debug("Raw sink opened", "path", path, "buffer", o.bufferSize)
	return s, nil
}

// WriteChunk appends chunk. Writes after Close are dropped and return nil.
// A failed write is logged and counted, and the error is returned so the
// caller can decide whether to keep going.
func (s *Sink) WriteChunk(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	var n int
	var err error
	if s.w != nil {
		n, err = s.w.Write(chunk)
	} else {
		n, err = s.file.Write(chunk)
	}
	s.written.Add(int64(n))
	if err != nil {
		s.failures.Add(1)
		slog.Warn("Raw sink write failed", "path", s.path, "chunk", len(chunk), "written", n, "error", err)
		return fmt.Errorf("%w: write chunk: %w", ErrIO, err)
	}
	return nil
}

// Close flushes buffered samples and closes the file. Further calls are no-ops.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var flushErr error
	if s.w != nil {
		flushErr = s.w.Flush()
	}
	closeErr := s.file.Close()

	slog.Debug("Raw sink closed", "path", s.path, "bytes", s.written.Load(), "failures", s.failures.Load())

	if flushErr != nil {
		return fmt.Errorf("%w: flush: %w", ErrIO, flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: close: %w", ErrIO, closeErr)
	}
	return nil
}

// BytesWritten is the number of bytes accepted so far, buffered or not.
func (s *Sink) BytesWritten() int64 {
	return s.written.Load()
}

// Failures is the number of chunks whose write failed.
func (s *Sink) Failures() int64 {
	return s.failures.Load()
}

// Path is the file the sink appends to.
func (s *Sink) Path() string {
	return s.path
}

// Closed reports whether Close has been called.
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
