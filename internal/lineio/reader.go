// Package lineio streams a text file into lines, reporting consumed bytes
// as it goes so callers can drive a progress meter and a resume checkpoint.
package lineio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	// DefaultSegmentSize is the target size of each internal read.
	DefaultSegmentSize = 1 << 20 // 1 MiB

	// DefaultQueueCapacity is the default bound on the downstream line
	// channel.
	DefaultQueueCapacity = 10_000

	// smallLineThreshold is the largest line materialized via a
	// stack-sized scratch buffer instead of a pooled heap buffer.
	smallLineThreshold = 256
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// longLinePool recycles scratch buffers for lines longer than
// smallLineThreshold, avoiding a fresh allocation per long line.
var longLinePool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 4096)
		return &buf
	},
}

// Reader streams one file into lines. Construct with New; reuse across
// files is fine, it holds no per-stream state.
type Reader struct {
	segmentSize int
}

// Option configures a Reader.
type Option func(*Reader)

// WithSegmentSize overrides the default 1 MiB read segment size.
func WithSegmentSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.segmentSize = n
		}
	}
}

// New constructs a Reader with the given options.
func New(opts ...Option) *Reader {
	r := &Reader{segmentSize: DefaultSegmentSize}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stream opens path and streams its lines onto the lines channel, invoking
// onBytesRead(delta) after each batch of newline-delimited bytes whose
// consumption has been committed (onBytesRead may be nil). It always
// closes the lines channel before returning, whether it returns nil or an
// error — that close is the end-of-input signal to downstream consumers.
// On any read error, the error is returned (and, per the engine's
// contract, causes the caller to cancel the shared run scope).
func (r *Reader) Stream(ctx context.Context, path string, lines chan<- string, onBytesRead func(int64)) error {
	f, err := os.Open(path)
	if err != nil {
		close(lines)
		return fmt.Errorf("opening input file: %w", err)
	}
	defer f.Close()

	err = r.readLines(ctx, f, lines, onBytesRead)
	close(lines)
	return err
}

// readLines is the testable core: it reads from an arbitrary io.Reader
// instead of requiring a file on disk.
func (r *Reader) readLines(ctx context.Context, src io.Reader, lines chan<- string, onBytesRead func(int64)) error {
	segSize := r.segmentSize
	if segSize <= 0 {
		segSize = DefaultSegmentSize
	}

	readBuf := make([]byte, segSize)
	var acc []byte
	first := true

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, rerr := src.Read(readBuf)
		if n > 0 {
			chunk := readBuf[:n]
			if first {
				first = false
				if len(chunk) >= 3 && bytes.Equal(chunk[:3], bom) {
					chunk = chunk[3:]
					if onBytesRead != nil {
						onBytesRead(3)
					}
				}
			}
			acc = append(acc, chunk...)

			if err := r.drainLines(ctx, &acc, lines, onBytesRead); err != nil {
				return err
			}
		}

		if rerr == io.EOF {
			if len(acc) > 0 {
				final := stripCR(acc)
				if err := emit(ctx, lines, final); err != nil {
					return err
				}
				if onBytesRead != nil {
					onBytesRead(int64(len(acc)))
				}
			}
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("reading input file: %w", rerr)
		}
	}
}

// drainLines slices every complete line currently sitting in *acc, emits
// each one, and reports the bytes consumed.
func (r *Reader) drainLines(ctx context.Context, acc *[]byte, lines chan<- string, onBytesRead func(int64)) error {
	for {
		idx := bytes.IndexByte(*acc, '\n')
		if idx < 0 {
			return nil
		}
		lineBytes := stripCR((*acc)[:idx])
		if err := emit(ctx, lines, lineBytes); err != nil {
			return err
		}
		delta := int64(idx + 1)
		*acc = (*acc)[idx+1:]
		if onBytesRead != nil {
			onBytesRead(delta)
		}
	}
}

func stripCR(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\r' {
		return b[:len(b)-1]
	}
	return b
}

// emit materializes b as a string (short lines via a stack-sized scratch
// buffer, long lines via a pooled one) and sends it, honoring backpressure:
// a non-blocking offer first, falling back to a blocking send that still
// observes cancellation.
func emit(ctx context.Context, lines chan<- string, b []byte) error {
	line := materialize(b)

	select {
	case lines <- line:
		return nil
	default:
	}

	select {
	case lines <- line:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func materialize(b []byte) string {
	if len(b) <= smallLineThreshold {
		var stack [smallLineThreshold]byte
		n := copy(stack[:], b)
		return string(stack[:n])
	}

	bufPtr := longLinePool.Get().(*[]byte)
	buf := append((*bufPtr)[:0], b...)
	s := string(buf)
	*bufPtr = buf
	longLinePool.Put(bufPtr)
	return s
}
