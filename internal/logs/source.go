// Package logs supplies and parses the proxy access log stream.
package logs

import (
	"bufio"
	"context"
	"errors"
	"io"
)

// ErrStreamReset is returned by a Source when the underlying stream identity
// changed (file rotated or truncated, container recreated). The next call to
// Next reads from the new stream.
var ErrStreamReset = errors.New("log stream reset")

const maxLineBytes = 1 << 20

// Source yields raw lines in arrival order. Next blocks until a line is
// available, the context ends, or the stream ends (io.EOF, finite sources only).
type Source interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// ReaderSource reads a finite stream, e.g. a file being replayed.
type ReaderSource struct {
	sc *bufio.Scanner
	c  io.Closer
}

func NewReaderSource(r io.Reader) *ReaderSource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	s := &ReaderSource{sc: sc}
	if c, ok := r.(io.Closer); ok {
		s.c = c
	}
	return s
}

func (s *ReaderSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.sc.Scan() {
		return s.sc.Text(), nil
	}
	if err := s.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (s *ReaderSource) Close() error {
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}
