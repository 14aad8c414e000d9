package logs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"strings"
	"time"
)

// ParseDockerStream splits a docker logs response into lines and sends them
// on out. It handles both the multiplexed (non-TTY) framing and plain streams.
func ParseDockerStream(ctx context.Context, r io.Reader, out chan<- string) error {
	return readDockerStream(ctx, r, func(ctx context.Context, line string) error {
		select {
		case out <- line:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// lineSink receives every non-empty, sanitized line in stream order.
type lineSink func(ctx context.Context, line string) error

func readDockerStream(ctx context.Context, r io.Reader, out lineSink) error {
	br := bufio.NewReader(r)
	for {
		header, err := br.Peek(8)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return parsePlainStream(ctx, br, out)
			}
			return err
		}
		// Docker uses an 8-byte multiplex header when container TTY is disabled.
		if !isMultiplexHeader(header) {
			return parsePlainStream(ctx, br, out)
		}
		_, _ = br.Discard(8)
		size := binary.BigEndian.Uint32(header[4:])
		if size == 0 {
			continue
		}
		payload := make([]byte, int(size))
		if _, err := io.ReadFull(br, payload); err != nil {
			return err
		}
		// One frame may carry several lines.
		for _, line := range strings.Split(strings.TrimRight(string(payload), "\n"), "\n") {
			if err := emitLine(ctx, line, out); err != nil {
				return err
			}
		}
	}
}

func isMultiplexHeader(header []byte) bool {
	if len(header) < 8 {
		return false
	}
	if header[0] != 1 && header[0] != 2 {
		return false
	}
	return header[1] == 0 && header[2] == 0 && header[3] == 0
}

func parsePlainStream(ctx context.Context, br *bufio.Reader, out lineSink) error {
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	for sc.Scan() {
		if err := emitLine(ctx, sc.Text(), out); err != nil {
			return err
		}
	}
	return sc.Err()
}

func emitLine(ctx context.Context, raw string, out lineSink) error {
	msg := strings.TrimSpace(raw)
	// timestamps=1 prefixes every line with the daemon's RFC3339 receive time.
	if p := strings.SplitN(msg, " ", 2); len(p) == 2 {
		if _, err := time.Parse(time.RFC3339Nano, p[0]); err == nil {
			msg = p[1]
		}
	}
	msg = sanitizeLine(msg)
	if msg == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return out(ctx, msg)
}

func sanitizeLine(msg string) string {
	msg = strings.TrimSpace(msg)
	msg = strings.ReplaceAll(msg, "\x00", "")
	return strings.TrimSpace(string(bytes.ToValidUTF8([]byte(msg), []byte("?"))))
}
