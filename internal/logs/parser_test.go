package logs

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
)

func TestParseDockerStream(t *testing.T) {
	payload := []byte("2026-01-01T00:00:00Z pool=blue status=200\n")
	head := make([]byte, 8)
	head[0] = 1
	binary.BigEndian.PutUint32(head[4:], uint32(len(payload)))
	buf := append(head, payload...)

	out := make(chan string, 4)
	if err := ParseDockerStream(context.Background(), bytes.NewReader(buf), out); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	close(out)
	line := <-out
	if line != "pool=blue status=200" {
		t.Fatalf("unexpected line: %q", line)
	}
}

func TestParseDockerStreamPlain(t *testing.T) {
	out := make(chan string, 4)
	in := "2026-01-01T00:00:00Z first\n\nsecond\x00\n"
	if err := ParseDockerStream(context.Background(), bytes.NewReader([]byte(in)), out); err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	close(out)
	var got []string
	for l := range out {
		got = append(got, l)
	}
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("unexpected lines: %q", got)
	}
}

func TestParseDockerStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan string)
	err := ParseDockerStream(ctx, bytes.NewReader([]byte("a=1\nb=2\n")), out)
	if err != context.Canceled {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
