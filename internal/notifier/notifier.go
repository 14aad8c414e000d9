// Package notifier delivers rendered alert messages to an external channel.
package notifier

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Field is a short labelled value shown alongside the message text.
type Field struct {
	Title string
	Value string
}

// Message is a rendered alert, independent of the channel envelope.
type Message struct {
	Kind   string
	Title  string
	Text   string
	Color  string
	Fields []Field
}

// Plain renders the message as text for channels without rich formatting.
func (m Message) Plain() string {
	var b strings.Builder
	if m.Title != "" {
		b.WriteString(m.Title)
		b.WriteString("\n")
	}
	b.WriteString(m.Text)
	for _, f := range m.Fields {
		fmt.Fprintf(&b, "\n%s: %s", f.Title, f.Value)
	}
	return b.String()
}

// Sender delivers one message once. It reports failure but never retries.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Channel() string
}

// Printer writes messages to w instead of delivering them. Used for replays.
type Printer struct {
	mu sync.Mutex
	W  io.Writer
}

func (p *Printer) Channel() string { return "stdout" }

func (p *Printer) Send(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.W, "--- %s\n%s\n", msg.Kind, msg.Plain())
	return err
}
