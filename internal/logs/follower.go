package logs

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"
)

// FileFollower tails a growing file. It survives rotation (rename or
// recreate) and truncation by reopening the path, and reports each switch as
// ErrStreamReset. A missing file is retried with exponential backoff.
type FileFollower struct {
	path      string
	fromStart bool
	log       *slog.Logger

	// PollInterval bounds the wait for new data when no fs event arrives.
	PollInterval time.Duration
	// NewBackOff builds the policy for reopening the file.
	NewBackOff func() backoff.BackOff

	f       *os.File
	rd      *bufio.Reader
	info    os.FileInfo
	offset  int64
	partial strings.Builder

	watcher *fsnotify.Watcher
	rotated bool
	// missing is set when the path did not exist at startup; whatever
	// appears later is new and is read from the beginning.
	missing bool
}

func NewFileFollower(path string, fromStart bool, logger *slog.Logger) *FileFollower {
	return &FileFollower{
		path:         path,
		fromStart:    fromStart,
		log:          logger,
		PollInterval: time.Second,
		NewBackOff:   defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func (t *FileFollower) Next(ctx context.Context) (string, error) {
	for {
		if t.f == nil {
			if err := t.open(ctx); err != nil {
				return "", err
			}
			if t.rotated {
				t.rotated = false
				return "", ErrStreamReset
			}
		}

		chunk, err := t.rd.ReadString('\n')
		t.offset += int64(len(chunk))
		if err == nil {
			t.partial.WriteString(chunk)
			line := strings.TrimRight(t.partial.String(), "\r\n")
			t.partial.Reset()
			return line, nil
		}
		if !errors.Is(err, io.EOF) {
			t.log.Warn("read log file", "path", t.path, "err", err)
			t.closeFile()
			t.rotated = true
			continue
		}
		t.partial.WriteString(chunk)

		if t.switched() {
			// The writer may have appended to the old file after our EOF.
			if line, ok := t.drainOld(); ok {
				return line, nil
			}
			t.log.Info("log file rotated", "path", t.path, "offset", t.offset)
			t.closeFile()
			t.partial.Reset()
			t.rotated = true
			continue
		}
		if err := t.wait(ctx); err != nil {
			return "", err
		}
	}
}

func (t *FileFollower) Close() error {
	if t.watcher != nil {
		_ = t.watcher.Close()
		t.watcher = nil
	}
	t.closeFile()
	return nil
}

func (t *FileFollower) open(ctx context.Context) error {
	op := func() error {
		f, err := os.Open(t.path)
		if err != nil {
			if t.info == nil && errors.Is(err, fs.ErrNotExist) {
				t.missing = true
			}
			return err
		}
		st, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return err
		}
		// Only the very first open of a file present at startup honours
		// fromStart; anything else is new content read from the beginning.
		var off int64
		if t.info == nil && !t.fromStart && !t.missing {
			if off, err = f.Seek(0, io.SeekEnd); err != nil {
				_ = f.Close()
				return err
			}
		}
		t.f, t.info, t.offset = f, st, off
		t.rd = bufio.NewReaderSize(f, 64*1024)
		return nil
	}
	notify := func(err error, d time.Duration) {
		t.log.Warn("open log file", "path", t.path, "err", err, "retry_in", d)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(t.NewBackOff(), ctx), notify); err != nil {
		return err
	}
	t.ensureWatcher()
	t.log.Info("following log file", "path", t.path, "offset", t.offset)
	return nil
}

// drainOld reads one more line from the file being left behind. The switch
// stays pending, so the next EOF checks again.
func (t *FileFollower) drainOld() (string, bool) {
	chunk, err := t.rd.ReadString('\n')
	t.offset += int64(len(chunk))
	t.partial.WriteString(chunk)
	if err != nil {
		return "", false
	}
	line := strings.TrimRight(t.partial.String(), "\r\n")
	t.partial.Reset()
	return line, true
}

// switched reports whether the path now names a different file, or the same
// file was truncated below what has been read.
func (t *FileFollower) switched() bool {
	st, err := os.Stat(t.path)
	if err != nil {
		return true
	}
	if !os.SameFile(t.info, st) {
		return true
	}
	return st.Size() < t.offset
}

func (t *FileFollower) closeFile() {
	if t.f != nil {
		_ = t.f.Close()
	}
	t.f, t.rd = nil, nil
}

func (t *FileFollower) ensureWatcher() {
	if t.watcher != nil {
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.log.Warn("fsnotify unavailable, polling only", "err", err)
		return
	}
	// Watch the directory so rename and create of the path are seen too.
	if err := w.Add(filepath.Dir(t.path)); err != nil {
		t.log.Warn("watch log dir, polling only", "dir", filepath.Dir(t.path), "err", err)
		_ = w.Close()
		return
	}
	t.watcher = w
}

func (t *FileFollower) wait(ctx context.Context) error {
	timer := time.NewTimer(t.PollInterval)
	defer timer.Stop()
	var events <-chan fsnotify.Event
	var errs <-chan error
	if t.watcher != nil {
		events, errs = t.watcher.Events, t.watcher.Errors
	}
	base := filepath.Base(t.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(ev.Name) == base {
				return nil
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			t.log.Warn("fsnotify", "err", err)
		}
	}
}
