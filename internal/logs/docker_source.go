package logs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"poolwatch/internal/docker"
)

// DockerSource follows the stdout of a container through the Docker Engine
// API. Its stream identity is the container ID: when the named container is
// recreated the next read reports ErrStreamReset.
type DockerSource struct {
	dc        *docker.Client
	container string
	log       *slog.Logger

	NewBackOff func() backoff.BackOff
	// Reconnect is the pause after a log stream ends cleanly.
	Reconnect time.Duration

	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
	items  chan streamItem
}

// streamItem is one event of the pump. Lines, resets and the terminal error
// share a channel so the consumer sees them in the order they happened.
type streamItem struct {
	line  string
	reset bool
	err   error
}

func NewDockerSource(dc *docker.Client, container string, logger *slog.Logger) *DockerSource {
	return &DockerSource{
		dc:         dc,
		container:  container,
		log:        logger,
		NewBackOff: defaultBackOff,
		Reconnect:  500 * time.Millisecond,
		done:       make(chan struct{}),
		items:      make(chan streamItem, 256),
	}
}

func (s *DockerSource) Next(ctx context.Context) (string, error) {
	s.once.Do(func() {
		pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		s.cancel = cancel
		go s.pump(pumpCtx)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case it := <-s.items:
		switch {
		case it.err != nil:
			return "", it.err
		case it.reset:
			return "", ErrStreamReset
		}
		return it.line, nil
	}
}

func (s *DockerSource) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

func (s *DockerSource) pump(ctx context.Context) {
	defer close(s.done)
	var lastID string
	for {
		info, err := s.inspect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				_ = s.send(ctx, streamItem{err: err})
			}
			return
		}
		if lastID != "" && info.ID != lastID {
			s.log.Info("container recreated", "container", s.container, "old", shortID(lastID), "new", shortID(info.ID))
			if s.send(ctx, streamItem{reset: true}) != nil {
				return
			}
		}
		lastID = info.ID

		// since=now skips history; a reconnect may miss lines written in the
		// gap but never replays old ones.
		rc, err := s.dc.Logs(ctx, info.ID, time.Now(), true, 0)
		if err != nil {
			s.log.Warn("open docker logs", "container", s.container, "err", err)
			if !sleepCtx(ctx, 2*time.Second) {
				return
			}
			continue
		}
		s.log.Info("following container logs", "container", s.container, "id", shortID(info.ID))
		err = readDockerStream(ctx, rc, func(ctx context.Context, line string) error {
			return s.send(ctx, streamItem{line: line})
		})
		_ = rc.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Warn("parse docker stream", "container", s.container, "err", err)
		}
		// Stream can end cleanly when Docker reconnects/rotates logs.
		// Prevent a tight reconnect loop that can spike CPU.
		if !sleepCtx(ctx, s.Reconnect) {
			return
		}
	}
}

func (s *DockerSource) send(ctx context.Context, it streamItem) error {
	select {
	case s.items <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *DockerSource) inspect(ctx context.Context) (docker.ContainerInspect, error) {
	var info docker.ContainerInspect
	op := func() error {
		var err error
		info, err = s.dc.InspectContainer(ctx, s.container)
		return err
	}
	notify := func(err error, d time.Duration) {
		if docker.IsNotFound(err) {
			s.log.Info("waiting for container", "container", s.container, "retry_in", d)
			return
		}
		s.log.Warn("inspect container", "container", s.container, "err", err, "retry_in", d)
	}
	err := backoff.RetryNotify(op, backoff.WithContext(s.NewBackOff(), ctx), notify)
	return info, err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
