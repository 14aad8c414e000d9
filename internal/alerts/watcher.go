// Package alerts turns the access log stream into gated notifications.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"poolwatch/internal/config"
	"poolwatch/internal/detect"
	"poolwatch/internal/logs"
	"poolwatch/internal/metrics"
	"poolwatch/internal/models"
)

// RuntimeSource hands out the current tunables. It is read once per record.
type RuntimeSource interface {
	Snapshot() config.Runtime
}

// Status is a point-in-time copy of the watcher state for the status API.
type Status struct {
	CurrentPool      string               `json:"current_pool"`
	LastTransitionAt *time.Time           `json:"last_transition_at,omitempty"`
	LastRecordAt     *time.Time           `json:"last_record_at,omitempty"`
	WindowLen        int                  `json:"window_len"`
	WindowCap        int                  `json:"window_cap"`
	ErrorCount       int                  `json:"error_count"`
	ErrorRate        float64              `json:"error_rate"`
	LastSent         map[string]time.Time `json:"last_sent"`
	Maintenance      bool                 `json:"maintenance_mode"`
	LinesRead        int64                `json:"lines_read"`
	ParseErrors      int64                `json:"parse_errors"`
	StreamResets     int64                `json:"stream_resets"`
}

type WatcherOptions struct {
	// Baseline is the pool assumed to be serving before the first record.
	Baseline string
	// RecordTime measures cooldowns against record timestamps instead of the
	// wall clock. Used when replaying a finished log.
	RecordTime bool
}

// Watcher is the single consumption loop. Detection state and cooldowns are
// owned by Run; other goroutines only see published Status copies.
type Watcher struct {
	src        logs.Source
	parser     *logs.Parser
	runtime    RuntimeSource
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
	log        *slog.Logger
	now        func() time.Time
	recordTime bool

	tracker  *detect.PoolTracker
	window   *detect.ErrorWindow
	gate     *Gate
	parseLog *rate.Limiter

	lines       int64
	parseErrors int64
	resets      int64
	lastRecord  time.Time

	mu     sync.RWMutex
	status Status
}

func NewWatcher(src logs.Source, parser *logs.Parser, runtime RuntimeSource, d *Dispatcher, m *metrics.Metrics, logger *slog.Logger, opts WatcherOptions) *Watcher {
	rt := runtime.Snapshot()
	w := &Watcher{
		src:        src,
		parser:     parser,
		runtime:    runtime,
		dispatcher: d,
		metrics:    m,
		log:        logger,
		now:        time.Now,
		recordTime: opts.RecordTime,
		tracker:    detect.NewPoolTracker(opts.Baseline),
		window:     detect.NewErrorWindow(rt.WindowSize),
		gate:       NewGate(),
		parseLog:   rate.NewLimiter(rate.Every(time.Second), 5),
	}
	w.publish(rt)
	return w
}

// Run consumes the source until ctx ends or a finite source is exhausted.
// The record in flight, including its dispatch, always completes first.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		line, err := w.src.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, logs.ErrStreamReset):
			w.reset()
			continue
		case errors.Is(err, io.EOF):
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("read log stream: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		w.handle(ctx, line)
	}
}

func (w *Watcher) handle(ctx context.Context, line string) {
	w.lines++
	w.metrics.LinesTotal.Inc()
	rt := w.runtime.Snapshot()

	rec, err := w.parser.Parse(line)
	if err != nil {
		w.parseErrors++
		w.metrics.ParseErrorsTotal.Inc()
		if w.parseLog.Allow() {
			w.log.Warn("skipping malformed line", "err", err, "line", line)
		}
		w.publish(rt)
		return
	}
	w.lastRecord = rec.TS

	if w.window.Cap() != rt.WindowSize {
		w.log.Info("resizing error window", "from", w.window.Cap(), "to", rt.WindowSize)
		w.window.Resize(rt.WindowSize)
	}
	if ev, ok := w.tracker.Observe(rec); ok {
		w.consider(ctx, ev, rt)
	}
	if ev, ok := w.window.Observe(rec, rt.ErrorRateThreshold); ok {
		w.consider(ctx, ev, rt)
	}
	w.publish(rt)
}

func (w *Watcher) consider(ctx context.Context, ev models.Event, rt config.Runtime) {
	kind := string(ev.Kind())
	w.metrics.EventsTotal.WithLabelValues(kind).Inc()

	at := w.now()
	if w.recordTime {
		at = ev.OccurredAt()
	}
	d := w.gate.Admit(ev.Kind(), at, rt)
	if !d.Admit {
		w.metrics.SuppressedTotal.WithLabelValues(kind, d.Reason).Inc()
		w.log.Info("alert suppressed", "kind", kind, "reason", d.Reason, "cooldown_remaining", d.Remaining.Round(time.Second).String())
		return
	}
	w.dispatcher.Dispatch(ctx, ev, rt)
}

// reset starts a fresh detection baseline after rotation. Cooldowns survive
// so a rotation cannot unlock a duplicate notification.
func (w *Watcher) reset() {
	w.resets++
	w.metrics.StreamResets.Inc()
	w.log.Info("log stream reset, clearing detection state", "pool", w.tracker.Current(), "window_len", w.window.Len())
	w.tracker.Reset()
	w.window.Reset()
	w.publish(w.runtime.Snapshot())
}

func (w *Watcher) publish(rt config.Runtime) {
	st := Status{
		CurrentPool:  w.tracker.Current(),
		WindowLen:    w.window.Len(),
		WindowCap:    w.window.Cap(),
		ErrorCount:   w.window.Errors(),
		ErrorRate:    w.window.Rate(),
		LastSent:     map[string]time.Time{},
		Maintenance:  rt.MaintenanceMode,
		LinesRead:    w.lines,
		ParseErrors:  w.parseErrors,
		StreamResets: w.resets,
	}
	if t := w.tracker.LastTransitionAt(); !t.IsZero() {
		st.LastTransitionAt = &t
	}
	if !w.lastRecord.IsZero() {
		t := w.lastRecord
		st.LastRecordAt = &t
	}
	for k, v := range w.gate.LastSent() {
		st.LastSent[string(k)] = v
	}

	w.metrics.ErrorRate.Set(st.ErrorRate)
	w.metrics.WindowSamples.Set(float64(st.WindowLen))
	w.metrics.SetPool(st.CurrentPool)
	w.metrics.SetMaintenance(rt.MaintenanceMode)

	w.mu.Lock()
	w.status = st
	w.mu.Unlock()
}

// Status returns the last published state. Maintenance reflects the live
// runtime config, which may have changed since the last record.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	st := w.status
	w.mu.RUnlock()
	st.Maintenance = w.runtime.Snapshot().MaintenanceMode
	return st
}
