package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"poolwatch/internal/config"
	"poolwatch/internal/metrics"
	"poolwatch/internal/models"
	"poolwatch/internal/notifier"
)

// Recorder persists dispatched alerts and their delivery outcome.
type Recorder interface {
	RecordAlert(ctx context.Context, a models.AlertRecord) error
	RecordDelivery(ctx context.Context, d models.Delivery) error
}

// Dispatcher renders approved events and delivers each one exactly once.
type Dispatcher struct {
	sender      notifier.Sender
	recorder    Recorder
	metrics     *metrics.Metrics
	log         *slog.Logger
	timeout     time.Duration
	environment string
	now         func() time.Time
}

// NewDispatcher builds a dispatcher. recorder may be nil when no audit store
// is configured.
func NewDispatcher(sender notifier.Sender, recorder Recorder, m *metrics.Metrics, logger *slog.Logger, timeout time.Duration, environment string) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		sender:      sender,
		recorder:    recorder,
		metrics:     m,
		log:         logger,
		timeout:     timeout,
		environment: environment,
		now:         time.Now,
	}
}

// Render turns an event into the channel-neutral message.
func (d *Dispatcher) Render(ev models.Event, rt config.Runtime) notifier.Message {
	msg := notifier.Message{Kind: string(ev.Kind())}
	var lines []string
	switch e := ev.(type) {
	case models.FailoverEvent:
		msg.Title = "Failover Detected"
		msg.Color = "warning"
		lines = append(lines, fmt.Sprintf("Failover detected: %s -> %s", e.From, e.To))
		if e.ReleaseTo != "" {
			lines = append(lines, "Release: "+e.ReleaseTo)
		}
		lines = append(lines, "Time: "+e.At.UTC().Format(time.RFC3339))
		if req := strings.TrimSpace(e.Request.Method + " " + e.Request.URI); req != "" {
			if e.Request.UpstreamStatus != 0 {
				req += fmt.Sprintf(" (upstream %d)", e.Request.UpstreamStatus)
			}
			lines = append(lines, "Request: "+req)
		}
	case models.ErrorRateEvent:
		msg.Title = "High Error Rate"
		msg.Color = "danger"
		lines = append(lines,
			fmt.Sprintf("High error rate: %.1f%% (%d/%d requests) threshold %.1f%%", e.Rate, e.ErrorCount, e.WindowSize, e.Threshold),
			"Time: "+e.At.UTC().Format(time.RFC3339),
		)
	default:
		msg.Title = "Alert"
		lines = append(lines, fmt.Sprintf("%s at %s", ev.Kind(), ev.OccurredAt().UTC().Format(time.RFC3339)))
	}
	msg.Text = strings.Join(lines, "\n")
	msg.Fields = d.fields(rt)
	return msg
}

func (d *Dispatcher) fields(rt config.Runtime) []notifier.Field {
	mode := "off"
	if rt.MaintenanceMode {
		mode = "on"
	}
	return []notifier.Field{
		{Title: "Environment", Value: d.environment},
		{Title: "Maintenance Mode", Value: mode},
	}
}

// Dispatch delivers ev once. Failures are logged and recorded, never retried.
// The send outlives cancellation of ctx so a shutdown lets it finish or time out.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.Event, rt config.Runtime) models.Delivery {
	msg := d.Render(ev, rt)
	id := uuid.NewString()
	bg := context.WithoutCancel(ctx)

	if d.recorder != nil {
		rec := models.AlertRecord{
			ID:        id,
			Kind:      ev.Kind(),
			Summary:   firstLine(msg.Text),
			Details:   details(ev),
			CreatedAt: d.now().UTC(),
		}
		if err := d.recorder.RecordAlert(bg, rec); err != nil {
			d.log.Error("record alert", "err", err, "alert_id", id, "kind", ev.Kind())
		}
	}

	delivery := d.send(bg, id, ev.Kind(), msg)
	if delivery.Status == models.DeliverySent {
		d.log.Info("alert dispatched", "alert_id", id, "kind", ev.Kind(), "channel", delivery.Channel, "duration_ms", delivery.Duration.Milliseconds())
	} else {
		args := []any{"err", delivery.Error, "alert_id", id, "kind", ev.Kind(), "channel", delivery.Channel}
		args = append(args, details(ev).logArgs()...)
		d.log.Warn("alert delivery failed", args...)
	}

	if d.recorder != nil {
		if err := d.recorder.RecordDelivery(bg, delivery); err != nil {
			d.log.Error("record delivery", "err", err, "alert_id", id)
		}
	}
	return delivery
}

// SendTest delivers a synthetic message through the sender, bypassing the gate.
func (d *Dispatcher) SendTest(ctx context.Context, rt config.Runtime) models.Delivery {
	msg := notifier.Message{
		Kind:   "test",
		Title:  "Test Alert",
		Text:   "poolwatch test notification at " + d.now().UTC().Format(time.RFC3339),
		Color:  "good",
		Fields: d.fields(rt),
	}
	return d.send(ctx, "", "test", msg)
}

func (d *Dispatcher) send(ctx context.Context, id string, kind models.AlertKind, msg notifier.Message) models.Delivery {
	sctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := d.sender.Send(sctx, msg)
	elapsed := time.Since(start)

	delivery := models.Delivery{
		AlertID:  id,
		Kind:     kind,
		Channel:  d.sender.Channel(),
		Status:   models.DeliverySent,
		Duration: elapsed,
		At:       d.now().UTC(),
	}
	if err != nil {
		delivery.Status = models.DeliveryFailed
		delivery.Error = err.Error()
	}
	if d.metrics != nil {
		d.metrics.DispatchTotal.WithLabelValues(string(kind), delivery.Status).Inc()
		d.metrics.DispatchDuration.WithLabelValues(delivery.Channel).Observe(elapsed.Seconds())
	}
	return delivery
}

type eventDetails map[string]any

func (e eventDetails) logArgs() []any {
	keys := []string{"from", "to", "release", "method", "uri", "upstream_status", "rate", "threshold", "window_size", "error_count", "at"}
	var out []any
	for _, k := range keys {
		if v, ok := e[k]; ok {
			out = append(out, k, v)
		}
	}
	return out
}

func details(ev models.Event) eventDetails {
	switch e := ev.(type) {
	case models.FailoverEvent:
		return eventDetails{
			"from":            e.From,
			"to":              e.To,
			"release":         e.ReleaseTo,
			"method":          e.Request.Method,
			"uri":             e.Request.URI,
			"upstream_status": e.Request.UpstreamStatus,
			"at":              e.At.UTC().Format(time.RFC3339Nano),
		}
	case models.ErrorRateEvent:
		return eventDetails{
			"rate":        e.Rate,
			"threshold":   e.Threshold,
			"window_size": e.WindowSize,
			"error_count": e.ErrorCount,
			"at":          e.At.UTC().Format(time.RFC3339Nano),
		}
	}
	return eventDetails{"at": ev.OccurredAt().UTC().Format(time.RFC3339Nano)}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
